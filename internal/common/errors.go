// Package common defines shared constants and sentinel errors used across
// the SecureText client layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound = errors.New("not found")

	// Authentication and authorization errors. ErrWrongPassword deliberately
	// covers every password-mismatch cause (no such vault, bad password,
	// corrupted vault record) so the caller cannot tell which wrapping
	// failed.
	ErrWrongPassword    = errors.New("wrong password")
	ErrNotAdmin         = errors.New("not admin")
	ErrUnlockInProgress = errors.New("unlock already in progress")
	ErrNotAuthenticated = errors.New("not authenticated to remote store")

	// Crypto errors.
	ErrDecryptFailed = errors.New("decrypt failed")

	// Remote store errors.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// Session errors.
	ErrVaultLocked = errors.New("vault is locked")
)

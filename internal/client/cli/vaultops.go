package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/akulikov/securetext/internal/common"
)

// getSimpleText, getPassword and getMultiline are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var getMultiline = GetMultiline

// Unlock prompts for the vault password and opens a session. On the first
// ever unlock this creates the vault. After a successful unlock the root
// folder is resolved and the background sync poller started.
//
// The password byte slice is securely wiped before returning.
func (a *App) Unlock(ctx context.Context) error {
	password, err := getPassword(os.Stdout, "Vault password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	role, err := a.session.Unlock(ctx, password)
	if err != nil {
		return err
	}
	printlnFn("Unlocked as", role.String())

	if err := a.ensureRoot(ctx); err != nil {
		a.log.Warn(ctx, "root folder unavailable, remote operations will fail", "error", err)
		return nil
	}
	a.startSync()
	return nil
}

// Admin re-proves the password against the admin wrapping and promotes the
// session to the admin role.
func (a *App) Admin(ctx context.Context) error {
	password, err := getPassword(os.Stdout, "Admin password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.session.Elevate(ctx, password); err != nil {
		return err
	}
	printlnFn("Admin role granted")
	return nil
}

// Lock flushes pending edits and locks the vault.
func (a *App) Lock(ctx context.Context) error {
	if err := a.session.Lock(ctx); err != nil {
		return err
	}
	printlnFn("Locked")
	return nil
}

// Rotate changes the user password. Requires the admin role. File content
// stays readable because only the wrapping changes, never the File Key.
func (a *App) Rotate(ctx context.Context) error {
	newPw, err := getPassword(os.Stdout, "New user password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(newPw)

	confirm, err := getPassword(os.Stdout, "Repeat new user password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(newPw, confirm) {
		return fmt.Errorf("passwords do not match")
	}

	if err := a.session.RotateUserPassword(ctx, newPw); err != nil {
		return err
	}
	printlnFn("User password rotated")
	return nil
}

// SetAdmin records the administrator account. Open on a fresh vault, admin
// gated afterwards.
func (a *App) SetAdmin(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Admin email", os.Stdout)
	if err != nil {
		return err
	}
	if err := a.session.SetAdmin(ctx, email); err != nil {
		return err
	}
	printlnFn("Admin set to", email)
	return nil
}

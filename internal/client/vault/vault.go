// Package vault implements the key hierarchy and authentication state of the
// SecureText client: master password → derived keys → wrapped File Key.
//
// The File Key is the single symmetric key encrypting all document content.
// It exists only in memory and is persisted exclusively in wrapped form,
// sealed under role-specific password-derived keys. Wrapping lets the user
// password rotate without re-encrypting any content.
package vault

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akulikov/securetext/internal/client/storage"
	"github.com/akulikov/securetext/internal/common"
	"github.com/akulikov/securetext/internal/cryptox"
	"github.com/akulikov/securetext/internal/logging"
)

// Role is the privilege level of the active session.
type Role int

const (
	RoleNone Role = iota
	RoleUser
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Metadata is the persisted vault record. It is stored encrypted as a whole
// under the user password-derived metadata key (never the File Key), so the
// remote store and local disk only ever see sealed bytes.
type Metadata struct {
	Admin struct {
		Initialized bool   `json:"initialized"`
		Email       string `json:"email,omitempty"`
		WrappedKey  []byte `json:"wrappedKey"`
	} `json:"admin"`
	User struct {
		WrappedKey []byte `json:"wrappedKey"`
	} `json:"user"`
	DriveRootID string    `json:"driveRootId,omitempty"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Manager owns the unlocked key material and the vault record. All methods
// are safe for concurrent use. Any operation that fails to authenticate
// leaves prior state untouched.
type Manager struct {
	store storage.DurableStore
	log   logging.Logger

	mu      sync.Mutex
	role    Role
	fileKey []byte
	metaKey []byte // current user metadata key, kept to persist record changes
	meta    *Metadata
}

func NewManager(store storage.DurableStore, log logging.Logger) *Manager {
	return &Manager{store: store, log: log.With("component", "vault")}
}

// Unlock authenticates a password against the persisted vault record.
//
// First-ever unlock (no persisted vault) creates the record: a fresh random
// File Key is generated and wrapped under both the admin- and user-derived
// keys (initially from the same password), and the sealed record is
// persisted. On an existing vault the user wrapping must unwrap; every
// mismatch cause (bad password, corrupted record, legacy payload) collapses
// into common.ErrWrongPassword so no oracle leaks which step failed.
func (m *Manager) Unlock(ctx context.Context, password []byte) (Role, error) {
	metaKey := cryptox.DeriveKey(password, []byte(cryptox.SaltVaultMeta))

	blob, err := m.store.Get(ctx, storage.KeyVault)
	if errors.Is(err, common.ErrNotFound) {
		return m.initialize(ctx, password, metaKey)
	}
	if err != nil {
		return RoleNone, fmt.Errorf("load vault record: %w", err)
	}

	plain, err := cryptox.Open(metaKey, blob)
	if err != nil {
		m.log.Warn(ctx, "vault record did not open")
		return RoleNone, common.ErrWrongPassword
	}

	var meta Metadata
	if err := json.Unmarshal(plain, &meta); err != nil {
		return RoleNone, common.ErrWrongPassword
	}

	userKey := cryptox.DeriveKey(password, []byte(cryptox.SaltUserKey))
	fileKey, err := cryptox.Open(userKey, meta.User.WrappedKey)
	if err != nil {
		return RoleNone, common.ErrWrongPassword
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.role = RoleUser
	m.fileKey = fileKey
	m.metaKey = metaKey
	m.meta = &meta
	m.log.Info(ctx, "vault unlocked", "role", m.role.String())
	return m.role, nil
}

// initialize creates the vault record on first unlock.
func (m *Manager) initialize(ctx context.Context, password, metaKey []byte) (Role, error) {
	fileKey, err := cryptox.GenerateFileKey()
	if err != nil {
		return RoleNone, fmt.Errorf("generate file key: %w", err)
	}

	adminKey := cryptox.DeriveKey(password, []byte(cryptox.SaltAdminKey))
	userKey := cryptox.DeriveKey(password, []byte(cryptox.SaltUserKey))

	adminWrapped, err := cryptox.Seal(adminKey, fileKey)
	if err != nil {
		return RoleNone, fmt.Errorf("wrap file key (admin): %w", err)
	}
	userWrapped, err := cryptox.Seal(userKey, fileKey)
	if err != nil {
		return RoleNone, fmt.Errorf("wrap file key (user): %w", err)
	}

	now := time.Now().UTC()
	meta := &Metadata{Version: 1, CreatedAt: now, UpdatedAt: now}
	meta.Admin.WrappedKey = adminWrapped
	meta.User.WrappedKey = userWrapped

	m.mu.Lock()
	defer m.mu.Unlock()
	m.role = RoleUser
	m.fileKey = fileKey
	m.metaKey = metaKey
	m.meta = meta

	if err := m.persistLocked(ctx); err != nil {
		m.resetLocked()
		return RoleNone, err
	}
	m.log.Info(ctx, "vault created")
	return m.role, nil
}

// VerifyAdmin re-derives the admin key and attempts to unwrap the File Key.
// Success promotes the session to the admin role without altering the active
// File Key; failure returns common.ErrNotAdmin and changes nothing.
func (m *Manager) VerifyAdmin(ctx context.Context, password []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.meta == nil {
		return common.ErrVaultLocked
	}

	adminKey := cryptox.DeriveKey(password, []byte(cryptox.SaltAdminKey))
	fileKey, err := cryptox.Open(adminKey, m.meta.Admin.WrappedKey)
	if err != nil {
		m.log.Warn(ctx, "admin verification failed")
		return common.ErrNotAdmin
	}
	if subtle.ConstantTimeCompare(fileKey, m.fileKey) != 1 {
		return common.ErrNotAdmin
	}

	m.role = RoleAdmin
	m.log.Info(ctx, "session promoted to admin")
	return nil
}

// RotateUserPassword re-wraps the existing File Key under a key derived from
// newPassword and re-seals the vault record under the new user metadata key.
// The File Key itself is not regenerated, so previously encrypted content
// stays decryptable and nothing is re-encrypted. Requires the admin role.
func (m *Manager) RotateUserPassword(ctx context.Context, newPassword []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.meta == nil {
		return common.ErrVaultLocked
	}
	if m.role != RoleAdmin {
		return common.ErrNotAdmin
	}

	newUserKey := cryptox.DeriveKey(newPassword, []byte(cryptox.SaltUserKey))
	wrapped, err := cryptox.Seal(newUserKey, m.fileKey)
	if err != nil {
		return fmt.Errorf("re-wrap file key: %w", err)
	}

	prevWrapped := m.meta.User.WrappedKey
	prevMetaKey := m.metaKey

	m.meta.User.WrappedKey = wrapped
	m.metaKey = cryptox.DeriveKey(newPassword, []byte(cryptox.SaltVaultMeta))

	if err := m.persistLocked(ctx); err != nil {
		m.meta.User.WrappedKey = prevWrapped
		m.metaKey = prevMetaKey
		return err
	}
	m.log.Info(ctx, "user password rotated")
	return nil
}

// SetAdmin records the admin identity on first remote binding. Allowed while
// the vault has no admin yet, or for an admin session.
func (m *Manager) SetAdmin(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.meta == nil {
		return common.ErrVaultLocked
	}
	if m.meta.Admin.Initialized && m.role != RoleAdmin {
		return common.ErrNotAdmin
	}

	m.meta.Admin.Initialized = true
	m.meta.Admin.Email = email
	return m.persistLocked(ctx)
}

// BindDriveRoot stores the remote root folder id. Admin-gated.
func (m *Manager) BindDriveRoot(ctx context.Context, rootID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.meta == nil {
		return common.ErrVaultLocked
	}
	if m.role != RoleAdmin {
		return common.ErrNotAdmin
	}

	m.meta.DriveRootID = rootID
	return m.persistLocked(ctx)
}

// FileKey returns a copy of the resident File Key, or common.ErrVaultLocked
// when no key is in memory.
func (m *Manager) FileKey() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fileKey == nil {
		return nil, common.ErrVaultLocked
	}
	return append([]byte(nil), m.fileKey...), nil
}

// Role returns the current session role.
func (m *Manager) Role() Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// DriveRootID returns the bound remote root folder id, empty when unbound
// or locked.
func (m *Manager) DriveRootID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta == nil {
		return ""
	}
	return m.meta.DriveRootID
}

// AdminInitialized reports whether the vault has a recorded admin.
func (m *Manager) AdminInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta != nil && m.meta.Admin.Initialized
}

// Wipe zeroes all resident key material and drops session state. The
// persisted vault record is untouched.
func (m *Manager) Wipe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Manager) resetLocked() {
	common.WipeByteArray(m.fileKey)
	common.WipeByteArray(m.metaKey)
	m.fileKey = nil
	m.metaKey = nil
	m.meta = nil
	m.role = RoleNone
}

// persistLocked seals and stores the vault record. Caller holds m.mu.
func (m *Manager) persistLocked(ctx context.Context) error {
	m.meta.UpdatedAt = time.Now().UTC()

	plain, err := json.Marshal(m.meta)
	if err != nil {
		return fmt.Errorf("marshal vault record: %w", err)
	}
	sealed, err := cryptox.Seal(m.metaKey, plain)
	if err != nil {
		return fmt.Errorf("seal vault record: %w", err)
	}
	if err := m.store.Put(ctx, storage.KeyVault, sealed); err != nil {
		return fmt.Errorf("persist vault record: %w", err)
	}
	return nil
}

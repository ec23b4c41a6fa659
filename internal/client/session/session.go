// Package session ties the key manager and content cache together into a
// lockable vault session. All gating lives here: content operations require
// an unlocked session, administrative operations require the admin role.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/akulikov/securetext/internal/client/vault"
	"github.com/akulikov/securetext/internal/common"
	"github.com/akulikov/securetext/internal/logging"
)

// lockFlushTimeout bounds the best-effort flush during a lock so a dead
// remote store cannot stall the teardown.
const lockFlushTimeout = 5 * time.Second

type State int

const (
	StateLocked State = iota
	StateUnlocking
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateUnlocking:
		return "unlocking"
	case StateUnlocked:
		return "unlocked"
	default:
		return "locked"
	}
}

// keyManager is the subset of vault.Manager the session drives.
type keyManager interface {
	Unlock(ctx context.Context, password []byte) (vault.Role, error)
	VerifyAdmin(ctx context.Context, password []byte) error
	RotateUserPassword(ctx context.Context, newPassword []byte) error
	SetAdmin(ctx context.Context, email string) error
	BindDriveRoot(ctx context.Context, rootID string) error
	Role() vault.Role
	DriveRootID() string
	AdminInitialized() bool
	Wipe()
}

// contentCache is the subset of cache.Cache the session drives.
type contentCache interface {
	LoadText(ctx context.Context, fileID string) (string, error)
	SaveText(ctx context.Context, fileID, text string) error
	SaveLocal(ctx context.Context, fileID, text string) error
	FlushToDrive(ctx context.Context, fileID string) error
	FlushAll(ctx context.Context) error
	Invalidate(ctx context.Context, fileID string) error
	PurgeDecrypted(ctx context.Context) error
	Dirty() int
}

// Session is the lockable surface over the vault. A session starts locked;
// Unlock derives keys from the password, and Lock (manual or by the
// inactivity timer) flushes pending edits, purges plaintext and wipes keys.
type Session struct {
	keys    keyManager
	cache   contentCache
	log     logging.Logger
	autoLoc time.Duration

	mu    sync.Mutex
	state State
	timer *time.Timer
	// gen invalidates auto-lock timers armed before the latest unlock.
	gen uint64
}

func New(keys keyManager, cc contentCache, log logging.Logger, autoLock time.Duration) *Session {
	return &Session{
		keys:    keys,
		cache:   cc,
		log:     log.With("component", "session"),
		autoLoc: autoLock,
	}
}

// Unlock moves the session to the unlocked state. A concurrent Unlock while
// one is already deriving keys fails fast with ErrUnlockInProgress rather
// than queueing a second key derivation. Unlocking an unlocked session is a
// no-op returning the current role.
func (s *Session) Unlock(ctx context.Context, password []byte) (vault.Role, error) {
	s.mu.Lock()
	switch s.state {
	case StateUnlocking:
		s.mu.Unlock()
		return vault.RoleNone, common.ErrUnlockInProgress
	case StateUnlocked:
		s.touchLocked()
		role := s.keys.Role()
		s.mu.Unlock()
		return role, nil
	}
	s.state = StateUnlocking
	s.mu.Unlock()

	role, err := s.keys.Unlock(ctx, password)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateLocked
		return vault.RoleNone, err
	}
	s.state = StateUnlocked
	s.armTimerLocked()
	s.log.Info(ctx, "unlocked", "role", role.String())
	return role, nil
}

// Elevate re-proves the password against the admin wrapping, promoting the
// session to the admin role without touching resident keys.
func (s *Session) Elevate(ctx context.Context, password []byte) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	if err := s.keys.VerifyAdmin(ctx, password); err != nil {
		return err
	}
	s.Touch()
	s.log.Info(ctx, "elevated to admin")
	return nil
}

// Lock tears the session down: best-effort flush of dirty entries, purge of
// every plaintext copy, then key wipe. Locking a locked session is a no-op.
// The flush is bounded; entries it cannot push remain sealed in the durable
// store and stay dirty for the next unlocked flush.
func (s *Session) Lock(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateLocked {
		s.mu.Unlock()
		return nil
	}
	s.state = StateLocked
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, lockFlushTimeout)
	defer cancel()
	if err := s.cache.FlushAll(fctx); err != nil {
		s.log.Warn(ctx, "flush on lock incomplete, entries stay dirty", "error", err)
	}
	if err := s.cache.PurgeDecrypted(ctx); err != nil {
		s.log.Warn(ctx, "plaintext purge incomplete", "error", err)
	}
	s.keys.Wipe()
	s.log.Info(ctx, "locked")
	return nil
}

// Touch resets the inactivity timer. Every gated operation touches
// implicitly; callers only need it for activity the session cannot see,
// such as keystrokes in an open editor.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

func (s *Session) touchLocked() {
	if s.state != StateUnlocked {
		return
	}
	s.armTimerLocked()
}

func (s *Session) armTimerLocked() {
	if s.autoLoc <= 0 {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.autoLoc, func() {
		s.mu.Lock()
		stale := s.gen != gen || s.state != StateUnlocked
		s.mu.Unlock()
		if stale {
			return
		}
		s.log.Info(context.Background(), "auto-lock after inactivity")
		_ = s.Lock(context.Background())
	})
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Role() vault.Role {
	if s.State() != StateUnlocked {
		return vault.RoleNone
	}
	return s.keys.Role()
}

// Dirty reports pending unpushed edits. Available in any state.
func (s *Session) Dirty() int { return s.cache.Dirty() }

func (s *Session) DriveRootID() string    { return s.keys.DriveRootID() }
func (s *Session) AdminInitialized() bool { return s.keys.AdminInitialized() }

func (s *Session) requireUnlocked() error {
	if s.State() != StateUnlocked {
		return common.ErrVaultLocked
	}
	return nil
}

func (s *Session) requireAdmin() error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	if s.keys.Role() != vault.RoleAdmin {
		return common.ErrNotAdmin
	}
	return nil
}

// Content operations. Each requires an unlocked session and counts as
// activity for the inactivity timer.

func (s *Session) LoadText(ctx context.Context, fileID string) (string, error) {
	if err := s.requireUnlocked(); err != nil {
		return "", err
	}
	s.Touch()
	return s.cache.LoadText(ctx, fileID)
}

func (s *Session) SaveText(ctx context.Context, fileID, text string) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	s.Touch()
	return s.cache.SaveText(ctx, fileID, text)
}

func (s *Session) SaveLocal(ctx context.Context, fileID, text string) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	s.Touch()
	return s.cache.SaveLocal(ctx, fileID, text)
}

func (s *Session) Flush(ctx context.Context, fileID string) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	s.Touch()
	return s.cache.FlushToDrive(ctx, fileID)
}

func (s *Session) FlushAll(ctx context.Context) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	s.Touch()
	return s.cache.FlushAll(ctx)
}

func (s *Session) Invalidate(ctx context.Context, fileID string) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, fileID)
}

// Administrative operations. Each requires the admin role.

// RotateUserPassword re-wraps the File Key under the new user password and
// drops every cached plaintext so nothing decrypted under the old session
// policy lingers.
func (s *Session) RotateUserPassword(ctx context.Context, newPassword []byte) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	s.Touch()
	if err := s.keys.RotateUserPassword(ctx, newPassword); err != nil {
		return err
	}
	if err := s.cache.PurgeDecrypted(ctx); err != nil {
		s.log.Warn(ctx, "plaintext purge after rotation incomplete", "error", err)
	}
	return nil
}

func (s *Session) SetAdmin(ctx context.Context, email string) error {
	if s.keys.AdminInitialized() {
		if err := s.requireAdmin(); err != nil {
			return err
		}
	} else if err := s.requireUnlocked(); err != nil {
		return err
	}
	s.Touch()
	return s.keys.SetAdmin(ctx, email)
}

func (s *Session) BindDriveRoot(ctx context.Context, rootID string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	s.Touch()
	return s.keys.BindDriveRoot(ctx, rootID)
}

// Package sync keeps the client's view of the remote tree current. It never
// moves content bytes itself; on a detected change it notifies the owner,
// which reloads the tree and invalidates cache entries as needed.
package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/akulikov/securetext/internal/client/remote"
	"github.com/akulikov/securetext/internal/logging"
)

// Coordinator polls the remote tree under a root folder and detects
// structural changes by comparing fingerprints. Content changes inside a
// file do not alter the fingerprint; those are covered by the cache's own
// refresh path.
type Coordinator struct {
	remote remote.Store
	log    logging.Logger

	rootID   string
	interval time.Duration
	onChange func(ctx context.Context)

	mu          stdsync.Mutex
	fingerprint string
	refreshing  bool

	started  atomic.Bool
	stop     chan struct{}
	stopOnce stdsync.Once
	done     chan struct{}
}

// NewCoordinator builds a coordinator over the given root folder. onChange
// is invoked from ConditionalRefresh whenever the tree fingerprint moves;
// it may be nil.
func NewCoordinator(rs remote.Store, log logging.Logger, rootID string, interval time.Duration, onChange func(ctx context.Context)) *Coordinator {
	return &Coordinator{
		remote:   rs,
		log:      log.With("component", "sync"),
		rootID:   rootID,
		interval: interval,
		onChange: onChange,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// TreeFingerprint lists the folder tree under the root and reduces it to a
// digest. The digest is stable across listing order and changes whenever a
// node is added, removed, renamed or moved.
func (c *Coordinator) TreeFingerprint(ctx context.Context) (string, error) {
	var lines []string

	var walk func(folderID string) error
	walk = func(folderID string) error {
		nodes, err := c.remote.ListChildren(ctx, folderID)
		if err != nil {
			return fmt.Errorf("list %s: %w", folderID, err)
		}
		for _, n := range nodes {
			kind := "file"
			if n.Folder {
				kind = "folder"
			}
			lines = append(lines, strings.Join([]string{n.ID, n.Name, kind, folderID}, "|"))
			if n.Folder {
				if err := walk(n.ID); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(c.rootID); err != nil {
		return "", err
	}

	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:]), nil
}

// ConditionalRefresh recomputes the tree fingerprint and, if it differs from
// the last known one (or force is set), fires the change callback. The
// stored fingerprint only advances after a fully successful listing, so a
// partial failure never masks a later change.
//
// Returns whether a change was detected.
func (c *Coordinator) ConditionalRefresh(ctx context.Context, force bool) (bool, error) {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return false, nil
	}
	c.refreshing = true
	prev := c.fingerprint
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	fp, err := c.TreeFingerprint(ctx)
	if err != nil {
		return false, err
	}

	changed := fp != prev
	c.mu.Lock()
	c.fingerprint = fp
	c.mu.Unlock()

	if !changed && !force {
		return false, nil
	}

	c.log.Debug(ctx, "tree changed", "fingerprint", fp, "forced", force && !changed)
	if c.onChange != nil {
		c.onChange(ctx)
	}
	return changed, nil
}

// Run polls at the configured interval until the context is cancelled or
// Stop is called. A tick that arrives while a refresh is still in flight is
// skipped. Transient errors are logged and do not stop the loop.
func (c *Coordinator) Run(ctx context.Context) {
	c.started.Store(true)
	defer close(c.done)

	if c.interval <= 0 {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if _, err := c.ConditionalRefresh(ctx, false); err != nil {
				c.log.Warn(ctx, "periodic refresh failed", "error", err)
			}
		}
	}
}

// Stop ends the poll loop and waits for it to exit. Safe to call more than
// once; without a prior Run it returns immediately.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	if !c.started.Load() {
		return
	}
	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
}

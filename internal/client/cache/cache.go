// Package cache implements the three-tier content cache at the heart of the
// SecureText client: an in-memory layer, the durable local store, and the
// authoritative remote store, mediated for every content read and write.
//
// Tier order on a load: in-flight de-dup → memory decrypted → durable
// decrypted → memory encrypted → durable encrypted → remote. Every lower hit
// backfills all faster tiers, so subsequent loads of the same id are served
// from memory.
//
// Staleness policy: a cache hit schedules an opportunistic background
// refresh from the remote store. The value returned by LoadText is always
// the cache's view at call time; the refresh only affects future calls and
// never mutates an already-returned string.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/akulikov/securetext/internal/client/remote"
	"github.com/akulikov/securetext/internal/client/storage"
	"github.com/akulikov/securetext/internal/common"
	"github.com/akulikov/securetext/internal/cryptox"
	"github.com/akulikov/securetext/internal/logging"
)

// DecryptPolicy controls what happens when a durable or remote blob of
// viable length fails to authenticate. Blobs below cryptox.MinBlobSize are
// always treated as legacy-empty content regardless of policy: pre-existing
// placeholder files decrypt to an empty document instead of failing a load.
type DecryptPolicy int

const (
	// DecryptStrict propagates common.ErrDecryptFailed. Default.
	DecryptStrict DecryptPolicy = iota

	// DecryptLenient collapses the failure to empty text, logged. Matches
	// the tolerant behavior of early vault versions; note it cannot tell a
	// wrong key from corrupted data.
	DecryptLenient
)

// KeyProvider supplies the active File Key. Returns common.ErrVaultLocked
// when no key is resident.
type KeyProvider interface {
	FileKey() ([]byte, error)
}

// Options tune cache policy.
type Options struct {
	DecryptPolicy DecryptPolicy

	// BackgroundRefresh enables the opportunistic re-fetch after cache
	// hits.
	BackgroundRefresh bool
}

// Cache mediates every read/write of file content across the three tiers.
type Cache struct {
	durable storage.DurableStore
	remote  remote.Store
	keys    KeyProvider
	log     logging.Logger
	opts    Options

	mu     sync.Mutex
	memEnc map[string][]byte
	memDec map[string]string
	dirty  map[string]struct{}
	// gen counts local edits per id, so a completing push can tell whether
	// the entry it snapshotted is still the latest one.
	gen map[string]uint64

	flight singleflight.Group

	// bgWait lets Close and tests wait for in-flight background refreshes.
	bgWait sync.WaitGroup
}

func New(durable storage.DurableStore, rs remote.Store, keys KeyProvider, log logging.Logger, opts Options) *Cache {
	return &Cache{
		durable: durable,
		remote:  rs,
		keys:    keys,
		log:     log.With("component", "cache"),
		opts:    opts,
		memEnc:  make(map[string][]byte),
		memDec:  make(map[string]string),
		dirty:   make(map[string]struct{}),
		gen:     make(map[string]uint64),
	}
}

// LoadText resolves a document by file id through the cache tiers.
//
// Concurrent calls for the same id share a single cold load: at most one
// fetch/decrypt sequence runs per id, and every caller receives the
// identical result.
func (c *Cache) LoadText(ctx context.Context, fileID string) (string, error) {
	c.mu.Lock()
	if text, ok := c.memDec[fileID]; ok {
		c.mu.Unlock()
		c.log.Debug(ctx, "hit", "tier", "mem-dec", "file_id", fileID)
		c.refreshInBackground(fileID)
		return text, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(fileID, func() (any, error) {
		return c.loadCold(ctx, fileID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// loadCold walks the slower tiers. Runs at most once concurrently per id.
func (c *Cache) loadCold(ctx context.Context, fileID string) (string, error) {
	// Another caller may have populated memory while we queued.
	c.mu.Lock()
	if text, ok := c.memDec[fileID]; ok {
		c.mu.Unlock()
		return text, nil
	}
	memBlob, memHit := c.memEnc[fileID]
	c.mu.Unlock()

	// durable decrypted
	if dec, err := c.durable.Get(ctx, storage.DecKey(fileID)); err == nil {
		c.log.Debug(ctx, "hit", "tier", "durable-dec", "file_id", fileID)
		text := string(dec)
		c.mu.Lock()
		c.memDec[fileID] = text
		c.mu.Unlock()
		c.refreshInBackground(fileID)
		return text, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return "", fmt.Errorf("durable read: %w", err)
	}

	// memory encrypted
	if memHit {
		c.log.Debug(ctx, "hit", "tier", "mem-enc", "file_id", fileID)
		text, err := c.decryptBlob(ctx, fileID, memBlob)
		if err != nil {
			return "", err
		}
		c.backfillDecrypted(ctx, fileID, text)
		c.refreshInBackground(fileID)
		return text, nil
	}

	// durable encrypted
	if blob, err := c.durable.Get(ctx, storage.EncKey(fileID)); err == nil {
		c.log.Debug(ctx, "hit", "tier", "durable-enc", "file_id", fileID)
		text, err := c.decryptBlob(ctx, fileID, blob)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.memEnc[fileID] = blob
		c.mu.Unlock()
		c.backfillDecrypted(ctx, fileID, text)
		c.refreshInBackground(fileID)
		return text, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return "", fmt.Errorf("durable read: %w", err)
	}

	// cold: remote store
	c.log.Debug(ctx, "miss", "file_id", fileID)
	blob, err := c.remote.LoadBytes(ctx, fileID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.memEnc[fileID] = blob
	c.mu.Unlock()
	if err := c.durable.Put(ctx, storage.EncKey(fileID), blob); err != nil {
		c.log.Warn(ctx, "durable backfill failed", "file_id", fileID, "error", err)
	}

	text, err := c.decryptBlob(ctx, fileID, blob)
	if err != nil {
		return "", err
	}
	c.backfillDecrypted(ctx, fileID, text)
	return text, nil
}

// SaveText writes the document locally and pushes it to the remote store.
// The local write (memory + durable) always completes before the push, so a
// reload immediately after SaveText observes the new text even if the remote
// store is unreachable; a failed push leaves the entry dirty for the next
// flush and returns the error.
func (c *Cache) SaveText(ctx context.Context, fileID, text string) error {
	if err := c.SaveLocal(ctx, fileID, text); err != nil {
		return err
	}
	return c.FlushToDrive(ctx, fileID)
}

// SaveLocal writes the document to memory and the durable store only and
// marks the entry dirty. The remote copy is updated by a later flush.
func (c *Cache) SaveLocal(ctx context.Context, fileID, text string) error {
	key, err := c.keys.FileKey()
	if err != nil {
		return err
	}
	blob, err := cryptox.Seal(key, []byte(text))
	if err != nil {
		return fmt.Errorf("encrypt content: %w", err)
	}

	c.mu.Lock()
	c.memDec[fileID] = text
	c.memEnc[fileID] = blob
	c.dirty[fileID] = struct{}{}
	c.gen[fileID]++
	c.mu.Unlock()

	if err := c.durable.Put(ctx, storage.EncKey(fileID), blob); err != nil {
		return fmt.Errorf("durable write: %w", err)
	}
	if err := c.durable.Put(ctx, storage.DecKey(fileID), []byte(text)); err != nil {
		return fmt.Errorf("durable write: %w", err)
	}
	c.log.Debug(ctx, "saved locally", "file_id", fileID)
	return nil
}

// FlushToDrive pushes one entry's encrypted bytes to the remote store. A
// clean entry is a no-op. On failure the entry stays dirty; the next flush
// retries. The dirty mark is only cleared when no new edit landed while the
// push was in flight, so a concurrent SaveLocal can never be dropped.
func (c *Cache) FlushToDrive(ctx context.Context, fileID string) error {
	c.mu.Lock()
	_, isDirty := c.dirty[fileID]
	blob, ok := c.memEnc[fileID]
	gen := c.gen[fileID]
	c.mu.Unlock()

	if !isDirty || !ok {
		return nil
	}

	if err := c.remote.SaveBytes(ctx, fileID, blob); err != nil {
		return fmt.Errorf("push %s: %w", fileID, err)
	}

	c.mu.Lock()
	if c.gen[fileID] == gen {
		delete(c.dirty, fileID)
	}
	c.mu.Unlock()
	c.log.Debug(ctx, "pushed", "file_id", fileID)
	return nil
}

// FlushAll pushes every dirty entry, iterating a snapshot of the dirty set
// taken at call time; entries dirtied during the flush are covered by the
// next one. Safe to call with nothing pending. Failed entries stay dirty,
// nothing is silently dropped.
func (c *Cache) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := c.FlushToDrive(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dirty reports how many entries await a push.
func (c *Cache) Dirty() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}

// Invalidate purges all cached state for a file id: memory, dirty mark,
// in-flight load, and both durable entries. The next LoadText goes cold to
// the remote store. Used after a trash or a detected external mutation.
func (c *Cache) Invalidate(ctx context.Context, fileID string) error {
	c.mu.Lock()
	delete(c.memEnc, fileID)
	delete(c.memDec, fileID)
	delete(c.dirty, fileID)
	delete(c.gen, fileID)
	c.mu.Unlock()
	c.flight.Forget(fileID)

	if err := c.durable.Delete(ctx, storage.EncKey(fileID)); err != nil {
		return fmt.Errorf("invalidate %s: %w", fileID, err)
	}
	if err := c.durable.Delete(ctx, storage.DecKey(fileID)); err != nil {
		return fmt.Errorf("invalidate %s: %w", fileID, err)
	}
	c.log.Debug(ctx, "invalidated", "file_id", fileID)
	return nil
}

// PurgeDecrypted removes every plaintext copy: the decrypted memory tier
// and all durable plaintext entries. Sealed bytes, dirty marks and the
// encrypted memory tier survive, so pending pushes are never lost. Called
// on lock and on password rotation.
func (c *Cache) PurgeDecrypted(ctx context.Context) error {
	c.mu.Lock()
	c.memDec = make(map[string]string)
	c.mu.Unlock()

	keys, err := c.durable.Keys(ctx, storage.PrefixDec)
	if err != nil {
		return fmt.Errorf("list plaintext entries: %w", err)
	}
	var errs []error
	for _, k := range keys {
		if err := c.durable.Delete(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResetMemory drops all in-memory state, including dirty marks. Durable and
// remote tiers are untouched.
func (c *Cache) ResetMemory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memEnc = make(map[string][]byte)
	c.memDec = make(map[string]string)
	c.dirty = make(map[string]struct{})
	c.gen = make(map[string]uint64)
}

// Wait blocks until pending background refreshes finish. Intended for
// teardown and tests.
func (c *Cache) Wait() { c.bgWait.Wait() }

// decryptBlob applies the cache-layer decryption policy: sub-minimum blobs
// are legacy-empty content, longer failures follow Options.DecryptPolicy.
func (c *Cache) decryptBlob(ctx context.Context, fileID string, blob []byte) (string, error) {
	key, err := c.keys.FileKey()
	if err != nil {
		return "", err
	}

	if len(blob) < cryptox.MinBlobSize {
		c.log.Warn(ctx, "legacy or empty blob, treating as empty document",
			"file_id", fileID, "size", len(blob))
		return "", nil
	}

	plain, err := cryptox.Open(key, blob)
	if err != nil {
		if c.opts.DecryptPolicy == DecryptLenient {
			c.log.Warn(ctx, "undecryptable blob collapsed to empty document",
				"file_id", fileID, "error", err)
			return "", nil
		}
		return "", err
	}
	return string(plain), nil
}

// backfillDecrypted stores decrypted text into memory and the durable
// plaintext cache.
func (c *Cache) backfillDecrypted(ctx context.Context, fileID, text string) {
	c.mu.Lock()
	c.memDec[fileID] = text
	c.mu.Unlock()
	if err := c.durable.Put(ctx, storage.DecKey(fileID), []byte(text)); err != nil {
		c.log.Warn(ctx, "durable backfill failed", "file_id", fileID, "error", err)
	}
}

// refreshInBackground re-fetches a file from the remote store after a cache
// hit, silently updating all tiers for future calls. Skipped for dirty
// entries, where a pending local edit must not be clobbered by a stale
// remote copy. Errors are swallowed: a flaky connection never interrupts
// editing.
func (c *Cache) refreshInBackground(fileID string) {
	if !c.opts.BackgroundRefresh {
		return
	}

	c.mu.Lock()
	_, isDirty := c.dirty[fileID]
	c.mu.Unlock()
	if isDirty {
		return
	}

	c.bgWait.Add(1)
	go func() {
		defer c.bgWait.Done()
		ctx := context.Background()

		blob, err := c.remote.LoadBytes(ctx, fileID)
		if err != nil {
			c.log.Debug(ctx, "background refresh failed", "file_id", fileID, "error", err)
			return
		}
		text, err := c.decryptBlob(ctx, fileID, blob)
		if err != nil {
			c.log.Debug(ctx, "background refresh undecryptable", "file_id", fileID, "error", err)
			return
		}

		c.mu.Lock()
		// Re-check: an edit may have landed while the fetch was in flight.
		if _, isDirty := c.dirty[fileID]; isDirty {
			c.mu.Unlock()
			return
		}
		c.memEnc[fileID] = blob
		c.memDec[fileID] = text
		c.mu.Unlock()

		if err := c.durable.Put(ctx, storage.EncKey(fileID), blob); err == nil {
			_ = c.durable.Put(ctx, storage.DecKey(fileID), []byte(text))
		}
		c.log.Debug(ctx, "background refresh", "file_id", fileID)
	}()
}

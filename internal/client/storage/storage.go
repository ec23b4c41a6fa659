// Package storage defines the durable local tier of the SecureText vault: a
// thin transactional key→value contract plus bbolt-backed and in-memory
// implementations.
//
// Keys are namespaced strings: "vault" for the encrypted vault record,
// "enc:<fileId>" for encrypted content blobs, "dec:<fileId>" for the
// plaintext cache (a deliberate offline-availability tradeoff, purged on
// lock). Values are arbitrary bytes; binary blobs and UTF-8 text are stored
// interchangeably under distinct keys.
package storage

import "context"

// Key namespace prefixes and well-known keys.
const (
	KeyVault  = "vault"
	PrefixEnc = "enc:"
	PrefixDec = "dec:"
)

// EncKey returns the durable-store key for a file's encrypted blob.
func EncKey(fileID string) string { return PrefixEnc + fileID }

// DecKey returns the durable-store key for a file's decrypted text.
func DecKey(fileID string) string { return PrefixDec + fileID }

// DurableStore is the local persistence contract consumed by the cache and
// key manager. Get returns common.ErrNotFound when the key is absent.
type DurableStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Keys lists every stored key with the given prefix. Used by the
	// lock-time purge of plaintext cache entries.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

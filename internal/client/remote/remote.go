// Package remote defines the authoritative remote tier of the SecureText
// vault: an opaque blob host addressed by node id. Content bytes are always
// the codec's sealed blobs; the remote store never sees plaintext or key
// material.
//
// Two implementations are provided: Drive, a JSON gateway client over HTTP,
// and S3Store, an S3-compatible object store.
package remote

import "context"

// Node identifies a remote file or folder. A node id, once assigned by the
// remote store, is immutable and is the sole cache key for its content.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Folder   bool   `json:"folder"`
	ParentID string `json:"parentId,omitempty"`
}

// Store is the remote blob host contract consumed by the content cache and
// sync coordinator.
//
// Error mapping: authentication failures surface as
// common.ErrNotAuthenticated, a missing node as common.ErrNotFound, and
// transport or server faults as common.ErrRemoteUnavailable.
type Store interface {
	// EnsureRootFolder returns the id of the named root folder, creating it
	// if absent. Idempotent.
	EnsureRootFolder(ctx context.Context, name string) (string, error)

	ListChildren(ctx context.Context, folderID string) ([]Node, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	CreateFile(ctx context.Context, name, parentID string) (string, error)
	Rename(ctx context.Context, id, newName string) error

	// Trash soft-deletes a node. Hard deletion is out of scope.
	Trash(ctx context.Context, id string) error

	LoadBytes(ctx context.Context, id string) ([]byte, error)
	SaveBytes(ctx context.Context, id string, data []byte) error
}

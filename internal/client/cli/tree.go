package cli

import (
	"context"
	"fmt"

	"github.com/akulikov/securetext/internal/client/vault"
	"github.com/akulikov/securetext/internal/common"
)

// Ls lists the children of a folder, defaulting to the vault root.
func (a *App) Ls(ctx context.Context, folderID string) error {
	if !a.isUnlocked() {
		return common.ErrVaultLocked
	}
	if folderID == "" {
		folderID = a.rootID
	}

	nodes, err := a.remote.ListChildren(ctx, folderID)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		kind := "file"
		if n.Folder {
			kind = "dir "
		}
		printlnFn(fmt.Sprintf("%s  %-36s  %s", kind, n.ID, n.Name))
	}
	return nil
}

// Mkdir creates a folder under the given parent, defaulting to the root.
func (a *App) Mkdir(ctx context.Context, name, parentID string) error {
	if !a.isUnlocked() {
		return common.ErrVaultLocked
	}
	if parentID == "" {
		parentID = a.rootID
	}
	id, err := a.remote.CreateFolder(ctx, name, parentID)
	if err != nil {
		return err
	}
	printlnFn("Created folder", id)
	return nil
}

// NewFile creates an empty file node under the given parent, defaulting to
// the root. Content is written with a subsequent save.
func (a *App) NewFile(ctx context.Context, name, parentID string) error {
	if !a.isUnlocked() {
		return common.ErrVaultLocked
	}
	if parentID == "" {
		parentID = a.rootID
	}
	id, err := a.remote.CreateFile(ctx, name, parentID)
	if err != nil {
		return err
	}
	printlnFn("Created file", id)
	return nil
}

// Rename renames a node. The node id, and with it all cached content, is
// unaffected.
func (a *App) Rename(ctx context.Context, id, newName string) error {
	if !a.isUnlocked() {
		return common.ErrVaultLocked
	}
	if err := a.remote.Rename(ctx, id, newName); err != nil {
		return err
	}
	printlnFn("Renamed")
	return nil
}

// Trash soft-deletes a node and drops every cached copy of its content.
// Destructive, so it requires the admin role.
func (a *App) Trash(ctx context.Context, id string) error {
	if !a.isUnlocked() {
		return common.ErrVaultLocked
	}
	if a.session.Role() != vault.RoleAdmin {
		return common.ErrNotAdmin
	}
	if err := a.remote.Trash(ctx, id); err != nil {
		return err
	}
	if err := a.session.Invalidate(ctx, id); err != nil {
		a.log.Warn(ctx, "cache invalidation after trash failed", "file_id", id, "error", err)
	}
	printlnFn("Trashed")
	return nil
}

// Sync forces a tree refresh regardless of the fingerprint.
func (a *App) Sync(ctx context.Context) error {
	if !a.isUnlocked() {
		return common.ErrVaultLocked
	}
	if a.coord == nil {
		printlnFn("Sync disabled")
		return nil
	}
	changed, err := a.coord.ConditionalRefresh(ctx, true)
	if err != nil {
		return err
	}
	if changed {
		printlnFn("Tree changed")
	} else {
		printlnFn("Up to date")
	}
	return nil
}

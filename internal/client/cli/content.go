package cli

import (
	"context"
	"os"
)

// Open loads a document by node id and prints it.
func (a *App) Open(ctx context.Context, id string) error {
	text, err := a.session.LoadText(ctx, id)
	if err != nil {
		return err
	}
	printlnFn(text)
	return nil
}

// Save reads a new document body and writes it through to the remote store.
func (a *App) Save(ctx context.Context, id string) error {
	text, err := getMultiline(a.reader, "New content for "+id, os.Stdout)
	if err != nil {
		return err
	}
	if err := a.session.SaveText(ctx, id, text); err != nil {
		return err
	}
	printlnFn("Saved")
	return nil
}

// SaveLocal reads a new document body and stores it locally only, leaving
// the entry dirty for a later flush. Useful when working offline.
func (a *App) SaveLocal(ctx context.Context, id string) error {
	text, err := getMultiline(a.reader, "New content for "+id, os.Stdout)
	if err != nil {
		return err
	}
	if err := a.session.SaveLocal(ctx, id, text); err != nil {
		return err
	}
	printlnFn("Saved locally,", a.session.Dirty(), "unsynced")
	return nil
}

// Flush pushes every dirty entry to the remote store.
func (a *App) Flush(ctx context.Context) error {
	if err := a.session.FlushAll(ctx); err != nil {
		return err
	}
	printlnFn("All entries pushed")
	return nil
}

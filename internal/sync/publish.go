package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/JohanCodinha/blsync/internal/logger"
	"github.com/JohanCodinha/blsync/internal/remote"
)

// Publish creates a remote list holding the current local entries and
// records its credentials. The returned write secret is the only copy the
// user will ever see besides the local store.
func (e *Engine) Publish(ctx context.Context, name, description string) (remote.Created, error) {
	if _, _, ok, err := e.store.PublishedList(ctx); err != nil {
		return remote.Created{}, err
	} else if ok {
		return remote.Created{}, ErrAlreadyPublished
	}

	start := e.now().UnixMilli()
	local, err := e.store.Lists(ctx)
	if err != nil {
		return remote.Created{}, err
	}

	created, err := e.remote.Create(ctx, remote.CreateRequest{
		Name:        name,
		Description: description,
		Subjects:    local.Subjects,
		Items:       local.Items,
	})
	if err != nil {
		return remote.Created{}, &SyncError{Op: "create", Err: err}
	}

	if err := e.store.SetPublishedList(ctx, created.ID, created.WriteSecret); err != nil {
		return remote.Created{}, fmt.Errorf("list %s was created but could not be saved locally (secret %s): %w",
			created.ID, created.WriteSecret, err)
	}
	if err := e.store.SetLastSuccessfulSync(ctx, start); err != nil {
		return remote.Created{}, err
	}

	logger.Info("sync: published list %s (%d subjects, %d items)", created.ID, len(local.Subjects), len(local.Items))
	return created, nil
}

// Link attaches this device to an existing personal list. The checkpoint is
// reset so the first cycle merges local entries with the remote ones.
func (e *Engine) Link(ctx context.Context, listID, writeSecret string) error {
	listID = strings.TrimSpace(listID)
	if listID == "" || writeSecret == "" {
		return fmt.Errorf("list id and write secret are required")
	}
	if _, _, ok, err := e.store.PublishedList(ctx); err != nil {
		return err
	} else if ok {
		return ErrAlreadyPublished
	}

	if _, err := e.remote.Fetch(ctx, listID); err != nil {
		return &SyncError{Op: "fetch", ListID: listID, Err: err}
	}

	if err := e.store.SetPublishedList(ctx, listID, writeSecret); err != nil {
		return err
	}
	if err := e.store.ClearLastSuccessfulSync(ctx); err != nil {
		return err
	}

	logger.Info("sync: linked to list %s", listID)
	return nil
}

// Unlink forgets the personal list credentials and the checkpoint. Local
// entries are kept.
func (e *Engine) Unlink(ctx context.Context) error {
	listID, _, ok, err := e.store.PublishedList(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPublished
	}

	if err := e.store.ClearPublishedList(ctx); err != nil {
		return err
	}
	if err := e.store.ClearLastSuccessfulSync(ctx); err != nil {
		return err
	}

	logger.Info("sync: unlinked from list %s", listID)
	return nil
}

// Package sync reconciles the local blacklist with its remote copy and
// schedules sync cycles.
package sync

import (
	"context"
	"time"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/JohanCodinha/blsync/internal/logger"
	"github.com/JohanCodinha/blsync/internal/remote"
	"github.com/JohanCodinha/blsync/internal/store"
)

// Remote is the subset of the list service used by sync.
type Remote interface {
	Create(ctx context.Context, r remote.CreateRequest) (remote.Created, error)
	Fetch(ctx context.Context, id string) (*remote.List, error)
	Update(ctx context.Context, id, writeSecret string, u remote.ListUpdate) (remote.UpdateResult, error)
}

// Direction is the branch a bidirectional cycle took.
type Direction string

const (
	// DirectionNone means neither side changed.
	DirectionNone Direction = "none"
	// DirectionMerge means both sides changed and were merged.
	DirectionMerge Direction = "merge"
	// DirectionDownload means only the remote changed.
	DirectionDownload Direction = "download"
	// DirectionUpload means only the local store changed.
	DirectionUpload Direction = "upload"
)

// Result summarizes a sync cycle.
type Result struct {
	Subjects  int       // local subject count after the cycle
	Items     int       // local item count after the cycle
	Direction Direction // empty when no personal list is configured
	Skipped   bool      // another cycle held the gate
}

// Engine performs bidirectional syncs of the personal list.
type Engine struct {
	store  *store.DB
	remote Remote
	lookup *blacklist.Lookup
	now    func() time.Time
}

// NewEngine creates a sync engine. lookup may be nil when no filtering layer
// consumes the sets (for example one-shot CLI commands).
func NewEngine(db *store.DB, client Remote, lookup *blacklist.Lookup) *Engine {
	if lookup == nil {
		lookup = blacklist.NewLookup()
	}
	return &Engine{
		store:  db,
		remote: client,
		lookup: lookup,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Lookup returns the lookup sets refreshed by the engine.
func (e *Engine) Lookup() *blacklist.Lookup {
	return e.lookup
}

// Bidirectional reconciles the local store with remote list listID.
//
// Nothing local is touched before the remote fetch succeeds. In the merge
// branch the local store is replaced before the push: if the push then
// fails, local holds the merged state, the checkpoint is not advanced, and
// the next cycle merges and pushes again.
//
// Callers must hold the sync gate.
func (e *Engine) Bidirectional(ctx context.Context, listID, writeSecret string) (Result, error) {
	logger.Debug("sync: starting bidirectional sync of %s", listID)

	// Local changes stamped after this instant are left for the next cycle.
	cycleStart := e.now().UnixMilli()

	remoteList, err := e.remote.Fetch(ctx, listID)
	if err != nil {
		return Result{}, &SyncError{Op: "fetch", ListID: listID, Err: err}
	}

	remoteLists := blacklist.Lists{
		Subjects: blacklist.Normalize(remoteList.Subjects, cycleStart),
		Items:    blacklist.Normalize(remoteList.Items, cycleStart),
	}

	local, err := e.store.Lists(ctx)
	if err != nil {
		return Result{}, &SyncError{Op: "store", ListID: listID, Err: err}
	}

	lastSync, hasLastSync, err := e.store.LastSuccessfulSync(ctx)
	if err != nil {
		return Result{}, &SyncError{Op: "store", ListID: listID, Err: err}
	}
	lastLocal, hasLastLocal, err := e.store.LastLocalChange(ctx)
	if err != nil {
		return Result{}, &SyncError{Op: "store", ListID: listID, Err: err}
	}

	remoteChanged := !hasLastSync || remoteList.UpdatedAt > lastSync
	localChanged := hasLastLocal && (!hasLastSync || lastLocal > lastSync)

	logger.Debug("sync: %s remoteChanged=%v (updatedAt %d) localChanged=%v (lastLocal %d, lastSync %d)",
		listID, remoteChanged, remoteList.UpdatedAt, localChanged, lastLocal, lastSync)

	var final blacklist.Lists
	var direction Direction

	switch {
	case remoteChanged && localChanged:
		direction = DirectionMerge
		final = blacklist.Lists{
			Subjects: blacklist.Merge(local.Subjects, remoteLists.Subjects),
			Items:    blacklist.Merge(local.Items, remoteLists.Items),
		}
		if err := e.replaceLocal(ctx, final); err != nil {
			return Result{}, &SyncError{Op: "store", ListID: listID, Err: err}
		}
		if err := e.push(ctx, listID, writeSecret, final); err != nil {
			e.refreshLookup(final)
			return Result{}, &SyncError{Op: "push", ListID: listID, Err: err}
		}
		logger.Info("sync: merged %s (%d subjects, %d items)", listID, len(final.Subjects), len(final.Items))

	case remoteChanged:
		direction = DirectionDownload
		final = remoteLists
		if err := e.replaceLocal(ctx, final); err != nil {
			return Result{}, &SyncError{Op: "store", ListID: listID, Err: err}
		}
		logger.Info("sync: downloaded %s (%d subjects, %d items)", listID, len(final.Subjects), len(final.Items))

	case localChanged:
		direction = DirectionUpload
		final = local
		if err := e.push(ctx, listID, writeSecret, final); err != nil {
			return Result{}, &SyncError{Op: "push", ListID: listID, Err: err}
		}
		logger.Info("sync: uploaded %s (%d subjects, %d items)", listID, len(final.Subjects), len(final.Items))

	default:
		direction = DirectionNone
		final = local
		logger.Debug("sync: %s already in sync", listID)
	}

	if direction != DirectionNone {
		// The cycle start, not the end: an edit landing during the push
		// must still count as a local change. Our own upload then shows up
		// as one content-equal download on the next cycle.
		if err := e.store.SetLastSuccessfulSync(ctx, cycleStart); err != nil {
			return Result{}, &SyncError{Op: "store", ListID: listID, Err: err}
		}
	}

	e.refreshLookup(final)

	return Result{
		Subjects:  len(final.Subjects),
		Items:     len(final.Items),
		Direction: direction,
	}, nil
}

// RefreshLocal reloads the personal lookup layer from the local store.
// It is used when no personal list is configured.
func (e *Engine) RefreshLocal(ctx context.Context) (Result, error) {
	local, err := e.store.Lists(ctx)
	if err != nil {
		return Result{}, &SyncError{Op: "store", Err: err}
	}
	e.refreshLookup(local)
	return Result{Subjects: len(local.Subjects), Items: len(local.Items)}, nil
}

func (e *Engine) replaceLocal(ctx context.Context, lists blacklist.Lists) error {
	for _, p := range blacklist.Partitions {
		if err := e.store.Replace(ctx, p, lists.Get(p)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) push(ctx context.Context, listID, writeSecret string, lists blacklist.Lists) error {
	_, err := e.remote.Update(ctx, listID, writeSecret, remote.ListUpdate{
		Subjects: lists.Subjects,
		Items:    lists.Items,
	})
	return err
}

func (e *Engine) refreshLookup(lists blacklist.Lists) {
	e.lookup.SetPersonal(lists.Subjects, lists.Items)
}

package sync

import (
	"context"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/JohanCodinha/blsync/internal/store"
)

// Status is a snapshot of the local sync state.
type Status struct {
	ListID             string
	LastLocalChange    *int64
	LastSuccessfulSync *int64
	Pending            bool // local changes not yet synced
	Subjects           int
	Items              int
	Subscriptions      []blacklist.Subscription
}

// ReadStatus collects the sync state from the local store. It makes no
// network calls.
func ReadStatus(ctx context.Context, db *store.DB) (Status, error) {
	var st Status

	id, _, ok, err := db.PublishedList(ctx)
	if err != nil {
		return st, err
	}
	if ok {
		st.ListID = id
	}

	if at, ok, err := db.LastLocalChange(ctx); err != nil {
		return st, err
	} else if ok {
		st.LastLocalChange = &at
	}
	if at, ok, err := db.LastSuccessfulSync(ctx); err != nil {
		return st, err
	} else if ok {
		st.LastSuccessfulSync = &at
	}
	st.Pending = st.LastLocalChange != nil &&
		(st.LastSuccessfulSync == nil || *st.LastLocalChange > *st.LastSuccessfulSync)

	if st.Subjects, err = db.Count(ctx, blacklist.Subjects); err != nil {
		return st, err
	}
	if st.Items, err = db.Count(ctx, blacklist.Items); err != nil {
		return st, err
	}
	if st.Subscriptions, err = db.Subscriptions(ctx); err != nil {
		return st, err
	}

	return st, nil
}

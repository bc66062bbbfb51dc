package store

import (
	"context"
	"testing"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeta_SetGetDelete(t *testing.T) {
	db, cleanup := createTestDB(t)
	defer cleanup()
	ctx := context.Background()

	v, err := db.GetMeta(ctx, "absent")
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, db.SetMeta(ctx, "k", []byte("old")))
	require.NoError(t, db.SetMeta(ctx, "k", []byte("new")))

	v, err = db.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)

	require.NoError(t, db.DeleteMeta(ctx, "k"))
	require.NoError(t, db.DeleteMeta(ctx, "k"), "delete is idempotent")

	v, err = db.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPublishedList(t *testing.T) {
	db, cleanup := createTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, _, ok, err := db.PublishedList(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SetPublishedList(ctx, "list-1", "secret-1"))

	id, secret, ok, err := db.PublishedList(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "list-1", id)
	assert.Equal(t, "secret-1", secret)

	require.NoError(t, db.ClearPublishedList(ctx))
	_, _, ok, err = db.PublishedList(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubscriptions_RoundTrip(t *testing.T) {
	db, cleanup := createTestDB(t)
	defer cleanup()
	ctx := context.Background()

	subs, err := db.Subscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)

	synced := int64(1234)
	in := []blacklist.Subscription{
		{ID: "a", Name: "Scammers", Enabled: true, LastSynced: &synced},
		{ID: "b", Name: "Spam", Enabled: false},
	}
	require.NoError(t, db.SetSubscriptions(ctx, in))

	out, err := db.Subscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSubscriptions_CorruptValue(t *testing.T) {
	db, cleanup := createTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, db.SetMeta(ctx, keySubscriptions, []byte("{not json")))

	_, err := db.Subscriptions(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode subscriptions")
}

func TestMarkLocalChange_OnlyMovesForward(t *testing.T) {
	db, cleanup := createTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, ok, err := db.LastLocalChange(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.MarkLocalChange(ctx, 500))
	require.NoError(t, db.MarkLocalChange(ctx, 300))

	at, ok, err := db.LastLocalChange(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(500), at)

	require.NoError(t, db.MarkLocalChange(ctx, 1500))
	at, _, _ = db.LastLocalChange(ctx)
	assert.Equal(t, int64(1500), at)
}

func TestLastSuccessfulSync(t *testing.T) {
	db, cleanup := createTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, ok, err := db.LastSuccessfulSync(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SetLastSuccessfulSync(ctx, 400))
	at, ok, err := db.LastSuccessfulSync(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(400), at)

	require.NoError(t, db.ClearLastSuccessfulSync(ctx))
	_, ok, err = db.LastSuccessfulSync(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetInt_InvalidValue(t *testing.T) {
	db, cleanup := createTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, db.SetMeta(ctx, keyLastSuccessfulSync, []byte("yesterday")))

	_, _, err := db.LastSuccessfulSync(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid metadata[last_successful_sync]")
}

func TestSubscriptionEntries(t *testing.T) {
	db, cleanup := createTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, ok, err := db.SubscriptionEntries(ctx, "sub-1")
	require.NoError(t, err)
	assert.False(t, ok)

	lists := blacklist.Lists{
		Subjects: []blacklist.Entry{{ID: "s1", AddedAt: 1}},
		Items:    []blacklist.Entry{},
	}
	require.NoError(t, db.SetSubscriptionEntries(ctx, "sub-1", lists))

	got, ok, err := db.SubscriptionEntries(ctx, "sub-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, lists, got)

	require.NoError(t, db.DeleteSubscriptionEntries(ctx, "sub-1"))
	_, ok, err = db.SubscriptionEntries(ctx, "sub-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

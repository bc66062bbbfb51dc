package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/JohanCodinha/blsync/internal/blacklist"
)

// Metadata keys.
const (
	keyListID             = "published_list_id"
	keyListSecret         = "published_list_secret"
	keySubscriptions      = "subscriptions"
	keyLastLocalChange    = "last_local_change"
	keyLastSuccessfulSync = "last_successful_sync"

	subscriptionEntriesPrefix = "subscription_entries:"
)

// GetMeta returns the raw value stored under key, or (nil, nil) if absent.
func (db *DB) GetMeta(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

// SetMeta stores value under key, replacing any previous value.
func (db *DB) SetMeta(ctx context.Context, key string, value []byte) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

// DeleteMeta removes key. Deleting a missing key is not an error.
func (db *DB) DeleteMeta(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

func (db *DB) getInt(ctx context.Context, key string) (int64, bool, error) {
	raw, err := db.GetMeta(ctx, key)
	if err != nil || raw == nil {
		return 0, false, err
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid metadata[%s] %q: %w", key, raw, err)
	}
	return v, true, nil
}

func (db *DB) setInt(ctx context.Context, key string, v int64) error {
	return db.SetMeta(ctx, key, []byte(strconv.FormatInt(v, 10)))
}

// PublishedList returns the credentials of the personal remote list.
// ok is false when no list has been published or linked.
func (db *DB) PublishedList(ctx context.Context) (id, writeSecret string, ok bool, err error) {
	rawID, err := db.GetMeta(ctx, keyListID)
	if err != nil {
		return "", "", false, err
	}
	rawSecret, err := db.GetMeta(ctx, keyListSecret)
	if err != nil {
		return "", "", false, err
	}
	if len(rawID) == 0 || len(rawSecret) == 0 {
		return "", "", false, nil
	}
	return string(rawID), string(rawSecret), true, nil
}

// SetPublishedList stores the credentials of the personal remote list.
func (db *DB) SetPublishedList(ctx context.Context, id, writeSecret string) error {
	if err := db.SetMeta(ctx, keyListID, []byte(id)); err != nil {
		return err
	}
	return db.SetMeta(ctx, keyListSecret, []byte(writeSecret))
}

// ClearPublishedList forgets the personal remote list credentials.
func (db *DB) ClearPublishedList(ctx context.Context) error {
	if err := db.DeleteMeta(ctx, keyListID); err != nil {
		return err
	}
	return db.DeleteMeta(ctx, keyListSecret)
}

// Subscriptions returns the stored subscriptions, empty if none.
func (db *DB) Subscriptions(ctx context.Context) ([]blacklist.Subscription, error) {
	raw, err := db.GetMeta(ctx, keySubscriptions)
	if err != nil {
		return nil, err
	}
	subs := []blacklist.Subscription{}
	if len(raw) == 0 {
		return subs, nil
	}
	if err := json.Unmarshal(raw, &subs); err != nil {
		return nil, fmt.Errorf("failed to decode subscriptions: %w", err)
	}
	return subs, nil
}

// SetSubscriptions replaces the stored subscriptions.
func (db *DB) SetSubscriptions(ctx context.Context, subs []blacklist.Subscription) error {
	raw, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("failed to encode subscriptions: %w", err)
	}
	return db.SetMeta(ctx, keySubscriptions, raw)
}

// SubscriptionEntries returns the entries last fetched for subscription id.
// ok is false when the subscription has never been fetched.
func (db *DB) SubscriptionEntries(ctx context.Context, id string) (blacklist.Lists, bool, error) {
	raw, err := db.GetMeta(ctx, subscriptionEntriesPrefix+id)
	if err != nil || raw == nil {
		return blacklist.Lists{}, false, err
	}
	var lists blacklist.Lists
	if err := json.Unmarshal(raw, &lists); err != nil {
		return blacklist.Lists{}, false, fmt.Errorf("failed to decode entries of subscription %s: %w", id, err)
	}
	return lists, true, nil
}

// SetSubscriptionEntries caches the entries fetched for subscription id.
func (db *DB) SetSubscriptionEntries(ctx context.Context, id string, lists blacklist.Lists) error {
	raw, err := json.Marshal(lists)
	if err != nil {
		return fmt.Errorf("failed to encode entries of subscription %s: %w", id, err)
	}
	return db.SetMeta(ctx, subscriptionEntriesPrefix+id, raw)
}

// DeleteSubscriptionEntries drops the cached entries of subscription id.
func (db *DB) DeleteSubscriptionEntries(ctx context.Context, id string) error {
	return db.DeleteMeta(ctx, subscriptionEntriesPrefix+id)
}

// LastLocalChange returns the time of the latest user mutation.
func (db *DB) LastLocalChange(ctx context.Context) (int64, bool, error) {
	return db.getInt(ctx, keyLastLocalChange)
}

// MarkLocalChange records a user mutation at time at. The stored value only
// ever moves forward, so concurrent writers keep the maximum.
func (db *DB) MarkLocalChange(ctx context.Context, at int64) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = CASE
			WHEN CAST(excluded.value AS INTEGER) > CAST(metadata.value AS INTEGER) THEN excluded.value
			ELSE metadata.value
		END
	`, keyLastLocalChange, []byte(strconv.FormatInt(at, 10)))
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", keyLastLocalChange, err)
	}
	return nil
}

// LastSuccessfulSync returns the time of the last sync that changed anything.
func (db *DB) LastSuccessfulSync(ctx context.Context) (int64, bool, error) {
	return db.getInt(ctx, keyLastSuccessfulSync)
}

// SetLastSuccessfulSync advances the sync checkpoint.
func (db *DB) SetLastSuccessfulSync(ctx context.Context, at int64) error {
	return db.setInt(ctx, keyLastSuccessfulSync, at)
}

// ClearLastSuccessfulSync unsets the sync checkpoint so the next cycle treats
// the remote as changed.
func (db *DB) ClearLastSuccessfulSync(ctx context.Context) error {
	return db.DeleteMeta(ctx, keyLastSuccessfulSync)
}

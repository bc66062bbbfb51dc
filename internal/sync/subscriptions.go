package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/JohanCodinha/blsync/internal/logger"
	"github.com/JohanCodinha/blsync/internal/store"
	"golang.org/x/sync/errgroup"
)

const defaultSubscriptionConcurrency = 4

// SubscriptionResult summarizes a subscription sync.
type SubscriptionResult struct {
	Synced   int // subscriptions fetched successfully
	Failed   int // subscriptions whose fetch failed
	Subjects int // distinct subjects in the personal and subscribed union
	Items    int // distinct items in the personal and subscribed union
	Skipped  bool
}

// Subscriptions syncs read-only third-party lists into the lookup sets.
// It never writes to the remote and never removes local entries.
type Subscriptions struct {
	store       *store.DB
	remote      Remote
	lookup      *blacklist.Lookup
	concurrency int
	now         func() time.Time
}

// NewSubscriptions creates a subscription syncer. concurrency bounds the
// number of lists fetched at once; values below 1 use a default.
func NewSubscriptions(db *store.DB, client Remote, lookup *blacklist.Lookup, concurrency int) *Subscriptions {
	if lookup == nil {
		lookup = blacklist.NewLookup()
	}
	if concurrency < 1 {
		concurrency = defaultSubscriptionConcurrency
	}
	return &Subscriptions{
		store:       db,
		remote:      client,
		lookup:      lookup,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Subscriptions) SetClock(now func() time.Time) {
	s.now = now
}

// HasEnabled reports whether any subscription is enabled.
func (s *Subscriptions) HasEnabled(ctx context.Context) (bool, error) {
	subs, err := s.store.Subscriptions(ctx)
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		if sub.Enabled {
			return true, nil
		}
	}
	return false, nil
}

// Sync fetches every enabled subscription and refreshes the lookup with the
// union of their entries and the personal list, whose sizes it reports. A failed fetch keeps the
// entries cached by the previous successful one and does not stop the
// others; the failures are returned joined.
//
// Callers must hold the sync gate.
func (s *Subscriptions) Sync(ctx context.Context) (SubscriptionResult, error) {
	subs, err := s.store.Subscriptions(ctx)
	if err != nil {
		return SubscriptionResult{}, &SyncError{Op: "subscription", Err: err}
	}

	var enabled []blacklist.Subscription
	for _, sub := range subs {
		if sub.Enabled {
			enabled = append(enabled, sub)
		}
	}

	fetched := make([]*blacklist.Lists, len(enabled))
	errs := make([]error, len(enabled))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, sub := range enabled {
		i, sub := i, sub
		g.Go(func() error {
			list, err := s.remote.Fetch(gctx, sub.ID)
			if err != nil {
				errs[i] = &SyncError{Op: "subscription", ListID: sub.ID, Err: err}
				return nil
			}
			nowMs := s.now().UnixMilli()
			fetched[i] = &blacklist.Lists{
				Subjects: blacklist.Normalize(list.Subjects, nowMs),
				Items:    blacklist.Normalize(list.Items, nowMs),
			}
			return nil
		})
	}
	_ = g.Wait()

	var result SubscriptionResult
	syncedAt := s.now().UnixMilli()
	lastSynced := make(map[string]int64)

	for i, sub := range enabled {
		if fetched[i] == nil {
			result.Failed++
			logger.Warn("sync: subscription %s failed: %v", sub.ID, errs[i])
			continue
		}
		if err := s.store.SetSubscriptionEntries(ctx, sub.ID, *fetched[i]); err != nil {
			return result, &SyncError{Op: "subscription", ListID: sub.ID, Err: err}
		}
		lastSynced[sub.ID] = syncedAt
		result.Synced++
	}

	if len(lastSynced) > 0 {
		if err := s.recordSynced(ctx, lastSynced); err != nil {
			return result, &SyncError{Op: "subscription", Err: err}
		}
	}

	union, err := SubscribedEntries(ctx, s.store)
	if err != nil {
		return result, &SyncError{Op: "subscription", Err: err}
	}
	personal, err := s.store.Lists(ctx)
	if err != nil {
		return result, &SyncError{Op: "subscription", Err: err}
	}
	s.lookup.SetPersonal(personal.Subjects, personal.Items)
	s.lookup.SetSubscribed(union.Subjects, union.Items)
	result.Subjects = s.lookup.Len(blacklist.Subjects)
	result.Items = s.lookup.Len(blacklist.Items)

	logger.Debug("sync: subscriptions synced=%d failed=%d (%d subjects, %d items)",
		result.Synced, result.Failed, result.Subjects, result.Items)

	return result, errors.Join(errs...)
}

// recordSynced stamps lastSynced on the subscriptions that were fetched.
// The list is re-read so concurrent subscribe/unsubscribe calls are kept.
func (s *Subscriptions) recordSynced(ctx context.Context, at map[string]int64) error {
	subs, err := s.store.Subscriptions(ctx)
	if err != nil {
		return err
	}
	for i := range subs {
		if ts, ok := at[subs[i].ID]; ok {
			subs[i].LastSynced = &ts
		}
	}
	return s.store.SetSubscriptions(ctx, subs)
}

// Subscribe adds a subscription after checking the list exists. An empty
// name is filled from the remote list.
func (s *Subscriptions) Subscribe(ctx context.Context, listID, name string) (blacklist.Subscription, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return blacklist.Subscription{}, fmt.Errorf("subscription id cannot be empty")
	}
	if ownID, _, ok, err := s.store.PublishedList(ctx); err != nil {
		return blacklist.Subscription{}, err
	} else if ok && ownID == listID {
		return blacklist.Subscription{}, fmt.Errorf("list %s is your own published list", listID)
	}

	list, err := s.remote.Fetch(ctx, listID)
	if err != nil {
		return blacklist.Subscription{}, &SyncError{Op: "fetch", ListID: listID, Err: err}
	}
	if name == "" {
		name = list.Name
	}

	subs, err := s.store.Subscriptions(ctx)
	if err != nil {
		return blacklist.Subscription{}, err
	}
	sub := blacklist.Subscription{ID: listID, Name: name, Enabled: true}
	subs, err = blacklist.AddSubscription(subs, sub)
	if err != nil {
		return blacklist.Subscription{}, err
	}
	if err := s.store.SetSubscriptions(ctx, subs); err != nil {
		return blacklist.Subscription{}, err
	}

	logger.Info("sync: subscribed to %s (%s)", listID, name)
	return sub, nil
}

// Unsubscribe removes a subscription and its cached entries.
func (s *Subscriptions) Unsubscribe(ctx context.Context, listID string) error {
	subs, err := s.store.Subscriptions(ctx)
	if err != nil {
		return err
	}
	subs, found := blacklist.RemoveSubscription(subs, listID)
	if !found {
		return fmt.Errorf("not subscribed to %s", listID)
	}
	if err := s.store.SetSubscriptions(ctx, subs); err != nil {
		return err
	}
	if err := s.store.DeleteSubscriptionEntries(ctx, listID); err != nil {
		return err
	}

	logger.Info("sync: unsubscribed from %s", listID)
	return nil
}

// SetEnabled enables or disables a subscription without dropping its cache.
func (s *Subscriptions) SetEnabled(ctx context.Context, listID string, enabled bool) error {
	subs, err := s.store.Subscriptions(ctx)
	if err != nil {
		return err
	}
	if !blacklist.SetSubscriptionEnabled(subs, listID, enabled) {
		return fmt.Errorf("not subscribed to %s", listID)
	}
	return s.store.SetSubscriptions(ctx, subs)
}

// SubscribedEntries returns the union of the cached entries of every
// enabled subscription.
func SubscribedEntries(ctx context.Context, db *store.DB) (blacklist.Lists, error) {
	subs, err := db.Subscriptions(ctx)
	if err != nil {
		return blacklist.Lists{}, err
	}

	var subjects, items [][]blacklist.Entry
	for _, sub := range subs {
		if !sub.Enabled {
			continue
		}
		lists, ok, err := db.SubscriptionEntries(ctx, sub.ID)
		if err != nil {
			return blacklist.Lists{}, err
		}
		if !ok {
			continue
		}
		subjects = append(subjects, lists.Subjects)
		items = append(items, lists.Items)
	}

	return blacklist.Lists{
		Subjects: blacklist.Union(subjects...),
		Items:    blacklist.Union(items...),
	}, nil
}

// LoadLookup fills both lookup layers from the local store without any
// network access.
func LoadLookup(ctx context.Context, db *store.DB, lookup *blacklist.Lookup) error {
	local, err := db.Lists(ctx)
	if err != nil {
		return err
	}
	subscribed, err := SubscribedEntries(ctx, db)
	if err != nil {
		return err
	}
	lookup.SetPersonal(local.Subjects, local.Items)
	lookup.SetSubscribed(subscribed.Subjects, subscribed.Items)
	return nil
}

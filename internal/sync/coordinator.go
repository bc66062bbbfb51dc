package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/JohanCodinha/blsync/internal/logger"
	"github.com/JohanCodinha/blsync/internal/store"
)

// Default scheduling parameters.
const (
	DefaultInterval     = 5 * time.Minute
	DefaultDebounce     = 2 * time.Second
	DefaultRetryBackoff = 3 * time.Second
)

// Options configures a Coordinator. Zero values use the defaults.
type Options struct {
	Interval     time.Duration // periodic sync interval
	Debounce     time.Duration // quiet period after the last local change
	RetryBackoff time.Duration // delay before the single retry of a busy debounced sync
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	return o
}

// Coordinator owns the sync gate and the triggers that compete for it:
// the periodic ticker, the debounced auto sync and on-demand requests.
// Every cycle runs the personal list sync and then the subscription sync
// inside the gate.
type Coordinator struct {
	store  *store.DB
	engine *Engine
	subs   *Subscriptions
	gate   *Gate
	opts   Options

	// background cycles run under ctx, cancelled by Stop
	ctx    context.Context
	cancel context.CancelFunc

	mu      gosync.Mutex
	timer   *time.Timer
	started bool
	stopped bool
	wg      gosync.WaitGroup
}

// NewCoordinator creates a coordinator. gate may be nil for an in-process gate.
func NewCoordinator(db *store.DB, engine *Engine, subs *Subscriptions, gate *Gate, opts Options) *Coordinator {
	if gate == nil {
		gate = NewGate()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:  db,
		engine: engine,
		subs:   subs,
		gate:   gate,
		opts:   opts.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs one cycle immediately and then every Interval until Stop.
// A tick that finds the gate held is skipped.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.tryCycle("startup")

		ticker := time.NewTicker(c.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				c.tryCycle("periodic")
			}
		}
	}()

	logger.Debug("sync: coordinator started (interval %s)", c.opts.Interval)
}

// NotifyLocalChange is the store change listener: every user mutation
// schedules a debounced sync. The store has already advanced the
// last-local-change marker.
func (c *Coordinator) NotifyLocalChange(ch store.Change) {
	logger.Debug("sync: local %s %s/%s", ch.Op, ch.Partition, ch.ID)
	c.TriggerAutoSync()
}

// TriggerAutoSync schedules a debounced sync. Multiple calls within the
// debounce window reset the timer. If the gate is held when the timer
// fires, the sync is retried once after RetryBackoff, then dropped.
func (c *Coordinator) TriggerAutoSync() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.opts.Debounce, func() { c.autoSync(true) })

	logger.Debug("sync: debounce timer started/reset (%s)", c.opts.Debounce)
}

func (c *Coordinator) autoSync(allowRetry bool) {
	if c.ctx.Err() != nil {
		return
	}
	if !c.gate.TryLock() {
		if !allowRetry {
			logger.Debug("sync: auto sync dropped, another sync is still running")
			return
		}
		c.mu.Lock()
		if !c.stopped {
			c.timer = time.AfterFunc(c.opts.RetryBackoff, func() { c.autoSync(false) })
			logger.Debug("sync: auto sync busy, retrying in %s", c.opts.RetryBackoff)
		}
		c.mu.Unlock()
		return
	}
	defer c.gate.Unlock()

	if _, err := c.cycle(c.ctx); err != nil {
		logger.Error("sync: auto sync failed: %v", err)
	}
}

// tryCycle runs a background cycle if the gate is free.
func (c *Coordinator) tryCycle(trigger string) {
	if !c.gate.TryLock() {
		logger.Debug("sync: %s sync skipped, another sync is running", trigger)
		return
	}
	defer c.gate.Unlock()

	if _, err := c.cycle(c.ctx); err != nil {
		logger.Error("sync: %s sync failed: %v", trigger, err)
	}
}

// ForceSyncNow runs a full cycle immediately, cancelling any pending
// debounced sync. If another cycle holds the gate it returns a Result with
// Skipped set and a nil error, and a pending debounced sync stays armed.
func (c *Coordinator) ForceSyncNow(ctx context.Context) (Result, error) {
	if !c.gate.TryLock() {
		logger.Info("sync: sync already in progress")
		return Result{Skipped: true}, nil
	}
	defer c.gate.Unlock()
	c.stopTimer()

	return c.cycle(ctx)
}

// BidirectionalSync syncs the given personal list under the gate.
func (c *Coordinator) BidirectionalSync(ctx context.Context, listID, writeSecret string) (Result, error) {
	if !c.gate.TryLock() {
		return Result{Skipped: true}, nil
	}
	defer c.gate.Unlock()

	return c.engine.Bidirectional(ctx, listID, writeSecret)
}

// SyncSubscriptions syncs the subscriptions under the gate.
func (c *Coordinator) SyncSubscriptions(ctx context.Context) (SubscriptionResult, error) {
	if !c.gate.TryLock() {
		return SubscriptionResult{Skipped: true}, nil
	}
	defer c.gate.Unlock()

	return c.subs.Sync(ctx)
}

// cycle runs the personal sync, or a local refresh when no list is
// published, followed by the subscription sync. Callers hold the gate.
func (c *Coordinator) cycle(ctx context.Context) (Result, error) {
	var errs []error

	listID, writeSecret, ok, err := c.store.PublishedList(ctx)
	if err != nil {
		return Result{}, &SyncError{Op: "store", Err: err}
	}

	var result Result
	if ok {
		result, err = c.engine.Bidirectional(ctx, listID, writeSecret)
	} else {
		result, err = c.engine.RefreshLocal(ctx)
	}
	if err != nil {
		errs = append(errs, err)
	}

	hasSubs, err := c.subs.HasEnabled(ctx)
	if err != nil {
		errs = append(errs, &SyncError{Op: "subscription", Err: err})
	} else if hasSubs {
		if _, err := c.subs.Sync(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return result, errors.Join(errs...)
}

func (c *Coordinator) stopTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Stop cancels pending timers and background cycles and waits for the
// periodic loop to exit. Flush with ForceSyncNow before calling Stop.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	logger.Debug("sync: coordinator stopped")
}

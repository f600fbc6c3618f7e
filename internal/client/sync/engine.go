// Package sync orchestrates reconciliation between the local store and the
// sync server: a pull phase that applies remote changes to rows without
// local edits, and a push phase that sends pending records under optimistic
// concurrency, routing rejected writes through conflict resolution.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plateful/plateful/internal/client/remote"
	"github.com/plateful/plateful/internal/client/store"
	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/logging"
	"github.com/plateful/plateful/internal/model"
)

// Remote is the subset of the HTTP client the engine depends on.
// *remote.Client satisfies it; tests substitute an in-memory fake.
type Remote interface {
	Create(ctx context.Context, rec *model.Record) (*model.Record, error)
	Fetch(ctx context.Context, col model.Collection, id string) (*model.Record, error)
	Update(ctx context.Context, rec *model.Record, expectedVersion int64) (*model.Record, error)
	Delete(ctx context.Context, col model.Collection, id string, expectedVersion int64) (*model.Record, error)
	List(ctx context.Context, col model.Collection, filter remote.ListFilter, cursor string, limit int) (*remote.Page, error)
}

// ConflictHandler is notified when a record is parked in the conflict state.
// remoteSnapshot is nil when the server side no longer exists.
type ConflictHandler func(col model.Collection, id string, local, remoteSnapshot *model.Record)

// MergeFunc is an optional caller-supplied per-field merge strategy. It
// returns the merged payload and true to re-attempt the push, or false to
// fall back to manual resolution.
type MergeFunc func(col model.Collection, local, remoteRec *model.Record) (map[string]any, bool)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	// PushConcurrency bounds concurrent pushes across distinct ids.
	PushConcurrency int
	// PageSize is the pull page size.
	PageSize int
	// BackoffBase, BackoffCap and MaxAttempts shape the transient-error
	// retry schedule within one cycle.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.PushConcurrency <= 0 {
		c.PushConcurrency = 4
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 6
	}
	return c
}

// Engine drives pull/push cycles. At most one cycle runs at a time; pushes
// for the same record id are strictly serialized.
type Engine struct {
	store  store.Store
	remote Remote
	log    logging.Logger
	cfg    Config

	merge      MergeFunc
	onConflict ConflictHandler

	locks *keyedLocks
	sched *scheduler

	mu            sync.Mutex
	syncing       bool
	retryAttempts int
}

// New builds an Engine. merge and onConflict may be nil.
func New(st store.Store, rc Remote, log logging.Logger, cfg Config) *Engine {
	return &Engine{
		store:  st,
		remote: rc,
		log:    log.With("component", "sync"),
		cfg:    cfg.withDefaults(),
		locks:  newKeyedLocks(),
		sched:  newScheduler(),
	}
}

// SetMergeFunc installs a per-field merge strategy for differing payloads.
func (e *Engine) SetMergeFunc(fn MergeFunc) { e.merge = fn }

// OnConflict registers the handler invoked when a record enters the
// conflict state.
func (e *Engine) OnConflict(fn ConflictHandler) { e.onConflict = fn }

// TriggerSync runs one full cycle: pull every collection, then push all
// pending records. It returns common.ErrSyncInProgress when a cycle is
// already running.
func (e *Engine) TriggerSync(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return nil, common.ErrSyncInProgress
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	report := &Report{StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	e.log.Info(ctx, "sync cycle started")

	var pullErr error
	for _, col := range model.Collections() {
		if err := e.pullCollection(ctx, col, report); err != nil {
			// A failed pull leaves the cursor where it was; the page is
			// re-applied next cycle. Push still runs.
			e.log.Warn(ctx, "pull interrupted", "collection", col, "error", err)
			pullErr = errors.Join(pullErr, fmt.Errorf("pull %s: %w", col, err))
			break
		}
	}

	if err := e.pushAll(ctx, report); err != nil {
		return report, errors.Join(pullErr, err)
	}

	e.afterCycle(ctx, report)

	e.log.Info(ctx, "sync cycle finished",
		"pushed", report.Pushed,
		"pulled", report.Pulled,
		"conflicts", report.Conflicts,
		"auto_resolved", report.AutoResolved,
		"needs_attention", len(report.NeedsAttention),
		"duration", report.Duration)

	return report, pullErr
}

// afterCycle schedules a retry kick when transient failures left records
// pending, doubling the delay on consecutive unsuccessful cycles.
func (e *Engine) afterCycle(ctx context.Context, report *Report) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(report.NeedsAttention) == 0 {
		e.retryAttempts = 0
		e.sched.Cancel("retry")
		return
	}

	delay := e.cfg.BackoffBase << e.retryAttempts
	if delay > e.cfg.BackoffCap {
		delay = e.cfg.BackoffCap
	}
	e.retryAttempts++

	kickCtx := context.WithoutCancel(ctx)
	e.sched.Schedule("retry", delay, func() {
		if _, err := e.TriggerSync(kickCtx); err != nil && !errors.Is(err, common.ErrSyncInProgress) {
			e.log.Warn(kickCtx, "retry sync failed", "error", err)
		}
	})
}

// AutoSync triggers a cycle every interval until ctx is cancelled.
func (e *Engine) AutoSync(ctx context.Context, interval time.Duration) {
	e.log.Info(ctx, "auto sync started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.sched.Stop()
			e.log.Info(ctx, "auto sync stopped")
			return
		case <-ticker.C:
			if _, err := e.TriggerSync(ctx); err != nil && !errors.Is(err, common.ErrSyncInProgress) {
				e.log.Warn(ctx, "periodic sync failed", "error", err)
			}
		}
	}
}

// Syncing reports whether a cycle is currently running.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

func lockKey(col model.Collection, id string) string {
	return string(col) + "/" + id
}

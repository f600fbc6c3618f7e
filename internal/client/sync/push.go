package sync

import (
	"context"
	"errors"
	"sync"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/plateful/plateful/internal/client/remote"
	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/model"
)

// pushAll sends every pending record, bounded concurrency across distinct
// ids. Records sharing an id never push concurrently (keyed lock).
func (e *Engine) pushAll(ctx context.Context, report *Report) error {
	type target struct {
		col model.Collection
		id  string
	}

	var targets []target
	for _, col := range model.Collections() {
		pending, err := e.store.ListBySyncState(ctx, col, model.SyncStatePending)
		if err != nil {
			return err
		}
		for _, rec := range pending {
			targets = append(targets, target{col: col, id: rec.ID})
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PushConcurrency)

	for _, t := range targets {
		t := t
		g.Go(func() error {
			e.pushOne(gctx, t.col, t.id, report, &mu)
			return nil
		})
	}

	return g.Wait()
}

// pushOne pushes a single record through one full attempt cycle, including
// transient retries and conflict routing. Failures are recorded on the
// report; they never abort the surrounding cycle.
func (e *Engine) pushOne(ctx context.Context, col model.Collection, id string, report *Report, mu *sync.Mutex) {
	release := e.locks.acquire(lockKey(col, id))
	defer release()

	// Re-read under the lock: the record may have been resolved, discarded,
	// or pushed by an earlier invocation while we waited.
	rec, err := e.store.Get(ctx, col, id)
	if errors.Is(err, common.ErrNotFound) {
		return
	}
	if err != nil {
		mu.Lock()
		report.noteAttention(col, id, "read", err)
		mu.Unlock()
		return
	}
	if rec.SyncState != model.SyncStatePending {
		return
	}

	// A record deleted before its first sync never reached the server;
	// discard it locally without a network call.
	if rec.Deleted && rec.NeverSynced() {
		if err := e.store.DeleteLocal(ctx, col, id); err != nil {
			mu.Lock()
			report.noteAttention(col, id, "discard", err)
			mu.Unlock()
			return
		}
		mu.Lock()
		report.Discarded++
		mu.Unlock()
		return
	}

	srv, err := e.send(ctx, rec)

	switch {
	case err == nil:
		if err := e.ackPush(ctx, rec, srv); err != nil {
			mu.Lock()
			report.noteAttention(col, id, "ack", err)
			mu.Unlock()
			return
		}
		mu.Lock()
		report.Pushed++
		mu.Unlock()

	case isVersionConflict(err):
		var vc *remote.VersionConflictError
		errors.As(err, &vc)
		e.routeConflict(ctx, rec, vc.Server, report, mu)

	case errors.Is(err, common.ErrNotFound):
		// Gone on the server. A local tombstone has nothing left to assert;
		// drop it. A live local edit needs a decision ("keep local as new"
		// or "discard"), represented by a conflict with no remote snapshot.
		if rec.Deleted {
			if err := e.store.DeleteLocal(ctx, col, id); err != nil {
				mu.Lock()
				report.noteAttention(col, id, "discard", err)
				mu.Unlock()
				return
			}
			mu.Lock()
			report.AutoResolved++
			mu.Unlock()
			return
		}
		if err := e.store.MarkConflict(ctx, col, id, nil); err != nil {
			mu.Lock()
			report.noteAttention(col, id, "mark conflict", err)
			mu.Unlock()
			return
		}
		mu.Lock()
		report.Conflicts++
		mu.Unlock()
		e.notifyConflict(col, id, rec, nil)

	case remote.IsTransient(err):
		// Retries exhausted for this cycle; the record stays pending and a
		// retry kick is scheduled by afterCycle.
		e.log.Warn(ctx, "push deferred after transient failures",
			"collection", col, "id", id, "error", err)
		mu.Lock()
		report.noteAttention(col, id, "push", err)
		mu.Unlock()

	default:
		// Permanent rejection (validation and friends): park in the error
		// state until the user fixes or discards the record.
		var pe *remote.PermanentError
		detail := err.Error()
		if errors.As(err, &pe) {
			detail = pe.Detail
		}
		if err := e.store.MarkError(ctx, col, id, detail); err != nil {
			mu.Lock()
			report.noteAttention(col, id, "mark error", err)
			mu.Unlock()
			return
		}
		mu.Lock()
		report.noteFailure(col, id, "push", err)
		mu.Unlock()
	}
}

// send performs the remote call for rec, retrying transient failures with
// exponential backoff (jittered, capped) up to MaxAttempts per cycle.
// expectedVersion is always the last acknowledged server version.
func (e *Engine) send(ctx context.Context, rec *model.Record) (*model.Record, error) {
	backoff := retry.NewExponential(e.cfg.BackoffBase)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithCappedDuration(e.cfg.BackoffCap, backoff)
	backoff = retry.WithMaxRetries(uint64(e.cfg.MaxAttempts-1), backoff)

	expected := rec.ServerVersion

	var srv *model.Record
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		switch {
		case rec.NeverSynced():
			srv, err = e.remote.Create(ctx, rec)
		case rec.Deleted:
			srv, err = e.remote.Delete(ctx, rec.Collection, rec.ID, expected)
		default:
			srv, err = e.remote.Update(ctx, rec, expected)
		}
		if remote.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// ackPush records a server acknowledgement: the acknowledged version and
// server timestamps land in the store, and confirmed tombstones are cleaned
// up locally.
func (e *Engine) ackPush(ctx context.Context, rec, srv *model.Record) error {
	err := e.store.MarkSynced(ctx, rec.Collection, rec.ID,
		rec.Version, srv.Version, srv.CreatedAt, srv.UpdatedAt)
	if err != nil {
		return err
	}
	if rec.Deleted {
		return e.store.DeleteLocal(ctx, rec.Collection, rec.ID)
	}
	return nil
}

func isVersionConflict(err error) bool {
	var vc *remote.VersionConflictError
	return errors.As(err, &vc)
}

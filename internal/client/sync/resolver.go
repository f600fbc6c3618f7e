package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/plateful/plateful/internal/client/remote"
	"github.com/plateful/plateful/internal/model"
)

// Choice selects how an explicit conflict resolution proceeds.
type Choice string

const (
	// ChoiceKeepLocal re-pushes the local content over the server's
	// current version.
	ChoiceKeepLocal Choice = "keepLocal"
	// ChoiceKeepRemote discards local edits and adopts the server record.
	ChoiceKeepRemote Choice = "keepRemote"
	// ChoiceMerged pushes a caller-supplied merged payload.
	ChoiceMerged Choice = "merged"
)

// ErrNotInConflict is returned by Resolve for records that are not parked
// in the conflict state.
var ErrNotInConflict = errors.New("record is not in conflict state")

// routeConflict handles a rejected conditional write. Three cases settle
// without user involvement: the server already holds identical content
// (a retried push whose acknowledgement was lost), both sides deleted the
// record, or an installed merge strategy produced a payload. Everything
// else parks the record with both snapshots retained.
//
// Caller holds the per-id lock.
func (e *Engine) routeConflict(ctx context.Context, rec, server *model.Record, report *Report, mu *sync.Mutex) {
	col, id := rec.Collection, rec.ID

	if server == nil {
		// The 409 body could not be decoded; fetch the current server
		// record so auto-resolution has something to compare against.
		fetched, err := e.remote.Fetch(ctx, col, id)
		if err != nil {
			e.log.Warn(ctx, "conflict snapshot fetch failed",
				"collection", col, "id", id, "error", err)
		}
		server = fetched
	}
	if server != nil {
		server.Collection = col
	}

	if server != nil && rec.EqualPayload(server) {
		// Same content on both sides. Adopt the server's version and move on.
		if err := e.adoptServer(ctx, rec, server); err != nil {
			mu.Lock()
			report.noteAttention(col, id, "adopt", err)
			mu.Unlock()
			return
		}
		mu.Lock()
		report.AutoResolved++
		mu.Unlock()
		e.log.Info(ctx, "conflict auto-resolved, identical content",
			"collection", col, "id", id)
		return
	}

	if server != nil && rec.Deleted && server.Deleted {
		if err := e.store.DeleteLocal(ctx, col, id); err != nil {
			mu.Lock()
			report.noteAttention(col, id, "adopt delete", err)
			mu.Unlock()
			return
		}
		mu.Lock()
		report.AutoResolved++
		mu.Unlock()
		e.log.Info(ctx, "conflict auto-resolved, deleted on both sides",
			"collection", col, "id", id)
		return
	}

	if server != nil && e.merge != nil && !rec.Deleted && !server.Deleted {
		if merged, ok := e.merge(col, rec, server); ok {
			if err := e.pushMerged(ctx, rec, server, merged); err == nil {
				mu.Lock()
				report.AutoResolved++
				mu.Unlock()
				e.log.Info(ctx, "conflict auto-resolved by merge",
					"collection", col, "id", id)
				return
			} else if !isVersionConflict(err) {
				mu.Lock()
				report.noteAttention(col, id, "merge push", err)
				mu.Unlock()
				return
			}
			// The server moved again under the merge. Fall through and park.
		}
	}

	if err := e.store.MarkConflict(ctx, col, id, server); err != nil {
		mu.Lock()
		report.noteAttention(col, id, "mark conflict", err)
		mu.Unlock()
		return
	}
	mu.Lock()
	report.Conflicts++
	mu.Unlock()
	e.notifyConflict(col, id, rec, server)
}

// adoptServer accepts the server record as the acknowledged state of a
// local record whose content already matches it.
func (e *Engine) adoptServer(ctx context.Context, rec, server *model.Record) error {
	err := e.store.MarkSynced(ctx, rec.Collection, rec.ID,
		rec.Version, server.Version, server.CreatedAt, server.UpdatedAt)
	if err != nil {
		return err
	}
	if rec.Deleted {
		return e.store.DeleteLocal(ctx, rec.Collection, rec.ID)
	}
	return nil
}

// pushMerged persists the merged payload locally, then pushes it asserting
// the server's current version.
func (e *Engine) pushMerged(ctx context.Context, rec, server *model.Record, payload map[string]any) error {
	next := rec.Clone()
	next.Payload = payload

	stored, err := e.store.Put(ctx, rec.Collection, next, rec.Version)
	if err != nil {
		return err
	}

	srv, err := e.remote.Update(ctx, stored, server.Version)
	if err != nil {
		return err
	}
	return e.store.MarkSynced(ctx, rec.Collection, rec.ID,
		stored.Version, srv.Version, srv.CreatedAt, srv.UpdatedAt)
}

// notifyConflict dispatches the registered handler on its own goroutine so
// a handler that calls Resolve does not deadlock against the per-id lock
// held by the sync cycle.
func (e *Engine) notifyConflict(col model.Collection, id string, local, server *model.Record) {
	if e.onConflict == nil {
		return
	}
	go e.onConflict(col, id, local.Clone(), server.Clone())
}

// Resolve settles a parked conflict. mergedPayload is required for
// ChoiceMerged and ignored otherwise. A resolution that pushes
// (ChoiceKeepLocal, ChoiceMerged) asserts the version of the retained
// server snapshot; if the server moved again in the meantime the record is
// re-parked with the fresh snapshot and a *remote.VersionConflictError is
// returned.
func (e *Engine) Resolve(ctx context.Context, col model.Collection, id string, choice Choice, mergedPayload map[string]any) error {
	release := e.locks.acquire(lockKey(col, id))
	defer release()

	rec, err := e.store.Get(ctx, col, id)
	if err != nil {
		return err
	}
	if rec.SyncState != model.SyncStateConflict {
		return fmt.Errorf("%s/%s: %w", col, id, ErrNotInConflict)
	}

	snapshot := rec.RemoteSnapshot

	switch choice {
	case ChoiceKeepRemote:
		if err := e.store.DeleteLocal(ctx, col, id); err != nil {
			return err
		}
		if snapshot == nil || snapshot.Deleted {
			// Server side is gone; nothing to re-materialize.
			return nil
		}
		snapshot.Collection = col
		_, err := e.store.ApplyRemote(ctx, col, snapshot)
		return err

	case ChoiceKeepLocal:
		return e.resolvePush(ctx, rec, snapshot, rec.Payload)

	case ChoiceMerged:
		if mergedPayload == nil {
			return fmt.Errorf("resolve %s/%s: merged payload required", col, id)
		}
		return e.resolvePush(ctx, rec, snapshot, mergedPayload)

	default:
		return fmt.Errorf("resolve %s/%s: unknown choice %q", col, id, choice)
	}
}

// resolvePush sends local (or merged) content as the resolution of a
// conflict, asserting the snapshot's version.
func (e *Engine) resolvePush(ctx context.Context, rec *model.Record, snapshot *model.Record, payload map[string]any) error {
	col, id := rec.Collection, rec.ID

	next := rec.Clone()
	next.Payload = payload
	next.RemoteSnapshot = nil

	stored, err := e.store.Put(ctx, col, next, rec.Version)
	if err != nil {
		return err
	}

	var srv *model.Record
	switch {
	case snapshot == nil:
		// The server record was deleted (or was never visible); keeping
		// local means re-creating it.
		srv, err = e.remote.Create(ctx, stored)
	case stored.Deleted:
		srv, err = e.remote.Delete(ctx, col, id, snapshot.Version)
	default:
		srv, err = e.remote.Update(ctx, stored, snapshot.Version)
	}

	if err != nil {
		var vc *remote.VersionConflictError
		if errors.As(err, &vc) {
			// The server moved again. Park with the fresh snapshot so the
			// next resolution sees current state.
			if vc.Server != nil {
				vc.Server.Collection = col
			}
			if markErr := e.store.MarkConflict(ctx, col, id, vc.Server); markErr != nil {
				return errors.Join(err, markErr)
			}
		}
		return err
	}

	if err := e.store.MarkSynced(ctx, col, id,
		stored.Version, srv.Version, srv.CreatedAt, srv.UpdatedAt); err != nil {
		return err
	}
	if stored.Deleted {
		return e.store.DeleteLocal(ctx, col, id)
	}
	return nil
}

package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/plateful/plateful/internal/client/remote"
	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/model"
)

// pullCollection pages through server changes after the stored cursor and
// reconciles them into the local store. The cursor advances only after a
// page has been applied in full, so a failed page is redelivered; apply is
// idempotent, which makes the redelivery safe.
func (e *Engine) pullCollection(ctx context.Context, col model.Collection, report *Report) error {
	cursor, err := e.store.Cursor(ctx, col)
	if err != nil {
		return err
	}

	for {
		page, err := e.remote.List(ctx, col, remote.ListFilter{}, cursor, e.cfg.PageSize)
		if err != nil {
			return err
		}
		if len(page.Records) == 0 {
			return nil
		}

		for _, srv := range page.Records {
			applied, err := e.applyRemote(ctx, col, srv)
			if err != nil {
				return fmt.Errorf("apply %s/%s: %w", col, srv.ID, err)
			}
			if applied {
				report.Pulled++
			}
		}

		if page.NextCursor == "" || page.NextCursor == cursor {
			return nil
		}
		cursor = page.NextCursor
		if err := e.store.SetCursor(ctx, col, cursor); err != nil {
			return err
		}
	}
}

// applyRemote reconciles one incoming server record with its local
// counterpart. Local pending edits, unresolved conflicts, and rejected
// records awaiting a fix are never overwritten; the next push surfaces any
// divergence as a conflict instead.
func (e *Engine) applyRemote(ctx context.Context, col model.Collection, srv *model.Record) (bool, error) {
	local, err := e.store.Get(ctx, col, srv.ID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return e.store.ApplyRemote(ctx, col, srv)
	case err != nil:
		return false, err
	}

	switch local.SyncState {
	case model.SyncStatePending, model.SyncStateConflict, model.SyncStateError:
		e.log.Debug(ctx, "pull skipped record with local changes",
			"collection", col, "id", srv.ID, "state", local.SyncState)
		return false, nil
	}

	if srv.Version <= local.ServerVersion {
		// Redelivered or already-known version: idempotent no-op.
		return false, nil
	}

	return e.store.ApplyRemote(ctx, col, srv)
}

// Package store implements the client's persistent local table of versioned
// records, backed by SQLite. It is the only shared mutable resource on the
// device; every engine component goes through this narrow contract, and no
// network access happens here.
package store

import (
	"context"
	"time"

	"github.com/plateful/plateful/internal/model"
)

// Store describes local persistence for versioned records.
//
// Error contract:
//   - Get returns common.ErrNotFound for missing ids.
//   - Put returns common.ErrStaleWrite when baseVersion does not match the
//     stored version (two local mutators collided), and
//     common.ErrAlreadyExists when inserting an id that is already present.
type Store interface {
	// Get returns a single record.
	Get(ctx context.Context, col model.Collection, id string) (*model.Record, error)

	// Put inserts (baseVersion 0) or updates a record. On update the stored
	// version is incremented by exactly 1 and the record becomes pending.
	Put(ctx context.Context, col model.Collection, rec *model.Record, baseVersion int64) (*model.Record, error)

	// List returns all records in a collection, tombstones excluded.
	List(ctx context.Context, col model.Collection) ([]*model.Record, error)

	// ListBySyncState returns records in the given sync state.
	ListBySyncState(ctx context.Context, col model.Collection, state model.SyncState) ([]*model.Record, error)

	// MarkSynced records a server acknowledgement. baseVersion is the local
	// version captured when the push started: if the record was edited again
	// while the push was in flight, only ServerVersion advances and the
	// record stays pending.
	MarkSynced(ctx context.Context, col model.Collection, id string, baseVersion, serverVersion int64, createdAt, updatedAt time.Time) error

	// MarkConflict parks a record in the conflict state, retaining the
	// server snapshot (nil when the server side no longer exists).
	MarkConflict(ctx context.Context, col model.Collection, id string, remote *model.Record) error

	// MarkError parks a record in the error state with a server-supplied detail.
	MarkError(ctx context.Context, col model.Collection, id string, detail string) error

	// ApplyRemote upserts a server record during pull. Rows whose sync state
	// is pending or conflict are never touched; the returned bool reports
	// whether the row was written.
	ApplyRemote(ctx context.Context, col model.Collection, rec *model.Record) (bool, error)

	// DeleteLocal physically removes a row (never-synced discard, or cleanup
	// after a confirmed remote delete).
	DeleteLocal(ctx context.Context, col model.Collection, id string) error

	// Cursor returns the last applied pull cursor for a collection
	// ("" when the collection has never been pulled).
	Cursor(ctx context.Context, col model.Collection) (string, error)

	// SetCursor persists the pull watermark for a collection.
	SetCursor(ctx context.Context, col model.Collection, cursor string) error
}

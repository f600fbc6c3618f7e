// Package records provides server-side persistence for versioned entity
// and curation records, including the conditional writes behind the
// If-Match contract and the seq-ordered change listing behind pull.
package records

import (
	"context"

	"github.com/plateful/plateful/internal/model"
)

// Repository stores versioned records.
//
// Error contract:
//   - Get returns common.ErrNotFound for missing ids.
//   - Insert returns common.ErrAlreadyExists when the id is taken.
//   - UpdateIfVersion and DeleteIfVersion return common.ErrVersionConflict
//     when expectedVersion does not match the stored version, and
//     common.ErrNotFound when the id does not exist.
type Repository interface {
	// Get returns the current record.
	Get(ctx context.Context, col model.Collection, id string) (*model.Record, error)

	// Insert stores a first-sync record at version 1 and returns the stored row.
	Insert(ctx context.Context, col model.Collection, rec *model.Record) (*model.Record, error)

	// UpdateIfVersion replaces content iff the stored version equals
	// expectedVersion; the accepted version is expectedVersion+1.
	UpdateIfVersion(ctx context.Context, col model.Collection, rec *model.Record, expectedVersion int64) (*model.Record, error)

	// DeleteIfVersion tombstones the record under the same precondition.
	// The tombstone keeps its id and version history so pulls replay it.
	DeleteIfVersion(ctx context.Context, col model.Collection, id string, expectedVersion int64) (*model.Record, error)

	// List returns up to limit records with seq > afterSeq in seq order,
	// tombstones included. lastSeq is the seq of the final returned row
	// (afterSeq when the page is empty).
	List(ctx context.Context, col model.Collection, entityID string, afterSeq int64, limit int) (recs []*model.Record, lastSeq int64, err error)
}

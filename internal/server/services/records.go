// Package services holds the server's business rules: the conditional-write
// contract for versioned records and curator account management.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/logging"
	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/server/repositories/records"
)

const defaultPageSize = 100

// ConflictError reports a rejected conditional write together with the
// current server record, which travels back to the client in the 409 body.
type ConflictError struct {
	Current *model.Record
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: server at version %d", e.Current.Version)
}

func (e *ConflictError) Is(target error) bool {
	return target == common.ErrVersionConflict
}

// Page is one page of the change listing.
type Page struct {
	Records    []*model.Record
	NextCursor string
}

// RecordService implements the sync API's record semantics on top of a
// records.Repository.
type RecordService struct {
	repo          records.Repository
	log           logging.Logger
	pageSizeLimit int
}

func NewRecordService(repo records.Repository, log logging.Logger, pageSizeLimit int) *RecordService {
	if pageSizeLimit <= 0 {
		pageSizeLimit = defaultPageSize
	}
	return &RecordService{
		repo:          repo,
		log:           log.With("component", "records"),
		pageSizeLimit: pageSizeLimit,
	}
}

// Create stores a first-sync record. Re-sending a create whose
// acknowledgement was lost is answered with the stored record instead of an
// error, but only when the content is identical; a differing payload under
// a live existing id is a conflict, never a silent merge. A tombstoned id
// is re-created, continuing its version chain.
func (s *RecordService) Create(ctx context.Context, col model.Collection, rec *model.Record) (stored *model.Record, created bool, err error) {
	stored, err = s.repo.Insert(ctx, col, rec)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, common.ErrAlreadyExists) {
		return nil, false, err
	}

	current, getErr := s.repo.Get(ctx, col, rec.ID)
	if getErr != nil {
		return nil, false, getErr
	}
	if current.Deleted {
		// The id belongs to a tombstone; take it over. The version chain
		// continues past the tombstone so the deletion stays observable in
		// the change listing.
		stored, err = s.repo.UpdateIfVersion(ctx, col, rec, current.Version)
		if err != nil {
			return nil, false, s.conflictOrErr(ctx, col, rec.ID, err)
		}
		s.log.Debug(ctx, "tombstoned record re-created",
			"collection", col, "id", rec.ID)
		return stored, true, nil
	}
	if rec.EqualPayload(current) {
		s.log.Debug(ctx, "create retried with identical content",
			"collection", col, "id", rec.ID)
		return current, false, nil
	}
	return nil, false, &ConflictError{Current: current}
}

// Get returns the current record. Tombstoned records are reported as not
// found; deletions reach clients through the change listing instead.
func (s *RecordService) Get(ctx context.Context, col model.Collection, id string) (*model.Record, error) {
	rec, err := s.repo.Get(ctx, col, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

// Update applies a conditional update asserting expectedVersion.
func (s *RecordService) Update(ctx context.Context, col model.Collection, rec *model.Record, expectedVersion int64) (*model.Record, error) {
	stored, err := s.repo.UpdateIfVersion(ctx, col, rec, expectedVersion)
	if err != nil {
		return nil, s.conflictOrErr(ctx, col, rec.ID, err)
	}
	return stored, nil
}

// Delete tombstones a record under the same precondition and returns the
// tombstone.
func (s *RecordService) Delete(ctx context.Context, col model.Collection, id string, expectedVersion int64) (*model.Record, error) {
	stored, err := s.repo.DeleteIfVersion(ctx, col, id, expectedVersion)
	if err != nil {
		return nil, s.conflictOrErr(ctx, col, id, err)
	}
	return stored, nil
}

func (s *RecordService) conflictOrErr(ctx context.Context, col model.Collection, id string, err error) error {
	if !errors.Is(err, common.ErrVersionConflict) {
		return err
	}
	current, getErr := s.repo.Get(ctx, col, id)
	if getErr != nil {
		return getErr
	}
	return &ConflictError{Current: current}
}

// List returns changed records after the opaque cursor, oldest first,
// tombstones included. An empty NextCursor ends the listing.
func (s *RecordService) List(ctx context.Context, col model.Collection, entityID, cursor string, limit int) (*Page, error) {
	afterSeq, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.pageSizeLimit {
		limit = s.pageSizeLimit
	}

	recs, lastSeq, err := s.repo.List(ctx, col, entityID, afterSeq, limit)
	if err != nil {
		return nil, err
	}

	// Every non-empty page carries a cursor, partial tail pages included,
	// so clients can persist a watermark past the records they applied.
	// An empty page ends the listing.
	page := &Page{Records: recs}
	if len(recs) > 0 {
		page.NextCursor = strconv.FormatInt(lastSeq, 10)
	}
	return page, nil
}

func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return seq, nil
}

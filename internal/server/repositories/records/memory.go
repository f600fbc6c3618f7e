package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/model"
)

type memoryRow struct {
	rec *model.Record
	seq int64
}

// MemoryRepository is an in-memory Repository used in tests and local
// development. Semantics mirror the PostgreSQL implementation, including
// seq assignment on every accepted write.
type MemoryRepository struct {
	mu      sync.Mutex
	rows    map[model.Collection]map[string]*memoryRow
	nextSeq map[model.Collection]int64
}

func NewMemoryRepository() *MemoryRepository {
	rows := make(map[model.Collection]map[string]*memoryRow)
	nextSeq := make(map[model.Collection]int64)
	for _, col := range model.Collections() {
		rows[col] = make(map[string]*memoryRow)
		nextSeq[col] = 0
	}
	return &MemoryRepository{rows: rows, nextSeq: nextSeq}
}

func (r *MemoryRepository) bump(col model.Collection) int64 {
	r.nextSeq[col]++
	return r.nextSeq[col]
}

func (r *MemoryRepository) Get(ctx context.Context, col model.Collection, id string) (*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[col][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return row.rec.Clone(), nil
}

func (r *MemoryRepository) Insert(ctx context.Context, col model.Collection, rec *model.Record) (*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[col][rec.ID]; ok {
		return nil, common.ErrAlreadyExists
	}

	now := time.Now().UTC()
	stored := rec.Clone()
	stored.Collection = col
	stored.Version = 1
	stored.Deleted = false
	if stored.Status == "" {
		stored.Status = model.StatusActive
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.rows[col][rec.ID] = &memoryRow{rec: stored, seq: r.bump(col)}
	return stored.Clone(), nil
}

func (r *MemoryRepository) UpdateIfVersion(ctx context.Context, col model.Collection, rec *model.Record, expectedVersion int64) (*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Tombstones accept a conditional update too; asserting the tombstone's
	// version resurrects the row.
	row, ok := r.rows[col][rec.ID]
	if !ok {
		return nil, common.ErrNotFound
	}
	if row.rec.Version != expectedVersion {
		return nil, common.ErrVersionConflict
	}

	stored := rec.Clone()
	stored.Collection = col
	stored.Version = expectedVersion + 1
	stored.Deleted = false
	if stored.Status == "" {
		stored.Status = model.StatusActive
	}
	stored.CreatedAt = row.rec.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	row.rec = stored
	row.seq = r.bump(col)
	return stored.Clone(), nil
}

func (r *MemoryRepository) DeleteIfVersion(ctx context.Context, col model.Collection, id string, expectedVersion int64) (*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[col][id]
	if !ok || row.rec.Deleted {
		return nil, common.ErrNotFound
	}
	if row.rec.Version != expectedVersion {
		return nil, common.ErrVersionConflict
	}

	stored := row.rec.Clone()
	stored.Deleted = true
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = time.Now().UTC()

	row.rec = stored
	row.seq = r.bump(col)
	return stored.Clone(), nil
}

func (r *MemoryRepository) List(ctx context.Context, col model.Collection, entityID string, afterSeq int64, limit int) ([]*model.Record, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []*memoryRow
	for _, row := range r.rows[col] {
		if row.seq <= afterSeq {
			continue
		}
		if entityID != "" && row.rec.EntityID != entityID {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	lastSeq := afterSeq
	result := make([]*model.Record, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.rec.Clone())
		lastSeq = row.seq
	}
	return result, lastSeq, nil
}

package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/logging"
	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/server/repositories/records"
)

func newRecordService(t *testing.T) *RecordService {
	t.Helper()
	log := logging.NewJSON(io.Discard, slog.LevelError)
	return NewRecordService(records.NewMemoryRepository(), log, 100)
}

func entity(id, name string) *model.Record {
	return model.NewEntity(id, "restaurant", name, map[string]any{"city": "Lisbon"})
}

func TestRecordService_Create(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	stored, created, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), stored.Version)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestRecordService_Create_RetryWithIdenticalContent(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	first, _, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna"))
	require.NoError(t, err)

	// Same create again, as a client whose first ack was lost would send it.
	again, created, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Version, again.Version)
}

func TestRecordService_Create_ExistingIdDifferentContent(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	_, _, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna"))
	require.NoError(t, err)

	_, _, err = svc.Create(ctx, model.CollectionEntities, entity("e1", "Other Name"))
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.Current.Version)
	require.ErrorIs(t, err, common.ErrVersionConflict)
}

func TestRecordService_Update(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	stored, _, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna"))
	require.NoError(t, err)

	stored.Name = "Taberna Nova"
	updated, err := svc.Update(ctx, model.CollectionEntities, stored, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "Taberna Nova", updated.Name)
}

func TestRecordService_Update_StaleVersion(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	stored, _, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna"))
	require.NoError(t, err)

	stored.Name = "First Writer"
	_, err = svc.Update(ctx, model.CollectionEntities, stored, 1)
	require.NoError(t, err)

	// Second writer still asserting version 1 loses.
	late := entity("e1", "Second Writer")
	_, err = svc.Update(ctx, model.CollectionEntities, late, 1)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(2), conflict.Current.Version)
	assert.Equal(t, "First Writer", conflict.Current.Name)
}

func TestRecordService_Update_Missing(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	_, err := svc.Update(ctx, model.CollectionEntities, entity("ghost", "x"), 1)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestRecordService_Delete(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	_, _, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna"))
	require.NoError(t, err)

	tomb, err := svc.Delete(ctx, model.CollectionEntities, "e1", 1)
	require.NoError(t, err)
	assert.True(t, tomb.Deleted)
	assert.Equal(t, int64(2), tomb.Version)

	// An update asserting the tombstone's version resurrects the record;
	// a stale assertion conflicts with the tombstone as the current state.
	_, err = svc.Update(ctx, model.CollectionEntities, entity("e1", "Back"), 1)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.Current.Deleted)

	revived, err := svc.Update(ctx, model.CollectionEntities, entity("e1", "Back"), 2)
	require.NoError(t, err)
	assert.False(t, revived.Deleted)
	assert.Equal(t, int64(3), revived.Version)
}

func TestRecordService_Create_ReclaimsTombstonedID(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	_, _, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna"))
	require.NoError(t, err)
	_, err = svc.Delete(ctx, model.CollectionEntities, "e1", 1)
	require.NoError(t, err)

	// The id can be taken again; the version chain continues past the
	// tombstone so earlier readers still observe the deletion.
	stored, created, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna Nova"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, stored.Deleted)
	assert.Equal(t, "Taberna Nova", stored.Name)
	assert.Equal(t, int64(3), stored.Version)
}

func TestRecordService_Delete_StaleVersion(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	stored, _, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna"))
	require.NoError(t, err)

	stored.Name = "Renamed"
	_, err = svc.Update(ctx, model.CollectionEntities, stored, 1)
	require.NoError(t, err)

	_, err = svc.Delete(ctx, model.CollectionEntities, "e1", 1)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(2), conflict.Current.Version)
}

func TestRecordService_List_Pagination(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	for _, id := range []string{"e1", "e2", "e3"} {
		_, _, err := svc.Create(ctx, model.CollectionEntities, entity(id, "Name "+id))
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, model.CollectionEntities, "", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.NotEmpty(t, page.NextCursor)

	// The partial tail page still carries a cursor so callers can persist
	// their watermark past it; the listing ends on the empty page.
	page2, err := svc.List(ctx, model.CollectionEntities, "", page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Records, 1)
	require.NotEmpty(t, page2.NextCursor)
	assert.Equal(t, "e3", page2.Records[0].ID)

	page3, err := svc.List(ctx, model.CollectionEntities, "", page2.NextCursor, 2)
	require.NoError(t, err)
	assert.Empty(t, page3.Records)
	assert.Empty(t, page3.NextCursor)
}

func TestRecordService_List_UpdatedRecordReappears(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	stored, _, err := svc.Create(ctx, model.CollectionEntities, entity("e1", "Taberna"))
	require.NoError(t, err)
	_, _, err = svc.Create(ctx, model.CollectionEntities, entity("e2", "Cantina"))
	require.NoError(t, err)

	page, err := svc.List(ctx, model.CollectionEntities, "", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)

	// Read everything, then update e1: only e1 appears after the cursor.
	full, err := svc.List(ctx, model.CollectionEntities, "", "", 2)
	require.NoError(t, err)
	cursor := full.NextCursor
	require.NotEmpty(t, cursor)

	stored.Name = "Taberna Nova"
	_, err = svc.Update(ctx, model.CollectionEntities, stored, 1)
	require.NoError(t, err)

	delta, err := svc.List(ctx, model.CollectionEntities, "", cursor, 10)
	require.NoError(t, err)
	require.Len(t, delta.Records, 1)
	assert.Equal(t, "e1", delta.Records[0].ID)
	assert.Equal(t, int64(2), delta.Records[0].Version)
}

func TestRecordService_List_EntityFilter(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	c1 := model.NewCuration("c1", "e1", "u1", map[string]any{"note": "great"})
	c2 := model.NewCuration("c2", "e2", "u1", map[string]any{"note": "meh"})
	for _, rec := range []*model.Record{c1, c2} {
		_, _, err := svc.Create(ctx, model.CollectionCurations, rec)
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, model.CollectionCurations, "e1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "c1", page.Records[0].ID)
}

func TestRecordService_List_InvalidCursor(t *testing.T) {
	ctx := context.Background()
	svc := newRecordService(t)

	_, err := svc.List(ctx, model.CollectionEntities, "", "not-a-cursor", 10)
	require.Error(t, err)
}

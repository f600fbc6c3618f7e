package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/dbx"
	"github.com/plateful/plateful/internal/model"
)

// tableNames maps a collection to its local table. Lookup through this map
// is what keeps collection values out of SQL text.
var tableNames = map[model.Collection]string{
	model.CollectionEntities:  "entities",
	model.CollectionCurations: "curations",
}

const recordColumns = `id, type, name, external_ref, entity_id, curator_id,
	payload, status, deleted, version, server_version, sync_state, sync_error,
	remote_snapshot, created_at, updated_at`

// SQLiteStore implements Store using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteStore struct {
	db dbx.DBTX
}

// NewSQLiteStore returns a new SQLiteStore bound to the given DBTX.
func NewSQLiteStore(db dbx.DBTX) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func tableFor(col model.Collection) (string, error) {
	name, ok := tableNames[col]
	if !ok {
		return "", fmt.Errorf("unknown collection %q", col)
	}
	return name, nil
}

func (s *SQLiteStore) Get(ctx context.Context, col model.Collection, id string) (*model.Record, error) {
	table, err := tableFor(col)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+` WHERE id = ?`, id)
	rec, err := scanRecord(row, col)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, col model.Collection, rec *model.Record, baseVersion int64) (*model.Record, error) {
	table, err := tableFor(col)
	if err != nil {
		return nil, err
	}

	payload, err := marshalPayload(rec.Payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if baseVersion == 0 {
		created := rec.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO `+table+` (id, type, name, external_ref, entity_id, curator_id,
				payload, status, deleted, version, server_version, sync_state,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?, ?)`,
			rec.ID, rec.Type, rec.Name, rec.ExternalRef, rec.EntityID, rec.CuratorID,
			payload, string(statusOrDefault(rec.Status)), boolToInt(rec.Deleted),
			string(model.SyncStatePending), formatTime(created), formatTime(now))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, common.ErrAlreadyExists
			}
			return nil, fmt.Errorf("failed to insert record: %w", err)
		}
		return s.Get(ctx, col, rec.ID)
	}

	// Single compare-and-set statement: only the writer holding the current
	// version wins, so two local mutators cannot both apply.
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+` SET
			type = ?, name = ?, external_ref = ?, entity_id = ?, curator_id = ?,
			payload = ?, status = ?, deleted = ?,
			version = version + 1, sync_state = ?, sync_error = '',
			updated_at = ?
		WHERE id = ? AND version = ?`,
		rec.Type, rec.Name, rec.ExternalRef, rec.EntityID, rec.CuratorID,
		payload, string(statusOrDefault(rec.Status)), boolToInt(rec.Deleted),
		string(model.SyncStatePending), formatTime(now),
		rec.ID, baseVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, col, rec.ID); errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, common.ErrStaleWrite
	}
	return s.Get(ctx, col, rec.ID)
}

func (s *SQLiteStore) List(ctx context.Context, col model.Collection) ([]*model.Record, error) {
	table, err := tableFor(col)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+` WHERE deleted = 0 ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows, col)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLiteStore) ListBySyncState(ctx context.Context, col model.Collection, state model.SyncState) ([]*model.Record, error) {
	table, err := tableFor(col)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+` WHERE sync_state = ? ORDER BY updated_at`,
		string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows, col)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLiteStore) MarkSynced(ctx context.Context, col model.Collection, id string, baseVersion, serverVersion int64, createdAt, updatedAt time.Time) error {
	table, err := tableFor(col)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+` SET
			version = ?, server_version = ?, sync_state = ?, sync_error = '',
			remote_snapshot = NULL, created_at = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		serverVersion, serverVersion, string(model.SyncStateSynced),
		formatTime(createdAt), formatTime(updatedAt),
		id, baseVersion)
	if err != nil {
		return fmt.Errorf("failed to mark synced: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	// The record was edited again while the push was in flight: advance the
	// acknowledged server version only and leave the new edit pending.
	res, err = s.db.ExecContext(ctx,
		`UPDATE `+table+` SET server_version = ? WHERE id = ?`,
		serverVersion, id)
	if err != nil {
		return fmt.Errorf("failed to advance server version: %w", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkConflict(ctx context.Context, col model.Collection, id string, remote *model.Record) error {
	table, err := tableFor(col)
	if err != nil {
		return err
	}

	var snapshot any
	if remote != nil {
		raw, err := json.Marshal(remote)
		if err != nil {
			return fmt.Errorf("failed to marshal remote snapshot: %w", err)
		}
		snapshot = string(raw)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET sync_state = ?, remote_snapshot = ? WHERE id = ?`,
		string(model.SyncStateConflict), snapshot, id)
	if err != nil {
		return fmt.Errorf("failed to mark conflict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkError(ctx context.Context, col model.Collection, id string, detail string) error {
	table, err := tableFor(col)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET sync_state = ?, sync_error = ? WHERE id = ?`,
		string(model.SyncStateError), detail, id)
	if err != nil {
		return fmt.Errorf("failed to mark error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ApplyRemote(ctx context.Context, col model.Collection, rec *model.Record) (bool, error) {
	table, err := tableFor(col)
	if err != nil {
		return false, err
	}

	payload, err := marshalPayload(rec.Payload)
	if err != nil {
		return false, err
	}

	// Never clobber local pending edits, unresolved conflicts, or rejected
	// records awaiting a fix. The engine checks first, but the store is the
	// final guard.
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+` SET
			type = ?, name = ?, external_ref = ?, entity_id = ?, curator_id = ?,
			payload = ?, status = ?, deleted = ?,
			version = ?, server_version = ?, sync_state = ?, sync_error = '',
			remote_snapshot = NULL, created_at = ?, updated_at = ?
		WHERE id = ? AND sync_state NOT IN (?, ?, ?)`,
		rec.Type, rec.Name, rec.ExternalRef, rec.EntityID, rec.CuratorID,
		payload, string(statusOrDefault(rec.Status)), boolToInt(rec.Deleted),
		rec.Version, rec.Version, string(model.SyncStateSynced),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		rec.ID, string(model.SyncStatePending), string(model.SyncStateConflict),
		string(model.SyncStateError))
	if err != nil {
		return false, fmt.Errorf("failed to apply remote record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	if _, err := s.Get(ctx, col, rec.ID); err == nil {
		// Row exists but holds local state: leave it alone.
		return false, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return false, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, type, name, external_ref, entity_id, curator_id,
			payload, status, deleted, version, server_version, sync_state,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Type, rec.Name, rec.ExternalRef, rec.EntityID, rec.CuratorID,
		payload, string(statusOrDefault(rec.Status)), boolToInt(rec.Deleted),
		rec.Version, rec.Version, string(model.SyncStateSynced),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert remote record: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) DeleteLocal(ctx context.Context, col model.Collection, id string) error {
	table, err := tableFor(col)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Cursor(ctx context.Context, col model.Collection) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM sync_cursors WHERE collection = ?`, string(col)).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get cursor[%s]: %w", col, err)
	}
	return cursor, nil
}

func (s *SQLiteStore) SetCursor(ctx context.Context, col model.Collection, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (collection, cursor) VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET cursor = excluded.cursor`,
		string(col), cursor)
	if err != nil {
		return fmt.Errorf("failed to set cursor[%s]: %w", col, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, col model.Collection) (*model.Record, error) {
	var (
		rec              model.Record
		payload          string
		status           string
		deleted          int
		syncState        string
		snapshot         sql.NullString
		created, updated string
	)
	err := row.Scan(&rec.ID, &rec.Type, &rec.Name, &rec.ExternalRef,
		&rec.EntityID, &rec.CuratorID, &payload, &status, &deleted,
		&rec.Version, &rec.ServerVersion, &syncState, &rec.SyncErrorDetail,
		&snapshot, &created, &updated)
	if err != nil {
		return nil, err
	}

	rec.Collection = col
	rec.Status = model.RecordStatus(status)
	rec.Deleted = deleted != 0
	rec.SyncState = model.SyncState(syncState)
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	if snapshot.Valid && snapshot.String != "" {
		var remote model.Record
		if err := json.Unmarshal([]byte(snapshot.String), &remote); err != nil {
			return nil, fmt.Errorf("failed to decode remote snapshot: %w", err)
		}
		remote.Collection = col
		rec.RemoteSnapshot = &remote
	}
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}

func marshalPayload(p map[string]any) (string, error) {
	if p == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(raw), nil
}

func statusOrDefault(s model.RecordStatus) model.RecordStatus {
	if s == "" {
		return model.StatusActive
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text;
	// we only need insert-vs-exists disambiguation here.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

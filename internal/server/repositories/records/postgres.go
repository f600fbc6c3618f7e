package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/dbx"
	"github.com/plateful/plateful/internal/model"
)

// tableNames maps a collection to its table and its change sequence.
// Lookup through this map keeps collection values out of SQL text.
var tableNames = map[model.Collection]struct {
	table string
	seq   string
}{
	model.CollectionEntities:  {table: "entities", seq: "entities_seq"},
	model.CollectionCurations: {table: "curations", seq: "curations_seq"},
}

const recordColumns = `id, type, name, external_ref, entity_id, curator_id,
	payload, status, deleted, version, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func tableFor(col model.Collection) (string, string, error) {
	names, ok := tableNames[col]
	if !ok {
		return "", "", fmt.Errorf("unknown collection %q", col)
	}
	return names.table, names.seq, nil
}

func (r *PostgresRepository) Get(ctx context.Context, col model.Collection, id string) (*model.Record, error) {
	table, _, err := tableFor(col)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+` WHERE id = $1`, id)
	rec, err := scanRecord(row, col)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, col model.Collection, rec *model.Record) (*model.Record, error) {
	table, _, err := tableFor(col)
	if err != nil {
		return nil, err
	}

	payload, err := marshalPayload(rec.Payload)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO `+table+` (id, type, name, external_ref, entity_id, curator_id,
			payload, status, deleted, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, 1)
		RETURNING `+recordColumns,
		rec.ID, rec.Type, rec.Name, rec.ExternalRef, rec.EntityID, rec.CuratorID,
		payload, string(statusOrDefault(rec.Status)))

	stored, err := scanRecord(row, col)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	return stored, nil
}

func (r *PostgresRepository) UpdateIfVersion(ctx context.Context, col model.Collection, rec *model.Record, expectedVersion int64) (*model.Record, error) {
	table, seq, err := tableFor(col)
	if err != nil {
		return nil, err
	}

	payload, err := marshalPayload(rec.Payload)
	if err != nil {
		return nil, err
	}

	// Single conditional statement: only the caller asserting the current
	// version wins. Tombstones are fair game too; asserting a tombstone's
	// version resurrects the row and the version chain continues past the
	// deletion. seq is bumped so the change replays on pull.
	row := r.db.QueryRowContext(ctx, `
		UPDATE `+table+` SET
			type = $1, name = $2, external_ref = $3, entity_id = $4, curator_id = $5,
			payload = $6, status = $7, deleted = FALSE,
			version = version + 1, seq = nextval('`+seq+`'), updated_at = now()
		WHERE id = $8 AND version = $9
		RETURNING `+recordColumns,
		rec.Type, rec.Name, rec.ExternalRef, rec.EntityID, rec.CuratorID,
		payload, string(statusOrDefault(rec.Status)),
		rec.ID, expectedVersion)

	stored, err := scanRecord(row, col)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, col, rec.ID); getErr != nil {
			return nil, getErr
		}
		return nil, common.ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return stored, nil
}

func (r *PostgresRepository) DeleteIfVersion(ctx context.Context, col model.Collection, id string, expectedVersion int64) (*model.Record, error) {
	table, seq, err := tableFor(col)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE `+table+` SET
			deleted = TRUE,
			version = version + 1, seq = nextval('`+seq+`'), updated_at = now()
		WHERE id = $1 AND version = $2 AND deleted = FALSE
		RETURNING `+recordColumns,
		id, expectedVersion)

	stored, err := scanRecord(row, col)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.missOrConflict(ctx, col, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete record: %w", err)
	}
	return stored, nil
}

// missOrConflict disambiguates a zero-row delete: missing or already
// tombstoned rows are NotFound, live rows at another version are conflicts.
func (r *PostgresRepository) missOrConflict(ctx context.Context, col model.Collection, id string) error {
	current, err := r.Get(ctx, col, id)
	if err != nil {
		return err
	}
	if current.Deleted {
		return common.ErrNotFound
	}
	return common.ErrVersionConflict
}

func (r *PostgresRepository) List(ctx context.Context, col model.Collection, entityID string, afterSeq int64, limit int) ([]*model.Record, int64, error) {
	table, _, err := tableFor(col)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT seq, ` + recordColumns + ` FROM ` + table + ` WHERE seq > $1`
	args := []any{afterSeq}
	if entityID != "" {
		query += ` AND entity_id = $2`
		args = append(args, entityID)
	}
	query += fmt.Sprintf(` ORDER BY seq LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	lastSeq := afterSeq
	var result []*model.Record
	for rows.Next() {
		var seq int64
		rec, err := scanRecordWithSeq(rows, col, &seq)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, rec)
		lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, lastSeq, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, col model.Collection) (*model.Record, error) {
	return scan(row, col, nil)
}

func scanRecordWithSeq(row rowScanner, col model.Collection, seq *int64) (*model.Record, error) {
	return scan(row, col, seq)
}

func scan(row rowScanner, col model.Collection, seq *int64) (*model.Record, error) {
	var (
		rec     model.Record
		payload []byte
		status  string
	)
	dest := []any{}
	if seq != nil {
		dest = append(dest, seq)
	}
	dest = append(dest, &rec.ID, &rec.Type, &rec.Name, &rec.ExternalRef,
		&rec.EntityID, &rec.CuratorID, &payload, &status, &rec.Deleted,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	rec.Collection = col
	rec.Status = model.RecordStatus(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	return &rec, nil
}

func marshalPayload(p map[string]any) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return raw, nil
}

func statusOrDefault(s model.RecordStatus) model.RecordStatus {
	if s == "" {
		return model.StatusActive
	}
	return s
}

func isUniqueViolation(err error) bool {
	// pgx surfaces SQLSTATE 23505 in the error text through database/sql.
	return err != nil && strings.Contains(err.Error(), "23505")
}

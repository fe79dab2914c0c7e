package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledgerline/internal/domain/mapping"
)

// MappingRepository stores one mapping kind. Vendor and category mappings
// share a schema and live in separate tables.
type MappingRepository struct {
	db    *DB
	table string
}

func NewMappingRepository(db *DB, kind mapping.Kind) *MappingRepository {
	table := "vendor_mappings"
	if kind == mapping.KindCategory {
		table = "category_mappings"
	}
	return &MappingRepository{db: db, table: table}
}

const mappingColumns = `id, key, resolved_value, resolved_label, user_id, confidence, source, created_at, updated_at`

// Candidates returns the global mapping, the user's own mapping and the most
// confident mapping of any other user for key.
func (r *MappingRepository) Candidates(ctx context.Context, key string, userID *int64) ([]*mapping.Record, error) {
	query := `
		(SELECT ` + mappingColumns + ` FROM ` + r.table + `
		 WHERE key = $1 AND (user_id IS NULL OR user_id = $2))
		UNION ALL
		(SELECT ` + mappingColumns + ` FROM ` + r.table + `
		 WHERE key = $1 AND user_id IS NOT NULL AND user_id IS DISTINCT FROM $2
		 ORDER BY confidence DESC, updated_at DESC
		 LIMIT 1)
	`

	rows, err := r.db.QueryContext(ctx, query, key, nullInt64(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.table, err)
	}
	defer rows.Close()

	var records []*mapping.Record
	for rows.Next() {
		var rec mapping.Record
		var uid sql.NullInt64
		var source string
		if err := rows.Scan(
			&rec.ID, &rec.Key, &rec.ResolvedValue, &rec.ResolvedLabel, &uid,
			&rec.Confidence, &source, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		rec.UserID = int64Ptr(uid)
		rec.Source = mapping.Source(source)
		records = append(records, &rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", r.table, err)
	}

	return records, nil
}

// UpsertIfBetter inserts the mapping or replaces the one in the same scope
// when the overwrite rule allows it. It reports whether a row was written.
func (r *MappingRepository) UpsertIfBetter(ctx context.Context, params mapping.WriteParams, margin float64) (bool, error) {
	query := `
		INSERT INTO ` + r.table + ` AS m (key, resolved_value, resolved_label, user_id, confidence, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key, COALESCE(user_id, 0)) DO UPDATE
			SET resolved_value = EXCLUDED.resolved_value,
			    resolved_label = EXCLUDED.resolved_label,
			    confidence = EXCLUDED.confidence,
			    source = EXCLUDED.source,
			    updated_at = NOW()
			WHERE EXCLUDED.confidence > m.confidence + $7
			   OR (EXCLUDED.source = 'user' AND m.source <> 'user')
	`

	result, err := r.db.ExecContext(ctx, query,
		params.Key, params.Value, params.Label, nullInt64(params.UserID),
		params.Confidence, string(params.Source), margin,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert %s: %w", r.table, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// Put writes the mapping unconditionally.
func (r *MappingRepository) Put(ctx context.Context, params mapping.WriteParams) error {
	query := `
		INSERT INTO ` + r.table + ` (key, resolved_value, resolved_label, user_id, confidence, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key, COALESCE(user_id, 0)) DO UPDATE
			SET resolved_value = EXCLUDED.resolved_value,
			    resolved_label = EXCLUDED.resolved_label,
			    confidence = EXCLUDED.confidence,
			    source = EXCLUDED.source,
			    updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		params.Key, params.Value, params.Label, nullInt64(params.UserID),
		params.Confidence, string(params.Source),
	)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", r.table, err)
	}
	return nil
}

func (r *MappingRepository) CountAgreeingUsers(ctx context.Context, key, value string) (int, error) {
	query := `SELECT COUNT(*) FROM ` + r.table + ` WHERE key = $1 AND resolved_value = $2 AND user_id IS NOT NULL`

	var n int
	if err := r.db.QueryRowContext(ctx, query, key, value).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count agreeing users: %w", err)
	}
	return n, nil
}

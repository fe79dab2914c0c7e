package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledgerline/internal/domain/transaction"
)

type StatementFileRepository struct {
	db *DB
}

func NewStatementFileRepository(db *DB) *StatementFileRepository {
	return &StatementFileRepository{db: db}
}

func (r *StatementFileRepository) GetByID(ctx context.Context, id string, userID int64) (*transaction.StatementFile, error) {
	query := `
		SELECT id, user_id, status, transaction_count, total_income, total_expenses,
		       parsing_confidence, processed_at, created_at, updated_at
		FROM statement_files
		WHERE id = $1 AND user_id = $2
	`

	var f transaction.StatementFile
	var status string
	var processedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&f.ID, &f.UserID, &status, &f.TransactionCount, &f.TotalIncome, &f.TotalExpenses,
		&f.ParsingConfidence, &processedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement file: %w", err)
	}

	f.Status = transaction.FileStatus(status)
	if processedAt.Valid {
		f.ProcessedAt = &processedAt.Time
	}
	return &f, nil
}

// MarkPending creates the file row or resets an existing one owned by the
// same user. A file id owned by someone else yields ErrFileNotFound.
func (r *StatementFileRepository) MarkPending(ctx context.Context, id string, userID int64, parsingConfidence float64) error {
	query := `
		INSERT INTO statement_files (id, user_id, status, parsing_confidence)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (id) DO UPDATE
			SET status = 'pending',
			    parsing_confidence = EXCLUDED.parsing_confidence,
			    updated_at = NOW()
			WHERE statement_files.user_id = EXCLUDED.user_id
	`

	result, err := r.db.ExecContext(ctx, query, id, userID, parsingConfidence)
	if err != nil {
		return fmt.Errorf("failed to mark statement file pending: %w", err)
	}
	return expectOneRow(result, transaction.ErrFileNotFound)
}

func (r *StatementFileRepository) SetStatus(ctx context.Context, id string, status transaction.FileStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE statement_files SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set statement file status: %w", err)
	}
	return expectOneRow(result, transaction.ErrFileNotFound)
}

func (r *StatementFileRepository) UpdateStats(ctx context.Context, id string, stats transaction.FileStats) error {
	query := `
		UPDATE statement_files
		SET transaction_count = $1,
		    total_income = $2,
		    total_expenses = $3,
		    status = $4,
		    processed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		stats.TransactionCount, stats.TotalIncome, stats.TotalExpenses, string(stats.Status), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update statement file stats: %w", err)
	}
	return expectOneRow(result, transaction.ErrFileNotFound)
}

func expectOneRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

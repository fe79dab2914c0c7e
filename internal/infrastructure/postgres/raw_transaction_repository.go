package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"ledgerline/internal/domain/transaction"
)

type RawTransactionRepository struct {
	db *DB
}

func NewRawTransactionRepository(db *DB) *RawTransactionRepository {
	return &RawTransactionRepository{db: db}
}

const rawColumns = `id, file_id, user_id, date, description, reference_number, raw_text, amount, type,
	original_currency, original_amount, fingerprint, parsing_confidence, created_at`

func (r *RawTransactionRepository) Insert(ctx context.Context, raw *transaction.RawTransaction) error {
	query := `
		INSERT INTO raw_transactions (` + rawColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	var originalAmount decimal.NullDecimal
	if raw.OriginalAmount != nil {
		originalAmount = decimal.NewNullDecimal(*raw.OriginalAmount)
	}

	_, err := r.db.ExecContext(ctx, query,
		raw.ID, raw.FileID, raw.UserID, raw.Date, raw.Description, nullString(raw.ReferenceNumber),
		raw.RawText, raw.Amount, string(raw.Type), nullString(raw.OriginalCurrency), originalAmount,
		raw.Fingerprint, raw.ParsingConfidence, raw.CreatedAt,
	)
	if constraint, ok := uniqueConstraint(err); ok && constraint == rawFingerprintKey {
		return transaction.ErrDuplicateFingerprint
	}
	if err != nil {
		return fmt.Errorf("failed to insert raw transaction: %w", err)
	}
	return nil
}

func (r *RawTransactionRepository) ListByFileID(ctx context.Context, fileID string, userID int64) ([]*transaction.RawTransaction, error) {
	query := `
		SELECT ` + rawColumns + `
		FROM raw_transactions
		WHERE file_id = $1 AND user_id = $2
		ORDER BY date, created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, fileID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw transactions: %w", err)
	}
	defer rows.Close()

	var raws []*transaction.RawTransaction
	for rows.Next() {
		raw, err := scanRaw(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw transaction: %w", err)
		}
		raws = append(raws, raw)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw transactions: %w", err)
	}

	return raws, nil
}

func scanRaw(s rowScanner) (*transaction.RawTransaction, error) {
	var raw transaction.RawTransaction
	var txType string
	var reference, currency sql.NullString
	var originalAmount decimal.NullDecimal

	err := s.Scan(
		&raw.ID, &raw.FileID, &raw.UserID, &raw.Date, &raw.Description, &reference,
		&raw.RawText, &raw.Amount, &txType, &currency, &originalAmount,
		&raw.Fingerprint, &raw.ParsingConfidence, &raw.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	raw.Type = transaction.Type(txType)
	raw.ReferenceNumber = stringPtr(reference)
	raw.OriginalCurrency = stringPtr(currency)
	if originalAmount.Valid {
		amount := originalAmount.Decimal
		raw.OriginalAmount = &amount
	}
	return &raw, nil
}

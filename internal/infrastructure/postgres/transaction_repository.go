package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"ledgerline/internal/domain/transaction"
)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, raw_transaction_id, file_id, user_id, date, description, reference_number, raw_text,
	amount, type, original_currency, original_amount, fingerprint, parsing_confidence,
	vendor_name, vendor_name_original, category_id, notes, is_internal_transfer, related_transaction_id,
	is_duplicate, duplicate_of_id, categorization_confidence, categorization_source, created_at, updated_at`

// Insert writes a canonical row. Transfer link columns keep their defaults;
// they are only ever set by LinkTransfer.
func (r *TransactionRepository) Insert(ctx context.Context, txn *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, raw_transaction_id, file_id, user_id, date, description, reference_number, raw_text,
			amount, type, original_currency, original_amount, fingerprint, parsing_confidence,
			vendor_name, vendor_name_original, category_id, notes, is_duplicate, duplicate_of_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at, updated_at
	`

	var originalAmount decimal.NullDecimal
	if txn.OriginalAmount != nil {
		originalAmount = decimal.NewNullDecimal(*txn.OriginalAmount)
	}

	err := r.db.QueryRowContext(ctx, query,
		txn.ID, txn.RawTransactionID, txn.FileID, txn.UserID, txn.Date, txn.Description,
		nullString(txn.ReferenceNumber), txn.RawText, txn.Amount, string(txn.Type),
		nullString(txn.OriginalCurrency), originalAmount, txn.Fingerprint, txn.ParsingConfidence,
		txn.VendorName, txn.VendorNameOriginal, nullInt64(txn.CategoryID), nullString(txn.Notes),
		txn.IsDuplicate, nullString(txn.DuplicateOfID),
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)

	if constraint, ok := uniqueConstraint(err); ok {
		switch constraint {
		case txnFingerprintKey:
			return transaction.ErrDuplicateFingerprint
		case txnRawTransactionID:
			return transaction.ErrAlreadyProcessed
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string, userID int64) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND user_id = $2`

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

func (r *TransactionRepository) FindByFingerprint(ctx context.Context, userID int64, fingerprint string) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND fingerprint = $2 AND NOT is_duplicate
	`

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, userID, fingerprint))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by fingerprint: %w", err)
	}
	return txn, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.FileID != "" {
		conditions = append(conditions, "file_id = "+arg(filter.FileID))
	}
	if !filter.IncludeDupes {
		conditions = append(conditions, "NOT is_duplicate")
	}
	if filter.Uncategorized {
		conditions = append(conditions, "category_id IS NULL")
	}
	if filter.TransfersOnly {
		conditions = append(conditions, "is_internal_transfer")
	}
	if filter.From != nil {
		conditions = append(conditions, "date >= "+arg(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "date <= "+arg(*filter.To))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY date DESC, created_at DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(max(filter.Offset, 0))

	return r.list(ctx, "transactions", query, args...)
}

func (r *TransactionRepository) ListByFileID(ctx context.Context, fileID string) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE file_id = $1
		ORDER BY date, created_at
	`
	return r.list(ctx, "file transactions", query, fileID)
}

func (r *TransactionRepository) ListTransferCandidates(ctx context.Context, userID int64) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND NOT is_duplicate AND related_transaction_id IS NULL
		ORDER BY date, created_at
	`
	return r.list(ctx, "transfer candidates", query, userID)
}

func (r *TransactionRepository) ListUncategorized(ctx context.Context, userID int64, limit int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND category_id IS NULL AND NOT is_duplicate
		ORDER BY date DESC, created_at DESC
		LIMIT $2
	`
	return r.list(ctx, "uncategorized transactions", query, userID, limit)
}

// LinkTransfer marks both legs as an internal transfer pair. Both rows are
// locked and must still be unlinked; otherwise nothing is written.
func (r *TransactionRepository) LinkTransfer(ctx context.Context, debitID, creditID string) (bool, error) {
	linked := false
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM transactions
			WHERE id = ANY($1) AND related_transaction_id IS NULL AND NOT is_duplicate
			FOR UPDATE
		`, pq.Array([]string{debitID, creditID}))
		if err != nil {
			return fmt.Errorf("failed to lock transfer legs: %w", err)
		}
		free := 0
		for rows.Next() {
			free++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating transfer legs: %w", err)
		}
		if free != 2 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE transactions
			SET is_internal_transfer = true,
			    related_transaction_id = CASE WHEN id = $1 THEN $2::uuid ELSE $1::uuid END,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id IN ($1, $2)
		`, debitID, creditID)
		if err != nil {
			return fmt.Errorf("failed to link transfer: %w", err)
		}
		linked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return linked, nil
}

func (r *TransactionRepository) UpdateCategorization(ctx context.Context, id string, params transaction.CategorizationUpdate) error {
	query := `
		UPDATE transactions
		SET vendor_name = $1,
		    category_id = $2,
		    categorization_confidence = $3,
		    categorization_source = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		params.VendorName, nullInt64(params.CategoryID), params.Confidence, params.Source, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update categorization: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return transaction.ErrTransactionNotFound
	}
	return nil
}

// Update applies a user's edit. A category change is recorded as a user
// decision with full confidence.
func (r *TransactionRepository) Update(ctx context.Context, id string, userID int64, params transaction.UpdateParams) (*transaction.Transaction, error) {
	query := `
		UPDATE transactions
		SET vendor_name = COALESCE($1, vendor_name),
		    category_id = COALESCE($2, category_id),
		    notes = COALESCE($3, notes),
		    categorization_confidence = CASE WHEN $2::bigint IS NULL THEN categorization_confidence ELSE 1.0 END,
		    categorization_source = CASE WHEN $2::bigint IS NULL THEN categorization_source ELSE 'user' END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $4 AND user_id = $5
		RETURNING ` + transactionColumns

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		nullString(params.VendorName), nullInt64(params.CategoryID), nullString(params.Notes), id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, transaction.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	return txn, nil
}

func (r *TransactionRepository) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM transactions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *TransactionRepository) list(ctx context.Context, what, query string, args ...any) ([]*transaction.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}
	defer rows.Close()

	var txns []*transaction.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", what, err)
	}

	return txns, nil
}

func scanTransaction(s rowScanner) (*transaction.Transaction, error) {
	var txn transaction.Transaction
	var txType string
	var reference, currency, notes, related, duplicateOf, source sql.NullString
	var originalAmount decimal.NullDecimal
	var categoryID sql.NullInt64
	var confidence sql.NullFloat64

	err := s.Scan(
		&txn.ID, &txn.RawTransactionID, &txn.FileID, &txn.UserID, &txn.Date, &txn.Description,
		&reference, &txn.RawText, &txn.Amount, &txType, &currency, &originalAmount,
		&txn.Fingerprint, &txn.ParsingConfidence, &txn.VendorName, &txn.VendorNameOriginal,
		&categoryID, &notes, &txn.IsInternalTransfer, &related, &txn.IsDuplicate, &duplicateOf,
		&confidence, &source, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Type = transaction.Type(txType)
	txn.ReferenceNumber = stringPtr(reference)
	txn.OriginalCurrency = stringPtr(currency)
	if originalAmount.Valid {
		amount := originalAmount.Decimal
		txn.OriginalAmount = &amount
	}
	txn.CategoryID = int64Ptr(categoryID)
	txn.Notes = stringPtr(notes)
	txn.RelatedTransactionID = stringPtr(related)
	txn.DuplicateOfID = stringPtr(duplicateOf)
	txn.CategorizationConfidence = float64Ptr(confidence)
	txn.CategorizationSource = stringPtr(source)
	return &txn, nil
}

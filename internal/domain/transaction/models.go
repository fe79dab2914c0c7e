package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrIncompleteTransaction is returned when a record lacks a field the fingerprint depends on.
	ErrIncompleteTransaction = errors.New("transaction is missing required fields")
	// ErrDuplicateFingerprint is returned by stores when a non-duplicate row with the
	// same (user_id, fingerprint) already exists. Callers treat it as "already processed".
	ErrDuplicateFingerprint = errors.New("transaction with this fingerprint already exists")
	// ErrAlreadyProcessed is returned when the raw row was already turned into a canonical row.
	ErrAlreadyProcessed    = errors.New("raw transaction already processed")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrFileNotFound        = errors.New("statement file not found")
)

// Type is the direction of money movement as printed on the statement.
type Type string

const (
	TypeDebit  Type = "DEBIT"
	TypeCredit Type = "CREDIT"
)

// Valid reports whether t is one of the known directions.
func (t Type) Valid() bool {
	return t == TypeDebit || t == TypeCredit
}

type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// RawTransaction is a row as extracted from a statement. Immutable once stored.
type RawTransaction struct {
	ID                string           `json:"id"`
	FileID            string           `json:"fileId"`
	UserID            int64            `json:"userId"`
	Date              time.Time        `json:"date"`
	Description       string           `json:"description"`
	ReferenceNumber   *string          `json:"referenceNumber,omitempty"`
	RawText           string           `json:"rawText"`
	Amount            decimal.Decimal  `json:"amount"`
	Type              Type             `json:"type"`
	OriginalCurrency  *string          `json:"originalCurrency,omitempty"`
	OriginalAmount    *decimal.Decimal `json:"originalAmount,omitempty"`
	Fingerprint       string           `json:"fingerprint"`
	ParsingConfidence float64          `json:"parsingConfidence"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// Transaction is the canonical ledger row. RelatedTransactionID and DuplicateOfID
// reference other rows of the same table by id.
type Transaction struct {
	ID                       string           `json:"id"`
	RawTransactionID         string           `json:"rawTransactionId"`
	FileID                   string           `json:"fileId"`
	UserID                   int64            `json:"userId"`
	Date                     time.Time        `json:"date"`
	Description              string           `json:"description"`
	ReferenceNumber          *string          `json:"referenceNumber,omitempty"`
	RawText                  string           `json:"rawText"`
	Amount                   decimal.Decimal  `json:"amount"`
	Type                     Type             `json:"type"`
	OriginalCurrency         *string          `json:"originalCurrency,omitempty"`
	OriginalAmount           *decimal.Decimal `json:"originalAmount,omitempty"`
	Fingerprint              string           `json:"fingerprint"`
	ParsingConfidence        float64          `json:"parsingConfidence"`
	VendorName               string           `json:"vendorName"`
	VendorNameOriginal       string           `json:"vendorNameOriginal"`
	CategoryID               *int64           `json:"categoryId,omitempty"`
	Notes                    *string          `json:"notes,omitempty"`
	IsInternalTransfer       bool             `json:"isInternalTransfer"`
	RelatedTransactionID     *string          `json:"relatedTransactionId,omitempty"`
	IsDuplicate              bool             `json:"isDuplicate"`
	DuplicateOfID            *string          `json:"duplicateOfId,omitempty"`
	CategorizationConfidence *float64         `json:"categorizationConfidence,omitempty"`
	CategorizationSource     *string          `json:"categorizationSource,omitempty"`
	CreatedAt                time.Time        `json:"createdAt"`
	UpdatedAt                time.Time        `json:"updatedAt"`
}

// Linked reports whether the row already takes part in a transfer pair.
func (t *Transaction) Linked() bool {
	return t.RelatedTransactionID != nil
}

// StatementFile tracks one uploaded statement and its aggregates.
type StatementFile struct {
	ID                string          `json:"id"`
	UserID            int64           `json:"userId"`
	Status            FileStatus      `json:"status"`
	TransactionCount  int             `json:"transactionCount"`
	TotalIncome       decimal.Decimal `json:"totalIncome"`
	TotalExpenses     decimal.Decimal `json:"totalExpenses"`
	ParsingConfidence float64         `json:"parsingConfidence"`
	ProcessedAt       *time.Time      `json:"processedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// FileStats are the aggregates written back after processing.
type FileStats struct {
	TransactionCount int
	TotalIncome      decimal.Decimal
	TotalExpenses    decimal.Decimal
	Status           FileStatus
}

// ListFilter narrows ListByUserID. Zero values mean "no filter".
type ListFilter struct {
	FileID        string
	Uncategorized bool
	IncludeDupes  bool
	TransfersOnly bool
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// UpdateParams carries a user's manual edit. Nil fields are left untouched.
type UpdateParams struct {
	VendorName *string
	CategoryID *int64
	Notes      *string
}

// CategorizationUpdate is the write-back of a resolver run.
type CategorizationUpdate struct {
	VendorName string
	CategoryID *int64
	Confidence float64
	Source     string
}

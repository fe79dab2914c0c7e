package transaction

import (
	"context"
)

// RawRepository stores parser output.
type RawRepository interface {
	// Insert returns ErrDuplicateFingerprint when the user already has a raw row
	// with the same fingerprint.
	Insert(ctx context.Context, raw *RawTransaction) error
	ListByFileID(ctx context.Context, fileID string, userID int64) ([]*RawTransaction, error)
}

// Repository defines the interface for canonical transaction data access
type Repository interface {
	// Insert returns ErrDuplicateFingerprint or ErrAlreadyProcessed on the two
	// uniqueness constraints of the table.
	Insert(ctx context.Context, txn *Transaction) error
	GetByID(ctx context.Context, id string, userID int64) (*Transaction, error)
	// FindByFingerprint returns the non-duplicate row carrying fingerprint, or nil.
	FindByFingerprint(ctx context.Context, userID int64, fingerprint string) (*Transaction, error)
	ListByUserID(ctx context.Context, userID int64, filter ListFilter) ([]*Transaction, error)
	ListByFileID(ctx context.Context, fileID string) ([]*Transaction, error)
	// ListTransferCandidates returns the user's non-duplicate, unlinked rows ordered
	// by date then creation time.
	ListTransferCandidates(ctx context.Context, userID int64) ([]*Transaction, error)
	// LinkTransfer pairs both legs atomically. It returns false without writing when
	// either leg is already linked.
	LinkTransfer(ctx context.Context, debitID, creditID string) (bool, error)
	ListUncategorized(ctx context.Context, userID int64, limit int) ([]*Transaction, error)
	UpdateCategorization(ctx context.Context, id string, params CategorizationUpdate) error
	Update(ctx context.Context, id string, userID int64, params UpdateParams) (*Transaction, error)
	// ListActiveUserIDs returns users owning at least one transaction.
	ListActiveUserIDs(ctx context.Context) ([]int64, error)
}

// FileRepository stores statement file metadata.
type FileRepository interface {
	GetByID(ctx context.Context, id string, userID int64) (*StatementFile, error)
	// MarkPending creates the file row if needed and resets it to pending.
	MarkPending(ctx context.Context, id string, userID int64, parsingConfidence float64) error
	SetStatus(ctx context.Context, id string, status FileStatus) error
	UpdateStats(ctx context.Context, id string, stats FileStats) error
}

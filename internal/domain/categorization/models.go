package categorization

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ledgerline/internal/domain/mapping"
	"ledgerline/internal/domain/transaction"
)

var (
	ErrEmptyQuery       = errors.New("nothing to resolve")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrCatalogEmpty     = errors.New("category catalog is empty")
	ErrNoCategoryResult = errors.New("no category could be resolved")
)

// Source names the tier that produced a resolution.
type Source string

const (
	SourceCache     Source = "cache"
	SourceDirectory Source = "directory"
	SourcePattern   Source = "pattern"
	SourceLLM       Source = "llm"
	SourceFallback  Source = "fallback"
	SourceUser      Source = "user"
)

// mappingSource maps a tier to the provenance stored in the mapping cache.
func (s Source) mappingSource() mapping.Source {
	switch s {
	case SourceLLM:
		return mapping.SourceLLM
	case SourceUser:
		return mapping.SourceUser
	default:
		return mapping.SourcePattern
	}
}

// Resolution is a tier's answer. Value is the vendor name or, for
// categories, the category id in decimal form; Label is its display name.
type Resolution struct {
	Value      string
	Label      string
	Confidence float64
	Source     Source
	Reasoning  string
	// Transient results depend on more than the cache key and are not written back.
	Transient bool
}

// VendorQuery is the input of the vendor cascade.
type VendorQuery struct {
	Text   string
	Amount decimal.Decimal
	Date   time.Time
	UserID *int64
}

// CategoryQuery is the input of the category cascade.
type CategoryQuery struct {
	VendorName string
	Amount     decimal.Decimal
	Type       transaction.Type
	UserID     *int64
}

// VendorResult is the public shape of a vendor resolution.
type VendorResult struct {
	ResolvedName string  `json:"resolvedName"`
	Confidence   float64 `json:"confidence"`
	Source       Source  `json:"source"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

// CategoryResult is the public shape of a category resolution.
type CategoryResult struct {
	CategoryID   int64   `json:"categoryId"`
	CategoryName string  `json:"categoryName"`
	Confidence   float64 `json:"confidence"`
	Source       Source  `json:"source"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

// Category is an entry of the category catalog.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsSystem bool   `json:"isSystem"`
}

// CategoryRepository loads the category catalog.
type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]Category, error)
}

// MappingStore is the part of mapping.Cache the resolvers depend on.
type MappingStore interface {
	GetBestMapping(ctx context.Context, key string, userID *int64) (*mapping.Record, error)
	CacheMapping(ctx context.Context, params mapping.WriteParams) (bool, error)
}

// Learner records user corrections in a mapping cache.
type Learner interface {
	LearnFromUserCorrection(ctx context.Context, key, value, label string, userID int64) (*mapping.LearnResult, error)
}

// Prompt is a request to the LLM classifier.
type Prompt struct {
	Text string
	// WebSearch enables search grounding when the backend supports it.
	WebSearch bool
}

// Completion is the classifier's raw text answer.
type Completion struct {
	Text string
}

// Classifier is the LLM collaborator.
type Classifier interface {
	Complete(ctx context.Context, prompt Prompt) (Completion, error)
}

// System category names seeded into the catalog.
const (
	CategoryFoodDining     = "Food & Dining"
	CategoryGroceries      = "Groceries"
	CategoryShopping       = "Shopping"
	CategoryTransportation = "Transportation"
	CategoryBills          = "Bills & Utilities"
	CategoryEntertainment  = "Entertainment"
	CategoryHealth         = "Health"
	CategoryTravel         = "Travel"
	CategoryIncome         = "Income"
	CategoryTransfers      = "Transfers"
	CategoryCash           = "Cash"
	CategoryFees           = "Fees & Charges"
	CategoryEducation      = "Education"
	CategoryUncategorized  = "Uncategorized"
)

// SystemCategories lists the built-in categories in display order.
var SystemCategories = []string{
	CategoryFoodDining,
	CategoryGroceries,
	CategoryShopping,
	CategoryTransportation,
	CategoryBills,
	CategoryEntertainment,
	CategoryHealth,
	CategoryTravel,
	CategoryIncome,
	CategoryTransfers,
	CategoryCash,
	CategoryFees,
	CategoryEducation,
	CategoryUncategorized,
}

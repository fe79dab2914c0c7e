package categorization

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ledgerline/internal/domain/mapping"
	"ledgerline/internal/domain/transaction"
)

const (
	// DefaultCategorizeLimit caps one bulk run.
	DefaultCategorizeLimit = 200
	// DefaultCategorizeWorkers bounds concurrent resolutions in a bulk run.
	DefaultCategorizeWorkers = 4
)

// TransactionStore is the slice of the transaction repository the service needs.
type TransactionStore interface {
	GetByID(ctx context.Context, id string, userID int64) (*transaction.Transaction, error)
	ListUncategorized(ctx context.Context, userID int64, limit int) ([]*transaction.Transaction, error)
	UpdateCategorization(ctx context.Context, id string, params transaction.CategorizationUpdate) error
	Update(ctx context.Context, id string, userID int64, params transaction.UpdateParams) (*transaction.Transaction, error)
}

// CategorizeResult summarizes a bulk categorization run.
type CategorizeResult struct {
	TransactionsChecked int      `json:"transactionsChecked"`
	Categorized         int      `json:"categorized"`
	Uncategorized       int      `json:"uncategorized"`
	Errors              []string `json:"errors"`
}

// CorrectionResult reports what a manual edit taught the caches.
type CorrectionResult struct {
	Transaction *transaction.Transaction `json:"transaction"`
	Vendor      *mapping.LearnResult     `json:"vendorLearning,omitempty"`
	Category    *mapping.LearnResult     `json:"categoryLearning,omitempty"`
}

// Service runs the resolvers over stored transactions and feeds user
// corrections back into the mapping caches.
type Service struct {
	txns            TransactionStore
	vendors         *VendorResolver
	categories      *CategoryResolver
	catalog         *CategoryCatalog
	vendorLearner   Learner
	categoryLearner Learner
	workers         int
	logger          zerolog.Logger
}

func NewService(txns TransactionStore, vendors *VendorResolver, categories *CategoryResolver, catalog *CategoryCatalog, vendorLearner, categoryLearner Learner, logger zerolog.Logger) *Service {
	return &Service{
		txns:            txns,
		vendors:         vendors,
		categories:      categories,
		catalog:         catalog,
		vendorLearner:   vendorLearner,
		categoryLearner: categoryLearner,
		workers:         DefaultCategorizeWorkers,
		logger:          logger.With().Str("component", "categorization").Logger(),
	}
}

// ResolveVendor exposes the vendor cascade.
func (s *Service) ResolveVendor(ctx context.Context, text string, userID *int64) (VendorResult, error) {
	return s.vendors.Resolve(ctx, VendorQuery{Text: text, UserID: userID})
}

// ResolveCategory exposes the category cascade.
func (s *Service) ResolveCategory(ctx context.Context, q CategoryQuery) (CategoryResult, error) {
	return s.categories.Resolve(ctx, q)
}

// CategorizeUncategorized resolves vendor and category for up to limit of the
// user's uncategorized transactions and writes the results back. Failures are
// recorded per transaction.
func (s *Service) CategorizeUncategorized(ctx context.Context, userID int64, limit int) (*CategorizeResult, error) {
	if limit <= 0 {
		limit = DefaultCategorizeLimit
	}

	txns, err := s.txns.ListUncategorized(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uncategorized transactions: %w", err)
	}

	result := &CategorizeResult{
		TransactionsChecked: len(txns),
		Errors:              []string{},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, txn := range txns {
		g.Go(func() error {
			categorized, err := s.categorizeOne(gctx, txn, userID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Errors = append(result.Errors, fmt.Sprintf("transaction %s: %v", txn.ID, err))
			case categorized:
				result.Categorized++
			default:
				result.Uncategorized++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info().
		Int64("user_id", userID).
		Int("checked", result.TransactionsChecked).
		Int("categorized", result.Categorized).
		Int("uncategorized", result.Uncategorized).
		Int("errors", len(result.Errors)).
		Msg("bulk categorization completed")

	return result, nil
}

// categorizeOne reports whether a real category (not the fallback) was assigned.
func (s *Service) categorizeOne(ctx context.Context, txn *transaction.Transaction, userID int64) (bool, error) {
	descriptor := txn.VendorNameOriginal
	if descriptor == "" {
		descriptor = txn.Description
	}

	uid := userID
	vendor, err := s.vendors.Resolve(ctx, VendorQuery{
		Text:   descriptor,
		Amount: txn.Amount,
		Date:   txn.Date,
		UserID: &uid,
	})
	if err != nil {
		return false, fmt.Errorf("vendor resolution failed: %w", err)
	}

	update := transaction.CategorizationUpdate{
		VendorName: vendor.ResolvedName,
		Confidence: vendor.Confidence,
		Source:     string(vendor.Source),
	}

	category, err := s.categories.Resolve(ctx, CategoryQuery{
		VendorName: vendor.ResolvedName,
		Amount:     txn.Amount,
		Type:       txn.Type,
		UserID:     &uid,
	})
	categorized := false
	switch {
	case err == nil:
		id := category.CategoryID
		update.CategoryID = &id
		update.Confidence = category.Confidence
		update.Source = string(category.Source)
		categorized = category.Source != SourceFallback
	case errors.Is(err, ErrNoCategoryResult):
	default:
		return false, fmt.Errorf("category resolution failed: %w", err)
	}

	if err := s.txns.UpdateCategorization(ctx, txn.ID, update); err != nil {
		return false, fmt.Errorf("failed to save categorization: %w", err)
	}
	return categorized, nil
}

// LearnVendorCorrection records that descriptor text belongs to vendorName.
func (s *Service) LearnVendorCorrection(ctx context.Context, text, vendorName string, userID int64) (*mapping.LearnResult, error) {
	if mapping.NormalizeKey(text) == "" || vendorName == "" {
		return nil, ErrEmptyQuery
	}
	return s.vendorLearner.LearnFromUserCorrection(ctx, text, vendorName, vendorName, userID)
}

// LearnCategoryCorrection records that vendorName belongs to the named or
// numbered category. category may be a catalog name or a decimal id.
func (s *Service) LearnCategoryCorrection(ctx context.Context, vendorName, category string, userID int64) (*mapping.LearnResult, error) {
	if mapping.NormalizeKey(vendorName) == "" || category == "" {
		return nil, ErrEmptyQuery
	}
	cat, err := s.findCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	return s.categoryLearner.LearnFromUserCorrection(ctx, vendorName, strconv.FormatInt(cat.ID, 10), cat.Name, userID)
}

// CorrectTransaction applies a user's edit and learns from the changed
// vendor and category.
func (s *Service) CorrectTransaction(ctx context.Context, id string, userID int64, params transaction.UpdateParams) (*CorrectionResult, error) {
	current, err := s.txns.GetByID(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if current == nil {
		return nil, transaction.ErrTransactionNotFound
	}

	var cat Category
	if params.CategoryID != nil {
		var ok bool
		cat, ok, err = s.catalog.ByID(ctx, *params.CategoryID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrUnknownCategory
		}
	}

	updated, err := s.txns.Update(ctx, id, userID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	result := &CorrectionResult{Transaction: updated}

	if params.VendorName != nil && *params.VendorName != "" && *params.VendorName != current.VendorName {
		descriptor := current.VendorNameOriginal
		if descriptor == "" {
			descriptor = current.Description
		}
		result.Vendor, err = s.vendorLearner.LearnFromUserCorrection(ctx, descriptor, *params.VendorName, *params.VendorName, userID)
		if err != nil {
			s.logger.Warn().Err(err).Str("transaction_id", id).Msg("failed to learn vendor correction")
		}
	}

	if params.CategoryID != nil {
		vendorName := updated.VendorName
		if vendorName == "" {
			vendorName = updated.Description
		}
		result.Category, err = s.categoryLearner.LearnFromUserCorrection(ctx, vendorName, strconv.FormatInt(cat.ID, 10), cat.Name, userID)
		if err != nil {
			s.logger.Warn().Err(err).Str("transaction_id", id).Msg("failed to learn category correction")
		}
	}

	return result, nil
}

// Categories lists the catalog.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.catalog.All(ctx)
}

func (s *Service) findCategory(ctx context.Context, ref string) (Category, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		cat, ok, err := s.catalog.ByID(ctx, id)
		if err != nil {
			return Category{}, err
		}
		if ok {
			return cat, nil
		}
		return Category{}, ErrUnknownCategory
	}
	cat, ok, err := s.catalog.Lookup(ctx, ref)
	if err != nil {
		return Category{}, err
	}
	if !ok {
		return Category{}, ErrUnknownCategory
	}
	return cat, nil
}

// Package app assembles the domain services shared by the API server and the
// admin CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ledgerline/internal/domain/categorization"
	"ledgerline/internal/domain/mapping"
	"ledgerline/internal/domain/transaction"
	"ledgerline/internal/infrastructure/gemini"
	"ledgerline/internal/infrastructure/postgres"
	"ledgerline/internal/shared/config"
)

const catalogTTL = 10 * time.Minute

// Repositories are the postgres stores the services run on.
type Repositories struct {
	Raws         *postgres.RawTransactionRepository
	Transactions *postgres.TransactionRepository
	Files        *postgres.StatementFileRepository
	Categories   *postgres.CategoryRepository
	VendorMap    *postgres.MappingRepository
	CategoryMap  *postgres.MappingRepository
}

func NewRepositories(db *postgres.DB) Repositories {
	return Repositories{
		Raws:         postgres.NewRawTransactionRepository(db),
		Transactions: postgres.NewTransactionRepository(db),
		Files:        postgres.NewStatementFileRepository(db),
		Categories:   postgres.NewCategoryRepository(db),
		VendorMap:    postgres.NewMappingRepository(db, mapping.KindVendor),
		CategoryMap:  postgres.NewMappingRepository(db, mapping.KindCategory),
	}
}

// NewProcessor builds the file processor from the processor settings.
func NewProcessor(cfg *config.Config, repos Repositories, logger zerolog.Logger) *transaction.Processor {
	return transaction.NewProcessor(
		repos.Raws,
		repos.Transactions,
		repos.Files,
		transaction.NewTransferPolicy(cfg.Processor.TransferWindowDays, cfg.Processor.TransferKeywords),
		cfg.Processor.InsertConcurrency,
		logger,
	)
}

// NewCategorizer builds the vendor and category resolvers over their
// persistent caches. Without an API key the LLM tier is skipped.
func NewCategorizer(ctx context.Context, cfg *config.Config, repos Repositories, logger zerolog.Logger) (*categorization.Service, error) {
	opts := mapping.Options{
		OverwriteMargin:    cfg.Mapping.OverwriteMargin,
		ConsensusThreshold: cfg.Mapping.ConsensusThreshold,
	}
	vendorCache := mapping.NewCache(mapping.KindVendor, repos.VendorMap, opts, logger)
	categoryCache := mapping.NewCache(mapping.KindCategory, repos.CategoryMap, opts, logger)

	catalog, err := categorization.NewCategoryCatalog(repos.Categories, catalogTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create category catalog: %w", err)
	}

	var llm categorization.Classifier
	if cfg.LLM.Enabled() {
		client, err := gemini.NewClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		llm = client
	} else {
		logger.Warn().Msg("GEMINI_API_KEY not set, resolvers run without the LLM tier")
	}

	vendors := categorization.NewVendorResolver(vendorCache, llm, cfg.LLM.Timeout, logger)
	categories := categorization.NewCategoryResolver(
		categoryCache,
		categorization.DefaultDirectory(),
		categorization.DefaultRuleEngine(),
		catalog,
		llm,
		cfg.LLM.Timeout,
		logger,
	)

	return categorization.NewService(repos.Transactions, vendors, categories, catalog, vendorCache, categoryCache, logger), nil
}

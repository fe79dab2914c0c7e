package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ledgerline/internal/domain/categorization"
	"ledgerline/internal/domain/notification"
	"ledgerline/internal/domain/transaction"
	"ledgerline/internal/shared/logger"
)

// FileProcessor is the part of transaction.Processor the jobs drive.
type FileProcessor interface {
	ProcessFileTransactions(ctx context.Context, fileID string, userID int64) (*transaction.ProcessResult, error)
	DetectAndLinkInternalTransfers(ctx context.Context, userID int64) (*transaction.SweepResult, error)
}

// Categorizer fills in vendor and category for uncategorized rows.
type Categorizer interface {
	CategorizeUncategorized(ctx context.Context, userID int64, limit int) (*categorization.CategorizeResult, error)
}

// Notifier tells a user that a statement finished processing.
type Notifier interface {
	NotifyFileProcessed(ctx context.Context, ev notification.FileProcessed) error
}

// UserLister returns the users the nightly run should visit.
type UserLister interface {
	ListActiveUserIDs(ctx context.Context) ([]int64, error)
}

// ProcessFileJob processes one parsed statement, categorizes the new rows
// and notifies the owner. Categorizer and notifier are optional.
type ProcessFileJob struct {
	fileID      string
	userID      int64
	processor   FileProcessor
	categorizer Categorizer
	notifier    Notifier
	batchSize   int
}

func NewProcessFileJob(fileID string, userID int64, processor FileProcessor, categorizer Categorizer, notifier Notifier, batchSize int) *ProcessFileJob {
	return &ProcessFileJob{
		fileID:      fileID,
		userID:      userID,
		processor:   processor,
		categorizer: categorizer,
		notifier:    notifier,
		batchSize:   batchSize,
	}
}

func (j *ProcessFileJob) Execute(ctx context.Context) error {
	log := logger.FromContext(ctx, zerolog.Nop())

	result, err := j.processor.ProcessFileTransactions(ctx, j.fileID, j.userID)
	if err != nil {
		j.notify(ctx, log, notification.FileProcessed{UserID: j.userID, FileID: j.fileID, Failed: true})
		return fmt.Errorf("failed to process file %s: %w", j.fileID, err)
	}

	if j.categorizer != nil && result.Processed > 0 {
		cat, err := j.categorizer.CategorizeUncategorized(ctx, j.userID, j.batchSize)
		if err != nil {
			log.Warn().Err(err).Str("file_id", j.fileID).Msg("categorization after processing failed")
		} else {
			log.Info().Int("categorized", cat.Categorized).Int("checked", cat.TransactionsChecked).Msg("categorized new transactions")
		}
	}

	j.notify(ctx, log, notification.FileProcessed{
		UserID:            j.userID,
		FileID:            j.fileID,
		Processed:         result.Processed,
		Duplicates:        result.Duplicates,
		InternalTransfers: result.InternalTransfers,
		Failed:            result.Processed == 0 && len(result.Errors) > 0,
	})

	if len(result.Errors) > 0 {
		log.Warn().Strs("errors", result.Errors).Int("processed", result.Processed).Msg("file processed with errors")
	}
	return nil
}

func (j *ProcessFileJob) notify(ctx context.Context, log zerolog.Logger, ev notification.FileProcessed) {
	if j.notifier == nil {
		return
	}
	if err := j.notifier.NotifyFileProcessed(ctx, ev); err != nil {
		log.Warn().Err(err).Str("file_id", j.fileID).Msg("failed to send file processed notification")
	}
}

func (j *ProcessFileJob) UserID() int64 { return j.userID }

func (j *ProcessFileJob) Description() string {
	return fmt.Sprintf("Process file %s", j.fileID)
}

// MaintenanceJob is the nightly per-user run: a transfer sweep across all
// files, then a categorization pass over rows that are still uncategorized.
type MaintenanceJob struct {
	userID      int64
	processor   FileProcessor
	categorizer Categorizer
	batchSize   int
}

func NewMaintenanceJob(userID int64, processor FileProcessor, categorizer Categorizer, batchSize int) *MaintenanceJob {
	return &MaintenanceJob{
		userID:      userID,
		processor:   processor,
		categorizer: categorizer,
		batchSize:   batchSize,
	}
}

func (j *MaintenanceJob) Execute(ctx context.Context) error {
	log := logger.FromContext(ctx, zerolog.Nop())

	sweep, err := j.processor.DetectAndLinkInternalTransfers(ctx, j.userID)
	if err != nil {
		return fmt.Errorf("transfer sweep failed: %w", err)
	}
	log.Info().Int("checked", sweep.TransactionsChecked).Int("pairs", sweep.PairsLinked).Msg("transfer sweep done")

	if j.categorizer == nil {
		return nil
	}

	cat, err := j.categorizer.CategorizeUncategorized(ctx, j.userID, j.batchSize)
	if err != nil {
		return fmt.Errorf("categorization failed: %w", err)
	}
	log.Info().Int("categorized", cat.Categorized).Int("uncategorized", cat.Uncategorized).Msg("categorization done")

	if n := len(sweep.Errors) + len(cat.Errors); n > 0 {
		return fmt.Errorf("maintenance completed with %d errors", n)
	}
	return nil
}

func (j *MaintenanceJob) UserID() int64 { return j.userID }

func (j *MaintenanceJob) Description() string {
	return fmt.Sprintf("Maintenance for user %d", j.userID)
}

// NewMaintenanceProvider builds one MaintenanceJob per active user.
func NewMaintenanceProvider(users UserLister, processor FileProcessor, categorizer Categorizer, batchSize int) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		ids, err := users.ListActiveUserIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list active users: %w", err)
		}

		jobs := make([]Job, 0, len(ids))
		for _, id := range ids {
			jobs = append(jobs, NewMaintenanceJob(id, processor, categorizer, batchSize))
		}
		return jobs, nil
	}
}

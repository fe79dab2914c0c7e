package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultInsertConcurrency bounds concurrent row inserts for one file.
const DefaultInsertConcurrency = 8

var (
	processorTracer     = otel.Tracer("ledgerline/processor")
	processorMeter      = otel.Meter("ledgerline/processor")
	processorRows, _    = processorMeter.Int64Counter("processor.rows", metric.WithDescription("Canonical rows written by outcome"))
	processorFileDur, _ = processorMeter.Float64Histogram("processor.file.duration", metric.WithDescription("File processing duration in seconds"), metric.WithUnit("s"))
	processorLinks, _   = processorMeter.Int64Counter("processor.transfer_links", metric.WithDescription("Internal transfer pairs persisted"))
)

// ProcessResult summarizes one ProcessFileTransactions call.
type ProcessResult struct {
	Processed         int      `json:"processed"`
	Duplicates        int      `json:"duplicates"`
	InternalTransfers int      `json:"internalTransfers"`
	Errors            []string `json:"errors"`
}

// SweepResult summarizes one whole-user transfer sweep.
type SweepResult struct {
	TransactionsChecked int      `json:"transactionsChecked"`
	PairsLinked         int      `json:"pairsLinked"`
	Errors              []string `json:"errors"`
}

// Processor turns a file's raw rows into canonical transactions.
type Processor struct {
	raws        RawRepository
	txns        Repository
	files       FileRepository
	policy      TransferPolicy
	concurrency int
	logger      zerolog.Logger
	newID       func() string
}

// NewProcessor creates a processor. A non-positive insertConcurrency falls back
// to DefaultInsertConcurrency.
func NewProcessor(raws RawRepository, txns Repository, files FileRepository, policy TransferPolicy, insertConcurrency int, logger zerolog.Logger) *Processor {
	if insertConcurrency <= 0 {
		insertConcurrency = DefaultInsertConcurrency
	}
	return &Processor{
		raws:        raws,
		txns:        txns,
		files:       files,
		policy:      policy,
		concurrency: insertConcurrency,
		logger:      logger.With().Str("component", "processor").Logger(),
		newID:       uuid.NewString,
	}
}

type insertOutcome struct {
	txn *Transaction
	err error
}

// ProcessFileTransactions fingerprints, deduplicates and links the raw rows of
// one file, persists them and refreshes the file aggregates. A failure to load
// the raw rows is fatal: the result carries zero counts and that single error,
// which is also returned. Every other failure is recorded per item.
func (p *Processor) ProcessFileTransactions(ctx context.Context, fileID string, userID int64) (*ProcessResult, error) {
	start := time.Now()
	ctx, span := processorTracer.Start(ctx, "processor.ProcessFile",
		trace.WithAttributes(
			attribute.String("file.id", fileID),
			attribute.Int64("user.id", userID),
		),
	)
	defer span.End()

	log := p.logger.With().Str("file_id", fileID).Int64("user_id", userID).Logger()

	if err := p.files.SetStatus(ctx, fileID, FileStatusProcessing); err != nil {
		log.Warn().Err(err).Msg("failed to mark file as processing")
	}

	raws, err := p.raws.ListByFileID(ctx, fileID, userID)
	if err != nil {
		err = fmt.Errorf("failed to load raw transactions for file %s: %w", fileID, err)
		if statusErr := p.files.SetStatus(ctx, fileID, FileStatusFailed); statusErr != nil {
			log.Warn().Err(statusErr).Msg("failed to mark file as failed")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Msg("file processing aborted")
		return &ProcessResult{Errors: []string{err.Error()}}, err
	}

	result := &ProcessResult{Errors: []string{}}

	rows := make([]*Transaction, 0, len(raws))
	for _, raw := range raws {
		fp, err := FingerprintRaw(raw)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("raw transaction %s: %v", raw.ID, err))
			continue
		}
		rows = append(rows, p.canonicalFromRaw(raw, fp))
	}

	part := PartitionByFingerprint(rows, func(t *Transaction) string { return t.Fingerprint })
	for _, d := range part.Duplicates {
		primaryID := d.Of.ID
		d.Item.IsDuplicate = true
		d.Item.DuplicateOfID = &primaryID
	}

	// Links are decided over the whole file, duplicates included, but only
	// written once both legs exist.
	pairs := LinkTransfers(rows, p.policy)

	inserted := make(map[string]bool, len(rows))

	for _, out := range p.insertAll(ctx, part.Unique) {
		switch {
		case out.err == nil:
			inserted[out.txn.ID] = true
			result.Processed++
		case errors.Is(out.err, ErrDuplicateFingerprint), errors.Is(out.err, ErrAlreadyProcessed):
			result.Duplicates++
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("transaction %s: %v", out.txn.RawTransactionID, out.err))
		}
	}

	dupes := make([]*Transaction, 0, len(part.Duplicates))
	for _, d := range part.Duplicates {
		if !inserted[d.Of.ID] {
			d.Item.DuplicateOfID = p.storedPrimaryID(ctx, userID, d.Of.Fingerprint, log)
		}
		dupes = append(dupes, d.Item)
	}
	for _, out := range p.insertAll(ctx, dupes) {
		switch {
		case out.err == nil:
			inserted[out.txn.ID] = true
			result.Duplicates++
		case errors.Is(out.err, ErrDuplicateFingerprint), errors.Is(out.err, ErrAlreadyProcessed):
			result.Duplicates++
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("transaction %s: %v", out.txn.RawTransactionID, out.err))
		}
	}

	for _, pair := range pairs {
		if !inserted[pair.DebitID] || !inserted[pair.CreditID] {
			continue
		}
		linked, err := p.txns.LinkTransfer(ctx, pair.DebitID, pair.CreditID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("link %s/%s: %v", pair.DebitID, pair.CreditID, err))
			continue
		}
		if linked {
			result.InternalTransfers += 2
			processorLinks.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", "file")))
		}
	}

	status := FileStatusCompleted
	if result.Processed == 0 && result.Duplicates == 0 && len(result.Errors) > 0 {
		status = FileStatusFailed
	}
	p.refreshFileStats(ctx, fileID, status, result, log)

	sweep, err := p.DetectAndLinkInternalTransfers(ctx, userID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.InternalTransfers += 2 * sweep.PairsLinked
		result.Errors = append(result.Errors, sweep.Errors...)
		if sweep.PairsLinked > 0 {
			// a cross-file pair may have turned one of this file's rows into a transfer
			p.refreshFileStats(ctx, fileID, status, result, log)
		}
	}

	processorRows.Add(ctx, int64(result.Processed), metric.WithAttributes(attribute.String("outcome", "inserted")))
	processorRows.Add(ctx, int64(result.Duplicates), metric.WithAttributes(attribute.String("outcome", "duplicate")))
	processorRows.Add(ctx, int64(len(result.Errors)), metric.WithAttributes(attribute.String("outcome", "error")))
	processorFileDur.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("status", string(status))))

	span.SetAttributes(
		attribute.Int("processed", result.Processed),
		attribute.Int("duplicates", result.Duplicates),
		attribute.Int("internal_transfers", result.InternalTransfers),
		attribute.Int("errors", len(result.Errors)),
	)

	log.Info().
		Int("raw", len(raws)).
		Int("processed", result.Processed).
		Int("duplicates", result.Duplicates).
		Int("internal_transfers", result.InternalTransfers).
		Int("errors", len(result.Errors)).
		Dur("took", time.Since(start)).
		Msg("file processed")

	return result, nil
}

// DetectAndLinkInternalTransfers re-runs the linker over every unlinked,
// non-duplicate transaction of the user. Running it twice links nothing new.
func (p *Processor) DetectAndLinkInternalTransfers(ctx context.Context, userID int64) (*SweepResult, error) {
	ctx, span := processorTracer.Start(ctx, "processor.TransferSweep",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	candidates, err := p.txns.ListTransferCandidates(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list transfer candidates: %w", err)
	}

	result := &SweepResult{
		TransactionsChecked: len(candidates),
		Errors:              []string{},
	}

	for _, pair := range LinkTransfers(candidates, p.policy) {
		linked, err := p.txns.LinkTransfer(ctx, pair.DebitID, pair.CreditID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("link %s/%s: %v", pair.DebitID, pair.CreditID, err))
			continue
		}
		if linked {
			result.PairsLinked++
		}
	}
	if result.PairsLinked > 0 {
		processorLinks.Add(ctx, int64(result.PairsLinked), metric.WithAttributes(attribute.String("scope", "user")))
	}

	p.logger.Info().
		Int64("user_id", userID).
		Int("checked", result.TransactionsChecked).
		Int("linked", result.PairsLinked).
		Int("errors", len(result.Errors)).
		Msg("transfer sweep completed")

	return result, nil
}

// insertAll writes rows with at most p.concurrency inserts in flight and
// returns one outcome per row. Nothing short-circuits on failure.
func (p *Processor) insertAll(ctx context.Context, rows []*Transaction) []insertOutcome {
	if len(rows) == 0 {
		return nil
	}

	jobs := make(chan *Transaction, len(rows))
	results := make(chan insertOutcome, len(rows))

	var wg sync.WaitGroup
	for i := 0; i < min(p.concurrency, len(rows)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for txn := range jobs {
				if err := ctx.Err(); err != nil {
					results <- insertOutcome{txn: txn, err: err}
					continue
				}
				results <- insertOutcome{txn: txn, err: p.txns.Insert(ctx, txn)}
			}
		}()
	}

	for _, txn := range rows {
		jobs <- txn
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]insertOutcome, 0, len(rows))
	for out := range results {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// storedPrimaryID finds the already persisted row a duplicate should point at
// when its in-batch primary was rejected by the store.
func (p *Processor) storedPrimaryID(ctx context.Context, userID int64, fingerprint string, log zerolog.Logger) *string {
	existing, err := p.txns.FindByFingerprint(ctx, userID, fingerprint)
	if err != nil {
		log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("failed to look up stored primary")
		return nil
	}
	if existing == nil {
		return nil
	}
	id := existing.ID
	return &id
}

func (p *Processor) refreshFileStats(ctx context.Context, fileID string, status FileStatus, result *ProcessResult, log zerolog.Logger) {
	persisted, err := p.txns.ListByFileID(ctx, fileID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to load file transactions: %v", err))
		return
	}
	stats := ComputeFileStats(persisted)
	stats.Status = status
	if err := p.files.UpdateStats(ctx, fileID, stats); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to update file stats: %v", err))
		return
	}
	log.Debug().
		Int("count", stats.TransactionCount).
		Str("income", stats.TotalIncome.StringFixed(2)).
		Str("expenses", stats.TotalExpenses.StringFixed(2)).
		Msg("file stats updated")
}

func (p *Processor) canonicalFromRaw(raw *RawTransaction, fingerprint string) *Transaction {
	return &Transaction{
		ID:                 p.newID(),
		RawTransactionID:   raw.ID,
		FileID:             raw.FileID,
		UserID:             raw.UserID,
		Date:               raw.Date,
		Description:        raw.Description,
		ReferenceNumber:    raw.ReferenceNumber,
		RawText:            raw.RawText,
		Amount:             raw.Amount,
		Type:               raw.Type,
		OriginalCurrency:   raw.OriginalCurrency,
		OriginalAmount:     raw.OriginalAmount,
		Fingerprint:        fingerprint,
		ParsingConfidence:  raw.ParsingConfidence,
		VendorNameOriginal: raw.Description,
	}
}

// ComputeFileStats aggregates a file's canonical rows. Duplicates are not
// counted; internal transfers count as rows but not as income or expense.
func ComputeFileStats(txns []*Transaction) FileStats {
	stats := FileStats{
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
	for _, t := range txns {
		if t.IsDuplicate {
			continue
		}
		stats.TransactionCount++
		if t.IsInternalTransfer {
			continue
		}
		switch t.Type {
		case TypeCredit:
			stats.TotalIncome = stats.TotalIncome.Add(t.Amount)
		case TypeDebit:
			stats.TotalExpenses = stats.TotalExpenses.Add(t.Amount)
		}
	}
	return stats
}

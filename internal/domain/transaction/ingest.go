package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ParsedRecord is one line handed over by the statement parser.
type ParsedRecord struct {
	Date             time.Time
	Description      string
	ReferenceNumber  *string
	RawText          string
	Amount           decimal.Decimal
	Type             Type
	OriginalCurrency *string
	OriginalAmount   *decimal.Decimal
}

// ParsedStatement is the parser's output for one file. ParsingConfidence is on
// the parser's 0-100 scale.
type ParsedStatement struct {
	ParsingConfidence float64
	Records           []ParsedRecord
}

// IngestResult summarizes one IngestStatement call.
type IngestResult struct {
	Stored     int      `json:"stored"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors"`
}

// ParsedPublisher announces that a file's raw rows are ready for processing.
type ParsedPublisher interface {
	PublishParsed(ctx context.Context, fileID string, userID int64) error
}

// Ingestor stores parser output as raw transactions.
type Ingestor struct {
	raws      RawRepository
	files     FileRepository
	publisher ParsedPublisher
	logger    zerolog.Logger
	newID     func() string
}

// NewIngestor creates an ingestor. publisher may be nil, in which case files
// are only processed on explicit request.
func NewIngestor(raws RawRepository, files FileRepository, publisher ParsedPublisher, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		raws:      raws,
		files:     files,
		publisher: publisher,
		logger:    logger.With().Str("component", "ingestor").Logger(),
		newID:     uuid.NewString,
	}
}

// NormalizeParsingConfidence maps the parser's 0-100 score onto [0,1].
func NormalizeParsingConfidence(percent float64) float64 {
	c := percent / 100
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// IngestStatement fingerprints the parsed records, drops in-batch repeats and
// stores the rest. Rows the store already holds for the user are counted as
// duplicates. The file is left in pending state and, when anything new was
// stored, announced to the publisher.
func (i *Ingestor) IngestStatement(ctx context.Context, fileID string, userID int64, stmt ParsedStatement) (*IngestResult, error) {
	confidence := NormalizeParsingConfidence(stmt.ParsingConfidence)

	if err := i.files.MarkPending(ctx, fileID, userID, confidence); err != nil {
		return nil, fmt.Errorf("failed to register statement file: %w", err)
	}

	result := &IngestResult{Errors: []string{}}
	now := time.Now().UTC()

	raws := make([]*RawTransaction, 0, len(stmt.Records))
	for idx, rec := range stmt.Records {
		raw := &RawTransaction{
			ID:                i.newID(),
			FileID:            fileID,
			UserID:            userID,
			Date:              rec.Date,
			Description:       rec.Description,
			ReferenceNumber:   rec.ReferenceNumber,
			RawText:           rec.RawText,
			Amount:            rec.Amount,
			Type:              rec.Type,
			OriginalCurrency:  rec.OriginalCurrency,
			OriginalAmount:    rec.OriginalAmount,
			ParsingConfidence: confidence,
			CreatedAt:         now,
		}
		fp, err := FingerprintRaw(raw)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", idx, err))
			continue
		}
		raw.Fingerprint = fp
		raws = append(raws, raw)
	}

	part := PartitionRaw(raws)
	result.Duplicates += len(part.Duplicates)

	for _, raw := range part.Unique {
		err := i.raws.Insert(ctx, raw)
		switch {
		case err == nil:
			result.Stored++
		case errors.Is(err, ErrDuplicateFingerprint):
			result.Duplicates++
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("record %s: %v", raw.Fingerprint, err))
		}
	}

	if i.publisher != nil && result.Stored > 0 {
		if err := i.publisher.PublishParsed(ctx, fileID, userID); err != nil {
			i.logger.Warn().Err(err).Str("file_id", fileID).Msg("failed to publish parsed statement")
		}
	}

	i.logger.Info().
		Str("file_id", fileID).
		Int64("user_id", userID).
		Int("records", len(stmt.Records)).
		Int("stored", result.Stored).
		Int("duplicates", result.Duplicates).
		Int("errors", len(result.Errors)).
		Msg("statement ingested")

	return result, nil
}

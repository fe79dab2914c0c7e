package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ledgerline/internal/domain/transaction"
)

// StatementIngestor stores parser output.
type StatementIngestor interface {
	IngestStatement(ctx context.Context, fileID string, userID int64, stmt transaction.ParsedStatement) (*transaction.IngestResult, error)
}

// FileProcessor turns stored raw rows into canonical transactions.
type FileProcessor interface {
	ProcessFileTransactions(ctx context.Context, fileID string, userID int64) (*transaction.ProcessResult, error)
	DetectAndLinkInternalTransfers(ctx context.Context, userID int64) (*transaction.SweepResult, error)
}

// FileReader reads statement file metadata.
type FileReader interface {
	GetByID(ctx context.Context, id string, userID int64) (*transaction.StatementFile, error)
}

// TransactionLister reads canonical transactions.
type TransactionLister interface {
	ListByUserID(ctx context.Context, userID int64, filter transaction.ListFilter) ([]*transaction.Transaction, error)
}

const dateLayout = "2006-01-02"

type StatementRecordRequest struct {
	Date             string           `json:"date" validate:"required"`
	Description      string           `json:"description" validate:"required"`
	ReferenceNumber  *string          `json:"referenceNumber,omitempty"`
	RawText          string           `json:"rawText"`
	Amount           decimal.Decimal  `json:"amount"`
	Type             string           `json:"type" validate:"required,oneof=DEBIT CREDIT debit credit"`
	OriginalCurrency *string          `json:"originalCurrency,omitempty" validate:"omitempty,len=3,alpha"`
	OriginalAmount   *decimal.Decimal `json:"originalAmount,omitempty"`
}

type IngestStatementRequest struct {
	ParsingConfidence float64                  `json:"parsingConfidence" validate:"gte=0,lte=100"`
	Transactions      []StatementRecordRequest `json:"transactions" validate:"dive"`
}

type FileResponse struct {
	File         *transaction.StatementFile `json:"file"`
	Transactions []*transaction.Transaction `json:"transactions"`
}

type StatementHandler struct {
	ingestor  StatementIngestor
	processor FileProcessor
	files     FileReader
	txns      TransactionLister
	logger    zerolog.Logger
}

func NewStatementHandler(ingestor StatementIngestor, processor FileProcessor, files FileReader, txns TransactionLister, logger zerolog.Logger) *StatementHandler {
	return &StatementHandler{
		ingestor:  ingestor,
		processor: processor,
		files:     files,
		txns:      txns,
		logger:    logger,
	}
}

// toParsedStatement converts the wire payload. Amounts are absolute; the
// direction lives in Type.
func (req *IngestStatementRequest) toParsedStatement() (transaction.ParsedStatement, error) {
	stmt := transaction.ParsedStatement{
		ParsingConfidence: req.ParsingConfidence,
		Records:           make([]transaction.ParsedRecord, 0, len(req.Transactions)),
	}

	for i, rec := range req.Transactions {
		date, err := time.Parse(dateLayout, strings.TrimSpace(rec.Date))
		if err != nil {
			return stmt, fmt.Errorf("transactions[%d]: invalid date %q", i, rec.Date)
		}
		if rec.Amount.IsNegative() {
			return stmt, fmt.Errorf("transactions[%d]: amount must not be negative", i)
		}
		if rec.OriginalAmount != nil && rec.OriginalAmount.IsNegative() {
			return stmt, fmt.Errorf("transactions[%d]: originalAmount must not be negative", i)
		}

		var currency *string
		if rec.OriginalCurrency != nil {
			c := strings.ToUpper(*rec.OriginalCurrency)
			currency = &c
		}

		stmt.Records = append(stmt.Records, transaction.ParsedRecord{
			Date:             date,
			Description:      rec.Description,
			ReferenceNumber:  rec.ReferenceNumber,
			RawText:          rec.RawText,
			Amount:           rec.Amount,
			Type:             transaction.Type(strings.ToUpper(rec.Type)),
			OriginalCurrency: currency,
			OriginalAmount:   rec.OriginalAmount,
		})
	}
	return stmt, nil
}

func fileIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	fileID := chi.URLParam(r, "fileID")
	if err := uuid.Validate(fileID); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "fileID must be a UUID")
		return "", false
	}
	return fileID, true
}

// HandleIngestStatement handles POST /api/files/{fileID}/statement
func (h *StatementHandler) HandleIngestStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	fileID, ok := fileIDParam(w, r)
	if !ok {
		return
	}

	req, ok := decodeAndValidate[IngestStatementRequest](w, r, CodeParsingFailed)
	if !ok {
		return
	}

	stmt, err := req.toParsedStatement()
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeParsingFailed, err.Error())
		return
	}

	result, err := h.ingestor.IngestStatement(r.Context(), fileID, userID, stmt)
	if err != nil {
		if errors.Is(err, transaction.ErrFileNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "Statement file not found")
			return
		}
		requestLogger(r, h.logger).Error().Err(err).Str("file_id", fileID).Int64("user_id", userID).Msg("failed to ingest statement")
		writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to store statement")
		return
	}

	writeData(w, http.StatusCreated, result)
}

// HandleProcessFile handles POST /api/files/{fileID}/process
func (h *StatementHandler) HandleProcessFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	fileID, ok := fileIDParam(w, r)
	if !ok {
		return
	}

	file, err := h.files.GetByID(r.Context(), fileID, userID)
	if err != nil {
		requestLogger(r, h.logger).Error().Err(err).Str("file_id", fileID).Msg("failed to load statement file")
		writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to load statement file")
		return
	}
	if file == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Statement file not found")
		return
	}

	result, err := h.processor.ProcessFileTransactions(r.Context(), fileID, userID)
	if err != nil {
		requestLogger(r, h.logger).Error().Err(err).Str("file_id", fileID).Msg("failed to process statement file")
		writeErrorDetails(w, http.StatusInternalServerError, CodeProcessingFailed, "Failed to process statement file", result)
		return
	}

	writeData(w, http.StatusOK, result)
}

// HandleGetFile handles GET /api/files/{fileID}
func (h *StatementHandler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	fileID, ok := fileIDParam(w, r)
	if !ok {
		return
	}

	file, err := h.files.GetByID(r.Context(), fileID, userID)
	if err != nil {
		requestLogger(r, h.logger).Error().Err(err).Str("file_id", fileID).Msg("failed to load statement file")
		writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to load statement file")
		return
	}
	if file == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Statement file not found")
		return
	}

	txns, err := h.txns.ListByUserID(r.Context(), userID, transaction.ListFilter{
		FileID:       fileID,
		IncludeDupes: true,
		Limit:        1000,
	})
	if err != nil {
		requestLogger(r, h.logger).Error().Err(err).Str("file_id", fileID).Msg("failed to list file transactions")
		writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to list transactions")
		return
	}
	if txns == nil {
		txns = []*transaction.Transaction{}
	}

	writeData(w, http.StatusOK, FileResponse{File: file, Transactions: txns})
}

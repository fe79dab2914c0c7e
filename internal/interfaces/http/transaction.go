package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ledgerline/internal/domain/transaction"
)

const (
	defaultListLimit       = 50
	maxListLimit           = 500
	defaultCategorizeLimit = 200
)

type UpdateTransactionRequest struct {
	VendorName *string `json:"vendorName" validate:"omitempty,min=1,max=200"`
	CategoryID *int64  `json:"categoryId" validate:"omitempty,gt=0"`
	Notes      *string `json:"notes" validate:"omitempty,max=2000"`
}

type CategorizeRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=1000"`
}

type TransactionHandler struct {
	txns        TransactionLister
	processor   FileProcessor
	categorizer Categorizer
	logger      zerolog.Logger
}

func NewTransactionHandler(txns TransactionLister, processor FileProcessor, categorizer Categorizer, logger zerolog.Logger) *TransactionHandler {
	return &TransactionHandler{
		txns:        txns,
		processor:   processor,
		categorizer: categorizer,
		logger:      logger,
	}
}

// HandleListTransactions handles GET /api/transactions
func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	txns, err := h.txns.ListByUserID(r.Context(), userID, filter)
	if err != nil {
		requestLogger(r, h.logger).Error().Err(err).Int64("user_id", userID).Msg("failed to list transactions")
		writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to list transactions")
		return
	}
	if txns == nil {
		txns = []*transaction.Transaction{}
	}

	writeData(w, http.StatusOK, txns)
}

func parseListFilter(r *http.Request) (transaction.ListFilter, error) {
	q := r.URL.Query()
	filter := transaction.ListFilter{
		FileID:        q.Get("fileId"),
		Uncategorized: q.Get("uncategorized") == "true",
		IncludeDupes:  q.Get("includeDuplicates") == "true",
		TransfersOnly: q.Get("transfers") == "true",
		Limit:         defaultListLimit,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, errInvalidParam("limit")
		}
		filter.Limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errInvalidParam("offset")
		}
		filter.Offset = n
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return filter, errInvalidParam("from")
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return filter, errInvalidParam("to")
		}
		filter.To = &t
	}
	return filter, nil
}

type paramError string

func (e paramError) Error() string { return "invalid " + string(e) + " parameter" }

func errInvalidParam(name string) error { return paramError(name) }

// HandleUpdateTransaction handles PATCH /api/transactions/{id}. Vendor and
// category changes are learned as user corrections.
func (h *TransactionHandler) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Transaction ID is required")
		return
	}

	req, ok := decodeAndValidate[UpdateTransactionRequest](w, r, CodeInvalidRequest)
	if !ok {
		return
	}
	if req.VendorName == nil && req.CategoryID == nil && req.Notes == nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Nothing to update")
		return
	}

	result, err := h.categorizer.CorrectTransaction(r.Context(), id, userID, transaction.UpdateParams{
		VendorName: req.VendorName,
		CategoryID: req.CategoryID,
		Notes:      req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update transaction")
		return
	}

	writeData(w, http.StatusOK, result)
}

// HandleCategorize handles POST /api/transactions/categorize
func (h *TransactionHandler) HandleCategorize(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := defaultCategorizeLimit
	if r.ContentLength != 0 {
		req, ok := decodeAndValidate[CategorizeRequest](w, r, CodeInvalidRequest)
		if !ok {
			return
		}
		if req.Limit > 0 {
			limit = req.Limit
		}
	}

	result, err := h.categorizer.CategorizeUncategorized(r.Context(), userID, limit)
	if err != nil {
		requestLogger(r, h.logger).Error().Err(err).Int64("user_id", userID).Msg("failed to categorize transactions")
		writeError(w, http.StatusInternalServerError, CodeProcessingFailed, "Failed to categorize transactions")
		return
	}

	writeData(w, http.StatusOK, result)
}

// HandleDetectTransfers handles POST /api/transfers/detect
func (h *TransactionHandler) HandleDetectTransfers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	result, err := h.processor.DetectAndLinkInternalTransfers(r.Context(), userID)
	if err != nil {
		requestLogger(r, h.logger).Error().Err(err).Int64("user_id", userID).Msg("failed to detect transfers")
		writeError(w, http.StatusInternalServerError, CodeProcessingFailed, "Failed to detect internal transfers")
		return
	}

	writeData(w, http.StatusOK, result)
}

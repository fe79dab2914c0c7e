package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ledgerline/internal/domain/categorization"
	"ledgerline/internal/domain/mapping"
	"ledgerline/internal/domain/transaction"
)

// Categorizer is the categorization service surface used by the handlers.
type Categorizer interface {
	ResolveVendor(ctx context.Context, text string, userID *int64) (categorization.VendorResult, error)
	ResolveCategory(ctx context.Context, q categorization.CategoryQuery) (categorization.CategoryResult, error)
	CategorizeUncategorized(ctx context.Context, userID int64, limit int) (*categorization.CategorizeResult, error)
	LearnVendorCorrection(ctx context.Context, text, vendorName string, userID int64) (*mapping.LearnResult, error)
	LearnCategoryCorrection(ctx context.Context, vendorName, category string, userID int64) (*mapping.LearnResult, error)
	CorrectTransaction(ctx context.Context, id string, userID int64, params transaction.UpdateParams) (*categorization.CorrectionResult, error)
	Categories(ctx context.Context) ([]categorization.Category, error)
}

type ResolveVendorRequest struct {
	Text string `json:"text" validate:"required"`
}

type ResolveCategoryRequest struct {
	VendorName string          `json:"vendorName" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type" validate:"omitempty,oneof=DEBIT CREDIT debit credit"`
}

type VendorCorrectionRequest struct {
	Text       string `json:"text" validate:"required"`
	VendorName string `json:"vendorName" validate:"required"`
}

// CategoryCorrectionRequest names the category by catalog name or decimal id.
type CategoryCorrectionRequest struct {
	VendorName string `json:"vendorName" validate:"required"`
	Category   string `json:"category" validate:"required"`
}

type CategorizationHandler struct {
	service Categorizer
	logger  zerolog.Logger
}

func NewCategorizationHandler(service Categorizer, logger zerolog.Logger) *CategorizationHandler {
	return &CategorizationHandler{service: service, logger: logger}
}

// HandleResolveVendor handles POST /api/resolve/vendor
func (h *CategorizationHandler) HandleResolveVendor(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeAndValidate[ResolveVendorRequest](w, r, CodeInvalidRequest)
	if !ok {
		return
	}

	result, err := h.service.ResolveVendor(r.Context(), req.Text, &userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to resolve vendor")
		return
	}
	writeData(w, http.StatusOK, result)
}

// HandleResolveCategory handles POST /api/resolve/category
func (h *CategorizationHandler) HandleResolveCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeAndValidate[ResolveCategoryRequest](w, r, CodeInvalidRequest)
	if !ok {
		return
	}

	txType := transaction.TypeDebit
	if req.Type != "" {
		txType = transaction.Type(strings.ToUpper(req.Type))
	}

	result, err := h.service.ResolveCategory(r.Context(), categorization.CategoryQuery{
		VendorName: req.VendorName,
		Amount:     req.Amount.Abs(),
		Type:       txType,
		UserID:     &userID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to resolve category")
		return
	}
	writeData(w, http.StatusOK, result)
}

// HandleVendorCorrection handles POST /api/corrections/vendor
func (h *CategorizationHandler) HandleVendorCorrection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeAndValidate[VendorCorrectionRequest](w, r, CodeInvalidRequest)
	if !ok {
		return
	}

	result, err := h.service.LearnVendorCorrection(r.Context(), req.Text, req.VendorName, userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to learn vendor correction")
		return
	}
	writeData(w, http.StatusOK, result)
}

// HandleCategoryCorrection handles POST /api/corrections/category
func (h *CategorizationHandler) HandleCategoryCorrection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeAndValidate[CategoryCorrectionRequest](w, r, CodeInvalidRequest)
	if !ok {
		return
	}

	result, err := h.service.LearnCategoryCorrection(r.Context(), req.VendorName, req.Category, userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to learn category correction")
		return
	}
	writeData(w, http.StatusOK, result)
}

// HandleListCategories handles GET /api/categories
func (h *CategorizationHandler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	categories, err := h.service.Categories(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list categories")
		return
	}
	writeData(w, http.StatusOK, categories)
}

// writeServiceError maps categorization errors onto response codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, categorization.ErrEmptyQuery),
		errors.Is(err, mapping.ErrEmptyKey),
		errors.Is(err, mapping.ErrEmptyValue):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, categorization.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, transaction.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Transaction not found")
	default:
		requestLogger(r, logger).Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal error")
	}
}

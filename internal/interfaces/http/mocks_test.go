package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"ledgerline/internal/domain/categorization"
	"ledgerline/internal/domain/mapping"
	"ledgerline/internal/domain/notification"
	"ledgerline/internal/domain/transaction"
	"ledgerline/internal/shared/middleware"
)

// MockIngestor implements StatementIngestor for testing
type MockIngestor struct {
	IngestStatementFunc func(ctx context.Context, fileID string, userID int64, stmt transaction.ParsedStatement) (*transaction.IngestResult, error)
}

func (m *MockIngestor) IngestStatement(ctx context.Context, fileID string, userID int64, stmt transaction.ParsedStatement) (*transaction.IngestResult, error) {
	if m.IngestStatementFunc != nil {
		return m.IngestStatementFunc(ctx, fileID, userID, stmt)
	}
	return &transaction.IngestResult{}, nil
}

// MockProcessor implements FileProcessor for testing
type MockProcessor struct {
	ProcessFunc func(ctx context.Context, fileID string, userID int64) (*transaction.ProcessResult, error)
	SweepFunc   func(ctx context.Context, userID int64) (*transaction.SweepResult, error)
}

func (m *MockProcessor) ProcessFileTransactions(ctx context.Context, fileID string, userID int64) (*transaction.ProcessResult, error) {
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, fileID, userID)
	}
	return &transaction.ProcessResult{}, nil
}

func (m *MockProcessor) DetectAndLinkInternalTransfers(ctx context.Context, userID int64) (*transaction.SweepResult, error) {
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx, userID)
	}
	return &transaction.SweepResult{}, nil
}

// MockFileRepo implements FileReader for testing
type MockFileRepo struct {
	GetByIDFunc func(ctx context.Context, id string, userID int64) (*transaction.StatementFile, error)
}

func (m *MockFileRepo) GetByID(ctx context.Context, id string, userID int64) (*transaction.StatementFile, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id, userID)
	}
	return nil, nil
}

// MockTransactionRepo implements TransactionLister for testing
type MockTransactionRepo struct {
	ListByUserIDFunc func(ctx context.Context, userID int64, filter transaction.ListFilter) ([]*transaction.Transaction, error)
}

func (m *MockTransactionRepo) ListByUserID(ctx context.Context, userID int64, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID, filter)
	}
	return nil, nil
}

// MockCategorizer implements Categorizer for testing
type MockCategorizer struct {
	ResolveVendorFunc           func(ctx context.Context, text string, userID *int64) (categorization.VendorResult, error)
	ResolveCategoryFunc         func(ctx context.Context, q categorization.CategoryQuery) (categorization.CategoryResult, error)
	CategorizeUncategorizedFunc func(ctx context.Context, userID int64, limit int) (*categorization.CategorizeResult, error)
	LearnVendorFunc             func(ctx context.Context, text, vendorName string, userID int64) (*mapping.LearnResult, error)
	LearnCategoryFunc           func(ctx context.Context, vendorName, category string, userID int64) (*mapping.LearnResult, error)
	CorrectTransactionFunc      func(ctx context.Context, id string, userID int64, params transaction.UpdateParams) (*categorization.CorrectionResult, error)
	CategoriesFunc              func(ctx context.Context) ([]categorization.Category, error)
}

func (m *MockCategorizer) ResolveVendor(ctx context.Context, text string, userID *int64) (categorization.VendorResult, error) {
	if m.ResolveVendorFunc != nil {
		return m.ResolveVendorFunc(ctx, text, userID)
	}
	return categorization.VendorResult{}, nil
}

func (m *MockCategorizer) ResolveCategory(ctx context.Context, q categorization.CategoryQuery) (categorization.CategoryResult, error) {
	if m.ResolveCategoryFunc != nil {
		return m.ResolveCategoryFunc(ctx, q)
	}
	return categorization.CategoryResult{}, nil
}

func (m *MockCategorizer) CategorizeUncategorized(ctx context.Context, userID int64, limit int) (*categorization.CategorizeResult, error) {
	if m.CategorizeUncategorizedFunc != nil {
		return m.CategorizeUncategorizedFunc(ctx, userID, limit)
	}
	return &categorization.CategorizeResult{}, nil
}

func (m *MockCategorizer) LearnVendorCorrection(ctx context.Context, text, vendorName string, userID int64) (*mapping.LearnResult, error) {
	if m.LearnVendorFunc != nil {
		return m.LearnVendorFunc(ctx, text, vendorName, userID)
	}
	return &mapping.LearnResult{}, nil
}

func (m *MockCategorizer) LearnCategoryCorrection(ctx context.Context, vendorName, category string, userID int64) (*mapping.LearnResult, error) {
	if m.LearnCategoryFunc != nil {
		return m.LearnCategoryFunc(ctx, vendorName, category, userID)
	}
	return &mapping.LearnResult{}, nil
}

func (m *MockCategorizer) CorrectTransaction(ctx context.Context, id string, userID int64, params transaction.UpdateParams) (*categorization.CorrectionResult, error) {
	if m.CorrectTransactionFunc != nil {
		return m.CorrectTransactionFunc(ctx, id, userID, params)
	}
	return &categorization.CorrectionResult{}, nil
}

func (m *MockCategorizer) Categories(ctx context.Context) ([]categorization.Category, error) {
	if m.CategoriesFunc != nil {
		return m.CategoriesFunc(ctx)
	}
	return nil, nil
}

// MockDeviceRegistrar implements DeviceRegistrar for testing
type MockDeviceRegistrar struct {
	RegisterDeviceFunc func(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error)
}

func (m *MockDeviceRegistrar) RegisterDevice(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error) {
	if m.RegisterDeviceFunc != nil {
		return m.RegisterDeviceFunc(ctx, params)
	}
	return &notification.DeviceToken{}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

// serve routes a single request through a chi router so URL params resolve.
// A zero userID sends the request unauthenticated.
func serve(t *testing.T, method, pattern, target string, body string, userID int64, h http.HandlerFunc) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	router := chi.NewRouter()
	router.MethodFunc(method, pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != 0 {
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "body: %s", rr.Body.String())
	return rr, env
}

var testLogger = zerolog.Nop()

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"ledgerline/internal/shared/logger"
	"ledgerline/internal/shared/middleware"
)

// Error codes carried in failed responses.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeParsingFailed    = "PARSING_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeProcessingFailed = "PROCESSING_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternal         = "INTERNAL_ERROR"
)

const maxBodySize = 10 << 20 // 10 MiB, large statements included

var validate = validator.New(validator.WithRequiredStructEnabled())

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}

func writeErrorDetails(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, errorResponse{Code: code, Error: msg, Details: details})
}

// decodeAndValidate reads a JSON body into T and runs struct validation.
// On failure it writes the response and returns false.
func decodeAndValidate[T any](w http.ResponseWriter, r *http.Request, code string) (*T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Request body is required")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, code, "Invalid request body")
		return nil, false
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" failed "+fe.Tag())
			}
			writeErrorDetails(w, http.StatusBadRequest, code, "Validation failed", fields)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, code, "Validation failed")
		return nil, false
	}

	return &req, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
		return 0, false
	}
	return userID, true
}

func requestLogger(r *http.Request, fallback zerolog.Logger) *zerolog.Logger {
	l := logger.FromContext(r.Context(), fallback)
	return &l
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"recur/internal/core"
	"recur/internal/log"
	"recur/internal/recurring"
	"recur/internal/services"
)

// Message bodies of the error responses.
const (
	msgBadRequest          = "Bad Request Error"
	msgInternalServerError = "Internal Server Error"
	msgServiceUnavailable  = "Service Unavailable"
	msgTooManyRequests     = "Too Many Requests"
	msgTooLarge            = "Request Entity Too Large"
)

type messageBody struct {
	Msg string `json:"msg"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Msg: msg})
}

// writeError maps err to one of the user-visible outcomes. Server-side
// failures are logged here and reported without detail.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status, body, errorType := classifyError(err)
	if status >= http.StatusInternalServerError {
		atomic.AddInt64(&s.metrics.serverErrors, 1)
		s.errors.LogError(ctx, "Request failed", err, errorType, op, nil)
	} else {
		atomic.AddInt64(&s.metrics.rejected, 1)
	}
	writeJSON(w, status, body)
}

func classifyError(err error) (status int, body any, errorType string) {
	var batchErr *core.BatchError
	var maxBytesErr *http.MaxBytesError
	var storageErr *services.StorageError

	switch {
	case errors.As(err, &batchErr):
		return http.StatusBadRequest, batchErr, log.ErrorTypeValidation
	case errors.Is(err, core.ErrEmptyBatch), errors.Is(err, core.ErrEmptyUserID):
		return http.StatusBadRequest, messageBody{Msg: msgBadRequest}, log.ErrorTypeValidation
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, messageBody{Msg: msgTooLarge}, log.ErrorTypeValidation
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, messageBody{Msg: msgServiceUnavailable}, log.ErrorTypeTimeout
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, messageBody{Msg: msgInternalServerError}, log.ErrorTypeDatabase
	case errors.Is(err, recurring.ErrInvariantViolation):
		return http.StatusInternalServerError, messageBody{Msg: msgInternalServerError}, log.ErrorTypeInvariant
	default:
		return http.StatusInternalServerError, messageBody{Msg: msgInternalServerError}, log.ErrorTypeInternal
	}
}

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aegisframework/aegis/types"
)

// Envelope is the uniform API response shape.
type Envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo is the wire form of a structured error.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope around data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError maps a structured error onto an HTTP error envelope.
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = statusForCode(err.Code)
	}

	if logger != nil {
		logger.Warn("api error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, Envelope{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(err.Code),
			Message:   err.Message,
			Retryable: err.Retryable,
		},
		Timestamp: time.Now(),
	})
}

// writeAnyError routes typed errors through WriteError and wraps the rest as
// internal errors.
func writeAnyError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if typed, ok := err.(*types.Error); ok {
		WriteError(w, typed, logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInternal, "operation failed").WithCause(err), logger)
}

func statusForCode(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest, types.ErrInvalidCapabilities:
		return http.StatusBadRequest
	case types.ErrDuplicateID:
		return http.StatusConflict
	case types.ErrNotFound, types.ErrUnknownResource:
		return http.StatusNotFound
	case types.ErrDecomposition:
		return http.StatusUnprocessableEntity
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrRemote:
		return http.StatusBadGateway
	case types.ErrNoResourceAvailable, types.ErrHealthCheckFailed, types.ErrStoreClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes the request body into dst, rejecting unknown fields.
// On failure it writes the error response and returns a non-nil error.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/liveshard/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeForbidden            = "FORBIDDEN"
	CodeNotConnected         = "NOT_CONNECTED"
	CodeAlreadyConnected     = "ALREADY_CONNECTED"
	CodeJoinRejected         = "JOIN_REJECTED"
	CodeDisconnected         = "DISCONNECTED_BEFORE_READY"
	CodeShuttingDown         = "SHUTTING_DOWN"
	CodeCharacterNotFound    = "CHARACTER_NOT_FOUND"
	CodeCharacterNotReady    = "CHARACTER_NOT_READY"
	CodeUnknownGamePass      = "UNKNOWN_GAME_PASS"
	CodeGamePassNotOwned     = "GAME_PASS_NOT_OWNED"
	CodePlatformUnavailable  = "PLATFORM_UNAVAILABLE"
	CodeTimeout              = "TIMEOUT"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeRegistrationRejected = "REGISTRATION_REJECTED"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status an error maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, model.ErrNotConnected):
		return &httpError{http.StatusNotFound, APIError{CodeNotConnected, "Player is not connected"}}
	case errors.Is(err, model.ErrAlreadyConnected):
		return &httpError{http.StatusConflict, APIError{CodeAlreadyConnected, "Player is already connected"}}
	case errors.Is(err, model.ErrDisconnectedBeforeReady):
		return &httpError{http.StatusConflict, APIError{CodeDisconnected, "Player disconnected before the session was ready"}}
	case errors.Is(err, model.ErrJoinRejected):
		return &httpError{http.StatusConflict, APIError{CodeJoinRejected, "Player record could not be loaded"}}
	case errors.Is(err, model.ErrShuttingDown):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeShuttingDown, "Shard is shutting down"}}
	case errors.Is(err, model.ErrCharacterNotReady):
		return &httpError{http.StatusConflict, APIError{CodeCharacterNotReady, "Character is not ready"}}
	case errors.Is(err, model.ErrUnknownGamePass):
		return &httpError{http.StatusNotFound, APIError{CodeUnknownGamePass, "Unknown game pass"}}
	case errors.Is(err, model.ErrGamePassNotOwned):
		return &httpError{http.StatusForbidden, APIError{CodeGamePassNotOwned, "Game pass is not owned"}}
	case errors.Is(err, model.ErrPlatformUnavailable):
		return &httpError{http.StatusBadGateway, APIError{CodePlatformUnavailable, "Platform request failed"}}
	case errors.Is(err, model.ErrRegistrationClosed), errors.Is(err, model.ErrHandlerAlreadyRegistered):
		return &httpError{http.StatusConflict, APIError{CodeRegistrationRejected, err.Error()}}
	case errors.Is(err, context.DeadlineExceeded):
		return &httpError{http.StatusGatewayTimeout, APIError{CodeTimeout, "Timed out"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewForbiddenError creates a permission error
func NewForbiddenError(message string) error {
	return &httpError{http.StatusForbidden, APIError{CodeForbidden, message}}
}

// NewCharacterNotFoundError reports a player without a character
func NewCharacterNotFoundError() error {
	return &httpError{http.StatusNotFound, APIError{CodeCharacterNotFound, "Player has no character"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

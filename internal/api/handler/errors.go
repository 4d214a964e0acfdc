package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/liveshard/internal/api/apierr"
	"github.com/mcoot/liveshard/internal/model"
)

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// userIDVar parses the {user_id} path variable
func userIDVar(r *http.Request) (model.UserID, error) {
	id, err := model.ParseUserID(mux.Vars(r)["user_id"])
	if err != nil {
		return 0, NewInvalidRequestError("Invalid user id")
	}
	return id, nil
}

// positiveUserID validates a user id from a request body
func positiveUserID(v int64) (model.UserID, error) {
	if v <= 0 {
		return 0, NewInvalidRequestError("user_id must be a positive integer, got " + strconv.FormatInt(v, 10))
	}
	return model.UserID(v), nil
}

// decode reads a JSON request body
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewInvalidRequestError("Invalid request body")
	}
	return nil
}

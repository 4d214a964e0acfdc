package middleware

import (
	"net/http"
	"strconv"

	"github.com/mcoot/liveshard/internal/api/apierr"
	"github.com/mcoot/liveshard/internal/model"
)

// ExecutorHeader names the user issuing an operator command
const ExecutorHeader = "X-Executor-ID"

// Developer rejects requests whose executor is not a developer
func Developer(isDeveloper func(model.UserID) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var executor model.UserID
			if v := r.Header.Get(ExecutorHeader); v != "" {
				id, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					apierr.WriteError(w, apierr.NewInvalidRequestError("Invalid "+ExecutorHeader))
					return
				}
				executor = model.UserID(id)
			}

			if !isDeveloper(executor) {
				apierr.WriteError(w, apierr.NewForbiddenError("Insufficient permission"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/liveshard/internal/api/apierr"
	"github.com/mcoot/liveshard/internal/middleware"
)

// Recovery creates panic recovery middleware for the API.
// A panic becomes a JSON internal error.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, func(w http.ResponseWriter, _ *http.Request, _ any) {
		apierr.WriteError(w, apierr.NewInternalError())
	})
}

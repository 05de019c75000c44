package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	sharedcontext "libris-backend/internal/context"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/interfaces/http/response"
)

// Recovery converts handler panics into 500 responses so a single bad
// request cannot take the process down.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("requestId", sharedcontext.GetRequestIDFromContext(r.Context())),
						zap.ByteString("stack", debug.Stack()),
					)

					// Once the handler has started the body the status line
					// is gone; only an untouched response can be replaced.
					if w.Header().Get("Content-Type") == "" {
						response.Error(w, r, apperrors.NewError(
							apperrors.CodeInternalError, "an internal error occurred",
						).Build())
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

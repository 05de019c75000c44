package middleware

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	sharedcontext "libris-backend/internal/context"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/interfaces/http/response"
)

// Timeout bounds request handling. Past the deadline the client gets a
// 503 and the handler's context is cancelled; the handler goroutine is
// expected to observe the cancellation and bail out.
func Timeout(limit time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			r = r.WithContext(ctx)
			done := make(chan struct{})

			go func() {
				defer func() {
					if rec := recover(); rec != nil {
						// The outer recovery middleware cannot see panics on
						// this goroutine, so they are absorbed here.
						logger.Error("panic recovered",
							zap.Any("panic", rec),
							zap.String("method", r.Method),
							zap.String("path", r.URL.Path),
							zap.String("requestId", sharedcontext.GetRequestIDFromContext(r.Context())),
						)
						if w.Header().Get("Content-Type") == "" {
							response.Error(w, r, apperrors.NewError(
								apperrors.CodeInternalError, "an internal error occurred",
							).Build())
						}
					}
					close(done)
				}()
				next.ServeHTTP(w, r)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				logger.Warn("request deadline exceeded",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("limit", limit),
					zap.String("requestId", sharedcontext.GetRequestIDFromContext(r.Context())),
				)
				if w.Header().Get("Content-Type") == "" {
					response.Error(w, r, apperrors.NewError(
						apperrors.CodeOperationTimeout, "request timed out",
					).Build())
				}
			}
		})
	}
}

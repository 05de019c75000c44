// Package handlers contains the HTTP handlers behind the chi router. Each
// handler decodes a DTO, calls the application layer, and renders the shared
// response envelope; no business logic lives here.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	sharedcontext "libris-backend/internal/context"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/infrastructure/observability"
	"libris-backend/internal/interfaces/http/response"
)

// requireUserID pulls the authenticated user from the request context. The
// auth middleware guarantees it on API routes; a miss is a 401.
func requireUserID(r *http.Request) (string, error) {
	userID, ok := sharedcontext.GetUserIDFromContext(r.Context())
	if !ok {
		return "", apperrors.NewError(apperrors.CodeUnauthorized, "authentication required").Build()
	}
	return userID, nil
}

// writeError renders err through the envelope. Server-side failures are
// logged with the request correlation id; client errors pass through
// unlogged.
func writeError(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	var app *apperrors.AppError
	if !errors.As(err, &app) || app.HTTPStatus() >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("requestId", sharedcontext.GetRequestIDFromContext(r.Context())),
			zap.Error(err),
		)
	}
	response.Error(w, r, err)
}

// observeCommand records one command execution. A nil collector disables
// instrumentation.
func observeCommand(m *observability.Collector, name string, start time.Time, err error) {
	if m != nil {
		m.ObserveCommand(name, err, time.Since(start))
	}
}

// observeQuery records one query execution.
func observeQuery(m *observability.Collector, name string, start time.Time, err error) {
	if m != nil {
		m.ObserveQuery(name, err, time.Since(start))
	}
}

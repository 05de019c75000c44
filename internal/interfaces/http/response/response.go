// Package response renders the JSON envelope shared by every HTTP endpoint.
//
// Successful responses carry the payload under data; failures carry a stable
// error code plus a human-readable message. Both include request metadata so
// a body can be correlated with its logs and trace.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	sharedcontext "libris-backend/internal/context"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/repository"
)

// Response is the envelope returned by every JSON endpoint.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody is the failure half of the envelope. Code is the stable
// contract; clients branch on it, never on the message text.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Meta carries request metadata alongside the payload.
type Meta struct {
	RequestID  string                 `json:"requestId,omitempty"`
	Timestamp  string                 `json:"timestamp"`
	Pagination *repository.Pagination `json:"pagination,omitempty"`
}

// OK writes a 200 with the payload.
func OK(w http.ResponseWriter, r *http.Request, data interface{}) {
	writeSuccess(w, r, http.StatusOK, data, nil)
}

// Created writes a 201 with the payload.
func Created(w http.ResponseWriter, r *http.Request, data interface{}) {
	writeSuccess(w, r, http.StatusCreated, data, nil)
}

// NoContent writes a 204 with an empty body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Paginated writes a 200 whose meta carries the pagination block, keeping
// list payloads shaped like every other data payload.
func Paginated(w http.ResponseWriter, r *http.Request, items interface{}, pagination repository.Pagination) {
	writeSuccess(w, r, http.StatusOK, items, &pagination)
}

// Error maps err onto the envelope. Application errors keep their code and
// status; any other error is reported as a plain 500 so internals never
// leak to clients. The request ID in meta is the correlation handle for
// server-side logs.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := &ErrorBody{
		Code:    apperrors.CodeInternalError.String(),
		Message: "an internal error occurred",
	}

	var app *apperrors.AppError
	if errors.As(err, &app) {
		status = app.HTTPStatus()
		body.Code = app.Code.String()
		body.Message = app.Message
		// Details may embed the underlying cause, so only client errors
		// get them echoed back.
		if status < http.StatusInternalServerError {
			body.Details = app.Details
		}
	}

	write(w, status, Response{Success: false, Error: body, Meta: newMeta(r)})
}

func writeSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}, pagination *repository.Pagination) {
	meta := newMeta(r)
	meta.Pagination = pagination
	write(w, status, Response{Success: true, Data: data, Meta: meta})
}

func newMeta(r *http.Request) *Meta {
	return &Meta{
		RequestID: sharedcontext.GetRequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already sent, so an encode failure can only be
	// logged by the caller's middleware at this point.
	_ = json.NewEncoder(w).Encode(body)
}

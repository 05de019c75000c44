package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"libris-backend/internal/application/commands"
	"libris-backend/internal/application/queries"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/infrastructure/observability"
	"libris-backend/internal/interfaces/http/dto"
	"libris-backend/internal/interfaces/http/response"
)

// ReservationHandler serves the loan endpoints.
type ReservationHandler struct {
	commands *commands.ReservationCommandHandler
	queries  *queries.ReservationQueryService
	books    *queries.BookQueryService
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewReservationHandler wires the loan endpoints. The book query service
// resolves isbn-addressed reservations onto canonical book ids.
func NewReservationHandler(cmd *commands.ReservationCommandHandler, qry *queries.ReservationQueryService, books *queries.BookQueryService, metrics *observability.Collector, logger *zap.Logger) *ReservationHandler {
	if cmd == nil || qry == nil || books == nil {
		panic("NewReservationHandler: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationHandler{
		commands: cmd,
		queries:  qry,
		books:    books,
		metrics:  metrics,
		logger:   logger.Named("ReservationHandler"),
	}
}

// Create handles POST /api/v1/reservations. Clients may address the book by
// id or by isbn; the isbn is resolved through the catalog projection.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var req dto.CreateReservationRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	bookID := req.BookID
	if bookID == "" {
		bookID, err = h.resolveISBN(r.Context(), req.ISBN)
		if err != nil {
			writeError(h.logger, w, r, err)
			return
		}
	}

	start := time.Now()
	created, err := h.commands.CreateReservation(r.Context(), req.ToCommand(userID, bookID))
	observeCommand(h.metrics, "CreateReservation", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.Created(w, r, dto.NewReservationView(created))
}

func (h *ReservationHandler) resolveISBN(ctx context.Context, isbn string) (string, error) {
	doc, err := h.books.GetBookByISBN(ctx, isbn, []string{"id"})
	if err != nil {
		return "", err
	}
	id, _ := doc["id"].(string)
	if id == "" {
		return "", apperrors.NewError(apperrors.CodeBookNotFound, "book not found").
			WithResource("book").
			WithDetails("isbn=%s", isbn).
			Build()
	}
	return id, nil
}

// Get handles GET /api/v1/reservations/{reservationId}.
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")

	start := time.Now()
	doc, err := h.queries.GetReservationByID(r.Context(), reservationID, dto.ParseFields(r.URL.Query()))
	observeQuery(h.metrics, "GetReservationByID", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, doc)
}

// List handles GET /api/v1/reservations.
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	filter, err := dto.ParseReservationFilter(params)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	page, err := dto.ParsePageRequest(params)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	resp, err := h.queries.ListReservations(r.Context(), queries.ListReservationsQuery{
		Filter: filter,
		Page:   page,
		Fields: dto.ParseFields(params),
	})
	observeQuery(h.metrics, "ListReservations", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.Paginated(w, r, resp.Data, resp.Pagination)
}

// ListMine handles GET /api/v1/reservations/my, the caller's own loans.
func (h *ReservationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	page, err := dto.ParsePageRequest(r.URL.Query())
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	resp, err := h.queries.ListReservationsByUser(r.Context(), userID, page, dto.ParseFields(r.URL.Query()))
	observeQuery(h.metrics, "ListReservationsByUser", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.Paginated(w, r, resp.Data, resp.Pagination)
}

// ListByBook handles GET /api/v1/books/{bookId}/reservations.
func (h *ReservationHandler) ListByBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookId")

	page, err := dto.ParsePageRequest(r.URL.Query())
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	resp, err := h.queries.ListReservationsByBook(r.Context(), bookID, page, dto.ParseFields(r.URL.Query()))
	observeQuery(h.metrics, "ListReservationsByBook", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.Paginated(w, r, resp.Data, resp.Pagination)
}

// Return handles POST /api/v1/reservations/{reservationId}/return.
func (h *ReservationHandler) Return(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var req dto.ReturnReservationRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	res, err := h.commands.ReturnReservation(r.Context(), req.ToCommand(userID, chi.URLParam(r, "reservationId")))
	observeCommand(h.metrics, "ReturnReservation", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, dto.NewReservationView(res))
}

// Extend handles POST /api/v1/reservations/{reservationId}/extend.
func (h *ReservationHandler) Extend(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var req dto.ExtendReservationRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	res, err := h.commands.ExtendReservationDueDate(r.Context(), req.ToCommand(userID, chi.URLParam(r, "reservationId")))
	observeCommand(h.metrics, "ExtendReservationDueDate", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, dto.NewReservationView(res))
}

// Cancel handles POST /api/v1/reservations/{reservationId}/cancel.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var req dto.CancelReservationRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	res, err := h.commands.CancelReservation(r.Context(), req.ToCommand(userID, chi.URLParam(r, "reservationId")))
	observeCommand(h.metrics, "CancelReservation", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, dto.NewReservationView(res))
}

// PayFee handles POST /api/v1/reservations/{reservationId}/payment.
func (h *ReservationHandler) PayFee(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var req dto.PayReservationFeeRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	res, err := h.commands.MarkReservationFeePaid(r.Context(), req.ToCommand(userID, chi.URLParam(r, "reservationId")))
	observeCommand(h.metrics, "MarkReservationFeePaid", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, dto.NewReservationView(res))
}

// Delete handles DELETE /api/v1/reservations/{reservationId}.
func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	err = h.commands.DeleteReservation(r.Context(), commands.DeleteReservationCommand{
		ReservationID: chi.URLParam(r, "reservationId"),
		UserID:        userID,
	})
	observeCommand(h.metrics, "DeleteReservation", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.NoContent(w)
}

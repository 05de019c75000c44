package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"libris-backend/internal/application/commands"
	"libris-backend/internal/application/queries"
	"libris-backend/internal/infrastructure/observability"
	"libris-backend/internal/interfaces/http/dto"
	"libris-backend/internal/interfaces/http/response"
)

// BookHandler serves the catalog endpoints.
type BookHandler struct {
	commands *commands.BookCommandHandler
	queries  *queries.BookQueryService
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewBookHandler wires the catalog endpoints. A nil metrics collector
// disables instrumentation.
func NewBookHandler(cmd *commands.BookCommandHandler, qry *queries.BookQueryService, metrics *observability.Collector, logger *zap.Logger) *BookHandler {
	if cmd == nil || qry == nil {
		panic("NewBookHandler: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookHandler{
		commands: cmd,
		queries:  qry,
		metrics:  metrics,
		logger:   logger.Named("BookHandler"),
	}
}

// Create handles POST /api/v1/books.
func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var req dto.CreateBookRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	created, err := h.commands.CreateBook(r.Context(), req.ToCommand(userID))
	observeCommand(h.metrics, "CreateBook", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.Created(w, r, dto.NewBookView(created))
}

// Get handles GET /api/v1/books/{bookId}.
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookId")

	start := time.Now()
	doc, err := h.queries.GetBookByID(r.Context(), bookID, dto.ParseFields(r.URL.Query()))
	observeQuery(h.metrics, "GetBookByID", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, doc)
}

// GetByISBN handles GET /api/v1/books/isbn/{isbn}.
func (h *BookHandler) GetByISBN(w http.ResponseWriter, r *http.Request) {
	isbn := chi.URLParam(r, "isbn")

	start := time.Now()
	doc, err := h.queries.GetBookByISBN(r.Context(), isbn, dto.ParseFields(r.URL.Query()))
	observeQuery(h.metrics, "GetBookByISBN", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, doc)
}

// List handles GET /api/v1/books.
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	filter, err := dto.ParseBookFilter(params)
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
	resp, err := h.queries.ListBooks(r.Context(), queries.ListBooksQuery{
		Filter: filter,
		Page:   page,
		Fields: dto.ParseFields(params),
	})
	observeQuery(h.metrics, "ListBooks", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.Paginated(w, r, resp.Data, resp.Pagination)
}

// Update handles PUT /api/v1/books/{bookId}.
func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var req dto.UpdateBookRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	updated, err := h.commands.UpdateBook(r.Context(), req.ToCommand(userID, chi.URLParam(r, "bookId")))
	observeCommand(h.metrics, "UpdateBook", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, dto.NewBookView(updated))
}

// Delete handles DELETE /api/v1/books/{bookId}.
func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	err = h.commands.DeleteBook(r.Context(), commands.DeleteBookCommand{
		BookID: chi.URLParam(r, "bookId"),
		UserID: userID,
	})
	observeCommand(h.metrics, "DeleteBook", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.NoContent(w)
}

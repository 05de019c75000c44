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

// WalletHandler serves the wallet endpoints.
type WalletHandler struct {
	commands *commands.WalletCommandHandler
	queries  *queries.WalletQueryService
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewWalletHandler wires the wallet endpoints.
func NewWalletHandler(cmd *commands.WalletCommandHandler, qry *queries.WalletQueryService, metrics *observability.Collector, logger *zap.Logger) *WalletHandler {
	if cmd == nil || qry == nil {
		panic("NewWalletHandler: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletHandler{
		commands: cmd,
		queries:  qry,
		metrics:  metrics,
		logger:   logger.Named("WalletHandler"),
	}
}

// Create handles POST /api/v1/wallets. A missing userId in the body opens
// the wallet for the caller.
func (h *WalletHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var req dto.CreateWalletRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	created, err := h.commands.CreateWallet(r.Context(), req.ToCommand(userID))
	observeCommand(h.metrics, "CreateWallet", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.Created(w, r, dto.NewWalletView(created))
}

// Get handles GET /api/v1/wallets/{walletId}.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "walletId")

	start := time.Now()
	doc, err := h.queries.GetWalletByID(r.Context(), walletID, dto.ParseFields(r.URL.Query()))
	observeQuery(h.metrics, "GetWalletByID", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, doc)
}

// GetMine handles GET /api/v1/wallets/my, the caller's own wallet.
func (h *WalletHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	h.getByUser(w, r, userID)
}

// GetByUser handles GET /api/v1/wallets/user/{userId}.
func (h *WalletHandler) GetByUser(w http.ResponseWriter, r *http.Request) {
	h.getByUser(w, r, chi.URLParam(r, "userId"))
}

func (h *WalletHandler) getByUser(w http.ResponseWriter, r *http.Request, userID string) {
	start := time.Now()
	doc, err := h.queries.GetWalletByUserID(r.Context(), userID, dto.ParseFields(r.URL.Query()))
	observeQuery(h.metrics, "GetWalletByUserID", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, doc)
}

// List handles GET /api/v1/wallets.
func (h *WalletHandler) List(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	filter, err := dto.ParseWalletFilter(params)
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
	resp, err := h.queries.ListWallets(r.Context(), queries.ListWalletsQuery{
		Filter: filter,
		Page:   page,
		Fields: dto.ParseFields(params),
	})
	observeQuery(h.metrics, "ListWallets", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.Paginated(w, r, resp.Data, resp.Pagination)
}

// UpdateBalance handles POST /api/v1/wallets/{walletId}/balance.
func (h *WalletHandler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var req dto.UpdateWalletBalanceRequest
	if err := dto.Decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	start := time.Now()
	updated, err := h.commands.UpdateWalletBalance(r.Context(), req.ToCommand(userID, chi.URLParam(r, "walletId")))
	observeCommand(h.metrics, "UpdateWalletBalance", start, err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	response.OK(w, r, dto.NewWalletView(updated))
}

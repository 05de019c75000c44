package di

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"libris-backend/internal/config"
	"libris-backend/internal/infrastructure/observability"
	"libris-backend/internal/interfaces/http/handlers"
	"libris-backend/internal/middleware"
)

// RouterDeps holds everything the HTTP surface needs.
type RouterDeps struct {
	Books        *handlers.BookHandler
	Reservations *handlers.ReservationHandler
	Wallets      *handlers.WalletHandler
	Health       *handlers.HealthHandler

	Verifier  middleware.TokenVerifier
	Collector *observability.Collector
	Logger    *zap.Logger
	Config    *config.Config
}

// SetupRouter assembles the chi router: the middleware chain, the probe
// and metrics endpoints, and the authenticated API routes.
func SetupRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // SECURITY: restrict per deployment
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(observability.TracingMiddleware(serviceName))
	if deps.Collector != nil {
		r.Use(observability.MetricsMiddleware(deps.Collector))
	}
	if deps.Config != nil && deps.Config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.Config.Server.RequestTimeout, deps.Logger))
	}

	r.Get("/health", deps.Health.Health)
	r.Get("/health/live", deps.Health.Liveness)
	if deps.Collector != nil {
		r.Method(http.MethodGet, metricsPath(deps.Config), deps.Collector.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CircuitBreaker(middleware.DefaultCircuitBreakerConfig("api"), deps.Logger))
		r.Use(middleware.Auth(deps.Verifier, deps.Logger))

		// Book routes
		r.Post("/books", deps.Books.Create)
		r.Get("/books", deps.Books.List)
		r.Get("/books/isbn/{isbn}", deps.Books.GetByISBN)
		r.Get("/books/{bookId}", deps.Books.Get)
		r.Put("/books/{bookId}", deps.Books.Update)
		r.Delete("/books/{bookId}", deps.Books.Delete)
		r.Get("/books/{bookId}/reservations", deps.Reservations.ListByBook)

		// Reservation routes
		r.Post("/reservations", deps.Reservations.Create)
		r.Get("/reservations", deps.Reservations.List)
		r.Get("/reservations/my", deps.Reservations.ListMine)
		r.Get("/reservations/{reservationId}", deps.Reservations.Get)
		r.Delete("/reservations/{reservationId}", deps.Reservations.Delete)

		// Reservation lifecycle routes
		r.Post("/reservations/{reservationId}/return", deps.Reservations.Return)
		r.Post("/reservations/{reservationId}/extend", deps.Reservations.Extend)
		r.Post("/reservations/{reservationId}/cancel", deps.Reservations.Cancel)
		r.Post("/reservations/{reservationId}/payment", deps.Reservations.PayFee)

		// Wallet routes
		r.Post("/wallets", deps.Wallets.Create)
		r.Get("/wallets", deps.Wallets.List)
		r.Get("/wallets/my", deps.Wallets.GetMine)
		r.Get("/wallets/user/{userId}", deps.Wallets.GetByUser)
		r.Get("/wallets/{walletId}", deps.Wallets.Get)
		r.Post("/wallets/{walletId}/balance", deps.Wallets.UpdateBalance)
	})

	return r
}

func metricsPath(cfg *config.Config) string {
	if cfg != nil && cfg.Observability.MetricsPath != "" {
		return cfg.Observability.MetricsPath
	}
	return "/metrics"
}

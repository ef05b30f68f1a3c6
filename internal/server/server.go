package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/cloudlicensepro/internal/auth"
	"github.com/dukerupert/cloudlicensepro/internal/config"
	"github.com/dukerupert/cloudlicensepro/internal/handler"
	"github.com/dukerupert/cloudlicensepro/internal/licensecheck"
	"github.com/dukerupert/cloudlicensepro/internal/metrics"
	"github.com/dukerupert/cloudlicensepro/internal/middleware"
	"github.com/dukerupert/cloudlicensepro/internal/store"
	ws "github.com/dukerupert/cloudlicensepro/internal/websocket"
)

type Server struct {
	db          *sqlx.DB
	hub         *ws.Hub
	verifier    *auth.TokenVerifier
	metrics     *metrics.Metrics
	rateLimiter *middleware.RateLimiter
	clientIP    *middleware.ClientIP
	origins     []string
	validateH   *handler.ValidateHandler
	productH    *handler.ProductHandler
	customerH   *handler.CustomerHandler
	licenseH    *handler.LicenseHandler
	resellerH   *handler.ResellerHandler
	dashboardH  *handler.DashboardHandler
	logger      *slog.Logger
}

func New(db *sqlx.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	m := metrics.New()

	productStore := store.NewProductStore(db)
	customerStore := store.NewCustomerStore(db)
	licenseStore := store.NewLicenseStore(db)
	resellerStore := store.NewResellerStore(db)
	keyStore := store.NewCustomerKeyStore(db)

	validator := licensecheck.New(store.NewLookupStore(db),
		licensecheck.WithLogger(logger.With("component", "licensecheck")))

	m.Gauge("websocket_clients", "Connected dashboard websocket clients.", func() float64 {
		return float64(hub.ClientCount())
	})
	m.Counter("websocket_dropped_messages_total", "Dashboard messages dropped on full client buffers.", func() float64 {
		return float64(hub.Dropped())
	})
	m.Gauge("db_open_connections", "Open database connections.", func() float64 {
		return float64(db.Stats().OpenConnections)
	})

	return &Server{
		db:          db,
		hub:         hub,
		verifier:    auth.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		metrics:     m,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitIdle),
		clientIP:    middleware.NewClientIP(cfg.TrustedPrefixes()),
		origins:     cfg.Origins(),
		validateH:   handler.NewValidateHandler(validator, licenseStore, m, cfg.ValidateTimeout, hub, logger.With("component", "validate")),
		productH:    handler.NewProductHandler(productStore, hub, logger.With("component", "product")),
		customerH:   handler.NewCustomerHandler(customerStore, hub, logger.With("component", "customer")),
		licenseH:    handler.NewLicenseHandler(licenseStore, productStore, customerStore, hub, logger.With("component", "license")),
		resellerH:   handler.NewResellerHandler(resellerStore, keyStore, productStore, hub, logger.With("component", "reseller")),
		dashboardH:  handler.NewDashboardHandler(store.NewDashboardStore(db), logger.With("component", "dashboard")),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http"), s.clientIP.Resolve))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/ws", ws.HandleWebSocket(s.hub, s.verifier, s.origins, s.logger.With("component", "websocket")))

	r.Route("/api", func(r chi.Router) {
		// Public, rate limited per client IP
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.rateLimiter, s.clientIP.Resolve))
			r.Post("/licenses/validate", s.validateH.Validate)
			r.Get("/licenses/validate/{key}", s.validateH.Display)
			r.Post("/licenses/activate", s.validateH.Activate)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.verifier))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RoleDeveloper))
				s.registerDeveloperRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RoleReseller))
				s.registerResellerRoutes(r)
			})

			r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/admin/resellers", s.resellerH.Register)
		})
	})

	return r
}

func (s *Server) registerDeveloperRoutes(r chi.Router) {
	r.Get("/dashboard", s.dashboardH.Developer)

	r.Get("/products", s.productH.List)
	r.Post("/products", s.productH.Create)
	r.Get("/products/{id}", s.productH.Get)
	r.Put("/products/{id}", s.productH.Update)
	r.Delete("/products/{id}", s.productH.Delete)

	r.Get("/customers", s.customerH.List)
	r.Post("/customers", s.customerH.Create)

	r.Get("/licenses", s.licenseH.List)
	r.Post("/licenses", s.licenseH.Issue)
	r.Get("/licenses/export", s.licenseH.Export)
	r.Post("/licenses/bulk-status", s.licenseH.BulkUpdateStatus)
	r.Get("/licenses/{id}", s.licenseH.Get)
	r.Delete("/licenses/{id}", s.licenseH.Delete)
	r.Patch("/licenses/{id}/status", s.licenseH.UpdateStatus)
	r.Post("/licenses/{id}/activations", s.licenseH.Activate)
	r.Delete("/licenses/{id}/activations/{machine}", s.licenseH.Deactivate)
}

func (s *Server) registerResellerRoutes(r chi.Router) {
	r.Route("/reseller", func(r chi.Router) {
		r.Get("/profile", s.resellerH.Profile)
		r.Get("/catalog", s.productH.Catalog)
		r.Get("/listings", s.resellerH.ListListings)
		r.Post("/listings", s.resellerH.CreateListing)
		r.Post("/listings/{id}/purchase", s.resellerH.Purchase)
		r.Post("/listings/{id}/sell", s.resellerH.Sell)
		r.Get("/keys", s.resellerH.ListKeys)
		r.Patch("/keys/{id}/status", s.resellerH.UpdateKeyStatus)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

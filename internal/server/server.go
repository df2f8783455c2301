package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantd/internal/auth"
	httpmiddleware "github.com/wolfeidau/tenantd/internal/http"
	"github.com/wolfeidau/tenantd/internal/logger"
	"github.com/wolfeidau/tenantd/internal/tenant"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultLoginRateLimit  = 10
	DefaultLoginRateWindow = time.Minute
	DefaultMaxBodyBytes    = 1 << 20
	DefaultRequestTimeout  = 4 * time.Minute
)

// Config holds the HTTP surface settings.
type Config struct {
	CORSOrigins     []string
	LoginRateLimit  int
	LoginRateWindow time.Duration
	MaxBodyBytes    int64
	RequestTimeout  time.Duration
	Tracing         bool
}

// Server exposes the lifecycle manager and auth guard over JSON HTTP.
type Server struct {
	manager  *tenant.Manager
	guard    *auth.Guard
	validate *validator.Validate
	cfg      Config
}

// New creates a server. Zero config values take their defaults.
func New(manager *tenant.Manager, guard *auth.Guard, cfg Config) *Server {
	if cfg.LoginRateLimit == 0 {
		cfg.LoginRateLimit = DefaultLoginRateLimit
	}
	if cfg.LoginRateWindow == 0 {
		cfg.LoginRateWindow = DefaultLoginRateWindow
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &Server{
		manager:  manager,
		guard:    guard,
		validate: newValidator(),
		cfg:      cfg,
	}
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	router := chi.NewRouter()

	router.Use(
		middleware.RequestID,
		httpmiddleware.ClientIPMiddleware(),
		logger.Requests(log),
		middleware.Recoverer,
		middleware.Timeout(s.cfg.RequestTimeout),
		middleware.RequestSize(s.cfg.MaxBodyBytes),
	)

	// Health check endpoint for load balancer
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.With(httpmiddleware.IPRateLimiter(s.cfg.LoginRateLimit, s.cfg.LoginRateWindow)).
		Post("/admin/login", s.login)

	router.Route("/org", func(r chi.Router) {
		r.Post("/create", s.createOrganization)
		r.Get("/get", s.getOrganization)

		r.Group(func(r chi.Router) {
			r.Use(s.guard.Middleware(writeError))

			r.Put("/update", s.updateOrganization)
			r.Delete("/delete", s.deleteOrganization)
			r.Post("/documents", s.insertDocument)
			r.Get("/documents", s.listDocuments)
		})
	})

	var handler http.Handler = router
	if len(s.cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}).Handler(handler)
	}

	if s.cfg.Tracing {
		handler = otelhttp.NewHandler(handler, "tenantd",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}))
	}

	return handler
}

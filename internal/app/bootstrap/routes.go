// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/stratacast/internal/app/features/errors"
	explorerfeature "github.com/dalemusser/stratacast/internal/app/features/explorer"
	forecastfeature "github.com/dalemusser/stratacast/internal/app/features/forecast"
	healthfeature "github.com/dalemusser/stratacast/internal/app/features/health"
	homefeature "github.com/dalemusser/stratacast/internal/app/features/home"
	modelsfeature "github.com/dalemusser/stratacast/internal/app/features/models"
	overviewfeature "github.com/dalemusser/stratacast/internal/app/features/overview"
	querystatsfeature "github.com/dalemusser/stratacast/internal/app/features/querystats"
	rawdatafeature "github.com/dalemusser/stratacast/internal/app/features/rawdata"
	retrainfeature "github.com/dalemusser/stratacast/internal/app/features/retrain"
	appresources "github.com/dalemusser/stratacast/internal/app/resources"
	"github.com/dalemusser/stratacast/internal/app/system/network"
	"github.com/dalemusser/stratacast/internal/app/system/querystats"
	"github.com/dalemusser/stratacast/internal/app/system/visitor"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for stratacast.
//
// WAFFLE calls this after Startup, so the board registry, the action service
// and the query stats recorder already exist. This function boots the
// template engine, installs the global middleware and mounts one router per
// dashboard page plus the operational endpoints.
//
//   - Pages: /overview, /explorer, /forecast, /models, /retrain, /rawdata
//   - Operations: /querystats, /health (+ /ready, /readyz, /livez), /metrics
//   - Static: /assets/*
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if svc == nil {
		return nil, errors.New("bootstrap: Startup has not run")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	visitors, err := visitor.NewManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("visitor manager init failed", zap.Error(err))
		return nil, err
	}

	// Dev mode enables template reloading for faster iteration.
	eng := templates.New(coreCfg.Env == "dev")
	if err := eng.Boot(logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return nil, err
	}
	templates.UseEngine(eng, logger)

	errLog := errorsfeature.NewErrorLogger(logger)
	errorsHandler := errorsfeature.NewHandler()

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	// Request timeout middleware: page handlers wait at most board_wait, so
	// this only catches stuck downloads and stats queries.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Every request carries a visitor id; boards are keyed by it.
	r.Use(visitors.Identify)

	// CSRF protection for every form post (selection changes, locks, actions).
	// The default field name matches the hidden input in the shared templates.
	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("stratacast_csrf"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("client_ip", network.ClientIP(req)),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			if req.Header.Get("HX-Request") == "true" {
				w.Header().Set("HX-Refresh", "true")
				w.WriteHeader(http.StatusForbidden)
				return
			}
			http.Error(w, "CSRF token invalid or missing", http.StatusForbidden)
		})),
	}
	// In dev mode, trust localhost origins for CSRF validation.
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins([]string{
			"localhost:8080",
			"localhost:3000",
			"127.0.0.1:8080",
			"127.0.0.1:3000",
		}))
	}
	csrfProtect := csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...)
	r.Use(func(next http.Handler) http.Handler {
		protected := csrfProtect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Outside production the server is reached over plain HTTP.
			if !secure {
				req = csrf.PlaintextHTTPRequest(req)
			}
			protected.ServeHTTP(w, req)
		})
	})

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes
	// ─────────────────────────────────────────────────────────────────────────────

	// Static assets
	r.Handle("/assets/*", appresources.AssetsHandler("/assets"))

	// Health: dependency report plus probe aliases.
	healthHandler := healthfeature.NewHandler(logger, svc.taskRunner.Status,
		healthfeature.MongoCheck(deps.MongoClient),
		healthfeature.BackendCheck(deps.Backend.Ping),
	)
	healthfeature.MountRootEndpoints(r, healthHandler)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Prometheus scrape endpoint
	r.Handle("/metrics", svc.metrics.Handler())

	// Dashboard pages. Each page router is timed into the query stats under
	// its own page name.
	page := func(name string, h http.Handler) {
		r.With(querystats.Middleware(svc.recorder, name)).Mount("/"+name, h)
	}

	page(overviewfeature.Page, overviewfeature.Routes(overviewfeature.NewHandler(svc.boards, logger)))
	page(explorerfeature.Page, explorerfeature.Routes(explorerfeature.NewHandler(svc.boards, logger)))
	page(forecastfeature.Page, forecastfeature.Routes(forecastfeature.NewHandler(svc.boards, deps.Backend, logger)))
	page(modelsfeature.Page, modelsfeature.Routes(modelsfeature.NewHandler(svc.boards, logger)))
	page(retrainfeature.Page, retrainfeature.Routes(retrainfeature.NewHandler(svc.boards, svc.actions, logger)))
	page(rawdatafeature.Page, rawdatafeature.Routes(rawdatafeature.NewHandler(svc.boards, logger)))

	// Query statistics
	statsHandler := querystatsfeature.NewHandler(svc.stats, svc.recorder, errLog, logger)
	r.Mount("/querystats", querystatsfeature.Routes(statsHandler))

	// Root redirects to the landing dashboard.
	homefeature.MountRoot(r, homefeature.NewHandler(""))

	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	return r, nil
}

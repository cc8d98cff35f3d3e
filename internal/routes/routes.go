package routes

import (
	"net/http"

	csrf "filippo.io/csrf/gorilla"
	"github.com/agjmills/drive/internal/account"
	"github.com/agjmills/drive/internal/auth"
	"github.com/agjmills/drive/internal/config"
	"github.com/agjmills/drive/internal/files"
	"github.com/agjmills/drive/internal/handlers"
	"github.com/agjmills/drive/internal/logger"
	"github.com/agjmills/drive/internal/middleware"
	"github.com/agjmills/drive/internal/storage"
	"github.com/agjmills/drive/internal/store"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the services the HTTP layer is wired onto.
type Dependencies struct {
	Config   *config.Config
	Users    *store.GormStore
	Accounts *account.Service
	Files    *files.Service
	Storage  storage.Provider
	Sessions *scs.SessionManager
	Issuer   *auth.Issuer
	Version  string
}

// csrfProtection returns the Fetch Metadata based CSRF middleware, or a
// no-op when disabled.
//
// filippo.io/csrf inspects Sec-Fetch-Site and Origin rather than a
// double-submit token:
//   - cross-site and same-site browser requests are rejected
//   - same-origin browser requests pass
//   - requests carrying neither header (curl, mobile apps, API clients) pass,
//     since such clients never attach cookies on a user's behalf
//
// Safe methods are never checked.
func csrfProtection(cfg *config.Config) func(http.Handler) http.Handler {
	if !cfg.CSRFEnabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	// The gorilla-compatible API still takes an auth key; it must be 32 bytes
	// and stable across restarts.
	return csrf.Protect(
		[]byte(cfg.SessionSecret),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("csrf validation failed",
				"reason", csrf.FailureReason(r),
				"method", r.Method,
				"path", r.URL.Path,
			)
			middleware.Forbidden(w, r)
		})),
	)
}

// Setup registers every route on r.
//
// Auth endpoints run inside the session manager so registration codes can be
// bound to the browser that requested them, and are throttled per client IP.
// File and admin endpoints authenticate with the signed token (cookie or
// bearer header) and never touch the session store.
func Setup(r chi.Router, deps Dependencies) {
	cfg := deps.Config

	authHandler := handlers.NewAuthHandler(deps.Accounts, cfg, deps.Sessions)
	fileHandler := handlers.NewFileHandler(deps.Files, cfg)
	adminHandler := handlers.NewAdminHandler(deps.Users, deps.Files)
	healthHandler := handlers.NewHealthHandler(deps.Users, deps.Storage, deps.Version)

	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, cfg.TrustedProxyCIDRs)
	csrfMiddleware := csrfProtection(cfg)
	requireAuth := auth.RequireAuth(deps.Issuer)

	r.NotFound(middleware.NotFoundHandler)
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler)

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Rate-limited auth endpoints
	r.Group(func(r chi.Router) {
		r.Use(deps.Sessions.LoadAndSave)
		r.Use(authLimiter.Middleware)
		r.Use(csrfMiddleware)
		r.Post("/user/register/send-otp", authHandler.SendRegistrationOTP)
		r.Post("/user/register", authHandler.Register)
		r.Post("/user/login", authHandler.Login)
		r.Post("/user/forgot-password", authHandler.ForgotPassword)
		r.Post("/user/verify-otp", authHandler.VerifyOTP)
		r.Post("/user/forgot-password/link", authHandler.ForgotPasswordLink)
		r.Get("/user/reset-password/{token}", authHandler.ShowResetPassword)
		r.Post("/user/reset-password/{token}", authHandler.ResetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(deps.Sessions.LoadAndSave)
		r.Use(csrfMiddleware)
		r.Get("/user/logout", authHandler.Logout)
		r.Post("/user/logout", authHandler.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(csrfMiddleware)
		r.Get("/home", fileHandler.Home)
		r.Post("/user/upload", fileHandler.Upload)
		r.Post("/user/delete-file", fileHandler.Delete)
		r.Get("/user/file/{fileId}", fileHandler.Serve)
		r.Get("/user/file/{folder}/{filename}", fileHandler.ServeInFolder)
	})

	// Admin routes - require admin privileges
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(auth.RequireAdmin())
		r.Use(csrfMiddleware)
		r.Get("/admin/dashboard", adminHandler.ShowDashboard)
		r.Post("/admin/users/{id}/delete", adminHandler.DeleteUser)
		r.Post("/admin/users/{id}/files/delete", adminHandler.DeleteUserFile)
	})
}

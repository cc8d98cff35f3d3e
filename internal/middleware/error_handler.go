package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/agjmills/drive/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
)

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// NotFoundHandler answers unknown routes with a JSON 404
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

// MethodNotAllowedHandler answers known routes hit with the wrong method
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// InternalErrorHandler writes a generic 500. Details never reach the client.
func InternalErrorHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// RecoverMiddleware catches panics, logs them with a stack trace and
// answers 500. http.ErrAbortHandler is re-raised so the server can abort
// the connection as intended.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("panic recovered",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"stack", string(debug.Stack()),
			)
			InternalErrorHandler(w, r)
		}()
		next.ServeHTTP(w, r)
	})
}

// Forbidden answers a request rejected before reaching its handler
func Forbidden(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusForbidden, "Forbidden")
}

package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agjmills/drive/internal/logger"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func TestLoggingMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger.InitWithWriter("production", &logs)
	t.Cleanup(func() { logger.InitWithWriter("test", &bytes.Buffer{}) })

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(LoggingMiddleware)
	r.Get("/user/file/{fileId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("hello"))
	})

	req := httptest.NewRequest(http.MethodGet, "/user/file/abc.png", nil)
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rec.Code)
	}
	out := logs.String()
	for _, want := range []string{`"msg":"http request"`, `"status":201`, `"bytes":5`, `"user_agent":"test-agent"`, `"request_id":"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Log output missing %s: %s", want, out)
		}
	}
}

func TestRouteLabel(t *testing.T) {
	var label string
	r := chi.NewRouter()
	r.Get("/user/file/{folder}/{filename}", func(w http.ResponseWriter, r *http.Request) {
		label = routeLabel(r)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/user/file/drive-uploads/a.txt", nil))

	if label != "/user/file/{folder}/{filename}" {
		t.Errorf("routeLabel() = %q", label)
	}
	if got := routeLabel(httptest.NewRequest(http.MethodGet, "/scan/wp-admin", nil)); got != "unmatched" {
		t.Errorf("routeLabel() without a router = %q, want unmatched", got)
	}
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.Write([]byte("abc"))
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected implicit 200 to stick, got %d", rw.statusCode)
	}
	if rw.written != 3 {
		t.Errorf("Expected 3 bytes written, got %d", rw.written)
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.Flush()

	if !rec.Flushed {
		t.Error("Expected Flush to reach the underlying writer")
	}
}

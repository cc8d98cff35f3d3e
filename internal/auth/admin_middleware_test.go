package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agjmills/drive/internal/database/models"
)

func TestRequireAdmin_WithAdminUser(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Admin access granted"))
	})

	adminHandler := RequireAdmin()(handler)

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req = req.WithContext(WithClaims(req.Context(), &Claims{UserID: 1, Username: "admin", Role: models.RoleAdmin}))

	rec := httptest.NewRecorder()
	adminHandler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	if body := rec.Body.String(); body != "Admin access granted" {
		t.Errorf("Expected 'Admin access granted', got %q", body)
	}
}

func TestRequireAdmin_WithNonAdminUser(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called for non-admin user")
	})

	adminHandler := RequireAdmin()(handler)

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req = req.WithContext(WithClaims(req.Context(), &Claims{UserID: 2, Username: "user", Role: models.RoleUser}))

	rec := httptest.NewRecorder()
	adminHandler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rec.Code)
	}
}

func TestRequireAdmin_WithoutClaims(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called without authentication")
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	rec := httptest.NewRecorder()
	RequireAdmin()(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/agjmills/drive/internal/account"
	"github.com/agjmills/drive/internal/auth"
	"github.com/agjmills/drive/internal/config"
	"github.com/agjmills/drive/internal/database/models"
	"github.com/agjmills/drive/internal/files"
	"github.com/agjmills/drive/internal/storage"
	"github.com/agjmills/drive/internal/store"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type captureSender struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (c *captureSender) Send(_ context.Context, _, _, html string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.bodies = append(c.bodies, html)
	return nil
}

func (c *captureSender) lastMatch(t *testing.T, pattern *regexp.Regexp) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.bodies, "no mail sent")
	m := pattern.FindStringSubmatch(c.bodies[len(c.bodies)-1])
	require.Len(t, m, 2)
	return m[1]
}

var (
	codePattern  = regexp.MustCompile(`>(\d{6})</div>`)
	tokenPattern = regexp.MustCompile(`/user/reset-password/([0-9a-f]{64})`)
)

// testApp encapsulates all dependencies for handler tests
type testApp struct {
	db       *gorm.DB
	cfg      *config.Config
	users    *store.GormStore
	sessions *scs.SessionManager
	issuer   *auth.Issuer
	provider *storage.MemoryBackend
	files    *files.Service
	sender   *captureSender
	router   *chi.Mux
}

type appOption func(*config.Config)

func newTestApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	cfg := &config.Config{
		Env:                     "test",
		BaseURL:                 "http://drive.test",
		JWTSecret:               "test-secret",
		JWTIssuer:               "drive",
		TokenDuration:           time.Hour,
		BcryptCost:              4, // Low cost for faster tests
		EnableRegistration:      true,
		RegistrationOTP:         true,
		RegistrationOTPTTL:      15 * time.Minute,
		RegistrationOTPAttempts: 3,
		ResetOTPTTL:             10 * time.Minute,
		ResetOTPAttempts:        5,
		ResetTokenTTL:           time.Hour,
		EmailTimeout:            time.Second,
		StorageFolder:           "drive-uploads",
		MaxUploadSize:           1 << 20,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	users := store.NewGormStore(db)
	sessions := scs.New()
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer)
	sender := &captureSender{}
	provider := storage.NewMemoryBackend(cfg.StoragePublicURL)
	fileService := files.NewService(users, provider, cfg.StorageFolder)
	accounts := account.NewService(cfg, users, sessions, issuer, sender)

	authHandler := NewAuthHandler(accounts, cfg, sessions)
	fileHandler := NewFileHandler(fileService, cfg)
	adminHandler := NewAdminHandler(users, fileService)
	healthHandler := NewHealthHandler(users, provider, "test")

	// Setup minimal router for handler tests
	router := chi.NewRouter()
	router.Get("/health", healthHandler.Health)
	router.Group(func(r chi.Router) {
		r.Use(sessions.LoadAndSave)
		r.Post("/user/register/send-otp", authHandler.SendRegistrationOTP)
		r.Post("/user/register", authHandler.Register)
		r.Post("/user/login", authHandler.Login)
		r.Post("/user/logout", authHandler.Logout)
		r.Post("/user/forgot-password", authHandler.ForgotPassword)
		r.Post("/user/verify-otp", authHandler.VerifyOTP)
		r.Post("/user/forgot-password/link", authHandler.ForgotPasswordLink)
		r.Get("/user/reset-password/{token}", authHandler.ShowResetPassword)
		r.Post("/user/reset-password/{token}", authHandler.ResetPassword)
	})
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(issuer))
		r.Get("/home", fileHandler.Home)
		r.Post("/user/upload", fileHandler.Upload)
		r.Post("/user/delete-file", fileHandler.Delete)
		r.Get("/user/file/{fileId}", fileHandler.Serve)
		r.Get("/user/file/{folder}/{filename}", fileHandler.ServeInFolder)
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin())
			r.Get("/dashboard", adminHandler.ShowDashboard)
			r.Post("/users/{id}/delete", adminHandler.DeleteUser)
			r.Post("/users/{id}/files/delete", adminHandler.DeleteUserFile)
		})
	})

	return &testApp{
		db:       db,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		issuer:   issuer,
		provider: provider,
		files:    fileService,
		sender:   sender,
		router:   router,
	}
}

// createUser creates a user directly in the database
func (app *testApp) createUser(t *testing.T, username, email, password, role string) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(password, app.cfg.BcryptCost)
	require.NoError(t, err)
	user := &models.User{Username: username, Email: email, PasswordHash: hash, Role: role}
	require.NoError(t, app.users.Create(context.Background(), user))
	return user
}

func (app *testApp) setFiles(t *testing.T, user *models.User, raw string) {
	t.Helper()
	require.NoError(t, app.users.UpdateFields(context.Background(), user.ID, map[string]any{"files": datatypes.JSON(raw)}))
}

func (app *testApp) tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := app.issuer.Issue(user.ID, user.Username, user.Email, user.Role, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request through the router. body is JSON-encoded unless it is
// already an io.Reader.
func (app *testApp) do(t *testing.T, method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.TokenCookie, Value: token})
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), rec.Body.String())
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (app *testApp) doForm(t *testing.T, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

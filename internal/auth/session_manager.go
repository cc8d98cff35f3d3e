package auth

import (
	"net/http"
	"time"

	"github.com/agjmills/drive/internal/config"
	"github.com/alexedwards/scs/postgresstore"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"gorm.io/gorm"
)

// SessionCookie names the cookie holding the pre-registration session.
const SessionCookie = "drive_session"

const defaultSessionLifetime = 15 * time.Minute

// NewSessionManager creates the scs session manager that holds registration
// challenges between the send-otp and register requests.
func NewSessionManager(db *gorm.DB, cfg *config.Config) (*scs.SessionManager, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	lifetime, err := time.ParseDuration(cfg.SessionDuration)
	if err != nil || lifetime <= 0 {
		lifetime = defaultSessionLifetime
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = lifetime
	sessionManager.Cookie.Name = SessionCookie
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Secure = cfg.IsProduction()

	switch cfg.DBType {
	case "postgres":
		sessionManager.Store = postgresstore.New(sqlDB)
	case "sqlite":
		sessionManager.Store = sqlite3store.New(sqlDB)
	default:
		// scs.New() already installed the in-memory store
	}

	return sessionManager, nil
}

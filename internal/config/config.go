package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	Host    string
	Env     string
	BaseURL string // Public base URL used in emailed links

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBPath     string

	// Storage provider configuration
	StorageBackend   string // "disk", "memory", "s3"
	StoragePath      string // For disk backend
	StorageFolder    string // Folder prefix for every uploaded object key
	StoragePublicURL string // Delivery base URL for disk/memory backends (empty = stream through the app)
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3UsePathStyle   bool
	S3URLExpiry      time.Duration // Lifetime of presigned download URLs

	MaxUploadSize int64

	SessionSecret   string
	SessionDuration string
	JWTSecret       string
	JWTIssuer       string
	TokenDuration   time.Duration
	BcryptCost      int
	CSRFEnabled     bool

	EnableRegistration bool
	RegistrationOTP    bool // Require an emailed code before an account is created

	// One-time code and reset token lifetimes. Registration and forgot-password
	// limits intentionally differ.
	RegistrationOTPTTL      time.Duration
	RegistrationOTPAttempts int
	ResetOTPTTL             time.Duration
	ResetOTPAttempts        int
	ResetTokenTTL           time.Duration

	// Outbound mail
	EmailHost    string
	EmailPort    int
	EmailUser    string
	EmailPass    string
	EmailFrom    string
	EmailTimeout time.Duration
	// RevealOTP returns issued codes to the caller when mail dispatch fails.
	// Never enable outside development.
	RevealOTP bool

	// Auth endpoint throttling: AuthRateLimit requests per AuthRateWindow per client IP.
	AuthRateLimit  int
	AuthRateWindow time.Duration

	// TrustedProxyCIDRs is a list of CIDR ranges (e.g., "127.0.0.1/32", "10.0.0.0/8")
	// whose X-Real-IP / X-Forwarded-For headers are trusted for rate limiting.
	TrustedProxyCIDRs []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "3000"),
		Host:                    getEnv("HOST", "0.0.0.0"),
		Env:                     getEnv("ENV", "development"),
		BaseURL:                 strings.TrimRight(getEnv("BASE_URL", "http://localhost:3000"), "/"),
		DBType:                  getEnv("DB_TYPE", "sqlite"),
		DBHost:                  getEnv("DB_HOST", "localhost"),
		DBPort:                  getEnv("DB_PORT", "5432"),
		DBName:                  getEnv("DB_NAME", "drive"),
		DBUser:                  getEnv("DB_USER", "drive"),
		DBPassword:              getEnv("DB_PASSWORD", ""),
		DBPath:                  getEnv("DB_PATH", "./data/drive.db"),
		StorageBackend:          getEnv("STORAGE_BACKEND", "disk"),
		StoragePath:             getEnv("STORAGE_PATH", "./data/files"),
		StorageFolder:           strings.Trim(getEnv("STORAGE_FOLDER", "drive-uploads"), "/"),
		StoragePublicURL:        strings.TrimRight(getEnv("STORAGE_PUBLIC_URL", ""), "/"),
		S3Endpoint:              getEnv("S3_ENDPOINT", ""),
		S3Region:                getEnv("S3_REGION", "us-east-1"),
		S3Bucket:                getEnv("S3_BUCKET", ""),
		S3AccessKey:             getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:             getEnv("S3_SECRET_KEY", ""),
		S3UsePathStyle:          getEnvBool("S3_USE_PATH_STYLE", false),
		S3URLExpiry:             getEnvDuration("S3_URL_EXPIRY", "15m"),
		MaxUploadSize:           getEnvSize("MAX_UPLOAD_SIZE", "50M"),
		SessionSecret:           getEnv("SESSION_SECRET", "change_me_in_production_32_bytes"),
		SessionDuration:         getEnv("SESSION_DURATION", "15m"),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		JWTIssuer:               getEnv("JWT_ISSUER", "drive"),
		TokenDuration:           getEnvDuration("TOKEN_DURATION", "24h"),
		BcryptCost:              getEnvInt("BCRYPT_COST", 10),
		CSRFEnabled:             getEnvBool("CSRF_ENABLED", true),
		EnableRegistration:      getEnvBool("ENABLE_REGISTRATION", true),
		RegistrationOTP:         getEnvBool("REGISTRATION_OTP", true),
		RegistrationOTPTTL:      getEnvDuration("REGISTRATION_OTP_TTL", "15m"),
		RegistrationOTPAttempts: getEnvInt("REGISTRATION_OTP_ATTEMPTS", 3),
		ResetOTPTTL:             getEnvDuration("RESET_OTP_TTL", "10m"),
		ResetOTPAttempts:        getEnvInt("RESET_OTP_ATTEMPTS", 5),
		ResetTokenTTL:           getEnvDuration("RESET_TOKEN_TTL", "1h"),
		EmailHost:               getEnv("EMAIL_HOST", ""),
		EmailPort:               getEnvInt("EMAIL_PORT", 587),
		EmailUser:               getEnv("EMAIL_USER", ""),
		EmailPass:               getEnv("EMAIL_PASS", ""),
		EmailFrom:               getEnv("EMAIL_FROM", ""),
		EmailTimeout:            getEnvDuration("EMAIL_TIMEOUT", "20s"),
		RevealOTP:               getEnvBool("REVEAL_OTP", false),
		AuthRateLimit:           getEnvInt("AUTH_RATE_LIMIT", 5),
		AuthRateWindow:          getEnvDuration("AUTH_RATE_WINDOW", "15m"),
		TrustedProxyCIDRs:       getEnvStringSlice("TRUSTED_PROXY_CIDRS", nil),
	}

	if cfg.RegistrationOTPAttempts < 1 {
		cfg.RegistrationOTPAttempts = 1
	}
	if cfg.ResetOTPAttempts < 1 {
		cfg.ResetOTPAttempts = 1
	}

	if cfg.AuthRateWindow <= 0 {
		cfg.AuthRateWindow = 15 * time.Minute
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("Config loaded: env=%s storage=%s MaxUploadSize=%d bytes (%.2f MB)",
		cfg.Env, cfg.StorageBackend, cfg.MaxUploadSize, float64(cfg.MaxUploadSize)/(1024*1024))

	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations the server cannot safely start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageBackend {
	case "disk", "memory", "":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q (supported: disk, memory, s3)", c.StorageBackend))
	}

	switch c.DBType {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_TYPE %q", c.DBType))
	}

	if c.JWTSecret == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		} else {
			c.JWTSecret = "development-only-jwt-secret"
		}
	}

	if c.IsProduction() && c.RevealOTP {
		errs = append(errs, errors.New("REVEAL_OTP cannot be enabled in production"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvStringSlice parses a comma-separated env var into a string slice.
// Empty entries are filtered out. Returns defaultValue if env var is empty.
func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// parseSize converts human-readable sizes (e.g., "10G", "500M", "1K") to bytes
// Supports: B, K/KB, M/MB, G/GB, T/TB (case-insensitive)
func parseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))

	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return val, nil
	}

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(sizeStr, "TB") || strings.HasSuffix(sizeStr, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "TB"), "T")
	case strings.HasSuffix(sizeStr, "GB") || strings.HasSuffix(sizeStr, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "GB"), "G")
	case strings.HasSuffix(sizeStr, "MB") || strings.HasSuffix(sizeStr, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "MB"), "M")
	case strings.HasSuffix(sizeStr, "KB") || strings.HasSuffix(sizeStr, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "KB"), "K")
	case strings.HasSuffix(sizeStr, "B"):
		numStr = strings.TrimSuffix(sizeStr, "B")
	default:
		return 0, fmt.Errorf("invalid size format: %s (use B, K/KB, M/MB, G/GB, T/TB)", sizeStr)
	}

	val, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %s", sizeStr)
	}

	return int64(val * float64(multiplier)), nil
}

// getEnvSize parses size strings like "10G", "500M" or raw bytes
func getEnvSize(key string, defaultValue string) int64 {
	value := getEnv(key, defaultValue)
	size, err := parseSize(value)
	if err != nil {
		log.Printf("getEnvSize: parseSize failed for %s: %v, using default", value, err)
		if defaultSize, defaultErr := parseSize(defaultValue); defaultErr == nil {
			return defaultSize
		}
		return 0
	}
	return size
}

// getEnvDuration parses duration strings like "24h", "30m"
func getEnvDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("getEnvDuration: parse failed for %s: %v, using default", value, err)
		if defaultDuration, defaultErr := time.ParseDuration(defaultValue); defaultErr == nil {
			return defaultDuration
		}
		return 0
	}
	return duration
}

package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"commission-conciliation-backend/internal/models"
)

// Config is everything read from the environment. The stale and settle
// durations are deliberately configurable: their exact values are observed
// operational behavior, not derived constants.
type Config struct {
	ListenAddr     string
	DatabaseDSN    string
	DownloadsDir   string
	AllowedOrigins []string
	Environment    string

	MaxConcurrent    map[models.Provider]int
	StaleAfter       time.Duration
	SettleWindow     time.Duration
	ExpiryNoticeDays int
}

func Load() Config {
	return Config{
		ListenAddr:     envOr("LISTEN_ADDR", ":8080"),
		DatabaseDSN:    envOr("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=conciliation port=5432 sslmode=disable"),
		DownloadsDir:   envOr("DOWNLOADS_DIR", "./downloads"),
		AllowedOrigins: []string{envOr("CORS_ORIGIN", "http://localhost:3000")},
		Environment:    envOr("APP_ENV", "development"),
		MaxConcurrent: map[models.Provider]int{
			models.ProviderQualitas: envIntOr("MAX_CONCURRENT_QUALITAS", 1),
			models.ProviderHDI:      envIntOr("MAX_CONCURRENT_HDI", 1),
			models.ProviderChubb:    envIntOr("MAX_CONCURRENT_CHUBB", 1),
		},
		StaleAfter:       time.Duration(envIntOr("QUEUE_STALE_MINUTES", 5)) * time.Minute,
		SettleWindow:     time.Duration(envIntOr("SETTLE_WINDOW_MINUTES", 2)) * time.Minute,
		ExpiryNoticeDays: envIntOr("CREDENTIAL_EXPIRY_NOTICE_DAYS", 5),
	}
}

// InitDB opens the postgres connection; the process cannot run without it.
func InitDB(cfg Config) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

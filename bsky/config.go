package bsky

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds client configuration. The zero value is usable for public
// read endpoints; authenticated calls need Username and Password (or a
// previously persisted session).
type Config struct {
	// Username and Password are the password-grant credentials.
	Username string
	Password string

	// DBPath is the SQLite database path used for sessions, the call log,
	// and the profile cache.
	DBPath string

	// BaseURL, when set, overrides the https://{hostname} base for every
	// call. Used by tests and self-hosted deployments.
	BaseURL string

	// IgnoreCachedSession forces a fresh login instead of reloading the
	// newest persisted session.
	IgnoreCachedSession bool

	// SkipCallLogging suppresses call log persistence (test isolation).
	SkipCallLogging bool

	// RateBudgets overrides the write-op budget per window, keyed by
	// window hours (test isolation).
	RateBudgets map[int]int64

	// Logger receives budget warnings and failed-call diagnostics.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// ConfigFromEnv builds a Config from the environment, loading a .env file
// first if one is present.
//
// Recognized variables: BSKY_AUTH_USERNAME, BSKY_AUTH_PASSWORD,
// BSKY_SQLITE_FILENAME, BSKY_SKIP_CALL_LOGGING, BSKY_RATE_BUDGET_1H,
// BSKY_RATE_BUDGET_24H.
func ConfigFromEnv() Config {
	godotenv.Load()

	cfg := Config{
		Username: os.Getenv("BSKY_AUTH_USERNAME"),
		Password: os.Getenv("BSKY_AUTH_PASSWORD"),
		DBPath:   os.Getenv("BSKY_SQLITE_FILENAME"),
	}
	if cfg.DBPath == "" {
		home, _ := os.UserHomeDir()
		cfg.DBPath = filepath.Join(home, ".gosky", "gosky.db")
	}
	if v := os.Getenv("BSKY_SKIP_CALL_LOGGING"); v == "1" || v == "true" {
		cfg.SkipCallLogging = true
	}
	for hours, name := range map[int]string{1: "BSKY_RATE_BUDGET_1H", 24: "BSKY_RATE_BUDGET_24H"} {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				if cfg.RateBudgets == nil {
					cfg.RateBudgets = map[int]int64{}
				}
				cfg.RateBudgets[hours] = n
			}
		}
	}
	return cfg
}

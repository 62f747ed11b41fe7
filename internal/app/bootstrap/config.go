// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/backend"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATACAST"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: backend_url, mongo_uri, etc.
//   - Environment variables: STRATACAST_BACKEND_URL, STRATACAST_MONGO_URI, etc.
//   - Command-line flags: --backend_url, --mongo_uri, etc.
var appConfigKeys = []config.AppKey{
	{Name: "backend_url", Default: "http://localhost:5000", Desc: "Forecasting backend origin"},
	{Name: "backend_timeout", Default: "10s", Desc: "Timeout for one backend request"},

	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratacast", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "session_key", Default: "", Desc: "Visitor cookie signing key (32+ chars; blank means random per process)"},
	{Name: "session_name", Default: "stratacast-visitor", Desc: "Visitor cookie name"},
	{Name: "session_max_age", Default: "720h", Desc: "Visitor cookie max age (e.g., 24h, 720h)"},

	{Name: "csrf_key", Default: "dev-only-csrf-key-please-change-0123456789", Desc: "CSRF token signing key (32+ chars in production)"},

	// Boards
	{Name: "board_wait", Default: "2s", Desc: "How long a page waits for loading data before rendering the loading state"},
	{Name: "board_idle_ttl", Default: "30m", Desc: "Close boards idle for longer than this"},
	{Name: "board_sweep_interval", Default: "5m", Desc: "How often idle boards are swept"},

	// Actions
	{Name: "action_timeout", Default: "10m", Desc: "Upper bound for a retrain or switch action"},
	{Name: "action_retention", Default: "720h", Desc: "Prune action ledger entries older than this"},

	// Query stats
	{Name: "query_stats_bucket", Default: "1h", Desc: "Query stats bucket duration (e.g., '1m', '15m', '1h', '24h')"},
	{Name: "query_stats_retention", Default: "720h", Desc: "Prune query stats buckets older than this"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, STRATACAST_* for app) and flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		BackendURL:     appValues.String("backend_url"),
		BackendTimeout: appValues.Duration("backend_timeout", 10*time.Second),

		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionMaxAge: appValues.Duration("session_max_age", 720*time.Hour),

		CSRFKey: appValues.String("csrf_key"),

		BoardWait:          appValues.Duration("board_wait", 2*time.Second),
		BoardIdleTTL:       appValues.Duration("board_idle_ttl", 30*time.Minute),
		BoardSweepInterval: appValues.Duration("board_sweep_interval", 5*time.Minute),

		ActionTimeout:   appValues.Duration("action_timeout", 10*time.Minute),
		ActionRetention: appValues.Duration("action_retention", 720*time.Hour),

		QueryStatsBucket:    appValues.Duration("query_stats_bucket", time.Hour),
		QueryStatsRetention: appValues.Duration("query_stats_retention", 720*time.Hour),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	// backend.New performs the same URL checks ConnectDB relies on.
	if _, err := backend.New(backend.Config{BaseURL: appCfg.BackendURL}, logger); err != nil {
		logger.Error("invalid backend URL", zap.Error(err))
		return err
	}

	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"backend_timeout", appCfg.BackendTimeout},
		{"session_max_age", appCfg.SessionMaxAge},
		{"board_wait", appCfg.BoardWait},
		{"board_idle_ttl", appCfg.BoardIdleTTL},
		{"board_sweep_interval", appCfg.BoardSweepInterval},
		{"action_timeout", appCfg.ActionTimeout},
		{"action_retention", appCfg.ActionRetention},
		{"query_stats_bucket", appCfg.QueryStatsBucket},
		{"query_stats_retention", appCfg.QueryStatsRetention},
	} {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.val)
		}
	}

	if coreCfg.Env == "prod" && len(appCfg.CSRFKey) < 32 {
		return fmt.Errorf("csrf_key must be at least 32 characters in production")
	}

	return nil
}

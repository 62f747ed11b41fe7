// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds stratacast's own configuration.
//
// WAFFLE's CoreConfig covers ports, TLS, logging, CORS and request limits.
// AppConfig covers the forecasting backend, the MongoDB ledger, visitor
// cookies and the board lifecycle.
type AppConfig struct {
	// Forecasting backend
	BackendURL     string        // origin of the analytics API (e.g., http://localhost:5000)
	BackendTimeout time.Duration // per backend request (default: 10s)

	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Visitor cookie
	SessionKey    string        // signing key; blank means a random key per process
	SessionName   string        // cookie name (default: stratacast-visitor)
	SessionMaxAge time.Duration // cookie lifetime (default: 720h)

	// CSRF protection configuration
	CSRFKey string // Secret key for CSRF token signing (32 bytes, must be strong in production)

	// Boards
	BoardWait          time.Duration // how long a page waits for a cycle before rendering the loading state
	BoardIdleTTL       time.Duration // boards idle for longer are closed
	BoardSweepInterval time.Duration // how often idle boards are swept

	// Retrain and switch actions
	ActionTimeout   time.Duration // upper bound for one action (default: 10m)
	ActionRetention time.Duration // ledger entries older than this are pruned (default: 720h)

	// Query statistics
	QueryStatsBucket    time.Duration // bucket size for query stats (default: 1h)
	QueryStatsRetention time.Duration // buckets older than this are pruned (default: 720h)
}

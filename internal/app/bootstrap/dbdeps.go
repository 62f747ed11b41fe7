// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/stratacast/internal/app/system/backend"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// It is created in ConnectDB and passed to EnsureSchema, Startup,
// BuildHandler and Shutdown.
type DBDeps struct {
	// MongoDB client and database (action ledger, query stats)
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Backend is the forecasting API client shared by every page.
	Backend *backend.Client
}

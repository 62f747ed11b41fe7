// internal/app/bootstrap/hooks.go
package bootstrap

import (
	"github.com/dalemusser/waffle/app"
)

// Hooks wires stratacast into the WAFFLE lifecycle.
// Each function is called in order by app.Run, from configuration
// loading through DB setup, one-time startup work, HTTP handler
// construction, and finally graceful shutdown.
var Hooks = app.Hooks[AppConfig, DBDeps]{
	Name:           "stratacast",   // used only for logging/diagnostics
	LoadConfig:     LoadConfig,     // load core + app config
	ValidateConfig: ValidateConfig, // validate MongoDB URI, backend URL, durations
	ConnectDB:      ConnectDB,      // connect to MongoDB and build the backend client
	EnsureSchema:   EnsureSchema,   // create indexes
	Startup:        Startup,        // shared templates, timeouts, background tasks
	BuildHandler:   BuildHandler,   // boards, actions, router + middleware stack
	Shutdown:       Shutdown,       // stop tasks, close boards, disconnect MongoDB
}

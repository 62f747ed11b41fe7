// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown runs after the HTTP server has stopped accepting requests and
// in-flight requests have drained (or the shutdown timeout has elapsed).
//
// Order matters: background tasks stop first, then running actions are
// cancelled (their ledger writes still need Mongo), then boards close, then
// pending query stats are flushed, and Mongo disconnects last.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	var firstErr error

	if svc != nil {
		if svc.taskRunner != nil {
			logger.Info("stopping background task runner")
			if err := svc.taskRunner.Stop(ctx); err != nil {
				logger.Warn("background task runner did not stop cleanly", zap.Error(err))
				firstErr = err
			}
		}
		if svc.actions != nil {
			logger.Info("cancelling running actions")
			svc.actions.Close()
		}
		if svc.boards != nil {
			logger.Info("closing boards", zap.Int("open", svc.boards.Len()))
			svc.boards.Close()
		}
		if svc.recorder != nil {
			svc.recorder.Flush()
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

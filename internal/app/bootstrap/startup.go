// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	explorerfeature "github.com/dalemusser/stratacast/internal/app/features/explorer"
	forecastfeature "github.com/dalemusser/stratacast/internal/app/features/forecast"
	modelsfeature "github.com/dalemusser/stratacast/internal/app/features/models"
	overviewfeature "github.com/dalemusser/stratacast/internal/app/features/overview"
	rawdatafeature "github.com/dalemusser/stratacast/internal/app/features/rawdata"
	retrainfeature "github.com/dalemusser/stratacast/internal/app/features/retrain"
	"github.com/dalemusser/stratacast/internal/app/resources"
	actionstore "github.com/dalemusser/stratacast/internal/app/store/actions"
	querystatsstore "github.com/dalemusser/stratacast/internal/app/store/querystats"
	"github.com/dalemusser/stratacast/internal/app/system/actions"
	"github.com/dalemusser/stratacast/internal/app/system/aggregate"
	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/dalemusser/stratacast/internal/app/system/metrics"
	"github.com/dalemusser/stratacast/internal/app/system/querystats"
	"github.com/dalemusser/stratacast/internal/app/system/tasks"
	"github.com/dalemusser/stratacast/internal/app/system/timeouts"
	"github.com/dalemusser/stratacast/internal/app/system/viewquery"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// retentionInterval is how often the ledger and query stats are pruned.
const retentionInterval = time.Hour

// services holds the long-lived services shared by BuildHandler and Shutdown.
type services struct {
	metrics    *metrics.Metrics
	stats      *querystatsstore.Store
	recorder   *querystats.Recorder
	boards     *board.Registry
	actions    *actions.Service
	taskRunner *tasks.Runner
}

// svc is set by Startup.
var svc *services

// pageTables lists the board pages in navigation order.
var pageTables = []func() (*viewquery.Table, error){
	overviewfeature.NewTable,
	explorerfeature.NewTable,
	forecastfeature.NewTable,
	modelsfeature.NewTable,
	retrainfeature.NewTable,
	rawdatafeature.NewTable,
}

// Startup runs once after DB connections and indexes are ready, before the
// HTTP handler is built.
//
// It loads the shared templates, applies the configured timeouts, builds the
// board registry with one aggregator per page, starts the action service and
// starts the background tasks that sweep idle boards and prune old records.
//
// Returning a non-nil error aborts startup.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	resources.LoadSharedTemplates()

	timeouts.Configure(timeouts.Config{
		Request: appCfg.BackendTimeout,
		Wait:    appCfg.BoardWait,
		Action:  appCfg.ActionTimeout,
	})

	m := metrics.New()

	stats := querystatsstore.New(deps.MongoDatabase)
	recorder := querystats.NewRecorder(stats, logger, appCfg.QueryStatsBucket)

	boards := board.NewRegistry(logger,
		board.WithCycleObserver(m.ObserveCycle),
		board.WithSizeObserver(m.SetBoards),
	)
	for _, newTable := range pageTables {
		tbl, err := newTable()
		if err != nil {
			boards.Close()
			return fmt.Errorf("build page table: %w", err)
		}
		page := tbl.Page()
		boards.Register(tbl, aggregate.New(deps.Backend, logger.With(zap.String("page", page)),
			aggregate.WithObserver(m.QueryObserver(page)),
			aggregate.WithObserver(recorder.Observer(page)),
		))
	}
	logger.Info("registered board pages", zap.Strings("pages", boards.Pages()))

	ledger := actionstore.New(deps.MongoDatabase)
	actionSvc := actions.New(deps.Backend, logger,
		actions.WithLedger(ledger),
		actions.WithCompletion(retrainfeature.RefreshOnCompletion(boards, logger)),
		actions.WithOutcomeObserver(m.ObserveAction),
	)

	runner := tasks.New(logger)
	runner.Register(tasks.BoardSweepJob(boards, appCfg.BoardIdleTTL, appCfg.BoardSweepInterval, logger))
	runner.Register(tasks.NotificationPruneJob(actionSvc, appCfg.BoardSweepInterval, logger))
	runner.Register(tasks.RetentionJob("action-retention", ledger, appCfg.ActionRetention, retentionInterval, logger))
	runner.Register(tasks.RetentionJob("query-stats-retention", stats, appCfg.QueryStatsRetention, retentionInterval, logger))
	runner.Start()

	svc = &services{
		metrics:    m,
		stats:      stats,
		recorder:   recorder,
		boards:     boards,
		actions:    actionSvc,
		taskRunner: runner,
	}
	return nil
}

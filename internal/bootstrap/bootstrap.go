package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/codesearch/internal/config"
	"github.com/kirillkom/codesearch/internal/core/ports"
	"github.com/kirillkom/codesearch/internal/core/usecase"
	"github.com/kirillkom/codesearch/internal/infrastructure/queue/nats"
	"github.com/kirillkom/codesearch/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/codesearch/internal/infrastructure/resilience"
	"github.com/kirillkom/codesearch/internal/observability/metrics"
)

// App holds the service graph shared by the api and worker binaries.
type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Jobs      ports.SearchJobRepository
	Resolver  *usecase.RepositoryResolver
	SearchUC  *usecase.SearchUseCase
	SubmitUC  *usecase.SubmitSearchUseCase
	ProcessUC *usecase.ProcessSearchJobUseCase

	closeFn func()
}

// New connects postgres and NATS and wires the use cases. Search metrics register on
// reg, which belongs to whichever binary exposes /metrics.
func New(ctx context.Context, cfg config.Config, service string, reg prometheus.Registerer) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	jobs := postgres.NewSearchJobRepository(db)

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		HandlerTimeout: time.Duration(cfg.SearchJobTimeoutMinute) * time.Minute,
		Executor:       resilience.NewExecutor(resilience.DefaultPolicy()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	app, err := wire(ctx, cfg, db, jobs, queue, service, reg)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}
	flush := app.closeFn
	app.closeFn = func() {
		flush()
		queue.Close()
		_ = db.Close()
	}
	return app, nil
}

func wire(
	ctx context.Context,
	cfg config.Config,
	db *sql.DB,
	jobs ports.SearchJobRepository,
	queue ports.MessageQueue,
	service string,
	reg prometheus.Registerer,
) (*App, error) {
	completers, err := NewCompleters(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init completer: %w", err)
	}
	cache, err := OpenCache(serviceConfig(cfg), db)
	if err != nil {
		return nil, fmt.Errorf("init response cache: %w", err)
	}

	var observer ports.SearchObserver
	if reg != nil {
		observer = metrics.NewSearchMetrics(service, reg)
	}

	resolver := usecase.NewRepositoryResolver(cfg.ReposPath)
	searchUC := NewSearchUseCase(cfg, completers, cache, observer)

	return &App{
		Config:    cfg,
		Queue:     queue,
		Jobs:      jobs,
		Resolver:  resolver,
		SearchUC:  searchUC,
		SubmitUC:  usecase.NewSubmitSearchUseCase(jobs, queue, resolver),
		ProcessUC: usecase.NewProcessSearchJobUseCase(jobs, searchUC, resolver),
		closeFn: func() {
			_ = cache.Flush()
		},
	}, nil
}

// serviceConfig selects the shared postgres cache when no backend was chosen. A
// per-user cache file would be overwritten by every api and worker process.
func serviceConfig(cfg config.Config) config.Config {
	if strings.TrimSpace(cfg.CacheBackend) == "" {
		cfg.CacheBackend = CachePostgres
	}
	return cfg
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

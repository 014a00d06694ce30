package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/matheus3301/chatfetch/internal/api"
	"github.com/matheus3301/chatfetch/internal/bus"
	"github.com/matheus3301/chatfetch/internal/config"
	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/ingest"
	"github.com/matheus3301/chatfetch/internal/lock"
	"github.com/matheus3301/chatfetch/internal/logging"
	"github.com/matheus3301/chatfetch/internal/metrics"
	"github.com/matheus3301/chatfetch/internal/publish"
	"github.com/matheus3301/chatfetch/internal/query"
	"github.com/matheus3301/chatfetch/internal/remote"
	"github.com/matheus3301/chatfetch/internal/remote/gateway"
	"github.com/matheus3301/chatfetch/internal/session"
	"github.com/matheus3301/chatfetch/internal/store"
	"github.com/matheus3301/chatfetch/internal/store/mongostore"
	intsync "github.com/matheus3301/chatfetch/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	// DataDir overrides the session directory holding the lock and cache.
	DataDir string
	Config  *config.Config
}

func (p Params) dir() string {
	if p.DataDir != "" {
		return p.DataDir
	}
	return session.Dir(p.SessionName)
}

func (p Params) logPath() string {
	if p.DataDir != "" {
		return filepath.Join(p.DataDir, "logs", "chatfetchd.log")
	}
	return session.LogPath(p.SessionName)
}

func (p Params) cachePath() string {
	if p.DataDir != "" {
		return filepath.Join(p.DataDir, "cache.db")
	}
	return session.CachePath(p.SessionName)
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRegistry,
			provideMetrics,
			provideRemote,
			provideCaller,
			provideSyncEngine,
			provideOrchestrator,
			provideQuery,
			providePublisher,
			provideIngestService,
			provideQueryService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.logPath(), p.SessionName, p.Config.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if p.DataDir == "" {
		if err := session.EnsureDir(p.SessionName); err != nil {
			return nil, err
		}
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore opens the configured cache. It takes the lock so that no
// store is opened before this process owns the session.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (domain.Store, error) {
	cfg := p.Config.Store
	if cfg.Driver == config.DriverMongo {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		st, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logger.Info("store initialized", zap.String("driver", cfg.Driver), zap.String("database", cfg.MongoDatabase))
		return st, nil
	}

	dbPath := p.cachePath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("driver", cfg.Driver), zap.String("path", dbPath))
	return db, nil
}

func provideRegistry(b *bus.Bus) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.WatchDroppedEvents(reg, b.Dropped)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

func provideRemote(p Params) (remote.Client, error) {
	cfg := p.Config.Remote
	if cfg.BaseURL == "" {
		return nil, errors.New("remote.base_url is not configured")
	}
	return gateway.New(gateway.Config{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout.Duration,
	}), nil
}

func provideCaller(p Params, client remote.Client, m *metrics.Recorder, logger *zap.Logger) *remote.Caller {
	policy := remote.RetryPolicy{
		MaxAttempts:    p.Config.Retry.MaxAttempts,
		InitialBackoff: p.Config.Retry.InitialBackoff.Duration,
		MaxBackoff:     p.Config.Retry.MaxBackoff.Duration,
	}
	return remote.NewCaller(client, remote.NewLimiter(p.Config.Remote.MaxInFlight), policy, m, logger)
}

func provideSyncEngine(p Params, st domain.Store, caller *remote.Caller, b *bus.Bus, m *metrics.Recorder, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(st, caller, b, m, logger, p.Config.Remote.PageSize)
}

func provideOrchestrator(p Params, engine *intsync.Engine, caller *remote.Caller, st domain.Store, logger *zap.Logger) *ingest.Orchestrator {
	return ingest.New(engine, caller, st, ingest.Config{
		Concurrency: p.Config.Sync.Concurrency,
		RunTimeout:  p.Config.Sync.RunTimeout.Duration,
		Defaults: intsync.Options{
			MaxMessages: p.Config.Sync.MaxMessages,
			MaxAgeDays:  p.Config.Sync.MaxAgeDays,
		},
	}, logger)
}

func provideQuery(st domain.Store) *query.Service {
	return query.New(st)
}

// providePublisher connects to RabbitMQ when configured. Both results are nil
// when publishing is disabled.
func providePublisher(p Params, b *bus.Bus, logger *zap.Logger) (*publish.AMQP, *publish.Forwarder, error) {
	a := p.Config.AMQP
	cfg := publish.Config{URL: a.URL, Exchange: a.Exchange, RoutingKey: a.RoutingKey, Queue: a.Queue}
	if !cfg.Enabled() {
		return nil, nil, nil
	}
	pub, err := publish.Dial(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, publish.NewForwarder(b, pub, 5*time.Second, logger), nil
}

func provideIngestService(p Params, orch *ingest.Orchestrator, b *bus.Bus, logger *zap.Logger) *api.IngestService {
	return api.NewIngestService(orch, b, p.SessionName, logger)
}

func provideQueryService(q *query.Service) *api.QueryService {
	return api.NewQueryService(q)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, st domain.Store, pub *publish.AMQP, fwd *publish.Forwarder, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if fwd != nil {
				fwd.Start()
			}

			// Start gRPC and metrics servers in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Closing the bus ends WatchEvents streams so the graceful stop can finish.
			b.Close()
			srv.Stop(ctx)
			if fwd != nil {
				fwd.Stop()
			}
			if pub != nil {
				if err := pub.Close(); err != nil {
					logger.Warn("error closing rabbitmq connection", zap.Error(err))
				}
			}
			if err := st.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

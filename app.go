// Package unitares assembles the governance engine into a runnable
// service: storage, identity resolution, locking, the check-in pipeline,
// the MCP transport, background sweeps, and an HTTP mux for /mcp,
// /healthz, and /metrics.
//
// App mirrors the construct/Run/Shutdown shape the rest of this codebase's
// constructors already use — load config, wire dependencies in dependency
// order, hand the caller a value with exactly two lifecycle methods.
package unitares

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/CIRWEL/unitares-sub004/internal/auth"
	"github.com/CIRWEL/unitares-sub004/internal/config"
	"github.com/CIRWEL/unitares-sub004/internal/dispatch"
	"github.com/CIRWEL/unitares-sub004/internal/governance"
	"github.com/CIRWEL/unitares-sub004/internal/identity"
	"github.com/CIRWEL/unitares-sub004/internal/lock"
	"github.com/CIRWEL/unitares-sub004/internal/mcp"
	"github.com/CIRWEL/unitares-sub004/internal/ratelimit"
	"github.com/CIRWEL/unitares-sub004/internal/scheduler"
	"github.com/CIRWEL/unitares-sub004/internal/service/checkin"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
	"github.com/CIRWEL/unitares-sub004/internal/storage/postgres"
	"github.com/CIRWEL/unitares-sub004/internal/storage/sqlitestore"
	"github.com/CIRWEL/unitares-sub004/internal/telemetry"
	"github.com/CIRWEL/unitares-sub004/migrations"
)

// processRegistryCapacity bounds how many distinct pids the scheduler's
// prune job tracks at once; a single governance process rarely runs more
// than a handful of worker pids, so this is generous headroom rather than
// a tuned limit.
const processRegistryCapacity = 1024

// closer is the subset of storage.Store's lifecycle every backend
// implements, so App.Shutdown can close whichever one New picked without
// a type switch.
type closer interface {
	Close(ctx context.Context)
}

// App holds every long-lived dependency the governance service needs.
// Its fields are unexported: callers interact with it only through Run
// and Shutdown.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store       storage.Store
	storeCloser closer
	redisClient *redis.Client
	limiter     ratelimit.Limiter

	registry  *dispatch.Registry
	pipeline  *dispatch.Pipeline
	mcpSrv    *mcp.Server
	scheduler *scheduler.Scheduler

	httpSrv *http.Server

	otelShutdown telemetry.Shutdown
}

// New loads configuration, wires every dependency, and returns a ready-to-
// Run App. It binds no socket and starts no server or scheduler — that's
// Run's job. Some components it builds start their own background
// goroutines (the local identity cache's eviction loop, for one); beyond
// those and the storage connection, constructing an App has no side effects.
func New(ctx context.Context, opts ...Option) (*App, error) {
	resolved := &resolvedOptions{version: "dev"}
	for _, opt := range opts {
		opt(resolved)
	}

	logger := resolved.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	var cfg config.Config
	if resolved.configOverride != nil {
		cfg = *resolved.configOverride
	} else {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("unitares: load config: %w", err)
		}
		cfg = loaded
	}

	logger.Info("unitares starting", "version", resolved.version, "port", cfg.Port, "db_backend", cfg.DBBackend)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, resolved.version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("unitares: telemetry: %w", err)
	}

	store, storeCloser, err := newStore(ctx, cfg, logger)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("unitares: storage: %w", err)
	}

	metrics := telemetry.NewMetrics(cfg.ServiceName)

	var redisClient *redis.Client
	var cache identity.Cache = identity.NewLocalCache()
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			storeCloser.Close(ctx)
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("unitares: parse redis url: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		cache = identity.NewRedisCache(redisClient)
	}

	resolver := identity.New(store, cache, logger, cfg.SessionTTL, cfg.OnboardPinTTL)
	locks := lock.New(store, logger, cfg.LockMaxAge, cfg.LockMaxRetries)
	processRegistry := lock.NewProcessRegistry(processRegistryCapacity)

	thresholds := governance.Thresholds{
		RiskApprove:       cfg.RiskApproveThreshold,
		RiskRevise:        cfg.RiskReviseThreshold,
		RiskReject:        cfg.RiskRejectThreshold,
		CoherenceWarning:  cfg.CoherenceWarningThreshold,
		CoherenceCritical: cfg.CoherenceCriticalThreshold,
		VoidActive:        cfg.VoidActiveThreshold,
		LoopThreshold:     cfg.LoopThreshold,
		LoopCooldown:      cfg.LoopCooldown,
	}
	checkinSvc := checkin.New(store, locks, logger, thresholds, metrics)

	registry := dispatch.NewRegistry()
	for _, tool := range []dispatch.ToolSpec{
		dispatch.SimulateUpdateTool(),
		dispatch.QuickResumeTool(),
		dispatch.HealthCheckTool(),
		dispatch.ProcessAgentUpdateTool(checkinSvc),
	} {
		if err := registry.Register(tool); err != nil {
			storeCloser.Close(ctx)
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("unitares: register tool: %w", err)
		}
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		rule := ratelimit.Rule{Prefix: "tool", Limit: int(cfg.RateLimitRPS * 60), Window: time.Minute}
		limiter = ratelimit.New(redisClient, rule, logger, false)
	}

	pipeline := dispatch.NewPipeline(registry, resolver, limiter, dispatch.WithToolMode(cfg.ToolMode))

	mcpSrv := mcp.New(registry, pipeline, logger, resolved.version)

	sched, err := scheduler.New(store, processRegistry, logger, cfg.DialecticStuckThreshold)
	if err != nil {
		storeCloser.Close(ctx)
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("unitares: scheduler: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		storeCloser.Close(ctx)
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("unitares: jwt manager: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv.MCPServer(),
		mcpserver.WithHTTPContextFunc(mcp.ContextFunc(jwtMgr, logger)),
	))

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &App{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		storeCloser:  storeCloser,
		redisClient:  redisClient,
		limiter:      limiter,
		registry:     registry,
		pipeline:     pipeline,
		mcpSrv:       mcpSrv,
		scheduler:    sched,
		httpSrv:      httpSrv,
		otelShutdown: otelShutdown,
	}, nil
}

// newStore connects to whichever backend cfg.DBBackend names and runs its
// embedded migrations.
func newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, closer, error) {
	switch cfg.DBBackend {
	case "postgres":
		db, err := postgres.New(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx, migrations.Postgres, "postgres"); err != nil {
			db.Close(ctx)
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return db, db, nil
	case "sqlite":
		db, err := sqlitestore.New(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx, migrations.SQLite, "sqlite"); err != nil {
			db.Close(ctx)
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return db, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_BACKEND %q", cfg.DBBackend)
	}
}

// Run starts every background loop and the HTTP server, blocking until ctx
// is cancelled or the server fails, then runs Shutdown automatically.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops the HTTP server and background scheduler, then closes
// storage, the redis client (if any), and the OTEL exporter.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("unitares shutting down")

	var errs []error
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.scheduler.Stop()
	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("limiter close: %w", err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	a.storeCloser.Close(ctx)
	if err := a.otelShutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
	}

	a.logger.Info("unitares stopped")
	return errors.Join(errs...)
}

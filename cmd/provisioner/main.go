package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/arl/statsviz"
	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	breakerApp "github.com/ahrav/provisioner/internal/application/breaker"
	provisioningApp "github.com/ahrav/provisioner/internal/application/provisioning"
	"github.com/ahrav/provisioner/internal/config"
	"github.com/ahrav/provisioner/internal/domain/breaker"
	"github.com/ahrav/provisioner/internal/domain/mapping"
	"github.com/ahrav/provisioner/internal/domain/notification"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/domain/system"
	"github.com/ahrav/provisioner/internal/infra/approval"
	"github.com/ahrav/provisioner/internal/infra/connector"
	connectorMemory "github.com/ahrav/provisioner/internal/infra/connector/memory"
	"github.com/ahrav/provisioner/internal/infra/metrics"
	"github.com/ahrav/provisioner/internal/infra/notify"
	"github.com/ahrav/provisioner/internal/infra/storage/memory"
	"github.com/ahrav/provisioner/internal/infra/storage/postgres"
	"github.com/ahrav/provisioner/internal/infra/transform"
	"github.com/ahrav/provisioner/pkg/common/health"
	"github.com/ahrav/provisioner/pkg/common/logger"
	"github.com/ahrav/provisioner/pkg/common/otel"
	"github.com/ahrav/provisioner/pkg/common/timeutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse log level: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, level, cfg.ServiceName, otel.GetTraceID)

	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "provisioner stopped", "error", err)
		os.Exit(1)
	}
}

// stores are the repositories of the selected storage backend.
type stores struct {
	operations provisioning.Repository
	systems    system.Repository
	mappings   mapping.Resolver
	configs    breaker.ConfigRepository
	windows    breaker.WindowStore
	recipients breaker.RecipientResolver
	pool       *pgxpool.Pool
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Info(ctx, fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn(ctx, "failed to set GOMAXPROCS", "error", err)
	}

	tp, mp, shutdownTelemetry, err := initTelemetry(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTelemetry(shutdownCtx)
	}()
	tracer := tp.Tracer(cfg.ServiceName)

	reg, err := metrics.NewRegistry(mp)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	st, err := openStores(ctx, cfg, tracer, log)
	if err != nil {
		return err
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	notifier := notification.Notifier(notify.NewLog(log))
	if cfg.Notifier == config.NotifierOutbox {
		if st.pool == nil {
			log.Warn(ctx, "outbox notifier needs postgres storage, using the log notifier")
		} else {
			outbox := notify.NewOutbox(st.pool, tracer)
			relay := notify.NewRelay(outbox, notifier, cfg.RetryBatchSize, log)
			notifier = outbox
			g.Go(func() error {
				every(ctx, cfg.OutboxRelayInterval, func(ctx context.Context) {
					if n, err := relay.Drain(ctx); err != nil {
						log.Error(ctx, "outbox relay failed", "error", err)
					} else if n > 0 {
						log.Info(ctx, "outbox relayed", "count", n)
					}
				})
				return nil
			})
		}
	}

	gateways := connector.NewRegistry()
	gateways.Register(connectorMemory.Key, connectorMemory.New())
	gateway := connector.NewGuarded(gateways, connector.GuardConfig{
		Timeout: cfg.ConnectorTimeout,
		Rate:    cfg.ConnectorRate,
		Burst:   cfg.ConnectorBurst,
	}, tracer, reg.Connector)

	breakerSvc := breakerApp.NewService(
		st.configs, st.windows, st.recipients, st.systems, notifier,
		timeutil.Default(), log, tracer, reg.Breaker,
	)

	svc, err := provisioningApp.NewService(provisioningApp.Config{
		Enabled:            cfg.ProvisioningEnabled,
		MaxInFlight:        cfg.MaxInFlight,
		DisabledProcessors: cfg.DisabledProcessors,
	}, provisioningApp.Dependencies{
		Operations: st.operations,
		Systems:    st.systems,
		Mappings:   st.mappings,
		Gateway:    gateway,
		Breaker:    breakerSvc,
		Approver:   approval.NewRules(approvalRules(cfg.ApprovalRules), log),
		Notifier:   notifier,
	}, log, tracer, reg.Provisioning)
	if err != nil {
		return err
	}

	g.Go(func() error {
		every(ctx, cfg.RetryInterval, func(ctx context.Context) {
			n, err := svc.RetryFailed(ctx, cfg.RetryBatchSize)
			if err != nil {
				log.Error(ctx, "retry of failed operations failed", "error", err)
				return
			}
			if n > 0 {
				log.Info(ctx, "retried failed operations", "count", n)
			}
		})
		return nil
	})

	var ready atomic.Bool
	checks := map[string]health.Check{}
	if st.pool != nil {
		checks["database"] = st.pool.Ping
	}
	healthSrv := health.NewServer(cfg.HealthAddr, &ready, checks)
	g.Go(func() error {
		log.Info(ctx, "health server listening", "addr", cfg.HealthAddr)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	var debugSrv *http.Server
	if cfg.DebugAddr != "" {
		mux := http.NewServeMux()
		if err := statsviz.Register(mux); err != nil {
			return fmt.Errorf("failed to register statsviz: %w", err)
		}
		debugSrv = &http.Server{Addr: cfg.DebugAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info(ctx, "debug server listening", "addr", cfg.DebugAddr)
			if err := debugSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		})
	}

	ready.Store(true)
	log.Info(ctx, "provisioner started",
		"storage", cfg.Storage,
		"notifier", cfg.Notifier,
		"provisioning_enabled", cfg.ProvisioningEnabled,
	)

	g.Go(func() error {
		<-ctx.Done()
		ready.Store(false)
		log.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs []error
		if err := svc.Wait(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("waiting for in-flight operations: %w", err))
		}
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("health server shutdown: %w", err))
		}
		if debugSrv != nil {
			if err := debugSrv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("debug server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info(context.Background(), "provisioner exited gracefully")
	return nil
}

// initTelemetry exports to OTLP when an endpoint is configured and uses
// no-op providers otherwise.
func initTelemetry(cfg config.Config, log *logger.Logger) (trace.TracerProvider, metric.MeterProvider, func(context.Context), error) {
	if cfg.OTLPEndpoint == "" {
		return tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider(), func(context.Context) {}, nil
	}
	tp, mp, cleanup, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.ServiceName,
		ExporterEndpoint: cfg.OTLPEndpoint,
		Probability:      cfg.TraceSampling,
		InsecureExporter: cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to init telemetry: %w", err)
	}
	return tp, mp, cleanup, nil
}

func openStores(ctx context.Context, cfg config.Config, tracer trace.Tracer, log *logger.Logger) (stores, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn(ctx, "using in-memory storage, state is lost on exit")
		breakers := memory.NewBreakerStore()
		return stores{
			operations: memory.NewOperationStore(),
			systems:    memory.NewSystemStore(),
			mappings:   memory.NewMappingStore(),
			configs:    breakers,
			windows:    breakers,
			recipients: breakers,
		}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("failed to parse db config: %w", err)
	}
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return stores{}, fmt.Errorf("failed to open db: %w", err)
	}

	if err := runMigrations(ctx, pool, cfg.MigrationsPath); err != nil {
		pool.Close()
		return stores{}, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info(ctx, "database ready", "min_conns", cfg.DBMinConns, "max_conns", cfg.DBMaxConns)

	breakers := postgres.NewBreakerStore(pool, tracer)
	return stores{
		operations: postgres.NewOperationStore(pool, tracer),
		systems:    postgres.NewSystemStore(pool, tracer),
		mappings:   postgres.NewMappingStore(pool, transform.NewCompiler(transform.DefaultMaxSteps), tracer),
		configs:    breakers,
		windows:    breakers,
		recipients: breakers,
		pool:       pool,
	}, nil
}

// runMigrations applies all up migrations found at path.
func runMigrations(ctx context.Context, pool *pgxpool.Pool, path string) error {
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("could not reach database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := pgx.WithInstance(db, &pgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(path, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

func approvalRules(rules map[string]string) map[string]approval.Decision {
	out := make(map[string]approval.Decision, len(rules))
	for def, rule := range rules {
		switch rule {
		case "approve":
			out[def] = approval.Approve
		case "reject":
			out[def] = approval.Reject
		default:
			out[def] = approval.Pending
		}
	}
	return out
}

// every runs fn each interval until ctx ends. A zero interval disables it.
func every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

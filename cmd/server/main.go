package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"lms/internal/application/store"
	"lms/internal/audit"
	auditkafka "lms/internal/audit/store/kafka"
	auditmemory "lms/internal/audit/store/memory"
	"lms/internal/platform/config"
	"lms/internal/platform/httpserver"
	"lms/internal/platform/kafka"
	"lms/internal/platform/logger"
	"lms/internal/platform/metrics"
	"lms/internal/platform/postgres"
	redisclient "lms/internal/platform/redis"
	"lms/internal/room"
	"lms/internal/session"
	httptransport "lms/internal/transport/http"
	"lms/internal/transport/ws"
	"lms/internal/verification"
	"lms/pkg/platform/circuit"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in internal/verification.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer func() { _ = rc.Close() }()
	}

	applications, storeCheck, closeStore, err := buildStore(ctx, cfg, rc, log)
	if err != nil {
		return err
	}
	defer closeStore()

	auditStore, closeAudit, err := buildAuditStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAudit()
	publisher := audit.NewAsyncPublisher(cfg.Verification.AuditBuffer, log)
	auditWorker := audit.NewWorker(auditStore, publisher.Inbox(), log)

	breaker := circuit.New("account-lookup",
		circuit.WithFailureThreshold(cfg.Verification.AccountFailureThreshold),
		circuit.WithCooldown(cfg.Verification.AccountCooldown),
	)
	var accounts verification.AccountLookup = verification.NewGuardedAccountLookup(
		verification.NewDirectoryLookup(cfg.Verification.AccountDirectory), breaker, log)
	if rc != nil {
		accounts = verification.NewCachedAccountLookup(accounts, rc.Client, cfg.Verification.AccountCacheTTL,
			verification.WithCacheLogger(log))
	}

	rooms := room.NewRegistry(room.WithLogger(log), room.WithMetrics(m))
	svc := verification.New(applications, rooms,
		verification.WithLogger(log),
		verification.WithMetrics(m),
		verification.WithAuditPublisher(publisher),
		verification.WithAccountLookup(accounts),
		verification.WithEventTimeout(cfg.Verification.EventTimeout),
	)

	gate := session.NewGate(cfg.JWTSecret)
	realtime := ws.New(gate, svc, rooms, ws.Config{
		IdleTimeout:        cfg.Realtime.IdleTimeout,
		MaxFramesPerSecond: cfg.Realtime.MaxFramesPerSecond,
		SendBuffer:         cfg.Realtime.SendBuffer,
		MaxFrameBytes:      cfg.Realtime.MaxFrameBytes,
	}, ws.WithLogger(log), ws.WithMetrics(m))

	checks := map[string]httptransport.HealthCheck{}
	if rc != nil {
		checks["redis"] = rc.Health
	}
	if storeCheck != nil {
		checks[cfg.StoreBackend] = storeCheck
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Gate:         gate,
		Applications: httptransport.NewHandler(svc, log),
		Realtime:     realtime,
		Gatherer:     reg,
		Metrics:      m,
		Logger:       log,
		HealthChecks: checks,
	})
	srv := httpserver.New(cfg.Addr, cfg.Server, router)

	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return auditWorker.Run(workerCtx)
	})
	g.Go(func() error {
		log.Info("starting lms", "addr", cfg.Addr, "store", cfg.StoreBackend, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// The worker flushes queued audit events once the server stops producing them.
		stopWorker()
		if err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// buildStore also returns the health check of the store's backing service,
// nil for memory and for redis, which is probed as a shared client.
func buildStore(ctx context.Context, cfg config.Config, rc *redisclient.Client, log *slog.Logger) (verification.Store, httptransport.HealthCheck, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		log.Info("using redis application store")
		return store.NewRedis(rc.Client), nil, func() {}, nil
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("migrate application store: %w", err)
		}
		log.Info("using postgres application store")
		return pg, db.PingContext, func() { _ = db.Close() }, nil
	default:
		log.Info("using in-memory application store")
		return store.NewInMemory(), nil, func() {}, nil
	}
}

func buildAuditStore(ctx context.Context, cfg config.Config, log *slog.Logger) (audit.Store, func(), error) {
	client, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Info("using in-memory audit store")
		return auditmemory.NewInMemoryStore(), func() {}, nil
	}
	s, err := auditkafka.New(client, cfg.Kafka.AuditTopic)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	log.Info("using kafka audit store", "topic", cfg.Kafka.AuditTopic)
	return s, client.Close, nil
}

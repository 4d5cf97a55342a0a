package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentalnexus/internal/config"
	"rentalnexus/internal/platform/httpx"
	"rentalnexus/internal/platform/logging"
	"rentalnexus/internal/platform/telemetry"
	"rentalnexus/internal/rental"
	"rentalnexus/internal/storage/memory"
	"rentalnexus/internal/storage/postgres"
	"rentalnexus/pkg/eventstore"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "rental"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer telemetry.Flush(shutdownTracing, logger, 5*time.Second)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	svc := rental.NewService(repo, rental.NewSystemClock(loc), rental.ULIDGenerator{}, logger)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	rental.NewHandler(svc, logger).Routes(router)

	handler := httpx.Chain(router,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(handler, serviceName),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting rental service", "port", cfg.Port, "store", cfg.Store, "time_zone", loc.String())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down rental service")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rental.Repository, func(), error) {
	if cfg.Store == config.StoreMemory {
		return memory.NewStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	es := eventstore.NewEventStore(db)
	if err := es.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	repo := postgres.New(es,
		postgres.WithMaxAttempts(cfg.MaxAttempts),
		postgres.WithSnapshotEvery(cfg.SnapshotEvery),
		postgres.WithLogger(logger),
	)
	return repo, func() { db.Close() }, nil
}

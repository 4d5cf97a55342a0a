package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentalnexus/internal/config"
	"rentalnexus/internal/platform/httpx"
	"rentalnexus/internal/platform/logging"
	"rentalnexus/internal/platform/telemetry"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "gateway"

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

	handler, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              ":" + cfg.GatewayPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API gateway listening", "port", cfg.GatewayPort, "rental_service", cfg.RentalServiceURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	}
	return nil
}

// newGateway proxies /api/v1/rental/* to the rental service behind a
// per-client rate limit.
func newGateway(cfg *config.Config, logger *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(cfg.RentalServiceURL)
	if err != nil {
		return nil, fmt.Errorf("parse rental service url: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.ErrorContext(r.Context(), "upstream failed", "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"data":null,"message":"Rental service unavailable","code":"UPSTREAM"}`))
	}

	limiter := httpx.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	if err := limiter.TrustProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/rental/", http.StripPrefix("/api/v1/rental", proxy))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return otelhttp.NewHandler(httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		limiter.Middleware(),
	), serviceName), nil
}

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
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/blackrockpay/terminal-gateway/internal/terminal_service/adapters/http"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/adapters/upstream"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/app"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/middleware"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/repository/postgres"

	"github.com/blackrockpay/terminal-gateway/internal/platform/config"
	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
	"github.com/blackrockpay/terminal-gateway/internal/platform/logger"
	"github.com/blackrockpay/terminal-gateway/internal/platform/messagebroker"
)

const (
	serviceName     = "terminal-service"
	shutdownTimeout = 15 * time.Second
)

// httpLogger is a middleware that logs HTTP requests using slog.
func httpLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			requestID := chiMiddleware.GetReqID(r.Context())

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", requestID),
			)
		}
		return http.HandlerFunc(fn)
	}
}

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)

	appLogger.Info("Terminal service starting...",
		"http_port", cfg.TerminalServiceHTTPPort,
		"metrics_port", cfg.TerminalServiceMetricsPort,
		"log_level", cfg.LogLevel,
	)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL")

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS", "url", cfg.NATSUrl)

	txRepo := postgres.NewPgTransactionRepository(appLogger)
	corrRepo := postgres.NewPgCorrelationRepository(appLogger)
	notifRepo := postgres.NewPgNotificationRepository(appLogger)

	// TODO: swap for the TCP processor adapter once the upstream endpoint
	// assignment is finalized; the mock stands in for local runs.
	processor := upstream.NewMockProcessor(appLogger)

	txService := app.NewTransactionService(dbPool, txRepo, corrRepo, notifRepo, processor, natsClient, cfg, appLogger)
	processor.Respond = func(raw []byte) {
		if err := txService.HandleUpstreamMessage(mainCtx, raw); err != nil {
			appLogger.Error("Upstream message handling failed", "error", err)
		}
	}

	if err := txService.RehydrateCorrelations(mainCtx); err != nil {
		appLogger.Error("Failed to rehydrate pending correlations", "error", err)
		os.Exit(1)
	}

	validate := validator.New()
	txHandler := httpadapter.NewTransactionHandler(txService, appLogger, validate)
	notifHandler := httpadapter.NewNotificationHandler(txService, appLogger)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(httpLogger(appLogger))
	router.Group(func(r chi.Router) {
		r.Use(middleware.MerchantAuth(cfg.MerchantJWTSecret, appLogger))
		txHandler.RegisterRoutes(r)
		notifHandler.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.TerminalServiceHTTPPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.TerminalServiceMetricsPort),
		Handler: metricsMux,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics HTTP server ListenAndServe error", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		txService.RunSweeper(groupCtx)
		return nil
	})

	g.Go(func() error {
		txService.RunOfflineWorker(groupCtx)
		return nil
	})

	g.Go(func() error {
		if err := txService.RunPayoutConfirmedConsumer(groupCtx, natsClient); err != nil {
			appLogger.Error("Payout confirmation consumer failed", "error", err)
			return err
		}
		return nil
	})

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown of servers...")

		shutdownCtx, cancelShutdownTimeout := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdownTimeout()

		var shutdownErrors error
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("metrics http shutdown: %w", err))
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("http shutdown: %w", err))
		}
		return shutdownErrors
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Terminal service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Terminal service shut down gracefully.")
}

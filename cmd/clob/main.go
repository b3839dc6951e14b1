package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/efreitasn/clob/internal/auth"
	"github.com/efreitasn/clob/internal/config"
	"github.com/efreitasn/clob/internal/engine"
	"github.com/efreitasn/clob/internal/events"
	"github.com/efreitasn/clob/internal/handler"
	"github.com/efreitasn/clob/internal/ledger"
	"github.com/efreitasn/clob/internal/logging"
	"github.com/efreitasn/clob/internal/service"
	"github.com/efreitasn/clob/internal/settlement"
	"github.com/efreitasn/clob/internal/store"
)

// settlementLedger is what the coordinator and the account service need
// from a ledger backend.
type settlementLedger interface {
	ledger.Ledger
	ledger.Accounts
}

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, syncLogs, err := logging.New(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to build logger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer syncLogs()
	slog.SetDefault(logger)

	// Ledger.
	var l settlementLedger
	switch cfg.LedgerBackend {
	case config.LedgerPebble:
		p, err := ledger.OpenPebble(cfg.LedgerPath, nil)
		if err != nil {
			logger.Error("failed to open ledger", slog.String("path", cfg.LedgerPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer p.Close()
		l = p
	default:
		l = ledger.NewMemory()
	}
	logger.Info("ledger ready", slog.String("backend", cfg.LedgerBackend))

	// Events.
	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		k := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.PublishTimeout, logger)
		defer k.Close()
		publisher = k
		logger.Info("publishing events", slog.String("topic", cfg.KafkaTopic), slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Identity.
	var verifier auth.Verifier = auth.SignatureVerifier{}
	nonces := auth.NewNonceGuard(cfg.NonceWindow)
	if cfg.AuthMode == config.AuthTrusted {
		verifier = auth.TrustedVerifier{}
		nonces = nil
		logger.Warn("trusting the X-Account header without signatures")
	}

	// Instantiate stores.
	marketStore := store.NewMarketStore()
	orderStore := store.NewOrderStore()
	fillStore := store.NewFillStore()

	// Engine.
	books := engine.NewBookManager()
	coordinator := settlement.NewCoordinator(l, marketStore, logger)
	matcher := engine.NewMatcher(coordinator)

	// Services.
	lifecycle := service.NewLifecycleManager(
		marketStore, books, orderStore, fillStore, matcher,
		publisher, nil, cfg.BookDepth, logger,
	)
	accounts := service.NewAccountService(l)

	// Router.
	router := handler.NewRouter(lifecycle, accounts, verifier, nonces, cfg.CORSOrigins, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for SIGINT/SIGTERM or a server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", slog.String("error", err.Error()))
	}

	// Graceful shutdown: stop accepting requests, then let the deferred
	// closers flush the publisher and the ledger.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

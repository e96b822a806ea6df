// Package main provides the API server entry point for the ledger reconciler.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledger-reconciler/internal/adapter"
	"github.com/ledger-reconciler/internal/api"
	"github.com/ledger-reconciler/internal/config"
	"github.com/ledger-reconciler/internal/logging"
	"github.com/ledger-reconciler/internal/ratelimit"
	"github.com/ledger-reconciler/internal/service"
	"github.com/ledger-reconciler/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Open the embedded store
	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer store.Close()

	logger.WithFields(map[string]interface{}{
		"path": cfg.Store.Path,
	}).Info("Store opened")

	// Initialize repositories
	walletRepo := storage.NewWalletRepository(store)
	transferRepo := storage.NewTransferRepository(store)
	gasRepo := storage.NewGasRecordRepository(store)
	priceRepo := storage.NewPriceRepository(store)
	ruleRepo := storage.NewRuleRepository(store)
	balanceRepo := storage.NewBalanceRepository(store)

	// Initialize the shared outbound request client. Both data sources go
	// through one adaptive throttle so pressure from either slows both.
	throttle, err := ratelimit.NewAdaptiveThrottle(&ratelimit.AdaptiveThrottleConfig{
		BaseDelay: cfg.Client.BaseDelay,
		MaxDelay:  cfg.Client.MaxDelay,
	})
	if err != nil {
		logger.WithError(err).Fatal("Invalid throttle configuration")
	}
	requestClient := adapter.NewRequestClient(throttle, adapter.RequestClientConfig{
		Timeout:    cfg.Client.Timeout,
		MaxRetries: cfg.Client.MaxRetries,
		RetryStep:  cfg.Client.RetryStep,
	})

	chainSource := adapter.NewAlchemyClient(cfg.Providers.ChainAPIKey, cfg.Providers.ChainBaseURL, requestClient)
	priceSource := adapter.NewCryptoCompareClient(cfg.Providers.PriceAPIKey, cfg.Providers.PriceBaseURL, requestClient)

	if cfg.Providers.ChainAPIKey == "" {
		logger.Warn("CHAIN_API_KEY not set - imports and balance refreshes will fail")
	}

	// Initialize services
	logger.Info("Initializing services...")

	importService := service.NewImportService(
		walletRepo,
		transferRepo,
		gasRepo,
		priceRepo,
		ruleRepo,
		chainSource,
		priceSource,
		service.ImportConfig{
			PageSize:        cfg.Import.PageSize,
			PriceTolerance:  cfg.Import.PriceTolerance,
			PriceLookback:   cfg.Import.PriceLookback,
			PriceLookahead:  cfg.Import.PriceLookahead,
			PriceResolution: cfg.Import.PriceResolution,
		},
	)

	balanceService := service.NewBalanceService(
		walletRepo,
		balanceRepo,
		chainSource,
		priceSource,
		service.BalanceConfig{
			DummyMode:    cfg.Balance.DummyMode,
			SpotCacheTTL: cfg.Balance.SpotCacheTTL,
		},
	)

	logger.Info("Services initialized")

	// Create server configuration. Imports run inside the request, so the
	// write timeout has to cover a full pipeline pass.
	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Networks:          cfg.Networks.Enabled,
	}

	server := api.NewServer(
		serverConfig,
		importService,
		balanceService,
		walletRepo,
		transferRepo,
		gasRepo,
		ruleRepo,
		balanceRepo,
		logger,
	)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

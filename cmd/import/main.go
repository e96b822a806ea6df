// Package main provides a command-line batch import tool for the ledger reconciler.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ledger-reconciler/internal/adapter"
	"github.com/ledger-reconciler/internal/config"
	"github.com/ledger-reconciler/internal/logging"
	"github.com/ledger-reconciler/internal/numeric"
	"github.com/ledger-reconciler/internal/ratelimit"
	"github.com/ledger-reconciler/internal/service"
	"github.com/ledger-reconciler/internal/storage"
	"github.com/ledger-reconciler/internal/types"
)

func main() {
	addrFlag := flag.String("address", "", "Import a single wallet address (default: all registered wallets)")
	networkFlag := flag.String("network", "", "Network to import from (default: first enabled network)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	network, err := resolveNetwork(cfg, *networkFlag)
	if err != nil {
		logger.WithError(err).Fatal("Invalid network")
	}

	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer store.Close()

	walletRepo := storage.NewWalletRepository(store)
	transferRepo := storage.NewTransferRepository(store)
	gasRepo := storage.NewGasRecordRepository(store)
	priceRepo := storage.NewPriceRepository(store)
	ruleRepo := storage.NewRuleRepository(store)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Println("\nInterrupted, finishing current item...")
		cancel()
	}()

	progress := func(p service.Progress) {
		label := p.CurrentItemLabel
		if len(label) > 16 {
			label = numeric.ShortenHash(label)
		}
		fmt.Printf("  [%s] %d/%d %s\n", p.Stage, p.Current, p.Total, label)
	}

	if *addrFlag != "" {
		fmt.Printf("Importing %s on %s\n", *addrFlag, network)
		if err := importService.ImportWallet(ctx, network, *addrFlag, progress); err != nil {
			logger.WithError(err).Fatal("Import failed")
		}
		fmt.Println("Import complete")
		return
	}

	fmt.Printf("Importing all registered wallets on %s\n", network)
	results, err := importService.ImportAll(ctx, network, progress)
	if err != nil {
		logger.WithError(err).Fatal("Batch import failed")
	}
	if len(results) == 0 {
		fmt.Println("No wallets registered, nothing to import")
		return
	}

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			logger.WithError(result.Err).WithField("wallet", result.Wallet).Error("Wallet import failed")
		}
	}

	fmt.Printf("Done: %d succeeded, %d failed\n", len(results)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// resolveNetwork validates the requested network against the enabled set,
// falling back to the first enabled network when none is requested.
func resolveNetwork(cfg *config.Config, requested string) (types.Network, error) {
	if len(cfg.Networks.Enabled) == 0 {
		return "", fmt.Errorf("no networks enabled")
	}
	if requested == "" {
		return cfg.Networks.Enabled[0], nil
	}
	for _, n := range cfg.Networks.Enabled {
		if strings.EqualFold(string(n), requested) {
			return n, nil
		}
	}
	return "", fmt.Errorf("network %q is not enabled", requested)
}

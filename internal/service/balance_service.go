package service

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/ledger-reconciler/internal/adapter"
	"github.com/ledger-reconciler/internal/errors"
	"github.com/ledger-reconciler/internal/logging"
	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/numeric"
	"github.com/ledger-reconciler/internal/storage"
	"github.com/ledger-reconciler/internal/types"
)

// BalanceConfig holds balance refresh tuning
type BalanceConfig struct {
	// DummyMode clears a wallet's balances without any external calls.
	// An explicit offline toggle.
	DummyMode    bool
	SpotCacheTTL time.Duration
}

// BalanceService refreshes the current-state token balances of a wallet.
// Unlike the import pipeline it keeps no resumption state; every call is
// a full replacement of the wallet's balance rows.
type BalanceService struct {
	wallets   *storage.WalletRepository
	balances  *storage.BalanceRepository
	chain     adapter.ChainDataSource
	priceSrc  adapter.PriceSource
	spotCache *gocache.Cache
	dummyMode bool
}

// NewBalanceService creates a balance service. Spot prices are memoized
// in a TTL cache so refreshing many wallets in a sweep does not refetch
// the same symbols.
func NewBalanceService(
	wallets *storage.WalletRepository,
	balances *storage.BalanceRepository,
	chain adapter.ChainDataSource,
	priceSrc adapter.PriceSource,
	cfg BalanceConfig,
) *BalanceService {
	ttl := cfg.SpotCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &BalanceService{
		wallets:   wallets,
		balances:  balances,
		chain:     chain,
		priceSrc:  priceSrc,
		spotCache: gocache.New(ttl, 2*ttl),
		dummyMode: cfg.DummyMode,
	}
}

// RefreshWallet replaces the wallet's balance rows across the given
// networks with the current on-chain state
func (s *BalanceService) RefreshWallet(ctx context.Context, address string, networks []types.Network) error {
	address = models.NormalizeAddress(address)
	logger := logging.FromContext(ctx).WithField("wallet", address)

	wallet, err := s.wallets.Get(address)
	if err != nil {
		return errors.NewStorageError("get wallet", err)
	}
	if wallet == nil {
		return errors.NewNotFoundError("wallet", address)
	}

	if s.dummyMode {
		logger.Info("dummy mode, clearing balances")
		if err := s.balances.DeleteByWallet(address); err != nil {
			return errors.NewStorageError("clear balances", err)
		}
		return nil
	}

	var rows []*models.TokenBalance
	for _, network := range networks {
		holdings, err := s.chain.FetchTokenHoldings(ctx, network, address)
		if err != nil {
			return err
		}

		prices, err := s.spotPrices(ctx, holdings)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, holding := range holdings {
			price := prices[holding.Symbol]
			balance := numeric.ParseDecimal(holding.Balance)
			rows = append(rows, &models.TokenBalance{
				WalletAddress: address,
				Symbol:        holding.Symbol,
				Name:          holding.Name,
				Balance:       holding.Balance,
				Price:         price.String(),
				Value:         balance.Mul(price).Round(numeric.ValueDisplayPlaces).StringFixed(numeric.ValueDisplayPlaces),
				Network:       network,
				Decimals:      holding.Decimals,
				UpdatedAt:     now,
			})
		}
	}

	if err := s.balances.DeleteByWallet(address); err != nil {
		return errors.NewStorageError("clear balances", err)
	}
	if err := s.balances.Upsert(rows); err != nil {
		return errors.NewStorageError("upsert balances", err)
	}
	logger.WithField("rows", len(rows)).Info("balances refreshed")
	return nil
}

// spotPrices resolves USD prices for the holdings, serving repeats from
// the TTL cache and fetching only the missing symbols
func (s *BalanceService) spotPrices(ctx context.Context, holdings []*adapter.TokenHolding) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(holdings))
	var missing []string
	for _, holding := range holdings {
		if cached, found := s.spotCache.Get(holding.Symbol); found {
			prices[holding.Symbol] = cached.(decimal.Decimal)
			continue
		}
		missing = append(missing, holding.Symbol)
	}
	if len(missing) == 0 {
		return prices, nil
	}

	fetched, err := s.priceSrc.FetchSpotPrices(ctx, missing)
	if err != nil {
		return nil, err
	}
	for symbol, price := range fetched {
		prices[symbol] = price
		s.spotCache.SetDefault(symbol, price)
	}
	return prices, nil
}

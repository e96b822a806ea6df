package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-reconciler/internal/adapter"
	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/storage"
	"github.com/ledger-reconciler/internal/types"
)

func newBalanceFixture(t *testing.T, dummy bool) (*BalanceService, *storage.WalletRepository, *storage.BalanceRepository, *mockChainSource, *mockPriceSource) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	wallets := storage.NewWalletRepository(store)
	balances := storage.NewBalanceRepository(store)
	chain := &mockChainSource{
		holdings: []*adapter.TokenHolding{
			{Symbol: "ETH", Name: "ETH", Balance: "1.5", Decimals: 18},
			{Symbol: "USDC", Name: "USD Coin", Balance: "250", Decimals: 6, ContractAddress: usdcContract},
		},
	}
	priceSrc := &mockPriceSource{
		price: decimal.NewFromInt(2000),
		spot: map[string]decimal.Decimal{
			"ETH":  decimal.NewFromInt(2000),
			"USDC": decimal.NewFromInt(1),
		},
	}

	service := NewBalanceService(wallets, balances, chain, priceSrc, BalanceConfig{DummyMode: dummy})
	return service, wallets, balances, chain, priceSrc
}

func TestRefreshWallet(t *testing.T) {
	service, wallets, balances, _, _ := newBalanceFixture(t, false)
	require.NoError(t, wallets.Create(&models.Wallet{Address: ownerAddr}))

	require.NoError(t, service.RefreshWallet(context.Background(), ownerAddr, []types.Network{types.NetworkEthereum}))

	rows, err := balances.ListByWallet(ownerAddr)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "ETH", rows[0].Symbol)
	assert.Equal(t, "3000.00000", rows[0].Value)
	assert.Equal(t, "USDC", rows[1].Symbol)
	assert.Equal(t, "250.00000", rows[1].Value)
}

func TestRefreshWalletReplacesPreviousRows(t *testing.T) {
	service, wallets, balances, chain, _ := newBalanceFixture(t, false)
	require.NoError(t, wallets.Create(&models.Wallet{Address: ownerAddr}))

	ctx := context.Background()
	require.NoError(t, service.RefreshWallet(ctx, ownerAddr, []types.Network{types.NetworkEthereum}))

	// the wallet sold its USDC since the last refresh
	chain.holdings = chain.holdings[:1]
	require.NoError(t, service.RefreshWallet(ctx, ownerAddr, []types.Network{types.NetworkEthereum}))

	rows, err := balances.ListByWallet(ownerAddr)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ETH", rows[0].Symbol)
}

func TestRefreshWalletSpotPricesMemoized(t *testing.T) {
	service, wallets, _, _, priceSrc := newBalanceFixture(t, false)
	require.NoError(t, wallets.Create(&models.Wallet{Address: ownerAddr}))
	require.NoError(t, wallets.Create(&models.Wallet{Address: exchangeAddr}))

	ctx := context.Background()
	require.NoError(t, service.RefreshWallet(ctx, ownerAddr, []types.Network{types.NetworkEthereum}))
	require.NoError(t, service.RefreshWallet(ctx, exchangeAddr, []types.Network{types.NetworkEthereum}))

	// the second wallet's symbols are served from the TTL cache
	assert.Equal(t, 1, priceSrc.spotCalls)
}

func TestRefreshWalletDummyMode(t *testing.T) {
	service, wallets, balances, chain, priceSrc := newBalanceFixture(t, true)
	require.NoError(t, wallets.Create(&models.Wallet{Address: ownerAddr}))

	require.NoError(t, balances.Upsert([]*models.TokenBalance{{
		WalletAddress: ownerAddr, Symbol: "ETH", Balance: "1", Price: "2000",
		Value: "2000.00000", Network: types.NetworkEthereum,
	}}))

	require.NoError(t, service.RefreshWallet(context.Background(), ownerAddr, []types.Network{types.NetworkEthereum}))

	rows, err := balances.ListByWallet(ownerAddr)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 0, chain.holdingsCalls)
	assert.Equal(t, 0, priceSrc.spotCalls)
}

func TestRefreshWalletUnknownWallet(t *testing.T) {
	service, _, _, chain, _ := newBalanceFixture(t, false)

	err := service.RefreshWallet(context.Background(), "0x4444444444444444444444444444444444444444", []types.Network{types.NetworkEthereum})
	require.Error(t, err)
	assert.Equal(t, 0, chain.holdingsCalls)
}

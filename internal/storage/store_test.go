package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWalletRepository(t *testing.T) {
	store := newTestStore(t)
	repo := NewWalletRepository(store)

	t.Run("create normalizes address", func(t *testing.T) {
		err := repo.Create(&models.Wallet{
			Address: "0xABCDEF1234567890abcdef1234567890ABCDEF12",
			Name:    "treasury",
		})
		require.NoError(t, err)

		wallet, err := repo.Get("0xabcdef1234567890abcdef1234567890abcdef12")
		require.NoError(t, err)
		require.NotNil(t, wallet)
		assert.Equal(t, "0xabcdef1234567890abcdef1234567890abcdef12", wallet.Address)
		assert.Equal(t, "treasury", wallet.Name)
		assert.Nil(t, wallet.LastSyncAt)
		assert.False(t, wallet.CreatedAt.IsZero())
	})

	t.Run("create rejects duplicate address", func(t *testing.T) {
		err := repo.Create(&models.Wallet{
			Address: "0xAbCdEf1234567890abcdef1234567890abcdef12",
		})
		require.Error(t, err)
	})

	t.Run("create rejects malformed address", func(t *testing.T) {
		err := repo.Create(&models.Wallet{Address: "0x1234"})
		require.Error(t, err)
	})

	t.Run("get absent wallet returns nil", func(t *testing.T) {
		wallet, err := repo.Get("0x1111111111111111111111111111111111111111")
		require.NoError(t, err)
		assert.Nil(t, wallet)
	})

	t.Run("update last sync", func(t *testing.T) {
		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		err := repo.UpdateLastSync("0xabcdef1234567890abcdef1234567890abcdef12", at)
		require.NoError(t, err)

		wallet, err := repo.Get("0xabcdef1234567890abcdef1234567890abcdef12")
		require.NoError(t, err)
		require.NotNil(t, wallet.LastSyncAt)
		assert.True(t, wallet.LastSyncAt.Equal(at))
	})

	t.Run("delete keeps historical records", func(t *testing.T) {
		transfers := NewTransferRepository(store)
		_, err := transfers.AppendDeduped([]*models.Transfer{{
			ID:            models.TransferID(100, "0xaa:log:1"),
			WalletAddress: "0xabcdef1234567890abcdef1234567890abcdef12",
			BlockNumber:   100,
			Hash:          "0xaa",
			Asset:         "ETH",
		}})
		require.NoError(t, err)

		require.NoError(t, repo.Delete("0xabcdef1234567890abcdef1234567890abcdef12"))

		wallet, err := repo.Get("0xabcdef1234567890abcdef1234567890abcdef12")
		require.NoError(t, err)
		assert.Nil(t, wallet)

		kept, err := transfers.ListByWallet("0xabcdef1234567890abcdef1234567890abcdef12")
		require.NoError(t, err)
		assert.Len(t, kept, 1)
	})
}

func TestTransferRepositoryDedup(t *testing.T) {
	store := newTestStore(t)
	repo := NewTransferRepository(store)

	wallet := "0x1111111111111111111111111111111111111111"
	batch := []*models.Transfer{
		{
			ID:            models.TransferID(200, "0xbb:log:0"),
			WalletAddress: wallet,
			BlockNumber:   200,
			Hash:          "0xbb",
			Asset:         "USDC",
		},
		{
			ID:            models.TransferID(150, "0xcc:log:0"),
			WalletAddress: wallet,
			BlockNumber:   150,
			Hash:          "0xcc",
			Asset:         "ETH",
		},
	}

	added, err := repo.AppendDeduped(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	t.Run("replay adds nothing", func(t *testing.T) {
		added, err := repo.AppendDeduped(batch)
		require.NoError(t, err)
		assert.Equal(t, 0, added)

		count, err := repo.CountByWallet(wallet)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("dedup applies across wallets", func(t *testing.T) {
		added, err := repo.AppendDeduped([]*models.Transfer{{
			ID:            models.TransferID(200, "0xbb:log:0"),
			WalletAddress: "0x2222222222222222222222222222222222222222",
			BlockNumber:   200,
			Hash:          "0xbb",
			Asset:         "USDC",
		}})
		require.NoError(t, err)
		assert.Equal(t, 0, added)
	})

	t.Run("list is ordered by block number", func(t *testing.T) {
		transfers, err := repo.ListByWallet(wallet)
		require.NoError(t, err)
		require.Len(t, transfers, 2)
		assert.Equal(t, uint64(150), transfers[0].BlockNumber)
		assert.Equal(t, uint64(200), transfers[1].BlockNumber)
	})

	t.Run("max block number", func(t *testing.T) {
		max, found, err := repo.MaxBlockNumber(wallet)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, uint64(200), max)

		_, found, err = repo.MaxBlockNumber("0x3333333333333333333333333333333333333333")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestTransferRepositoryUniqueSets(t *testing.T) {
	store := newTestStore(t)
	repo := NewTransferRepository(store)

	wallet := "0x1111111111111111111111111111111111111111"
	_, err := repo.AppendDeduped([]*models.Transfer{
		{ID: models.TransferID(10, "0xaa:0"), WalletAddress: wallet, BlockNumber: 10, Hash: "0xaa", Asset: "ETH"},
		{ID: models.TransferID(10, "0xaa:1"), WalletAddress: wallet, BlockNumber: 10, Hash: "0xaa", Asset: "USDC", ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
		{ID: models.TransferID(20, "0xbb:0"), WalletAddress: wallet, BlockNumber: 20, Hash: "0xbb", Asset: "USDC", ContractAddress: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
	})
	require.NoError(t, err)

	hashes, err := repo.UniqueHashes(wallet)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xaa", "0xbb"}, hashes)

	assets, err := repo.UniqueAssets(wallet)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "ETH", assets[0].Asset)
	assert.Equal(t, "USDC", assets[1].Asset)
}

func TestGasRecordRepository(t *testing.T) {
	store := newTestStore(t)
	repo := NewGasRecordRepository(store)

	wallet := "0x1111111111111111111111111111111111111111"
	added, err := repo.AppendDeduped([]*models.GasRecord{{
		WalletAddress: wallet,
		Hash:          "0xaa",
		BlockNumber:   10,
		GasUsed:       "0x5208",
		GasPrice:      "0x3b9aca00",
		GasCostEth:    "0.000021000000000000",
		GasCostUsd:    "0.04",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	t.Run("one record per hash", func(t *testing.T) {
		added, err := repo.AppendDeduped([]*models.GasRecord{{
			WalletAddress: wallet,
			Hash:          "0xaa",
			BlockNumber:   10,
		}})
		require.NoError(t, err)
		assert.Equal(t, 0, added)

		exists, err := repo.Exists("0xaa")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("get assigns derived id", func(t *testing.T) {
		record, err := repo.Get("0xaa")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, models.GasRecordID("0xaa"), record.ID)
		assert.Equal(t, "0.000021000000000000", record.GasCostEth)
	})

	t.Run("missing hashes", func(t *testing.T) {
		missing, err := repo.MissingHashes([]string{"0xaa", "0xbb", "0xcc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"0xbb", "0xcc"}, missing)
	})
}

func TestPriceRepository(t *testing.T) {
	store := newTestStore(t)
	repo := NewPriceRepository(store)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	series := []*models.HistoricalPrice{
		{Symbol: "ETH", Network: types.NetworkEthereum, Price: "2000", Currency: "USD", Timestamp: base, Origin: types.PriceOriginHistorical},
		{Symbol: "ETH", Network: types.NetworkEthereum, Price: "2010", Currency: "USD", Timestamp: base.Add(5 * time.Minute), Origin: types.PriceOriginHistorical},
		{Symbol: "ETH", Network: types.NetworkEthereum, Price: "2020", Currency: "USD", Timestamp: base.Add(10 * time.Minute), Origin: types.PriceOriginHistorical},
	}
	written, err := repo.MergeSeries(series)
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	t.Run("merge replaces matching tuple", func(t *testing.T) {
		_, err := repo.MergeSeries([]*models.HistoricalPrice{{
			Symbol: "ETH", Network: types.NetworkEthereum, Price: "1999", Currency: "USD",
			Timestamp: base, Origin: types.PriceOriginManual,
		}})
		require.NoError(t, err)

		points, err := repo.ListRange("ETH", "", types.NetworkEthereum, base.Add(-time.Minute), base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, "1999", points[0].Price)
		assert.Equal(t, types.PriceOriginManual, points[0].Origin)
	})

	t.Run("find near picks closest within tolerance", func(t *testing.T) {
		point, err := repo.FindNear("ETH", "", types.NetworkEthereum, base.Add(4*time.Minute), 5*time.Minute)
		require.NoError(t, err)
		require.NotNil(t, point)
		assert.Equal(t, "2010", point.Price)
	})

	t.Run("find near misses outside tolerance", func(t *testing.T) {
		point, err := repo.FindNear("ETH", "", types.NetworkEthereum, base.Add(30*time.Minute), 5*time.Minute)
		require.NoError(t, err)
		assert.Nil(t, point)
	})

	t.Run("contract address scopes the asset", func(t *testing.T) {
		point, err := repo.FindNear("ETH", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", types.NetworkEthereum, base, 5*time.Minute)
		require.NoError(t, err)
		assert.Nil(t, point)
	})
}

func TestRuleRepositoryOrder(t *testing.T) {
	store := newTestStore(t)
	repo := NewRuleRepository(store)

	first := &models.AddressRule{
		Name:             "exchange deposits",
		WalletAddress:    "0x1111111111111111111111111111111111111111",
		TransactionClass: types.ClassWithdraw,
	}
	second := &models.AddressRule{
		Name:             "usdc contract",
		ContractAddress:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		TransactionClass: types.ClassPurchase,
	}
	require.NoError(t, repo.Create(first))
	require.NoError(t, repo.Create(second))
	assert.NotEmpty(t, first.ID)

	t.Run("list preserves creation order", func(t *testing.T) {
		rules, err := repo.List()
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, "exchange deposits", rules[0].Name)
		assert.Equal(t, "usdc contract", rules[1].Name)
		assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", rules[1].ContractAddress)
	})

	t.Run("update keeps position", func(t *testing.T) {
		first.TransactionClass = types.ClassSwap
		require.NoError(t, repo.Update(first))

		rules, err := repo.List()
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, types.ClassSwap, rules[0].TransactionClass)
	})

	t.Run("create rejects rule without addresses", func(t *testing.T) {
		err := repo.Create(&models.AddressRule{Name: "empty", TransactionClass: types.ClassBurn})
		require.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(second.ID))
		rules, err := repo.List()
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, first.ID, rules[0].ID)
	})
}

func TestBalanceRepository(t *testing.T) {
	store := newTestStore(t)
	repo := NewBalanceRepository(store)

	wallet := "0x1111111111111111111111111111111111111111"
	require.NoError(t, repo.Upsert([]*models.TokenBalance{
		{WalletAddress: wallet, Symbol: "ETH", Balance: "1.5", Price: "2000", Value: "3000.00000", Network: types.NetworkEthereum},
		{WalletAddress: wallet, Symbol: "USDC", Balance: "250", Price: "1", Value: "250.00000", Network: types.NetworkEthereum},
	}))

	t.Run("refresh replaces matching key", func(t *testing.T) {
		require.NoError(t, repo.Upsert([]*models.TokenBalance{
			{WalletAddress: wallet, Symbol: "ETH", Balance: "2", Price: "2000", Value: "4000.00000", Network: types.NetworkEthereum},
		}))

		balances, err := repo.ListByWallet(wallet)
		require.NoError(t, err)
		require.Len(t, balances, 2)
		assert.Equal(t, "ETH", balances[0].Symbol)
		assert.Equal(t, "4000.00000", balances[0].Value)
	})

	t.Run("list sorts by value descending", func(t *testing.T) {
		balances, err := repo.ListByWallet(wallet)
		require.NoError(t, err)
		require.Len(t, balances, 2)
		assert.Equal(t, "ETH", balances[0].Symbol)
		assert.Equal(t, "USDC", balances[1].Symbol)
	})

	t.Run("delete by wallet", func(t *testing.T) {
		require.NoError(t, repo.DeleteByWallet(wallet))
		balances, err := repo.ListByWallet(wallet)
		require.NoError(t, err)
		assert.Empty(t, balances)
	})
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-reconciler/internal/errors"
	"github.com/ledger-reconciler/internal/logging"
	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/service"
	"github.com/ledger-reconciler/internal/storage"
	"github.com/ledger-reconciler/internal/types"
)

const testWallet = "0x1111111111111111111111111111111111111111"

// mockImportService scripts import outcomes per wallet
type mockImportService struct {
	errs  map[string]error
	calls []string
}

func (m *mockImportService) ImportWallet(ctx context.Context, network types.Network, address string, progress service.ProgressFunc) error {
	m.calls = append(m.calls, address)
	if err, failed := m.errs[address]; failed {
		return err
	}
	if progress != nil {
		started := time.Now()
		progress(service.Progress{Stage: types.StageTransfers, Current: 1, StartedAt: started})
		progress(service.Progress{Stage: types.StageTransfers, Current: 2, StartedAt: started})
		progress(service.Progress{Stage: types.StageGas, Current: 1, Total: 3, StartedAt: started})
		progress(service.Progress{Stage: types.StageGas, Current: 3, Total: 3, StartedAt: started})
		progress(service.Progress{Stage: types.StageComplete, Current: 1, Total: 1, StartedAt: started})
	}
	return nil
}

func (m *mockImportService) ImportAll(ctx context.Context, network types.Network, progress service.ProgressFunc) ([]service.ImportResult, error) {
	return []service.ImportResult{
		{Wallet: testWallet, Err: nil},
		{Wallet: "0x2222222222222222222222222222222222222222", Err: errors.NewStageError("0x2222222222222222222222222222222222222222", types.StageGas, fmt.Errorf("boom"))},
	}, nil
}

// mockBalanceService records refresh calls
type mockBalanceService struct {
	calls int
	err   error
}

func (m *mockBalanceService) RefreshWallet(ctx context.Context, address string, networks []types.Network) error {
	m.calls++
	return m.err
}

type apiFixture struct {
	server    *Server
	wallets   *storage.WalletRepository
	transfers *storage.TransferRepository
	gas       *storage.GasRecordRepository
	rules     *storage.RuleRepository
	balances  *storage.BalanceRepository
	imports   *mockImportService
	refresh   *mockBalanceService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &apiFixture{
		wallets:   storage.NewWalletRepository(store),
		transfers: storage.NewTransferRepository(store),
		gas:       storage.NewGasRecordRepository(store),
		rules:     storage.NewRuleRepository(store),
		balances:  storage.NewBalanceRepository(store),
		imports:   &mockImportService{errs: map[string]error{}},
		refresh:   &mockBalanceService{},
	}
	f.server = NewServer(
		&ServerConfig{
			Host:              "127.0.0.1",
			Port:              "0",
			RequestsPerSecond: 1000,
			Burst:             1000,
			Networks:          []types.Network{types.NetworkEthereum, types.NetworkPolygon},
		},
		f.imports, f.refresh,
		f.wallets, f.transfers, f.gas, f.rules, f.balances,
		logging.NewLogger(logging.LevelError, logging.FormatText),
	)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	recorder := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "healthy")
}

func TestWalletLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("create", func(t *testing.T) {
		resp := f.do(t, "POST", "/api/wallets", CreateWalletRequest{Address: testWallet, Name: "treasury"})
		require.Equal(t, http.StatusCreated, resp.Code)

		var wallet models.Wallet
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &wallet))
		assert.Equal(t, testWallet, wallet.Address)
	})

	t.Run("create rejects malformed address", func(t *testing.T) {
		resp := f.do(t, "POST", "/api/wallets", CreateWalletRequest{Address: "0x123"})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("get", func(t *testing.T) {
		resp := f.do(t, "GET", "/api/wallets/"+testWallet, nil)
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("get unknown returns 404", func(t *testing.T) {
		resp := f.do(t, "GET", "/api/wallets/0x9999999999999999999999999999999999999999", nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("rename", func(t *testing.T) {
		resp := f.do(t, "PUT", "/api/wallets/"+testWallet, UpdateWalletRequest{Name: "ops"})
		require.Equal(t, http.StatusOK, resp.Code)

		var wallet models.Wallet
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &wallet))
		assert.Equal(t, "ops", wallet.Name)
	})

	t.Run("delete", func(t *testing.T) {
		resp := f.do(t, "DELETE", "/api/wallets/"+testWallet, nil)
		assert.Equal(t, http.StatusOK, resp.Code)

		resp = f.do(t, "GET", "/api/wallets/"+testWallet, nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestImportEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.wallets.Create(&models.Wallet{Address: testWallet}))

	t.Run("success returns stage summary", func(t *testing.T) {
		resp := f.do(t, "POST", "/api/wallets/"+testWallet+"/imports", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var body ImportResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, testWallet, body.Wallet)
		assert.Equal(t, types.NetworkEthereum, body.Network)
		require.Len(t, body.Stages, 3)
		assert.Equal(t, types.StageTransfers, body.Stages[0].Stage)
		assert.Equal(t, 2, body.Stages[0].Items)
		assert.Equal(t, types.StageGas, body.Stages[1].Stage)
		assert.Equal(t, 3, body.Stages[1].Items)
	})

	t.Run("network parameter validated", func(t *testing.T) {
		resp := f.do(t, "POST", "/api/wallets/"+testWallet+"/imports?network=solana", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("stage failure maps to error response", func(t *testing.T) {
		f.imports.errs[testWallet] = errors.NewStageError(testWallet, types.StageGas, fmt.Errorf("boom"))
		defer delete(f.imports.errs, testWallet)

		resp := f.do(t, "POST", "/api/wallets/"+testWallet+"/imports", nil)
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
		assert.Contains(t, resp.Body.String(), "IMPORT_STAGE_FAILED")
	})

	t.Run("batch reports per-wallet outcomes", func(t *testing.T) {
		resp := f.do(t, "POST", "/api/imports", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			Failed  int                `json:"failed"`
			Results []BatchImportEntry `json:"results"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Failed)
		require.Len(t, body.Results, 2)
		assert.Equal(t, "complete", body.Results[0].Status)
		assert.Equal(t, "failed", body.Results[1].Status)
		assert.Equal(t, "gas", body.Results[1].Stage)
	})
}

func TestRuleEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rule := models.AddressRule{
		Name:             "exchange",
		WalletAddress:    "0x2222222222222222222222222222222222222222",
		TransactionClass: types.ClassSwap,
	}

	resp := f.do(t, "POST", "/api/rules", rule)
	require.Equal(t, http.StatusCreated, resp.Code)

	var created models.AddressRule
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	t.Run("invalid rule rejected", func(t *testing.T) {
		resp := f.do(t, "POST", "/api/rules", models.AddressRule{Name: "empty", TransactionClass: types.ClassSwap})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("list", func(t *testing.T) {
		resp := f.do(t, "GET", "/api/rules", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Body.String(), created.ID)
	})

	t.Run("update keeps id", func(t *testing.T) {
		created.TransactionClass = types.ClassPurchase
		resp := f.do(t, "PUT", "/api/rules/"+created.ID, created)
		require.Equal(t, http.StatusOK, resp.Code)

		var updated models.AddressRule
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &updated))
		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, types.ClassPurchase, updated.TransactionClass)
	})

	t.Run("delete", func(t *testing.T) {
		resp := f.do(t, "DELETE", "/api/rules/"+created.ID, nil)
		assert.Equal(t, http.StatusOK, resp.Code)

		resp = f.do(t, "GET", "/api/rules/"+created.ID, nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestQueryEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.wallets.Create(&models.Wallet{Address: testWallet}))

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := f.transfers.AppendDeduped([]*models.Transfer{
		{
			ID: models.TransferID(100, "0xaa:0"), WalletAddress: testWallet,
			BlockNumber: 100, Hash: "0xaa", FromAddress: "0x9999999999999999999999999999999999999999",
			ToAddress: testWallet, Value: "1", Asset: "ETH", Category: "external",
			Decimals: 18, Timestamp: at, TransactionClass: types.ClassOtherIncome,
		},
		{
			ID: models.TransferID(101, "0xbb:0"), WalletAddress: testWallet,
			BlockNumber: 101, Hash: "0xbb", FromAddress: testWallet,
			ToAddress: "0x9999999999999999999999999999999999999999", Value: "0.5",
			Asset: "ETH", Category: "external", Decimals: 18, Timestamp: at,
			TransactionClass: types.ClassWithdraw,
		},
	})
	require.NoError(t, err)

	_, err = f.gas.AppendDeduped([]*models.GasRecord{{
		WalletAddress: testWallet, Hash: "0xaa", BlockNumber: 100,
		GasUsed: "0x5208", GasPrice: "0x3b9aca00",
		GasCostEth: "0.000021000000000000", GasCostUsd: "0.04", Timestamp: at,
	}})
	require.NoError(t, err)

	t.Run("transfers", func(t *testing.T) {
		resp := f.do(t, "GET", "/api/wallets/"+testWallet+"/transfers", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Count)
	})

	t.Run("gas records", func(t *testing.T) {
		resp := f.do(t, "GET", "/api/wallets/"+testWallet+"/gas", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Body.String(), "0.000021000000000000")
	})

	t.Run("missing gas report", func(t *testing.T) {
		resp := f.do(t, "GET", "/api/wallets/"+testWallet+"/reports/missing-gas", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			Total   int      `json:"total"`
			Missing []string `json:"missing"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Total)
		assert.Equal(t, []string{"0xbb"}, body.Missing)
	})

	t.Run("csv export", func(t *testing.T) {
		resp := f.do(t, "GET", "/api/wallets/"+testWallet+"/export", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "text/csv", resp.Header().Get("Content-Type"))

		lines := strings.Split(strings.TrimSpace(resp.Body.String()), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "id,blockNumber,hash"))
		assert.Contains(t, lines[1], "OtherIncome")
		assert.Contains(t, lines[2], "Withdraw")
	})
}

func TestRefreshBalancesEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.wallets.Create(&models.Wallet{Address: testWallet}))

	resp := f.do(t, "POST", "/api/wallets/"+testWallet+"/balances/refresh", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, f.refresh.calls)
}

func TestRateLimitMiddleware(t *testing.T) {
	f := newAPIFixture(t)
	limited := NewServer(
		&ServerConfig{
			Host: "127.0.0.1", Port: "0",
			RequestsPerSecond: 1, Burst: 1,
			Networks: []types.Network{types.NetworkEthereum},
		},
		f.imports, f.refresh,
		f.wallets, f.transfers, f.gas, f.rules, f.balances,
		logging.NewLogger(logging.LevelError, logging.FormatText),
	)

	first := httptest.NewRequest("GET", "/health", nil)
	first.RemoteAddr = "192.0.2.5:1000"
	recorder := httptest.NewRecorder()
	limited.Handler().ServeHTTP(recorder, first)
	assert.Equal(t, http.StatusOK, recorder.Code)

	second := httptest.NewRequest("GET", "/health", nil)
	second.RemoteAddr = "192.0.2.5:1000"
	recorder = httptest.NewRecorder()
	limited.Handler().ServeHTTP(recorder, second)
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
}

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ledger-reconciler/internal/errors"
	"github.com/ledger-reconciler/internal/logging"
	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/numeric"
	"github.com/ledger-reconciler/internal/types"
)

// TransferPage is one page of asset transfer events for a wallet
type TransferPage struct {
	Transfers []*models.Transfer
	PageKey   string // empty when this is the last page
}

// Receipt holds the gas fields of a mined transaction
type Receipt struct {
	Hash              string
	BlockNumber       uint64
	GasUsed           string // hex
	EffectiveGasPrice string // hex
}

// TokenHolding is one asset balance reported by the chain provider
type TokenHolding struct {
	Symbol          string
	Name            string
	ContractAddress string // empty for the native asset
	Balance         string // decimal string
	Decimals        int
}

// ChainDataSource fetches on-chain data for a wallet
type ChainDataSource interface {
	// FetchTransfersPage returns one page of transfers at or above fromBlock.
	// Pass the previous page's PageKey to continue, empty to start.
	FetchTransfersPage(ctx context.Context, network types.Network, address string, fromBlock uint64, pageKey string, pageSize int) (*TransferPage, error)

	// FetchReceipt returns the gas fields for a mined transaction
	FetchReceipt(ctx context.Context, network types.Network, hash string) (*Receipt, error)

	// FetchTokenHoldings returns the wallet's current asset balances
	FetchTokenHoldings(ctx context.Context, network types.Network, address string) ([]*TokenHolding, error)
}

// AlchemyClient implements ChainDataSource against the Alchemy JSON-RPC API
type AlchemyClient struct {
	apiKey  string
	baseURL string // overrides the per-network endpoint when set, used in tests
	client  *RequestClient
}

// NewAlchemyClient creates a chain data client.
// baseURL is normally empty; the per-network Alchemy endpoint is derived
// from the network.
func NewAlchemyClient(apiKey, baseURL string, client *RequestClient) *AlchemyClient {
	return &AlchemyClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
	}
}

// alchemySubdomains maps networks to Alchemy endpoint subdomains
var alchemySubdomains = map[types.Network]string{
	types.NetworkEthereum: "eth-mainnet",
	types.NetworkPolygon:  "polygon-mainnet",
	types.NetworkArbitrum: "arb-mainnet",
	types.NetworkOptimism: "opt-mainnet",
	types.NetworkBase:     "base-mainnet",
}

func (c *AlchemyClient) endpoint(network types.Network) (string, error) {
	if c.apiKey == "" {
		return "", errors.NewConfigurationError("CHAIN_API_KEY")
	}
	if c.baseURL != "" {
		return fmt.Sprintf("%s/v2/%s", strings.TrimSuffix(c.baseURL, "/"), c.apiKey), nil
	}
	subdomain, ok := alchemySubdomains[network]
	if !ok {
		return "", errors.NewInvalidInputError("network", fmt.Sprintf("unsupported network %q", network))
	}
	return fmt.Sprintf("https://%s.g.alchemy.com/v2/%s", subdomain, c.apiKey), nil
}

// rpcRequest is a JSON-RPC 2.0 request envelope
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call issues a JSON-RPC request and decodes the result field into out
func (c *AlchemyClient) call(ctx context.Context, network types.Network, method string, params []interface{}, out interface{}) error {
	url, err := c.endpoint(network)
	if err != nil {
		return err
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return errors.NewPermanentSourceError(method, err)
	}

	respBody, err := c.client.Post(ctx, method, url, body)
	if err != nil {
		return err
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return errors.NewPermanentSourceError(method, fmt.Errorf("failed to parse response: %w", err))
	}
	if resp.Error != nil {
		// Alchemy reports compute unit throttling as a -32005 RPC error
		// with an HTTP 200
		if resp.Error.Code == -32005 {
			return errors.NewRateLimitedError(method)
		}
		return errors.NewPermanentSourceError(method, fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message))
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return errors.NewPermanentSourceError(method, fmt.Errorf("failed to parse result: %w", err))
		}
	}
	return nil
}

// assetTransfer is one alchemy_getAssetTransfers entry
type assetTransfer struct {
	UniqueID    string `json:"uniqueId"`
	Category    string `json:"category"`
	BlockNum    string `json:"blockNum"` // hex
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Asset       string `json:"asset"`
	RawContract struct {
		Value   string `json:"value"`   // hex units
		Address string `json:"address"` // empty for native transfers
		Decimal string `json:"decimal"` // hex
	} `json:"rawContract"`
	Metadata struct {
		BlockTimestamp string `json:"blockTimestamp"` // RFC3339
	} `json:"metadata"`
}

type assetTransfersResult struct {
	Transfers []assetTransfer `json:"transfers"`
	PageKey   string          `json:"pageKey"`
}

// FetchTransfersPage returns one page of transfers for an address.
// The provider filters by one direction per call, so paging walks the
// incoming side first and then the outgoing side; the returned PageKey
// is an opaque cursor encoding direction and provider key.
func (c *AlchemyClient) FetchTransfersPage(ctx context.Context, network types.Network, address string, fromBlock uint64, pageKey string, pageSize int) (*TransferPage, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	direction, providerKey := "in", ""
	if pageKey != "" {
		parts := strings.SplitN(pageKey, ":", 2)
		direction = parts[0]
		if len(parts) == 2 {
			providerKey = parts[1]
		}
		if direction != "in" && direction != "out" {
			return nil, errors.NewInvalidInputError("pageKey", fmt.Sprintf("bad cursor %q", pageKey))
		}
	}

	params := map[string]interface{}{
		"fromBlock":        hexutil.EncodeUint64(fromBlock),
		"toBlock":          "latest",
		"category":         []string{"external", "internal", "erc20", "erc721", "erc1155"},
		"withMetadata":     true,
		"maxCount":         hexutil.EncodeUint64(uint64(pageSize)),
		"excludeZeroValue": false,
	}
	if direction == "in" {
		params["toAddress"] = strings.ToLower(address)
	} else {
		params["fromAddress"] = strings.ToLower(address)
	}
	if providerKey != "" {
		params["pageKey"] = providerKey
	}

	var result assetTransfersResult
	if err := c.call(ctx, network, "alchemy_getAssetTransfers", []interface{}{params}, &result); err != nil {
		return nil, err
	}

	page := &TransferPage{}
	switch {
	case result.PageKey != "":
		page.PageKey = direction + ":" + result.PageKey
	case direction == "in":
		page.PageKey = "out:"
	}

	for _, raw := range result.Transfers {
		transfer, err := c.convertTransfer(raw, network, address)
		if err != nil {
			// one malformed event does not fail the page
			logging.FromContext(ctx).WithField("hash", raw.Hash).WithError(err).
				Warn("skipping malformed transfer event")
			continue
		}
		page.Transfers = append(page.Transfers, transfer)
	}
	return page, nil
}

// convertTransfer maps one provider event into a stored transfer
func (c *AlchemyClient) convertTransfer(raw assetTransfer, network types.Network, wallet string) (*models.Transfer, error) {
	blockNumber, err := hexutil.DecodeUint64(raw.BlockNum)
	if err != nil {
		return nil, fmt.Errorf("bad block number %q: %w", raw.BlockNum, err)
	}
	if raw.UniqueID == "" {
		return nil, fmt.Errorf("transfer %s missing unique id", raw.Hash)
	}

	decimals := types.DefaultDecimals
	if raw.RawContract.Decimal != "" {
		if d, err := hexutil.DecodeUint64(raw.RawContract.Decimal); err == nil {
			decimals = int(d)
		}
	}

	value := "0"
	if raw.RawContract.Value != "" {
		parsed, err := numeric.UnitsToDecimal(raw.RawContract.Value, decimals)
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", raw.RawContract.Value, err)
		}
		value = parsed.String()
	}

	timestamp, err := time.Parse(time.RFC3339, raw.Metadata.BlockTimestamp)
	if err != nil {
		return nil, fmt.Errorf("bad block timestamp %q: %w", raw.Metadata.BlockTimestamp, err)
	}

	asset := raw.Asset
	if asset == "" {
		asset = network.NativeSymbol()
	}

	return &models.Transfer{
		ID:              models.TransferID(blockNumber, raw.UniqueID),
		WalletAddress:   models.NormalizeAddress(wallet),
		BlockNumber:     blockNumber,
		Hash:            raw.Hash,
		FromAddress:     models.NormalizeAddress(raw.From),
		ToAddress:       models.NormalizeAddress(raw.To),
		Value:           value,
		Asset:           asset,
		Category:        raw.Category,
		ContractAddress: models.NormalizeAddress(raw.RawContract.Address),
		Decimals:        decimals,
		Timestamp:       timestamp.UTC(),
	}, nil
}

// FetchReceipt returns the gas fields for a mined transaction
func (c *AlchemyClient) FetchReceipt(ctx context.Context, network types.Network, hash string) (*Receipt, error) {
	var raw struct {
		TransactionHash   string `json:"transactionHash"`
		BlockNumber       string `json:"blockNumber"`
		GasUsed           string `json:"gasUsed"`
		EffectiveGasPrice string `json:"effectiveGasPrice"`
	}
	if err := c.call(ctx, network, "eth_getTransactionReceipt", []interface{}{hash}, &raw); err != nil {
		return nil, err
	}
	if raw.TransactionHash == "" {
		return nil, errors.NewNotFoundError("receipt", hash)
	}

	blockNumber, err := hexutil.DecodeUint64(raw.BlockNumber)
	if err != nil {
		return nil, errors.NewPermanentSourceError("eth_getTransactionReceipt",
			fmt.Errorf("bad block number %q: %w", raw.BlockNumber, err))
	}
	return &Receipt{
		Hash:              raw.TransactionHash,
		BlockNumber:       blockNumber,
		GasUsed:           raw.GasUsed,
		EffectiveGasPrice: raw.EffectiveGasPrice,
	}, nil
}

// FetchTokenHoldings returns the wallet's native and ERC20 balances
func (c *AlchemyClient) FetchTokenHoldings(ctx context.Context, network types.Network, address string) ([]*TokenHolding, error) {
	var holdings []*TokenHolding

	var nativeBalance string
	if err := c.call(ctx, network, "eth_getBalance", []interface{}{strings.ToLower(address), "latest"}, &nativeBalance); err != nil {
		return nil, err
	}
	native, err := numeric.UnitsToDecimal(nativeBalance, types.DefaultDecimals)
	if err != nil {
		return nil, errors.NewPermanentSourceError("eth_getBalance",
			fmt.Errorf("bad balance %q: %w", nativeBalance, err))
	}
	holdings = append(holdings, &TokenHolding{
		Symbol:   network.NativeSymbol(),
		Name:     network.NativeSymbol(),
		Balance:  native.String(),
		Decimals: types.DefaultDecimals,
	})

	var tokens struct {
		TokenBalances []struct {
			ContractAddress string `json:"contractAddress"`
			TokenBalance    string `json:"tokenBalance"` // hex units
		} `json:"tokenBalances"`
	}
	if err := c.call(ctx, network, "alchemy_getTokenBalances", []interface{}{strings.ToLower(address), "erc20"}, &tokens); err != nil {
		return nil, err
	}

	for _, token := range tokens.TokenBalances {
		if token.TokenBalance == "" || isZeroHex(token.TokenBalance) {
			continue
		}

		var meta struct {
			Name     string `json:"name"`
			Symbol   string `json:"symbol"`
			Decimals int    `json:"decimals"`
		}
		if err := c.call(ctx, network, "alchemy_getTokenMetadata", []interface{}{token.ContractAddress}, &meta); err != nil {
			return nil, err
		}
		if meta.Symbol == "" {
			continue
		}

		balance, err := numeric.UnitsToDecimal(token.TokenBalance, meta.Decimals)
		if err != nil {
			continue
		}
		holdings = append(holdings, &TokenHolding{
			Symbol:          meta.Symbol,
			Name:            meta.Name,
			ContractAddress: models.NormalizeAddress(token.ContractAddress),
			Balance:         balance.String(),
			Decimals:        meta.Decimals,
		})
	}
	return holdings, nil
}

func isZeroHex(s string) bool {
	trimmed := strings.TrimPrefix(strings.ToLower(s), "0x")
	return strings.TrimLeft(trimmed, "0") == ""
}

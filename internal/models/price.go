package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/ledger-reconciler/internal/types"
)

// HistoricalPrice is a timestamped price point for an asset on a network.
// Points are deduplicated by (symbol-or-contract, network, timestamp): a
// merge with a matching tuple replaces the stored point.
type HistoricalPrice struct {
	Symbol          string            `json:"symbol,omitempty"`
	ContractAddress string            `json:"contractAddress,omitempty"`
	Network         types.Network     `json:"network"`
	Price           string            `json:"price"` // decimal string
	Currency        string            `json:"currency"`
	Timestamp       time.Time         `json:"timestamp"`
	Origin          types.PriceOrigin `json:"source"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// AssetKey identifies the priced asset: the contract address when present,
// otherwise the symbol. Case-insensitive.
func (p *HistoricalPrice) AssetKey() string {
	return PriceAssetKey(p.Symbol, p.ContractAddress)
}

// MergeKey is the dedup tuple for price points
func (p *HistoricalPrice) MergeKey() string {
	return fmt.Sprintf("%s|%s|%d", p.AssetKey(), p.Network, p.Timestamp.Unix())
}

// PriceAssetKey normalizes the symbol-or-contract identity of an asset
func PriceAssetKey(symbol, contractAddress string) string {
	if contractAddress != "" {
		return strings.ToLower(contractAddress)
	}
	return strings.ToUpper(symbol)
}

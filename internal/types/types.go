// Package types provides common type definitions for the ledger reconciler.
package types

import "regexp"

// Network represents supported blockchain networks
type Network string

const (
	// NetworkEthereum represents the Ethereum mainnet
	NetworkEthereum Network = "ethereum"
	// NetworkPolygon represents the Polygon network
	NetworkPolygon Network = "polygon"
	// NetworkArbitrum represents the Arbitrum network
	NetworkArbitrum Network = "arbitrum"
	// NetworkOptimism represents the Optimism network
	NetworkOptimism Network = "optimism"
	// NetworkBase represents the Base network
	NetworkBase Network = "base"
)

// NativeSymbol returns the native asset symbol for a network
func (n Network) NativeSymbol() string {
	switch n {
	case NetworkPolygon:
		return "MATIC"
	default:
		return "ETH"
	}
}

// TransactionClass represents the accounting category assigned to a transfer
type TransactionClass string

const (
	ClassEmission    TransactionClass = "Emission"
	ClassUploads     TransactionClass = "Uploads"
	ClassPurchase    TransactionClass = "Purchase"
	ClassBurn        TransactionClass = "Burn"
	ClassAirDrop     TransactionClass = "AirDrop"
	ClassSwap        TransactionClass = "Swap"
	ClassOtherIncome TransactionClass = "OtherIncome"
	ClassWithdraw    TransactionClass = "Withdraw"
)

// KnownClasses lists every accepted accounting category.
var KnownClasses = []TransactionClass{
	ClassEmission, ClassUploads, ClassPurchase, ClassBurn,
	ClassAirDrop, ClassSwap, ClassOtherIncome, ClassWithdraw,
}

// IsValid reports whether the class is one of the accepted categories
func (c TransactionClass) IsValid() bool {
	for _, known := range KnownClasses {
		if c == known {
			return true
		}
	}
	return false
}

// PriceOrigin represents how a historical price point was obtained
type PriceOrigin string

const (
	// PriceOriginBalance marks a price captured during a balance refresh
	PriceOriginBalance PriceOrigin = "balance"
	// PriceOriginHistorical marks a price fetched from the historical series API
	PriceOriginHistorical PriceOrigin = "historical"
	// PriceOriginManual marks a manually entered price
	PriceOriginManual PriceOrigin = "manual"
)

// ImportStage represents a stage of the import pipeline
type ImportStage string

const (
	// StageTransfers is the paginated transfer ingestion stage
	StageTransfers ImportStage = "transfers"
	// StageGas is the per-hash gas cost backfill stage
	StageGas ImportStage = "gas"
	// StagePrices is the historical price backfill stage
	StagePrices ImportStage = "prices"
	// StageComplete marks a finished import pass
	StageComplete ImportStage = "complete"
)

// DefaultDecimals is assumed when a source omits a token's decimals
const DefaultDecimals = 18

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether s is a 0x-prefixed 40-hex-digit address
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Package numeric provides fixed-precision decimal arithmetic for balances,
// gas costs, and valuations, plus display formatting helpers.
package numeric

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/ledger-reconciler/internal/types"
)

// EthDisplayPlaces is the fixed precision for ETH-denominated cost strings
const EthDisplayPlaces = 18

// UsdDisplayPlaces is the fixed precision for USD-denominated cost strings
const UsdDisplayPlaces = 2

// ValueDisplayPlaces is the fixed precision for fiat valuations of balances
const ValueDisplayPlaces = 5

var weiPerEth = decimal.New(1, 18)

// ParseQuantity parses a gas or value quantity that providers return either
// as a 0x-prefixed hex string or as a plain base-10 string.
func ParseQuantity(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty quantity")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if v, err := hexutil.DecodeBig(s); err == nil {
			return v, nil
		}
		// Some providers zero-pad hex quantities, which hexutil rejects
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex quantity %q", s)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}

// GasCostEth computes gasUsed * gasPrice / 10^18 as a decimal ETH amount.
func GasCostEth(gasUsed, gasPrice string) (decimal.Decimal, error) {
	used, err := ParseQuantity(gasUsed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gas used: %w", err)
	}
	price, err := ParseQuantity(gasPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gas price: %w", err)
	}
	wei := decimal.NewFromBigInt(new(big.Int).Mul(used, price), 0)
	return wei.Div(weiPerEth), nil
}

// FormatEth renders an ETH amount at the fixed 18-place precision
func FormatEth(d decimal.Decimal) string {
	return d.StringFixed(EthDisplayPlaces)
}

// FormatUsd renders a USD amount rounded to cents
func FormatUsd(d decimal.Decimal) string {
	return d.Round(UsdDisplayPlaces).StringFixed(UsdDisplayPlaces)
}

// UnitsToDecimal converts a base-unit amount string to a decimal amount using
// the token's decimals. Out-of-range decimals fall back to the default of 18.
func UnitsToDecimal(value string, decimals int) (decimal.Decimal, error) {
	if decimals <= 0 || decimals > 36 {
		decimals = types.DefaultDecimals
	}
	units, err := ParseQuantity(value)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(units, 0).Div(decimal.New(1, int32(decimals))), nil
}

// ParseDecimal parses a decimal string, returning zero for empty or invalid
// input. Persisted amounts are written by this package, so a parse failure
// means a foreign value slipped in and zero is the safe reading.
func ParseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ShortenAddress abbreviates an address for display: 0x1234...abcd
func ShortenAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// ShortenHash abbreviates a transaction hash for display
func ShortenHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:10] + "..." + hash[len(hash)-6:]
}

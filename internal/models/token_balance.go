package models

import (
	"fmt"
	"time"

	"github.com/ledger-reconciler/internal/types"
)

// TokenBalance is the current-state balance of one asset for a wallet on a
// network. Unique per (wallet, symbol, network); refresh replaces the row.
type TokenBalance struct {
	WalletAddress string        `json:"walletAddress"`
	Symbol        string        `json:"symbol"`
	Name          string        `json:"name,omitempty"`
	Balance       string        `json:"balance"` // decimal string
	Price         string        `json:"price"`   // decimal string
	Value         string        `json:"value"`   // balance * price at 5 places
	Network       types.Network `json:"network"`
	Decimals      int           `json:"decimals,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Key is the upsert key for a balance row
func (b *TokenBalance) Key() string {
	return BalanceKey(b.WalletAddress, b.Symbol, b.Network)
}

// BalanceKey builds the (wallet, symbol, network) upsert key
func BalanceKey(wallet, symbol string, network types.Network) string {
	return fmt.Sprintf("%s|%s|%s", NormalizeAddress(wallet), symbol, network)
}

package models

import (
	"fmt"
	"time"

	"github.com/ledger-reconciler/internal/types"
)

// Transfer represents one on-chain asset movement event involving a wallet.
// Records are immutable once written except for TransactionClass.
type Transfer struct {
	ID               string                 `json:"id"` // composite of block number and provider unique id; the global dedup key
	WalletAddress    string                 `json:"walletAddress"`
	BlockNumber      uint64                 `json:"blockNumber"`
	Hash             string                 `json:"hash"`
	FromAddress      string                 `json:"fromAddress"`
	ToAddress        string                 `json:"toAddress"`
	Value            string                 `json:"value"` // decimal string
	Asset            string                 `json:"asset"`
	Category         string                 `json:"category"` // provider category: external, erc20, ...
	ContractAddress  string                 `json:"contractAddress,omitempty"`
	Decimals         int                    `json:"decimals"`
	Timestamp        time.Time              `json:"timestamp"`
	TransactionClass types.TransactionClass `json:"transactionClass,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
}

// TransferID builds the composite dedup key for a transfer
func TransferID(blockNumber uint64, uniqueID string) string {
	return fmt.Sprintf("%d_%s", blockNumber, uniqueID)
}

// Incoming reports whether the transfer credits the owning wallet
func (t *Transfer) Incoming() bool {
	return SameAddress(t.ToAddress, t.WalletAddress)
}

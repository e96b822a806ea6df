package models

import "time"

// gasRecordSuffix makes a gas record id unique per transaction hash
const gasRecordSuffix = "_gas"

// GasRecord holds the computed fee cost of one on-chain transaction.
// Exactly one record exists per unique hash, regardless of how many
// transfers that transaction emitted. Created once, never updated.
type GasRecord struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	Hash          string    `json:"hash"`
	BlockNumber   uint64    `json:"blockNumber"`
	GasUsed       string    `json:"gasUsed"`  // hex string as returned by the receipt
	GasPrice      string    `json:"gasPrice"` // effective gas price, hex string
	GasCostEth    string    `json:"gasCostEth"`
	GasCostUsd    string    `json:"gasCostUsd"`
	Timestamp     time.Time `json:"timestamp"`
	CreatedAt     time.Time `json:"createdAt"`
}

// GasRecordID builds the per-hash unique id for a gas record
func GasRecordID(hash string) string {
	return hash + gasRecordSuffix
}

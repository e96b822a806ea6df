package models

import (
	"fmt"

	"github.com/ledger-reconciler/internal/types"
)

// AddressRule maps a counterpart wallet or contract address to an
// accounting category. At least one of WalletAddress/ContractAddress
// must be set.
type AddressRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	WalletAddress    string                 `json:"walletAddress,omitempty"`
	ContractAddress  string                 `json:"contractAddress,omitempty"`
	TransactionClass types.TransactionClass `json:"transactionClass"`
}

// Validate checks the rule's addresses and class
func (r *AddressRule) Validate() error {
	if r.WalletAddress == "" && r.ContractAddress == "" {
		return fmt.Errorf("rule %q: at least one of walletAddress or contractAddress is required", r.Name)
	}
	if r.WalletAddress != "" && !types.IsValidAddress(r.WalletAddress) {
		return fmt.Errorf("rule %q: invalid wallet address %q", r.Name, r.WalletAddress)
	}
	if r.ContractAddress != "" && !types.IsValidAddress(r.ContractAddress) {
		return fmt.Errorf("rule %q: invalid contract address %q", r.Name, r.ContractAddress)
	}
	if !r.TransactionClass.IsValid() {
		return fmt.Errorf("rule %q: unknown transaction class %q", r.Name, r.TransactionClass)
	}
	return nil
}

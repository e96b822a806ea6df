package service

import (
	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/types"
)

// Classify assigns an accounting category to a transfer using the
// configured address rules. A rule matches an address when its
// walletAddress equals that address or its contractAddress equals the
// transfer's contract address, case-insensitive. The first matching rule
// in list order wins.
//
// Incoming transfers (to == owner) take the class of the rule matching
// the sender, defaulting to OtherIncome; outgoing transfers take the
// class of the rule matching the recipient, defaulting to Withdraw.
func Classify(transfer *models.Transfer, owner string, rules []*models.AddressRule) types.TransactionClass {
	fromRule := matchRule(rules, transfer.FromAddress, transfer.ContractAddress)
	toRule := matchRule(rules, transfer.ToAddress, transfer.ContractAddress)

	if models.SameAddress(transfer.ToAddress, owner) {
		if fromRule != nil {
			return fromRule.TransactionClass
		}
		return types.ClassOtherIncome
	}
	if toRule != nil {
		return toRule.TransactionClass
	}
	return types.ClassWithdraw
}

// matchRule returns the first rule matching the counterpart address or
// the transfer's contract address, or nil
func matchRule(rules []*models.AddressRule, address, contractAddress string) *models.AddressRule {
	for _, rule := range rules {
		if rule.WalletAddress != "" && models.SameAddress(rule.WalletAddress, address) {
			return rule
		}
		if rule.ContractAddress != "" && contractAddress != "" && models.SameAddress(rule.ContractAddress, contractAddress) {
			return rule
		}
	}
	return nil
}

package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/ledger-reconciler/internal/errors"
)

// handleListTransfers returns a wallet's stored transfers in block order
func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletOr404(w, r)
	if err != nil {
		return
	}

	transfers, err := s.transfers.ListByWallet(wallet.Address)
	if err != nil {
		respondError(w, errors.NewStorageError("list transfers", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":    wallet.Address,
		"count":     len(transfers),
		"transfers": transfers,
	})
}

// handleListGasRecords returns a wallet's gas records
func (s *Server) handleListGasRecords(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletOr404(w, r)
	if err != nil {
		return
	}

	records, err := s.gas.ListByWallet(wallet.Address)
	if err != nil {
		respondError(w, errors.NewStorageError("list gas records", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":  wallet.Address,
		"count":   len(records),
		"records": records,
	})
}

// handleListBalances returns a wallet's current balances sorted by value
func (s *Server) handleListBalances(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletOr404(w, r)
	if err != nil {
		return
	}

	balances, err := s.balances.ListByWallet(wallet.Address)
	if err != nil {
		respondError(w, errors.NewStorageError("list balances", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":   wallet.Address,
		"balances": balances,
	})
}

// handleMissingGasReport lists transaction hashes that still lack a gas
// record, usually left by skipped backfill items
func (s *Server) handleMissingGasReport(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletOr404(w, r)
	if err != nil {
		return
	}

	hashes, err := s.transfers.UniqueHashes(wallet.Address)
	if err != nil {
		respondError(w, errors.NewStorageError("list hashes", err))
		return
	}
	missing, err := s.gas.MissingHashes(hashes)
	if err != nil {
		respondError(w, errors.NewStorageError("find missing gas records", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":  wallet.Address,
		"total":   len(hashes),
		"missing": missing,
	})
}

// handleExportTransfers streams a wallet's transfers as CSV
func (s *Server) handleExportTransfers(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletOr404(w, r)
	if err != nil {
		return
	}

	transfers, err := s.transfers.ListByWallet(wallet.Address)
	if err != nil {
		respondError(w, errors.NewStorageError("list transfers", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", wallet.Address+"-transfers.csv"))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write([]string{
		"id", "blockNumber", "hash", "from", "to", "value", "asset",
		"category", "contractAddress", "timestamp", "transactionClass",
	})
	for _, transfer := range transfers {
		writer.Write([]string{
			transfer.ID,
			fmt.Sprintf("%d", transfer.BlockNumber),
			transfer.Hash,
			transfer.FromAddress,
			transfer.ToAddress,
			transfer.Value,
			transfer.Asset,
			transfer.Category,
			transfer.ContractAddress,
			transfer.Timestamp.Format(time.RFC3339),
			string(transfer.TransactionClass),
		})
	}
}

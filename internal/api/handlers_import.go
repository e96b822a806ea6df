package api

import (
	"net/http"

	"github.com/ledger-reconciler/internal/errors"
	"github.com/ledger-reconciler/internal/service"
	"github.com/ledger-reconciler/internal/types"
)

// importNetwork resolves the network query parameter, defaulting to the
// first configured network
func (s *Server) importNetwork(r *http.Request) (types.Network, error) {
	raw := r.URL.Query().Get("network")
	if raw == "" {
		if len(s.config.Networks) > 0 {
			return s.config.Networks[0], nil
		}
		return types.NetworkEthereum, nil
	}
	network := types.Network(raw)
	for _, enabled := range s.config.Networks {
		if network == enabled {
			return network, nil
		}
	}
	return "", errors.NewInvalidInputError("network", "not an enabled network: "+raw)
}

// StageSummary reports the final progress of one pipeline stage
type StageSummary struct {
	Stage types.ImportStage `json:"stage"`
	Items int               `json:"items"`
}

// ImportResponse is the body of a completed import call
type ImportResponse struct {
	Wallet  string         `json:"wallet"`
	Network types.Network  `json:"network"`
	Stages  []StageSummary `json:"stages"`
}

// stageCollector folds progress events into per-stage item counts
type stageCollector struct {
	stages []StageSummary
}

func (c *stageCollector) observe(p service.Progress) {
	if n := len(c.stages); n > 0 && c.stages[n-1].Stage == p.Stage {
		c.stages[n-1].Items = p.Current
		return
	}
	c.stages = append(c.stages, StageSummary{Stage: p.Stage, Items: p.Current})
}

// handleImportWallet runs the full import pipeline for one wallet
func (s *Server) handleImportWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletOr404(w, r)
	if err != nil {
		return
	}
	network, err := s.importNetwork(r)
	if err != nil {
		respondError(w, err)
		return
	}

	collector := &stageCollector{}
	if err := s.importService.ImportWallet(r.Context(), network, wallet.Address, collector.observe); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ImportResponse{
		Wallet:  wallet.Address,
		Network: network,
		Stages:  collector.stages,
	})
}

// BatchImportEntry is one wallet's outcome in a batch import
type BatchImportEntry struct {
	Wallet string `json:"wallet"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Stage  string `json:"stage,omitempty"`
}

// handleImportAll imports every tracked wallet, tolerating per-wallet
// failures
func (s *Server) handleImportAll(w http.ResponseWriter, r *http.Request) {
	network, err := s.importNetwork(r)
	if err != nil {
		respondError(w, err)
		return
	}

	results, err := s.importService.ImportAll(r.Context(), network, nil)
	if err != nil {
		respondError(w, err)
		return
	}

	entries := make([]BatchImportEntry, 0, len(results))
	failed := 0
	for _, result := range results {
		entry := BatchImportEntry{Wallet: result.Wallet, Status: "complete"}
		if result.Err != nil {
			failed++
			entry.Status = "failed"
			entry.Error = result.Err.Error()
			if _, stage, ok := errors.StageOf(result.Err); ok {
				entry.Stage = string(stage)
			}
		}
		entries = append(entries, entry)
	}

	status := http.StatusOK
	if failed == len(entries) && failed > 0 {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, map[string]interface{}{
		"network": network,
		"results": entries,
		"failed":  failed,
	})
}

// handleRefreshBalances refreshes a wallet's current balances across the
// enabled networks
func (s *Server) handleRefreshBalances(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletOr404(w, r)
	if err != nil {
		return
	}

	if err := s.balanceService.RefreshWallet(r.Context(), wallet.Address, s.config.Networks); err != nil {
		respondError(w, err)
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

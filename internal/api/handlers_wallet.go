package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ledger-reconciler/internal/errors"
	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/types"
)

// CreateWalletRequest is the body of POST /api/wallets
type CreateWalletRequest struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// UpdateWalletRequest is the body of PUT /api/wallets/{address}
type UpdateWalletRequest struct {
	Name string `json:"name"`
}

// handleCreateWallet registers a wallet for tracking
func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req CreateWalletRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if !types.IsValidAddress(req.Address) {
		respondError(w, errors.NewInvalidInputError("address", "must match 0x followed by 40 hex digits"))
		return
	}

	wallet := &models.Wallet{Address: req.Address, Name: req.Name}
	if err := s.wallets.Create(wallet); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, wallet)
}

// handleListWallets returns all tracked wallets
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.wallets.List()
	if err != nil {
		respondError(w, errors.NewStorageError("list wallets", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"wallets": wallets})
}

// handleGetWallet returns one wallet
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletOr404(w, r)
	if err != nil {
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

// handleUpdateWallet renames a wallet
func (s *Server) handleUpdateWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletOr404(w, r)
	if err != nil {
		return
	}

	var req UpdateWalletRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := s.wallets.UpdateName(wallet.Address, req.Name); err != nil {
		respondError(w, err)
		return
	}
	wallet.Name = req.Name
	respondJSON(w, http.StatusOK, wallet)
}

// handleDeleteWallet stops tracking a wallet. Its imported history is kept.
func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletOr404(w, r)
	if err != nil {
		return
	}
	if err := s.wallets.Delete(wallet.Address); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": wallet.Address})
}

// walletOr404 resolves the path wallet or writes a 404
func (s *Server) walletOr404(w http.ResponseWriter, r *http.Request) (*models.Wallet, error) {
	address := mux.Vars(r)["address"]
	wallet, err := s.wallets.Get(address)
	if err != nil {
		storageErr := errors.NewStorageError("get wallet", err)
		respondError(w, storageErr)
		return nil, storageErr
	}
	if wallet == nil {
		notFound := errors.NewNotFoundError("wallet", address)
		respondError(w, notFound)
		return nil, notFound
	}
	return wallet, nil
}

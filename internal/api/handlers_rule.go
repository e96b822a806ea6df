package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ledger-reconciler/internal/errors"
	"github.com/ledger-reconciler/internal/models"
)

// handleCreateRule adds a classification rule at the end of the match order
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.AddressRule
	if err := parseJSONBody(r, &rule); err != nil {
		respondError(w, err)
		return
	}
	rule.ID = ""
	if err := s.rules.Create(&rule); err != nil {
		respondError(w, errors.NewInvalidInputError("rule", err.Error()))
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

// handleListRules returns all rules in match order
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.List()
	if err != nil {
		respondError(w, errors.NewStorageError("list rules", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// handleGetRule returns one rule
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rule, err := s.rules.Get(id)
	if err != nil {
		respondError(w, errors.NewStorageError("get rule", err))
		return
	}
	if rule == nil {
		respondError(w, errors.NewNotFoundError("rule", id))
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// handleUpdateRule replaces a rule in place, keeping its match position
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := s.rules.Get(id)
	if err != nil {
		respondError(w, errors.NewStorageError("get rule", err))
		return
	}
	if existing == nil {
		respondError(w, errors.NewNotFoundError("rule", id))
		return
	}

	var rule models.AddressRule
	if err := parseJSONBody(r, &rule); err != nil {
		respondError(w, err)
		return
	}
	rule.ID = id
	if err := s.rules.Update(&rule); err != nil {
		respondError(w, errors.NewInvalidInputError("rule", err.Error()))
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// handleDeleteRule removes a rule. Existing classifications are kept.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.rules.Delete(id); err != nil {
		respondError(w, errors.NewStorageError("delete rule", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

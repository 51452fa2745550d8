package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/types"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// AddressAnalysisResponse is the body of a successful address analysis.
// Response holds the result as a JSON string for clients that parse it themselves.
type AddressAnalysisResponse struct {
	Response string               `json:"response"`
	Address  string               `json:"address"`
	Analysis types.AnalysisResult `json:"analysis"`
}

// handleListCategories handles GET /api/categories
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"categories": s.analysisService.Catalog().Categories(),
	})
}

// handleGetCategory handles GET /api/categories/{id}
func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Category id must be an integer", nil)
		return
	}

	category, ok := s.analysisService.Catalog().Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Category Not Found", map[string]interface{}{
			"id": id,
		})
		return
	}

	respondJSON(w, http.StatusOK, category)
}

// handleAddressAnalysis handles GET|POST /api/address-analysis. The address
// comes from the query string on GET and from the JSON body on POST.
func (s *Server) handleAddressAnalysis(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if r.Method == http.MethodPost {
		var req struct {
			Address string `json:"address"`
		}
		if err := parseJSONBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
			return
		}
		if req.Address != "" {
			address = req.Address
		}
	}

	result, err := s.analysisService.Analyze(r.Context(), address)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	payload, err := json.Marshal(struct {
		Category    int    `json:"category"`
		Explanation string `json:"explanation"`
	}{result.Category, result.Explanation})
	if err != nil {
		s.respondServiceError(w, r, apperrors.NewInternalError("failed to encode analysis", err))
		return
	}

	respondJSON(w, http.StatusOK, AddressAnalysisResponse{
		Response: string(payload),
		Address:  address,
		Analysis: result,
	})
}

// handleAnalysisHistory handles GET /api/addresses/{address}/analyses
func (s *Server) handleAnalysisHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondServiceError(w, r, apperrors.NewServiceUnavailableError("analysis history"))
		return
	}

	address := mux.Vars(r)["address"]
	if !types.IsValidAddress(address) {
		s.respondServiceError(w, r, apperrors.NewInvalidAddressError(address))
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := s.history.ListByAddress(r.Context(), address, limit)
	if err != nil {
		s.respondServiceError(w, r, apperrors.NewInternalError("failed to load analysis history", err))
		return
	}
	if records == nil {
		records = []*types.AnalysisRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":  types.NormalizeAddress(address),
		"analyses": records,
	})
}

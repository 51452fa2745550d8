package api

import (
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/address-analyzer/internal/errors"
)

// claimsEnabled writes a 503 when the server runs without the claim tracker
func (s *Server) claimsEnabled(w http.ResponseWriter, r *http.Request) bool {
	if s.claimService == nil {
		s.respondServiceError(w, r, apperrors.NewServiceUnavailableError("claim tracker"))
		return false
	}
	return true
}

// handleStartClaim handles POST /api/claims/{address}. Repeating it resumes
// the existing countdown.
func (s *Server) handleStartClaim(w http.ResponseWriter, r *http.Request) {
	if !s.claimsEnabled(w, r) {
		return
	}

	status, err := s.claimService.Start(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// handleClaimStatus handles GET /api/claims/{address}
func (s *Server) handleClaimStatus(w http.ResponseWriter, r *http.Request) {
	if !s.claimsEnabled(w, r) {
		return
	}

	status, err := s.claimService.Status(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// handleResetClaim handles DELETE /api/claims/{address}
func (s *Server) handleResetClaim(w http.ResponseWriter, r *http.Request) {
	if !s.claimsEnabled(w, r) {
		return
	}

	if err := s.claimService.Reset(r.Context(), mux.Vars(r)["address"]); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"net/http"

	"github.com/address-analyzer/internal/types"
)

// handleChat handles POST /api/chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message interface{}         `json:"message"`
		History []types.ChatMessage `json:"history"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	message, ok := req.Message.(string)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Message is required and must be a string", map[string]interface{}{
			"parameter": "message",
		})
		return
	}

	reply, err := s.chatService.Chat(r.Context(), message, req.History)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, reply)
}

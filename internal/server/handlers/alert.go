// internal/server/handlers/alert.go

package handlers

import (
	"encoding/json"
	"net/http"

	"airwatch/internal/service/interest"
)

// AlertHandler handles alert-subscription HTTP requests
type AlertHandler struct {
	aggregator *interest.Aggregator
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(aggregator *interest.Aggregator) *AlertHandler {
	return &AlertHandler{
		aggregator: aggregator,
	}
}

// RegisterLocations registers a batch of alert subscriptions for one user
func (h *AlertHandler) RegisterLocations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string                        `json:"user_id"`
		Locations []interest.AlertLocationInput `json:"locations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing user ID", nil)
		return
	}
	if len(req.Locations) == 0 {
		respondWithError(w, http.StatusBadRequest, "No locations provided", nil)
		return
	}

	createdIDs, err := h.aggregator.RegisterAlertLocations(r.Context(), req.UserID, req.Locations)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to register alert locations", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":          true,
		"created_ids": createdIDs,
	})
}

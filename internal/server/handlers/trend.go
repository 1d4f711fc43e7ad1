// internal/server/handlers/trend.go

package handlers

import (
	"net/http"
	"strconv"

	"airwatch/internal/service/bundle"
)

// TrendHandler handles trend-related HTTP requests
type TrendHandler struct {
	bundles *bundle.Manager
}

// NewTrendHandler creates a new trend handler
func NewTrendHandler(bundles *bundle.Manager) *TrendHandler {
	return &TrendHandler{
		bundles: bundles,
	}
}

// GetTrendSeries returns daily aggregates near a specific location
func (h *TrendHandler) GetTrendSeries(w http.ResponseWriter, r *http.Request) {
	lat, lng, ok := parseCoordinates(w, r)
	if !ok {
		return
	}

	days := 0
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid days", err)
			return
		}
		days = parsed
	}

	resp, err := h.bundles.TrendSeries(r.Context(), lat, lng, days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get trend series", err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// GetTrendLocations returns the deduplicated directory of locations with
// trend data
func (h *TrendHandler) GetTrendLocations(w http.ResponseWriter, r *http.Request) {
	days := 0
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid days", err)
			return
		}
		days = parsed
	}

	resp, err := h.bundles.TrendDirectory(r.Context(), days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get trend locations", err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

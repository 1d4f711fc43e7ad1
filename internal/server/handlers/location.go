// internal/server/handlers/location.go

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"airwatch/internal/service/bundle"
	"airwatch/internal/service/interest"
)

// LocationHandler handles location bundle and interest-signal HTTP requests
type LocationHandler struct {
	bundles    *bundle.Manager
	aggregator *interest.Aggregator
	scorer     *interest.Scorer
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(bundles *bundle.Manager, aggregator *interest.Aggregator, scorer *interest.Scorer) *LocationHandler {
	return &LocationHandler{
		bundles:    bundles,
		aggregator: aggregator,
		scorer:     scorer,
	}
}

// GetBundle returns the full multi-category answer for one location
func (h *LocationHandler) GetBundle(w http.ResponseWriter, r *http.Request) {
	lat, lng, ok := parseCoordinates(w, r)
	if !ok {
		return
	}

	name := r.URL.Query().Get("name")

	resp, err := h.bundles.GetLocationBundle(r.Context(), lat, lng, name)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get location bundle", err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// RegisterSearch records one search interest signal for a location
func (h *LocationHandler) RegisterSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if !validCoordinates(req.Latitude, req.Longitude) {
		respondWithError(w, http.StatusBadRequest, "Invalid coordinates", nil)
		return
	}

	if err := h.aggregator.RegisterSearch(r.Context(), req.Name, req.Latitude, req.Longitude); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to register search", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GetPriorityLocations returns the ranked priority list
func (h *LocationHandler) GetPriorityLocations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	ranked, err := h.scorer.Rank(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to rank locations", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"locations": ranked,
		"count":     len(ranked),
	})
}

// parseCoordinates reads and validates lat/lng query parameters, writing
// the error response itself on failure
func parseCoordinates(w http.ResponseWriter, r *http.Request) (lat, lng float64, ok bool) {
	latStr := r.URL.Query().Get("lat")
	lngStr := r.URL.Query().Get("lng")

	if latStr == "" || lngStr == "" {
		respondWithError(w, http.StatusBadRequest, "Missing location parameters", nil)
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid latitude", err)
		return 0, 0, false
	}

	lng, err = strconv.ParseFloat(lngStr, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid longitude", err)
		return 0, 0, false
	}

	if !validCoordinates(lat, lng) {
		respondWithError(w, http.StatusBadRequest, "Invalid coordinates", nil)
		return 0, 0, false
	}

	return lat, lng, true
}

// validCoordinates rejects out-of-range pairs and the (0,0) null island
// sentinel before anything reaches the core
func validCoordinates(lat, lng float64) bool {
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	response := map[string]string{"error": message}

	jsonResponse, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonResponse)
}

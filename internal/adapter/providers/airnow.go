// internal/adapter/providers/airnow.go

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"airwatch/internal/config"
	"airwatch/internal/domain/collection"
	"airwatch/internal/domain/location"
)

// airNowExpectedParams is the set of pollutants a complete AirNow
// observation reports; coverage against it yields the quality score.
var airNowExpectedParams = []string{"PM2.5", "PM10", "O3"}

// AirNowBackend collects current conditions from EPA AirNow ground
// stations. North America only.
type AirNowBackend struct {
	name    string
	baseURL string
	apiKey  string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewAirNowBackend(client *http.Client, cfg config.ProvidersConfig) *AirNowBackend {
	return &AirNowBackend{
		name:    "airnow",
		baseURL: cfg.AirNowURL,
		apiKey:  cfg.AirNowAPIKey,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: cfg.RetryInterval,
				MaxInterval:     cfg.MaxRetryInterval,
			},
		},
		circuit: newBreaker("airnow"),
	}
}

func (b *AirNowBackend) Name() string {
	return b.name
}

func (b *AirNowBackend) Collect(ctx context.Context, loc location.Location, category collection.Category) (collection.Result, error) {
	if category != collection.CategoryCurrent {
		return collection.Result{}, fmt.Errorf("airnow supports current conditions only, got %q", category)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
		values.Set("distance", "50")
		values.Set("format", "application/json")
		values.Set("API_KEY", b.apiKey)

		u := fmt.Sprintf("%s?%s", b.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, b.httpCfg, b.circuit, buildRequest)
	if err != nil {
		return collection.Result{}, fmt.Errorf("airnow request: %w", err)
	}
	defer resp.Body.Close()

	var observations []struct {
		DateObserved  string  `json:"DateObserved"`
		HourObserved  int     `json:"HourObserved"`
		ParameterName string  `json:"ParameterName"`
		AQI           int     `json:"AQI"`
		Latitude      float64 `json:"Latitude"`
		Longitude     float64 `json:"Longitude"`
		ReportingArea string  `json:"ReportingArea"`
		Category      struct {
			Number int    `json:"Number"`
			Name   string `json:"Name"`
		} `json:"Category"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&observations); err != nil {
		return collection.Result{}, fmt.Errorf("decoding airnow response: %w", err)
	}

	type reading struct {
		Pollutant    string `json:"pollutant"`
		AQI          int    `json:"aqi"`
		CategoryName string `json:"category_name"`
	}

	payload := struct {
		Source        string    `json:"source"`
		ReportingArea string    `json:"reporting_area,omitempty"`
		OverallAQI    int       `json:"overall_aqi"`
		Dominant      string    `json:"dominant_pollutant,omitempty"`
		Readings      []reading `json:"readings"`
		ObservedAt    time.Time `json:"observed_at"`
	}{
		Source:     b.name,
		ObservedAt: time.Now().UTC(),
	}

	seen := make(map[string]bool, len(observations))
	for _, obs := range observations {
		payload.Readings = append(payload.Readings, reading{
			Pollutant:    obs.ParameterName,
			AQI:          obs.AQI,
			CategoryName: obs.Category.Name,
		})
		seen[obs.ParameterName] = true
		if obs.AQI > payload.OverallAQI {
			payload.OverallAQI = obs.AQI
			payload.Dominant = obs.ParameterName
		}
		if payload.ReportingArea == "" {
			payload.ReportingArea = obs.ReportingArea
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return collection.Result{}, fmt.Errorf("encoding airnow payload: %w", err)
	}

	return collection.Result{
		Payload:      data,
		QualityScore: coverageScore(seen, airNowExpectedParams),
	}, nil
}

// coverageScore reports the fraction of expected pollutants present.
func coverageScore(seen map[string]bool, expected []string) float64 {
	if len(expected) == 0 {
		return 0
	}

	var have int
	for _, p := range expected {
		if seen[p] {
			have++
		}
	}
	return float64(have) / float64(len(expected))
}

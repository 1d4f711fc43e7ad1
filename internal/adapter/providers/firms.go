// internal/adapter/providers/firms.go

package providers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"airwatch/internal/config"
	"airwatch/internal/domain/collection"
	"airwatch/internal/domain/location"
)

const (
	fireSearchRadiusKm = 100.0

	// NASA-recommended detection filters.
	minFireConfidence = 75
	minFireBrightness = 300.0
	minFireFRP        = 10.0
)

// fireDetection is one satellite fire detection near the requested location.
type fireDetection struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Brightness float64 `json:"brightness"`
	FRP        float64 `json:"frp"`
	Confidence int     `json:"confidence"`
	Satellite  string  `json:"satellite"`
	ScanDate   string  `json:"scan_date"`
	ScanTime   string  `json:"scan_time"`
	DistanceKm float64 `json:"distance_km"`
	SmokeRisk  string  `json:"smoke_risk"`
}

// FIRMSBackend collects active fire detections from the NASA FIRMS area
// API. The upstream speaks CSV; the stored payload is normalized JSON.
type FIRMSBackend struct {
	name    string
	baseURL string
	apiKey  string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewFIRMSBackend(client *http.Client, cfg config.ProvidersConfig) *FIRMSBackend {
	return &FIRMSBackend{
		name:    "firms",
		baseURL: cfg.FirmsURL,
		apiKey:  cfg.FirmsAPIKey,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: cfg.RetryInterval,
				MaxInterval:     cfg.MaxRetryInterval,
			},
		},
		circuit: newBreaker("firms"),
	}
}

func (b *FIRMSBackend) Name() string {
	return b.name
}

func (b *FIRMSBackend) Collect(ctx context.Context, loc location.Location, category collection.Category) (collection.Result, error) {
	if category != collection.CategoryFire {
		return collection.Result{}, fmt.Errorf("firms supports fire detections only, got %q", category)
	}

	latOffset := fireSearchRadiusKm / 111.32
	lngOffset := fireSearchRadiusKm / (111.32 * math.Cos(loc.Latitude*math.Pi/180))

	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/%s/MODIS_NRT/%f,%f,%f,%f/1",
			b.baseURL, b.apiKey,
			loc.Longitude-lngOffset, loc.Latitude-latOffset,
			loc.Longitude+lngOffset, loc.Latitude+latOffset,
		)
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, b.httpCfg, b.circuit, buildRequest)
	if err != nil {
		return collection.Result{}, fmt.Errorf("firms request: %w", err)
	}
	defer resp.Body.Close()

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return collection.Result{}, fmt.Errorf("reading firms csv: %w", err)
	}

	var detections []fireDetection
	var parsed, kept int
	for i, row := range rows {
		if i == 0 || len(row) < 9 {
			// Header or truncated row.
			continue
		}
		parsed++

		fireLat, latErr := strconv.ParseFloat(row[0], 64)
		fireLng, lngErr := strconv.ParseFloat(row[1], 64)
		if latErr != nil || lngErr != nil {
			continue
		}

		brightness, _ := strconv.ParseFloat(row[2], 64)
		frp, _ := strconv.ParseFloat(row[4], 64)
		confidence, _ := strconv.Atoi(row[8])

		distance := location.Distance(loc.Latitude, loc.Longitude, fireLat, fireLng)

		if confidence < minFireConfidence || brightness < minFireBrightness ||
			frp < minFireFRP || distance > fireSearchRadiusKm {
			continue
		}
		kept++

		detections = append(detections, fireDetection{
			Latitude:   fireLat,
			Longitude:  fireLng,
			Brightness: brightness,
			FRP:        frp,
			Confidence: confidence,
			ScanDate:   row[5],
			ScanTime:   row[6],
			Satellite:  row[7],
			DistanceKm: math.Round(distance*100) / 100,
			SmokeRisk:  smokeRisk(distance, frp),
		})
	}

	payload := struct {
		Source      string          `json:"source"`
		TotalFires  int             `json:"total_fires"`
		Detections  []fireDetection `json:"detections"`
		CollectedAt time.Time       `json:"collected_at"`
	}{
		Source:      b.name,
		TotalFires:  len(detections),
		Detections:  detections,
		CollectedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return collection.Result{}, fmt.Errorf("encoding firms payload: %w", err)
	}

	// Quality reflects how much of the raw feed survived filtering; an
	// empty feed is a clean zero-fire answer, not missing data.
	quality := 1.0
	if parsed > 0 {
		quality = float64(kept) / float64(parsed)
	}

	return collection.Result{Payload: data, QualityScore: quality}, nil
}

// smokeRisk grades a detection by distance and fire radiative power.
func smokeRisk(distanceKm, frp float64) string {
	switch {
	case distanceKm <= 25 && frp >= 50:
		return "HIGH"
	case distanceKm <= 50 && frp >= 25:
		return "MODERATE"
	case distanceKm <= 75:
		return "LOW"
	default:
		return "MINIMAL"
	}
}

// internal/adapter/providers/providers_test.go

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airwatch/internal/config"
	"airwatch/internal/domain/collection"
	"airwatch/internal/domain/location"
)

func testProviderConfig(serverURL string) config.ProvidersConfig {
	return config.ProvidersConfig{
		AirNowURL:        serverURL,
		AirNowAPIKey:     "test-key",
		OpenMeteoURL:     serverURL,
		FirmsURL:         serverURL,
		FirmsAPIKey:      "test-key",
		RequestTimeout:   5 * time.Second,
		MaxRetries:       1,
		RetryInterval:    10 * time.Millisecond,
		MaxRetryInterval: 50 * time.Millisecond,
	}
}

func TestAirNowBackend(t *testing.T) {
	ctx := context.Background()
	loc := location.Location{Latitude: 39.78, Longitude: -89.65}

	t.Run("parses-observations", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.URL.Query().Get("API_KEY"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[
				{"ParameterName":"PM2.5","AQI":62,"ReportingArea":"Springfield","Category":{"Number":2,"Name":"Moderate"}},
				{"ParameterName":"O3","AQI":41,"ReportingArea":"Springfield","Category":{"Number":1,"Name":"Good"}}
			]`))
		}))
		defer srv.Close()

		b := NewAirNowBackend(srv.Client(), testProviderConfig(srv.URL))
		result, err := b.Collect(ctx, loc, collection.CategoryCurrent)
		require.NoError(t, err)

		var payload struct {
			OverallAQI    int    `json:"overall_aqi"`
			Dominant      string `json:"dominant_pollutant"`
			ReportingArea string `json:"reporting_area"`
		}
		require.NoError(t, json.Unmarshal(result.Payload, &payload))
		assert.Equal(t, 62, payload.OverallAQI)
		assert.Equal(t, "PM2.5", payload.Dominant)
		assert.Equal(t, "Springfield", payload.ReportingArea)

		// Two of three expected pollutants reported.
		assert.InDelta(t, 2.0/3.0, result.QualityScore, 0.001)
	})

	t.Run("rejects-non-current-category", func(t *testing.T) {
		b := NewAirNowBackend(http.DefaultClient, testProviderConfig("http://unused"))
		_, err := b.Collect(ctx, loc, collection.CategoryFire)
		assert.Error(t, err)
	})

	t.Run("retries-server-errors", func(t *testing.T) {
		var hits int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt64(&hits, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`[]`))
		}))
		defer srv.Close()

		b := NewAirNowBackend(srv.Client(), testProviderConfig(srv.URL))
		_, err := b.Collect(ctx, loc, collection.CategoryCurrent)
		require.NoError(t, err)
		assert.Equal(t, int64(2), atomic.LoadInt64(&hits))
	})
}

func TestOpenMeteoBackend(t *testing.T) {
	ctx := context.Background()
	loc := location.Location{Latitude: 48.85, Longitude: 2.35}

	t.Run("parses-current", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"current":{"time":"2025-06-15T12:00","us_aqi":57,"pm2_5":14.2,"pm10":22.1,"ozone":80.0,"nitrogen_dioxide":18.3,"carbon_monoxide":220.0,"sulphur_dioxide":2.1}}`))
		}))
		defer srv.Close()

		b := NewOpenMeteoBackend(srv.Client(), testProviderConfig(srv.URL))
		result, err := b.Collect(ctx, loc, collection.CategoryCurrent)
		require.NoError(t, err)

		var payload struct {
			OverallAQI *float64           `json:"overall_aqi"`
			Readings   map[string]float64 `json:"readings"`
		}
		require.NoError(t, json.Unmarshal(result.Payload, &payload))
		require.NotNil(t, payload.OverallAQI)
		assert.Equal(t, 57.0, *payload.OverallAQI)
		assert.Len(t, payload.Readings, 6)
		assert.Equal(t, 1.0, result.QualityScore)
	})

	t.Run("partial-readings-lower-quality", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"current":{"time":"2025-06-15T12:00","us_aqi":57,"pm2_5":14.2,"pm10":null,"ozone":null,"nitrogen_dioxide":null,"carbon_monoxide":null,"sulphur_dioxide":null}}`))
		}))
		defer srv.Close()

		b := NewOpenMeteoBackend(srv.Client(), testProviderConfig(srv.URL))
		result, err := b.Collect(ctx, loc, collection.CategoryCurrent)
		require.NoError(t, err)
		assert.InDelta(t, 1.0/6.0, result.QualityScore, 0.001)
	})

	t.Run("aggregates-forecast-by-day", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "5", r.URL.Query().Get("forecast_days"))
			w.Write([]byte(`{"hourly":{
				"time":["2025-06-15T00:00","2025-06-15T01:00","2025-06-16T00:00"],
				"us_aqi":[40,60,30],
				"pm2_5":[10.0,12.0,8.0]
			}}`))
		}))
		defer srv.Close()

		b := NewOpenMeteoBackend(srv.Client(), testProviderConfig(srv.URL))
		result, err := b.Collect(ctx, loc, collection.CategoryForecast)
		require.NoError(t, err)

		var payload struct {
			Days []struct {
				Date   string  `json:"date"`
				MaxAQI float64 `json:"max_aqi"`
				AvgAQI float64 `json:"avg_aqi"`
			} `json:"days"`
		}
		require.NoError(t, json.Unmarshal(result.Payload, &payload))
		require.Len(t, payload.Days, 2)
		assert.Equal(t, "2025-06-15", payload.Days[0].Date)
		assert.Equal(t, 60.0, payload.Days[0].MaxAQI)
		assert.InDelta(t, 50.0, payload.Days[0].AvgAQI, 0.001)
		assert.Equal(t, 30.0, payload.Days[1].MaxAQI)
	})

	t.Run("rejects-fire-category", func(t *testing.T) {
		b := NewOpenMeteoBackend(http.DefaultClient, testProviderConfig("http://unused"))
		_, err := b.Collect(ctx, loc, collection.CategoryFire)
		assert.Error(t, err)
	})
}

func TestFIRMSBackend(t *testing.T) {
	ctx := context.Background()
	loc := location.Location{Latitude: 39.78, Longitude: -89.65}

	t.Run("filters-detections", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// One strong detection nearby, one below the confidence
			// floor, one below the 10 MW FRP floor, one too far away.
			w.Write([]byte("latitude,longitude,brightness,scan,frp,acq_date,acq_time,satellite,confidence,version\n" +
				"39.80,-89.60,330.5,1.1,55.0,2025-06-15,1830,Terra,90,6.03\n" +
				"39.81,-89.61,330.5,1.1,55.0,2025-06-15,1830,Terra,40,6.03\n" +
				"39.80,-89.61,330.5,1.1,9.5,2025-06-15,1830,Terra,90,6.03\n" +
				"45.00,-89.65,330.5,1.1,55.0,2025-06-15,1830,Terra,90,6.03\n"))
		}))
		defer srv.Close()

		b := NewFIRMSBackend(srv.Client(), testProviderConfig(srv.URL))
		result, err := b.Collect(ctx, loc, collection.CategoryFire)
		require.NoError(t, err)

		var payload struct {
			TotalFires int `json:"total_fires"`
			Detections []struct {
				Confidence int     `json:"confidence"`
				SmokeRisk  string  `json:"smoke_risk"`
				DistanceKm float64 `json:"distance_km"`
			} `json:"detections"`
		}
		require.NoError(t, json.Unmarshal(result.Payload, &payload))
		require.Equal(t, 1, payload.TotalFires)
		assert.Equal(t, 90, payload.Detections[0].Confidence)
		assert.Equal(t, "HIGH", payload.Detections[0].SmokeRisk)
		assert.InDelta(t, 1.0/4.0, result.QualityScore, 0.001)
	})

	t.Run("empty-feed-is-clean-zero", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("latitude,longitude,brightness,scan,frp,acq_date,acq_time,satellite,confidence,version\n"))
		}))
		defer srv.Close()

		b := NewFIRMSBackend(srv.Client(), testProviderConfig(srv.URL))
		result, err := b.Collect(ctx, loc, collection.CategoryFire)
		require.NoError(t, err)

		var payload struct {
			TotalFires int `json:"total_fires"`
		}
		require.NoError(t, json.Unmarshal(result.Payload, &payload))
		assert.Equal(t, 0, payload.TotalFires)
		assert.Equal(t, 1.0, result.QualityScore)
	})

	t.Run("rejects-current-category", func(t *testing.T) {
		b := NewFIRMSBackend(http.DefaultClient, testProviderConfig("http://unused"))
		_, err := b.Collect(ctx, loc, collection.CategoryCurrent)
		assert.Error(t, err)
	})
}

func TestSmokeRisk(t *testing.T) {
	assert.Equal(t, "HIGH", smokeRisk(20, 60))
	assert.Equal(t, "MODERATE", smokeRisk(40, 30))
	assert.Equal(t, "LOW", smokeRisk(70, 5))
	assert.Equal(t, "MINIMAL", smokeRisk(90, 5))
}

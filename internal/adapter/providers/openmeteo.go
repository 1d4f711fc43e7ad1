// internal/adapter/providers/openmeteo.go

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

// OpenMeteoBackend collects current air quality and multi-day forecasts
// from the Open-Meteo air quality model. Global coverage, roughly 3km grid.
type OpenMeteoBackend struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoBackend(client *http.Client, cfg config.ProvidersConfig) *OpenMeteoBackend {
	return &OpenMeteoBackend{
		name:    "openmeteo",
		baseURL: cfg.OpenMeteoURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: cfg.RetryInterval,
				MaxInterval:     cfg.MaxRetryInterval,
			},
		},
		circuit: newBreaker("openmeteo"),
	}
}

func (b *OpenMeteoBackend) Name() string {
	return b.name
}

func (b *OpenMeteoBackend) Collect(ctx context.Context, loc location.Location, category collection.Category) (collection.Result, error) {
	switch category {
	case collection.CategoryCurrent:
		return b.collectCurrent(ctx, loc)
	case collection.CategoryForecast:
		return b.collectForecast(ctx, loc)
	default:
		return collection.Result{}, fmt.Errorf("openmeteo does not serve category %q", category)
	}
}

func (b *OpenMeteoBackend) collectCurrent(ctx context.Context, loc location.Location) (collection.Result, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
		values.Set("current", "us_aqi,pm2_5,pm10,ozone,nitrogen_dioxide,carbon_monoxide,sulphur_dioxide")
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", b.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, b.httpCfg, b.circuit, buildRequest)
	if err != nil {
		return collection.Result{}, fmt.Errorf("openmeteo current request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Current struct {
			Time            string   `json:"time"`
			USAQI           *float64 `json:"us_aqi"`
			PM25            *float64 `json:"pm2_5"`
			PM10            *float64 `json:"pm10"`
			Ozone           *float64 `json:"ozone"`
			NitrogenDioxide *float64 `json:"nitrogen_dioxide"`
			CarbonMonoxide  *float64 `json:"carbon_monoxide"`
			SulphurDioxide  *float64 `json:"sulphur_dioxide"`
		} `json:"current"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return collection.Result{}, fmt.Errorf("decoding openmeteo current response: %w", err)
	}

	pollutants := map[string]*float64{
		"pm2_5":            body.Current.PM25,
		"pm10":             body.Current.PM10,
		"ozone":            body.Current.Ozone,
		"nitrogen_dioxide": body.Current.NitrogenDioxide,
		"carbon_monoxide":  body.Current.CarbonMonoxide,
		"sulphur_dioxide":  body.Current.SulphurDioxide,
	}

	readings := make(map[string]float64, len(pollutants))
	for name, value := range pollutants {
		if value != nil {
			readings[name] = *value
		}
	}

	payload := struct {
		Source     string             `json:"source"`
		OverallAQI *float64           `json:"overall_aqi,omitempty"`
		Readings   map[string]float64 `json:"readings"`
		ObservedAt string             `json:"observed_at"`
	}{
		Source:     b.name,
		OverallAQI: body.Current.USAQI,
		Readings:   readings,
		ObservedAt: observedAt(body.Current.Time),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return collection.Result{}, fmt.Errorf("encoding openmeteo payload: %w", err)
	}

	return collection.Result{
		Payload:      data,
		QualityScore: float64(len(readings)) / float64(len(pollutants)),
	}, nil
}

func (b *OpenMeteoBackend) collectForecast(ctx context.Context, loc location.Location) (collection.Result, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
		values.Set("hourly", "us_aqi,pm2_5,pm10,ozone")
		values.Set("forecast_days", "5")
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", b.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, b.httpCfg, b.circuit, buildRequest)
	if err != nil {
		return collection.Result{}, fmt.Errorf("openmeteo forecast request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Hourly struct {
			Time  []string   `json:"time"`
			USAQI []*float64 `json:"us_aqi"`
			PM25  []*float64 `json:"pm2_5"`
		} `json:"hourly"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return collection.Result{}, fmt.Errorf("decoding openmeteo forecast response: %w", err)
	}

	type day struct {
		Date   string  `json:"date"`
		MaxAQI float64 `json:"max_aqi"`
		AvgAQI float64 `json:"avg_aqi"`
		Hours  int     `json:"hours"`
	}

	// Roll the hourly series up into one entry per UTC day.
	byDate := make(map[string]*day)
	var order []string
	var usableHours int
	for i, ts := range body.Hourly.Time {
		if i >= len(body.Hourly.USAQI) || body.Hourly.USAQI[i] == nil {
			continue
		}
		usableHours++

		date := ts
		if len(ts) >= 10 {
			date = ts[:10]
		}
		d, ok := byDate[date]
		if !ok {
			d = &day{Date: date}
			byDate[date] = d
			order = append(order, date)
		}

		aqi := *body.Hourly.USAQI[i]
		if aqi > d.MaxAQI {
			d.MaxAQI = aqi
		}
		d.AvgAQI = (d.AvgAQI*float64(d.Hours) + aqi) / float64(d.Hours+1)
		d.Hours++
	}

	days := make([]day, 0, len(order))
	for _, date := range order {
		days = append(days, *byDate[date])
	}

	payload := struct {
		Source string `json:"source"`
		Days   []day  `json:"days"`
	}{Source: b.name, Days: days}

	data, err := json.Marshal(payload)
	if err != nil {
		return collection.Result{}, fmt.Errorf("encoding openmeteo forecast payload: %w", err)
	}

	var quality float64
	if len(body.Hourly.Time) > 0 {
		quality = float64(usableHours) / float64(len(body.Hourly.Time))
	}

	return collection.Result{Payload: data, QualityScore: quality}, nil
}

// observedAt normalizes Open-Meteo's minute-resolution timestamps, which
// omit the zone suffix, to RFC3339 UTC.
func observedAt(raw string) string {
	for _, layout := range []string{"2006-01-02T15:04", time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

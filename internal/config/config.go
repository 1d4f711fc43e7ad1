// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Collection  CollectionConfig
	Cache       CacheConfig
	Geo         GeoConfig
	Providers   ProvidersConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// CollectionConfig holds collection scheduling configuration
type CollectionConfig struct {
	BaseInterval     time.Duration
	MinAlertInterval time.Duration
	BatchInterval    time.Duration
	BatchLimit       int
	MaxConcurrent    int
	CollectTimeout   time.Duration
	EventsTopic      string
}

// CacheConfig holds tiered cache configuration
type CacheConfig struct {
	BundleTTL     time.Duration
	TrendTTL      time.Duration
	DirectoryTTL  time.Duration
	SweepInterval time.Duration
}

// GeoConfig holds geospatial deduplication configuration
type GeoConfig struct {
	LookupRadiusKm float64
	GroupRadiusKm  float64
}

// ProvidersConfig holds collector backend configuration
type ProvidersConfig struct {
	AirNowURL        string
	AirNowAPIKey     string
	OpenMeteoURL     string
	FirmsURL         string
	FirmsAPIKey      string
	RequestTimeout   time.Duration
	MaxRetries       int
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "airwatch"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Collection: CollectionConfig{
			BaseInterval:     getEnvAsDuration("COLLECTION_BASE_INTERVAL", 1*time.Hour),
			MinAlertInterval: getEnvAsDuration("COLLECTION_MIN_ALERT_INTERVAL", 30*time.Minute),
			BatchInterval:    getEnvAsDuration("COLLECTION_BATCH_INTERVAL", 15*time.Minute),
			BatchLimit:       getEnvAsInt("COLLECTION_BATCH_LIMIT", 100),
			MaxConcurrent:    getEnvAsInt("COLLECTION_MAX_CONCURRENT", 10),
			CollectTimeout:   getEnvAsDuration("COLLECTION_TIMEOUT", 60*time.Second),
			EventsTopic:      getEnv("COLLECTION_EVENTS_TOPIC", "collection"),
		},
		Cache: CacheConfig{
			BundleTTL:     getEnvAsDuration("CACHE_BUNDLE_TTL", 10*time.Minute),
			TrendTTL:      getEnvAsDuration("CACHE_TREND_TTL", 30*time.Minute),
			DirectoryTTL:  getEnvAsDuration("CACHE_DIRECTORY_TTL", 15*time.Minute),
			SweepInterval: getEnvAsDuration("CACHE_SWEEP_INTERVAL", 5*time.Minute),
		},
		Geo: GeoConfig{
			LookupRadiusKm: getEnvAsFloat("GEO_LOOKUP_RADIUS_KM", 10.0),
			GroupRadiusKm:  getEnvAsFloat("GEO_GROUP_RADIUS_KM", 5.0),
		},
		Providers: ProvidersConfig{
			AirNowURL:        getEnv("PROVIDER_AIRNOW_URL", "https://www.airnowapi.org/aq/observation/latLong/current"),
			AirNowAPIKey:     getEnv("PROVIDER_AIRNOW_API_KEY", ""),
			OpenMeteoURL:     getEnv("PROVIDER_OPENMETEO_URL", "https://air-quality-api.open-meteo.com/v1/air-quality"),
			FirmsURL:         getEnv("PROVIDER_FIRMS_URL", "https://firms.modaps.eosdis.nasa.gov/api/area/csv"),
			FirmsAPIKey:      getEnv("PROVIDER_FIRMS_API_KEY", ""),
			RequestTimeout:   getEnvAsDuration("PROVIDER_REQUEST_TIMEOUT", 15*time.Second),
			MaxRetries:       getEnvAsInt("PROVIDER_MAX_RETRIES", 2),
			RetryInterval:    getEnvAsDuration("PROVIDER_RETRY_INTERVAL", 500*time.Millisecond),
			MaxRetryInterval: getEnvAsDuration("PROVIDER_MAX_RETRY_INTERVAL", 5*time.Second),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Collection.BaseInterval <= 0 {
		return fmt.Errorf("collection base interval must be positive")
	}
	if config.Collection.MinAlertInterval <= 0 {
		return fmt.Errorf("collection minimum alert interval must be positive")
	}
	if config.Geo.LookupRadiusKm <= 0 || config.Geo.GroupRadiusKm <= 0 {
		return fmt.Errorf("geo radii must be positive")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}

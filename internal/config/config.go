package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/pasture-risk/internal/weather"
)

type AppConfig struct {
	GeocoderAPIKey string

	// Open-Meteo model identities. Empty primary means best_match; empty
	// fallback or secondary disables them.
	PrimaryModel   string
	FallbackModel  string
	SecondaryModel string

	// FetchInterval controls how often each location is re-evaluated.
	FetchInterval time.Duration

	// CacheTTL is how long the latest evaluation is served before re-evaluation.
	CacheTTL time.Duration

	HTTPTimeout time.Duration

	// Locations to track.
	Locations []weather.Location

	// In-memory store retention.
	StoreMaxHistory int           // max number of evaluations per location (0 = unlimited)
	StoreMaxAge     time.Duration // max age of evaluations (0 = unlimited)

	// PastureConfigPath is an optional YAML turnout policy.
	PastureConfigPath string
	// HorseDBPath is the SQLite file for horse profiles; empty keeps them in memory.
	HorseDBPath string
	// HayAnalyses maps analysis references to NSC percent, read from
	// HAY_ANALYSES as "ref=pct,ref=pct".
	HayAnalyses map[string]float64

	EMSMode bool

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	cfg.PrimaryModel = os.Getenv("OPENMETEO_MODEL")
	cfg.FallbackModel = getenvDefault("OPENMETEO_FALLBACK_MODEL", "gfs_seamless")
	cfg.SecondaryModel = os.Getenv("OPENMETEO_SECONDARY_MODEL")

	var err error
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "30m"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "10m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	// Store retention.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 48) // roughly 24h at 30-minute intervals
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	cfg.PastureConfigPath = os.Getenv("PASTURE_CONFIG")
	cfg.HorseDBPath = os.Getenv("HORSE_DB")
	if cfg.HayAnalyses, err = parseAnalyses(os.Getenv("HAY_ANALYSES")); err != nil {
		return nil, err
	}
	cfg.EMSMode = getenvBool("EMS_MODE", true)
	cfg.Port = getenvDefault("PORT", "8080")

	locs, err := loadLocations()
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	return cfg, nil
}

// loadLocations reads comma-separated WEATHER_LOCATION_* lists. Coordinates
// are optional; when given, there must be one pair per city.
func loadLocations() ([]weather.Location, error) {
	city := os.Getenv("WEATHER_LOCATION_CITY")
	if city == "" {
		return nil, nil
	}
	cities := strings.Split(city, ",")
	countries := strings.Split(os.Getenv("WEATHER_LOCATION_COUNTRY"), ",")
	if len(cities) != len(countries) {
		return nil, fmt.Errorf("number of cities and countries must be the same")
	}

	lats, err := parseFloats("WEATHER_LOCATION_LAT")
	if err != nil {
		return nil, err
	}
	lons, err := parseFloats("WEATHER_LOCATION_LON")
	if err != nil {
		return nil, err
	}
	if len(lats) != len(lons) || (len(lats) > 0 && len(lats) != len(cities)) {
		return nil, fmt.Errorf("latitude/longitude lists must match the number of cities")
	}

	var locs []weather.Location
	for i := range cities {
		loc := weather.Location{
			City:    strings.TrimSpace(cities[i]),
			Country: strings.TrimSpace(countries[i]),
		}
		if len(lats) > 0 {
			loc.Lat, loc.Lon = &lats[i], &lons[i]
		}
		locs = append(locs, loc)
	}

	return locs, nil
}

func parseFloats(key string) ([]float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		out[i] = f
	}
	return out, nil
}

func parseAnalyses(v string) (map[string]float64, error) {
	out := map[string]float64{}
	if v == "" {
		return out, nil
	}
	for _, part := range strings.Split(v, ",") {
		ref, pct, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || ref == "" {
			return nil, fmt.Errorf("invalid HAY_ANALYSES entry %q", part)
		}
		f, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid HAY_ANALYSES entry %q: %w", part, err)
		}
		out[ref] = f
	}
	return out, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

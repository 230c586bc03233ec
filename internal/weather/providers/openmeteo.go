package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/pasture-risk/internal/telemetry"
	"github.com/i474232898/pasture-risk/internal/weather"
)

const (
	openMeteoURL       = "https://api.open-meteo.com/v1/forecast"
	openMeteoTimeStamp = "2006-01-02T15:04"
	pastDays           = 3
	forecastDays       = 7
)

var currentChannels = []telemetry.Channel{
	telemetry.ChannelTemperature,
	telemetry.ChannelHumidity,
	telemetry.ChannelCloud,
	telemetry.ChannelWind,
}

// OpenMeteoProvider fetches hourly telemetry for one Open-Meteo model.
// An empty model lets Open-Meteo pick its best match.
type OpenMeteoProvider struct {
	name    string
	model   string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewOpenMeteoProvider creates a provider for model.
func NewOpenMeteoProvider(client *http.Client, model string) *OpenMeteoProvider {
	name := "openmeteo"
	if model != "" {
		name += ":" + model
	}
	return &OpenMeteoProvider{
		name:    name,
		model:   model,
		baseURL: openMeteoURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: DefaultBackoff},
		circuit: newBreaker(name),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithBaseURL points the provider at another endpoint.
func (p *OpenMeteoProvider) WithBaseURL(u string) *OpenMeteoProvider {
	p.baseURL = u
	return p
}

// WithBackoff overrides the retry policy.
func (p *OpenMeteoProvider) WithBackoff(b BackoffConfig) *OpenMeteoProvider {
	p.httpCfg.Backoff = b
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// Model returns the configured model identity.
func (p *OpenMeteoProvider) Model() string {
	return p.model
}

type openMeteoPayload struct {
	Hourly  map[string]json.RawMessage `json:"hourly"`
	Current map[string]json.RawMessage `json:"current"`
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc weather.Location) (weather.ProviderReading, error) {
	if !loc.HasCoordinates() {
		return weather.ProviderReading{}, fmt.Errorf("openmeteo requires latitude and longitude")
	}

	hourly := make([]string, 0, len(telemetry.Channels))
	for _, ch := range telemetry.Channels {
		hourly = append(hourly, string(ch))
	}
	current := make([]string, 0, len(currentChannels))
	for _, ch := range currentChannels {
		current = append(current, string(ch))
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(*loc.Lat, 'f', 4, 64))
		values.Set("longitude", strconv.FormatFloat(*loc.Lon, 'f', 4, 64))
		values.Set("hourly", strings.Join(hourly, ","))
		values.Set("current", strings.Join(current, ","))
		values.Set("past_days", strconv.Itoa(pastDays))
		values.Set("forecast_days", strconv.Itoa(forecastDays))
		values.Set("timezone", "UTC")
		if p.model != "" {
			values.Set("models", p.model)
		}

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderReading{}, err
	}
	defer resp.Body.Close()

	var payload openMeteoPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ProviderReading{}, fmt.Errorf("decode openmeteo response: %w", err)
	}

	series, err := parseHourly(payload.Hourly)
	if err != nil {
		return weather.ProviderReading{}, err
	}

	return weather.ProviderReading{
		ProviderName: p.name,
		Model:        p.modelIdentity(),
		FetchedAt:    p.now(),
		Series:       series,
		Current:      parseCurrent(payload.Current),
	}, nil
}

func (p *OpenMeteoProvider) modelIdentity() string {
	if p.model == "" {
		return "best_match"
	}
	return p.model
}

func parseHourly(raw map[string]json.RawMessage) (telemetry.HourlySeries, error) {
	var s telemetry.HourlySeries
	if raw == nil {
		return s, fmt.Errorf("openmeteo response has no hourly block")
	}

	var stamps []string
	if err := json.Unmarshal(raw["time"], &stamps); err != nil {
		return s, fmt.Errorf("decode hourly time: %w", err)
	}
	s.Time = make([]time.Time, len(stamps))
	for i, ts := range stamps {
		t, err := time.ParseInLocation(openMeteoTimeStamp, ts, time.UTC)
		if err != nil {
			return s, fmt.Errorf("parse hourly time %q: %w", ts, err)
		}
		s.Time[i] = t
	}

	channels := map[telemetry.Channel]*[]float64{
		telemetry.ChannelTemperature:   &s.Temperature,
		telemetry.ChannelHumidity:      &s.Humidity,
		telemetry.ChannelRadiation:     &s.Radiation,
		telemetry.ChannelCloud:         &s.Cloud,
		telemetry.ChannelPrecipitation: &s.Precipitation,
		telemetry.ChannelWind:          &s.Wind,
		telemetry.ChannelET0:           &s.ET0,
	}
	for ch, dst := range channels {
		data, ok := raw[string(ch)]
		if !ok {
			// Leave the channel empty; the guard reports the length mismatch.
			continue
		}
		var vals []*float64
		if err := json.Unmarshal(data, &vals); err != nil {
			return s, fmt.Errorf("decode hourly %s: %w", ch, err)
		}
		out := make([]float64, len(vals))
		for i, v := range vals {
			if v == nil {
				out[i] = math.NaN()
				continue
			}
			out[i] = *v
		}
		*dst = out
	}
	return s, nil
}

func parseCurrent(raw map[string]json.RawMessage) telemetry.Current {
	cur := telemetry.Current{
		Temperature: math.NaN(),
		Humidity:    math.NaN(),
		Cloud:       math.NaN(),
		Wind:        math.NaN(),
	}
	if raw == nil {
		return cur
	}
	var ts string
	if err := json.Unmarshal(raw["time"], &ts); err == nil {
		if t, err := time.ParseInLocation(openMeteoTimeStamp, ts, time.UTC); err == nil {
			cur.Time = t
		}
	}
	fields := map[telemetry.Channel]*float64{
		telemetry.ChannelTemperature: &cur.Temperature,
		telemetry.ChannelHumidity:    &cur.Humidity,
		telemetry.ChannelCloud:       &cur.Cloud,
		telemetry.ChannelWind:        &cur.Wind,
	}
	for ch, dst := range fields {
		var v *float64
		if err := json.Unmarshal(raw[string(ch)], &v); err == nil && v != nil {
			*dst = *v
		}
	}
	return cur
}

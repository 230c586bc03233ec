package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/pasture-risk/internal/weather"
)

// GoogleGeocoder resolves city/country pairs through the Google geocoding
// API. Results are cached for the lifetime of the process.
type GoogleGeocoder struct {
	mu     sync.Mutex
	cache  map[string]weather.Location
	lookup func(geocoder.Address) (geocoder.Location, error)
}

// NewGoogleGeocoder configures the geocoding client with apiKey.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{
		cache:  map[string]weather.Location{},
		lookup: geocoder.Geocoding,
	}
}

// Resolve returns loc with Lat/Lon filled in.
func (g *GoogleGeocoder) Resolve(ctx context.Context, loc weather.Location) (weather.Location, error) {
	if loc.HasCoordinates() {
		return loc, nil
	}
	if err := ctx.Err(); err != nil {
		return loc, err
	}

	key := loc.Key()
	g.mu.Lock()
	cached, ok := g.cache[key]
	g.mu.Unlock()
	if ok {
		return cached, nil
	}

	res, err := g.lookup(geocoder.Address{City: loc.City, Country: loc.Country})
	if err != nil {
		return loc, fmt.Errorf("geocode %s: %w", key, err)
	}
	lat, lon := res.Latitude, res.Longitude
	loc.Lat, loc.Lon = &lat, &lon

	g.mu.Lock()
	g.cache[key] = loc
	g.mu.Unlock()
	return loc, nil
}

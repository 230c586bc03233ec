package weather

import (
	"context"
	"time"

	"github.com/i474232898/pasture-risk/internal/telemetry"
)

// ProviderReading is a single provider's hourly telemetry for a location.
type ProviderReading struct {
	ProviderName string
	Model        string
	FetchedAt    time.Time

	Series  telemetry.HourlySeries
	Current telemetry.Current
}

// Provider abstracts an hourly telemetry source (e.g. an Open-Meteo model).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location) (ProviderReading, error)
}

// Store is the contract the in-memory store (and any future persistent store) must satisfy.
type Store interface {
	SaveEvaluation(loc Location, ev Evaluation)
	GetLatest(loc Location) (Evaluation, error)
	GetRange(loc Location, from, to time.Time) ([]Evaluation, error)
}

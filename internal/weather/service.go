package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/pasture-risk/internal/confidence"
	"github.com/i474232898/pasture-risk/internal/params"
	"github.com/i474232898/pasture-risk/internal/scoring"
	"github.com/i474232898/pasture-risk/internal/telemetry"
	"github.com/i474232898/pasture-risk/internal/validation"
)

// ErrNoProviders is returned when the service has nothing to fetch from.
var ErrNoProviders = errors.New("no weather providers configured")

// Geocoder resolves a city/country location to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, loc Location) (Location, error)
}

// Option configures a Service.
type Option func(*Service)

// WithSecondary sets the model used only for cross-model deltas.
func WithSecondary(p Provider) Option {
	return func(s *Service) { s.secondary = p }
}

// WithGeocoder resolves locations that lack coordinates before fetching.
func WithGeocoder(g Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

// WithEMSMode classifies levels with the stricter EMS thresholds.
func WithEMSMode(ems bool) Option {
	return func(s *Service) { s.emsMode = ems }
}

// WithAdjustment applies an external pasture-condition adjustment.
func WithAdjustment(adj scoring.PastureAdjustment) Option {
	return func(s *Service) { s.adj = adj }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service orchestrates fetching telemetry, validating it, scoring every
// window and persisting the evaluation.
type Service struct {
	store     Store
	params    *params.Store
	providers []Provider // primary first, then fallbacks in order
	secondary Provider
	geocoder  Geocoder
	emsMode   bool
	adj       scoring.PastureAdjustment
	now       func() time.Time
}

// NewService creates a new Service.
func NewService(store Store, reg *params.Store, providers []Provider, opts ...Option) *Service {
	s := &Service{
		store:     store,
		params:    reg,
		providers: providers,
		adj:       scoring.NoAdjustment,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Params returns the parameter store backing every evaluation.
func (s *Service) Params() *params.Store {
	return s.params
}

// EMSMode reports whether levels use EMS thresholds.
func (s *Service) EMSMode() bool {
	return s.emsMode
}

// Adjustment returns the pasture adjustment applied to every score.
func (s *Service) Adjustment() scoring.PastureAdjustment {
	return s.adj
}

// Engine builds a scoring engine over the current parameter snapshot.
func (s *Service) Engine() (*scoring.Engine, error) {
	return scoring.NewEngine(s.params.Current())
}

// Evaluate runs one full cycle for loc: fetch from the primary provider (or
// the first fallback that succeeds), validate, aggregate, score and store.
// A blocked evaluation is stored too, so that the display shows why.
func (s *Service) Evaluate(ctx context.Context, loc Location) (Evaluation, error) {
	log.Printf("DEBUG: Evaluate called for %s with %d providers", loc.Key(), len(s.providers))
	if len(s.providers) == 0 {
		log.Printf("ERROR: No providers available to fetch telemetry for %s", loc.Key())
		return Evaluation{}, ErrNoProviders
	}

	if !loc.HasCoordinates() && s.geocoder != nil {
		resolved, err := s.geocoder.Resolve(ctx, loc)
		if err != nil {
			return Evaluation{}, fmt.Errorf("resolve %s: %w", loc.Key(), err)
		}
		loc = resolved
	}

	var (
		wg        sync.WaitGroup
		secondary *telemetry.HourlySeries
	)
	if s.secondary != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.secondary.Fetch(ctx, loc)
			if err != nil {
				log.Printf("provider %s fetch failed for %s: %v", s.secondary.Name(), loc.Key(), err)
				return
			}
			secondary = &r.Series
		}()
	}

	var (
		reading  ProviderReading
		fetched  bool
		fallback bool
		errs     []error
	)
	for i, p := range s.providers {
		r, err := p.Fetch(ctx, loc)
		if err != nil {
			log.Printf("provider %s fetch failed for %s: %v", p.Name(), loc.Key(), err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		reading, fetched, fallback = r, true, i > 0
		break
	}
	wg.Wait()

	if !fetched {
		// Keep the last good evaluation if any.
		log.Printf("no successful provider readings for %s; keeping last good evaluation if any", loc.Key())
		return Evaluation{}, fmt.Errorf("all providers failed for %s: %w", loc.Key(), errors.Join(errs...))
	}

	ev, err := s.evaluateReading(loc, reading, secondary, fallback)
	if err != nil {
		return Evaluation{}, err
	}
	s.store.SaveEvaluation(loc, ev)
	return ev, nil
}

func (s *Service) evaluateReading(loc Location, r ProviderReading, secondary *telemetry.HourlySeries, fallback bool) (Evaluation, error) {
	now := s.now()
	engine, err := s.Engine()
	if err != nil {
		return Evaluation{}, err
	}

	res := validation.NewGuard(validation.DefaultOptions(now)).Check(r.Series)
	ev := Evaluation{
		ID:             uuid.NewString(),
		Location:       loc,
		Provider:       r.ProviderName,
		Model:          r.Model,
		FallbackUsed:   fallback,
		FetchedAt:      r.FetchedAt.UTC(),
		EvaluatedAt:    now,
		ParityHash:     telemetry.ParityHash(r.Series),
		EMSMode:        s.emsMode,
		Validation:     res,
		State:          res.DisplayState(),
		FormulaVersion: engine.FormulaVersion(),
		ParamsVersion:  engine.ParamsVersion(),
	}
	if !res.Valid {
		log.Printf("ERROR: telemetry for %s blocked: %v", loc.Key(), res.Err())
		return ev, nil
	}
	for _, w := range res.Warnings {
		log.Printf("DEBUG: telemetry warning for %s: %s", loc.Key(), w)
	}

	windows, errs := BuildWindows(r.Series, secondary, now)
	for _, err := range errs {
		log.Printf("DEBUG: skipped window for %s: %v", loc.Key(), err)
	}

	ageRef := r.Current.Time
	if ageRef.IsZero() {
		ageRef = r.FetchedAt
	}
	age := now.Sub(ageRef).Minutes()

	byDate := map[string]int{}
	for _, w := range windows {
		conf := confidence.Compute(confidence.Input{
			Model:              r.Model,
			FallbackUsed:       fallback,
			AgeMinutes:         age,
			ExpectedHours:      w.ExpectedHours,
			AvailableHours:     w.AvailableHours,
			Deltas:             w.Deltas,
			DayOffset:          w.DayOffset,
			ValidationWarnings: len(res.Warnings) > 0,
		})
		slot := engine.ScoreSlot(w.Input, s.adj, s.emsMode, conf)

		i, ok := byDate[w.Date]
		if !ok {
			i = len(ev.Days)
			byDate[w.Date] = i
			ev.Days = append(ev.Days, DayScores{Date: w.Date, DayOffset: w.DayOffset})
		}
		ev.Days[i].Slots = append(ev.Days[i].Slots, slot)
	}

	log.Printf("INFO: evaluated %s: %d days, state=%s, model=%s, fallback=%t, params=%s",
		loc.Key(), len(ev.Days), ev.State, ev.Model, fallback, ev.ParamsVersion)
	return ev, nil
}

// Latest returns the cached evaluation for loc, evaluating on demand when
// nothing usable is cached.
func (s *Service) Latest(ctx context.Context, loc Location) (Evaluation, error) {
	ev, err := s.store.GetLatest(loc)
	if err == nil {
		return ev, nil
	}
	log.Printf("DEBUG: no cached evaluation for %s (%v); evaluating on demand", loc.Key(), err)
	return s.Evaluate(ctx, loc)
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(loc Location) (Evaluation, error) {
	return s.store.GetLatest(loc)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(loc Location, from, to time.Time) ([]Evaluation, error) {
	return s.store.GetRange(loc, from, to)
}

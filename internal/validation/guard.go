package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/i474232898/pasture-risk/internal/common"
	"github.com/i474232898/pasture-risk/internal/telemetry"
)

// Confidence is the coarse trust level attached to a validation result.
type Confidence string

const (
	ConfidenceNormal Confidence = "normal"
	ConfidenceLow    Confidence = "low"
)

// DisplayState tells presentation code how to show numbers derived from a series.
type DisplayState string

const (
	StateBlocked DisplayState = "blocked"
	StateWarning DisplayState = "warning"
	StateOK      DisplayState = "ok"
)

// Warning codes for cross-field and jump checks.
const (
	CodeRadiationCloud   = "radiation_cloud_inconsistency"
	CodeTemperatureJump  = "suspicious_temperature_jump"
	CodeHumidityJump     = "suspicious_humidity_jump"
	CodeWindJump         = "suspicious_wind_jump"
	CodeStale            = "stale_data"
	CodeIrregularSpacing = "irregular_spacing"
	CodeNonMonotonic     = "non_monotonic_timestamps"
	CodeOutOfRange       = "out_of_range"
	CodeGap              = "data_gap"
)

// Bounds is an inclusive physical range for one channel.
type Bounds struct {
	Min float64
	Max float64
}

// DefaultBounds are the physical limits per channel.
var DefaultBounds = map[telemetry.Channel]Bounds{
	telemetry.ChannelTemperature:   {Min: -30, Max: 45},
	telemetry.ChannelHumidity:      {Min: 0, Max: 100},
	telemetry.ChannelCloud:         {Min: 0, Max: 100},
	telemetry.ChannelWind:          {Min: 0, Max: 60},
	telemetry.ChannelPrecipitation: {Min: 0, Max: math.Inf(1)},
	telemetry.ChannelRadiation:     {Min: 0, Max: 1500},
	telemetry.ChannelET0:           {Min: 0, Max: 20},
}

// Options tunes the guard.
type Options struct {
	Now             time.Time
	MinHours        int
	StepTolerance   time.Duration
	StalenessWindow time.Duration
	// ErrorThreshold is the out-of-range or missing fraction of any
	// channel that escalates to an error.
	ErrorThreshold float64
	MinGapRun      int

	TemperatureJump float64
	HumidityJump    float64
	WindJump        float64

	RadiationCloudRadiation float64
	RadiationCloudCloud     float64
}

// DefaultOptions returns the standard thresholds evaluated against now.
func DefaultOptions(now time.Time) Options {
	return Options{
		Now:                     now,
		MinHours:                240,
		StepTolerance:           6 * time.Minute,
		StalenessWindow:         30 * time.Minute,
		ErrorThreshold:          0.2,
		MinGapRun:               4,
		TemperatureJump:         8,
		HumidityJump:            25,
		WindJump:                15,
		RadiationCloudRadiation: 500,
		RadiationCloudCloud:     95,
	}
}

// Gap is a run of consecutive missing samples in one channel.
type Gap struct {
	Channel telemetry.Channel `json:"channel"`
	Start   int               `json:"start"`
	Length  int               `json:"length"`
	From    time.Time         `json:"from"`
}

// Issues itemizes everything the guard counted.
type Issues struct {
	OutOfRange      map[telemetry.Channel]int `json:"outOfRange,omitempty"`
	Jumps           map[string]int            `json:"jumps,omitempty"`
	Inconsistencies int                       `json:"inconsistencies"`
	Gaps            []Gap                     `json:"gaps,omitempty"`
	Missing         int                       `json:"missing"`
}

// Result is the outcome of a guard run. Errors block display, warnings only
// degrade confidence.
type Result struct {
	Valid      bool       `json:"valid"`
	Errors     []string   `json:"errors"`
	Warnings   []string   `json:"warnings"`
	Confidence Confidence `json:"confidence"`
	Issues     Issues     `json:"issues"`
}

// DisplayState maps the result to blocked, warning or ok.
func (r Result) DisplayState() DisplayState {
	switch {
	case !r.Valid:
		return StateBlocked
	case len(r.Warnings) > 0:
		return StateWarning
	default:
		return StateOK
	}
}

// Err returns a *StructuralError for an invalid result, nil otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &StructuralError{Problems: r.Errors}
}

// StructuralError reports telemetry that cannot be scored at all.
type StructuralError struct {
	Problems []string
}

func (e *StructuralError) Error() string {
	return "telemetry rejected: " + strings.Join(e.Problems, "; ")
}

// Guard validates hourly telemetry before it may influence a score.
type Guard struct {
	opts   Options
	bounds map[telemetry.Channel]Bounds
}

// NewGuard creates a Guard with DefaultBounds.
func NewGuard(opts Options) *Guard {
	return &Guard{opts: opts, bounds: DefaultBounds}
}

// Check runs the structural, timestamp, range, consistency, jump and gap
// stages in order. A stage that produces errors ends the run.
func (g *Guard) Check(s telemetry.HourlySeries) Result {
	res := Result{
		Valid:  true,
		Issues: Issues{OutOfRange: map[telemetry.Channel]int{}, Jumps: map[string]int{}},
	}

	stages := []func(telemetry.HourlySeries, *Result){
		g.checkStructure,
		g.checkTimestamps,
		g.checkRanges,
		g.checkConsistency,
		g.checkJumps,
		g.checkGaps,
	}
	for _, stage := range stages {
		stage(s, &res)
		if len(res.Errors) > 0 {
			res.Valid = false
			break
		}
	}

	res.Confidence = ConfidenceNormal
	if !res.Valid || len(res.Warnings) > 0 {
		res.Confidence = ConfidenceLow
	}
	return res
}

func (g *Guard) checkStructure(s telemetry.HourlySeries, res *Result) {
	n := s.Len()
	for _, ch := range telemetry.Channels {
		if got := len(s.Values(ch)); got != n {
			res.Errors = append(res.Errors, fmt.Sprintf("channel %s has %d samples, time axis has %d", ch, got, n))
		}
	}
	if n < g.opts.MinHours {
		res.Errors = append(res.Errors, fmt.Sprintf("insufficient hourly records: have %d, need %d", n, g.opts.MinHours))
	}
}

func (g *Guard) checkTimestamps(s telemetry.HourlySeries, res *Result) {
	if s.Len() < 2 {
		res.Errors = append(res.Errors, "timestamp spacing absent: fewer than two timestamps")
		return
	}
	if s.Time[0].Equal(s.Time[s.Len()-1]) {
		allSame := true
		for _, ts := range s.Time {
			if !ts.Equal(s.Time[0]) {
				allSame = false
				break
			}
		}
		if allSame {
			res.Errors = append(res.Errors, "timestamp spacing absent: all timestamps identical")
			return
		}
	}

	var nonMonotonic, irregular int
	for i := 1; i < s.Len(); i++ {
		dt := s.Time[i].Sub(s.Time[i-1])
		if dt <= 0 {
			nonMonotonic++
			continue
		}
		if diff := dt - time.Hour; diff > g.opts.StepTolerance || diff < -g.opts.StepTolerance {
			irregular++
		}
	}
	if nonMonotonic > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %d steps", CodeNonMonotonic, nonMonotonic))
	}
	if irregular > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %d steps deviate from 1h", CodeIrregularSpacing, irregular))
	}

	if !g.opts.Now.IsZero() {
		fresh := false
		for _, ts := range s.Time {
			d := ts.Sub(g.opts.Now)
			if d <= g.opts.StalenessWindow && d >= -g.opts.StalenessWindow {
				fresh = true
				break
			}
		}
		if !fresh {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: no timestamp within %s of now", CodeStale, g.opts.StalenessWindow))
		}
	}
}

func (g *Guard) checkRanges(s telemetry.HourlySeries, res *Result) {
	n := s.Len()
	for _, ch := range telemetry.Channels {
		b, ok := g.bounds[ch]
		if !ok {
			continue
		}
		count, missing := 0, 0
		for _, v := range s.Values(ch) {
			if common.IsMissing(v) {
				missing++
				continue
			}
			if v < b.Min || v > b.Max {
				count++
			}
		}
		if n > 0 && float64(missing)/float64(n) > g.opts.ErrorThreshold {
			res.Errors = append(res.Errors, fmt.Sprintf("channel %s: %d of %d samples missing", ch, missing, n))
		}
		if count == 0 {
			continue
		}
		res.Issues.OutOfRange[ch] = count
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s_%s: %d samples", CodeOutOfRange, ch, count))
		if n > 0 && float64(count)/float64(n) > g.opts.ErrorThreshold {
			res.Errors = append(res.Errors, fmt.Sprintf("channel %s: %d of %d samples out of range", ch, count, n))
		}
	}
}

func (g *Guard) checkConsistency(s telemetry.HourlySeries, res *Result) {
	count := 0
	for i := range s.Time {
		rad, cloud := s.Radiation[i], s.Cloud[i]
		if common.IsMissing(rad) || common.IsMissing(cloud) {
			continue
		}
		if rad > g.opts.RadiationCloudRadiation && cloud > g.opts.RadiationCloudCloud {
			count++
		}
	}
	if count > 0 {
		res.Issues.Inconsistencies = count
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %d hours", CodeRadiationCloud, count))
	}
}

func (g *Guard) checkJumps(s telemetry.HourlySeries, res *Result) {
	checks := []struct {
		code   string
		values []float64
		limit  float64
	}{
		{CodeTemperatureJump, s.Temperature, g.opts.TemperatureJump},
		{CodeHumidityJump, s.Humidity, g.opts.HumidityJump},
		{CodeWindJump, s.Wind, g.opts.WindJump},
	}
	for _, c := range checks {
		count := 0
		for i := 1; i < len(c.values); i++ {
			a, b := c.values[i-1], c.values[i]
			if common.IsMissing(a) || common.IsMissing(b) {
				continue
			}
			if math.Abs(b-a) > c.limit {
				count++
			}
		}
		if count > 0 {
			res.Issues.Jumps[c.code] = count
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %d steps", c.code, count))
		}
	}
}

func (g *Guard) checkGaps(s telemetry.HourlySeries, res *Result) {
	for _, ch := range telemetry.Channels {
		values := s.Values(ch)
		run := 0
		flush := func(end int) {
			if run >= g.opts.MinGapRun {
				start := end - run
				gap := Gap{Channel: ch, Start: start, Length: run, From: s.Time[start]}
				res.Issues.Gaps = append(res.Issues.Gaps, gap)
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s_%s: %d missing hours from %s",
					CodeGap, ch, run, gap.From.UTC().Format(time.RFC3339)))
			}
			run = 0
		}
		for i, v := range values {
			if common.IsMissing(v) {
				res.Issues.Missing++
				run++
				continue
			}
			flush(i)
		}
		flush(len(values))
	}
}

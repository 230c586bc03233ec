package validation

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/pasture-risk/internal/telemetry"
)

var testNow = time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)

// cleanSeries builds 240 plausible hours starting three days before testNow.
func cleanSeries() telemetry.HourlySeries {
	start := testNow.Add(-72 * time.Hour)
	n := 240
	s := telemetry.HourlySeries{
		Time:          make([]time.Time, n),
		Temperature:   make([]float64, n),
		Humidity:      make([]float64, n),
		Radiation:     make([]float64, n),
		Cloud:         make([]float64, n),
		Precipitation: make([]float64, n),
		Wind:          make([]float64, n),
		ET0:           make([]float64, n),
	}
	for i := 0; i < n; i++ {
		s.Time[i] = start.Add(time.Duration(i) * time.Hour)
		s.Temperature[i] = 10 + 5*math.Sin(float64(i)/24*2*math.Pi)
		s.Humidity[i] = 70
		s.Radiation[i] = 200
		s.Cloud[i] = 40
		s.Precipitation[i] = 0.1
		s.Wind[i] = 8
		s.ET0[i] = 0.1
	}
	return s
}

func hasWarning(res Result, code string) bool {
	for _, w := range res.Warnings {
		if strings.HasPrefix(w, code) {
			return true
		}
	}
	return false
}

func TestCleanSeriesIsOK(t *testing.T) {
	res := NewGuard(DefaultOptions(testNow)).Check(cleanSeries())
	if !res.Valid {
		t.Fatalf("expected valid, got errors %v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", res.Warnings)
	}
	if res.Confidence != ConfidenceNormal || res.DisplayState() != StateOK {
		t.Fatalf("unexpected confidence/state: %s/%s", res.Confidence, res.DisplayState())
	}
	if res.Err() != nil {
		t.Fatalf("expected nil error")
	}
}

func TestStructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*telemetry.HourlySeries)
	}{
		{"misaligned channel", func(s *telemetry.HourlySeries) { s.Wind = s.Wind[:200] }},
		{"too few hours", func(s *telemetry.HourlySeries) {
			s.Time = s.Time[:100]
			for _, ch := range []*[]float64{&s.Temperature, &s.Humidity, &s.Radiation, &s.Cloud, &s.Precipitation, &s.Wind, &s.ET0} {
				*ch = (*ch)[:100]
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cleanSeries()
			tt.mutate(&s)
			res := NewGuard(DefaultOptions(testNow)).Check(s)
			if res.Valid {
				t.Fatalf("expected invalid")
			}
			if res.DisplayState() != StateBlocked {
				t.Fatalf("expected blocked state")
			}
			if _, ok := res.Err().(*StructuralError); !ok {
				t.Fatalf("expected StructuralError, got %T", res.Err())
			}
		})
	}
}

func TestNoSpacingIsError(t *testing.T) {
	s := cleanSeries()
	for i := range s.Time {
		s.Time[i] = testNow
	}
	res := NewGuard(DefaultOptions(testNow)).Check(s)
	if res.Valid {
		t.Fatalf("expected identical timestamps to be an error")
	}
}

func TestIrregularSpacingIsWarning(t *testing.T) {
	s := cleanSeries()
	for i := 150; i < len(s.Time); i++ {
		s.Time[i] = s.Time[i].Add(20 * time.Minute)
	}
	res := NewGuard(DefaultOptions(testNow)).Check(s)
	if !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	if !hasWarning(res, CodeIrregularSpacing) {
		t.Fatalf("expected irregular spacing warning, got %v", res.Warnings)
	}
}

func TestNonMonotonicIsWarning(t *testing.T) {
	s := cleanSeries()
	s.Time[10], s.Time[11] = s.Time[11], s.Time[10]
	res := NewGuard(DefaultOptions(testNow)).Check(s)
	if !res.Valid || !hasWarning(res, CodeNonMonotonic) {
		t.Fatalf("expected non-monotonic warning, got valid=%v %v", res.Valid, res.Warnings)
	}
}

func TestStaleness(t *testing.T) {
	res := NewGuard(DefaultOptions(testNow.Add(30 * 24 * time.Hour))).Check(cleanSeries())
	if !res.Valid || !hasWarning(res, CodeStale) {
		t.Fatalf("expected staleness warning, got %v", res.Warnings)
	}
	if res.Confidence != ConfidenceLow || res.DisplayState() != StateWarning {
		t.Fatalf("expected degraded confidence")
	}
}

func TestRangeWarningsAndEscalation(t *testing.T) {
	s := cleanSeries()
	s.Humidity[5] = 120
	s.Humidity[6] = -3
	res := NewGuard(DefaultOptions(testNow)).Check(s)
	if !res.Valid {
		t.Fatalf("a few out-of-range samples must not invalidate: %v", res.Errors)
	}
	if res.Issues.OutOfRange[telemetry.ChannelHumidity] != 2 {
		t.Fatalf("expected 2 humidity out-of-range, got %v", res.Issues.OutOfRange)
	}

	for i := 0; i < 100; i++ {
		s.Radiation[i] = 2000
	}
	res = NewGuard(DefaultOptions(testNow)).Check(s)
	if res.Valid {
		t.Fatalf("expected escalation to error above the threshold")
	}
}

func TestMissingChannelIsError(t *testing.T) {
	s := cleanSeries()
	for i := range s.Humidity {
		s.Humidity[i] = math.NaN()
	}
	res := NewGuard(DefaultOptions(testNow)).Check(s)
	if res.Valid || res.DisplayState() != StateBlocked {
		t.Fatalf("an all-missing channel must block, got state %s", res.DisplayState())
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], string(telemetry.ChannelHumidity)) {
		t.Fatalf("unexpected errors %v", res.Errors)
	}

	// Just under the threshold is still scored.
	s = cleanSeries()
	for i := 0; i < 48; i++ {
		s.Cloud[i] = math.NaN()
	}
	if res := NewGuard(DefaultOptions(testNow)).Check(s); !res.Valid {
		t.Fatalf("20%% missing must not block: %v", res.Errors)
	}
	s.Cloud[48] = math.NaN()
	if res := NewGuard(DefaultOptions(testNow)).Check(s); res.Valid {
		t.Fatalf("more than 20%% missing must block")
	}
}

func TestRadiationCloudInconsistency(t *testing.T) {
	s := cleanSeries()
	s.Radiation[30] = 700
	s.Cloud[30] = 98
	res := NewGuard(DefaultOptions(testNow)).Check(s)
	if !res.Valid || !hasWarning(res, CodeRadiationCloud) {
		t.Fatalf("expected inconsistency warning, got %v", res.Warnings)
	}
}

func TestJumps(t *testing.T) {
	s := cleanSeries()
	s.Temperature[40] = s.Temperature[39] + 12
	s.Humidity[60] = 10
	s.Wind[80] = 40
	res := NewGuard(DefaultOptions(testNow)).Check(s)
	for _, code := range []string{CodeTemperatureJump, CodeHumidityJump, CodeWindJump} {
		if !hasWarning(res, code) {
			t.Errorf("expected %s, got %v", code, res.Warnings)
		}
	}
}

func TestGaps(t *testing.T) {
	s := cleanSeries()
	for i := 100; i < 105; i++ {
		s.Wind[i] = math.NaN()
	}
	s.Temperature[7] = math.NaN()
	res := NewGuard(DefaultOptions(testNow)).Check(s)
	if !res.Valid {
		t.Fatalf("gaps are warnings only: %v", res.Errors)
	}
	if len(res.Issues.Gaps) != 1 {
		t.Fatalf("expected exactly one gap, got %+v", res.Issues.Gaps)
	}
	g := res.Issues.Gaps[0]
	if g.Channel != telemetry.ChannelWind || g.Start != 100 || g.Length != 5 {
		t.Fatalf("unexpected gap: %+v", g)
	}
	if res.Issues.Missing != 6 {
		t.Fatalf("expected 6 missing samples, got %d", res.Issues.Missing)
	}
}

func TestGapAtEnd(t *testing.T) {
	s := cleanSeries()
	for i := len(s.ET0) - 4; i < len(s.ET0); i++ {
		s.ET0[i] = math.NaN()
	}
	res := NewGuard(DefaultOptions(testNow)).Check(s)
	if len(res.Issues.Gaps) != 1 || res.Issues.Gaps[0].Length != 4 {
		t.Fatalf("expected trailing gap, got %+v", res.Issues.Gaps)
	}
}

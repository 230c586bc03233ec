package scoring

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/i474232898/pasture-risk/internal/confidence"
	"github.com/i474232898/pasture-risk/internal/params"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(params.Default())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func frostMorning() Input {
	return Input{
		TempMin:                 -2,
		TempMax:                 8,
		RadiationMorning:        450,
		CloudCoverSlot:          20,
		Precip7dSum:             2,
		Wind3dAvg:               10,
		RelativeHumidityMorning: 50,
		ET07dAvg:                4.5,
		Slot:                    SlotMorning,
	}
}

func neutral() Input {
	return Input{
		TempMin:                 10,
		TempMax:                 15,
		RadiationMorning:        0,
		CloudCoverSlot:          0,
		Precip7dSum:             20,
		Wind3dAvg:               5,
		RelativeHumidityMorning: 80,
		ET07dAvg:                1,
		Slot:                    SlotMorning,
	}
}

// randomInput draws a valid input across the whole physical range.
func randomInput(rng *rand.Rand) Input {
	tmin := -30 + rng.Float64()*60
	return Input{
		TempMin:                 tmin,
		TempMax:                 tmin + rng.Float64()*(45-tmin),
		RadiationMorning:        rng.Float64() * 1500,
		CloudCoverSlot:          rng.Float64() * 100,
		Precip7dSum:             rng.Float64() * 80,
		Wind3dAvg:               rng.Float64() * 60,
		RelativeHumidityMorning: rng.Float64() * 100,
		ET07dAvg:                rng.Float64() * 20,
		Slot:                    Slots[rng.Intn(len(Slots))],
	}
}

func TestNewEngineRejectsInvalidRegistry(t *testing.T) {
	bad, err := params.Default().With("bad", map[string]float64{"weights.radiation": 0.6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = NewEngine(bad)
	var cfgErr *params.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestNewEngineRejectsMissingKey(t *testing.T) {
	var specs []params.Spec
	for _, s := range params.DefaultSpecs() {
		if s.Key != "ems.heat.relief" {
			specs = append(specs, s)
		}
	}
	reg, err := params.New("partial", specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = NewEngine(reg)
	var unknown *params.UnknownParameterError
	if !errors.As(err, &unknown) || unknown.Key != "ems.heat.relief" {
		t.Fatalf("expected UnknownParameterError for ems.heat.relief, got %v", err)
	}
}

func TestFrostSunScenarioIsHighForEMS(t *testing.T) {
	e := newTestEngine(t)
	score := e.CalculateScore(frostMorning(), NoAdjustment)
	if score < 60 {
		t.Fatalf("expected high EMS band (>=60), got %d", score)
	}
	if lvl := e.RiskLevel(score, true); lvl != LevelHigh {
		t.Fatalf("expected high EMS level, got %s", lvl)
	}
	if !strings.Contains(e.Reason(frostMorning(), score), "Frost") {
		t.Fatalf("expected frost reason, got %q", e.Reason(frostMorning(), score))
	}
}

func TestHeavyCloudRelief(t *testing.T) {
	e := newTestEngine(t)
	clear := neutral()
	cloudy := neutral()
	cloudy.CloudCoverSlot = 90

	high, _ := params.Default().Get("ems.cloud.high_relief")
	diff := e.CalculateScore(cloudy, NoAdjustment) - e.CalculateScore(clear, NoAdjustment)
	if diff != int(high) {
		t.Fatalf("expected cloud relief of %v, got %d", high, diff)
	}
}

func TestCloudReliefSteps(t *testing.T) {
	e := newTestEngine(t)
	base := e.CalculateScore(neutral(), NoAdjustment)
	tests := []struct {
		cloud float64
		want  int
	}{
		{59, 0},
		{60, -5},
		{84, -5},
		{85, -10},
		{100, -10},
	}
	for _, tt := range tests {
		in := neutral()
		in.CloudCoverSlot = tt.cloud
		if got := e.CalculateScore(in, NoAdjustment) - base; got != tt.want {
			t.Errorf("cloud %.0f: expected %d, got %d", tt.cloud, tt.want, got)
		}
	}
}

func TestHeatReliefOnlyWithoutDrought(t *testing.T) {
	e := newTestEngine(t)
	wet := neutral()
	wet.TempMin, wet.TempMax = 18, 30
	wet.Precip7dSum = 25

	b := e.Contributions(wet, NoAdjustment)
	if b.Heat >= 0 {
		t.Fatalf("expected heat relief for a hot, well-watered day")
	}

	dry := wet
	dry.Precip7dSum = 1
	dry.ET07dAvg = 5
	if e.Contributions(dry, NoAdjustment).Heat != 0 {
		t.Fatalf("heat during drought must not be relieved")
	}
}

func TestSlotOrdering(t *testing.T) {
	e := newTestEngine(t)
	morning := frostMorning()
	noon, evening := morning, morning
	noon.Slot, evening.Slot = SlotNoon, SlotEvening

	bm := e.Contributions(morning, NoAdjustment)
	bn := e.Contributions(noon, NoAdjustment)
	be := e.Contributions(evening, NoAdjustment)
	if !(bm.Temperature > bn.Temperature && bn.Temperature > be.Temperature) {
		t.Fatalf("frost bonus must be morning > noon > evening: %v %v %v", bm.Temperature, bn.Temperature, be.Temperature)
	}
	if math.Abs(bm.Temperature/bn.Temperature-2) > 1e-9 || math.Abs(be.Temperature/bn.Temperature-0.6) > 1e-9 {
		t.Fatalf("expected 2:1:0.6 frost ratio")
	}
	if bn.Radiation != 0 || bn.Humidity != 0 {
		t.Fatalf("radiation and humidity bonuses are morning-only")
	}
}

func TestDrynessIsCapped(t *testing.T) {
	e := newTestEngine(t)
	in := neutral()
	in.ET07dAvg = 12
	in.Precip7dSum = 0
	in.Wind3dAvg = 40
	b := e.Contributions(in, NoAdjustment)
	if math.Abs(b.Dryness()-15) > 1e-9 {
		t.Fatalf("expected dryness capped at 15, got %v", b.Dryness())
	}
}

func TestDeterminismAndBounds(t *testing.T) {
	e := newTestEngine(t)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		in := randomInput(rng)
		adj := PastureAdjustment{Multiplier: 0.5 + rng.Float64()*2, Offset: -30 + rng.Float64()*60}
		a := e.CalculateScore(in, adj)
		b := e.CalculateScore(in, adj)
		if a != b {
			t.Fatalf("non-deterministic score for %+v: %d vs %d", in, a, b)
		}
		if a < 0 || a > 100 {
			t.Fatalf("score out of bounds: %d", a)
		}
	}
}

func TestMonotonicInTempMin(t *testing.T) {
	e := newTestEngine(t)
	in := neutral()
	in.TempMax = 16
	prev := -1
	for tmin := 10.0; tmin >= -5; tmin -= 0.5 {
		in.TempMin = tmin
		score := e.CalculateScore(in, NoAdjustment)
		if prev >= 0 && score < prev {
			t.Fatalf("score decreased from %d to %d at tempMin %.1f", prev, score, tmin)
		}
		prev = score
	}
}

func TestPastureAdjustmentJSON(t *testing.T) {
	tests := []struct {
		body string
		want PastureAdjustment
	}{
		{`{}`, NoAdjustment},
		{`{"offset":5}`, PastureAdjustment{Multiplier: 1, Offset: 5}},
		{`{"multiplier":0,"offset":5}`, PastureAdjustment{Multiplier: 0, Offset: 5}},
		{`{"multiplier":0.8}`, PastureAdjustment{Multiplier: 0.8}},
	}
	for _, tt := range tests {
		var got PastureAdjustment
		if err := json.Unmarshal([]byte(tt.body), &got); err != nil {
			t.Fatalf("%s: %v", tt.body, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected %+v, got %+v", tt.body, tt.want, got)
		}
	}
}

func TestPastureAdjustment(t *testing.T) {
	e := newTestEngine(t)
	in := neutral()
	plain := e.CalculateScore(in, NoAdjustment)
	if got := e.CalculateScore(in, PastureAdjustment{Multiplier: 0, Offset: 20}); got != 20 {
		t.Fatalf("an explicit zero multiplier must be applied, got %d", got)
	}
	if got := e.CalculateScore(in, PastureAdjustment{Multiplier: 1.5, Offset: 5}); got != int(math.Round(float64(plain)*1.5+5)) {
		t.Fatalf("unexpected adjusted score %d", got)
	}
	if got := e.CalculateScore(in, PastureAdjustment{Multiplier: 10}); got != 100 {
		t.Fatalf("expected clamp at 100, got %d", got)
	}
}

func TestRiskLevelTables(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		score int
		ems   bool
		want  Level
	}{
		{39, false, LevelSafe},
		{40, false, LevelModerate},
		{69, false, LevelModerate},
		{70, false, LevelHigh},
		{29, true, LevelSafe},
		{30, true, LevelModerate},
		{59, true, LevelModerate},
		{60, true, LevelHigh},
	}
	for _, tt := range tests {
		if got := e.RiskLevel(tt.score, tt.ems); got != tt.want {
			t.Errorf("score %d ems=%v: expected %s, got %s", tt.score, tt.ems, tt.want, got)
		}
	}
}

func TestReasonPriority(t *testing.T) {
	e := newTestEngine(t)

	cold := frostMorning()
	cold.TempMin = 3
	if rule := e.ReasonRule(cold, 50); rule != "cold_sun_morning" {
		t.Fatalf("expected cold_sun_morning, got %s", rule)
	}

	noon := frostMorning()
	noon.Slot = SlotNoon
	noon.ET07dAvg = 6
	if rule := e.ReasonRule(noon, 50); rule != "high_et0_clear" {
		t.Fatalf("expected high_et0_clear, got %s", rule)
	}

	dry := neutral()
	dry.Precip7dSum = 1
	dry.ET07dAvg = 3
	if rule := e.ReasonRule(dry, 40); rule != "drought" {
		t.Fatalf("expected drought, got %s", rule)
	}

	cloudy := neutral()
	cloudy.CloudCoverSlot = 95
	if rule := e.ReasonRule(cloudy, 10); rule != "heavy_cloud" {
		t.Fatalf("expected heavy_cloud, got %s", rule)
	}

	if rule := e.ReasonRule(neutral(), 20); rule != "score_band" {
		t.Fatalf("expected score_band fallback, got %s", rule)
	}
}

func TestNewInputValidation(t *testing.T) {
	if _, err := NewInput(frostMorning()); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
	bad := []func(*Input){
		func(in *Input) { in.CloudCoverSlot = 120 },
		func(in *Input) { in.TempMin = math.NaN() },
		func(in *Input) { in.TempMax = in.TempMin - 1 },
		func(in *Input) { in.Slot = "midnight" },
		func(in *Input) { in.ET07dAvg = -1 },
	}
	for i, mutate := range bad {
		in := frostMorning()
		mutate(&in)
		if _, err := NewInput(in); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestScoreSlotFlags(t *testing.T) {
	e := newTestEngine(t)
	conf := confidence.Compute(confidence.Input{ExpectedHours: 240, AvailableHours: 120, FallbackUsed: true, DayOffset: 5})
	ts := e.ScoreSlot(frostMorning(), NoAdjustment, true, conf)
	want := map[string]bool{FlagFrost: true, FlagDry: true, FlagSun: true, FlagLowConfidence: true}
	for _, f := range ts.Flags {
		delete(want, f)
	}
	if len(want) != 0 {
		t.Fatalf("missing flags %v in %v", want, ts.Flags)
	}
	if ts.Level != LevelHigh || ts.Slot != SlotMorning {
		t.Fatalf("unexpected slot score %+v", ts)
	}
}

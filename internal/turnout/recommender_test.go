package turnout

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/i474232898/pasture-risk/internal/params"
	"github.com/i474232898/pasture-risk/internal/scoring"
)

func ptr(v float64) *float64 { return &v }

func newRecommender(t *testing.T, cfg PastureConfig, analyses HayAnalyses) *Recommender {
	t.Helper()
	e, err := scoring.NewEngine(params.Default())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	r, err := NewRecommender(cfg, e, analyses)
	if err != nil {
		t.Fatalf("new recommender: %v", err)
	}
	return r
}

func emsHorse() HorseProfile {
	return HorseProfile{
		ID:          "h1",
		MassKg:      500,
		IsEMSRisk:   true,
		Muzzle:      MuzzleNone,
		HayKgPerDay: 10,
		HayNscPct:   ptr(10),
		IsActive:    true,
	}
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestBudgetScenario(t *testing.T) {
	r := newRecommender(t, DefaultPastureConfig(), nil)
	w := Window{Date: "2024-10-15", Slot: scoring.SlotMorning}

	rec, err := r.ForWindow(emsHorse(), w, 50, scoring.LevelSafe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ex := rec.Explain
	if ex.NSCBudgetG != 4000 {
		t.Fatalf("expected budget 4000 g, got %v", ex.NSCBudgetG)
	}
	if !near(ex.BaseNscG, 897, 1e-6) {
		t.Fatalf("expected base 897 g (10 kg x 0.897 DM x 10%%), got %v", ex.BaseNscG)
	}
	if !near(ex.NscAllowG, 3103, 1e-6) {
		t.Fatalf("expected allowance 3103 g, got %v", ex.NscAllowG)
	}
	if !near(ex.PastureNscPct, 14, 1e-9) || !near(ex.NscPerHourG, 140, 1e-9) {
		t.Fatalf("expected 14%% / 140 g/h, got %v / %v", ex.PastureNscPct, ex.NscPerHourG)
	}
	if rec.TurnoutMin != 180 {
		t.Fatalf("expected clamp to 180 min, got %d", rec.TurnoutMin)
	}
	if rec.FormulaVersion == "" || rec.ParamsVersion != params.DefaultVersion || rec.PastureVersion == "" {
		t.Fatalf("missing version tags: %+v", rec)
	}

	rec, _ = r.ForWindow(emsHorse(), w, 50, scoring.LevelModerate)
	if rec.TurnoutMin != 90 || rec.Explain.Rule != RuleYellowCap {
		t.Fatalf("expected moderate cap 90, got %d (%s)", rec.TurnoutMin, rec.Explain.Rule)
	}
}

func TestRedForbidden(t *testing.T) {
	r := newRecommender(t, DefaultPastureConfig(), nil)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		h := emsHorse()
		h.MassKg = 200 + rng.Float64()*600
		h.HayKgPerDay = rng.Float64() * 25
		h.IsEMSRisk = rng.Intn(2) == 0
		rec, err := r.ForWindow(h, Window{}, rng.Intn(101), scoring.LevelHigh)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.TurnoutMin != 0 {
			t.Fatalf("high level with redForbidden must give 0, got %d", rec.TurnoutMin)
		}
	}
}

func TestQuantizationProperty(t *testing.T) {
	cfg := DefaultPastureConfig()
	cfg.MinTurnoutMin = 30
	cfg.MaxTurnoutMin = 240
	cfg.StepMin = 10
	cfg.YellowCapMin = 120
	cfg.RedForbidden = false
	r := newRecommender(t, cfg, nil)

	rng := rand.New(rand.NewSource(11))
	levels := []scoring.Level{scoring.LevelSafe, scoring.LevelModerate, scoring.LevelHigh}
	for i := 0; i < 500; i++ {
		h := HorseProfile{
			ID:          "q",
			MassKg:      200 + rng.Float64()*600,
			IsEMSRisk:   rng.Intn(2) == 0,
			Muzzle:      []Muzzle{MuzzleNone, MuzzleOn}[rng.Intn(2)],
			HayKgPerDay: rng.Float64() * 12,
			HayNscPct:   ptr(4 + rng.Float64()*16),
			IsActive:    true,
		}
		if err := h.Validate(); err != nil {
			t.Fatalf("generated invalid horse: %v", err)
		}
		rec, err := r.ForWindow(h, Window{}, rng.Intn(101), levels[rng.Intn(3)])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Explain.Rule == RuleNoAllowance {
			if rec.TurnoutMin != 0 {
				t.Fatalf("no allowance must give 0")
			}
			continue
		}
		if rec.TurnoutMin%cfg.StepMin != 0 {
			t.Fatalf("turnout %d is not a multiple of %d", rec.TurnoutMin, cfg.StepMin)
		}
		if rec.TurnoutMin < cfg.MinTurnoutMin || rec.TurnoutMin > cfg.MaxTurnoutMin {
			t.Fatalf("turnout %d outside [%d, %d]", rec.TurnoutMin, cfg.MinTurnoutMin, cfg.MaxTurnoutMin)
		}
		if rec.Level == scoring.LevelModerate && rec.TurnoutMin > cfg.YellowCapMin {
			t.Fatalf("moderate turnout %d exceeds cap", rec.TurnoutMin)
		}
	}
}

func TestZeroAllowanceAndZeroIntake(t *testing.T) {
	r := newRecommender(t, DefaultPastureConfig(), nil)
	h := emsHorse()
	h.MassKg = 200
	h.HayKgPerDay = 25
	h.HayNscPct = ptr(20)
	rec, _ := r.ForWindow(h, Window{}, 10, scoring.LevelSafe)
	if rec.TurnoutMin != 0 || rec.Explain.NscAllowG != 0 || rec.Explain.Rule != RuleNoAllowance {
		t.Fatalf("expected zero allowance, got %+v", rec)
	}

	cfg := DefaultPastureConfig()
	cfg.IntakeRateMuzzle = 0
	r = newRecommender(t, cfg, nil)
	h = emsHorse()
	h.Muzzle = MuzzleOn
	rec, _ = r.ForWindow(h, Window{}, 10, scoring.LevelSafe)
	if rec.TurnoutMin != 0 {
		t.Fatalf("expected zero minutes for zero intake, got %d", rec.TurnoutMin)
	}
}

func TestMuzzleHalvesIntake(t *testing.T) {
	r := newRecommender(t, DefaultPastureConfig(), nil)
	h := emsHorse()
	open, _ := r.ForWindow(h, Window{}, 50, scoring.LevelSafe)
	h.Muzzle = MuzzleOn
	muzzled, _ := r.ForWindow(h, Window{}, 50, scoring.LevelSafe)
	if !near(muzzled.Explain.NscPerHourG*2, open.Explain.NscPerHourG, 1e-9) {
		t.Fatalf("muzzle must halve NSC intake: %v vs %v", muzzled.Explain.NscPerHourG, open.Explain.NscPerHourG)
	}
}

func TestConcentrateCountsTowardsBase(t *testing.T) {
	r := newRecommender(t, DefaultPastureConfig(), nil)
	h := emsHorse()
	h.ConcKgPerDay = ptr(1)
	h.ConcNscPct = ptr(30)
	rec, _ := r.ForWindow(h, Window{}, 50, scoring.LevelSafe)
	if !near(rec.Explain.BaseNscG, 897+300, 1e-6) {
		t.Fatalf("expected base 1197 g, got %v", rec.Explain.BaseNscG)
	}
}

func TestNscBreakpoints(t *testing.T) {
	cfg := DefaultPastureConfig()
	tests := []struct {
		score int
		want  float64
	}{
		{0, 8},
		{20, 8},
		{21, 8.2},
		{40, 12},
		{50, 14},
		{60, 16},
		{70, 19},
		{80, 22},
		{81, 25},
		{100, 25},
	}
	for _, tt := range tests {
		if got := cfg.NscPctForScore(tt.score); !near(got, tt.want, 1e-9) {
			t.Errorf("score %d: expected %v, got %v", tt.score, tt.want, got)
		}
	}
}

func TestHayAnalysisReference(t *testing.T) {
	r := newRecommender(t, DefaultPastureConfig(), AnalysisTable{"lab-2024-07": 10})
	h := emsHorse()
	h.HayNscPct = nil
	h.HayAnalysisRef = "lab-2024-07"
	if err := h.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	rec, err := r.ForWindow(h, Window{}, 50, scoring.LevelSafe)
	if err != nil || !near(rec.Explain.BaseNscG, 897, 1e-6) {
		t.Fatalf("expected analysis to resolve, got %v %+v", err, rec.Explain)
	}

	h.HayAnalysisRef = "missing"
	if _, err := r.ForWindow(h, Window{}, 50, scoring.LevelSafe); !errors.Is(err, ErrUnknownAnalysis) {
		t.Fatalf("expected ErrUnknownAnalysis, got %v", err)
	}
}

func TestHorseValidation(t *testing.T) {
	bad := []func(*HorseProfile){
		func(h *HorseProfile) { h.MassKg = 150 },
		func(h *HorseProfile) { h.HayKgPerDay = 30 },
		func(h *HorseProfile) { h.HayNscPct = ptr(25) },
		func(h *HorseProfile) { h.HayAnalysisRef = "both" },
		func(h *HorseProfile) { h.HayNscPct = nil },
		func(h *HorseProfile) { h.Muzzle = "maybe" },
		func(h *HorseProfile) { h.ConcKgPerDay = ptr(2) },
		func(h *HorseProfile) { h.ConcKgPerDay = ptr(2); h.ConcNscPct = ptr(60) },
		func(h *HorseProfile) { h.ID = "" },
	}
	for i, mutate := range bad {
		h := emsHorse()
		mutate(&h)
		if err := h.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if err := emsHorse().Validate(); err != nil {
		t.Fatalf("expected valid horse: %v", err)
	}
}

func TestPlanUsesPerHorseThresholds(t *testing.T) {
	r := newRecommender(t, DefaultPastureConfig(), nil)
	ems := emsHorse()
	std := emsHorse()
	std.ID = "h2"
	std.IsEMSRisk = false
	inactive := emsHorse()
	inactive.ID = "h3"
	inactive.IsActive = false

	windows := []WindowScore{{Window: Window{Date: "2024-10-15", Slot: scoring.SlotMorning}, Score: 65}}
	recs, skipped := r.Plan([]HorseProfile{ems, std, inactive}, windows)
	if len(skipped) != 0 {
		t.Fatalf("unexpected skipped: %v", skipped)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	for _, rec := range recs {
		switch rec.HorseID {
		case "h1":
			if rec.Level != scoring.LevelHigh || rec.TurnoutMin != 0 {
				t.Fatalf("EMS horse at 65 must be high and kept in: %+v", rec)
			}
		case "h2":
			if rec.Level != scoring.LevelModerate || rec.TurnoutMin == 0 {
				t.Fatalf("standard horse at 65 must be moderate: %+v", rec)
			}
		}
	}
}

func TestLoadPastureConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pasture.yaml")
	data := []byte(`version: paddock-north
maxTurnoutMin: 240
yellowCapMin: 120
breakpoints:
  - upTo: 30
    mode: fixed
    nscPct: 9
  - upTo: 70
    mode: linear
    fromPct: 9
    toPct: 17
aboveNscPct: 20
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadPastureConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Version != "paddock-north" || cfg.MaxTurnoutMin != 240 || len(cfg.Breakpoints) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.StepMin != 15 || cfg.IntakeRateNoMuzzle != 1.0 {
		t.Fatalf("defaults not kept for absent keys: %+v", cfg)
	}
	if got := cfg.NscPctForScore(50); !near(got, 13, 1e-9) {
		t.Fatalf("expected 13%%, got %v", got)
	}

	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("stepMin: 7\n"), 0o644)
	if _, err := LoadPastureConfig(bad); err == nil {
		t.Fatalf("expected validation error for misaligned step")
	}
}

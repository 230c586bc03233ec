package turnout

import (
	"errors"
	"math"

	"github.com/i474232898/pasture-risk/internal/common"
	"github.com/i474232898/pasture-risk/internal/scoring"
)

// Daily NSC budgets in grams per kg bodyweight, and hay dry-matter fraction.
const (
	BudgetEMSGPerKg      = 8.0
	BudgetStandardGPerKg = 12.0
	HayDryMatter         = 0.897
)

// Window identifies a day and time slot.
type Window struct {
	Date string       `json:"date"`
	Slot scoring.Slot `json:"slot"`
}

// Explain carries every intermediate value of a recommendation.
type Explain struct {
	NSCBudgetG         float64 `json:"NSCBudgetG"`
	BaseNscG           float64 `json:"baseNscG"`
	NscAllowG          float64 `json:"nscAllowG"`
	PastureNscPct      float64 `json:"pastureNscPct"`
	IntakeRateKgDmPerH float64 `json:"intakeRateKgDmPerH"`
	NscPerHourG        float64 `json:"nscPerHourG"`
	Rule               string  `json:"rule"`
}

// Recommendation is the allowed turnout for one horse and window.
type Recommendation struct {
	HorseID        string        `json:"horseId"`
	Window         Window        `json:"window"`
	TurnoutMin     int           `json:"turnoutMin"`
	Score          int           `json:"score"`
	Level          scoring.Level `json:"level"`
	Explain        Explain       `json:"explain"`
	FormulaVersion string        `json:"formulaVersion"`
	ParamsVersion  string        `json:"paramsVersion"`
	PastureVersion string        `json:"pastureVersion"`
}

// Rules recorded in Explain.Rule.
const (
	RuleRedForbidden = "red_forbidden"
	RuleNoAllowance  = "no_allowance"
	RuleBudget       = "budget"
	RuleYellowCap    = "yellow_cap"
)

// Recommender turns scores into turnout minutes.
type Recommender struct {
	cfg      PastureConfig
	engine   *scoring.Engine
	analyses HayAnalyses
}

// NewRecommender validates cfg. analyses may be nil when no horse uses a
// hay analysis reference.
func NewRecommender(cfg PastureConfig, engine *scoring.Engine, analyses HayAnalyses) (*Recommender, error) {
	if engine == nil {
		return nil, errors.New("turnout recommender requires a scoring engine")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Recommender{cfg: cfg, engine: engine, analyses: analyses}, nil
}

// Config returns the active pasture policy.
func (r *Recommender) Config() PastureConfig {
	return r.cfg
}

// ForWindow computes the recommendation for horse at score and level.
// It fails only when the horse's hay analysis reference cannot be resolved.
func (r *Recommender) ForWindow(horse HorseProfile, window Window, score int, level scoring.Level) (Recommendation, error) {
	hayNsc, err := horse.hayNsc(r.analyses)
	if err != nil {
		return Recommendation{}, err
	}

	perKg := BudgetStandardGPerKg
	if horse.IsEMSRisk {
		perKg = BudgetEMSGPerKg
	}
	budget := horse.MassKg * perKg

	base := horse.HayKgPerDay * HayDryMatter * hayNsc / 100 * 1000
	if horse.ConcKgPerDay != nil && horse.ConcNscPct != nil {
		base += *horse.ConcKgPerDay * *horse.ConcNscPct / 100 * 1000
	}
	allow := common.Clamp(budget-base, 0, budget)

	pct := r.cfg.NscPctForScore(score)
	intake := r.cfg.IntakeRate(horse.Muzzle)
	rate := intake * pct / 100 * 1000

	ex := Explain{
		NSCBudgetG:         budget,
		BaseNscG:           base,
		NscAllowG:          allow,
		PastureNscPct:      pct,
		IntakeRateKgDmPerH: intake,
		NscPerHourG:        rate,
	}

	minutes := 0
	switch {
	case level == scoring.LevelHigh && r.cfg.RedForbidden:
		ex.Rule = RuleRedForbidden
	case allow <= 0 || rate <= 0:
		ex.Rule = RuleNoAllowance
	default:
		ex.Rule = RuleBudget
		raw := allow / rate * 60
		step := float64(r.cfg.StepMin)
		minutes = int(math.Round(raw/step)) * r.cfg.StepMin
		minutes = common.ClampInt(minutes, r.cfg.MinTurnoutMin, r.cfg.MaxTurnoutMin)
		if level == scoring.LevelModerate && minutes > r.cfg.YellowCapMin {
			minutes = r.cfg.YellowCapMin
			ex.Rule = RuleYellowCap
		}
	}

	rec := Recommendation{
		HorseID:        horse.ID,
		Window:         window,
		TurnoutMin:     minutes,
		Score:          score,
		Level:          level,
		Explain:        ex,
		FormulaVersion: r.engine.FormulaVersion(),
		ParamsVersion:  r.engine.ParamsVersion(),
		PastureVersion: r.cfg.Version,
	}
	return rec, nil
}

// WindowScore is a scored window as produced by an evaluation cycle.
type WindowScore struct {
	Window Window `json:"window"`
	Score  int    `json:"score"`
}

// Plan recommends turnout for every active horse and window. Each horse's
// level is derived with its own EMS thresholds. Horses whose profile cannot
// be resolved are returned in skipped.
func (r *Recommender) Plan(horses []HorseProfile, windows []WindowScore) (recs []Recommendation, skipped map[string]error) {
	skipped = map[string]error{}
	for _, h := range horses {
		if !h.IsActive {
			continue
		}
		for _, w := range windows {
			level := r.engine.RiskLevel(w.Score, h.IsEMSRisk)
			rec, err := r.ForWindow(h, w.Window, w.Score, level)
			if err != nil {
				skipped[h.ID] = err
				break
			}
			recs = append(recs, rec)
		}
	}
	return recs, skipped
}

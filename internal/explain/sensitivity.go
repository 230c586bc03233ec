package explain

import (
	"math"
	"sort"

	"github.com/i474232898/pasture-risk/internal/common"
	"github.com/i474232898/pasture-risk/internal/scoring"
)

// Perturbation is the relative change applied in each direction.
const Perturbation = 0.10

// Scorer is the oracle the analyzer queries. *scoring.Engine satisfies it.
type Scorer interface {
	CalculateScore(in scoring.Input, adj scoring.PastureAdjustment) int
}

// SensitivityResult reports how strongly one input moves the score.
type SensitivityResult struct {
	Field       string  `json:"field"`
	BaseValue   float64 `json:"baseValue"`
	DeltaUp     int     `json:"deltaUp"`
	DeltaDown   int     `json:"deltaDown"`
	Sensitivity float64 `json:"sensitivity"`
	Rank        int     `json:"rank"`
}

type field struct {
	name     string
	min, max float64
	get      func(scoring.Input) float64
	set      func(*scoring.Input, float64)
}

var scalarFields = []field{
	{"tempMin", -30, 45, func(in scoring.Input) float64 { return in.TempMin }, func(in *scoring.Input, v float64) { in.TempMin = v }},
	{"tempMax", -30, 45, func(in scoring.Input) float64 { return in.TempMax }, func(in *scoring.Input, v float64) { in.TempMax = v }},
	{"radiationMorning", 0, 1500, func(in scoring.Input) float64 { return in.RadiationMorning }, func(in *scoring.Input, v float64) { in.RadiationMorning = v }},
	{"cloudCoverSlot", 0, 100, func(in scoring.Input) float64 { return in.CloudCoverSlot }, func(in *scoring.Input, v float64) { in.CloudCoverSlot = v }},
	{"precip7dSum", 0, 2000, func(in scoring.Input) float64 { return in.Precip7dSum }, func(in *scoring.Input, v float64) { in.Precip7dSum = v }},
	{"wind3dAvg", 0, 60, func(in scoring.Input) float64 { return in.Wind3dAvg }, func(in *scoring.Input, v float64) { in.Wind3dAvg = v }},
	{"relativeHumidityMorning", 0, 100, func(in scoring.Input) float64 { return in.RelativeHumidityMorning }, func(in *scoring.Input, v float64) { in.RelativeHumidityMorning = v }},
	{"et0_7dAvg", 0, 20, func(in scoring.Input) float64 { return in.ET07dAvg }, func(in *scoring.Input, v float64) { in.ET07dAvg = v }},
}

// Analyzer measures one-at-a-time sensitivity of a Scorer.
type Analyzer struct {
	scorer Scorer
	adj    scoring.PastureAdjustment
}

// NewAnalyzer creates an Analyzer probing scorer with adj held fixed.
func NewAnalyzer(scorer Scorer, adj scoring.PastureAdjustment) *Analyzer {
	return &Analyzer{scorer: scorer, adj: adj}
}

// Analyze perturbs every scalar field of in by ±10% with all other fields
// fixed and ranks fields by mean absolute score change. Perturbed values are
// clamped to the field's physical bounds.
func (a *Analyzer) Analyze(in scoring.Input) []SensitivityResult {
	base := a.scorer.CalculateScore(in, a.adj)

	results := make([]SensitivityResult, 0, len(scalarFields))
	for _, f := range scalarFields {
		v := f.get(in)

		up := in
		f.set(&up, common.Clamp(v*(1+Perturbation), f.min, f.max))
		down := in
		f.set(&down, common.Clamp(v*(1-Perturbation), f.min, f.max))

		du := a.scorer.CalculateScore(up, a.adj) - base
		dd := a.scorer.CalculateScore(down, a.adj) - base
		results = append(results, SensitivityResult{
			Field:       f.name,
			BaseValue:   v,
			DeltaUp:     du,
			DeltaDown:   dd,
			Sensitivity: (math.Abs(float64(du)) + math.Abs(float64(dd))) / 2,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Sensitivity > results[j].Sensitivity
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

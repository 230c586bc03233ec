package explain

import (
	"math"
	"sort"

	"github.com/i474232898/pasture-risk/internal/scoring"
)

// MinContribution is the smallest |contribution| shown as its own factor.
const MinContribution = 1.0

// Factor is one labeled contribution to a score.
type Factor struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	Unit         string  `json:"unit"`
}

// Explanation decomposes a score. Base + Σ Factors + Omitted + Rounding
// reproduces Score exactly.
type Explanation struct {
	Score          int      `json:"score"`
	Base           float64  `json:"base"`
	Factors        []Factor `json:"factors"`
	Omitted        float64  `json:"omitted"`
	Rounding       float64  `json:"rounding"`
	Reason         string   `json:"reason"`
	FormulaVersion string   `json:"formulaVersion"`
	ParamsVersion  string   `json:"paramsVersion"`
}

// Explainer re-derives factor contributions from the scoring engine.
type Explainer struct {
	engine *scoring.Engine
}

// NewExplainer creates an Explainer over engine.
func NewExplainer(engine *scoring.Engine) *Explainer {
	return &Explainer{engine: engine}
}

// Explain decomposes score for in. score is the value shown to the user;
// any difference to the recomputed contributions is reported as Rounding.
func (x *Explainer) Explain(in scoring.Input, adj scoring.PastureAdjustment, score int) Explanation {
	b := x.engine.Contributions(in, adj)

	all := []Factor{
		{Key: "temperature", Label: "Frost / cold night", Value: in.TempMin, Contribution: b.Temperature, Unit: "°C"},
		{Key: "radiation", Label: "Morning sunshine", Value: in.RadiationMorning, Contribution: b.Radiation, Unit: "W/m²"},
		{Key: "humidity", Label: "Dry morning air", Value: in.RelativeHumidityMorning, Contribution: b.Humidity, Unit: "%"},
		{Key: "cloud", Label: "Cloud cover", Value: in.CloudCoverSlot, Contribution: b.Cloud, Unit: "%"},
		{Key: "wind", Label: "Drying wind", Value: in.Wind3dAvg, Contribution: b.Wind, Unit: "km/h"},
		{Key: "diurnal", Label: "Day/night temperature swing", Value: in.TempMax - in.TempMin, Contribution: b.Diurnal, Unit: "°C"},
		{Key: "et0", Label: "Evaporative demand", Value: in.ET07dAvg, Contribution: b.ET0, Unit: "mm/day"},
		{Key: "precipitation", Label: "Dry week", Value: in.Precip7dSum, Contribution: b.Precipitation, Unit: "mm"},
		{Key: "heat", Label: "Heat without drought", Value: in.TempMax, Contribution: b.Heat, Unit: "°C"},
		{Key: "pasture", Label: "Pasture condition", Value: adj.Multiplier, Contribution: b.Pasture, Unit: ""},
	}

	ex := Explanation{
		Score:          score,
		Base:           b.Base,
		Factors:        []Factor{},
		Reason:         x.engine.Reason(in, score),
		FormulaVersion: x.engine.FormulaVersion(),
		ParamsVersion:  x.engine.ParamsVersion(),
	}
	for _, f := range all {
		if math.Abs(f.Contribution) < MinContribution {
			ex.Omitted += f.Contribution
			continue
		}
		ex.Factors = append(ex.Factors, f)
	}
	sort.SliceStable(ex.Factors, func(i, j int) bool {
		return math.Abs(ex.Factors[i].Contribution) > math.Abs(ex.Factors[j].Contribution)
	})
	ex.Rounding = float64(score) - b.Adjusted()
	return ex
}

// Total is Base plus every shown and omitted contribution, before rounding.
func (e Explanation) Total() float64 {
	sum := e.Base + e.Omitted
	for _, f := range e.Factors {
		sum += f.Contribution
	}
	return sum
}

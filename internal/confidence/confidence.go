package confidence

import (
	"fmt"
	"math"
)

// Factor keys of a Breakdown.
const (
	FactorCompleteness = "completeness"
	FactorFreshness    = "freshness"
	FactorFallback     = "fallback"
	FactorConsistency  = "consistency"
	FactorHorizon      = "horizon"
	FactorValidation   = "validation"
)

// Penalty caps and rates. Ages are in minutes.
const (
	completenessCap   = 40.0
	freshnessGrace    = 30.0
	freshnessPerMin   = 1.0 / 6
	freshnessCap      = 10.0
	fallbackPenalty   = 10.0
	horizonPerDay     = 3.0
	horizonCap        = 18.0
	validationPenalty = 5.0
)

type tier struct {
	above   float64
	penalty float64
}

// Tiers are checked from the highest threshold down; the first exceeded wins.
var (
	tempTiers      = []tier{{3.0, 18}, {1.5, 12}, {0.5, 6}}
	humidityTiers  = []tier{{20, 12}, {10, 8}, {5, 4}}
	radiationTiers = []tier{{300, 8}, {150, 4}}
)

// ModelDeltas are mean absolute differences against a secondary model.
type ModelDeltas struct {
	TempC     float64 `json:"tempC"`
	RHPct     float64 `json:"rhPct"`
	Radiation float64 `json:"radiationWm2"`
}

// Input aggregates everything that discounts trust in a score.
type Input struct {
	Model              string       `json:"model"`
	FallbackUsed       bool         `json:"fallbackUsed"`
	AgeMinutes         float64      `json:"ageMinutes"`
	ExpectedHours      int          `json:"expectedHours"`
	AvailableHours     int          `json:"availableHours"`
	Deltas             *ModelDeltas `json:"deltas,omitempty"`
	DayOffset          int          `json:"dayOffset"`
	ValidationWarnings bool         `json:"validationWarnings"`
}

// Factor is one itemized penalty.
type Factor struct {
	Penalty float64 `json:"penalty"`
	Reason  string  `json:"reason"`
}

// Breakdown is a 0–100 confidence score with its penalties.
// Score always equals clamp(100 - sum of penalties, 0, 100), rounded.
type Breakdown struct {
	Score   int               `json:"score"`
	Factors map[string]Factor `json:"factors"`
}

// TotalPenalty sums all factor penalties.
func (b Breakdown) TotalPenalty() float64 {
	var sum float64
	for _, k := range []string{FactorCompleteness, FactorFreshness, FactorFallback, FactorConsistency, FactorHorizon, FactorValidation} {
		sum += b.Factors[k].Penalty
	}
	return sum
}

// Compute derives the confidence breakdown for in. It is a pure function.
func Compute(in Input) Breakdown {
	factors := map[string]Factor{
		FactorCompleteness: completeness(in),
		FactorFreshness:    freshness(in),
		FactorFallback:     fallback(in),
		FactorConsistency:  consistency(in),
		FactorHorizon:      horizon(in),
		FactorValidation:   validationFactor(in),
	}
	b := Breakdown{Factors: factors}
	score := math.Round(100 - b.TotalPenalty())
	b.Score = int(math.Max(0, math.Min(100, score)))
	return b
}

func completeness(in Input) Factor {
	if in.ExpectedHours <= 0 {
		return Factor{Reason: "no hours expected"}
	}
	missing := in.ExpectedHours - in.AvailableHours
	if missing <= 0 {
		return Factor{Reason: fmt.Sprintf("all %d hours present", in.ExpectedHours)}
	}
	ratio := float64(missing) / float64(in.ExpectedHours)
	p := math.Min(completenessCap, ratio*100)
	return Factor{
		Penalty: p,
		Reason:  fmt.Sprintf("%d of %d hours missing (%.0f%%)", missing, in.ExpectedHours, ratio*100),
	}
}

func freshness(in Input) Factor {
	over := in.AgeMinutes - freshnessGrace
	if over <= 0 {
		return Factor{Reason: fmt.Sprintf("data is %.0f min old", math.Max(0, in.AgeMinutes))}
	}
	return Factor{
		Penalty: math.Min(freshnessCap, over*freshnessPerMin),
		Reason:  fmt.Sprintf("data is %.0f min old (%.0f min beyond %.0f)", in.AgeMinutes, over, freshnessGrace),
	}
}

func fallback(in Input) Factor {
	if !in.FallbackUsed {
		return Factor{Reason: fmt.Sprintf("primary source %s", in.Model)}
	}
	return Factor{Penalty: fallbackPenalty, Reason: fmt.Sprintf("fallback source %s in use", in.Model)}
}

func tierPenalty(v float64, tiers []tier) float64 {
	for _, t := range tiers {
		if v > t.above {
			return t.penalty
		}
	}
	return 0
}

func consistency(in Input) Factor {
	if in.Deltas == nil {
		return Factor{Reason: "no secondary model to compare"}
	}
	d := in.Deltas
	p := tierPenalty(math.Abs(d.TempC), tempTiers) +
		tierPenalty(math.Abs(d.RHPct), humidityTiers) +
		tierPenalty(math.Abs(d.Radiation), radiationTiers)
	return Factor{
		Penalty: p,
		Reason:  fmt.Sprintf("model spread ΔT %.1f°C, ΔRH %.0f%%, ΔRad %.0f W/m²", d.TempC, d.RHPct, d.Radiation),
	}
}

func horizon(in Input) Factor {
	if in.DayOffset <= 0 {
		return Factor{Reason: "today"}
	}
	return Factor{
		Penalty: math.Min(horizonCap, horizonPerDay*float64(in.DayOffset)),
		Reason:  fmt.Sprintf("forecast %d days ahead", in.DayOffset),
	}
}

func validationFactor(in Input) Factor {
	if !in.ValidationWarnings {
		return Factor{Reason: "validation passed without warnings"}
	}
	return Factor{Penalty: validationPenalty, Reason: "validation reported warnings"}
}

package scoring

import "fmt"

type reasonRule struct {
	name  string
	match func(c coefficients, in Input, score int) bool
	text  func(in Input, score int) string
}

// reasonRules are evaluated in order; the first match wins.
var reasonRules = []reasonRule{
	{
		name: "frost_sun_morning",
		match: func(c coefficients, in Input, _ int) bool {
			return in.Slot == SlotMorning && in.TempMin <= c.frostThreshold && in.RadiationMorning >= c.radThreshold
		},
		text: func(in Input, _ int) string {
			return fmt.Sprintf("Frost overnight (%.1f°C) followed by morning sun: fructan accumulated in the cold is still high at turnout.", in.TempMin)
		},
	},
	{
		name: "cold_sun_morning",
		match: func(c coefficients, in Input, _ int) bool {
			return in.Slot == SlotMorning && in.TempMin <= c.coldThreshold && in.RadiationMorning >= c.radThreshold
		},
		text: func(in Input, _ int) string {
			return fmt.Sprintf("Cold night (%.1f°C) with morning sun: growth is slowed while photosynthesis builds sugars.", in.TempMin)
		},
	},
	{
		name: "high_et0_clear",
		match: func(c coefficients, in Input, _ int) bool {
			return in.ET07dAvg >= c.et0Max && in.CloudCoverSlot < c.cloudMid/2
		},
		text: func(in Input, _ int) string {
			return fmt.Sprintf("High evaporative demand (%.1f mm/day) under clear skies stresses the sward.", in.ET07dAvg)
		},
	},
	{
		name: "drought",
		match: func(c coefficients, in Input, _ int) bool {
			return in.Precip7dSum < c.dryPrecipMax && in.ET07dAvg >= c.et0Min
		},
		text: func(in Input, _ int) string {
			return fmt.Sprintf("Dry week (%.1f mm rain in 7 days): drought-stressed grass stores sugars.", in.Precip7dSum)
		},
	},
	{
		name: "heavy_cloud",
		match: func(c coefficients, in Input, _ int) bool {
			return in.CloudCoverSlot >= c.cloudHigh
		},
		text: func(in Input, _ int) string {
			return fmt.Sprintf("Heavy cloud cover (%.0f%%) limits photosynthesis.", in.CloudCoverSlot)
		},
	},
}

// Reason returns a single human-readable explanation for score.
func (e *Engine) Reason(in Input, score int) string {
	for _, r := range reasonRules {
		if r.match(e.c, in, score) {
			return r.text(in, score)
		}
	}
	switch {
	case score < 30:
		return "Weather conditions favour low fructan levels."
	case score < 60:
		return "Moderate fructan risk: no single factor dominates."
	default:
		return "Elevated fructan risk from combined weather factors."
	}
}

// ReasonRule names the rule Reason would pick, or "score_band" for the fallback.
func (e *Engine) ReasonRule(in Input, score int) string {
	for _, r := range reasonRules {
		if r.match(e.c, in, score) {
			return r.name
		}
	}
	return "score_band"
}

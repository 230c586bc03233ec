package scoring

import (
	"math"

	"github.com/i474232898/pasture-risk/internal/common"
	"github.com/i474232898/pasture-risk/internal/params"
)

// FormulaVersion identifies the rule set implemented by Contributions.
const FormulaVersion = "fructan-formula-3"

type slotWeights map[Slot]float64

// coefficients are resolved from a registry once, at engine construction.
type coefficients struct {
	base float64

	frostMax       float64
	frostThreshold float64
	coldThreshold  float64
	coldRatio      float64
	frostSlot      slotWeights

	et0Min       float64
	et0Max       float64
	et0MaxScore  float64
	dryPrecipMax float64
	dryPrecipBon float64
	dryWindMin   float64
	dryWindBon   float64
	dryMax       float64
	drySlot      slotWeights

	diurnalMin   float64
	diurnalMax   float64
	diurnalBoost float64
	diurnalSlot  slotWeights

	cloudMid        float64
	cloudMidRelief  float64
	cloudHigh       float64
	cloudHighRelief float64

	heatThreshold float64
	heatPrecipMin float64
	heatET0Max    float64
	heatRelief    float64

	radThreshold float64
	radFull      float64
	radMax       float64

	rhThreshold float64
	rhBonus     float64

	standard Thresholds
	ems      Thresholds
}

// Engine computes the 0–100 fructan risk score for one window.
// It is immutable and safe for concurrent use.
type Engine struct {
	c             coefficients
	paramsVersion string
}

// NewEngine resolves every coefficient from reg. It refuses a registry that
// fails its self-check or lacks a key the formula needs.
func NewEngine(reg *params.Registry) (*Engine, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	r := resolver{reg: reg}
	budget := r.get("ems.factor.budget")
	c := coefficients{
		base: r.get("ems.base.score"),

		frostMax:       r.get("weights.temperature") * budget,
		frostThreshold: r.get("ems.frost.threshold"),
		coldThreshold:  r.get("ems.cold.threshold"),
		coldRatio:      r.get("ems.cold.ratio"),
		frostSlot:      r.slots("ems.slot.frost"),

		et0Min:       r.get("ems.dry.et0_min"),
		et0Max:       r.get("ems.dry.et0_max"),
		et0MaxScore:  r.get("ems.dry.et0_max_score"),
		dryPrecipMax: r.get("ems.dry.precip_threshold"),
		dryPrecipBon: r.get("ems.dry.precip_bonus"),
		dryWindMin:   r.get("ems.dry.wind_threshold"),
		dryWindBon:   r.get("ems.dry.wind_bonus"),
		dryMax:       r.get("weights.dryness") * budget,
		drySlot:      r.slots("ems.slot.dry"),

		diurnalMin:   r.get("ems.diurnal.min_range"),
		diurnalMax:   r.get("ems.diurnal.max_range"),
		diurnalBoost: r.get("weights.diurnal") * budget,
		diurnalSlot:  r.slots("ems.slot.diurnal"),

		cloudMid:        r.get("ems.cloud.mid_threshold"),
		cloudMidRelief:  r.get("ems.cloud.mid_relief"),
		cloudHigh:       r.get("ems.cloud.high_threshold"),
		cloudHighRelief: r.get("ems.cloud.high_relief"),

		heatThreshold: r.get("ems.heat.threshold"),
		heatPrecipMin: r.get("ems.heat.precip_min"),
		heatET0Max:    r.get("ems.heat.et0_max"),
		heatRelief:    r.get("ems.heat.relief"),

		radThreshold: r.get("ems.rad.threshold"),
		radFull:      r.get("ems.rad.full"),
		radMax:       r.get("weights.radiation") * budget,

		rhThreshold: r.get("ems.rh.dry_threshold"),
		rhBonus:     r.get("weights.humidity") * budget,

		standard: Thresholds{SafeMax: int(r.get("level.standard.safe_max")), ModerateMax: int(r.get("level.standard.moderate_max"))},
		ems:      Thresholds{SafeMax: int(r.get("level.ems.safe_max")), ModerateMax: int(r.get("level.ems.moderate_max"))},
	}
	if r.err != nil {
		return nil, r.err
	}
	return &Engine{c: c, paramsVersion: reg.Version()}, nil
}

// ParamsVersion is the registry version the engine was built from.
func (e *Engine) ParamsVersion() string {
	return e.paramsVersion
}

// FormulaVersion is the rule set the engine implements.
func (e *Engine) FormulaVersion() string {
	return FormulaVersion
}

// Base is the score before any weather factor.
func (e *Engine) Base() float64 {
	return e.c.base
}

// Breakdown is the signed contribution of every factor to a score. It is the
// single formula shared by scoring and explanation.
type Breakdown struct {
	Base          float64 `json:"base"`
	Temperature   float64 `json:"temperature"`
	ET0           float64 `json:"et0"`
	Precipitation float64 `json:"precipitation"`
	Wind          float64 `json:"wind"`
	Diurnal       float64 `json:"diurnal"`
	Cloud         float64 `json:"cloud"`
	Heat          float64 `json:"heat"`
	Radiation     float64 `json:"radiation"`
	Humidity      float64 `json:"humidity"`
	Pasture       float64 `json:"pasture"`
}

// Weather is the unadjusted score: base plus all weather factors.
func (b Breakdown) Weather() float64 {
	return b.Base + b.Temperature + b.Dryness() + b.Diurnal + b.Cloud + b.Heat + b.Radiation + b.Humidity
}

// Dryness is the combined ET0, drought and wind stress.
func (b Breakdown) Dryness() float64 {
	return b.ET0 + b.Precipitation + b.Wind
}

// Adjusted is the unrounded score after the pasture adjustment.
func (b Breakdown) Adjusted() float64 {
	return b.Weather() + b.Pasture
}

// Final rounds and clamps the adjusted score to [0, 100].
func (b Breakdown) Final() int {
	return int(common.Clamp(math.Round(b.Adjusted()), 0, 100))
}

// Contributions evaluates every factor for in.
func (e *Engine) Contributions(in Input, adj PastureAdjustment) Breakdown {
	c := e.c
	b := Breakdown{Base: c.base}

	// Frost and cold nights.
	switch {
	case in.TempMin <= c.frostThreshold:
		b.Temperature = c.frostMax * c.frostSlot[in.Slot]
	case in.TempMin <= c.coldThreshold:
		b.Temperature = c.frostMax * c.coldRatio * c.frostSlot[in.Slot]
	}

	// Dryness stress, split back onto its three sources after the cap.
	et0 := common.Interpolate(in.ET07dAvg, c.et0Min, c.et0Max, c.et0MaxScore)
	var precip, wind float64
	if in.Precip7dSum < c.dryPrecipMax {
		precip = c.dryPrecipBon
	}
	if in.Wind3dAvg > c.dryWindMin {
		wind = c.dryWindBon
	}
	if raw := et0 + precip + wind; raw > 0 {
		scale := math.Min(raw, c.dryMax) / raw * c.drySlot[in.Slot]
		b.ET0 = et0 * scale
		b.Precipitation = precip * scale
		b.Wind = wind * scale
	}

	b.Diurnal = common.Interpolate(in.TempMax-in.TempMin, c.diurnalMin, c.diurnalMax, c.diurnalBoost) * c.diurnalSlot[in.Slot]

	switch {
	case in.CloudCoverSlot >= c.cloudHigh:
		b.Cloud = c.cloudHighRelief
	case in.CloudCoverSlot >= c.cloudMid:
		b.Cloud = c.cloudMidRelief
	}

	if in.TempMax > c.heatThreshold && (in.Precip7dSum >= c.heatPrecipMin || in.ET07dAvg < c.heatET0Max) {
		b.Heat = c.heatRelief
	}

	if in.Slot == SlotMorning {
		b.Radiation = common.Interpolate(in.RadiationMorning, c.radThreshold, c.radFull, c.radMax)
		if in.RelativeHumidityMorning < c.rhThreshold {
			b.Humidity = c.rhBonus
		}
	}

	weather := b.Weather()
	b.Pasture = weather*adj.Multiplier + adj.Offset - weather
	return b
}

// CalculateScore returns the rounded, clamped risk score for in.
func (e *Engine) CalculateScore(in Input, adj PastureAdjustment) int {
	return e.Contributions(in, adj).Final()
}

type resolver struct {
	reg *params.Registry
	err error
}

func (r *resolver) get(key string) float64 {
	v, err := r.reg.Get(key)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func (r *resolver) slots(prefix string) slotWeights {
	return slotWeights{
		SlotMorning: r.get(prefix + ".morning"),
		SlotNoon:    r.get(prefix + ".noon"),
		SlotEvening: r.get(prefix + ".evening"),
	}
}

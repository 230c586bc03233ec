package scoring

import (
	"github.com/i474232898/pasture-risk/internal/confidence"
)

// Flags attached to a TimeSlotScore.
const (
	FlagFrost         = "frost"
	FlagCold          = "cold"
	FlagDry           = "dry"
	FlagSun           = "high_radiation"
	FlagHeavyCloud    = "heavy_cloud"
	FlagHeatRelief    = "heat_relief"
	FlagLowConfidence = "low_confidence"
)

// LowConfidenceBelow marks scores whose confidence is under this value.
const LowConfidenceBelow = 60

// TimeSlotScore is the scored result for one day and window. It is created
// fresh every cycle and never mutated.
type TimeSlotScore struct {
	Slot       Slot                 `json:"slot"`
	Score      int                  `json:"score"`
	Level      Level                `json:"level"`
	Reason     string               `json:"reason"`
	Flags      []string             `json:"flags"`
	Confidence confidence.Breakdown `json:"confidence"`
	Input      Input                `json:"input"`
}

// ScoreSlot scores in and attaches level, reason, flags and conf.
func (e *Engine) ScoreSlot(in Input, adj PastureAdjustment, emsMode bool, conf confidence.Breakdown) TimeSlotScore {
	b := e.Contributions(in, adj)
	score := b.Final()
	return TimeSlotScore{
		Slot:       in.Slot,
		Score:      score,
		Level:      e.RiskLevel(score, emsMode),
		Reason:     e.Reason(in, score),
		Flags:      e.flags(in, b, conf),
		Confidence: conf,
		Input:      in,
	}
}

func (e *Engine) flags(in Input, b Breakdown, conf confidence.Breakdown) []string {
	flags := []string{}
	switch {
	case in.TempMin <= e.c.frostThreshold:
		flags = append(flags, FlagFrost)
	case in.TempMin <= e.c.coldThreshold:
		flags = append(flags, FlagCold)
	}
	if b.Dryness() > 0 {
		flags = append(flags, FlagDry)
	}
	if b.Radiation > 0 {
		flags = append(flags, FlagSun)
	}
	if in.CloudCoverSlot >= e.c.cloudHigh {
		flags = append(flags, FlagHeavyCloud)
	}
	if b.Heat < 0 {
		flags = append(flags, FlagHeatRelief)
	}
	if conf.Score < LowConfidenceBelow {
		flags = append(flags, FlagLowConfidence)
	}
	return flags
}

package scoring

// Level is the traffic-light classification of a score.
type Level string

const (
	LevelSafe     Level = "safe"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
)

// Thresholds are the highest scores still counted as safe and moderate.
type Thresholds struct {
	SafeMax     int `json:"safeMax"`
	ModerateMax int `json:"moderateMax"`
}

// Classify maps score onto a Level.
func (t Thresholds) Classify(score int) Level {
	switch {
	case score <= t.SafeMax:
		return LevelSafe
	case score <= t.ModerateMax:
		return LevelModerate
	default:
		return LevelHigh
	}
}

// Thresholds returns the table entry for the given mode.
func (e *Engine) Thresholds(emsMode bool) Thresholds {
	if emsMode {
		return e.c.ems
	}
	return e.c.standard
}

// RiskLevel classifies score with the standard or the stricter EMS thresholds.
func (e *Engine) RiskLevel(score int, emsMode bool) Level {
	return e.Thresholds(emsMode).Classify(score)
}

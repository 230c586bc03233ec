package weather

import (
	"fmt"
	"time"

	"github.com/i474232898/pasture-risk/internal/scoring"
	"github.com/i474232898/pasture-risk/internal/validation"
)

// Location represents a logical place for which we track pasture risk.
// City/Country identify it; Lat/Lon are resolved by geocoding when absent.
type Location struct {
	City    string   `json:"city"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	if l.City == "" && l.HasCoordinates() {
		return fmt.Sprintf("%.4f,%.4f", *l.Lat, *l.Lon)
	}
	return l.City + ":" + l.Country
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

// DayScores holds the three slot scores of one forecast day.
type DayScores struct {
	Date      string                  `json:"date"`
	DayOffset int                     `json:"dayOffset"`
	Slots     []scoring.TimeSlotScore `json:"slots"`
}

// Evaluation is the result of one fetch-validate-score cycle for a location.
// When State is blocked, Days is empty and no numbers may be displayed.
type Evaluation struct {
	ID             string                  `json:"id"`
	Location       Location                `json:"location"`
	Provider       string                  `json:"provider"`
	Model          string                  `json:"model"`
	FallbackUsed   bool                    `json:"fallbackUsed"`
	FetchedAt      time.Time               `json:"fetchedAt"` // always UTC
	EvaluatedAt    time.Time               `json:"evaluatedAt"`
	ParityHash     string                  `json:"parityHash"`
	EMSMode        bool                    `json:"emsMode"`
	Validation     validation.Result       `json:"validation"`
	State          validation.DisplayState `json:"state"`
	Days           []DayScores             `json:"days,omitempty"`
	FormulaVersion string                  `json:"formulaVersion"`
	ParamsVersion  string                  `json:"paramsVersion"`
}

// Window looks up the slot score for date and slot.
func (e Evaluation) Window(date string, slot scoring.Slot) (scoring.TimeSlotScore, bool) {
	for _, d := range e.Days {
		if d.Date != date {
			continue
		}
		for _, s := range d.Slots {
			if s.Slot == slot {
				return s, true
			}
		}
	}
	return scoring.TimeSlotScore{}, false
}

// Blocked reports whether the evaluation must not show any numbers.
func (e Evaluation) Blocked() bool {
	return e.State == validation.StateBlocked
}

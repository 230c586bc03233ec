package scoring

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Slot is one of the three daily time windows.
type Slot string

const (
	SlotMorning Slot = "morning"
	SlotNoon    Slot = "noon"
	SlotEvening Slot = "evening"
)

// Slots lists the windows in daily order.
var Slots = []Slot{SlotMorning, SlotNoon, SlotEvening}

// ParseSlot converts a query value into a Slot.
func ParseSlot(s string) (Slot, error) {
	switch Slot(s) {
	case SlotMorning, SlotNoon, SlotEvening:
		return Slot(s), nil
	}
	return "", fmt.Errorf("unknown slot %q", s)
}

// Input holds the weather aggregates for one day and window.
// Construct it with NewInput so out-of-range values never reach the engine.
type Input struct {
	TempMin                 float64 `json:"tempMin" validate:"gte=-30,lte=45"`
	TempMax                 float64 `json:"tempMax" validate:"gte=-30,lte=45,gtefield=TempMin"`
	RadiationMorning        float64 `json:"radiationMorning" validate:"gte=0,lte=1500"`
	CloudCoverSlot          float64 `json:"cloudCoverSlot" validate:"gte=0,lte=100"`
	Precip7dSum             float64 `json:"precip7dSum" validate:"gte=0,lte=2000"`
	Wind3dAvg               float64 `json:"wind3dAvg" validate:"gte=0,lte=60"`
	RelativeHumidityMorning float64 `json:"relativeHumidityMorning" validate:"gte=0,lte=100"`
	ET07dAvg                float64 `json:"et0_7dAvg" validate:"gte=0,lte=20"`
	Slot                    Slot    `json:"slot" validate:"required,oneof=morning noon evening"`
}

// NewInput validates in and returns it unchanged on success.
func NewInput(in Input) (Input, error) {
	if err := in.Validate(); err != nil {
		return Input{}, err
	}
	return in, nil
}

// Validate checks every field against its physical bounds. NaN fails every
// comparison and is rejected as well.
func (in Input) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("invalid scoring input: %w", err)
	}
	return nil
}

// PastureAdjustment is supplied by an external pasture-condition model as
// score*Multiplier + Offset. Both terms are applied as given, so a zero
// Multiplier discards the weather score; use NoAdjustment for none.
type PastureAdjustment struct {
	Multiplier float64 `json:"multiplier"`
	Offset     float64 `json:"offset"`
}

// UnmarshalJSON defaults an absent multiplier to 1. An explicit 0 is kept.
func (a *PastureAdjustment) UnmarshalJSON(data []byte) error {
	var raw struct {
		Multiplier *float64 `json:"multiplier"`
		Offset     float64  `json:"offset"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Multiplier, a.Offset = 1, raw.Offset
	if raw.Multiplier != nil {
		a.Multiplier = *raw.Multiplier
	}
	return nil
}

// NoAdjustment leaves the weather score unchanged.
var NoAdjustment = PastureAdjustment{Multiplier: 1}

package turnout

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Muzzle is the grazing-muzzle state of a horse.
type Muzzle string

const (
	MuzzleNone Muzzle = "none"
	MuzzleOn   Muzzle = "on"
)

// HorseProfile describes one animal and its daily ration. Hay NSC is given
// either directly (HayNscPct) or through a lab analysis reference, never both.
type HorseProfile struct {
	ID             string   `json:"id" validate:"required"`
	Name           string   `json:"name,omitempty"`
	MassKg         float64  `json:"massKg" validate:"gte=200,lte=800"`
	IsEMSRisk      bool     `json:"isEMSRisk"`
	Muzzle         Muzzle   `json:"muzzle" validate:"oneof=none on"`
	HayKgPerDay    float64  `json:"hayKgPerDay" validate:"gte=0,lte=25"`
	HayNscPct      *float64 `json:"hayNscPct,omitempty" validate:"omitempty,gte=4,lte=20"`
	HayAnalysisRef string   `json:"hayAnalysisRef,omitempty"`
	ConcKgPerDay   *float64 `json:"concKgPerDay,omitempty" validate:"omitempty,gte=0,lte=10"`
	ConcNscPct     *float64 `json:"concNscPct,omitempty" validate:"omitempty,gte=5,lte=45"`
	IsActive       bool     `json:"isActive"`
}

// Validate checks field ranges and the hay NSC / analysis exclusivity.
func (h HorseProfile) Validate() error {
	if err := validate.Struct(h); err != nil {
		return fmt.Errorf("invalid horse profile: %w", err)
	}
	hasPct := h.HayNscPct != nil
	hasRef := h.HayAnalysisRef != ""
	if hasPct == hasRef {
		return errors.New("invalid horse profile: exactly one of hayNscPct and hayAnalysisRef is required")
	}
	if h.ConcKgPerDay != nil && *h.ConcKgPerDay > 0 && h.ConcNscPct == nil {
		return errors.New("invalid horse profile: concNscPct is required when concentrate is fed")
	}
	return nil
}

// HayAnalyses resolves lab analysis references to NSC percentages.
type HayAnalyses interface {
	HayNscPct(ref string) (float64, bool)
}

// AnalysisTable is an in-memory HayAnalyses.
type AnalysisTable map[string]float64

// HayNscPct implements HayAnalyses.
func (t AnalysisTable) HayNscPct(ref string) (float64, bool) {
	v, ok := t[ref]
	return v, ok
}

// ErrUnknownAnalysis is returned when a hay analysis reference cannot be resolved.
var ErrUnknownAnalysis = errors.New("unknown hay analysis")

func (h HorseProfile) hayNsc(analyses HayAnalyses) (float64, error) {
	if h.HayNscPct != nil {
		return *h.HayNscPct, nil
	}
	if analyses != nil {
		if v, ok := analyses.HayNscPct(h.HayAnalysisRef); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w %q for horse %s", ErrUnknownAnalysis, h.HayAnalysisRef, h.ID)
}

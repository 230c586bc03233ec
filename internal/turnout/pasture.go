package turnout

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/pasture-risk/internal/common"
)

// Breakpoint modes.
const (
	ModeFixed  = "fixed"
	ModeLinear = "linear"
)

// Breakpoint maps scores up to and including UpTo onto a pasture NSC%.
// Linear segments run from the previous breakpoint (or 0) to UpTo.
type Breakpoint struct {
	UpTo    float64 `yaml:"upTo" json:"upTo"`
	Mode    string  `yaml:"mode" json:"mode"`
	NscPct  float64 `yaml:"nscPct,omitempty" json:"nscPct,omitempty"`
	FromPct float64 `yaml:"fromPct,omitempty" json:"fromPct,omitempty"`
	ToPct   float64 `yaml:"toPct,omitempty" json:"toPct,omitempty"`
}

// PastureConfig is the static turnout policy.
type PastureConfig struct {
	Version            string       `yaml:"version" json:"version"`
	IntakeRateNoMuzzle float64      `yaml:"intakeRateNoMuzzle" json:"intakeRateNoMuzzle"`
	IntakeRateMuzzle   float64      `yaml:"intakeRateMuzzle" json:"intakeRateMuzzle"`
	Breakpoints        []Breakpoint `yaml:"breakpoints" json:"breakpoints"`
	AboveNscPct        float64      `yaml:"aboveNscPct" json:"aboveNscPct"`
	MinTurnoutMin      int          `yaml:"minTurnoutMin" json:"minTurnoutMin"`
	MaxTurnoutMin      int          `yaml:"maxTurnoutMin" json:"maxTurnoutMin"`
	StepMin            int          `yaml:"stepMin" json:"stepMin"`
	RedForbidden       bool         `yaml:"redForbidden" json:"redForbidden"`
	YellowCapMin       int          `yaml:"yellowCapMin" json:"yellowCapMin"`
}

// DefaultPastureConfig returns the shipped policy.
func DefaultPastureConfig() PastureConfig {
	return PastureConfig{
		Version:            "pasture-2024.1",
		IntakeRateNoMuzzle: 1.0,
		IntakeRateMuzzle:   0.5,
		Breakpoints: []Breakpoint{
			{UpTo: 20, Mode: ModeFixed, NscPct: 8},
			{UpTo: 40, Mode: ModeLinear, FromPct: 8, ToPct: 12},
			{UpTo: 60, Mode: ModeLinear, FromPct: 12, ToPct: 16},
			{UpTo: 80, Mode: ModeLinear, FromPct: 16, ToPct: 22},
		},
		AboveNscPct:   25,
		MinTurnoutMin: 0,
		MaxTurnoutMin: 180,
		StepMin:       15,
		RedForbidden:  true,
		YellowCapMin:  90,
	}
}

// LoadPastureConfig reads a YAML policy. Keys absent from the file keep
// their default values.
func LoadPastureConfig(path string) (PastureConfig, error) {
	cfg := DefaultPastureConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return PastureConfig{}, fmt.Errorf("read pasture config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PastureConfig{}, fmt.Errorf("parse pasture config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return PastureConfig{}, err
	}
	return cfg, nil
}

// Validate checks the policy is internally consistent.
func (c PastureConfig) Validate() error {
	var errs []error
	if c.StepMin <= 0 {
		errs = append(errs, fmt.Errorf("stepMin must be positive, got %d", c.StepMin))
	} else {
		bounds := []struct {
			name string
			v    int
		}{
			{"minTurnoutMin", c.MinTurnoutMin},
			{"maxTurnoutMin", c.MaxTurnoutMin},
			{"yellowCapMin", c.YellowCapMin},
		}
		for _, b := range bounds {
			if b.v%c.StepMin != 0 {
				errs = append(errs, fmt.Errorf("%s %d is not a multiple of stepMin %d", b.name, b.v, c.StepMin))
			}
		}
	}
	if c.MinTurnoutMin < 0 || c.MinTurnoutMin > c.MaxTurnoutMin {
		errs = append(errs, fmt.Errorf("turnout bounds [%d, %d] are invalid", c.MinTurnoutMin, c.MaxTurnoutMin))
	}
	if c.YellowCapMin < c.MinTurnoutMin || c.YellowCapMin > c.MaxTurnoutMin {
		errs = append(errs, fmt.Errorf("yellowCapMin %d outside [%d, %d]", c.YellowCapMin, c.MinTurnoutMin, c.MaxTurnoutMin))
	}
	if c.IntakeRateNoMuzzle < 0 || c.IntakeRateMuzzle < 0 {
		errs = append(errs, errors.New("intake rates must not be negative"))
	}
	if len(c.Breakpoints) == 0 {
		errs = append(errs, errors.New("at least one breakpoint is required"))
	}
	prev := 0.0
	for i, bp := range c.Breakpoints {
		if i > 0 && bp.UpTo <= prev {
			errs = append(errs, fmt.Errorf("breakpoint %d: upTo %g must exceed %g", i, bp.UpTo, prev))
		}
		prev = bp.UpTo
		switch bp.Mode {
		case ModeFixed:
			if bp.NscPct < 0 || bp.NscPct > 100 {
				errs = append(errs, fmt.Errorf("breakpoint %d: nscPct %g outside [0, 100]", i, bp.NscPct))
			}
		case ModeLinear:
			if bp.FromPct < 0 || bp.FromPct > 100 || bp.ToPct < 0 || bp.ToPct > 100 {
				errs = append(errs, fmt.Errorf("breakpoint %d: linear range outside [0, 100]", i))
			}
		default:
			errs = append(errs, fmt.Errorf("breakpoint %d: unknown mode %q", i, bp.Mode))
		}
	}
	if c.AboveNscPct < 0 || c.AboveNscPct > 100 {
		errs = append(errs, fmt.Errorf("aboveNscPct %g outside [0, 100]", c.AboveNscPct))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid pasture config: %w", errors.Join(errs...))
	}
	return nil
}

// NscPctForScore maps a risk score onto the allowed pasture NSC%. Segments
// are tested in ascending order with score <= UpTo; the first match wins.
func (c PastureConfig) NscPctForScore(score int) float64 {
	s := float64(score)
	lower := 0.0
	for _, bp := range c.Breakpoints {
		if s <= bp.UpTo {
			if bp.Mode == ModeFixed {
				return bp.NscPct
			}
			span := bp.UpTo - lower
			if span <= 0 {
				return bp.ToPct
			}
			return common.Lerp(bp.FromPct, bp.ToPct, (s-lower)/span)
		}
		lower = bp.UpTo
	}
	return c.AboveNscPct
}

// IntakeRate returns the dry-matter intake in kg/h for the muzzle state.
func (c PastureConfig) IntakeRate(m Muzzle) float64 {
	if m == MuzzleOn {
		return c.IntakeRateMuzzle
	}
	return c.IntakeRateNoMuzzle
}

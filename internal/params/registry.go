package params

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Source records where a parameter value comes from.
type Source string

const (
	SourceLiterature Source = "literature"
	SourceExpert     Source = "expert"
	SourceFitted     Source = "fitted"
	SourceAssumed    Source = "assumed"
)

// WeightKeys are the top-level scoring weights; together they distribute
// ems.factor.budget across the positive risk factors.
var WeightKeys = []string{
	"weights.temperature",
	"weights.dryness",
	"weights.radiation",
	"weights.diurnal",
	"weights.humidity",
}

// WeightTolerance is the allowed deviation of the weight sum from 1.0.
const WeightTolerance = 0.02

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Spec describes a single scoring constant.
type Spec struct {
	Key         string  `json:"key"`
	Value       float64 `json:"value"`
	Range       *Range  `json:"range,omitempty"`
	Source      Source  `json:"source"`
	Version     string  `json:"version"`
	Description string  `json:"description"`
	Reference   string  `json:"reference,omitempty"`
}

func (s Spec) clone() Spec {
	if s.Range != nil {
		r := *s.Range
		s.Range = &r
	}
	return s
}

// UnknownParameterError is returned when a key is not registered.
type UnknownParameterError struct {
	Key string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter %q", e.Key)
}

// ConfigurationError is returned when a registry fails its self-check.
type ConfigurationError struct {
	Version  string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("parameter registry %s is invalid: %s", e.Version, strings.Join(e.Problems, "; "))
}

// CheckResult is the outcome of Registry.SelfCheck.
type CheckResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Registry is an immutable snapshot of every scoring constant.
// Use With to derive an updated snapshot.
type Registry struct {
	version string
	specs   map[string]Spec
}

// New builds a registry snapshot from specs. Duplicate or empty keys are rejected.
func New(version string, specs []Spec) (*Registry, error) {
	if version == "" {
		return nil, errors.New("registry version is required")
	}
	m := make(map[string]Spec, len(specs))
	for _, s := range specs {
		if s.Key == "" {
			return nil, errors.New("parameter with empty key")
		}
		if _, dup := m[s.Key]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", s.Key)
		}
		m[s.Key] = s.clone()
	}
	return &Registry{version: version, specs: m}, nil
}

// Version identifies this snapshot.
func (r *Registry) Version() string {
	return r.version
}

// Get returns the value registered under key.
func (r *Registry) Get(key string) (float64, error) {
	s, ok := r.specs[key]
	if !ok {
		return 0, &UnknownParameterError{Key: key}
	}
	return s.Value, nil
}

// Spec returns a copy of the spec registered under key.
func (r *Registry) Spec(key string) (Spec, error) {
	s, ok := r.specs[key]
	if !ok {
		return Spec{}, &UnknownParameterError{Key: key}
	}
	return s.clone(), nil
}

// Specs returns copies of all specs ordered by key.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of registered parameters.
func (r *Registry) Len() int {
	return len(r.specs)
}

// SelfCheck verifies ranges, versions and the weight sum.
func (r *Registry) SelfCheck() CheckResult {
	var problems []string

	for _, s := range r.Specs() {
		if s.Version == "" {
			problems = append(problems, fmt.Sprintf("%s: missing version", s.Key))
		}
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			problems = append(problems, fmt.Sprintf("%s: value is not finite", s.Key))
			continue
		}
		if s.Range != nil && !s.Range.Contains(s.Value) {
			problems = append(problems, fmt.Sprintf("%s: value %g outside [%g, %g]", s.Key, s.Value, s.Range.Min, s.Range.Max))
		}
	}

	var sum float64
	for _, key := range WeightKeys {
		v, err := r.Get(key)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: weight not registered", key))
			continue
		}
		sum += v
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		problems = append(problems, fmt.Sprintf("weights sum to %.4f, must be 1.0 ± %.2f", sum, WeightTolerance))
	}

	return CheckResult{Valid: len(problems) == 0, Errors: problems}
}

// Validate returns a *ConfigurationError when SelfCheck fails.
func (r *Registry) Validate() error {
	res := r.SelfCheck()
	if res.Valid {
		return nil
	}
	return &ConfigurationError{Version: r.version, Problems: res.Errors}
}

// With derives a new snapshot tagged version with the given value overrides.
// Every overridden spec takes the new version tag. The receiver is unchanged.
func (r *Registry) With(version string, overrides map[string]float64) (*Registry, error) {
	if version == "" {
		return nil, errors.New("registry version is required")
	}
	if version == r.version {
		return nil, fmt.Errorf("registry version %q is already in use", version)
	}
	m := make(map[string]Spec, len(r.specs))
	for k, s := range r.specs {
		m[k] = s.clone()
	}
	for k, v := range overrides {
		s, ok := m[k]
		if !ok {
			return nil, &UnknownParameterError{Key: k}
		}
		s.Value = v
		s.Version = version
		m[k] = s
	}
	return &Registry{version: version, specs: m}, nil
}

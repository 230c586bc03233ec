package params

import (
	"errors"
	"sync"
	"testing"
)

func TestDefaultRegistryPassesSelfCheck(t *testing.T) {
	r := Default()
	res := r.SelfCheck()
	if !res.Valid {
		t.Fatalf("expected default registry to be valid, got errors: %v", res.Errors)
	}
	if r.Version() != DefaultVersion {
		t.Fatalf("expected version %s, got %s", DefaultVersion, r.Version())
	}
}

func TestGetUnknownKey(t *testing.T) {
	r := Default()
	_, err := r.Get("ems.does.not.exist")
	var unknown *UnknownParameterError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownParameterError, got %v", err)
	}
	if unknown.Key != "ems.does.not.exist" {
		t.Fatalf("unexpected key in error: %s", unknown.Key)
	}
}

func TestSpecReturnsCopy(t *testing.T) {
	r := Default()
	s, err := r.Spec("ems.base.score")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Value = 99
	s.Range.Max = 1000

	again, _ := r.Spec("ems.base.score")
	if again.Value != 20 || again.Range.Max != 50 {
		t.Fatalf("registry was mutated through a returned spec: %+v", again)
	}
}

func TestSelfCheckDetectsWeightSum(t *testing.T) {
	for _, key := range WeightKeys {
		t.Run(key, func(t *testing.T) {
			r, err := Default().With("test-1", map[string]float64{key: 0.9})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			res := r.SelfCheck()
			if res.Valid {
				t.Fatalf("expected self-check to fail after raising %s", key)
			}
			var cfgErr *ConfigurationError
			if !errors.As(r.Validate(), &cfgErr) {
				t.Fatalf("expected ConfigurationError")
			}
		})
	}
}

func TestSelfCheckDetectsOutOfRange(t *testing.T) {
	r, err := Default().With("test-2", map[string]float64{"ems.base.score": 75})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.SelfCheck().Valid {
		t.Fatalf("expected out-of-range base score to fail self-check")
	}
}

func TestSelfCheckDetectsMissingVersion(t *testing.T) {
	specs := DefaultSpecs()
	specs[0].Version = ""
	r, err := New("test-3", specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.SelfCheck().Valid {
		t.Fatalf("expected missing version to fail self-check")
	}
}

func TestWithDoesNotMutateReceiver(t *testing.T) {
	base := Default()
	next, err := base.With("test-4", map[string]float64{"ems.base.score": 25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := base.Get("ems.base.score"); v != 20 {
		t.Fatalf("receiver mutated: %v", v)
	}
	if v, _ := next.Get("ems.base.score"); v != 25 {
		t.Fatalf("override not applied: %v", v)
	}
	s, _ := next.Spec("ems.base.score")
	if s.Version != "test-4" {
		t.Fatalf("expected overridden spec to carry new version, got %s", s.Version)
	}

	if _, err := base.With("test-5", map[string]float64{"nope": 1}); err == nil {
		t.Fatalf("expected error for unknown override key")
	}
	if _, err := base.With(DefaultVersion, nil); err == nil {
		t.Fatalf("expected error when reusing the current version")
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	specs := append(DefaultSpecs(), DefaultSpecs()[0])
	if _, err := New("dup", specs); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestStoreUpdate(t *testing.T) {
	s, err := NewStore(Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.Update("bad", map[string]float64{"weights.temperature": 0.8}); err == nil {
		t.Fatalf("expected invalid update to be rejected")
	}
	if s.Current().Version() != DefaultVersion {
		t.Fatalf("rejected update must leave the current snapshot in place")
	}

	next, err := s.Update("good", map[string]float64{"weights.temperature": 0.29, "weights.dryness": 0.26})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Current() != next {
		t.Fatalf("expected current snapshot to be swapped")
	}
}

func TestStoreNeverReusesAVersion(t *testing.T) {
	s, err := NewStore(Default())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := s.Update("b", map[string]float64{"ems.heat.threshold": 28}); err != nil {
		t.Fatalf("update to b: %v", err)
	}
	// Going back to the initial tag with different values would make one
	// version name two rule sets.
	_, err = s.Update(DefaultVersion, map[string]float64{"ems.heat.threshold": 30})
	if !errors.Is(err, ErrVersionReused) {
		t.Fatalf("expected ErrVersionReused for %s, got %v", DefaultVersion, err)
	}
	if _, err := s.Update("c", nil); err != nil {
		t.Fatalf("update to c: %v", err)
	}
	if _, err := s.Update("b", nil); !errors.Is(err, ErrVersionReused) {
		t.Fatalf("expected ErrVersionReused for b, got %v", err)
	}
	if got := s.Current().Version(); got != "c" {
		t.Fatalf("rejected updates must keep c in effect, got %s", got)
	}
}

func TestStoreConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s, err := NewStore(Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r := s.Current()
				if !r.SelfCheck().Valid {
					t.Errorf("observed invalid snapshot %s", r.Version())
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		a, b := 0.30, 0.25
		if i%2 == 1 {
			a, b = 0.28, 0.27
		}
		if _, err := s.Update("v"+string(rune('a'+i)), map[string]float64{"weights.temperature": a, "weights.dryness": b}); err != nil {
			t.Fatalf("update %d failed: %v", i, err)
		}
	}
	wg.Wait()
}

func TestNewStoreRejectsInvalidRegistry(t *testing.T) {
	bad, _ := Default().With("bad", map[string]float64{"weights.humidity": 0.5})
	if _, err := NewStore(bad); err == nil {
		t.Fatalf("expected invalid registry to be rejected")
	}
}

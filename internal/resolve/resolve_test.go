package resolve

import (
	"testing"

	"veritas/internal/matcher"
	"veritas/internal/rules"
)

type fakeHandle struct{ name string }

func (h fakeHandle) Name() string                                         { return h.name }
func (fakeHandle) CanFire() matcher.Delta                                 { return matcher.Delta{} }
func (fakeHandle) WillFire() matcher.Delta                                { return matcher.Delta{} }
func (fakeHandle) LocationsOfAllVariablesInConditions() map[string]matcher.VarLocation {
	return nil
}

func TestFirstMatchSelectsFirst(t *testing.T) {
	items := []Item{
		{Handle: fakeHandle{"a"}},
		{Handle: fakeHandle{"b"}},
	}
	got, ok := FirstMatch{}.Select(items)
	if !ok || got.Handle.Name() != "a" {
		t.Errorf("Select() = (%v, %v), want (a, true)", got.Handle.Name(), ok)
	}
}

func TestFirstMatchEmpty(t *testing.T) {
	if _, ok := (FirstMatch{}).Select(nil); ok {
		t.Error("Select(nil) should report ok=false")
	}
}

func TestStratifiedManualMonotonicCursor(t *testing.T) {
	inv := rules.NewInventory()
	inv.Add(&rules.Production{Name: "r0", Stratum: 0})
	inv.OpenStratum()
	inv.Add(&rules.Production{Name: "r1", Stratum: 1})

	sm := NewStratifiedManual(inv)
	if sm.Cursor() != 0 {
		t.Fatalf("initial cursor = %d, want 0", sm.Cursor())
	}

	// No item in stratum 0 is in the conflict set, so the cursor must
	// advance to stratum 1 to find r1.
	items := []Item{{Handle: fakeHandle{"r1"}}}
	got, ok := sm.Select(items)
	if !ok || got.Handle.Name() != "r1" {
		t.Fatalf("Select() = (%v, %v), want (r1, true)", got.Handle.Name(), ok)
	}
	if sm.Cursor() != 1 {
		t.Errorf("cursor after advancing past stratum 0 = %d, want 1", sm.Cursor())
	}

	// Even if r0 later becomes available again, the cursor never goes back.
	items = []Item{{Handle: fakeHandle{"r0"}}}
	if _, ok := sm.Select(items); ok {
		t.Error("stratum 0 should never be revisited once abandoned")
	}
	if sm.Cursor() < 1 {
		t.Error("cursor must never decrease")
	}
}

func TestStratifiedManualExhaustsAllStrata(t *testing.T) {
	inv := rules.NewInventory()
	inv.Add(&rules.Production{Name: "r0", Stratum: 0})

	sm := NewStratifiedManual(inv)
	if _, ok := sm.Select(nil); ok {
		t.Error("no items in any stratum should report ok=false")
	}
}

func TestRegistryResolveKnownAndUnknown(t *testing.T) {
	inv := rules.NewInventory()
	reg := NewRegistry(inv)

	s, err := reg.Resolve("first")
	if err != nil {
		t.Fatalf("Resolve(first): %v", err)
	}
	if s.Name() != "first-match" {
		t.Errorf("Resolve(first).Name() = %q, want first-match", s.Name())
	}

	s, err = reg.Resolve("strat")
	if err != nil {
		t.Fatalf("Resolve(strat): %v", err)
	}
	if s.Name() != "stratified-manual" {
		t.Errorf("Resolve(strat).Name() = %q, want stratified-manual", s.Name())
	}

	s, err = reg.Resolve("bogus")
	if err == nil {
		t.Error("expected a warning error for an unrecognized strategy name")
	}
	if s.Name() != "first-match" {
		t.Errorf("fallback strategy = %q, want first-match", s.Name())
	}

	s, err = reg.Resolve("")
	if err != nil || s.Name() != "first-match" {
		t.Errorf("Resolve(\"\") = (%v, %v), want (first-match, nil)", s.Name(), err)
	}
}

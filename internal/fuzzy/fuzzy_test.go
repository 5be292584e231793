package fuzzy

import (
	"math"
	"testing"

	"veritas/internal/fuzzyvar"
	"veritas/internal/justify"
	"veritas/internal/wm"
)

func TestConjunctionMinMax(t *testing.T) {
	sys := System{Kind: MinMax}
	if got, want := sys.Conjunction([]float64{0.3, 0.9, 0.5}), 0.3; got != want {
		t.Errorf("Conjunction() = %v, want %v", got, want)
	}
}

func TestConjunctionMultiplicative(t *testing.T) {
	sys := System{Kind: Multiplicative}
	got := sys.Conjunction([]float64{0.5, 0.5})
	if want := 0.25; math.Abs(got-want) > 1e-9 {
		t.Errorf("Conjunction() = %v, want %v", got, want)
	}
}

func TestDisjunctionMinMax(t *testing.T) {
	sys := System{Kind: MinMax}
	if got, want := sys.Disjunction([]float64{0.3, 0.9, 0.5}), 0.9; got != want {
		t.Errorf("Disjunction() = %v, want %v", got, want)
	}
}

func TestDisjunctionMultiplicative(t *testing.T) {
	sys := System{Kind: Multiplicative}
	got := sys.Disjunction([]float64{0.5, 0.5})
	if want := 0.75; math.Abs(got-want) > 1e-9 {
		t.Errorf("Disjunction() = %v, want %v", got, want)
	}
}

type fakeToken struct {
	wmes []wm.WME
	mus  []*float64
}

func (f *fakeToken) WMEs() []wm.WME { return f.wmes }
func (f *fakeToken) FuzzyAt(i int) (float64, bool) {
	if i < 0 || i >= len(f.mus) || f.mus[i] == nil {
		return 0, false
	}
	return *f.mus[i], true
}

func TestTokenToMu(t *testing.T) {
	a, b := 0.4, 0.7
	tok := &fakeToken{
		wmes: []wm.WME{{ID: "x"}, {ID: "y"}},
		mus:  []*float64{&a, &b},
	}
	sys := System{Kind: MinMax}
	mu, ok := TokenToMu(sys, tok)
	if !ok || mu != 0.4 {
		t.Errorf("TokenToMu() = (%v, %v), want (0.4, true)", mu, ok)
	}

	crisp := &fakeToken{wmes: []wm.WME{{ID: "z"}}, mus: []*float64{nil}}
	if _, ok := TokenToMu(sys, crisp); ok {
		t.Error("all-crisp token should report ok=false")
	}
}

func TestComputeDegree(t *testing.T) {
	a := 0.2
	tokA := &fakeToken{wmes: []wm.WME{{ID: "a"}}, mus: []*float64{&a}}
	b := 0.9
	tokB := &fakeToken{wmes: []wm.WME{{ID: "b"}}, mus: []*float64{&b}}

	justs := []justify.Justification{
		{Kind: justify.ProductionDerived, Rule: "r1", Token: tokA},
		{Kind: justify.ProductionDerived, Rule: "r2", Token: tokB},
		{Kind: justify.Axiomatic}, // ignored: not production-derived
	}
	sys := System{Kind: MinMax}
	mu, ok := ComputeDegree(sys, justs)
	if !ok || mu != 0.9 {
		t.Errorf("ComputeDegree() = (%v, %v), want (0.9, true)", mu, ok)
	}

	if _, ok := ComputeDegree(sys, []justify.Justification{{Kind: justify.Axiomatic}}); ok {
		t.Error("no production-derived justifications should report ok=false")
	}
}

func TestCrispValue(t *testing.T) {
	kind := &fuzzyvar.Kind{Name: "temperature", Values: []fuzzyvar.ValueDef{
		{Name: "hot", A: 1, C: 20},
	}}
	v := &fuzzyvar.Variable{Name: "temperature", Kind: kind}

	target := 25.0
	mu := kind.Values[0].Sigmoid(target)
	g := Group{ID: "room1", Attr: "temperature", Members: []wm.FuzzyWME{
		{WME: wm.WME{ID: "room1", Attr: "temperature", Val: "hot"}, Mu: mu},
	}}

	x, err := CrispValue(v, g)
	if err != nil {
		t.Fatalf("CrispValue: %v", err)
	}
	if math.Abs(x-target) > 1e-6 {
		t.Errorf("CrispValue() = %v, want %v", x, target)
	}
}

func TestCrispValueUnknownFuzzyValue(t *testing.T) {
	kind := &fuzzyvar.Kind{Name: "temperature", Values: nil}
	v := &fuzzyvar.Variable{Name: "temperature", Kind: kind}
	g := Group{ID: "room1", Attr: "temperature", Members: []wm.FuzzyWME{
		{WME: wm.WME{ID: "room1", Attr: "temperature", Val: "hot"}, Mu: 0.5},
	}}
	if _, err := CrispValue(v, g); err == nil {
		t.Error("expected error for undeclared fuzzy value")
	}
}

func TestFormatAndParseCrisp(t *testing.T) {
	s := FormatCrisp(3.5)
	x, ok := ParseCrisp(s)
	if !ok || math.Abs(x-3.5) > 1e-9 {
		t.Errorf("ParseCrisp(FormatCrisp(3.5)) = (%v, %v), want (3.5, true)", x, ok)
	}
	if _, ok := ParseCrisp("not-a-number"); ok {
		t.Error("ParseCrisp should report ok=false for non-numeric input")
	}
}

func TestSameWithinEpsilon(t *testing.T) {
	if !SameWithinEpsilon(1.0, 1.0000001) {
		t.Error("values within epsilon should compare equal")
	}
	if SameWithinEpsilon(1.0, 1.1) {
		t.Error("values outside epsilon should not compare equal")
	}
}

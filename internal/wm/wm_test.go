package wm

import "testing"

func TestWMEString(t *testing.T) {
	w := WME{ID: "B1", Attr: "color", Val: "red"}
	if got, want := w.String(), "(B1 color red)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestWMEKeyIdentity(t *testing.T) {
	a := WME{ID: "B1", Attr: "color", Val: "red"}
	b := WME{ID: "B1", Attr: "color", Val: "red"}
	c := WME{ID: "B1", Attr: "color", Val: "blue"}

	if a.Key() != b.Key() {
		t.Error("equal-field WMEs should have equal keys")
	}
	if a.Key() == c.Key() {
		t.Error("differing-field WMEs should have distinct keys")
	}
}

func TestFuzzyWMEString(t *testing.T) {
	f := &FuzzyWME{WME: WME{ID: "B1", Attr: "temp", Val: "hot"}, Mu: 0.8}
	if got, want := f.String(), "(B1 temp hot){mu=0.8000}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

type fakeToken struct {
	wmes []WME
	mus  []*float64
}

func (f *fakeToken) WMEs() []WME { return f.wmes }
func (f *fakeToken) FuzzyAt(i int) (float64, bool) {
	if i < 0 || i >= len(f.mus) || f.mus[i] == nil {
		return 0, false
	}
	return *f.mus[i], true
}

func TestTokenFuzzyAt(t *testing.T) {
	mu := 0.5
	tok := &fakeToken{
		wmes: []WME{{ID: "A", Attr: "x", Val: "1"}, {ID: "B", Attr: "y", Val: "2"}},
		mus:  []*float64{nil, &mu},
	}
	if _, ok := tok.FuzzyAt(0); ok {
		t.Error("position 0 should not be fuzzy")
	}
	if m, ok := tok.FuzzyAt(1); !ok || m != 0.5 {
		t.Errorf("position 1 = (%v, %v), want (0.5, true)", m, ok)
	}
	if _, ok := tok.FuzzyAt(5); ok {
		t.Error("out-of-range position should report ok=false")
	}
}

package reasoner

import (
	"math"
	"strings"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"veritas/internal/fuzzy"
	"veritas/internal/fuzzyvar"
	"veritas/internal/justify"
	"veritas/internal/logging"
	"veritas/internal/matcher"
	"veritas/internal/resolve"
	"veritas/internal/rules"
	"veritas/internal/wm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLogger() (*logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return logging.New(zap.New(core)), logs
}

// rDefault and rOverride are the classic oscillation-prone pair of rules:
// rDefault fires unless rOverride's conclusion (abnormal) holds, and
// rOverride fires whenever flies is asserted, concluding abnormal.
func rDefault() *rules.Production {
	return &rules.Production{
		Name: "r_default",
		LHS: []rules.Condition{
			{ID: "<x>", Attr: "bird", Val: "true"},
			{ID: "<x>", Attr: "abnormal", Val: "true", Kind: rules.Negative},
		},
		RHS: &rules.RHS{ID: "<x>", Attr: "flies", Val: "true"},
	}
}

func rOverride() *rules.Production {
	return &rules.Production{
		Name: "r_override",
		LHS:  []rules.Condition{{ID: "<x>", Attr: "flies", Val: "true"}},
		RHS:  &rules.RHS{ID: "<x>", Attr: "abnormal", Val: "true"},
	}
}

// unstratifiedDefaultLogicInventory puts both rules in the single default
// stratum, so nothing prevents r_override's conclusion from later
// invalidating r_default's.
func unstratifiedDefaultLogicInventory() *rules.Inventory {
	inv := rules.NewInventory()
	inv.Add(rDefault())
	inv.Add(rOverride())
	return inv
}

// stratifiedDefaultLogicInventory puts r_default ahead of r_override in
// declaration-ordered strata, so a StratifiedManual resolver's monotonic
// cursor never revisits r_default once it has moved on.
func stratifiedDefaultLogicInventory() *rules.Inventory {
	inv := rules.NewInventory()
	d := rDefault()
	d.Stratum = 0
	inv.Add(d)
	inv.OpenStratum()
	o := rOverride()
	o.Stratum = 1
	inv.Add(o)
	return inv
}

// Scenario 1: stratification gives default logic a stable fixed point. Once
// the cursor advances past r_default's stratum, r_override's later
// retraction of flies(tweety) is never applied.
func TestStratificationStabilizesDefaultLogic(t *testing.T) {
	inv := stratifiedDefaultLogicInventory()

	m := matcher.NewInMemory()
	log, _ := newTestLogger()
	strategy := resolve.NewStratifiedManual(inv)
	ctx, err := NewContext(m, inv, strategy, fuzzy.System{Kind: fuzzy.MinMax}, log)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx.AssertAxiomatic(wm.WME{ID: "tweety", Attr: "bird", Val: "true"})

	ctx.Run()

	flies := wm.WME{ID: "tweety", Attr: "flies", Val: "true"}
	if !ctx.Justify.Has(flies) {
		t.Error("flies(tweety) should remain live once stratification has moved past r_default's stratum")
	}
	if ctx.LastCycles() == DefaultCycleLimit {
		t.Error("stratified run should stabilize well before the cycle limit")
	}
}

// Scenario 2: the same two rules under plain first-match resolution, with
// no stratum boundary, oscillate and never reach a fixed point before the
// cycle limit.
func TestUnstratifiedDefaultLogicOscillates(t *testing.T) {
	inv := unstratifiedDefaultLogicInventory()

	m := matcher.NewInMemory()
	log, _ := newTestLogger()
	ctx, err := NewContext(m, inv, resolve.FirstMatch{}, fuzzy.System{Kind: fuzzy.MinMax}, log)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx.CycleLimit = 20
	ctx.AssertAxiomatic(wm.WME{ID: "tweety", Attr: "bird", Val: "true"})

	ctx.Run()

	if ctx.LastCycles() != ctx.CycleLimit {
		t.Errorf("LastCycles() = %d, want the cycle limit %d (run should never converge)", ctx.LastCycles(), ctx.CycleLimit)
	}
}

// Scenario 3: retracting an axiomatic fact cascades through its
// production-derived dependents and re-stabilizes.
func TestRetractCascades(t *testing.T) {
	inv := rules.NewInventory()
	inv.Add(&rules.Production{
		Name:    "r_flies",
		LHS:     []rules.Condition{{ID: "<x>", Attr: "bird", Val: "true"}},
		RHS:     &rules.RHS{ID: "<x>", Attr: "flies", Val: "true"},
		Stratum: 0,
	})

	m := matcher.NewInMemory()
	log, _ := newTestLogger()
	ctx, err := NewContext(m, inv, resolve.FirstMatch{}, fuzzy.System{Kind: fuzzy.MinMax}, log)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	bird := wm.WME{ID: "B1", Attr: "bird", Val: "true"}
	ctx.AssertAxiomatic(bird)
	ctx.Run()

	flies := wm.WME{ID: "B1", Attr: "flies", Val: "true"}
	if !ctx.Justify.Has(flies) {
		t.Fatal("flies(B1) should be live before retraction")
	}

	if err := ctx.Retract(bird); err != nil {
		t.Fatalf("Retract: %v", err)
	}

	if ctx.Justify.Has(bird) {
		t.Error("bird(B1) should be gone after retraction")
	}
	if ctx.Justify.Has(flies) {
		t.Error("flies(B1) should cascade-retract once its sole supporting fact is gone")
	}
	for _, w := range m.WorkingMemory() {
		if w == bird || w == flies {
			t.Errorf("retracted wme %s should not remain in working memory", w)
		}
	}
}

// Scenario 4: min-max fuzzy inference defuzzifies to the exact inverse
// sigmoid of the matched crisp input.
func TestFuzzyMinMaxDefuzzification(t *testing.T) {
	comfortKind := &fuzzyvar.Kind{Name: "comfortKind", Values: []fuzzyvar.ValueDef{
		{Name: "comfortable", A: 0.1, C: 70},
		{Name: "uncomfortable", A: -0.1, C: 70},
	}}

	inv := rules.NewInventory()
	inv.Add(&rules.Production{
		Name:    "r_comfort",
		LHS:     []rules.Condition{{ID: "<r>", Attr: "temperature", Val: "comfortable"}},
		RHS:     &rules.RHS{ID: "<r>", Attr: "comfort", Val: "comfortable"},
		Stratum: 0,
	})

	m := matcher.NewInMemory()
	log, _ := newTestLogger()
	ctx, err := NewContext(m, inv, resolve.FirstMatch{}, fuzzy.System{Kind: fuzzy.MinMax}, log)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx.RegisterFuzzyVariable(&fuzzyvar.Variable{Name: "temperature", Kind: comfortKind})
	ctx.RegisterFuzzyVariable(&fuzzyvar.Variable{Name: "comfort", Kind: comfortKind})

	ctx.AssertAxiomatic(wm.WME{ID: "room1", Attr: "temperature", Val: "85"})
	ctx.Run()

	var crispVal float64
	var found bool
	for _, w := range m.WorkingMemory() {
		if w.ID == "room1" && w.Attr == "comfort" {
			if x, ok := fuzzy.ParseCrisp(w.Val); ok {
				crispVal, found = x, true
			}
		}
	}
	if !found {
		t.Fatal("expected a defuzzified crisp (room1 comfort X) wme")
	}
	if math.Abs(crispVal-85) > 1e-4 {
		t.Errorf("defuzzified value = %v, want ~85 (round trip through the sigmoid)", crispVal)
	}

	crispWME := wm.WME{ID: "room1", Attr: "comfort", Val: fuzzy.FormatCrisp(crispVal)}
	justs := ctx.Justify.JustificationsOf(crispWME)
	if len(justs) != 1 || justs[0].Kind != justify.DefuzzificationDerived {
		t.Errorf("crisp wme justifications = %+v, want one DefuzzificationDerived entry", justs)
	}
}

// Scenario 5: under the multiplicative system, a fact derived by the same
// rule from two independent fuzzy tokens gets its degree from the
// multiplicative disjunction of both, not just the last one processed.
func TestFuzzyMultiplicativeDisjunction(t *testing.T) {
	signalKind := &fuzzyvar.Kind{Name: "signalKind", Values: []fuzzyvar.ValueDef{
		{Name: "elevated", A: 0.1, C: 50},
	}}

	inv := rules.NewInventory()
	inv.Add(&rules.Production{
		Name:    "r_risk",
		LHS:     []rules.Condition{{ID: "<s>", Attr: "signal", Val: "elevated"}},
		RHS:     &rules.RHS{ID: "riskAssessment", Attr: "risk", Val: "high"},
		Stratum: 0,
	})

	m := matcher.NewInMemory()
	log, _ := newTestLogger()
	ctx, err := NewContext(m, inv, resolve.FirstMatch{}, fuzzy.System{Kind: fuzzy.Multiplicative}, log)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx.RegisterFuzzyVariable(&fuzzyvar.Variable{Name: "signal", Kind: signalKind})

	ctx.AssertAxiomatic(wm.WME{ID: "s1", Attr: "signal", Val: "60"})
	ctx.AssertAxiomatic(wm.WME{ID: "s2", Attr: "signal", Val: "70"})
	ctx.Run()

	valDef := signalKind.Values[0]
	mu1 := valDef.Sigmoid(60)
	mu2 := valDef.Sigmoid(70)
	want := 1 - (1-mu1)*(1-mu2)

	got, ok := m.FuzzyMuOf(wm.WME{ID: "riskAssessment", Attr: "risk", Val: "high"})
	if !ok {
		t.Fatal("expected riskAssessment/risk/high to be a live fuzzy wme")
	}
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("disjoined degree = %v, want %v", got, want)
	}
}

// Idempotence: re-asserting the same axiomatic fact never duplicates the
// working-memory element, but does record a second justification.
func TestAssertAxiomaticIdempotence(t *testing.T) {
	inv := rules.NewInventory()
	m := matcher.NewInMemory()
	log, _ := newTestLogger()
	ctx, err := NewContext(m, inv, resolve.FirstMatch{}, fuzzy.System{Kind: fuzzy.MinMax}, log)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	w := wm.WME{ID: "B1", Attr: "color", Val: "red"}
	ctx.AssertAxiomatic(w)
	ctx.AssertAxiomatic(w)

	if got, want := len(m.WorkingMemory()), 1; got != want {
		t.Errorf("WorkingMemory() has %d entries, want %d", got, want)
	}
	if got, want := len(ctx.Justify.JustificationsOf(w)), 2; got != want {
		t.Errorf("JustificationsOf(w) has %d entries, want %d", got, want)
	}
}

// Store invariant: every wme currently in the matcher's working memory has
// a non-empty justification record, and the justification store tracks no
// wme the matcher does not.
func TestJustificationStoreKeySetMatchesMatcher(t *testing.T) {
	inv := rules.NewInventory()
	inv.Add(&rules.Production{
		Name:    "r_flies",
		LHS:     []rules.Condition{{ID: "<x>", Attr: "bird", Val: "true"}},
		RHS:     &rules.RHS{ID: "<x>", Attr: "flies", Val: "true"},
		Stratum: 0,
	})
	m := matcher.NewInMemory()
	log, _ := newTestLogger()
	ctx, err := NewContext(m, inv, resolve.FirstMatch{}, fuzzy.System{Kind: fuzzy.MinMax}, log)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx.AssertAxiomatic(wm.WME{ID: "B1", Attr: "bird", Val: "true"})
	ctx.Run()

	live := m.WorkingMemory()
	if ctx.Justify.Count() != len(live) {
		t.Fatalf("justify store tracks %d wmes, matcher has %d live", ctx.Justify.Count(), len(live))
	}
	for _, w := range live {
		justs := ctx.Justify.JustificationsOf(w)
		if len(justs) == 0 {
			t.Errorf("live wme %s has an empty justification set", w)
		}
	}
}

// Explain renders a tree rooted at a production-derived wme, descending
// into its supporting axiomatic fact.
func TestExplainRendersProductionDerivedTree(t *testing.T) {
	inv := rules.NewInventory()
	inv.Add(&rules.Production{
		Name:    "r_flies",
		LHS:     []rules.Condition{{ID: "<x>", Attr: "bird", Val: "true"}},
		RHS:     &rules.RHS{ID: "<x>", Attr: "flies", Val: "true"},
		Stratum: 0,
	})
	m := matcher.NewInMemory()
	log, _ := newTestLogger()
	ctx, err := NewContext(m, inv, resolve.FirstMatch{}, fuzzy.System{Kind: fuzzy.MinMax}, log)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx.AssertAxiomatic(wm.WME{ID: "B1", Attr: "bird", Val: "true"})
	ctx.Run()

	out := ctx.Explain(wm.WME{ID: "B1", Attr: "flies", Val: "true"})
	for _, want := range []string{"[r_flies]", "[Axiomatic]", "(B1 bird true)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Explain output missing %q:\n%s", want, out)
		}
	}
}

// Explaining a wme with no justification record warns under
// logging.CategoryExplain and still renders the "[missing justification]"
// leaf rather than panicking.
func TestExplainWarnsOnMissingJustification(t *testing.T) {
	inv := rules.NewInventory()
	m := matcher.NewInMemory()
	log, logs := newTestLogger()
	ctx, err := NewContext(m, inv, resolve.FirstMatch{}, fuzzy.System{Kind: fuzzy.MinMax}, log)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	ghost := wm.WME{ID: "B1", Attr: "color", Val: "red"}
	out := ctx.Explain(ghost)
	if !strings.Contains(out, "[missing justification]") {
		t.Errorf("Explain output = %q, want a missing-justification leaf", out)
	}

	found := false
	for _, entry := range logs.All() {
		if entry.ContextMap()["category"] == string(logging.CategoryExplain) {
			found = true
		}
	}
	if !found {
		t.Error("expected a CategoryExplain warning for a wme with no justification record")
	}
}

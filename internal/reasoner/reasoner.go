// Package reasoner implements the cycle driver and TMS (C4), mediating
// between the matcher, the justification store, the conflict resolver and
// the fuzzy layer. Context gathers the process-wide collections the
// reasoner used to keep as package globals into one explicit value passed
// to every operation, per the design note against ambient state.
package reasoner

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"veritas/internal/fuzzy"
	"veritas/internal/fuzzyvar"
	"veritas/internal/justify"
	"veritas/internal/logging"
	"veritas/internal/matcher"
	"veritas/internal/resolve"
	"veritas/internal/rules"
	"veritas/internal/wm"
)

// DefaultCycleLimit is N_MAX, the fixed per-run() cycle cap (spec §4.4).
const DefaultCycleLimit = 100

// Context gathers every collection a reasoning run needs: the matcher, the
// justification store, the rule inventory, the conflict resolver, the
// fuzzy system and registered fuzzy variables, and a per-Context run
// identifier that tags every trace line (it is not added to log records).
type Context struct {
	Matcher  matcher.Matcher
	Justify  *justify.Store
	Inv      *rules.Inventory
	Resolver resolve.Strategy
	Fuzzy    fuzzy.System
	Log      *logging.Logger

	CycleLimit int
	RunID      string

	fuzzyVars map[string]*fuzzyvar.Variable // by attribute name
	handles   map[string]matcher.ProductionHandle

	trace *TraceWriter

	// NonDeterministicFixpoint is set once, the first time a compiled
	// production's LHS contains a negative or aggregate condition, and
	// never cleared (spec §4.4).
	NonDeterministicFixpoint bool

	lastCycles int
}

// NewContext constructs a reasoning Context wired to the given
// collaborators. Every production already in inv is compiled against m.
func NewContext(m matcher.Matcher, inv *rules.Inventory, resolver resolve.Strategy, sys fuzzy.System, log *logging.Logger) (*Context, error) {
	c := &Context{
		Matcher:    m,
		Justify:    justify.New(),
		Inv:        inv,
		Resolver:   resolver,
		Fuzzy:      sys,
		Log:        log,
		CycleLimit: DefaultCycleLimit,
		RunID:      uuid.NewString(),
		fuzzyVars:  make(map[string]*fuzzyvar.Variable),
		handles:    make(map[string]matcher.ProductionHandle),
	}
	for _, p := range inv.All {
		if err := c.compile(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Context) compile(p *rules.Production) error {
	h, err := c.Matcher.AddProduction(p)
	if err != nil {
		return fmt.Errorf("compile production %q: %w", p.Name, err)
	}
	c.handles[p.Name] = h
	if rules.HasNegOrAggregate(p.LHS) {
		c.NonDeterministicFixpoint = true
	}
	return nil
}

// AddProduction compiles a newly-added production (e.g. one loaded by an
// interactive `run` command after the initial load) and registers its
// handle.
func (c *Context) AddProduction(p *rules.Production) error {
	if err := c.Inv.Add(p); err != nil {
		return err
	}
	return c.compile(p)
}

// RegisterFuzzyVariable registers v both with the matcher (so it recognizes
// fuzzy attributes while matching) and with this Context (so defuzzifyAll
// can enumerate it).
func (c *Context) RegisterFuzzyVariable(v *fuzzyvar.Variable) {
	c.Matcher.AddFuzzyVariable(v)
	c.fuzzyVars[v.Name] = v
}

// AssertAxiomatic asserts w directly (not fuzzy) with an Axiomatic
// justification, per the "program text or interactive retract/run command"
// provenance in spec §3. Re-asserting the same fact is idempotent in WME
// identity but always records a second Axiomatic justification (spec §8
// idempotence property).
func (c *Context) AssertAxiomatic(w wm.WME) {
	c.Matcher.AddWMEsFromConditions(w, nil)
	c.Justify.Record(w, justify.Justification{Kind: justify.Axiomatic})
	c.trace.record("assert-axiomatic %s", w.String())
}

// LastCycles reports how many cycles the most recent Run executed.
func (c *Context) LastCycles() int { return c.lastCycles }

// Run drives fire-assert-retract cycles to a fixed point or CycleLimit,
// whichever comes first (spec §4.4).
func (c *Context) Run() {
	limit := c.CycleLimit
	if limit <= 0 {
		limit = DefaultCycleLimit
	}
	cycle := 0
	for ; cycle < limit; cycle++ {
		items := c.buildConflictSet()
		if len(items) == 0 {
			break
		}
		item, ok := c.Resolver.Select(items)
		if !ok {
			break
		}
		c.trace.record("cycle=%d fire=%s", cycle, item.Handle.Name())
		c.apply(item)
	}
	c.lastCycles = cycle
	if cycle >= limit {
		c.Log.Warn(logging.CategoryCycle, "cycle limit exceeded, run declared non-convergent",
			zap.Int("cycle_limit", limit))
	}
}

func (c *Context) buildConflictSet() []resolve.Item {
	var items []resolve.Item
	for _, p := range c.Inv.All {
		h := c.handles[p.Name]
		delta := h.CanFire()
		if delta.Empty() {
			continue
		}
		items = append(items, resolve.Item{Handle: h, Delta: delta})
	}
	return items
}

// apply performs one selected conflict item's removals then assertions,
// exactly as specified in spec §4.4(a)-(b). It calls WillFire exactly once
// (the resolved "open question" in spec §9).
func (c *Context) apply(item resolve.Item) {
	delta := item.Handle.WillFire()
	ruleName := item.Handle.Name()

	c.removeWithdrawnTokens(ruleName, delta.ToRemove)

	p, ok := c.Inv.Lookup(ruleName)
	if !ok || p.RHS == nil {
		return
	}
	for _, t := range delta.ToAdd {
		c.assertRHS(p, ruleName, t)
	}
	c.defuzzifyAll()
}

// removeWithdrawnTokens implements spec §4.4(a).
func (c *Context) removeWithdrawnTokens(ruleName string, toRemove []wm.Token) {
	for _, t := range toRemove {
		for _, w := range c.Matcher.WorkingMemory() {
			empty := c.Justify.Withdraw(w, func(j justify.Justification) bool {
				return j.Kind == justify.ProductionDerived && j.Rule == ruleName && j.Token == t
			})
			if empty {
				if err := c.Matcher.RemoveWME(w); err != nil {
					c.Log.Warn(logging.CategoryCycle, "remove withdrawn wme failed", zap.Error(err))
					continue
				}
				c.Justify.Drop(w)
				c.trace.record("retract %s", w.String())
			}
		}
	}
}

// assertRHS implements spec §4.4(b).
func (c *Context) assertRHS(p *rules.Production, ruleName string, t wm.Token) {
	h := c.handles[ruleName]
	locs := h.LocationsOfAllVariablesInConditions()
	binding := matcher.BindToken(locs, t)

	resolveField := func(pattern string) string {
		if matcher.IsVariable(pattern) {
			if v, ok := binding[pattern]; ok {
				return v
			}
		}
		return pattern
	}

	w := wm.WME{
		ID:   resolveField(p.RHS.ID),
		Attr: resolveField(p.RHS.Attr),
		Val:  resolveField(p.RHS.Val),
	}

	var muPtr *float64
	if mu, ok := fuzzy.TokenToMu(c.Fuzzy, t); ok {
		muPtr = &mu
	}

	added, existing := c.Matcher.AddWMEsFromConditions(w, muPtr)

	j := justify.Justification{Kind: justify.ProductionDerived, Rule: ruleName, Token: t}
	for _, aw := range added {
		c.Justify.Record(aw, j)
		c.trace.record("assert %s via=%s", aw.String(), ruleName)
	}
	for _, ew := range existing {
		c.Justify.Record(ew, j)
		if _, isFuzzy := c.Matcher.FuzzyMuOf(ew); isFuzzy {
			c.propagateDegree(ew)
		}
	}
}

// propagateDegree implements spec §4.5's degree propagation: recompute
// w.μ as the disjunction of token-to-μ over every live production-derived
// justification of w. visited guards against re-entrance on the same WME
// within one propagation (spec design note on justification-graph cycles).
func (c *Context) propagateDegree(w wm.WME) {
	c.propagateDegreeVisited(w, make(map[string]bool))
}

func (c *Context) propagateDegreeVisited(w wm.WME, visited map[string]bool) {
	key := w.Key()
	if visited[key] {
		return
	}
	visited[key] = true

	justs := c.Justify.JustificationsOf(w)
	if justs == nil {
		c.Log.Warn(logging.CategoryFuzzy, "missing justification record during degree propagation", zap.String("wme", w.String()))
		return
	}
	mu, ok := fuzzy.ComputeDegree(c.Fuzzy, justs)
	if !ok {
		return
	}
	c.Matcher.SetFuzzyMu(w, mu)
}

// defuzzifyAll implements spec §4.5 defuzzification, run after every RHS
// assertion within a cycle and after every interactive mutation.
func (c *Context) defuzzifyAll() {
	for _, v := range c.fuzzyVars {
		c.defuzzifyVariable(v)
	}
}

func (c *Context) defuzzifyVariable(v *fuzzyvar.Variable) {
	groups := c.collectFuzzyGroups(v.Name)
	for id, g := range groups {
		g.ID = id
		g.Attr = v.Name
		xStar, err := fuzzy.CrispValue(v, g)
		if err != nil {
			c.Log.Warn(logging.CategoryFuzzy, "defuzzification failed", zap.Error(err))
			continue
		}
		c.replaceCrisp(v, g, xStar)
	}
}

func (c *Context) collectFuzzyGroups(attr string) map[string]fuzzy.Group {
	groups := make(map[string]fuzzy.Group)
	for _, w := range c.Matcher.WorkingMemory() {
		if w.Attr != attr {
			continue
		}
		mu, ok := c.Matcher.FuzzyMuOf(w)
		if !ok {
			continue
		}
		g := groups[w.ID]
		g.Members = append(g.Members, wm.FuzzyWME{WME: w, Mu: mu})
		groups[w.ID] = g
	}
	return groups
}

// replaceCrisp implements spec §4.5 step 3-4: find existing crisp WMEs for
// (id, attr), retract a single stale one if present, and assert the new
// crisp value.
func (c *Context) replaceCrisp(v *fuzzyvar.Variable, g fuzzy.Group, xStar float64) {
	var crisp []wm.WME
	for _, w := range c.Matcher.WorkingMemory() {
		if w.ID != g.ID || w.Attr != v.Name {
			continue
		}
		if _, isNum := fuzzy.ParseCrisp(w.Val); isNum {
			crisp = append(crisp, w)
		}
	}

	if len(crisp) > 1 {
		c.Log.Warn(logging.CategoryFuzzy, "multiple crisp wmes present for one (id,attr)",
			zap.String("id", g.ID), zap.String("attr", v.Name))
	}
	if len(crisp) == 1 {
		existingVal, _ := fuzzy.ParseCrisp(crisp[0].Val)
		if !fuzzy.SameWithinEpsilon(existingVal, xStar) {
			c.retractWMEAndJustifications(crisp[0])
		} else {
			return
		}
	}

	newWME := wm.WME{ID: g.ID, Attr: v.Name, Val: fuzzy.FormatCrisp(xStar)}
	added, existing := c.Matcher.AddWMEsFromConditions(newWME, nil)
	components := append([]wm.WME(nil), wmesFromGroup(g)...)
	j := justify.Justification{Kind: justify.DefuzzificationDerived, Components: components}
	for _, w := range added {
		c.Justify.Record(w, j)
	}
	for _, w := range existing {
		c.Justify.Record(w, j)
	}
}

func wmesFromGroup(g fuzzy.Group) []wm.WME {
	out := make([]wm.WME, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.WME
	}
	return out
}

// retractWMEAndJustifications discards w's defuzzification justification
// (spec §4.5 step 3): if no other justification remains, the matcher
// removes w.
func (c *Context) retractWMEAndJustifications(w wm.WME) {
	empty := c.Justify.Withdraw(w, func(j justify.Justification) bool {
		return j.Kind == justify.DefuzzificationDerived
	})
	if empty {
		if err := c.Matcher.RemoveWME(w); err != nil {
			c.Log.Warn(logging.CategoryFuzzy, "retract stale crisp wme failed", zap.Error(err))
			return
		}
		c.Justify.Drop(w)
	}
}

// Retract implements the interactive `retract` command (spec §4.4):
// find_retractable, withdraw that single justification, remove the WME if
// its justification set becomes empty, then re-stabilize the knowledge
// base by running defuzzification, a full cycle loop, and defuzzification
// again.
func (c *Context) Retract(w wm.WME) error {
	j, ok := c.Justify.FindRetractable(w)
	if !ok {
		return fmt.Errorf("wme %s has no axiomatic or defuzzification justification to retract", w)
	}
	empty := c.Justify.WithdrawOne(w, func(cand justify.Justification) bool {
		if j.Kind == justify.Axiomatic {
			// Axiomatic justifications never compare Equal; withdraw the
			// first one, which is the one FindRetractable returned.
			return cand.Kind == justify.Axiomatic
		}
		return cand.Equal(j)
	})
	if empty {
		if err := c.Matcher.RemoveWME(w); err != nil {
			return fmt.Errorf("retract %s: %w", w, err)
		}
		c.Justify.Drop(w)
	}
	c.trace.record("retract-interactive %s", w.String())
	c.defuzzifyAll()
	c.Run()
	c.defuzzifyAll()
	return nil
}

// Explain renders a justification tree for w in the surface form of spec
// §6: "├"/"└" branches, leaves for [Axiomatic] and
// [Fuzzification of: CRISP-WME], and "(*)" back-references that break
// cycles in the justification graph.
func (c *Context) Explain(w wm.WME) string {
	var sb strings.Builder
	visited := make(map[string]bool)
	sb.WriteString(w.String())
	sb.WriteByte('\n')
	c.explainNode(&sb, w, "", visited)
	return sb.String()
}

func (c *Context) explainNode(sb *strings.Builder, w wm.WME, prefix string, visited map[string]bool) {
	key := w.Key()
	if visited[key] {
		return
	}
	visited[key] = true

	justs := c.Justify.JustificationsOf(w)
	if justs == nil {
		c.Log.Warn(logging.CategoryExplain, "missing justification record during explain", zap.String("wme", w.String()))
		sb.WriteString(prefix + "└── [missing justification]\n")
		return
	}

	for i, j := range justs {
		last := i == len(justs)-1
		branch, childPrefix := treeBranch(prefix, last)
		switch j.Kind {
		case justify.Axiomatic:
			sb.WriteString(branch + "[Axiomatic]\n")
		case justify.ProductionDerived:
			sb.WriteString(branch + fmt.Sprintf("[%s]\n", j.Rule))
			c.explainToken(sb, j.Token, childPrefix, visited)
		case justify.DefuzzificationDerived:
			sb.WriteString(branch + "[Defuzzification]\n")
			for k, comp := range j.Components {
				compLast := k == len(j.Components)-1
				cBranch, grandPrefix := treeBranch(childPrefix, compLast)
				if visited[comp.Key()] {
					sb.WriteString(cBranch + comp.String() + " (*)\n")
					continue
				}
				sb.WriteString(cBranch + comp.String() + "\n")
				c.explainNode(sb, comp, grandPrefix, visited)
			}
		}
	}
}

func (c *Context) explainToken(sb *strings.Builder, t wm.Token, prefix string, visited map[string]bool) {
	wmes := t.WMEs()
	for i, w := range wmes {
		last := i == len(wmes)-1
		branch, childPrefix := treeBranch(prefix, last)
		if mu, isFuzzy := t.FuzzyAt(i); isFuzzy {
			if _, genuinelyAsserted := c.Matcher.FuzzyMuOf(w); !genuinelyAsserted {
				// The token holds the virtual fuzzy WME; name the crisp
				// numeric WME whose sigmoid value produced mu.
				src := w
				if v, ok := c.fuzzyVars[w.Attr]; ok {
					if def, ok := v.Kind.ValueByName(w.Val); ok {
						for _, cw := range c.Matcher.WorkingMemory() {
							x, isNum := fuzzy.ParseCrisp(cw.Val)
							if cw.ID == w.ID && cw.Attr == w.Attr && isNum && def.Sigmoid(x) == mu {
								src = cw
								break
							}
						}
					}
				}
				sb.WriteString(branch + fmt.Sprintf("[Fuzzification of: %s]\n", src.String()))
				continue
			}
		}
		if visited[w.Key()] {
			sb.WriteString(branch + w.String() + " (*)\n")
			continue
		}
		sb.WriteString(branch + w.String() + "\n")
		c.explainNode(sb, w, childPrefix, visited)
	}
}

func treeBranch(prefix string, last bool) (branch, childPrefix string) {
	if last {
		return prefix + "└── ", prefix + "    "
	}
	return prefix + "├── ", prefix + "│   "
}

package matcher

import (
	"fmt"
	"strconv"
	"strings"

	"veritas/internal/fuzzyvar"
	"veritas/internal/rules"
	"veritas/internal/wm"
)

// InMemory is a conformant, non-compiled-network implementation of
// Matcher: it re-scans working memory on every CanFire/WillFire call
// rather than maintaining a true Rete discrimination network. This is
// sufficient and correct for the contract in spec §9 (which is explicitly
// the boundary of an external collaborator); it is not intended to be
// fast at scale.
//
// Fuzzy matching: a positive condition whose Attr names a registered fuzzy
// variable and whose Val names one of that variable's fuzzy values matches
// two ways — against a literal WME already carrying that value (a
// genuinely asserted FuzzyWME, e.g. a prior rule's RHS output), and
// virtually, by evaluating the value's sigmoid against any crisp numeric
// WME for the same (id, attr) (the base-layer "fuzzification of a crisp
// observation" spec §6's explain output labels as
// "[Fuzzification of: CRISP-WME]" — the virtual match's justification is
// simply the underlying crisp WME's own justification chain, so no
// separate justification-store entry is created for it).
type InMemory struct {
	wmes      map[string]wm.WME
	order     []string
	fuzzy     map[string]*wm.FuzzyWME
	fuzzyVars map[string]*fuzzyvar.Variable
}

// NewInMemory creates an empty in-memory matcher.
func NewInMemory() *InMemory {
	return &InMemory{
		wmes:      make(map[string]wm.WME),
		fuzzy:     make(map[string]*wm.FuzzyWME),
		fuzzyVars: make(map[string]*fuzzyvar.Variable),
	}
}

func (m *InMemory) AddFuzzyVariable(v *fuzzyvar.Variable) {
	m.fuzzyVars[v.Name] = v
}

func (m *InMemory) GetFuzzyVariable(attr string) (*fuzzyvar.Variable, bool) {
	v, ok := m.fuzzyVars[attr]
	return v, ok
}

// FuzzyMuOf returns the current membership degree of w if it is a
// genuinely-asserted (not virtual) fuzzy WME.
func (m *InMemory) FuzzyMuOf(w wm.WME) (float64, bool) {
	if f, ok := m.fuzzy[w.Key()]; ok {
		return f.Mu, true
	}
	return 0, false
}

// SetFuzzyMu mutates a live fuzzy WME's degree in place (degree
// propagation, spec §4.5).
func (m *InMemory) SetFuzzyMu(w wm.WME, mu float64) {
	if f, ok := m.fuzzy[w.Key()]; ok {
		f.Mu = mu
	}
}

func (m *InMemory) AddWMEsFromConditions(w wm.WME, mu *float64) (added, existing []wm.WME) {
	key := w.Key()
	if _, ok := m.wmes[key]; ok {
		existing = append(existing, w)
		if mu != nil {
			if f, ok := m.fuzzy[key]; ok {
				f.Mu = *mu
			} else {
				m.fuzzy[key] = &wm.FuzzyWME{WME: w, Mu: *mu}
			}
		}
		return added, existing
	}
	m.wmes[key] = w
	m.order = append(m.order, key)
	if mu != nil {
		m.fuzzy[key] = &wm.FuzzyWME{WME: w, Mu: *mu}
	}
	added = append(added, w)
	return added, existing
}

func (m *InMemory) RemoveWME(w wm.WME) error {
	key := w.Key()
	if _, ok := m.wmes[key]; !ok {
		return fmt.Errorf("remove non-existent wme %s", w)
	}
	delete(m.wmes, key)
	delete(m.fuzzy, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *InMemory) WorkingMemory() []wm.WME {
	out := make([]wm.WME, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.wmes[k])
	}
	return out
}

func (m *InMemory) Query(conds []rules.Condition) []map[string]string {
	tokens := m.matchAll(conds)
	out := make([]map[string]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.binding
	}
	return out
}

// IsVariable reports whether a condition/RHS field names a bindable
// variable, i.e. "<name>".
func IsVariable(s string) bool {
	return len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>'
}

// IsWildcard reports whether a condition field is the unconstrained
// placeholder "_".
func IsWildcard(s string) bool {
	return s == "_"
}

// token is the concrete Token implementation. Identity is the pointer: two
// tokens are the same token iff they are the same *token, per the "never
// deep-copy" design note. The matcher reuses the same *token across cycles
// for a binding that continues to match, so production-derived
// justifications keyed on (rule, token) remain stable.
type token struct {
	wmes    []wm.WME
	mus     []*float64 // parallel to wmes; nil entry = not fuzzy
	binding map[string]string
}

func (t *token) WMEs() []wm.WME { return t.wmes }

func (t *token) FuzzyAt(i int) (float64, bool) {
	if i < 0 || i >= len(t.mus) || t.mus[i] == nil {
		return 0, false
	}
	return *t.mus[i], true
}

func (m *InMemory) matchAll(conds []rules.Condition) []*token {
	var results []*token
	m.matchRec(conds, 0, map[string]string{}, nil, nil, &results)
	return results
}

func (m *InMemory) matchRec(conds []rules.Condition, idx int, bindings map[string]string, wmesSoFar []wm.WME, musSoFar []*float64, results *[]*token) {
	if idx == len(conds) {
		wmesCopy := append([]wm.WME(nil), wmesSoFar...)
		musCopy := append([]*float64(nil), musSoFar...)
		*results = append(*results, &token{wmes: wmesCopy, mus: musCopy, binding: copyBindings(bindings)})
		return
	}

	c := conds[idx]
	switch c.Kind {
	case rules.Negative:
		if !m.existsMatch(c, bindings) {
			m.matchRec(conds, idx+1, bindings, wmesSoFar, musSoFar, results)
		}
	case rules.Aggregate:
		// Aggregate conditions are not exercised by any scenario in the
		// specification beyond flagging their effect on the
		// non-deterministic-fixpoint flag (see rules.HasNegOrAggregate);
		// this reference matcher treats them as an existence check over
		// the pattern, contributing no binding or token WME of their own.
		if m.existsMatch(c, bindings) {
			m.matchRec(conds, idx+1, bindings, wmesSoFar, musSoFar, results)
		}
	default: // Positive
		valDef, isFuzzyCond := m.fuzzyValueDef(c)

		for _, k := range m.order {
			w := m.wmes[k]
			nb, ok := tryBind(c, w, bindings)
			if !ok {
				continue
			}
			var muPtr *float64
			if f, isF := m.fuzzy[k]; isF {
				mv := f.Mu
				muPtr = &mv
			}
			m.matchRec(conds, idx+1, nb, append(wmesSoFar, w), append(musSoFar, muPtr), results)
		}

		if isFuzzyCond {
			for _, k := range m.order {
				w := m.wmes[k]
				if w.Attr != c.Attr || w.Val == c.Val {
					continue
				}
				x, err := strconv.ParseFloat(w.Val, 64)
				if err != nil {
					continue
				}
				nb := copyBindings(bindings)
				if !bindField(c.ID, w.ID, nb) {
					continue
				}
				mv := valDef.Sigmoid(x)
				virtual := wm.WME{ID: w.ID, Attr: c.Attr, Val: c.Val}
				m.matchRec(conds, idx+1, nb, append(wmesSoFar, virtual), append(musSoFar, &mv), results)
			}
		}
	}
}

// fuzzyValueDef reports whether c is a "fuzzy condition": Attr names a
// registered fuzzy variable and Val names one of that variable's declared
// fuzzy values, both as literals (not a bound variable or wildcard).
func (m *InMemory) fuzzyValueDef(c rules.Condition) (fuzzyvar.ValueDef, bool) {
	if IsVariable(c.Attr) || IsWildcard(c.Attr) || IsVariable(c.Val) || IsWildcard(c.Val) {
		return fuzzyvar.ValueDef{}, false
	}
	v, ok := m.fuzzyVars[c.Attr]
	if !ok {
		return fuzzyvar.ValueDef{}, false
	}
	return v.Kind.ValueByName(c.Val)
}

func (m *InMemory) existsMatch(c rules.Condition, bindings map[string]string) bool {
	for _, k := range m.order {
		w := m.wmes[k]
		if _, ok := tryBind(c, w, bindings); ok {
			return true
		}
	}
	return false
}

func tryBind(c rules.Condition, w wm.WME, bindings map[string]string) (map[string]string, bool) {
	nb := copyBindings(bindings)
	if !bindField(c.ID, w.ID, nb) {
		return nil, false
	}
	if !bindField(c.Attr, w.Attr, nb) {
		return nil, false
	}
	if !bindField(c.Val, w.Val, nb) {
		return nil, false
	}
	return nb, true
}

func bindField(pattern, actual string, bindings map[string]string) bool {
	switch {
	case IsWildcard(pattern):
		return true
	case IsVariable(pattern):
		if existing, ok := bindings[pattern]; ok {
			return existing == actual
		}
		bindings[pattern] = actual
		return true
	default:
		return pattern == actual
	}
}

func copyBindings(b map[string]string) map[string]string {
	nb := make(map[string]string, len(b))
	for k, v := range b {
		nb[k] = v
	}
	return nb
}

// handle is the ProductionHandle implementation backing a compiled
// production.
type handle struct {
	prod      *rules.Production
	m         *InMemory
	committed map[string]*token
	varLocs   map[string]VarLocation
}

func (m *InMemory) AddProduction(p *rules.Production) (ProductionHandle, error) {
	h := &handle{prod: p, m: m, committed: make(map[string]*token)}
	h.varLocs = computeVarLocations(p.LHS)
	return h, nil
}

func computeVarLocations(conds []rules.Condition) map[string]VarLocation {
	locs := make(map[string]VarLocation)
	posIdx := 0
	for _, c := range conds {
		if c.Kind != rules.Positive {
			continue
		}
		if IsVariable(c.ID) {
			if _, ok := locs[c.ID]; !ok {
				locs[c.ID] = VarLocation{ConditionIndex: posIdx, Field: FieldID}
			}
		}
		if IsVariable(c.Attr) {
			if _, ok := locs[c.Attr]; !ok {
				locs[c.Attr] = VarLocation{ConditionIndex: posIdx, Field: FieldAttr}
			}
		}
		if IsVariable(c.Val) {
			if _, ok := locs[c.Val]; !ok {
				locs[c.Val] = VarLocation{ConditionIndex: posIdx, Field: FieldVal}
			}
		}
		posIdx++
	}
	return locs
}

func (h *handle) Name() string { return h.prod.Name }

func tokenKey(t *token) string {
	var sb strings.Builder
	for _, w := range t.wmes {
		sb.WriteString(w.Key())
		sb.WriteByte('\x01')
	}
	return sb.String()
}

func (h *handle) computeDelta(commit bool) Delta {
	matches := h.m.matchAll(h.prod.LHS)
	newSet := make(map[string]*token, len(matches))
	for _, t := range matches {
		key := tokenKey(t)
		if old, ok := h.committed[key]; ok {
			newSet[key] = old // preserve token identity across cycles
		} else {
			newSet[key] = t
		}
	}

	var toAdd, toRemove []wm.Token
	for key, t := range newSet {
		if _, existed := h.committed[key]; !existed {
			toAdd = append(toAdd, t)
		}
	}
	for key, t := range h.committed {
		if _, still := newSet[key]; !still {
			toRemove = append(toRemove, t)
		}
	}

	if commit {
		h.committed = newSet
	}
	return Delta{ToAdd: toAdd, ToRemove: toRemove}
}

func (h *handle) CanFire() Delta {
	return h.computeDelta(false)
}

func (h *handle) WillFire() Delta {
	return h.computeDelta(true)
}

func (h *handle) LocationsOfAllVariablesInConditions() map[string]VarLocation {
	return h.varLocs
}

// Package matcher defines the contract a pattern-matching engine must
// present to the reasoner (spec §9) and provides one conformant in-process
// implementation. The engine is, by design, treated as an external
// collaborator: the reasoner core (internal/reasoner) depends only on the
// Matcher interface below, never on this package's concrete types, so a
// compiled-network (true Rete) implementation can be substituted without
// touching C1-C5.
package matcher

import (
	"veritas/internal/fuzzyvar"
	"veritas/internal/rules"
	"veritas/internal/wm"
)

// Delta is the token-level change a production has undergone since the
// matcher was last asked: tokens newly satisfying the LHS, and tokens that
// no longer do.
type Delta struct {
	ToAdd    []wm.Token
	ToRemove []wm.Token
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// Matcher is the external pattern-matching engine contract (spec §9).
// Implementations own working memory and token production; the core never
// deep-copies or structurally inspects a Token.
type Matcher interface {
	// AddProduction compiles a production's LHS into the matcher's network
	// and returns a handle used for CanFire/WillFire.
	AddProduction(p *rules.Production) (ProductionHandle, error)

	// AddWMEsFromConditions materializes an RHS assertion (already bound)
	// into working memory, passing the membership degree mu (nil if the
	// fact is not fuzzy). It returns the WMEs newly interned and those
	// that already existed.
	AddWMEsFromConditions(w wm.WME, mu *float64) (added []wm.WME, existing []wm.WME)

	// RemoveWME removes w from working memory. It is a caller error to
	// call this while w still has live justifications.
	RemoveWME(w wm.WME) error

	// Query runs an ad hoc set of conditions against working memory and
	// returns one binding map per matching combination.
	Query(conds []rules.Condition) []map[string]string

	// WorkingMemory enumerates every WME currently live in the matcher.
	WorkingMemory() []wm.WME

	// AddFuzzyVariable registers a fuzzy variable so attr-matching WMEs are
	// recognized as fuzzy (carry mu) rather than crisp.
	AddFuzzyVariable(v *fuzzyvar.Variable)

	// GetFuzzyVariable looks up a previously registered fuzzy variable by
	// its attribute name.
	GetFuzzyVariable(attr string) (*fuzzyvar.Variable, bool)

	// FuzzyMuOf returns the current membership degree of w if it is a
	// genuinely asserted (not virtually fuzzified) fuzzy WME.
	FuzzyMuOf(w wm.WME) (mu float64, ok bool)

	// SetFuzzyMu mutates a live fuzzy WME's membership degree in place, used
	// by degree propagation (spec §4.5). It is a no-op if w is not a live
	// fuzzy WME.
	SetFuzzyMu(w wm.WME, mu float64)
}

// ProductionHandle lets the core ask a compiled production for its
// conflict-set delta and variable-location table without knowing the
// matcher's internal representation.
type ProductionHandle interface {
	Name() string

	// CanFire reports the production's current delta without committing
	// it — used while building the conflict set.
	CanFire() Delta

	// WillFire commits and returns the delta CanFire would have reported.
	// The reasoner calls this exactly once per selected conflict item.
	WillFire() Delta

	// LocationsOfAllVariablesInConditions returns, for each RHS variable
	// name, the (condition-index, field) location in the LHS a binding can
	// be read from for a given token.
	LocationsOfAllVariablesInConditions() map[string]VarLocation
}

// VarLocation identifies where in a token's WME sequence a named variable
// is bound.
type VarLocation struct {
	ConditionIndex int
	Field          Field
}

// Field selects which element of a WME triple a variable location refers
// to.
type Field int

const (
	FieldID Field = iota
	FieldAttr
	FieldVal
)

// BindToken resolves every variable location against a concrete token,
// returning a name->value binding map. Shared helper so every Matcher
// implementation produces bindings the same way.
func BindToken(locs map[string]VarLocation, t wm.Token) map[string]string {
	wmes := t.WMEs()
	out := make(map[string]string, len(locs))
	for name, loc := range locs {
		if loc.ConditionIndex < 0 || loc.ConditionIndex >= len(wmes) {
			continue
		}
		w := wmes[loc.ConditionIndex]
		switch loc.Field {
		case FieldID:
			out[name] = w.ID
		case FieldAttr:
			out[name] = w.Attr
		case FieldVal:
			out[name] = w.Val
		}
	}
	return out
}

// Package rules holds production specifications and their organization
// into declaration-ordered strata (C2).
package rules

import "fmt"

// Condition is one LHS pattern element. Positive, negative and aggregate
// conditions are distinguished by Kind; the matcher (internal/matcher)
// interprets these against working memory.
type Condition struct {
	ID, Attr, Val string // may contain "<var>" placeholders
	Kind          ConditionKind
}

// ConditionKind distinguishes LHS condition flavors.
type ConditionKind int

const (
	Positive ConditionKind = iota
	Negative
	Aggregate
)

// HasNegOrAggregate reports whether any condition in conds is negative or
// aggregate — used to set the non-deterministic-fixpoint flag.
func HasNegOrAggregate(conds []Condition) bool {
	for _, c := range conds {
		if c.Kind == Negative || c.Kind == Aggregate {
			return true
		}
	}
	return false
}

// RHS is the optional assertion pattern a production fires.
type RHS struct {
	ID, Attr, Val string
}

// Production is a compiled rule: its LHS conditions, optional RHS
// assertion, and the stratum it was declared in. Rule-name doubles as the
// identity used in production-derived justifications.
type Production struct {
	Name    string
	LHS     []Condition
	RHS     *RHS
	Stratum int
}

// Inventory holds every production in declaration order, plus the
// declaration-ordered partition into strata.
type Inventory struct {
	All    []*Production
	Strata [][]*Production

	names map[string]*Production
}

// NewInventory creates an empty inventory with a single (initial) stratum.
func NewInventory() *Inventory {
	return &Inventory{
		Strata: [][]*Production{{}},
		names:  make(map[string]*Production),
	}
}

// NumStrata reports K, the number of strata.
func (inv *Inventory) NumStrata() int {
	return len(inv.Strata)
}

// OpenStratum appends a new, initially empty stratum and returns its index.
// Called when the loader encounters a `#stratum` directive.
func (inv *Inventory) OpenStratum() int {
	inv.Strata = append(inv.Strata, nil)
	return len(inv.Strata) - 1
}

// Add appends p to the global production list and to the stratum p.Stratum
// names. It returns an error, leaving the inventory unchanged, if p's
// rule-name is already in use; Add does not stop the load itself, and
// cmd/veritas logs the error as a warning and keeps loading.
func (inv *Inventory) Add(p *Production) error {
	if _, dup := inv.names[p.Name]; dup {
		return fmt.Errorf("duplicate rule name %q", p.Name)
	}
	if p.Stratum < 0 || p.Stratum >= len(inv.Strata) {
		return fmt.Errorf("rule %q declared in out-of-range stratum %d", p.Name, p.Stratum)
	}
	inv.names[p.Name] = p
	inv.All = append(inv.All, p)
	inv.Strata[p.Stratum] = append(inv.Strata[p.Stratum], p)
	return nil
}

// Lookup returns the production with the given name, if any.
func (inv *Inventory) Lookup(name string) (*Production, bool) {
	p, ok := inv.names[name]
	return p, ok
}

// StratumOf returns the stratum index of a rule name, or -1 if unknown.
func (inv *Inventory) StratumOf(name string) int {
	if p, ok := inv.names[name]; ok {
		return p.Stratum
	}
	return -1
}

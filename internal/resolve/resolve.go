// Package resolve implements the conflict resolver (C3): given the current
// conflict set, select at most one production to fire.
package resolve

import (
	"fmt"
	"strings"

	"veritas/internal/matcher"
	"veritas/internal/rules"
)

// Item is one entry of the conflict set: a production handle paired with
// the token delta it would apply.
type Item struct {
	Handle matcher.ProductionHandle
	Delta  matcher.Delta
}

// Strategy selects at most one item from a conflict set.
type Strategy interface {
	// Select returns the chosen item, or ok=false if none should fire.
	Select(items []Item) (Item, bool)
	Name() string
}

// FirstMatch always returns the first item in declaration (conflict-set)
// order.
type FirstMatch struct{}

func (FirstMatch) Name() string { return "first-match" }

func (FirstMatch) Select(items []Item) (Item, bool) {
	if len(items) == 0 {
		return Item{}, false
	}
	return items[0], true
}

// StratifiedManual maintains a monotonic stratum cursor. Once a stratum is
// abandoned it is never revisited, even if a later cycle re-enables one of
// its productions — this is what prevents default-logic rules from
// oscillating (spec §4.3).
type StratifiedManual struct {
	inv    *rules.Inventory
	cursor int
}

// NewStratifiedManual creates a stratified-manual resolver over inv,
// cursor starting at stratum 0.
func NewStratifiedManual(inv *rules.Inventory) *StratifiedManual {
	return &StratifiedManual{inv: inv}
}

func (s *StratifiedManual) Name() string { return "stratified-manual" }

// Cursor reports the current (monotonically non-decreasing) stratum index.
func (s *StratifiedManual) Cursor() int { return s.cursor }

func (s *StratifiedManual) Select(items []Item) (Item, bool) {
	for {
		if s.cursor >= s.inv.NumStrata() {
			return Item{}, false
		}
		stratumNames := make(map[string]bool, len(s.inv.Strata[s.cursor]))
		for _, p := range s.inv.Strata[s.cursor] {
			stratumNames[p.Name] = true
		}
		for _, item := range items {
			if stratumNames[item.Handle.Name()] {
				return item, true
			}
		}
		s.cursor++
	}
}

// Registry resolves a user-supplied strategy name via case-insensitive
// prefix matching. Unknown names fall back to first-match; the caller is
// expected to log the returned warning.
type Registry struct {
	factories map[string]func() Strategy
	order     []string
}

// NewRegistry creates a registry with the built-in strategies registered.
// StratifiedManual requires an inventory, so it is registered via a
// closure captured at construction time.
func NewRegistry(inv *rules.Inventory) *Registry {
	r := &Registry{factories: make(map[string]func() Strategy)}
	r.register("first-match", func() Strategy { return FirstMatch{} })
	r.register("stratified-manual", func() Strategy { return NewStratifiedManual(inv) })
	return r
}

func (r *Registry) register(name string, f func() Strategy) {
	r.factories[name] = f
	r.order = append(r.order, name)
}

// Resolve looks up name by case-insensitive prefix match. An empty name
// selects first-match with no warning. If no strategy matches, or the
// prefix matches more than one, it returns first-match and a non-nil
// warning describing the fallback.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if name == "" {
		return FirstMatch{}, nil
	}
	lower := strings.ToLower(name)
	var matched []string
	for _, n := range r.order {
		if strings.HasPrefix(n, lower) {
			matched = append(matched, n)
		}
	}
	if len(matched) == 1 {
		return r.factories[matched[0]](), nil
	}
	return FirstMatch{}, fmt.Errorf("unrecognized strategy %q, falling back to first-match", name)
}

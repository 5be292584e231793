// Package justify implements the justification-based truth maintenance
// store (C1): for every live WME it tracks the multiset of reasons keeping
// it alive, and answers whether withdrawing a reason empties that set.
package justify

import (
	"sync"

	"veritas/internal/wm"
)

// Kind tags the three justification variants. Justifications are modeled
// as a tagged union (a Kind plus the fields relevant to that kind), not as
// a type hierarchy, per the reasoner's design notes.
type Kind int

const (
	Axiomatic Kind = iota
	ProductionDerived
	DefuzzificationDerived
)

// Justification is a single reason a WME remains in working memory.
//
// Equality is kind-dependent: Axiomatic justifications are never deduped
// against one another (asserting the same fact twice yields two distinct
// axiomatic justifications, per the idempotence property); ProductionDerived
// justifications compare by (Rule, Token) identity; DefuzzificationDerived
// justifications compare by their component FuzzyWME set.
type Justification struct {
	Kind Kind

	// ProductionDerived payload.
	Rule  string
	Token wm.Token

	// DefuzzificationDerived payload: the ordered set of FuzzyWMEs combined
	// to produce the crisp value.
	Components []wm.WME
}

// Equal reports whether j and other are the same justification under the
// kind-dependent rule above.
func (j Justification) Equal(other Justification) bool {
	if j.Kind != other.Kind {
		return false
	}
	switch j.Kind {
	case Axiomatic:
		return false // never deduped against another instance
	case ProductionDerived:
		return j.Rule == other.Rule && j.Token == other.Token
	case DefuzzificationDerived:
		if len(j.Components) != len(other.Components) {
			return false
		}
		for i, c := range j.Components {
			if c != other.Components[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Record is the WME-Justification Record: a live WME and its non-empty set
// of justifications.
type Record struct {
	WME            wm.WME
	Justifications []Justification
}

// Store owns the mapping from live WME to its justification record. The
// store's key set is exactly the set of WMEs currently in the matcher's
// working memory (spec invariant).
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
}

// New creates an empty justification store.
func New() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Record adds justification j to w's record, creating the record if w is
// not yet tracked. Idempotent for ProductionDerived/DefuzzificationDerived
// justifications (an equal justification already present is not
// duplicated); Axiomatic justifications are always appended.
func (s *Store) Record(w wm.WME, j Justification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[w.Key()]
	if !ok {
		rec = &Record{WME: w}
		s.records[w.Key()] = rec
	}
	if j.Kind != Axiomatic {
		for _, existing := range rec.Justifications {
			if existing.Equal(j) {
				return
			}
		}
	}
	rec.Justifications = append(rec.Justifications, j)
}

// Withdraw removes every justification of w satisfying pred. It reports
// whether w's justification set is now empty (the caller must then ask the
// matcher to remove w and call Drop).
func (s *Store) Withdraw(w wm.WME, pred func(Justification) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[w.Key()]
	if !ok {
		return true
	}
	kept := rec.Justifications[:0:0]
	for _, j := range rec.Justifications {
		if !pred(j) {
			kept = append(kept, j)
		}
	}
	rec.Justifications = kept
	return len(kept) == 0
}

// WithdrawOne removes the first justification of w satisfying pred, leaving
// any others untouched. It reports whether w's justification set is now
// empty. Used for interactive retraction, which withdraws exactly one
// reason rather than every reason matching a predicate.
func (s *Store) WithdrawOne(w wm.WME, pred func(Justification) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[w.Key()]
	if !ok {
		return true
	}
	for i, j := range rec.Justifications {
		if pred(j) {
			rec.Justifications = append(rec.Justifications[:i:i], rec.Justifications[i+1:]...)
			break
		}
	}
	return len(rec.Justifications) == 0
}

// Drop removes w's record entirely. Must only be called after the matcher
// has removed w from working memory and its justification set is empty, to
// preserve the store's key-set invariant.
func (s *Store) Drop(w wm.WME) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, w.Key())
}

// FindRetractable returns one Axiomatic or DefuzzificationDerived
// justification of w, if any, preferring the first such justification in
// recording order. Production-derived justifications are never directly
// user-retractable.
func (s *Store) FindRetractable(w wm.WME) (Justification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[w.Key()]
	if !ok {
		return Justification{}, false
	}
	for _, j := range rec.Justifications {
		if j.Kind == Axiomatic || j.Kind == DefuzzificationDerived {
			return j, true
		}
	}
	return Justification{}, false
}

// JustificationsOf returns a read-only snapshot of w's current
// justifications, or nil if w is not tracked.
func (s *Store) JustificationsOf(w wm.WME) []Justification {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[w.Key()]
	if !ok {
		return nil
	}
	out := make([]Justification, len(rec.Justifications))
	copy(out, rec.Justifications)
	return out
}

// Has reports whether w currently has a record (i.e. is live per the
// store's bookkeeping).
func (s *Store) Has(w wm.WME) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[w.Key()]
	return ok
}

// Count returns the number of live WME records, for diagnostics/tests.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Package wm defines the working-memory element representation shared by
// every other package: the string-triple WME, its FuzzyWME
// variant, and the opaque Token type the matcher produces and the core
// holds only by identity.
package wm

import "fmt"

// WME is a working-memory element: an (id, attr, val) triple of plain Go
// strings. The strings are not interned; identity is field equality (see
// Key).
type WME struct {
	ID   string
	Attr string
	Val  string
}

// String renders the WME in the `(id attr val)` surface form used in
// source files, explain output and logs.
func (w WME) String() string {
	return fmt.Sprintf("(%s %s %s)", w.ID, w.Attr, w.Val)
}

// Key returns the map key identifying this WME's identity within the
// working memory. Two WMEs with equal fields are the same working-memory
// element.
func (w WME) Key() string {
	return w.ID + "\x00" + w.Attr + "\x00" + w.Val
}

// FuzzyWME is a WME carrying a mutable membership degree. Mu is mutated in
// place by degree propagation (see internal/fuzzy); identity is still the
// underlying WME triple, not the pointer.
type FuzzyWME struct {
	WME
	Mu float64
}

func (f *FuzzyWME) String() string {
	return fmt.Sprintf("(%s %s %s){mu=%.4f}", f.ID, f.Attr, f.Val, f.Mu)
}

// Token is an opaque sequence of WMEs produced and owned by the matcher.
// The core never deep-copies or structurally compares tokens; it treats
// them as identity values (see spec design note "Token identity").
type Token interface {
	// WMEs returns the WMEs bound by this token, in LHS-condition order.
	WMEs() []WME

	// FuzzyAt returns the membership degree of the WME at position i in
	// WMEs(), if that position is fuzzy — either a genuinely asserted
	// FuzzyWME or a value obtained by evaluating a registered fuzzy
	// variable's sigmoid against a crisp input fact. ok is false for a
	// non-fuzzy (crisp) position.
	FuzzyAt(i int) (mu float64, ok bool)
}

// Package schema implements the schema-check warning system (spec §6/§7):
// registered WME shapes via `#schema ID ATTR VAL [description]`, checked
// against asserted WMEs with a warn-don't-reject posture. Adapted from the
// teacher's SchemaValidator, which validates declared-predicate membership
// for Mangle rule text; here the declared unit is a WME shape (id/attr/val
// pattern, with "_" meaning unconstrained) rather than a predicate arity.
package schema

import (
	"fmt"

	"veritas/internal/wm"
)

// Shape is one registered permitted WME shape: id/val fields are either a
// literal to match or "_" (unconstrained). Attr is always a literal — spec
// §6 requires "attribute itself must not be _".
type Shape struct {
	ID, Attr, Val string
	Description   string
}

func (s Shape) matches(w wm.WME) bool {
	return fieldMatches(s.ID, w.ID) && s.Attr == w.Attr && fieldMatches(s.Val, w.Val)
}

func fieldMatches(pattern, actual string) bool {
	return pattern == "_" || pattern == actual
}

// Checker holds the registered shapes and the current on/off state of
// schema checking.
type Checker struct {
	enabled bool
	byAttr  map[string][]Shape
}

// NewChecker creates a Checker with schema checking off by default, per
// spec §6 (the `#schemacheck` directive toggles it).
func NewChecker() *Checker {
	return &Checker{byAttr: make(map[string][]Shape)}
}

// SetEnabled toggles schema checking on or off.
func (c *Checker) SetEnabled(on bool) {
	c.enabled = on
}

// Enabled reports whether schema checking is currently on.
func (c *Checker) Enabled() bool {
	return c.enabled
}

// Register adds a permitted shape for attr. It is an error for attr to be
// the wildcard "_" (spec §6).
func (c *Checker) Register(id, attr, val, description string) error {
	if attr == "_" {
		return fmt.Errorf("schema attribute must not be \"_\"")
	}
	c.byAttr[attr] = append(c.byAttr[attr], Shape{ID: id, Attr: attr, Val: val, Description: description})
	return nil
}

// Check reports whether w matches some registered shape for its attribute.
// When checking is disabled, or no shapes are registered for w.Attr at
// all, Check reports ok=true (nothing to warn about: an attribute with no
// declared shapes is simply unconstrained). Only an attribute that HAS
// declared shapes, none of which match, produces ok=false.
func (c *Checker) Check(w wm.WME) (ok bool, matchedDescription string) {
	if !c.enabled {
		return true, ""
	}
	shapes, declared := c.byAttr[w.Attr]
	if !declared {
		return true, ""
	}
	for _, s := range shapes {
		if s.matches(w) {
			return true, s.Description
		}
	}
	return false, ""
}

// Warning formats the warn-and-continue message spec §7 calls for when a
// schema-check fails (the WME is still added by the caller; Check never
// rejects).
func Warning(w wm.WME) string {
	return fmt.Sprintf("wme %s does not match any registered schema for attribute %q", w, w.Attr)
}

// Package parser implements the surface syntax reader for source files
// (spec §6): directive lines, fact assertions, production declarations and
// ad hoc queries. It is a hand-rolled, regexp-assisted scanner in the
// teacher's grammar.go idiom — this corpus never reaches for a
// parser-generator or combinator library for a structured text format, so
// a small recursive-descent-over-lines reader is the idiomatic choice here
// too.
//
// Surface grammar:
//
//	directive  := "#" WORD ARGS...
//	fact       := "(" FIELD FIELD FIELD ")"
//	condition  := ["~" | "?"] fact             // "~" negative, "?" aggregate
//	production := NAME ":" condition ("," condition)* ["=>" fact]
//	query      := "?" condition ("," condition)*
//
// FIELD is an identifier, a "<var>" variable placeholder, the wildcard "_",
// or (val position only) a bare numeric literal. Blank lines and lines
// beginning with ";" are comments.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"veritas/internal/fuzzyvar"
	"veritas/internal/rules"
	"veritas/internal/wm"
)

var factRe = regexp.MustCompile(`^([~?]?)\(\s*(\S+)\s+(\S+)\s+(\S+)\s*\)$`)

// Directive is one parsed `#...` line.
type Directive struct {
	Name string
	Args []string
}

// Fact is a parsed, unbound `(id attr val)` assertion.
type Fact struct {
	WME wm.WME
}

// QueryClause is a parsed ad hoc query: one or more conditions.
type QueryClause struct {
	Conditions []rules.Condition
}

// Batch is the result of parsing a whole source: its facts, productions
// and queries, in declaration order, interleaved via the Items field so a
// caller can execute them in source order. Parse returns a single Batch
// and applies every directive during the scan, so all of a file's
// directives have taken effect before any of its clauses is executed; the
// clauses are not split into separate batches at directive boundaries.
type Batch struct {
	Items []Item
}

// ItemKind distinguishes the three clause forms a Batch carries.
type ItemKind int

const (
	ItemFact ItemKind = iota
	ItemProduction
	ItemQuery
)

// Item is one parsed clause, tagged by kind.
type Item struct {
	Kind       ItemKind
	Fact       Fact
	Production *rules.Production
	Query      QueryClause
	Line       int
}

// ParseError reports a fatal surface-syntax error (spec §7: parse errors
// are fatal).
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Reader incrementally parses a source file, dispatching directives to a
// DirectiveHandler as they are encountered and returning a single Batch
// covering the file's clauses, interleaved with directive application
// points via the handler's own bookkeeping (stratum index, schema-check
// flag, fuzzy registry).
type Reader struct {
	handler DirectiveHandler
}

// DirectiveHandler applies directive side effects immediately, as spec §6
// requires ("directives take effect immediately").
type DirectiveHandler interface {
	OpenStratum()
	SetSchemaCheck(on bool)
	RegisterSchema(id, attr, val string, description string) error
	SetFuzzySystem(name string) error
	DefineFuzzyKind(name string, values []fuzzyvar.ValueDef) error
	DefineFuzzyVar(name, kind string) error
	// CurrentStratum reports the stratum index productions compiled right
	// now should be assigned to.
	CurrentStratum() int
}

// NewReader creates a Reader that applies directives through handler.
func NewReader(handler DirectiveHandler) *Reader {
	return &Reader{handler: handler}
}

// Parse scans r line by line, applying directives as encountered and
// collecting facts/productions/queries into the returned Batch. A
// malformed directive is reported in the returned warnings slice, not as
// an error (spec §7), but a malformed clause is a fatal parse error.
func (r *Reader) Parse(src io.Reader) (*Batch, []string, error) {
	batch := &Batch{}
	var warnings []string
	scanner := bufio.NewScanner(src)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "#") {
			w, err := r.applyDirective(line)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("line %d: %v", lineNo, err))
			}
			if w != "" {
				warnings = append(warnings, fmt.Sprintf("line %d: %s", lineNo, w))
			}
			continue
		}
		item, err := r.parseClause(line, lineNo)
		if err != nil {
			return nil, warnings, err
		}
		batch.Items = append(batch.Items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, fmt.Errorf("read source: %w", err)
	}
	return batch, warnings, nil
}

func (r *Reader) applyDirective(line string) (warning string, err error) {
	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], "#")
	args := fields[1:]

	switch name {
	case "stratum":
		r.handler.OpenStratum()
		return "", nil

	case "schemacheck":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return fmt.Sprintf("malformed #schemacheck directive %q, ignored", line), nil
		}
		r.handler.SetSchemaCheck(args[0] == "on")
		return "", nil

	case "schema":
		if len(args) < 3 {
			return fmt.Sprintf("malformed #schema directive %q, ignored", line), nil
		}
		id, attr, val := args[0], args[1], args[2]
		if attr == "_" {
			return fmt.Sprintf("#schema attribute must not be \"_\": %q, ignored", line), nil
		}
		desc := strings.Join(args[3:], " ")
		if err := r.handler.RegisterSchema(id, attr, val, desc); err != nil {
			return fmt.Sprintf("invalid #schema directive: %v, ignored", err), nil
		}
		return "", nil

	case "fuzzy":
		if len(args) < 1 {
			return fmt.Sprintf("malformed #fuzzy directive %q, ignored", line), nil
		}
		return r.applyFuzzyDirective(args, line)

	default:
		return fmt.Sprintf("unrecognized directive %q, ignored", line), nil
	}
}

func (r *Reader) applyFuzzyDirective(args []string, line string) (string, error) {
	switch args[0] {
	case "system":
		if len(args) != 2 {
			return fmt.Sprintf("malformed #fuzzy system directive %q, ignored", line), nil
		}
		if err := r.handler.SetFuzzySystem(args[1]); err != nil {
			return fmt.Sprintf("unrecognized fuzzy system %q, ignored", args[1]), nil
		}
		return "", nil

	case "kind":
		// #fuzzy kind NAME VAL:sigmoid A C, VAL:sigmoid A C, ...
		rest := strings.TrimSpace(strings.TrimPrefix(line, "#fuzzy kind"))
		fields := strings.Fields(rest)
		if len(fields) < 1 {
			return fmt.Sprintf("malformed #fuzzy kind directive %q, ignored", line), nil
		}
		kindName := fields[0]
		valuesPart := strings.TrimSpace(strings.TrimPrefix(rest, kindName))
		values, err := parseFuzzyValueDefs(valuesPart)
		if err != nil {
			return fmt.Sprintf("malformed #fuzzy kind directive: %v, ignored", err), nil
		}
		if err := r.handler.DefineFuzzyKind(kindName, values); err != nil {
			return fmt.Sprintf("invalid #fuzzy kind directive: %v, ignored", err), nil
		}
		return "", nil

	case "var":
		if len(args) != 3 {
			return fmt.Sprintf("malformed #fuzzy var directive %q, ignored", line), nil
		}
		if err := r.handler.DefineFuzzyVar(args[1], args[2]); err != nil {
			return fmt.Sprintf("invalid #fuzzy var directive: %v, ignored", err), nil
		}
		return "", nil

	default:
		return fmt.Sprintf("unrecognized #fuzzy subdirective %q, ignored", line), nil
	}
}

var fuzzyValueRe = regexp.MustCompile(`^(\S+):sigmoid\s+(\S+)\s+(\S+)$`)

// parseFuzzyValueDefs parses "VAL:sigmoid A C, VAL:sigmoid A C" into
// ValueDefs. Only "sigmoid" is accepted, per spec §6.
func parseFuzzyValueDefs(s string) ([]fuzzyvar.ValueDef, error) {
	parts := strings.Split(s, ",")
	defs := make([]fuzzyvar.ValueDef, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		m := fuzzyValueRe.FindStringSubmatch(p)
		if m == nil {
			return nil, fmt.Errorf("malformed fuzzy value definition %q (only VAL:sigmoid A C is accepted)", p)
		}
		a, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sigmoid a %q: %w", m[2], err)
		}
		c, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sigmoid c %q: %w", m[3], err)
		}
		defs = append(defs, fuzzyvar.ValueDef{Name: m[1], A: a, C: c})
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no fuzzy values declared")
	}
	return defs, nil
}

// parseClause parses one non-directive, non-comment source line into an
// Item: a bare fact, a named production, or a leading-"?" query.
func (r *Reader) parseClause(line string, lineNo int) (Item, error) {
	switch {
	case strings.HasPrefix(line, "?"):
		conds, err := parseConditionList(strings.TrimSpace(line[1:]), lineNo)
		if err != nil {
			return Item{}, err
		}
		return Item{Kind: ItemQuery, Query: QueryClause{Conditions: conds}, Line: lineNo}, nil

	case strings.Contains(line, ":"):
		return r.parseProduction(line, lineNo)

	default:
		f, err := parseFact(line, lineNo)
		if err != nil {
			return Item{}, err
		}
		return Item{Kind: ItemFact, Fact: f, Line: lineNo}, nil
	}
}

func (r *Reader) parseProduction(line string, lineNo int) (Item, error) {
	nameSep := strings.Index(line, ":")
	name := strings.TrimSpace(line[:nameSep])
	if name == "" {
		return Item{}, &ParseError{Line: lineNo, Msg: "production missing rule name before ':'"}
	}
	body := strings.TrimSpace(line[nameSep+1:])

	var lhsPart, rhsPart string
	if idx := strings.Index(body, "=>"); idx >= 0 {
		lhsPart = strings.TrimSpace(body[:idx])
		rhsPart = strings.TrimSpace(body[idx+2:])
	} else {
		lhsPart = body
	}

	conds, err := parseConditionList(lhsPart, lineNo)
	if err != nil {
		return Item{}, err
	}

	var rhs *rules.RHS
	if rhsPart != "" {
		f, err := parseFact(rhsPart, lineNo)
		if err != nil {
			return Item{}, err
		}
		rhs = &rules.RHS{ID: f.WME.ID, Attr: f.WME.Attr, Val: f.WME.Val}
	}

	p := &rules.Production{
		Name:    name,
		LHS:     conds,
		RHS:     rhs,
		Stratum: r.handler.CurrentStratum(),
	}
	return Item{Kind: ItemProduction, Production: p, Line: lineNo}, nil
}

// parseConditionList splits a comma-separated list of condition atoms,
// each optionally prefixed with "~" (negative) or "?" (aggregate).
func parseConditionList(s string, lineNo int) ([]rules.Condition, error) {
	parts := splitTopLevel(s)
	conds := make([]rules.Condition, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		c, err := parseCondition(p, lineNo)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	if len(conds) == 0 {
		return nil, &ParseError{Line: lineNo, Msg: "empty condition list"}
	}
	return conds, nil
}

func parseCondition(atom string, lineNo int) (rules.Condition, error) {
	m := factRe.FindStringSubmatch(atom)
	if m == nil {
		return rules.Condition{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("malformed condition %q, expected (id attr val)", atom)}
	}
	kind := rules.Positive
	switch m[1] {
	case "~":
		kind = rules.Negative
	case "?":
		kind = rules.Aggregate
	}
	return rules.Condition{ID: m[2], Attr: m[3], Val: m[4], Kind: kind}, nil
}

func parseFact(atom string, lineNo int) (Fact, error) {
	m := factRe.FindStringSubmatch(atom)
	if m == nil || m[1] != "" {
		return Fact{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("malformed fact %q, expected (id attr val)", atom)}
	}
	return Fact{WME: wm.WME{ID: m[2], Attr: m[3], Val: m[4]}}, nil
}

// splitTopLevel splits s on commas that are not inside a "(...)" atom.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// ParseRetractArgs splits an interactive `retract ID ATTR VAL` command's
// arguments.
func ParseRetractArgs(args []string) (wm.WME, error) {
	if len(args) != 3 {
		return wm.WME{}, fmt.Errorf("usage: retract ID ATTR VAL")
	}
	return wm.WME{ID: args[0], Attr: args[1], Val: args[2]}, nil
}

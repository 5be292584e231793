package main

import (
	"fmt"
	"os"

	"veritas/internal/config"
	"veritas/internal/fuzzy"
	"veritas/internal/fuzzyvar"
	"veritas/internal/logging"
	"veritas/internal/matcher"
	"veritas/internal/parser"
	"veritas/internal/reasoner"
	"veritas/internal/resolve"
	"veritas/internal/rules"
	"veritas/internal/schema"
	"veritas/internal/wm"
)

// Program bundles everything a loaded source file needs: the compiled rule
// inventory, the matcher, the reasoning context, the schema checker and the
// fuzzy-kind registry a `#fuzzy var` directive resolves against. It
// implements parser.DirectiveHandler so the parser can apply directives as
// it scans (spec §6: "directives take effect immediately").
type Program struct {
	Inv     *rules.Inventory
	Matcher *matcher.InMemory
	Schema  *schema.Checker
	Ctx     *reasoner.Context
	Log     *logging.Logger

	fuzzySys   fuzzy.SystemKind
	fuzzyKind  map[string]*fuzzyvar.Kind
	warnings   []string
	chatModelName string
}

// NewProgram constructs an empty Program wired to cfg and log.
func NewProgram(cfg config.Config, log *logging.Logger) (*Program, error) {
	inv := rules.NewInventory()
	m := matcher.NewInMemory()

	registry := resolve.NewRegistry(inv)
	strategy, err := registry.Resolve(cfg.Strategy)
	if err != nil {
		log.Warn(logging.CategoryParse, err.Error())
	}

	sys := fuzzy.System{Kind: fuzzy.MinMax}
	ctx, err := reasoner.NewContext(m, inv, strategy, sys, log)
	if err != nil {
		return nil, err
	}
	if cfg.CycleLimit > 0 {
		ctx.CycleLimit = cfg.CycleLimit
	}
	if err := ctx.EnableTrace(cfg.TracePath); err != nil {
		return nil, fmt.Errorf("enable trace: %w", err)
	}

	p := &Program{
		Inv:           inv,
		Matcher:       m,
		Schema:        schema.NewChecker(),
		Ctx:           ctx,
		Log:           log,
		fuzzyKind:     make(map[string]*fuzzyvar.Kind),
		chatModelName: cfg.Chat.Model,
	}
	p.Schema.SetEnabled(cfg.SchemaCheck)
	return p, nil
}

// --- parser.DirectiveHandler ---

func (p *Program) OpenStratum() {
	p.Inv.OpenStratum()
}

func (p *Program) CurrentStratum() int {
	return p.Inv.NumStrata() - 1
}

func (p *Program) SetSchemaCheck(on bool) {
	p.Schema.SetEnabled(on)
}

func (p *Program) RegisterSchema(id, attr, val, description string) error {
	return p.Schema.Register(id, attr, val, description)
}

func (p *Program) SetFuzzySystem(name string) error {
	switch name {
	case "min-max":
		p.fuzzySys = fuzzy.MinMax
	case "multiplicative":
		p.fuzzySys = fuzzy.Multiplicative
	default:
		return fmt.Errorf("unrecognized fuzzy system %q", name)
	}
	p.Ctx.Fuzzy = fuzzy.System{Kind: p.fuzzySys}
	return nil
}

func (p *Program) DefineFuzzyKind(name string, values []fuzzyvar.ValueDef) error {
	p.fuzzyKind[name] = &fuzzyvar.Kind{Name: name, Values: values}
	return nil
}

func (p *Program) DefineFuzzyVar(name, kindName string) error {
	kind, ok := p.fuzzyKind[kindName]
	if !ok {
		return fmt.Errorf("fuzzy kind %q not yet declared", kindName)
	}
	p.Ctx.RegisterFuzzyVariable(&fuzzyvar.Variable{Name: name, Kind: kind})
	return nil
}

// LoadFile reads path, applies its directives immediately and executes its
// clauses (facts, productions, queries) in source order, then runs the
// cycle driver to fixed point.
func (p *Program) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := parser.NewReader(p)
	batch, warnings, err := reader.Parse(f)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		p.Log.Warn(logging.CategoryParse, w)
	}

	for _, item := range batch.Items {
		p.execute(item)
	}
	p.Ctx.Run()
	p.Ctx.Log.Info(logging.CategoryCycle, fmt.Sprintf("run stabilized after %d cycle(s)", p.Ctx.LastCycles()))
	if p.Ctx.NonDeterministicFixpoint {
		p.Log.Warn(logging.CategoryCycle, "LHS conditions include negative/aggregate patterns: a non-deterministic fixed point cannot be ruled out")
	}
	return nil
}

func (p *Program) execute(item parser.Item) {
	switch item.Kind {
	case parser.ItemFact:
		p.assertFact(item.Fact.WME)
	case parser.ItemProduction:
		if err := p.Ctx.AddProduction(item.Production); err != nil {
			p.Log.Warn(logging.CategoryParse, fmt.Sprintf("line %d: %v", item.Line, err))
		}
	case parser.ItemQuery:
		fmt.Println(FormatQuery(p.Matcher.Query(item.Query.Conditions)))
	}
}

func (p *Program) assertFact(w wm.WME) {
	if ok, _ := p.Schema.Check(w); !ok {
		p.Log.Warn(logging.CategorySchema, schema.Warning(w))
	}
	p.Ctx.AssertAxiomatic(w)
}

// Retract implements the interactive `retract ID ATTR VAL` command.
func (p *Program) Retract(w wm.WME) error {
	return p.Ctx.Retract(w)
}

// Close flushes and closes any resources the Program opened, such as the
// -t/--trace file.
func (p *Program) Close() error {
	return p.Ctx.CloseTrace()
}

// Explain implements the interactive `explain ID ATTR VAL` command.
func (p *Program) Explain(w wm.WME) string {
	return p.Ctx.Explain(w)
}

// RunClauses parses and executes a batch of clauses supplied interactively
// (the `run <clauses>` command), without re-applying directives.
func (p *Program) RunClauses(src string) error {
	reader := parser.NewReader(p)
	batch, warnings, err := reader.Parse(stringReader(src))
	if err != nil {
		return err
	}
	for _, w := range warnings {
		p.Log.Warn(logging.CategoryParse, w)
	}
	for _, item := range batch.Items {
		p.execute(item)
	}
	p.Ctx.Run()
	return nil
}

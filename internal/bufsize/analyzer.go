package bufsize

import (
	"go.uber.org/zap"

	"github.com/chrissamuel/smatch/internal/core"
	"github.com/chrissamuel/smatch/internal/factdb"
)

// Analyzer is the buffer-size check over one parsed unit. It walks each
// function once, seeding and propagating size facts, and audits every
// array subscript against them.
type Analyzer struct {
	cfg *Config
	db  *factdb.DB
	log *zap.Logger
}

// New builds an analyzer. A nil logger is replaced with a nop logger; the
// fact store is required.
func New(cfg *Config, db *factdb.DB, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		cfg = DefaultConfig(false)
	}
	return &Analyzer{cfg: cfg, db: db, log: log}
}

func (a *Analyzer) Name() string { return checkName }

func (a *Analyzer) Description() string {
	return "tracks symbolic buffer capacities and flags subscripts that can reach one past the end"
}

// Run analyzes every function in the unit, in source order.
func (a *Analyzer) Run(ctx *core.AnalysisContext) ([]core.Finding, error) {
	a.seedKnownLimits()

	types := core.BuildTypeTable(ctx)
	funcs := core.BuildFunctionIndex(ctx)

	var findings []core.Finding
	for _, fn := range funcs.All() {
		w := core.NewWalk(ctx, types, funcs, fn)
		p := newPass(w, a.cfg, a.db, a.log.With(zap.String("function", fn.Name)))
		p.register()
		w.Run()
		findings = append(findings, w.Findings()...)
	}
	return findings, nil
}

// seedKnownLimits pushes configured limiter identities into the persisted
// table so the equality-class fallback can find them.
func (a *Analyzer) seedKnownLimits() {
	for _, kl := range a.cfg.KnownLimits {
		if kl.Data == "" {
			continue
		}
		if err := a.db.InsertDataInfo(kl.Data, factdb.KindArrayLen, kl.Array); err != nil {
			a.log.Warn("seed known limit", zap.Error(err))
		}
	}
}

// register wires every recognizer, bridge and auditor hook into the walk.
// Hook order within a site follows the original registration order: the
// audits run before increment tracking, caller summaries are persisted
// before callee summaries are applied.
func (p *pass) register() {
	w := p.w

	for name, sizeArg := range p.cfg.Allocators {
		w.OnCalleeAssign(name, p.matchAllocAssign(sizeArg))
	}
	for name, countArg := range p.cfg.Callocs {
		w.OnCalleeAssign(name, p.matchCallocAssign(countArg))
	}
	for _, name := range p.cfg.CopyFuncs {
		w.OnCalleeCall(name, p.matchCopy)
	}

	w.OnExpr(p.arrayCheck)
	w.OnExpr(p.arrayCheckDataInfo)
	w.OnExpr(p.setUsed)

	w.OnCall(p.matchCall)
	w.OnCall(p.applyCallImplies)

	w.OnAfterDef(p.seedParamFacts)

	w.OnAssign(p.matchAssign)
}

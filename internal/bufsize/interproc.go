package bufsize

import (
	"strconv"
	"strings"

	"github.com/chrissamuel/smatch/internal/core"
)

// paramComparison finds, for a pointer argument with a size fact, another
// argument of the same call that equals the sizing expression (exactly or
// after one recognized transform). Returns the persisted comparison key
// ("==$N") and the possibly transformed unit.
func (p *pass) paramComparison(array Expr, args []Expr) (string, LimitType, bool) {
	size, limit, ok := p.sizeVariable(array)
	if !ok {
		return "", 0, false
	}

	// increment-derived facts translate to their allocation-family units
	// at function boundaries
	switch limit {
	case UsedLast:
		limit = ElemLast
	case UsedCount:
		limit = ElemCount
	}

	size = size.Strip()
	for i, arg := range args {
		if arg.Equiv(array) {
			continue
		}
		stripped := arg.Strip()
		if stripped.Equiv(size) {
			return "==$" + strconv.Itoa(i), limit, true
		}
		if stripped.Kind() == core.KindBinary && p.matchSizeBinop(size, stripped, &limit) {
			return "==$" + strconv.Itoa(i), limit, true
		}
	}
	return "", 0, false
}

// matchCall persists a caller summary for every pointer argument whose
// capacity is another argument of the same call.
func (p *pass) matchCall(w *core.Walk, call Expr) {
	callee := call.Callee()
	if callee == "" {
		return
	}
	static := false
	if fi := p.funcs.Lookup(callee); fi != nil {
		static = fi.Static
	}

	args := call.CallArgs()
	for i, arg := range args {
		if !p.types.IsPointer(w.Fn.Name, arg) {
			continue
		}
		key, limit, ok := p.paramComparison(arg, args)
		if !ok {
			continue
		}
		err := p.db.InsertCallerInfo(callee, static, int(limit), i, key,
			strconv.Itoa(int(limit)))
		if err != nil {
			p.logDBError(err)
		}
	}
}

// parseCompareKey decodes the persisted "==$N" relation.
func parseCompareKey(key string) (int, bool) {
	if !strings.HasPrefix(key, "==$") {
		return 0, false
	}
	n, err := strconv.Atoi(key[3:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// seedParamFacts reconstitutes parameter facts from stored caller
// summaries at function entry. When call sites disagree, the first concrete
// row wins: if one caller passes the size then we assume they all
// effectively do.
func (p *pass) seedParamFacts(w *core.Walk) {
	rows, err := p.db.SelectCallerInfo(w.Fn.Name)
	if err != nil {
		p.logDBError(err)
		return
	}
	for _, row := range rows {
		if p.seeded[row.Parameter] {
			continue
		}
		sizeIdx, ok := parseCompareKey(row.Key)
		if !ok {
			continue
		}
		arrayParam, ok := p.funcs.Param(w.Fn.Name, row.Parameter)
		if !ok || arrayParam.NameNode == nil {
			continue
		}
		sizeParam, ok := p.funcs.Param(w.Fn.Name, sizeIdx)
		if !ok || sizeParam.NameNode == nil {
			continue
		}
		limit := LimitType(row.Type)
		if !limit.valid() {
			continue
		}

		arrayExpr := w.Expr(arrayParam.NameNode)
		sizeExpr := w.Expr(sizeParam.NameNode)
		p.setFact(arrayExpr, limit, sizeExpr)
		p.addLink(sizeExpr, arrayExpr, Expr{})
		p.seeded[row.Parameter] = true
	}
}

// applyCallImplies reconstitutes body-derived bounds of the callee onto the
// caller's argument expressions at a call site.
func (p *pass) applyCallImplies(w *core.Walk, call Expr) {
	callee := call.Callee()
	if callee == "" {
		return
	}
	rows, err := p.db.SelectCallImplies(callee)
	if err != nil {
		p.logDBError(err)
		return
	}
	for _, row := range rows {
		sizeIdx, ok := parseCompareKey(row.Key)
		if !ok {
			continue
		}
		bufArg := call.CallArg(row.Parameter).Strip()
		sizeArg := call.CallArg(sizeIdx).Strip()
		if !bufArg.Valid() || !sizeArg.Valid() {
			continue
		}
		limit := LimitType(row.Type)
		if !limit.valid() {
			continue
		}
		p.setFact(bufArg, limit, sizeArg)
		p.addLink(sizeArg, bufArg, call)
	}
}

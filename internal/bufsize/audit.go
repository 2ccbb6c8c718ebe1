package bufsize

import (
	"fmt"

	"github.com/chrissamuel/smatch/internal/core"
)

const checkName = "buf_size"

// arrayCheck flags a subscript whose offset can provably equal the
// buffer's element-count bound: one past the end. Taking the address of
// that element is the legal end-pointer idiom and stays silent.
func (p *pass) arrayCheck(w *core.Walk, e Expr) {
	if e.Kind() != core.KindSubscript {
		return
	}
	array := e.SubscriptBase().Strip()
	size, limit, ok := p.sizeVariable(array)
	if !ok {
		return
	}
	switch limit {
	case ElemCount:
	case ByteCount:
		if p.types.ElementSize(w.Fn.Name, array) != 1 {
			return
		}
	default:
		return
	}

	offset := e.SubscriptIndex().Strip()
	if !w.Oracle.PossiblyEqual(size, offset) {
		return
	}
	if e.GettingAddress() {
		return
	}

	w.Report(w.FindingAt(checkName, core.CWE193, core.SeverityMedium, core.ConfidenceMedium,
		fmt.Sprintf("potentially one past the end of array '%s[%s]'", array.Text(), offset.Text()),
		e))
}

// knownAccessOK short-circuits when the declared constant array length and
// the offset's proven maximum already guarantee safety.
func (p *pass) knownAccessOK(w *core.Walk, e Expr) bool {
	array := e.SubscriptBase().Strip()
	offset := e.SubscriptIndex().Strip()

	size := p.types.DeclaredArrayLen(w.Fn.Name, array)
	if size <= 0 {
		return false
	}
	max, ok := w.Oracle.AbsoluteMax(offset)
	return ok && max >= 0 && max < int64(size)
}

// indexOK consults the per-unit table of provably safe orderings between
// the offset and the tracked bound.
func (p *pass) indexOK(w *core.Walk, e Expr) bool {
	array := e.SubscriptBase().Strip()
	size, limit, ok := p.sizeVariable(array)
	if !ok {
		return false
	}
	offset := e.SubscriptIndex().Strip()
	cmp := w.Oracle.Compare(offset, size)
	if cmp == core.CompUnknown || cmp == core.CompImpossible {
		return false
	}

	if (limit == ElemCount || limit == ElemLast) && cmp == core.CompLT {
		return true
	}
	if limit == ByteCount && p.types.ElementSize(w.Fn.Name, array) == 1 &&
		cmp == core.CompLT {
		return true
	}
	if limit == ElemLast && (cmp == core.CompLTE || cmp == core.CompEQ) {
		return true
	}
	return false
}

// arrayCheckDataInfo is the equality-class fallback: when no ordering
// proves the subscript safe, any expression provably equal to the offset
// that is persisted as a known array-length limiter for this array makes
// the access a potential off-by-one (limiters hold the count, not the last
// index).
func (p *pass) arrayCheckDataInfo(w *core.Walk, e Expr) {
	if e.Kind() != core.KindSubscript {
		return
	}
	if p.knownAccessOK(w, e) {
		return
	}
	if p.indexOK(w, e) {
		return
	}

	array := e.SubscriptBase().Strip()
	offset := e.SubscriptIndex().Strip()
	if offset.Text() == "" {
		return
	}
	arrayIdentity := p.types.DataInfoName(w.Fn.Name, array)

	for _, eq := range w.Oracle.EqualExprs(offset) {
		limiter := p.types.DataInfoName(w.Fn.Name, eq)
		if limiter == "" {
			continue
		}
		known, err := p.db.IsKnownLimit(limiter, arrayIdentity)
		if err != nil {
			p.logDBError(err)
			return
		}
		if known {
			w.Report(w.FindingAt(checkName, core.CWE193, core.SeverityMedium, core.ConfidenceLow,
				fmt.Sprintf("potential off by one '%s[]' limit '%s'", array.Text(), eq.Text()),
				e))
			return
		}
	}
}

package bufsize

import (
	"strconv"

	"github.com/chrissamuel/smatch/internal/core"
)

// matchAllocAssign handles "p = malloc(size)" style assignments for every
// allocator in the table.
func (p *pass) matchAllocAssign(sizeArg int) core.CalleeAssignHook {
	return func(w *core.Walk, lhs, call, site Expr) {
		arg := call.CallArg(sizeArg)
		p.matchAllocHelper(lhs, arg, site)
		p.matchStructSize(lhs, arg, site)
	}
}

// matchAllocHelper seeds a fact from one capacity-taking allocation.
func (p *pass) matchAllocHelper(pointer, size, site Expr) {
	pointer = pointer.Strip()
	size = size.Strip()
	if !size.Valid() || !pointer.Valid() {
		return
	}

	// "sz = n * 4; p = malloc(sz)" sees the product
	if tmp, ok := p.w.AssignedExpr(size); ok && tmp.Strip().Kind() == core.KindBinary {
		size = tmp.Strip()
	}

	limit := ByteCount
	if size.Kind() == core.KindBinary && size.Operator() == "*" {
		left := size.Left().Strip()
		right := size.Right().Strip()
		elem := p.types.ElementSize(p.w.Fn.Name, pointer)
		if elem == 0 {
			return
		}
		if v, ok := p.w.Oracle.ImpliedValue(left); ok && v == int64(elem) {
			size = right
		} else if v, ok := p.w.Oracle.ImpliedValue(right); ok && v == int64(elem) {
			size = left
		} else {
			return
		}
		limit = ElemCount
	}

	// only save links to variables, not fixed sizes
	if _, ok := p.w.Oracle.Value(size); ok {
		return
	}

	if size.Kind() == core.KindBinary && size.Operator() == "+" {
		if v, ok := p.w.Oracle.Value(size.Right()); ok && v == 1 {
			size = size.Left().Strip()
			limit = ElemLast
		}
	}

	p.saveTypeLinks(p.types.DataInfoName(p.w.Fn.Name, pointer), limit, size)
	p.setFact(pointer, limit, size)
	p.addLink(size, pointer, site)
}

// matchCallocAssign handles counted allocators: kcalloc(n, size, gfp) and
// friends, with the count argument at countArg.
func (p *pass) matchCallocAssign(countArg int) core.CalleeAssignHook {
	return func(w *core.Walk, lhs, call, site Expr) {
		pointer := lhs.Strip()
		arg := call.CallArg(countArg).Strip()
		if !arg.Valid() || !pointer.Valid() {
			return
		}
		// swapped-argument tolerance: kcalloc(sizeof(*p), n, gfp)
		elem := p.types.ElementSize(p.w.Fn.Name, pointer)
		if v, ok := p.w.Oracle.ImpliedValue(arg); ok && elem > 0 && v == int64(elem) {
			arg = call.CallArg(countArg + 1).Strip()
			if !arg.Valid() {
				return
			}
		}

		limit := ElemCount
		if arg.Kind() == core.KindBinary && arg.Operator() == "+" {
			if v, ok := p.w.Oracle.Value(arg.Right()); ok && v == 1 {
				arg = arg.Left().Strip()
				limit = ElemLast
			}
		}
		if _, ok := p.w.Oracle.Value(arg); ok {
			return
		}

		p.saveTypeLinks(p.types.DataInfoName(p.w.Fn.Name, pointer), limit, arg)
		p.setFact(pointer, limit, arg)
		p.addLink(arg, pointer, site)
	}
}

// structSizeCount recognizes the kernel "base struct plus count * elem"
// sizing idioms and extracts the element count:
//
//	__ab_c_size(count, elem, hdr)
//	size_add(hdr, size_mul(count, elem))
//	struct_size(ptr, member, count)   (unpreprocessed macro form)
func (p *pass) structSizeCount(size Expr) Expr {
	size = size.Strip()
	if size.Kind() != core.KindCall {
		return Expr{}
	}
	switch size.Callee() {
	case "__ab_c_size":
		return size.CallArg(0)
	case "struct_size":
		return size.CallArg(2)
	case "size_add":
		inner := size.CallArg(1).Strip()
		if inner.Kind() != core.KindCall || inner.Callee() != "size_mul" {
			return Expr{}
		}
		return inner.CallArg(0)
	}
	return Expr{}
}

// matchStructSize seeds a fact for the flexible trailing array of a
// struct-with-flexible-array-member allocation. The buffer identity is the
// synthetic "ptr->last_member" expression, independent of the primary
// allocation fact.
func (p *pass) matchStructSize(pointer, size, site Expr) {
	if !p.cfg.Kernel {
		return
	}
	pointer = pointer.Strip()
	if tmp, ok := p.w.AssignedExpr(size); ok {
		size = tmp
	}
	size = size.Strip()
	if !size.Valid() || !pointer.Valid() {
		return
	}
	count := p.structSizeCount(size)
	if !count.Valid() {
		return
	}
	structName, memberName, ok := p.types.FlexibleMember(p.w.Fn.Name, pointer)
	if !ok {
		return
	}
	member := core.SyntheticExpr(pointer.Text() + "->" + memberName)

	p.saveTypeLinks("(struct "+structName+")->"+memberName, ElemCount, count)
	p.setFact(member, ElemCount, count)
	p.addLink(count, member, site)
}

// matchCopy handles bulk copies into a parameter-sized destination:
// copy_from_user(dst, src, size) where src and size are both untouched
// parameters persists "src's capacity in bytes equals size" against the
// current function, for reuse when this function appears as a callee.
func (p *pass) matchCopy(w *core.Walk, call Expr) {
	src := call.CallArg(1).Strip()
	size := call.CallArg(2).Strip()
	if !src.Valid() || !size.Valid() {
		return
	}
	if src.Kind() != core.KindIdent || size.Kind() != core.KindIdent {
		return
	}
	if !w.ParamUntouched(src.Text()) || !w.ParamUntouched(size.Text()) {
		return
	}
	srcParam := w.ParamIndex(src.Text())
	sizeParam := w.ParamIndex(size.Text())

	err := p.db.InsertCallImplies(w.Fn.Name, w.Fn.Static, int(ByteCount), srcParam,
		"==$"+strconv.Itoa(sizeParam), strconv.Itoa(int(ByteCount)))
	if err != nil {
		p.logDBError(err)
	}
}

// setUsed tracks an increment used directly as an array offset: buf[x++]
// means x elements were consumed, buf[++x] means x is the last index used.
func (p *pass) setUsed(w *core.Walk, e Expr) {
	if e.Kind() != core.KindUpdate {
		return
	}
	parent := e.ParentExpr()
	if parent.Kind() != core.KindSubscript {
		return
	}
	index := parent.SubscriptIndex().Strip()
	if index.Node == nil || e.Node == nil || !index.Node.Equal(e.Node) {
		return
	}

	limit := UsedLast
	if !e.UpdateIsPrefix() {
		limit = UsedCount
	}
	array := parent.SubscriptBase().Strip()
	operand := e.UpdateOperand().Strip()
	p.setFact(array, limit, operand)
	p.addLink(operand, array, e)
}

// matchSizeBinop recognizes the unit-transforming arithmetic shapes over a
// known sizing expression and rewrites the limit accordingly.
func (p *pass) matchSizeBinop(size, expr Expr, limit *LimitType) bool {
	left := expr.Left().Strip()
	if !size.Equiv(left) {
		return false
	}

	isOne := func(e Expr) bool {
		v, ok := p.w.Oracle.Value(e)
		return ok && v == 1
	}
	isSizeof := func(e Expr) bool {
		return e.Strip().Kind() == core.KindSizeof
	}

	switch expr.Operator() {
	case "-":
		if isOne(expr.Right()) && *limit == ElemCount {
			*limit = ElemLast
			return true
		}
	case "+":
		if isOne(expr.Right()) && *limit == ElemLast {
			*limit = ElemCount
			return true
		}
	case "*":
		if isSizeof(expr.Right()) && *limit == ElemCount {
			*limit = ByteCount
			return true
		}
	case "/":
		if isSizeof(expr.Right()) && *limit == ByteCount {
			*limit = ElemCount
			return true
		}
	}
	return false
}

// matchAssignSize re-points a buffer's fact when its sizing expression (or
// a recognized transform of it) is copied into a new variable.
func (p *pass) matchAssignSize(w *core.Walk, lhs, rhs, site Expr) bool {
	right := rhs.Strip()
	size := right
	if size.Kind() == core.KindBinary {
		size = size.Left().Strip()
	}

	array := p.arrayVariable(size)
	if !array.Valid() {
		return false
	}
	st := p.fact(array)
	if st == nil {
		return false
	}

	limit := st.limit
	if right.Kind() == core.KindBinary && !p.matchSizeBinop(size, right, &limit) {
		return false
	}

	p.setFact(array, limit, lhs)
	p.addLink(lhs, array, site)
	return true
}

// matchAssignSmaller: assigning a provably smaller value to a tracked
// sizing variable. There is no way to represent "less than the limit",
// only "is the limit", so the only action is to exempt this one write from
// the otherwise-automatic invalidation.
func (p *pass) matchAssignSmaller(w *core.Walk, lhs, rhs, site Expr) bool {
	array := p.arrayVariable(lhs)
	if !array.Valid() {
		return false
	}
	if _, ok := p.w.Oracle.Value(rhs); ok {
		return false
	}
	switch p.w.Oracle.Compare(lhs, rhs) {
	case core.CompGT, core.CompGTE:
	default:
		return false
	}

	if site.Node != nil {
		p.ignoreWriteID = site.Node.ID()
	}
	return true
}

// matchAssignArray propagates a fact across a pointer copy: "p = q" aliases
// p to q's buffer, so the capacity fact and its link move with it. This is
// also how a rewritten statement-expression allocation hands its fact from
// the temporary to the real pointer.
func (p *pass) matchAssignArray(w *core.Walk, lhs, rhs, site Expr) bool {
	st := p.fact(rhs.Strip())
	if st == nil {
		return false
	}
	p.setFact(lhs, st.limit, st.size)
	p.addLink(st.size, lhs, site)
	return true
}

// matchAssign is the plain-assignment dispatch chain; compound operators
// never reach it.
func (p *pass) matchAssign(w *core.Walk, lhs, rhs, site Expr) bool {
	if p.matchAssignArray(w, lhs, rhs, site) {
		return true
	}
	if p.matchAssignSize(w, lhs, rhs, site) {
		return true
	}
	if p.matchAssignSmaller(w, lhs, rhs, site) {
		return true
	}
	return false
}

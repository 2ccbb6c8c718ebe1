package core

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Hook signatures. Assign hooks return true when they handled the
// assignment, which stops the chain.
type (
	AssignHook       func(w *Walk, lhs, rhs, site Expr) bool
	CalleeAssignHook func(w *Walk, lhs, call, site Expr)
	CallHook         func(w *Walk, call Expr)
	ExprHook         func(w *Walk, e Expr)
	AfterDefHook     func(w *Walk)
)

// Walk drives one function body to completion: a structural traversal with
// fork/merge at conditionals, guard scoping for loop and branch conditions,
// and hook dispatch at assignment, call and expression sites. Checks react;
// the walker owns the traversal.
type Walk struct {
	Ctx    *AnalysisContext
	Types  *TypeTable
	Funcs  *FunctionIndex
	Oracle *ScopeOracle
	States *StateMap
	Fn     *FunctionInfo

	assignHooks   []AssignHook
	calleeAssign  map[string][]CalleeAssignHook
	callHooks     []CallHook
	calleeCall    map[string][]CallHook
	exprHooks     []ExprHook
	afterDefHooks []AfterDefHook

	modified map[string]bool
	findings []Finding
}

// NewWalk prepares a walk of one function with fresh state.
func NewWalk(ctx *AnalysisContext, types *TypeTable, funcs *FunctionIndex, fn *FunctionInfo) *Walk {
	return &Walk{
		Ctx:          ctx,
		Types:        types,
		Funcs:        funcs,
		Oracle:       NewScopeOracle(types, fn.Name),
		States:       NewStateMap(),
		Fn:           fn,
		calleeAssign: make(map[string][]CalleeAssignHook),
		calleeCall:   make(map[string][]CallHook),
		modified:     make(map[string]bool),
	}
}

func (w *Walk) OnAssign(h AssignHook)     { w.assignHooks = append(w.assignHooks, h) }
func (w *Walk) OnCall(h CallHook)         { w.callHooks = append(w.callHooks, h) }
func (w *Walk) OnExpr(h ExprHook)         { w.exprHooks = append(w.exprHooks, h) }
func (w *Walk) OnAfterDef(h AfterDefHook) { w.afterDefHooks = append(w.afterDefHooks, h) }

// OnCalleeAssign fires when the RHS of a plain assignment is a direct call
// to the named function.
func (w *Walk) OnCalleeAssign(callee string, h CalleeAssignHook) {
	w.calleeAssign[callee] = append(w.calleeAssign[callee], h)
}

// OnCalleeCall fires on every direct call to the named function.
func (w *Walk) OnCalleeCall(callee string, h CallHook) {
	w.calleeCall[callee] = append(w.calleeCall[callee], h)
}

// Report records a finding.
func (w *Walk) Report(f Finding) { w.findings = append(w.findings, f) }

// Findings returns what the checks reported during this walk.
func (w *Walk) Findings() []Finding { return w.findings }

// FindingAt fills in location from an expression.
func (w *Walk) FindingAt(check, cwe, severity, confidence, message string, at Expr) Finding {
	return Finding{
		Check:      check,
		CWE:        cwe,
		Message:    message,
		File:       w.Ctx.Unit.FilePath,
		Line:       at.Line(),
		Column:     at.Column(),
		Severity:   severity,
		Confidence: confidence,
	}
}

// ParamIndex returns the position of a named parameter, -1 if none.
func (w *Walk) ParamIndex(name string) int {
	for i, p := range w.Fn.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// ParamUntouched reports whether a parameter has not been written since
// function entry.
func (w *Walk) ParamUntouched(name string) bool {
	return w.ParamIndex(name) >= 0 && !w.modified[name]
}

// AssignedExpr resolves an expression through recorded assignment chains.
func (w *Walk) AssignedExpr(e Expr) (Expr, bool) {
	return w.Oracle.AssignedExpr(e)
}

// Expr wraps a node of the walked unit.
func (w *Walk) Expr(n *sitter.Node) Expr {
	return WrapExpr(n, w.Ctx.Unit.Source)
}

// Run dispatches after-definition hooks, then walks the body once.
func (w *Walk) Run() {
	for _, h := range w.afterDefHooks {
		h(w)
	}
	if w.Fn.Body != nil {
		w.walkStmt(w.Fn.Body)
	}
}

func (w *Walk) walkStmt(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "compound_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.walkStmt(n.NamedChild(i))
		}
	case "declaration":
		w.walkDeclaration(n)
	case "expression_statement", "return_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.walkAny(n.NamedChild(i))
		}
	case "if_statement":
		w.walkIf(n)
	case "while_statement":
		cond := innerCondition(n.ChildByFieldName("condition"), w.Ctx.Unit.Source)
		w.walkExpr(cond)
		w.walkGuarded(cond, n.ChildByFieldName("body"))
	case "do_statement":
		cond := innerCondition(n.ChildByFieldName("condition"), w.Ctx.Unit.Source)
		w.walkGuarded(cond, n.ChildByFieldName("body"))
		w.walkExpr(cond)
	case "for_statement":
		w.walkFor(n)
	case "switch_statement":
		cond := innerCondition(n.ChildByFieldName("condition"), w.Ctx.Unit.Source)
		w.walkExpr(cond)
		if body := n.ChildByFieldName("body"); body != nil {
			w.walkStmt(body)
		}
	case "case_statement", "labeled_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.walkStmt(n.NamedChild(i))
		}
	case "comment", "break_statement", "continue_statement", "goto_statement":
		// nothing tracked across these
	default:
		w.walkAny(n)
	}
}

// walkAny dispatches a node that may be a statement or an expression.
func (w *Walk) walkAny(n *sitter.Node) {
	if n == nil {
		return
	}
	e := w.Expr(n)
	if e.Kind() != KindUnknown {
		w.walkExpr(e)
		return
	}
	switch n.Type() {
	case "compound_statement", "declaration", "if_statement", "while_statement",
		"for_statement", "do_statement", "switch_statement", "expression_statement",
		"return_statement", "case_statement", "labeled_statement":
		w.walkStmt(n)
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.walkAny(n.NamedChild(i))
		}
	}
}

// walkDeclaration normalizes initialized declarators to assignments.
func (w *Walk) walkDeclaration(n *sitter.Node) {
	src := w.Ctx.Unit.Source
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "init_declarator" {
			continue
		}
		value := decl.ChildByFieldName("value")
		target := decl.ChildByFieldName("declarator")
		if value == nil || target == nil {
			continue
		}
		id := declaratorIdentifier(target)
		if id == nil {
			continue
		}
		rhs := WrapExpr(value, src)
		w.walkExpr(rhs)
		w.handleAssign(WrapExpr(id, src), rhs, WrapExpr(decl, src), "=")
	}
}

func declaratorIdentifier(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "identifier":
			return n
		case "pointer_declarator", "array_declarator", "parenthesized_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(0)
			}
			n = next
		default:
			return nil
		}
	}
	return nil
}

func innerCondition(cond *sitter.Node, src []byte) Expr {
	if cond == nil {
		return Expr{}
	}
	e := WrapExpr(cond, src)
	if e.Kind() == KindParen {
		return e.Strip()
	}
	return e
}

func (w *Walk) walkIf(n *sitter.Node) {
	cond := innerCondition(n.ChildByFieldName("condition"), w.Ctx.Unit.Source)
	w.walkExpr(cond)

	base := w.States
	then := base.Fork()
	w.States = then
	guarded := cond.Valid()
	if guarded {
		w.Oracle.PushGuard(cond, false)
	}
	if cons := n.ChildByFieldName("consequence"); cons != nil {
		w.walkStmt(cons)
	}
	if guarded {
		w.Oracle.PopGuard()
	}

	alt := n.ChildByFieldName("alternative")
	if alt != nil {
		altStmt := alt
		if alt.Type() == "else_clause" && alt.NamedChildCount() > 0 {
			altStmt = alt.NamedChild(0)
		}
		els := base.Fork()
		w.States = els
		if guarded {
			w.Oracle.PushGuard(cond, true)
		}
		w.walkStmt(altStmt)
		if guarded {
			w.Oracle.PopGuard()
		}
		then.MergeFrom(els)
	} else {
		then.MergeFrom(base)
	}
	w.States = then
}

func (w *Walk) walkFor(n *sitter.Node) {
	if init := n.ChildByFieldName("initializer"); init != nil {
		w.walkAny(init)
	}
	cond := Expr{}
	if c := n.ChildByFieldName("condition"); c != nil {
		cond = innerCondition(c, w.Ctx.Unit.Source)
		w.walkExpr(cond)
	}
	body := n.ChildByFieldName("body")
	update := n.ChildByFieldName("update")
	if cond.Valid() {
		w.Oracle.PushGuard(cond, false)
	}
	if body != nil {
		w.walkStmt(body)
	}
	if update != nil {
		w.walkAny(update)
	}
	if cond.Valid() {
		w.Oracle.PopGuard()
	}
}

func (w *Walk) walkGuarded(cond Expr, body *sitter.Node) {
	if cond.Valid() {
		w.Oracle.PushGuard(cond, false)
	}
	if body != nil {
		w.walkStmt(body)
	}
	if cond.Valid() {
		w.Oracle.PopGuard()
	}
}

func (w *Walk) walkExpr(e Expr) {
	if !e.Valid() || e.Node == nil {
		return
	}
	for _, h := range w.exprHooks {
		h(w, e)
	}
	switch e.Kind() {
	case KindAssign:
		w.walkExpr(e.Right())
		w.walkExpr(e.Left())
		w.handleAssign(e.Left(), e.Right(), e, e.Operator())
	case KindUpdate:
		operand := e.UpdateOperand()
		w.walkExpr(operand)
		name := operand.Strip().Text()
		w.dispatchModified(name, e)
		w.Oracle.RetireName(name)
		w.markModified(operand)
	case KindCall:
		for _, a := range e.CallArgs() {
			w.walkExpr(a)
		}
		callee := e.Callee()
		if callee != "" {
			for _, h := range w.calleeCall[callee] {
				h(w, e)
			}
		}
		for _, h := range w.callHooks {
			h(w, e)
		}
	case KindParen, KindUnary, KindCast, KindSizeof,
		KindBinary, KindComma, KindConditional, KindSubscript, KindField:
		// walkAny tolerates non-expression children in recovered parse trees
		for i := 0; i < int(e.Node.NamedChildCount()); i++ {
			w.walkAny(e.Node.NamedChild(i))
		}
	}
}

// handleAssign runs recognizer dispatch for a write, then the late
// modification pass for the written name.
func (w *Walk) handleAssign(lhs, rhs, site Expr, op string) {
	if op == "=" {
		rhsS := rhs.Strip()
		if rhsS.Kind() == KindCall {
			if callee := rhsS.Callee(); callee != "" {
				for _, h := range w.calleeAssign[callee] {
					h(w, lhs, rhsS, site)
				}
			}
		}
		for _, h := range w.assignHooks {
			if h(w, lhs, rhs, site) {
				break
			}
		}
		w.Oracle.RecordAssign(lhs, rhs)
	} else {
		// compound assignment: the old value is gone either way
		w.Oracle.RetireName(lhs.Strip().Text())
	}
	w.dispatchModified(lhs.Strip().Text(), site)
	w.markModified(lhs)
}

// dispatchModified fires each check's Modified handler for a written name.
func (w *Walk) dispatchModified(name string, write Expr) {
	if name == "" {
		return
	}
	for id, h := range w.States.handlers {
		if h.Modified == nil {
			continue
		}
		if s, ok := w.States.Get(id, name); ok {
			h.Modified(w, name, s, write)
		}
	}
}

func (w *Walk) markModified(lhs Expr) {
	lhs = lhs.Strip()
	if lhs.Kind() == KindIdent {
		w.modified[lhs.Text()] = true
	}
}

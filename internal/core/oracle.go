package core

// Comparison is a proven ordering between two expressions. Unsigned variants
// from the source comparison engine are folded into the signed tags; the
// consumers only branch on the relation itself.
type Comparison int

const (
	CompUnknown Comparison = iota
	CompImpossible
	CompLT
	CompLTE
	CompEQ
	CompNE
	CompGTE
	CompGT
)

func (c Comparison) String() string {
	switch c {
	case CompImpossible:
		return "impossible"
	case CompLT:
		return "<"
	case CompLTE:
		return "<="
	case CompEQ:
		return "=="
	case CompNE:
		return "!="
	case CompGTE:
		return ">="
	case CompGT:
		return ">"
	}
	return "unknown"
}

// Flip mirrors the relation when the operands are swapped.
func (c Comparison) Flip() Comparison {
	switch c {
	case CompLT:
		return CompGT
	case CompLTE:
		return CompGTE
	case CompGTE:
		return CompLTE
	case CompGT:
		return CompLT
	}
	return c
}

// Negate inverts the relation for else-edges.
func (c Comparison) Negate() Comparison {
	switch c {
	case CompLT:
		return CompGTE
	case CompLTE:
		return CompGT
	case CompGTE:
		return CompLT
	case CompGT:
		return CompLTE
	case CompEQ:
		return CompNE
	case CompNE:
		return CompEQ
	}
	return CompUnknown
}

// Oracle is the numeric value and comparison inference consumed by the size
// tracking. Every query may fail; failure means "no proof", never an error.
type Oracle interface {
	// ImpliedValue folds constants including sizeof and assigned-constant
	// chains.
	ImpliedValue(e Expr) (int64, bool)
	// Value folds only the expression itself (literals, sizeof, arithmetic).
	Value(e Expr) (int64, bool)
	// AbsoluteMax is the proven maximum value of an expression.
	AbsoluteMax(e Expr) (int64, bool)
	// Compare returns the proven ordering between two expressions.
	Compare(a, b Expr) Comparison
	// PossiblyEqual reports whether equality is provable or not excluded by
	// known orderings; complete ignorance counts as "no".
	PossiblyEqual(a, b Expr) bool
	// EqualExprs returns every expression currently proven equal to e,
	// excluding e itself.
	EqualExprs(e Expr) []Expr
}

type guardEntry struct {
	cond    Expr
	negated bool
}

// ScopeOracle is a structural oracle over one function walk: literal and
// sizeof folding through the TypeTable, a guard stack maintained by the
// walker for conditional scopes, and copy-assignment equivalences retired
// when either side is rewritten.
type ScopeOracle struct {
	types  *TypeTable
	fn     string
	guards []guardEntry
	// canonical name -> last assigned rhs
	assigns map[string]Expr
	// canonical name -> exprs proven equal via plain copies
	equivs map[string][]Expr
}

func NewScopeOracle(types *TypeTable, fn string) *ScopeOracle {
	return &ScopeOracle{
		types:   types,
		fn:      fn,
		assigns: make(map[string]Expr),
		equivs:  make(map[string][]Expr),
	}
}

// PushGuard enters a conditional scope; negated marks the else edge.
func (o *ScopeOracle) PushGuard(cond Expr, negated bool) {
	o.guards = append(o.guards, guardEntry{cond: cond, negated: negated})
}

// PopGuard leaves the innermost conditional scope.
func (o *ScopeOracle) PopGuard() {
	if len(o.guards) > 0 {
		o.guards = o.guards[:len(o.guards)-1]
	}
}

// RecordAssign tracks "lhs = rhs" for assigned-expression chains and
// copy equivalences.
func (o *ScopeOracle) RecordAssign(lhs, rhs Expr) {
	name := lhs.Strip().Text()
	if name == "" {
		return
	}
	o.RetireName(name)
	o.assigns[name] = rhs
	r := rhs.Strip()
	if r.Kind() == KindIdent || r.Kind() == KindField {
		o.equivs[name] = append(o.equivs[name], r)
		o.equivs[r.Text()] = append(o.equivs[r.Text()], lhs.Strip())
	}
}

// RetireName drops every recorded fact that mentions a freshly written name.
func (o *ScopeOracle) RetireName(name string) {
	delete(o.assigns, name)
	for partner, list := range o.equivs {
		kept := list[:0]
		for _, e := range list {
			if e.Text() != name {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(o.equivs, partner)
		} else {
			o.equivs[partner] = kept
		}
	}
	delete(o.equivs, name)

	kept := o.guards[:0]
	for _, g := range o.guards {
		if !exprMentions(g.cond, name) {
			kept = append(kept, g)
		}
	}
	o.guards = kept
}

func exprMentions(e Expr, name string) bool {
	if e.Node == nil {
		return e.synth == name
	}
	found := false
	var walk func(n Expr)
	walk = func(n Expr) {
		if found || n.Node == nil {
			return
		}
		if n.Kind() == KindIdent && n.Text() == name {
			found = true
			return
		}
		for i := 0; i < int(n.Node.NamedChildCount()); i++ {
			walk(Expr{Node: n.Node.NamedChild(i), Src: n.Src})
		}
	}
	walk(e)
	return found
}

// AssignedExpr resolves a name through the recorded assignment chain.
func (o *ScopeOracle) AssignedExpr(e Expr) (Expr, bool) {
	cur := e.Strip()
	var last Expr
	ok := false
	for depth := 0; depth < 8; depth++ {
		next, found := o.assigns[cur.Text()]
		if !found {
			break
		}
		last = next
		ok = true
		cur = next.Strip()
		if cur.Kind() != KindIdent {
			break
		}
	}
	return last, ok
}

// Value folds the expression without flow information.
func (o *ScopeOracle) Value(e Expr) (int64, bool) {
	return o.fold(e, false, 0)
}

// ImpliedValue folds with assigned-constant chains.
func (o *ScopeOracle) ImpliedValue(e Expr) (int64, bool) {
	return o.fold(e, true, 0)
}

func (o *ScopeOracle) fold(e Expr, flow bool, depth int) (int64, bool) {
	if depth > 8 || !e.Valid() {
		return 0, false
	}
	e = e.Strip()
	switch e.Kind() {
	case KindNumber:
		return e.IntValue()
	case KindChar:
		return 0, false
	case KindSizeof:
		return o.foldSizeof(e)
	case KindUnary:
		if e.Operator() == "-" {
			if v, ok := o.fold(e.UnaryOperand(), flow, depth+1); ok {
				return -v, true
			}
		}
		return 0, false
	case KindBinary:
		l, okL := o.fold(e.Left(), flow, depth+1)
		r, okR := o.fold(e.Right(), flow, depth+1)
		if !okL || !okR {
			return 0, false
		}
		switch e.Operator() {
		case "+":
			return l + r, true
		case "-":
			return l - r, true
		case "*":
			return l * r, true
		case "/":
			if r == 0 {
				return 0, false
			}
			return l / r, true
		case "<<":
			if r < 0 || r > 62 {
				return 0, false
			}
			return l << uint(r), true
		}
		return 0, false
	case KindIdent:
		if !flow {
			return 0, false
		}
		if rhs, ok := o.assigns[e.Text()]; ok {
			return o.fold(rhs, flow, depth+1)
		}
	}
	return 0, false
}

func (o *ScopeOracle) foldSizeof(e Expr) (int64, bool) {
	if t, ok := e.SizeofTypeText(); ok {
		if sz := o.types.SizeOfType(t); sz > 0 {
			return int64(sz), true
		}
		// sizeof(char *) and friends
		if len(t) > 0 && t[len(t)-1] == '*' {
			return 8, true
		}
		return 0, false
	}
	operand, ok := e.SizeofOperand()
	if !ok {
		return 0, false
	}
	operand = operand.Strip()
	if operand.Kind() == KindUnary && operand.Operator() == "*" {
		if sz := o.types.ElementSize(o.fn, operand.UnaryOperand()); sz > 0 {
			return int64(sz), true
		}
		return 0, false
	}
	if operand.Kind() == KindIdent {
		vi := o.types.VarType(o.fn, operand.Text())
		if vi == nil {
			return 0, false
		}
		if vi.PointerDepth > 0 {
			return 8, true
		}
		if sz := o.types.SizeOfType(vi.BaseType); sz > 0 {
			return int64(sz), true
		}
	}
	return 0, false
}

// condRelation decodes a guard condition into (left, relation, right).
func condRelation(cond Expr) (Expr, Comparison, Expr, bool) {
	cond = cond.Strip()
	if cond.Kind() != KindBinary {
		return Expr{}, CompUnknown, Expr{}, false
	}
	var rel Comparison
	switch cond.Operator() {
	case "<":
		rel = CompLT
	case "<=":
		rel = CompLTE
	case "==":
		rel = CompEQ
	case "!=":
		rel = CompNE
	case ">=":
		rel = CompGTE
	case ">":
		rel = CompGT
	default:
		return Expr{}, CompUnknown, Expr{}, false
	}
	return cond.Left().Strip(), rel, cond.Right().Strip(), true
}

// Compare returns the proven ordering of a relative to b.
func (o *ScopeOracle) Compare(a, b Expr) Comparison {
	if !a.Valid() || !b.Valid() {
		return CompUnknown
	}
	a = a.Strip()
	b = b.Strip()
	if a.Equiv(b) {
		return CompEQ
	}

	va, okA := o.fold(a, true, 0)
	vb, okB := o.fold(b, true, 0)
	if okA && okB {
		switch {
		case va < vb:
			return CompLT
		case va > vb:
			return CompGT
		default:
			return CompEQ
		}
	}

	aNames := o.namesEqualTo(a)
	bNames := o.namesEqualTo(b)
	for i := len(o.guards) - 1; i >= 0; i-- {
		l, rel, r, ok := condRelation(o.guards[i].cond)
		if !ok {
			continue
		}
		if o.guards[i].negated {
			rel = rel.Negate()
		}
		if aNames[l.Text()] && bNames[r.Text()] {
			return rel
		}
		if aNames[r.Text()] && bNames[l.Text()] {
			return rel.Flip()
		}
	}

	if aNames[b.Text()] {
		return CompEQ
	}
	return CompUnknown
}

// namesEqualTo is the canonical-text closure of copy equivalences around e.
func (o *ScopeOracle) namesEqualTo(e Expr) map[string]bool {
	out := map[string]bool{e.Text(): true}
	queue := []string{e.Text()}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, eq := range o.equivs[cur] {
			if !out[eq.Text()] {
				out[eq.Text()] = true
				queue = append(queue, eq.Text())
			}
		}
	}
	return out
}

// AbsoluteMax returns the proven maximum of e: its constant value, or the
// bound implied by an enclosing guard.
func (o *ScopeOracle) AbsoluteMax(e Expr) (int64, bool) {
	if v, ok := o.fold(e, true, 0); ok {
		return v, true
	}
	e = e.Strip()
	names := o.namesEqualTo(e)
	for i := len(o.guards) - 1; i >= 0; i-- {
		l, rel, r, ok := condRelation(o.guards[i].cond)
		if !ok {
			continue
		}
		if o.guards[i].negated {
			rel = rel.Negate()
		}
		var bound Expr
		switch {
		case names[l.Text()]:
			bound = r
		case names[r.Text()]:
			bound = l
			rel = rel.Flip()
		default:
			continue
		}
		v, okV := o.fold(bound, true, 0)
		if !okV {
			continue
		}
		switch rel {
		case CompLT:
			return v - 1, true
		case CompLTE, CompEQ:
			return v, true
		}
	}
	return 0, false
}

// PossiblyEqual mirrors the source contract: proven equality or a
// non-strict ordering counts, strict orderings exclude, and no information
// at all is treated as "no".
func (o *ScopeOracle) PossiblyEqual(a, b Expr) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}
	if a.Strip().Equiv(b.Strip()) {
		return true
	}
	switch o.Compare(a, b) {
	case CompEQ, CompLTE, CompGTE:
		return true
	}
	return false
}

// EqualExprs returns expressions proven equal to e through copies or
// equality guards, excluding e itself.
func (o *ScopeOracle) EqualExprs(e Expr) []Expr {
	e = e.Strip()
	seen := map[string]bool{e.Text(): true}
	var out []Expr

	add := func(x Expr) {
		if x.Valid() && !seen[x.Text()] {
			seen[x.Text()] = true
			out = append(out, x)
		}
	}
	for _, eq := range o.equivs[e.Text()] {
		add(eq)
	}
	for i := len(o.guards) - 1; i >= 0; i-- {
		l, rel, r, ok := condRelation(o.guards[i].cond)
		if !ok {
			continue
		}
		if o.guards[i].negated {
			rel = rel.Negate()
		}
		if rel != CompEQ {
			continue
		}
		if l.Text() == e.Text() {
			add(r)
		} else if r.Text() == e.Text() {
			add(l)
		}
	}
	return out
}

var _ Oracle = (*ScopeOracle)(nil)

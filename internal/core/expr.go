package core

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ExprKind classifies expression nodes into a closed set so recognizers can
// pattern-match instead of comparing raw tree-sitter type strings everywhere.
type ExprKind int

const (
	KindUnknown ExprKind = iota
	KindIdent
	KindNumber
	KindString
	KindChar
	KindUnary // unary_expression and pointer_expression (* and &)
	KindBinary
	KindAssign
	KindUpdate // ++ / --
	KindCall
	KindSubscript
	KindField
	KindParen
	KindCast
	KindSizeof
	KindComma
	KindConditional
)

// Expr is a thin wrapper over a tree-sitter node plus the source it was
// parsed from. The zero value is invalid. Synthetic expressions (used for
// buffer identities that have no single AST node, like "ptr->member") carry
// only canonical text.
type Expr struct {
	Node  *sitter.Node
	Src   []byte
	synth string
}

// WrapExpr wraps a node from the given source buffer.
func WrapExpr(n *sitter.Node, src []byte) Expr {
	return Expr{Node: n, Src: src}
}

// SyntheticExpr builds a node-less expression identified only by its
// canonical text.
func SyntheticExpr(text string) Expr {
	return Expr{synth: text}
}

func (e Expr) Valid() bool {
	return e.Node != nil || e.synth != ""
}

func (e Expr) IsSynthetic() bool {
	return e.Node == nil && e.synth != ""
}

// Kind maps the node type onto the closed ExprKind set.
func (e Expr) Kind() ExprKind {
	if e.Node == nil {
		if e.synth != "" {
			return KindIdent
		}
		return KindUnknown
	}
	switch e.Node.Type() {
	case "identifier", "field_identifier":
		return KindIdent
	case "number_literal":
		return KindNumber
	case "string_literal", "concatenated_string":
		return KindString
	case "char_literal":
		return KindChar
	case "unary_expression", "pointer_expression":
		return KindUnary
	case "binary_expression":
		return KindBinary
	case "assignment_expression":
		return KindAssign
	case "update_expression":
		return KindUpdate
	case "call_expression":
		return KindCall
	case "subscript_expression":
		return KindSubscript
	case "field_expression":
		return KindField
	case "parenthesized_expression":
		return KindParen
	case "cast_expression":
		return KindCast
	case "sizeof_expression":
		return KindSizeof
	case "comma_expression":
		return KindComma
	case "conditional_expression":
		return KindConditional
	}
	return KindUnknown
}

// Strip removes parenthesization and cast wrappers, mirroring what the C
// front ends tend to introduce around allocator macro expansions.
func (e Expr) Strip() Expr {
	cur := e
	for cur.Node != nil {
		switch cur.Kind() {
		case KindParen:
			inner := cur.Node.NamedChild(0)
			if inner == nil {
				return cur
			}
			cur = Expr{Node: inner, Src: cur.Src}
		case KindCast:
			val := cur.Node.ChildByFieldName("value")
			if val == nil {
				return cur
			}
			cur = Expr{Node: val, Src: cur.Src}
		default:
			return cur
		}
	}
	return cur
}

// Text renders the expression in canonical form: token stream joined with a
// space only where two word-like tokens would otherwise fuse. This is the
// identity used for state keys, so "n * sizeof(*p)" and "n*sizeof( *p )"
// compare equal.
func (e Expr) Text() string {
	if e.Node == nil {
		return e.synth
	}
	var sb strings.Builder
	prevWord := false
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.ChildCount() == 0 {
			tok := n.Content(e.Src)
			if tok == "" {
				return
			}
			if prevWord && isWordStart(tok[0]) {
				sb.WriteByte(' ')
			}
			sb.WriteString(tok)
			prevWord = isWordEnd(tok[len(tok)-1])
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(e.Node)
	return sb.String()
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isWordEnd(c byte) bool { return isWordStart(c) }

// Equiv reports structural equivalence up to canonicalization.
func (e Expr) Equiv(o Expr) bool {
	if !e.Valid() || !o.Valid() {
		return false
	}
	return e.Text() == o.Text()
}

// Operator returns the operator token of a binary, assignment, unary or
// update expression.
func (e Expr) Operator() string {
	if e.Node == nil {
		return ""
	}
	op := e.Node.ChildByFieldName("operator")
	if op == nil {
		return ""
	}
	return op.Content(e.Src)
}

// Left and Right access binary/assignment operands.
func (e Expr) Left() Expr  { return e.fieldExpr("left") }
func (e Expr) Right() Expr { return e.fieldExpr("right") }

// UnaryOperand returns the argument of a unary or pointer expression.
func (e Expr) UnaryOperand() Expr { return e.fieldExpr("argument") }

func (e Expr) fieldExpr(field string) Expr {
	if e.Node == nil {
		return Expr{}
	}
	n := e.Node.ChildByFieldName(field)
	if n == nil {
		return Expr{}
	}
	return Expr{Node: n, Src: e.Src}
}

// Callee returns the called function name for direct calls, "" otherwise.
func (e Expr) Callee() string {
	if e.Kind() != KindCall {
		return ""
	}
	fn := e.Node.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return ""
	}
	return fn.Content(e.Src)
}

// CallArgs returns the argument expressions of a call, in order.
func (e Expr) CallArgs() []Expr {
	if e.Kind() != KindCall {
		return nil
	}
	args := e.Node.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	var out []Expr
	for i := 0; i < int(args.NamedChildCount()); i++ {
		c := args.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, Expr{Node: c, Src: e.Src})
	}
	return out
}

// CallArg returns the i-th argument or an invalid Expr.
func (e Expr) CallArg(i int) Expr {
	args := e.CallArgs()
	if i < 0 || i >= len(args) {
		return Expr{}
	}
	return args[i]
}

// SubscriptBase and SubscriptIndex access array[offset] parts.
func (e Expr) SubscriptBase() Expr  { return e.fieldExpr("argument") }
func (e Expr) SubscriptIndex() Expr { return e.fieldExpr("index") }

// FieldBase returns the receiver of a field expression, FieldName the member.
func (e Expr) FieldBase() Expr { return e.fieldExpr("argument") }

func (e Expr) FieldName() string {
	f := e.fieldExpr("field")
	if !f.Valid() {
		return ""
	}
	return f.Text()
}

// FieldOperator is "." or "->".
func (e Expr) FieldOperator() string {
	if e.Node == nil {
		return ""
	}
	for i := 0; i < int(e.Node.ChildCount()); i++ {
		c := e.Node.Child(i)
		if t := c.Type(); t == "." || t == "->" {
			return t
		}
	}
	return ""
}

// UpdateOperand returns the ++/-- operand.
func (e Expr) UpdateOperand() Expr { return e.fieldExpr("argument") }

// UpdateIsPrefix reports whether the operator precedes the operand (++x).
func (e Expr) UpdateIsPrefix() bool {
	if e.Kind() != KindUpdate || e.Node.ChildCount() == 0 {
		return false
	}
	t := e.Node.Child(0).Type()
	return t == "++" || t == "--"
}

// SizeofOperand returns the expression operand of sizeof(expr), if any.
func (e Expr) SizeofOperand() (Expr, bool) {
	if e.Kind() != KindSizeof {
		return Expr{}, false
	}
	v := e.Node.ChildByFieldName("value")
	if v == nil {
		return Expr{}, false
	}
	return Expr{Node: v, Src: e.Src}, true
}

// SizeofTypeText returns the type text of sizeof(type), if any.
func (e Expr) SizeofTypeText() (string, bool) {
	if e.Kind() != KindSizeof {
		return "", false
	}
	t := e.Node.ChildByFieldName("type")
	if t == nil {
		return "", false
	}
	return Expr{Node: t, Src: e.Src}.Text(), true
}

// IntValue parses a number literal (decimal, hex, octal; integer suffixes
// tolerated).
func (e Expr) IntValue() (int64, bool) {
	if e.Kind() != KindNumber {
		return 0, false
	}
	s := strings.TrimRight(e.Text(), "uUlL")
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParentExpr returns the nearest enclosing expression node, skipping
// parenthesization.
func (e Expr) ParentExpr() Expr {
	if e.Node == nil {
		return Expr{}
	}
	p := e.Node.Parent()
	for p != nil && p.Type() == "parenthesized_expression" {
		p = p.Parent()
	}
	if p == nil {
		return Expr{}
	}
	pe := Expr{Node: p, Src: e.Src}
	if pe.Kind() == KindUnknown {
		return Expr{}
	}
	return pe
}

// EnclosingStatement walks up to the statement containing this expression.
func (e Expr) EnclosingStatement() *sitter.Node {
	if e.Node == nil {
		return nil
	}
	p := e.Node.Parent()
	for p != nil {
		switch p.Type() {
		case "expression_statement", "declaration", "return_statement",
			"if_statement", "while_statement", "for_statement", "do_statement",
			"switch_statement", "compound_statement":
			return p
		}
		p = p.Parent()
	}
	return nil
}

// GettingAddress reports whether a subscript expression is only used to take
// an address (&array[n] is a legal one-past-the-end idiom).
func (e Expr) GettingAddress() bool {
	if e.Node == nil {
		return false
	}
	p := e.Node.Parent()
	for p != nil && p.Type() == "parenthesized_expression" {
		p = p.Parent()
	}
	if p == nil || p.Type() != "pointer_expression" {
		return false
	}
	pe := Expr{Node: p, Src: e.Src}
	return pe.Operator() == "&"
}

// Line and Column are 1-based positions for diagnostics.
func (e Expr) Line() int {
	if e.Node == nil {
		return 0
	}
	return int(e.Node.StartPoint().Row) + 1
}

func (e Expr) Column() int {
	if e.Node == nil {
		return 0
	}
	return int(e.Node.StartPoint().Column) + 1
}

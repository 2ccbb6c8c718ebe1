package core

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// StructMember describes one member of a struct definition, in declaration
// order. A trailing array member with no size (or size 0) is the kernel
// flexible-array idiom.
type StructMember struct {
	Name     string
	TypeText string
	Pointer  bool
	IsArray  bool
	ArrayLen int // -1 when not an array or size unknown
	Flexible bool
}

// StructInfo is a struct definition collected from the unit.
type StructInfo struct {
	Name    string
	Members []StructMember
}

// LastMember returns the final declared member, if any.
func (s *StructInfo) LastMember() (StructMember, bool) {
	if len(s.Members) == 0 {
		return StructMember{}, false
	}
	return s.Members[len(s.Members)-1], true
}

// VarInfo is the declared shape of a variable: base type, pointer depth,
// array length and storage class.
type VarInfo struct {
	Name         string
	BaseType     string
	PointerDepth int
	IsArray      bool
	ArrayLen     int // -1 unknown/none
	Static       bool
	Global       bool
}

// TypeTable holds per-unit declaration facts: struct layouts, global and
// per-function variable shapes. It answers the symbol/type queries the size
// tracking needs (pointee element size, declared array length, normalized
// limiter identities).
type TypeTable struct {
	structs map[string]*StructInfo
	globals map[string]*VarInfo
	locals  map[string]map[string]*VarInfo // function -> var -> info
}

// BuildTypeTable collects declarations from the whole unit.
func BuildTypeTable(ctx *AnalysisContext) *TypeTable {
	t := &TypeTable{
		structs: make(map[string]*StructInfo),
		globals: make(map[string]*VarInfo),
		locals:  make(map[string]map[string]*VarInfo),
	}
	root := ctx.Unit.Root
	src := ctx.Unit.Source

	var collectStructs func(n *sitter.Node)
	collectStructs = func(n *sitter.Node) {
		if n.Type() == "struct_specifier" {
			if si := parseStruct(n, src); si != nil {
				t.structs[si.Name] = si
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			collectStructs(n.Child(i))
		}
	}
	collectStructs(root)

	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "declaration":
			for _, vi := range parseDeclaration(n, src) {
				vi.Global = true
				t.globals[vi.Name] = vi
			}
		case "function_definition":
			name := functionNameOf(n, src)
			if name == "" {
				continue
			}
			vars := make(map[string]*VarInfo)
			for _, vi := range parseParameters(n, src) {
				vars[vi.Name] = vi
			}
			if body := n.ChildByFieldName("body"); body != nil {
				collectLocals(body, src, vars)
			}
			t.locals[name] = vars
		}
	}
	return t
}

func collectLocals(n *sitter.Node, src []byte, out map[string]*VarInfo) {
	if n.Type() == "declaration" {
		for _, vi := range parseDeclaration(n, src) {
			if _, exists := out[vi.Name]; !exists {
				out[vi.Name] = vi
			}
		}
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		collectLocals(n.Child(i), src, out)
	}
}

func parseStruct(n *sitter.Node, src []byte) *StructInfo {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return nil
	}
	si := &StructInfo{Name: nameNode.Content(src)}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		field := body.NamedChild(i)
		if field.Type() != "field_declaration" {
			continue
		}
		typeNode := field.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		typeText := WrapExpr(typeNode, src).Text()
		for j := 0; j < int(field.NamedChildCount()); j++ {
			decl := field.NamedChild(j)
			if decl.Equal(typeNode) {
				continue
			}
			if m := parseFieldDeclarator(decl, src, typeText); m != nil {
				si.Members = append(si.Members, *m)
			}
		}
	}
	return si
}

func parseFieldDeclarator(decl *sitter.Node, src []byte, typeText string) *StructMember {
	m := &StructMember{TypeText: typeText, ArrayLen: -1}
	cur := decl
	for cur != nil {
		switch cur.Type() {
		case "field_identifier", "identifier":
			m.Name = cur.Content(src)
			return m
		case "pointer_declarator":
			m.Pointer = true
			cur = cur.ChildByFieldName("declarator")
		case "array_declarator":
			m.IsArray = true
			if size := cur.ChildByFieldName("size"); size != nil {
				if v, ok := WrapExpr(size, src).IntValue(); ok {
					m.ArrayLen = int(v)
					m.Flexible = v == 0
				}
			} else {
				m.Flexible = true
				m.ArrayLen = 0
			}
			cur = cur.ChildByFieldName("declarator")
		default:
			return nil
		}
	}
	return nil
}

// parseDeclaration extracts variable shapes from one declaration statement.
func parseDeclaration(n *sitter.Node, src []byte) []*VarInfo {
	typeNode := n.ChildByFieldName("type")
	if typeNode == nil {
		return nil
	}
	baseType := WrapExpr(typeNode, src).Text()
	static := false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "storage_class_specifier" {
			switch c.Content(src) {
			case "static":
				static = true
			case "typedef":
				return nil
			}
		}
	}

	var out []*VarInfo
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Equal(typeNode) || decl.Type() == "storage_class_specifier" ||
			decl.Type() == "type_qualifier" || decl.Type() == "comment" {
			continue
		}
		target := decl
		if decl.Type() == "init_declarator" {
			target = decl.ChildByFieldName("declarator")
		}
		if vi := parseVarDeclarator(target, src, baseType); vi != nil {
			vi.Static = static
			out = append(out, vi)
		}
	}
	return out
}

func parseVarDeclarator(decl *sitter.Node, src []byte, baseType string) *VarInfo {
	vi := &VarInfo{BaseType: baseType, ArrayLen: -1}
	cur := decl
	for cur != nil {
		switch cur.Type() {
		case "identifier":
			vi.Name = cur.Content(src)
			return vi
		case "pointer_declarator":
			vi.PointerDepth++
			cur = cur.ChildByFieldName("declarator")
		case "array_declarator":
			vi.IsArray = true
			if size := cur.ChildByFieldName("size"); size != nil {
				if v, ok := WrapExpr(size, src).IntValue(); ok {
					vi.ArrayLen = int(v)
				}
			}
			cur = cur.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			if cur.NamedChildCount() > 0 {
				cur = cur.NamedChild(0)
			} else {
				return nil
			}
		default:
			return nil
		}
	}
	return nil
}

func parseParameters(funcDef *sitter.Node, src []byte) []*VarInfo {
	fd := findFunctionDeclaratorNode(funcDef.ChildByFieldName("declarator"))
	if fd == nil {
		return nil
	}
	params := fd.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}
	var out []*VarInfo
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		typeNode := p.ChildByFieldName("type")
		decl := p.ChildByFieldName("declarator")
		if typeNode == nil || decl == nil {
			continue
		}
		if vi := parseVarDeclarator(decl, src, WrapExpr(typeNode, src).Text()); vi != nil {
			out = append(out, vi)
		}
	}
	return out
}

// Struct looks up a struct definition by bare name ("foo", not "struct foo").
func (t *TypeTable) Struct(name string) *StructInfo {
	name = strings.TrimPrefix(name, "struct ")
	return t.structs[name]
}

// VarType resolves a variable name in function scope, falling back to
// globals.
func (t *TypeTable) VarType(fn, name string) *VarInfo {
	if vars, ok := t.locals[fn]; ok {
		if vi, ok := vars[name]; ok {
			return vi
		}
	}
	return t.globals[name]
}

// SizeOfType maps a rendered type to its byte size; 0 when unknown. Struct
// sizes are the packed sum of member sizes, which is enough for the sizeof
// matching the recognizers do.
func (t *TypeTable) SizeOfType(typeText string) int {
	return t.sizeOfType(typeText, 0)
}

func (t *TypeTable) sizeOfType(typeText string, depth int) int {
	if depth > 4 {
		return 0
	}
	s := strings.TrimSpace(typeText)
	for _, q := range []string{"const ", "volatile "} {
		s = strings.TrimPrefix(s, q)
	}
	if strings.HasPrefix(s, "struct ") {
		si := t.Struct(s)
		if si == nil {
			return 0
		}
		total := 0
		for _, m := range si.Members {
			total += t.memberSize(m, depth+1)
		}
		return total
	}
	switch s {
	case "unsigned", "signed":
		return 4
	}
	s = strings.TrimPrefix(s, "unsigned ")
	s = strings.TrimPrefix(s, "signed ")
	switch s {
	case "char", "u8", "s8", "bool", "__u8", "__s8", "uint8_t", "int8_t":
		return 1
	case "short", "short int", "u16", "s16", "__u16", "__s16", "uint16_t", "int16_t":
		return 2
	case "int", "float", "u32", "s32", "__u32", "__s32", "uint32_t", "int32_t":
		return 4
	case "long", "long int", "long long", "long long int", "double", "size_t",
		"ssize_t", "u64", "s64", "__u64", "__s64", "uint64_t", "int64_t",
		"intptr_t", "uintptr_t", "ptrdiff_t":
		return 8
	case "void":
		return 1
	}
	return 0
}

func (t *TypeTable) memberSize(m StructMember, depth int) int {
	if m.Pointer {
		return 8
	}
	elem := t.sizeOfType(m.TypeText, depth)
	if m.IsArray {
		if m.ArrayLen <= 0 {
			return 0
		}
		return elem * m.ArrayLen
	}
	return elem
}

// ElementSize is the pointee/element byte size of a pointer or array valued
// expression, 0 when the shape is not known.
func (t *TypeTable) ElementSize(fn string, e Expr) int {
	e = e.Strip()
	switch e.Kind() {
	case KindIdent:
		vi := t.VarType(fn, e.Text())
		if vi == nil {
			return 0
		}
		if vi.PointerDepth > 1 {
			return 8
		}
		if vi.PointerDepth == 1 || vi.IsArray {
			return t.SizeOfType(vi.BaseType)
		}
		return 0
	case KindField:
		m, ok := t.resolveMember(fn, e)
		if !ok {
			return 0
		}
		if m.Pointer || m.IsArray {
			return t.SizeOfType(m.TypeText)
		}
		return 0
	case KindUnary:
		if e.Operator() == "*" {
			inner := e.UnaryOperand().Strip()
			if inner.Kind() == KindIdent {
				vi := t.VarType(fn, inner.Text())
				if vi != nil && vi.PointerDepth > 1 {
					return t.SizeOfType(vi.BaseType)
				}
			}
		}
	}
	return 0
}

// IsPointer reports whether an expression denotes a pointer or array value.
func (t *TypeTable) IsPointer(fn string, e Expr) bool {
	e = e.Strip()
	switch e.Kind() {
	case KindIdent:
		vi := t.VarType(fn, e.Text())
		return vi != nil && (vi.PointerDepth > 0 || vi.IsArray)
	case KindField:
		m, ok := t.resolveMember(fn, e)
		return ok && (m.Pointer || m.IsArray)
	case KindString:
		return true
	case KindUnary:
		return e.Operator() == "&"
	case KindBinary:
		// pointer arithmetic keeps pointerness of the left side
		if e.Operator() == "+" || e.Operator() == "-" {
			return t.IsPointer(fn, e.Left())
		}
	}
	return false
}

// DeclaredArrayLen returns the compile-time length of a declared array
// expression, 0 when not declared with a constant length.
func (t *TypeTable) DeclaredArrayLen(fn string, e Expr) int {
	e = e.Strip()
	switch e.Kind() {
	case KindIdent:
		vi := t.VarType(fn, e.Text())
		if vi != nil && vi.IsArray && vi.ArrayLen > 0 {
			return vi.ArrayLen
		}
	case KindField:
		m, ok := t.resolveMember(fn, e)
		if ok && m.IsArray && m.ArrayLen > 0 {
			return m.ArrayLen
		}
	}
	return 0
}

// resolveMember finds the struct member a field expression denotes.
func (t *TypeTable) resolveMember(fn string, e Expr) (StructMember, bool) {
	base := e.FieldBase().Strip()
	if base.Kind() != KindIdent {
		return StructMember{}, false
	}
	vi := t.VarType(fn, base.Text())
	if vi == nil {
		return StructMember{}, false
	}
	si := t.Struct(vi.BaseType)
	if si == nil {
		return StructMember{}, false
	}
	for _, m := range si.Members {
		if m.Name == e.FieldName() {
			return m, true
		}
	}
	return StructMember{}, false
}

// FlexibleMember returns the trailing zero-length array member of the struct
// a pointer expression points to.
func (t *TypeTable) FlexibleMember(fn string, ptr Expr) (structName, member string, ok bool) {
	ptr = ptr.Strip()
	if ptr.Kind() != KindIdent {
		return "", "", false
	}
	vi := t.VarType(fn, ptr.Text())
	if vi == nil || vi.PointerDepth != 1 {
		return "", "", false
	}
	si := t.Struct(vi.BaseType)
	if si == nil {
		return "", "", false
	}
	last, ok := si.LastMember()
	if !ok || !last.IsArray || !last.Flexible {
		return "", "", false
	}
	return si.Name, last.Name, true
}

// DataInfoName normalizes an expression to the persisted limiter identity:
// "(struct S)->member" for a member reached through a struct pointer,
// "static name" / "global name" for top-level variables, "" otherwise.
func (t *TypeTable) DataInfoName(fn string, e Expr) string {
	e = e.Strip()
	switch e.Kind() {
	case KindField:
		if e.FieldOperator() != "->" {
			return ""
		}
		base := e.FieldBase().Strip()
		if base.Kind() != KindIdent {
			return ""
		}
		vi := t.VarType(fn, base.Text())
		if vi == nil || vi.PointerDepth != 1 {
			return ""
		}
		si := t.Struct(vi.BaseType)
		if si == nil {
			return ""
		}
		return "(struct " + si.Name + ")->" + e.FieldName()
	case KindIdent:
		name := e.Text()
		vi := t.globals[name]
		if vi == nil {
			return ""
		}
		if vi.Static {
			return "static " + name
		}
		return "global " + name
	}
	return ""
}

package core

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Param is one ordered formal parameter of a function definition. NameNode
// is the declarator identifier, usable as the parameter's expression.
type Param struct {
	Name     string
	TypeText string
	Pointer  bool
	NameNode *sitter.Node
}

// FunctionInfo indexes one function definition.
type FunctionInfo struct {
	Name   string
	Def    *sitter.Node
	Body   *sitter.Node
	Params []Param
	Static bool
}

// FunctionIndex maps function names to their definitions in source order.
type FunctionIndex struct {
	funcs map[string]*FunctionInfo
	order []string
}

// BuildFunctionIndex walks the unit's top level and records every function
// definition with its ordered parameters and storage class.
func BuildFunctionIndex(ctx *AnalysisContext) *FunctionIndex {
	x := &FunctionIndex{funcs: make(map[string]*FunctionInfo)}
	root := ctx.Unit.Root
	src := ctx.Unit.Source

	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() != "function_definition" {
			continue
		}
		name := functionNameOf(n, src)
		if name == "" {
			continue
		}
		fi := &FunctionInfo{
			Name: name,
			Def:  n,
			Body: n.ChildByFieldName("body"),
		}
		for j := 0; j < int(n.ChildCount()); j++ {
			c := n.Child(j)
			if c.Type() == "storage_class_specifier" && c.Content(src) == "static" {
				fi.Static = true
			}
		}
		fi.Params = extractParams(n, src)
		if _, dup := x.funcs[name]; !dup {
			x.order = append(x.order, name)
		}
		x.funcs[name] = fi
	}
	return x
}

// Lookup returns the definition for a name, nil when unknown.
func (x *FunctionIndex) Lookup(name string) *FunctionInfo {
	return x.funcs[name]
}

// All returns definitions in source order.
func (x *FunctionIndex) All() []*FunctionInfo {
	out := make([]*FunctionInfo, 0, len(x.order))
	for _, name := range x.order {
		out = append(out, x.funcs[name])
	}
	return out
}

// Param returns the i-th parameter of a function, if both exist.
func (x *FunctionIndex) Param(fn string, i int) (Param, bool) {
	fi := x.funcs[fn]
	if fi == nil || i < 0 || i >= len(fi.Params) {
		return Param{}, false
	}
	return fi.Params[i], true
}

func functionNameOf(funcDef *sitter.Node, src []byte) string {
	fd := findFunctionDeclaratorNode(funcDef.ChildByFieldName("declarator"))
	if fd == nil {
		return ""
	}
	id := fd.ChildByFieldName("declarator")
	if id == nil || id.Type() != "identifier" {
		return ""
	}
	return id.Content(src)
}

// findFunctionDeclaratorNode unwraps pointer/parenthesized declarators until
// the function_declarator is found.
func findFunctionDeclaratorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == "function_declarator" {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "function_declarator", "pointer_declarator", "parenthesized_declarator":
			if found := findFunctionDeclaratorNode(child); found != nil {
				return found
			}
		}
	}
	return nil
}

func extractParams(funcDef *sitter.Node, src []byte) []Param {
	fd := findFunctionDeclaratorNode(funcDef.ChildByFieldName("declarator"))
	if fd == nil {
		return nil
	}
	list := fd.ChildByFieldName("parameters")
	if list == nil {
		return nil
	}
	var out []Param
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		typeNode := p.ChildByFieldName("type")
		decl := p.ChildByFieldName("declarator")
		if typeNode == nil || decl == nil {
			continue
		}
		param := Param{TypeText: WrapExpr(typeNode, src).Text()}
		cur := decl
	resolve:
		for cur != nil {
			switch cur.Type() {
			case "identifier":
				param.Name = cur.Content(src)
				param.NameNode = cur
				break resolve
			case "pointer_declarator":
				param.Pointer = true
				cur = cur.ChildByFieldName("declarator")
			case "array_declarator":
				param.Pointer = true
				cur = cur.ChildByFieldName("declarator")
			default:
				break resolve
			}
		}
		if param.Name != "" {
			out = append(out, param)
		}
	}
	return out
}

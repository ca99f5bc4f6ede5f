package program

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// ParseError reports source text that is not syntactically valid.
type ParseError struct {
	Line    int // 1-based
	Column  int // 0-based
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// ParseTree parses src with the JavaScript grammar. The caller owns the
// returned tree and must Close it. Syntax errors do not fail ParseTree;
// use FirstError to locate them.
func ParseTree(ctx context.Context, src []byte) (*sitter.Tree, error) {
	// Parsers are not safe for concurrent use, so each call gets its own.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	return tree, nil
}

// FirstError returns the first ERROR or MISSING node under root in
// document order, or nil when the tree is clean.
func FirstError(root *sitter.Node, src []byte) *ParseError {
	if root == nil || !root.HasError() {
		return nil
	}
	errs := ErrorNodes(root, src)
	if len(errs) == 0 {
		return &ParseError{Line: 1, Column: 0, Message: "syntax error"}
	}
	return errs[0]
}

// ErrorNodes lists every syntax error under root in document order.
// Children of an ERROR node are not reported separately.
func ErrorNodes(root *sitter.Node, src []byte) []*ParseError {
	var out []*ParseError
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil || !n.HasError() && !n.IsMissing() {
			return
		}
		switch {
		case n.IsMissing():
			out = append(out, &ParseError{
				Line:    int(n.StartPoint().Row) + 1,
				Column:  int(n.StartPoint().Column),
				Message: fmt.Sprintf("missing %q", n.Type()),
			})
			return
		case n.Type() == "ERROR":
			out = append(out, &ParseError{
				Line:    int(n.StartPoint().Row) + 1,
				Column:  int(n.StartPoint().Column),
				Message: fmt.Sprintf("unexpected %s", snippet(n.Content(src))),
			})
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out
}

func snippet(s string) string {
	s = Normalize(s)
	if s == "" {
		return "end of input"
	}
	if len(s) > 24 {
		s = s[:24] + "..."
	}
	return fmt.Sprintf("%q", s)
}

// Parse parses JavaScript source into a Program. It fails with a
// *ParseError when the source contains any syntax error.
func Parse(src string) (*Program, error) {
	return ParseContext(context.Background(), src)
}

// ParseContext is Parse with cancellation.
func ParseContext(ctx context.Context, src string) (*Program, error) {
	content := []byte(src)
	tree, err := ParseTree(ctx, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if perr := FirstError(root, content); perr != nil {
		return nil, perr
	}

	p := &Program{Statements: make([]Statement, 0, root.NamedChildCount())}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		p.Statements = append(p.Statements, summarize(root.NamedChild(i), content))
	}
	return p, nil
}

func summarize(n *sitter.Node, src []byte) Statement {
	text := func(n *sitter.Node) string { return n.Content(src) }

	s := Statement{
		Type:   n.Type(),
		Text:   text(n),
		Line:   int(n.StartPoint().Row) + 1,
		Column: int(n.StartPoint().Column),
		ASI:    endsAtImplicitSemicolon(n, src),
	}

	switch s.Type {
	case TypeLexicalDeclaration, TypeVariableDeclaration:
		s.DeclKind = "var"
		if kind := n.ChildByFieldName("kind"); kind != nil {
			s.DeclKind = text(kind)
		} else if n.ChildCount() > 0 {
			s.DeclKind = text(n.Child(0))
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			decl := Declarator{
				Text:   text(d),
				Line:   int(d.StartPoint().Row) + 1,
				Column: int(d.StartPoint().Column),
			}
			if name := d.ChildByFieldName("name"); name != nil {
				decl.Name = text(name)
				decl.Pattern = name.Type() != "identifier"
			}
			if value := d.ChildByFieldName("value"); value != nil {
				decl.Value = text(value)
			}
			s.Declarators = append(s.Declarators, decl)
		}

	case TypeFunctionDeclaration, TypeGeneratorFunction:
		if name := n.ChildByFieldName("name"); name != nil {
			s.Name = text(name)
		}
		if body := n.ChildByFieldName("body"); body != nil {
			fn := &Function{Header: string(src[n.StartByte():body.StartByte()])}
			// Body statements are only reused when the function is rebuilt,
			// so they are stored with their semicolons explicit.
			for i := 0; i < int(body.NamedChildCount()); i++ {
				stmt := body.NamedChild(i)
				out := text(stmt)
				if endsAtImplicitSemicolon(stmt, src) {
					out += ";"
				}
				fn.Body = append(fn.Body, out)
			}
			s.Function = fn
		}

	case TypeClassDeclaration:
		if name := n.ChildByFieldName("name"); name != nil {
			s.Name = text(name)
		}

	case TypeExpressionStatement:
		if n.NamedChildCount() > 0 {
			if expr := n.NamedChild(0); expr.Type() == "call_expression" {
				s.Call = describeCall(expr, src)
			}
		}
	}
	return s
}

// endsAtImplicitSemicolon reports whether n is a statement that automatic
// semicolon insertion closed. Compound statements are judged by the
// statement they end with; blocks, declarations of functions and classes,
// and comments never need a semicolon.
func endsAtImplicitSemicolon(n *sitter.Node, src []byte) bool {
	for n != nil {
		switch n.Type() {
		case "if_statement", "else_clause", "for_statement", "for_in_statement",
			"while_statement", "with_statement", "labeled_statement":
			count := int(n.NamedChildCount())
			if count == 0 {
				return false
			}
			n = n.NamedChild(count - 1)
		case "export_statement":
			if decl := n.ChildByFieldName("declaration"); decl != nil {
				n = decl
				continue
			}
			return !strings.HasSuffix(n.Content(src), ";")
		case TypeExpressionStatement, TypeLexicalDeclaration, TypeVariableDeclaration,
			"return_statement", "throw_statement", "break_statement",
			"continue_statement", "debugger_statement", "do_statement",
			"import_statement":
			return !strings.HasSuffix(n.Content(src), ";")
		default:
			return false
		}
	}
	return false
}

func describeCall(call *sitter.Node, src []byte) *Call {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return &Call{Kind: CalleeOther}
	}
	c := &Call{Kind: CalleeOther, Text: fn.Content(src)}
	// a?.() carries its optional chain on the call itself.
	if hasChild(call, "optional_chain") {
		c.Optional = true
	}

	switch fn.Type() {
	case "identifier":
		c.Kind = CalleeIdentifier
		c.Name = c.Text
	case "member_expression":
		c.Kind = CalleeMember
		if obj := fn.ChildByFieldName("object"); obj != nil {
			c.Object = obj.Content(src)
			c.ObjectType = obj.Type()
		}
		if prop := fn.ChildByFieldName("property"); prop != nil {
			c.Property = prop.Content(src)
			c.PropertyType = prop.Type()
		}
		if hasChild(fn, "optional_chain") || strings.Contains(c.Text, "?.") {
			c.Optional = true
		}
	}
	return c
}

func hasChild(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == typ {
			return true
		}
	}
	return false
}

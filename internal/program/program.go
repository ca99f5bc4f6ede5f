// Package program turns JavaScript source into a flat list of top-level
// statement summaries and back.
//
// Parsing is done with Tree-sitter. The syntax tree never escapes this
// package: every statement is reduced to a Statement value carrying its
// verbatim source text plus the handful of structural facts the
// canonicalizer, merger and linter need. Function bodies are kept as opaque
// statement texts; nothing below the top level is interpreted.
package program

import (
	"strings"
)

// Statement kinds, as reported by the Tree-sitter JavaScript grammar.
const (
	TypeLexicalDeclaration  = "lexical_declaration"
	TypeVariableDeclaration = "variable_declaration"
	TypeFunctionDeclaration = "function_declaration"
	TypeGeneratorFunction   = "generator_function_declaration"
	TypeClassDeclaration    = "class_declaration"
	TypeExpressionStatement = "expression_statement"
	TypeComment             = "comment"
)

// Program is an ordered sequence of top-level statements.
type Program struct {
	Statements []Statement
}

// Statement summarizes one top-level statement.
type Statement struct {
	// Type is the grammar node type, e.g. "lexical_declaration".
	Type string
	// Text is the verbatim source of the statement.
	Text string
	// Line is 1-based, Column 0-based.
	Line   int
	Column int
	// ASI is set when the statement was closed by automatic semicolon
	// insertion. Print writes the semicolon out so the statement cannot run
	// into whatever follows it.
	ASI bool

	// DeclKind is "var", "let" or "const" for declarations.
	DeclKind    string
	Declarators []Declarator

	// Name is the declared name of a function or class declaration.
	Name     string
	Function *Function

	// Call is set when the statement is an expression statement whose
	// expression is a direct call.
	Call *Call
}

// Declarator is one binding inside a variable declaration.
type Declarator struct {
	Name string
	// Pattern is true when the binding is a destructuring pattern.
	Pattern bool
	// Value is the initializer source, empty when absent.
	Value  string
	Text   string
	Line   int
	Column int
}

// Function holds the pieces of a named function declaration.
type Function struct {
	// Header is everything before the body block, e.g. "async function f(a) ".
	Header string
	// Body holds the verbatim text of each statement in the body block.
	Body []string
}

// CalleeKind classifies the callee expression of a call.
type CalleeKind int

const (
	CalleeOther CalleeKind = iota
	CalleeIdentifier
	CalleeMember
)

// Call describes a direct call expression statement.
type Call struct {
	Kind CalleeKind
	// Text is the verbatim callee source.
	Text string
	// Name is set for identifier callees.
	Name string
	// Object and Property are set for member callees.
	Object       string
	ObjectType   string
	Property     string
	PropertyType string
	Optional     bool
}

// IsDeclaration reports whether s is a var/let/const statement.
func (s Statement) IsDeclaration() bool {
	return s.Type == TypeLexicalDeclaration || s.Type == TypeVariableDeclaration
}

// Source returns the statement text with any implicit semicolon made explicit.
func (s Statement) Source() string {
	if s.ASI {
		return s.Text + ";"
	}
	return s.Text
}

// HasPattern reports whether any declarator binds a destructuring pattern.
func (s Statement) HasPattern() bool {
	for _, d := range s.Declarators {
		if d.Pattern {
			return true
		}
	}
	return false
}

// Declaration builds a declaration statement of the given kind holding
// exactly the given declarators, e.g. Declaration("const", a) yields
// "const a = 1;".
func Declaration(kind string, decls ...Declarator) Statement {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.Text
	}
	typ := TypeLexicalDeclaration
	if kind == "var" {
		typ = TypeVariableDeclaration
	}
	stmt := Statement{
		Type:        typ,
		Text:        kind + " " + strings.Join(parts, ", ") + ";",
		DeclKind:    kind,
		Declarators: append([]Declarator(nil), decls...),
	}
	if len(decls) > 0 {
		stmt.Line, stmt.Column = decls[0].Line, decls[0].Column
	}
	return stmt
}

// FunctionWithBody rebuilds a function declaration around a new body.
func FunctionWithBody(s Statement, body []string) Statement {
	out := s
	out.Function = &Function{Header: s.Function.Header, Body: append([]string(nil), body...)}
	if len(body) == 0 {
		out.Text = s.Function.Header + "{}"
		return out
	}
	var b strings.Builder
	b.WriteString(s.Function.Header)
	b.WriteString("{\n")
	for _, stmt := range body {
		for _, line := range strings.Split(stmt, "\n") {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("}")
	out.Text = b.String()
	return out
}

// Print renders a program as source text, one statement per line group,
// terminated by a single newline. An empty program prints as "".
func Print(p *Program) string {
	if p == nil || len(p.Statements) == 0 {
		return ""
	}
	parts := make([]string, len(p.Statements))
	for i, s := range p.Statements {
		parts[i] = s.Source()
	}
	return strings.Join(parts, "\n") + "\n"
}

// Normalize collapses all whitespace runs so that two statements differing
// only in layout compare equal.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

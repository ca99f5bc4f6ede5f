// Package canon implements the program canonicalizer: it deduplicates and
// reorders the top-level statements of a program into a fixed, safe order.
//
// A pass has four stages. The classifier tags every top-level statement as a
// variable declaration, function declaration, call, or anything else. Two
// tables then absorb the declarations (first write wins) and the calls (last
// write wins, first position kept). Finally the assembler emits
//
//	variables, functions, other statements, ordinary calls, entrypoint calls
//
// where an entrypoint call is a call to a declared function. The output is a
// fixed point: canonicalizing it again changes nothing.
package canon

import "stitcher/internal/program"

// Node is a classified top-level statement. The set of implementations is
// closed: VariableDeclaration, FunctionDeclaration, CallStatement, OtherNode.
type Node interface {
	// Statement returns the source statement this node emits.
	Statement() program.Statement
	isNode()
}

// VariableDeclaration binds exactly one name. A statement declaring several
// names is split into one VariableDeclaration per name.
type VariableDeclaration struct {
	Kind        string // var, let, const
	Name        string
	Initializer string
	stmt        program.Statement
}

// FunctionDeclaration is a named top-level function. Its body is opaque.
type FunctionDeclaration struct {
	Name string
	stmt program.Statement
}

// CallStatement is a top-level call whose callee reduces to an identifier
// or a dotted object.property name.
type CallStatement struct {
	CalleeName string
	stmt       program.Statement
}

// OtherNode is any statement kept as-is.
type OtherNode struct {
	stmt program.Statement
}

func (n *VariableDeclaration) Statement() program.Statement { return n.stmt }
func (n *FunctionDeclaration) Statement() program.Statement { return n.stmt }
func (n *CallStatement) Statement() program.Statement       { return n.stmt }
func (n *OtherNode) Statement() program.Statement           { return n.stmt }

func (*VariableDeclaration) isNode() {}
func (*FunctionDeclaration) isNode() {}
func (*CallStatement) isNode()       {}
func (*OtherNode) isNode()           {}

// IsEntrypointCandidate reports whether the callee is a bare identifier and
// so could name a declared function.
func (n *CallStatement) IsEntrypointCandidate() bool {
	for i := 0; i < len(n.CalleeName); i++ {
		if n.CalleeName[i] == '.' {
			return false
		}
	}
	return true
}

package canon

import (
	"stitcher/internal/logging"
	"stitcher/internal/program"
)

// Report describes what a canonicalization pass discarded or replaced.
type Report struct {
	// DroppedDeclarations names redeclarations that were discarded.
	DroppedDeclarations []string
	// ReplacedCalls names callees whose earlier call was overwritten.
	ReplacedCalls []string
	// Entrypoints names the calls emitted last.
	Entrypoints []string
}

// Changed reports whether the pass removed anything.
func (r Report) Changed() bool {
	return len(r.DroppedDeclarations) > 0 || len(r.ReplacedCalls) > 0
}

// Tables is the populated state of one pass, ready for assembly.
type Tables struct {
	Decls  *DeclarationTable
	Others []*OtherNode
	Calls  *CallTable
}

// Build runs one linear scan over classified nodes.
func Build(nodes []Node) *Tables {
	t := &Tables{Decls: NewDeclarationTable(), Calls: NewCallTable()}
	for _, n := range nodes {
		switch n := n.(type) {
		case *VariableDeclaration:
			t.Decls.AddVariable(n)
		case *FunctionDeclaration:
			t.Decls.AddFunction(n)
		case *CallStatement:
			t.Calls.Set(n)
		case *OtherNode:
			t.Others = append(t.Others, n)
		default:
			panic("canon: unclassified node")
		}
	}
	return t
}

// Assemble concatenates the buckets in canonical order: variables,
// functions, other statements, ordinary calls, entrypoint calls.
func Assemble(t *Tables) []Node {
	ordinary, entrypoints := t.Calls.Partition(t.Decls)

	out := make([]Node, 0, len(t.Decls.vars)+len(t.Decls.funcs)+len(t.Others)+t.Calls.Len())
	for _, v := range t.Decls.Variables() {
		out = append(out, v)
	}
	for _, f := range t.Decls.Functions() {
		out = append(out, f)
	}
	for _, o := range t.Others {
		out = append(out, o)
	}
	// Reserved slot for statement kinds that must run before any call;
	// nothing populates it yet.
	for _, c := range ordinary {
		out = append(out, c)
	}
	for _, c := range entrypoints {
		out = append(out, c)
	}
	return out
}

// Canonicalize returns the canonical form of p. The input is not modified.
func Canonicalize(p *program.Program) *program.Program {
	out, _ := Run(p)
	return out
}

// Run canonicalizes p and reports what was discarded.
func Run(p *program.Program) (*program.Program, Report) {
	if p == nil {
		return &program.Program{}, Report{}
	}

	t := Build(Classify(p.Statements))
	nodes := Assemble(t)

	out := &program.Program{Statements: make([]program.Statement, len(nodes))}
	for i, n := range nodes {
		out.Statements[i] = n.Statement()
	}

	_, entrypoints := t.Calls.Partition(t.Decls)
	report := Report{
		DroppedDeclarations: t.Decls.Dropped(),
		ReplacedCalls:       t.Calls.Replaced(),
	}
	for _, c := range entrypoints {
		report.Entrypoints = append(report.Entrypoints, c.CalleeName)
	}
	if report.Changed() {
		logging.CanonDebug("dropped declarations %v, replaced calls %v", report.DroppedDeclarations, report.ReplacedCalls)
	}
	return out, report
}

// Source parses, canonicalizes and prints src.
func Source(src string) (string, Report, error) {
	p, err := program.Parse(src)
	if err != nil {
		return "", Report{}, err
	}
	out, report := Run(p)
	logging.Canon("canonicalized %d statements into %d", len(p.Statements), len(out.Statements))
	return program.Print(out), report, nil
}

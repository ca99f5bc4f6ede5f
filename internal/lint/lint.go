// Package lint is a small diagnostic engine for stitched JavaScript programs.
// It reports the hazards canonicalization exists to remove, so a clean lint
// of a fragment means it can be committed as-is.
package lint

import (
	"context"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"stitcher/internal/canon"
	"stitcher/internal/logging"
	"stitcher/internal/program"
)

// Rule IDs.
const (
	RuleParseError        = "parse-error"
	RuleNoRedeclare       = "no-redeclare"
	RuleNoDuplicateCall   = "no-duplicate-call"
	RuleNoUseBeforeDefine = "no-use-before-define"
	RuleNoDebugger        = "no-debugger"
)

// Rules lists every rule ID in reporting order.
var Rules = []string{
	RuleParseError,
	RuleNoRedeclare,
	RuleNoDuplicateCall,
	RuleNoUseBeforeDefine,
	RuleNoDebugger,
}

// Diagnostic is one finding. Line is 1-based, Column 0-based.
type Diagnostic struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
	RuleID  string `json:"ruleId"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d %s (%s)", d.Line, d.Column, d.Message, d.RuleID)
}

// Linter runs the enabled rules. It is safe for concurrent use.
type Linter struct {
	disabled map[string]bool
}

// New returns a Linter with the given rules switched off. Parse errors are
// always reported.
func New(disabled ...string) *Linter {
	l := &Linter{disabled: make(map[string]bool)}
	for _, id := range disabled {
		if id != RuleParseError {
			l.disabled[id] = true
		}
	}
	return l
}

// Lint returns diagnostics for src sorted by position. Unparsable source
// yields only parse-error diagnostics.
func (l *Linter) Lint(ctx context.Context, src string) []Diagnostic {
	content := []byte(src)
	tree, err := program.ParseTree(ctx, content)
	if err != nil {
		return []Diagnostic{{Line: 1, Column: 0, Message: err.Error(), RuleID: RuleParseError}}
	}
	defer tree.Close()
	root := tree.RootNode()

	if root.HasError() {
		var diags []Diagnostic
		for _, perr := range program.ErrorNodes(root, content) {
			diags = append(diags, Diagnostic{
				Line:    perr.Line,
				Column:  perr.Column,
				Message: perr.Message,
				RuleID:  RuleParseError,
			})
		}
		if len(diags) == 0 {
			diags = append(diags, Diagnostic{Line: 1, Column: 0, Message: "syntax error", RuleID: RuleParseError})
		}
		return diags
	}

	p, err := program.ParseContext(ctx, src)
	if err != nil {
		return []Diagnostic{{Line: 1, Column: 0, Message: err.Error(), RuleID: RuleParseError}}
	}

	var diags []Diagnostic
	if !l.disabled[RuleNoRedeclare] {
		diags = append(diags, noRedeclare(p)...)
	}
	if !l.disabled[RuleNoDuplicateCall] {
		diags = append(diags, noDuplicateCall(p)...)
	}
	if !l.disabled[RuleNoUseBeforeDefine] {
		diags = append(diags, noUseBeforeDefine(p)...)
	}
	if !l.disabled[RuleNoDebugger] {
		diags = append(diags, noDebugger(root)...)
	}

	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Line != diags[j].Line {
			return diags[i].Line < diags[j].Line
		}
		return diags[i].Column < diags[j].Column
	})
	logging.LintDebug("lint: %d diagnostics", len(diags))
	return diags
}

type binding struct {
	name    string
	line    int
	column  int
	lexical bool // let, const and class: unusable before the declaration runs
}

// topLevelBindings lists every name bound at the top level, in source order.
func topLevelBindings(p *program.Program) []binding {
	var out []binding
	for _, s := range p.Statements {
		switch {
		case s.IsDeclaration():
			for _, d := range s.Declarators {
				if d.Pattern {
					continue
				}
				out = append(out, binding{name: d.Name, line: d.Line, column: d.Column, lexical: s.DeclKind != "var"})
			}
		case s.Type == program.TypeFunctionDeclaration || s.Type == program.TypeGeneratorFunction:
			if s.Name != "" {
				out = append(out, binding{name: s.Name, line: s.Line, column: s.Column})
			}
		case s.Type == program.TypeClassDeclaration:
			if s.Name != "" {
				out = append(out, binding{name: s.Name, line: s.Line, column: s.Column, lexical: true})
			}
		}
	}
	return out
}

func noRedeclare(p *program.Program) []Diagnostic {
	var diags []Diagnostic
	first := make(map[string]binding)
	for _, b := range topLevelBindings(p) {
		prev, ok := first[b.name]
		if !ok {
			first[b.name] = b
			continue
		}
		diags = append(diags, Diagnostic{
			Line:    b.line,
			Column:  b.column,
			Message: fmt.Sprintf("'%s' is already declared at line %d", b.name, prev.line),
			RuleID:  RuleNoRedeclare,
		})
	}
	return diags
}

func noDuplicateCall(p *program.Program) []Diagnostic {
	var diags []Diagnostic
	first := make(map[string]int)
	for _, s := range p.Statements {
		name, ok := canon.CalleeName(s.Call)
		if !ok {
			continue
		}
		if line, seen := first[name]; seen {
			diags = append(diags, Diagnostic{
				Line:    s.Line,
				Column:  s.Column,
				Message: fmt.Sprintf("'%s' is already called at top level on line %d", name, line),
				RuleID:  RuleNoDuplicateCall,
			})
			continue
		}
		first[name] = s.Line
	}
	return diags
}

func noUseBeforeDefine(p *program.Program) []Diagnostic {
	declaredAt := make(map[string]binding)
	for _, b := range topLevelBindings(p) {
		if _, ok := declaredAt[b.name]; !ok {
			declaredAt[b.name] = b
		}
	}

	var diags []Diagnostic
	for _, s := range p.Statements {
		if s.Call == nil || s.Call.Kind == program.CalleeOther {
			continue
		}
		name := s.Call.Name
		if s.Call.Kind == program.CalleeMember {
			if s.Call.ObjectType != "identifier" {
				continue
			}
			name = s.Call.Object
		}
		b, ok := declaredAt[name]
		if !ok || !b.lexical {
			continue
		}
		if s.Line < b.line || s.Line == b.line && s.Column < b.column {
			diags = append(diags, Diagnostic{
				Line:    s.Line,
				Column:  s.Column,
				Message: fmt.Sprintf("'%s' was used before it was defined", name),
				RuleID:  RuleNoUseBeforeDefine,
			})
		}
	}
	return diags
}

func noDebugger(root *sitter.Node) []Diagnostic {
	var diags []Diagnostic
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "debugger_statement" {
			diags = append(diags, Diagnostic{
				Line:    int(n.StartPoint().Row) + 1,
				Column:  int(n.StartPoint().Column),
				Message: "Unexpected 'debugger' statement",
				RuleID:  RuleNoDebugger,
			})
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return diags
}

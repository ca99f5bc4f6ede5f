// Package merge combines two JavaScript program fragments at the statement
// level instead of concatenating their text.
//
// Merge policy, applied to each top-level statement of the new fragment in
// order:
//   - a function whose name is already declared has its body unioned into the
//     existing function: existing statements first, then new statements not
//     already present, both preserved in full. The existing header wins.
//   - a var/let/const binding whose name is already declared replaces the
//     existing declarator in place; fresh bindings are appended.
//   - any other statement is appended unless an identical one exists.
//
// Statements are compared with whitespace collapsed.
package merge

import (
	"context"
	"fmt"

	"stitcher/internal/logging"
	"stitcher/internal/program"
)

// StructuralMerger merges program fragments. It is stateless and safe for
// concurrent use.
type StructuralMerger struct{}

// New returns a StructuralMerger.
func New() *StructuralMerger {
	return &StructuralMerger{}
}

// Merge combines oldText and newText. It fails if either fragment does not
// parse or ctx is cancelled.
func (m *StructuralMerger) Merge(ctx context.Context, oldText, newText string) (string, error) {
	timer := logging.StartTimer(logging.CategoryMerge, "Merge")
	defer timer.Stop()

	oldProg, err := program.ParseContext(ctx, oldText)
	if err != nil {
		return "", fmt.Errorf("parse existing code: %w", err)
	}
	newProg, err := program.ParseContext(ctx, newText)
	if err != nil {
		return "", fmt.Errorf("parse new code: %w", err)
	}

	out, err := Programs(ctx, oldProg, newProg)
	if err != nil {
		return "", err
	}
	return program.Print(out), nil
}

// binding locates a declarator inside the merged statement list.
type binding struct {
	stmt int
	decl int
}

type merger struct {
	out       []program.Statement
	functions map[string]int
	bindings  map[string]binding
	seen      map[string]bool
}

// Programs merges two parsed programs. Neither input is modified.
func Programs(ctx context.Context, oldProg, newProg *program.Program) (*program.Program, error) {
	m := &merger{
		functions: make(map[string]int),
		bindings:  make(map[string]binding),
		seen:      make(map[string]bool),
	}
	for _, s := range oldProg.Statements {
		m.push(s)
	}

	for _, s := range newProg.Statements {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("merge cancelled: %w", err)
		}
		switch {
		case s.Function != nil && s.Name != "":
			m.mergeFunction(s)
		case s.IsDeclaration() && len(s.Declarators) > 0 && !s.HasPattern():
			m.mergeDeclaration(s)
		default:
			if m.seen[program.Normalize(s.Source())] {
				logging.MergeDebug("skipping duplicate statement at line %d", s.Line)
				continue
			}
			m.push(s)
		}
	}
	return &program.Program{Statements: m.out}, nil
}

func (m *merger) push(s program.Statement) {
	idx := len(m.out)
	m.out = append(m.out, s)
	m.seen[program.Normalize(s.Source())] = true

	if s.Function != nil && s.Name != "" {
		if _, ok := m.functions[s.Name]; !ok {
			m.functions[s.Name] = idx
		}
	}
	if s.IsDeclaration() && !s.HasPattern() {
		for j, d := range s.Declarators {
			if _, ok := m.bindings[d.Name]; !ok {
				m.bindings[d.Name] = binding{stmt: idx, decl: j}
			}
		}
	}
}

func (m *merger) mergeFunction(s program.Statement) {
	idx, ok := m.functions[s.Name]
	if !ok {
		m.push(s)
		return
	}
	existing := m.out[idx]

	body := append([]string(nil), existing.Function.Body...)
	present := make(map[string]bool, len(body))
	for _, stmt := range body {
		present[program.Normalize(stmt)] = true
	}
	added := 0
	for _, stmt := range s.Function.Body {
		key := program.Normalize(stmt)
		if present[key] {
			continue
		}
		present[key] = true
		body = append(body, stmt)
		added++
	}
	if added == 0 {
		return
	}

	logging.MergeDebug("merged function %s: %d new statements", s.Name, added)
	merged := program.FunctionWithBody(existing, body)
	m.out[idx] = merged
	m.seen[program.Normalize(merged.Text)] = true
}

func (m *merger) mergeDeclaration(s program.Statement) {
	var fresh []program.Declarator
	for _, d := range s.Declarators {
		b, ok := m.bindings[d.Name]
		if !ok {
			fresh = append(fresh, d)
			continue
		}
		target := m.out[b.stmt]
		if program.Normalize(target.Declarators[b.decl].Text) == program.Normalize(d.Text) {
			continue
		}
		decls := append([]program.Declarator(nil), target.Declarators...)
		decls[b.decl] = d
		rebuilt := program.Declaration(target.DeclKind, decls...)
		rebuilt.Line, rebuilt.Column = target.Line, target.Column
		m.out[b.stmt] = rebuilt
		m.seen[program.Normalize(rebuilt.Text)] = true
		logging.MergeDebug("replaced binding %s", d.Name)
	}
	if len(fresh) == 0 {
		return
	}
	if len(fresh) == len(s.Declarators) {
		m.push(s)
		return
	}
	m.push(program.Declaration(s.DeclKind, fresh...))
}

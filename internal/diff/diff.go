// Package diff computes line diffs between successive versions of the
// accumulated program, using sergi/go-diff for the line matching.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Kind classifies a diff line.
type Kind int

const (
	Context Kind = iota
	Added
	Removed
)

func (k Kind) prefix() string {
	switch k {
	case Added:
		return "+"
	case Removed:
		return "-"
	default:
		return " "
	}
}

// Line is one line of a hunk. OldNum and NewNum are 1-based and zero when
// the line does not exist on that side.
type Line struct {
	Kind   Kind
	OldNum int
	NewNum int
	Text   string
}

// Hunk is a run of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Change is the difference between two program texts.
type Change struct {
	Hunks   []Hunk
	Added   int
	Removed int
}

// Empty reports whether the two texts were line-identical.
func (c *Change) Empty() bool {
	return c.Added == 0 && c.Removed == 0
}

// Unified renders the change in unified diff format.
func (c *Change) Unified(oldName, newName string) string {
	if c.Empty() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", oldName, newName)
	for _, h := range c.Hunks {
		fmt.Fprintf(&b, "@@ -%s +%s @@\n", span(h.OldStart, h.OldCount), span(h.NewStart, h.NewCount))
		for _, l := range h.Lines {
			b.WriteString(l.Kind.prefix())
			b.WriteString(l.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func span(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// Engine computes diffs. It is safe for concurrent use.
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	context int
}

// NewEngine returns an Engine that keeps contextLines of unchanged text
// around each hunk.
func NewEngine(contextLines int) *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{dmp: dmp, context: contextLines}
}

// Compute returns the line diff from before to after.
func (e *Engine) Compute(before, after string) *Change {
	a, b, lines := e.dmp.DiffLinesToChars(terminate(before), terminate(after))
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lines)

	ops := flatten(diffs)
	c := &Change{}
	for _, op := range ops {
		switch op.Kind {
		case Added:
			c.Added++
		case Removed:
			c.Removed++
		}
	}
	c.Hunks = e.group(ops)
	return c
}

// terminate gives a non-empty text a final newline so that the last line
// compares equal whether or not it had one.
func terminate(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

type op struct {
	Line
	oldPos int // old lines before this one
	newPos int
}

func flatten(diffs []diffmatchpatch.Diff) []op {
	var ops []op
	oldPos, newPos := 0, 0
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if d.Text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			o := op{Line: Line{Text: line}, oldPos: oldPos, newPos: newPos}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldPos++
				newPos++
				o.Kind, o.OldNum, o.NewNum = Context, oldPos, newPos
			case diffmatchpatch.DiffDelete:
				oldPos++
				o.Kind, o.OldNum = Removed, oldPos
			case diffmatchpatch.DiffInsert:
				newPos++
				o.Kind, o.NewNum = Added, newPos
			}
			ops = append(ops, o)
		}
	}
	return ops
}

// group cuts ops into hunks. Changes separated by at most twice the context
// size share a hunk.
func (e *Engine) group(ops []op) []Hunk {
	var hunks []Hunk
	for i := 0; i < len(ops); {
		if ops[i].Kind == Context {
			i++
			continue
		}
		last := i
		for j := i + 1; j < len(ops); j++ {
			if ops[j].Kind != Context {
				last = j
				continue
			}
			if j-last > 2*e.context {
				break
			}
		}
		start := i - e.context
		if start < 0 {
			start = 0
		}
		stop := last + e.context + 1
		if stop > len(ops) {
			stop = len(ops)
		}
		hunks = append(hunks, makeHunk(ops[start:stop]))
		i = stop
	}
	return hunks
}

func makeHunk(ops []op) Hunk {
	h := Hunk{Lines: make([]Line, len(ops))}
	for i, o := range ops {
		h.Lines[i] = o.Line
		if o.Kind != Added {
			h.OldCount++
		}
		if o.Kind != Removed {
			h.NewCount++
		}
	}
	h.OldStart, h.NewStart = ops[0].oldPos, ops[0].newPos
	if h.OldCount > 0 {
		h.OldStart++
	}
	if h.NewCount > 0 {
		h.NewStart++
	}
	return h
}

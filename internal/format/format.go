// Package format pretty-prints JavaScript source for stable styling.
//
// The formatter never changes tokens. It re-indents every line from the
// bracket structure of the syntax tree, trims trailing whitespace, collapses
// blank-line runs and ends the text with exactly one newline. Lines inside
// multi-line strings, template literals and comments are left verbatim.
package format

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"stitcher/internal/logging"
	"stitcher/internal/program"
)

// Options controls layout.
type Options struct {
	Indent        string
	MaxBlankLines int
}

// DefaultOptions returns two-space indentation with single blank lines.
func DefaultOptions() Options {
	return Options{Indent: "  ", MaxBlankLines: 1}
}

// Formatter formats JavaScript source. It is safe for concurrent use.
type Formatter struct {
	opts Options
}

// New returns a Formatter.
func New(opts Options) *Formatter {
	if opts.Indent == "" {
		opts.Indent = "  "
	}
	if opts.MaxBlankLines < 0 {
		opts.MaxBlankLines = 0
	}
	return &Formatter{opts: opts}
}

type token struct {
	col    int
	opener bool
}

// Format returns src re-laid out. It fails when src does not parse.
func (f *Formatter) Format(ctx context.Context, src string) (string, error) {
	timer := logging.StartTimer(logging.CategoryFormat, "Format")
	defer timer.Stop()

	src = strings.ReplaceAll(src, "\r\n", "\n")
	content := []byte(src)

	tree, err := program.ParseTree(ctx, content)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	root := tree.RootNode()
	if perr := program.FirstError(root, content); perr != nil {
		return "", fmt.Errorf("format: %w", perr)
	}

	lines := strings.Split(src, "\n")
	l := &layout{
		tokens:   make([][]token, len(lines)),
		verbatim: make([]bool, len(lines)),
		keepTail: make([]bool, len(lines)),
	}
	l.collect(root)
	tokens, verbatim := l.tokens, l.verbatim

	var out []string
	var stack []int // rows of unclosed openers
	blank := 0
	for row, line := range lines {
		trimmed := strings.TrimSpace(line)
		toks := tokens[row]

		// Closers leading the line dedent it.
		lead := 0
		if !verbatim[row] {
			for lead < len(toks) && !toks[lead].opener && leadsLine(line, toks[lead].col) {
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
				lead++
			}
		}
		depth := distinctRows(stack)

		for _, tok := range toks[lead:] {
			if tok.opener {
				stack = append(stack, row)
			} else if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}

		switch {
		case verbatim[row]:
			blank = 0
			if !l.keepTail[row] {
				line = strings.TrimRight(line, " \t")
			}
			out = append(out, line)
		case trimmed == "":
			blank++
			if blank <= f.opts.MaxBlankLines && len(out) > 0 {
				out = append(out, "")
			}
		default:
			blank = 0
			text := strings.TrimLeft(line, " \t")
			if !l.keepTail[row] {
				text = strings.TrimRight(text, " \t")
			}
			out = append(out, strings.Repeat(f.opts.Indent, depth)+text)
		}
	}

	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return "", nil
	}
	logging.FormatDebug("formatted %d lines", len(out))
	return strings.Join(out, "\n") + "\n", nil
}

// leadsLine reports whether only whitespace and closing brackets precede
// byte column col of line.
func leadsLine(line string, col int) bool {
	if col > len(line) {
		return false
	}
	for i := 0; i < col; i++ {
		switch line[i] {
		case ' ', '\t', '}', ')', ']':
		default:
			return false
		}
	}
	return true
}

func distinctRows(stack []int) int {
	n := 0
	for i, row := range stack {
		if i == 0 || stack[i-1] != row {
			n++
		}
	}
	return n
}

type layout struct {
	tokens   [][]token
	verbatim []bool // row starts inside a multi-line literal or comment
	keepTail []bool // row ends inside a multi-line literal
}

// collect records bracket tokens per row and marks rows that lie inside a
// multi-line string, template literal or comment.
func (l *layout) collect(n *sitter.Node) {
	typ := n.Type()
	start, end := int(n.StartPoint().Row), int(n.EndPoint().Row)

	switch typ {
	case "string", "template_string", "comment", "regex":
		for row := start + 1; row <= end && row < len(l.verbatim); row++ {
			l.verbatim[row] = true
		}
		if typ != "comment" {
			for row := start; row < end && row < len(l.keepTail); row++ {
				l.keepTail[row] = true
			}
		}
	}

	if n.ChildCount() == 0 {
		if start >= len(l.tokens) {
			return
		}
		switch typ {
		case "{", "(", "[", "${":
			l.tokens[start] = append(l.tokens[start], token{col: int(n.StartPoint().Column), opener: true})
		case "}", ")", "]":
			if !n.IsMissing() {
				l.tokens[start] = append(l.tokens[start], token{col: int(n.StartPoint().Column)})
			}
		}
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		l.collect(n.Child(i))
	}
}

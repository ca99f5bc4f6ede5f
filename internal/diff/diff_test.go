package diff

import (
	"fmt"
	"strings"
	"testing"
)

func TestCompute_Addition(t *testing.T) {
	c := NewEngine(3).Compute("a();\nb();\nc();\n", "a();\nb();\nx();\nc();\n")

	if c.Added != 1 || c.Removed != 0 {
		t.Fatalf("Added/Removed = %d/%d, want 1/0", c.Added, c.Removed)
	}
	if len(c.Hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(c.Hunks))
	}
	h := c.Hunks[0]
	if h.OldStart != 1 || h.OldCount != 3 || h.NewStart != 1 || h.NewCount != 4 {
		t.Errorf("hunk header = -%d,%d +%d,%d", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
	}
	found := false
	for _, l := range h.Lines {
		if l.Kind == Added {
			found = true
			if l.Text != "x();" || l.NewNum != 3 || l.OldNum != 0 {
				t.Errorf("unexpected added line %+v", l)
			}
		}
	}
	if !found {
		t.Error("added line missing")
	}
}

func TestCompute_Removal(t *testing.T) {
	c := NewEngine(1).Compute("a\nb\nc\nd\n", "a\nb\nd\n")
	if c.Added != 0 || c.Removed != 1 {
		t.Fatalf("Added/Removed = %d/%d, want 0/1", c.Added, c.Removed)
	}
	want := "--- before\n+++ after\n@@ -2,3 +2,2 @@\n b\n-c\n d\n"
	if got := c.Unified("before", "after"); got != want {
		t.Errorf("Unified mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestCompute_NoChanges(t *testing.T) {
	c := NewEngine(3).Compute("same\n", "same\n")
	if !c.Empty() {
		t.Errorf("expected empty change, got %+v", c)
	}
	if len(c.Hunks) != 0 {
		t.Errorf("expected no hunks, got %d", len(c.Hunks))
	}
	if c.Unified("a", "b") != "" {
		t.Error("empty change should render as empty string")
	}
}

func TestCompute_MissingFinalNewlineIgnored(t *testing.T) {
	c := NewEngine(3).Compute("a\nb", "a\nb\n")
	if !c.Empty() {
		t.Errorf("final newline alone should not count as a change: %+v", c)
	}
}

func TestCompute_FromEmpty(t *testing.T) {
	c := NewEngine(3).Compute("", "one\ntwo\n")
	if c.Added != 2 {
		t.Fatalf("Added = %d, want 2", c.Added)
	}
	want := "--- a\n+++ b\n@@ -0,0 +1,2 @@\n+one\n+two\n"
	if got := c.Unified("a", "b"); got != want {
		t.Errorf("Unified mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestCompute_SeparateHunks(t *testing.T) {
	var oldLines, newLines []string
	for i := 1; i <= 30; i++ {
		line := fmt.Sprintf("line%d", i)
		oldLines = append(oldLines, line)
		switch i {
		case 5:
			newLines = append(newLines, "changed5")
		case 25:
			newLines = append(newLines, "changed25")
		default:
			newLines = append(newLines, line)
		}
	}
	c := NewEngine(3).Compute(strings.Join(oldLines, "\n"), strings.Join(newLines, "\n"))

	if len(c.Hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(c.Hunks))
	}
	if c.Added != 2 || c.Removed != 2 {
		t.Errorf("Added/Removed = %d/%d, want 2/2", c.Added, c.Removed)
	}
	second := c.Hunks[1]
	if second.OldStart != 22 || second.OldCount != 7 {
		t.Errorf("second hunk old span = %d,%d, want 22,7", second.OldStart, second.OldCount)
	}
}

func TestCompute_CloseChangesShareHunk(t *testing.T) {
	c := NewEngine(2).Compute("a\nb\nc\nd\ne\nf\n", "A\nb\nc\nd\ne\nF\n")
	if len(c.Hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(c.Hunks))
	}
	h := c.Hunks[0]
	if h.OldCount != 6 || h.NewCount != 6 {
		t.Errorf("counts = %d/%d, want 6/6", h.OldCount, h.NewCount)
	}
}

func TestNewEngine_NegativeContext(t *testing.T) {
	c := NewEngine(-1).Compute("a\nb\nc\n", "a\nX\nc\n")
	if len(c.Hunks) != 1 || len(c.Hunks[0].Lines) != 2 {
		t.Fatalf("expected a single hunk with only the changed lines, got %+v", c.Hunks)
	}
}

func BenchmarkCompute(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&sb, "const v%d = %d;\n", i, i)
	}
	before := sb.String()
	after := before + "main();\n"
	e := NewEngine(3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Compute(before, after)
	}
}

package render

import (
	"strings"
	"testing"

	"github.com/ormasoftchile/shift/pkg/script"
)

func TestPrepareForExecution_TrailingCommentGetsFix(t *testing.T) {
	content := "CREATE TABLE foo (id INT);\n-- Author: John Doe"
	got := PrepareForExecution(content, script.FormatSQL)
	if !strings.HasPrefix(got, content) {
		t.Errorf("prepared should contain the original:\n%q", got)
	}
	if !strings.HasSuffix(got, TrailingCommentFix) {
		t.Errorf("prepared should end with the fix:\n%q", got)
	}
}

func TestPrepareForExecution_MultilineBlockComment(t *testing.T) {
	content := "SELECT 1;\n/* trailing\nblock */"
	got := PrepareForExecution(content, script.FormatSQL)
	if !strings.HasSuffix(got, TrailingCommentFix) {
		t.Errorf("prepared = %q", got)
	}
}

func TestPrepareForExecution_InlineCommentUnchanged(t *testing.T) {
	content := "SELECT 1; -- done"
	if got := PrepareForExecution(content, script.FormatSQL); got != content {
		t.Errorf("prepared = %q, want unchanged", got)
	}
}

func TestPrepareForExecution_NoSemicolonUnchanged(t *testing.T) {
	content := "SELECT 1\n-- trailing"
	if got := PrepareForExecution(content, script.FormatSQL); got != content {
		t.Errorf("prepared = %q, want unchanged", got)
	}
}

func TestPrepareForExecution_RealStatementAfterSemicolonUnchanged(t *testing.T) {
	content := "SELECT 1;\nSELECT 2"
	if got := PrepareForExecution(content, script.FormatSQL); got != content {
		t.Errorf("prepared = %q, want unchanged", got)
	}
}

func TestPrepareForExecution_SemicolonInsideCommentIgnored(t *testing.T) {
	// The only semicolon lives inside a comment, so there is no last
	// real semicolon and the content passes through.
	content := "-- has ; inside\nSELECT 1"
	if got := PrepareForExecution(content, script.FormatSQL); got != content {
		t.Errorf("prepared = %q, want unchanged", got)
	}
}

func TestPrepareForExecution_CLIPassThrough(t *testing.T) {
	content := "steps:\n  - cli: snow\n    command: app deploy"
	if got := PrepareForExecution(content, script.FormatCLI); got != content {
		t.Errorf("prepared = %q, want unchanged", got)
	}
}

func TestPrepareForExecution_CanonicalNeverContainsFix(t *testing.T) {
	// Two-phase separation: render output never carries the fix marker.
	content := "SELECT 1;\n-- tail"
	got := PrepareForExecution(content, script.FormatSQL)
	if !strings.Contains(got, "schemachange: trailing comment fix") {
		t.Fatalf("prepared = %q", got)
	}
	if strings.Contains(content, "schemachange: trailing comment fix") {
		t.Fatal("canonical input must not contain the fix marker")
	}
}

func TestLastRealSemicolon(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"SELECT 1;", 8},
		{"SELECT 1", -1},
		{"-- ;\nSELECT 1;", 13},
		{"/* ; */ SELECT 1;", 16},
		{"SELECT 1; -- ; after", 8},
		{"", -1},
		{"-- unterminated ;", -1},
		{"/* unterminated ;", -1},
	}
	for _, tt := range tests {
		if got := lastRealSemicolon(tt.in); got != tt.want {
			t.Errorf("lastRealSemicolon(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

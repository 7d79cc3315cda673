package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ormasoftchile/shift/pkg/script"
)

func writeScript(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRender_TrailingSemicolonStripped(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "V1__t.sql", "CREATE TABLE foo (id INT);")

	r := New(root, "", nil)
	got, err := r.Render("V1__t.sql", script.FormatSQL)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "CREATE TABLE foo (id INT)" {
		t.Errorf("canonical = %q", got)
	}
	if prepared := PrepareForExecution(got, script.FormatSQL); prepared != got {
		t.Errorf("prepared = %q, want unchanged", prepared)
	}
}

func TestRender_InternalSemicolonsKept(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "V1__t.sql", "SELECT 1;\nSELECT 2;")

	r := New(root, "", nil)
	got, err := r.Render("V1__t.sql", script.FormatSQL)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "SELECT 1;\nSELECT 2" {
		t.Errorf("canonical = %q", got)
	}
}

func TestRender_BOMAndWhitespace(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "V1__t.sql", "\ufeff  SELECT 'a\ufeffb';  \n")

	r := New(root, "", nil)
	got, err := r.Render("V1__t.sql", script.FormatSQL)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// Leading BOM removed, interior BOM preserved.
	if got != "SELECT 'a\ufeffb'" {
		t.Errorf("canonical = %q", got)
	}
}

func TestRender_Variables(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "V1__t.sql", "CREATE TABLE {{ .table }} (id INT);")

	r := New(root, "", map[string]any{"table": "orders"})
	got, err := r.Render("V1__t.sql", script.FormatSQL)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "CREATE TABLE orders (id INT)" {
		t.Errorf("canonical = %q", got)
	}
}

func TestRender_UndefinedVariableFails(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "V1__t.sql", "SELECT {{ .missing }};")

	r := New(root, "", map[string]any{"table": "orders"})
	if _, err := r.Render("V1__t.sql", script.FormatSQL); err == nil {
		t.Fatal("expected error for undefined variable")
	}
}

func TestRender_EnvVar(t *testing.T) {
	t.Setenv("SHIFT_TEST_DB", "analytics")
	root := t.TempDir()
	writeScript(t, root, "V1__t.sql", `USE DATABASE {{ env_var "SHIFT_TEST_DB" }};`)

	r := New(root, "", nil)
	got, err := r.Render("V1__t.sql", script.FormatSQL)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "USE DATABASE analytics" {
		t.Errorf("canonical = %q", got)
	}
}

func TestRender_EnvVarDefault(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "V1__t.sql", `USE ROLE {{ env_var "SHIFT_TEST_ABSENT" "deployer" }};`)

	r := New(root, "", nil)
	got, err := r.Render("V1__t.sql", script.FormatSQL)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "USE ROLE deployer" {
		t.Errorf("canonical = %q", got)
	}
}

func TestRender_EnvVarMissingNoDefault(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "V1__t.sql", `SELECT {{ env_var "SHIFT_TEST_ABSENT" }};`)

	r := New(root, "", nil)
	_, err := r.Render("V1__t.sql", script.FormatSQL)
	if err == nil || !strings.Contains(err.Error(), "Could not find environmental variable SHIFT_TEST_ABSENT") {
		t.Fatalf("error = %v", err)
	}
}

func TestRender_EmptyContentFails(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "V1__t.sql", "   \n\t  ")

	r := New(root, "", nil)
	_, err := r.Render("V1__t.sql", script.FormatSQL)
	if err == nil || !strings.Contains(err.Error(), "rendered to empty content") {
		t.Fatalf("error = %v", err)
	}
}

func TestRender_CommentOnlyFails(t *testing.T) {
	tests := []string{
		"-- only comment\n",
		"/* block\ncomment */",
		"-- a\n/* b */;;\n",
	}
	for _, content := range tests {
		root := t.TempDir()
		writeScript(t, root, "V1__t.sql", content)
		r := New(root, "", nil)
		_, err := r.Render("V1__t.sql", script.FormatSQL)
		if err == nil || !strings.Contains(err.Error(), "contains only comments") {
			t.Errorf("content %q: error = %v", content, err)
		}
	}
}

func TestRender_CLIOnlyTrims(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "V1__d.cli.yml", "\ufeffsteps:\n  - cli: snow\n    command: app deploy;\n")

	r := New(root, "", nil)
	got, err := r.Render("V1__d.cli.yml", script.FormatCLI)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// No semicolon rules for CLI scripts.
	if !strings.HasSuffix(got, "app deploy;") {
		t.Errorf("canonical = %q", got)
	}
}

func TestRender_CLIEmptyFails(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "V1__d.cli.yml", "\n \n")

	r := New(root, "", nil)
	_, err := r.Render("V1__d.cli.yml", script.FormatCLI)
	if err == nil || !strings.Contains(err.Error(), "rendered to empty content") {
		t.Fatalf("error = %v", err)
	}
}

func TestRender_ModulesPrefix(t *testing.T) {
	root := t.TempDir()
	modules := t.TempDir()
	writeScript(t, modules, "common.sql", "SELECT 'shared'")
	writeScript(t, root, "V1__t.sql", `{{ include "modules/common.sql" }};`)

	r := New(root, modules, nil)
	got, err := r.Render("V1__t.sql", script.FormatSQL)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "SELECT 'shared'" {
		t.Errorf("canonical = %q", got)
	}
}

func TestRender_ChecksumStabilityPair(t *testing.T) {
	// "-- Test\nSELECT 1;" and "-- Test\nSELECT 1" must share one
	// canonical form.
	root := t.TempDir()
	writeScript(t, root, "a.sql", "-- Test\nSELECT 1;")
	writeScript(t, root, "b.sql", "-- Test\nSELECT 1")

	r := New(root, "", nil)
	a, err := r.Render("a.sql", script.FormatSQL)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Render("b.sql", script.FormatSQL)
	if err != nil {
		t.Fatal(err)
	}
	if a != b || a != "-- Test\nSELECT 1" {
		t.Errorf("a = %q, b = %q", a, b)
	}
}

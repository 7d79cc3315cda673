package script

import (
	"strings"
	"testing"
)

func TestClassify_Versioned(t *testing.T) {
	tests := []struct {
		file    string
		version string
		format  Format
		name    string
	}{
		{"V1.2.3__do_thing.sql", "1.2.3", FormatSQL, "V1.2.3__do_thing.sql"},
		{"v1.2.3__do_thing.sql", "1.2.3", FormatSQL, "v1.2.3__do_thing.sql"},
		{"V1.2.3__do_thing.sql.jinja", "1.2.3", FormatSQL, "V1.2.3__do_thing.sql"},
		{"V1_2__do_thing.sql", "1_2", FormatSQL, "V1_2__do_thing.sql"},
		{"V1__deploy.cli.yml", "1", FormatCLI, "V1__deploy.cli.yml"},
		{"V2.0__deploy.CLI.YML.JINJA", "2.0", FormatCLI, "V2.0__deploy.CLI.YML"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			s, err := Classify("/repo/"+tt.file, "")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if s == nil {
				t.Fatal("Classify returned nil")
			}
			if s.Kind != KindVersioned {
				t.Errorf("kind = %s, want V", s.Kind)
			}
			if s.Version != tt.version {
				t.Errorf("version = %q, want %q", s.Version, tt.version)
			}
			if s.Format != tt.format {
				t.Errorf("format = %s, want %s", s.Format, tt.format)
			}
			if s.Name != tt.name {
				t.Errorf("name = %q, want %q", s.Name, tt.name)
			}
		})
	}
}

func TestClassify_RepeatableAndAlways(t *testing.T) {
	r, err := Classify("/repo/R__view.sql", "")
	if err != nil || r == nil {
		t.Fatalf("Classify R: %v, %v", r, err)
	}
	if r.Kind != KindRepeatable || r.Version != "" {
		t.Errorf("got kind %s version %q", r.Kind, r.Version)
	}
	if r.Description != "View" {
		t.Errorf("description = %q, want View", r.Description)
	}

	a, err := Classify("/repo/A__grant_usage.cli.yml", "")
	if err != nil || a == nil {
		t.Fatalf("Classify A: %v, %v", a, err)
	}
	if a.Kind != KindAlways || a.Format != FormatCLI {
		t.Errorf("got kind %s format %s", a.Kind, a.Format)
	}
	if a.Description != "Grant usage" {
		t.Errorf("description = %q, want %q", a.Description, "Grant usage")
	}
}

func TestClassify_IgnoresNonScripts(t *testing.T) {
	for _, file := range []string{"README.md", "notes.txt", "schema.yml", "x__y.sql"} {
		s, err := Classify("/repo/"+file, "")
		if err != nil {
			t.Errorf("%s: unexpected error %v", file, err)
		}
		if s != nil {
			t.Errorf("%s: expected nil, got %+v", file, s)
		}
	}
}

func TestClassify_SingleUnderscoreSeparator(t *testing.T) {
	_, err := Classify("/repo/V1.1_desc.sql", "")
	if err == nil {
		t.Fatal("expected error for single underscore separator")
	}
	if !strings.Contains(err.Error(), "two underscores are required") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(err.Error(), `"V1.1"`) {
		t.Errorf("error should name the prefix: %v", err)
	}
	if !strings.Contains(err.Error(), "V1.1_desc.sql") {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestClassify_MissingVersion(t *testing.T) {
	_, err := Classify("/repo/V__desc.sql", "")
	if err == nil || !strings.Contains(err.Error(), "must be prefixed with a version") {
		t.Fatalf("error = %v", err)
	}
}

func TestClassify_VersionRegex(t *testing.T) {
	s, err := Classify("/repo/V1.2.3__ok.sql", `^\d+\.\d+\.\d+$`)
	if err != nil || s == nil {
		t.Fatalf("expected match, got %v, %v", s, err)
	}

	_, err = Classify("/repo/Vabc__bad.sql", `^\d+\.\d+\.\d+$`)
	if err == nil || !strings.Contains(err.Error(), "doesn't match the supplied regular expression") {
		t.Fatalf("error = %v", err)
	}
}

func TestScriptName_StripsJinja(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/a/V1__x.sql.jinja", "V1__x.sql"},
		{"/a/V1__x.sql.JINJA", "V1__x.sql"},
		{"/a/V1__x.sql", "V1__x.sql"},
		{"/a/R__x.cli.yml.jinja", "R__x.cli.yml"},
	}
	for _, tt := range tests {
		if got := ScriptName(tt.in); got != tt.want {
			t.Errorf("ScriptName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTypeDesc(t *testing.T) {
	v := &Script{Kind: KindVersioned, Version: "1.2.3", Format: FormatSQL}
	if got := v.TypeDesc(); got != "V (1.2.3) SQL" {
		t.Errorf("TypeDesc = %q", got)
	}
	r := &Script{Kind: KindRepeatable, Format: FormatCLI}
	if got := r.TypeDesc(); got != "R CLI" {
		t.Errorf("TypeDesc = %q", got)
	}
}

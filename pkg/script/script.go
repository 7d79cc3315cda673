// Package script discovers and classifies migration scripts.
//
// Filenames follow the V/R/A convention: versioned scripts apply once in
// version order, repeatable scripts re-apply when their content changes,
// always scripts apply on every run. Each kind exists in a SQL form
// (.sql) and a CLI form (.cli.yml), optionally with a .jinja suffix that
// marks the file as a template.
package script

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// Kind is the application policy of a script.
type Kind string

const (
	KindVersioned  Kind = "V"
	KindRepeatable Kind = "R"
	KindAlways     Kind = "A"
)

// Format distinguishes SQL scripts from CLI step scripts.
type Format string

const (
	FormatSQL Format = "SQL"
	FormatCLI Format = "CLI"
)

// Script is one discovered migration script. Immutable after construction.
type Script struct {
	Name        string // filename with any .jinja suffix stripped
	FilePath    string // absolute path
	Description string // parsed from the filename
	Kind        Kind
	Format      Format
	Version     string // set only for KindVersioned
}

// TypeDesc returns a short human description of the script type,
// e.g. "V (1.2.3) SQL" or "R CLI".
func (s *Script) TypeDesc() string {
	parts := []string{string(s.Kind)}
	if s.Kind == KindVersioned && s.Version != "" {
		parts = append(parts, fmt.Sprintf("(%s)", s.Version))
	}
	parts = append(parts, string(s.Format))
	return strings.Join(parts, " ")
}

// Filename grammars. The version group admits single underscores but
// never a double underscore, so the separator that follows is
// unambiguous. SQL patterns stop at the first dot; CLI patterns are
// anchored on the .cli.yml(.jinja) suffix.
var (
	vSQLPattern = regexp.MustCompile(`(?i)^V(?P<version>(?:_?[^_]+)*)(?P<separator>_{1,2})(?P<description>.+?)\.`)
	rSQLPattern = regexp.MustCompile(`(?i)^R(?P<separator>_{1,2})(?P<description>.+?)\.`)
	aSQLPattern = regexp.MustCompile(`(?i)^A(?P<separator>_{1,2})(?P<description>.+?)\.`)

	vCLIPattern = regexp.MustCompile(`(?i)^V(?P<version>(?:_?[^_]+)*)(?P<separator>_{1,2})(?P<description>.+?)\.cli\.yml(\.jinja)?$`)
	rCLIPattern = regexp.MustCompile(`(?i)^R(?P<separator>_{1,2})(?P<description>.+?)\.cli\.yml(\.jinja)?$`)
	aCLIPattern = regexp.MustCompile(`(?i)^A(?P<separator>_{1,2})(?P<description>.+?)\.cli\.yml(\.jinja)?$`)

	sqlExtPattern = regexp.MustCompile(`(?i)\.sql(\.jinja)?$`)
	cliExtPattern = regexp.MustCompile(`(?i)\.cli\.yml(\.jinja)?$`)
	jinjaExt      = regexp.MustCompile(`(?i)\.jinja$`)
)

// grammar pairs a filename pattern with the record it produces.
type grammar struct {
	pattern *regexp.Regexp
	kind    Kind
	format  Format
}

var sqlGrammars = []grammar{
	{vSQLPattern, KindVersioned, FormatSQL},
	{rSQLPattern, KindRepeatable, FormatSQL},
	{aSQLPattern, KindAlways, FormatSQL},
}

var cliGrammars = []grammar{
	{vCLIPattern, KindVersioned, FormatCLI},
	{rCLIPattern, KindRepeatable, FormatCLI},
	{aCLIPattern, KindAlways, FormatCLI},
}

// ScriptName derives the script name from a path: the filename with a
// trailing .jinja extension stripped. The .sql or .cli.yml extension is
// kept.
func ScriptName(path string) string {
	name := filepath.Base(path)
	return jinjaExt.ReplaceAllString(name, "")
}

// Classify matches a filename against the script grammars of its
// extension family and builds the record for the first grammar that
// matches. Returns nil when no grammar matches (the file is not a
// migration script). versionRegex, when non-empty, is applied
// case-insensitively to the version of a V record.
func Classify(path, versionRegex string) (*Script, error) {
	name := strings.TrimSpace(filepath.Base(path))

	var grammars []grammar
	switch {
	case cliExtPattern.MatchString(name):
		grammars = cliGrammars
	case sqlExtPattern.MatchString(name):
		grammars = sqlGrammars
	default:
		return nil, nil
	}

	for _, g := range grammars {
		m := g.pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		return build(g, m, path, versionRegex)
	}
	return nil, nil
}

func build(g grammar, match []string, path, versionRegex string) (*Script, error) {
	groups := subexpMap(g.pattern, match)

	version := groups["version"]
	if g.kind == KindVersioned {
		if version == "" {
			if g.format == FormatCLI {
				return nil, fmt.Errorf("Versioned CLI migrations must be prefixed with a version: %s", path)
			}
			return nil, fmt.Errorf("Versioned migrations must be prefixed with a version: %s", path)
		}
		if versionRegex != "" {
			re, err := regexp.Compile("(?i)" + versionRegex)
			if err != nil {
				return nil, fmt.Errorf("invalid version number regex %q: %w", versionRegex, err)
			}
			if !re.MatchString(version) {
				return nil, fmt.Errorf("change script version doesn't match the supplied regular expression: %s\n%s", versionRegex, path)
			}
		}
	}

	if len(groups["separator"]) != 2 {
		prefix := string(g.kind)
		if g.kind == KindVersioned {
			prefix = "V" + version
		}
		return nil, fmt.Errorf("two underscores are required between %q and the description: %s", prefix, path)
	}

	return &Script{
		Name:        ScriptName(path),
		FilePath:    path,
		Description: describe(groups["description"]),
		Kind:        g.kind,
		Format:      g.format,
		Version:     version,
	}, nil
}

// describe turns the raw description group into display form:
// underscores become spaces, the first letter is uppercased and the rest
// lowered.
func describe(raw string) string {
	s := strings.ToLower(strings.ReplaceAll(raw, "_", " "))
	r := []rune(s)
	if len(r) > 0 {
		r[0] = unicode.ToUpper(r[0])
	}
	return string(r)
}

func subexpMap(re *regexp.Regexp, match []string) map[string]string {
	groups := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(match) {
			groups[name] = match[i]
		}
	}
	return groups
}

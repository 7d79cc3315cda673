// Package render produces the two textual forms of a migration script.
//
// The canonical form is the input to the integrity checksum and must stay
// stable across engine versions. The executable form is what actually gets
// dispatched to the warehouse and may carry engine-added fix-ups. Keeping
// the two separate means a warehouse workaround can never invalidate a
// deployed checksum.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/ormasoftchile/shift/pkg/script"
)

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Renderer expands migration templates rooted at a project directory.
// An optional modules folder is exposed to templates under the
// "modules/" prefix. The process environment is snapshotted once at
// construction so env_var lookups are insulated from environment
// mutation by CLI steps executed later in the run.
type Renderer struct {
	projectRoot   string
	modulesFolder string
	vars          map[string]any
	env           map[string]string
}

// New creates a Renderer for projectRoot. modulesFolder may be empty.
func New(projectRoot, modulesFolder string, vars map[string]any) *Renderer {
	if vars == nil {
		vars = map[string]any{}
	}
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return &Renderer{
		projectRoot:   projectRoot,
		modulesFolder: modulesFolder,
		vars:          vars,
		env:           env,
	}
}

// Relpath converts an absolute script path to the template name used by
// Render: the path relative to the project root, slash-separated.
func (r *Renderer) Relpath(absPath string) (string, error) {
	root, err := filepath.Abs(r.projectRoot)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", fmt.Errorf("script %s is not under project root %s: %w", absPath, r.projectRoot, err)
	}
	return filepath.ToSlash(rel), nil
}

// Render produces the canonical form of the named script: the template is
// expanded, a leading UTF-8 BOM is dropped, surrounding whitespace is
// stripped, and for SQL scripts a single trailing semicolon is removed
// and comment-only content is rejected. The returned bytes are exactly
// what the deploy checksum is computed over; none of these rules may
// change without invalidating every recorded checksum.
func (r *Renderer) Render(name string, format script.Format) (string, error) {
	raw, err := r.expand(name)
	if err != nil {
		return "", err
	}

	raw = strings.TrimPrefix(raw, "\ufeff")
	content := strings.TrimSpace(raw)

	if format == script.FormatCLI {
		if content == "" {
			return "", fmt.Errorf("CLI script '%s' rendered to empty content. Check template variables and conditional blocks", name)
		}
		return content, nil
	}

	// A single final semicolon is noise to the warehouse but poison to
	// checksum stability, so the canonical form drops exactly one.
	if strings.HasSuffix(content, ";") {
		content = content[:len(content)-1]
	}

	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("script '%s' rendered to empty content. Check template variables and conditional blocks", name)
	}

	stripped := lineComment.ReplaceAllString(content, "")
	stripped = blockComment.ReplaceAllString(stripped, "")
	stripped = strings.TrimSpace(strings.ReplaceAll(stripped, ";", ""))
	if stripped == "" {
		return "", fmt.Errorf("script '%s' contains only comments or semicolons. Add SQL statements or remove the script", name)
	}

	return content, nil
}

// expand loads and executes the named template against the variable
// mapping. Referencing an undefined variable is a hard error.
func (r *Renderer) expand(name string) (string, error) {
	src, err := r.load(name)
	if err != nil {
		return "", err
	}

	t, err := template.New(name).Funcs(r.funcs()).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return "", fmt.Errorf("script '%s': template parse: %w", name, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, r.vars); err != nil {
		return "", fmt.Errorf("script '%s': %w", name, err)
	}
	return buf.String(), nil
}

// load resolves a template name to file content. Names under "modules/"
// are served from the modules folder; everything else from the project
// root.
func (r *Renderer) load(name string) ([]byte, error) {
	posix := filepath.ToSlash(name)
	var path string
	if rest, ok := strings.CutPrefix(posix, "modules/"); ok && r.modulesFolder != "" {
		path = filepath.Join(r.modulesFolder, filepath.FromSlash(rest))
	} else {
		path = filepath.Join(r.projectRoot, filepath.FromSlash(posix))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", name, err)
	}
	return data, nil
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"env_var": func(name string, def ...string) (string, error) {
			if v, ok := r.env[name]; ok {
				return v, nil
			}
			if len(def) > 0 {
				return def[0], nil
			}
			return "", fmt.Errorf("Could not find environmental variable %s and no default value was provided", name)
		},
		"include": func(name string) (string, error) {
			return r.expand(name)
		},
	}
}

// Package clirunner parses and executes CLI migration scripts.
//
// A CLI script is a YAML document describing a sequence of subprocess
// steps. Each step names a tool from a fixed allow-list, a command line,
// and optional arguments, working directory, and environment overlay.
// Steps run strictly in order; the first failure aborts the script.
package clirunner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AllowedTools is the set of CLI tools a step may invoke. Deliberately
// closed: a migration repository must not become a general-purpose
// process launcher.
var AllowedTools = map[string]bool{
	"snow": true,
}

// Step is a single subprocess invocation in a CLI script.
type Step struct {
	CLI         string     `yaml:"cli" json:"cli"`
	Command     string     `yaml:"command" json:"command"`
	Args        StringList `yaml:"args,omitempty" json:"args,omitempty"`
	WorkingDir  string     `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
	Env         StringMap  `yaml:"env,omitempty" json:"env,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	When        string     `yaml:"when,omitempty" json:"when,omitempty"`
}

// Document is the root of a CLI script.
type Document struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// StringList decodes a YAML scalar or sequence into a list of strings.
// A scalar is promoted to a single-element list; sequence elements are
// coerced to their string form.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(StringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("args entries must be scalars, got %s", kindName(item.Kind))
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	}
	return fmt.Errorf("args must be a string or a list of strings")
}

// StringMap decodes a YAML mapping coercing keys and values to strings.
type StringMap map[string]string

func (m *StringMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("env must be a mapping")
	}
	out := make(StringMap, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("env keys and values must be scalars")
		}
		out[k.Value] = v.Value
	}
	*m = out
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	}
	return "document"
}

// ParseScript decodes and validates CLI script content. Relative working
// directories are resolved against rootFolder and must exist.
func ParseScript(content, rootFolder string) ([]Step, error) {
	var doc Document
	dec := yaml.NewDecoder(strings.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid YAML in CLI script: %w", err)
	}

	if len(doc.Steps) == 0 {
		return nil, fmt.Errorf("CLI script must declare a non-empty 'steps' list")
	}

	if errs := validateSemantic(&doc); len(errs) > 0 {
		return nil, fmt.Errorf("CLI script failed schema validation: %s", strings.Join(errs, "; "))
	}

	for i := range doc.Steps {
		if err := validateStep(&doc.Steps[i], rootFolder); err != nil {
			return nil, fmt.Errorf("invalid step at index %d: %w", i, err)
		}
	}
	return doc.Steps, nil
}

func validateStep(step *Step, rootFolder string) error {
	if step.CLI == "" {
		return fmt.Errorf("step is missing required field 'cli'")
	}
	if strings.TrimSpace(step.Command) == "" {
		return fmt.Errorf("step is missing required field 'command'")
	}

	tool := toolBasename(step.CLI)
	if !AllowedTools[tool] {
		return fmt.Errorf("CLI tool %q is not supported. Allowed tools: %s", tool, allowedToolList())
	}

	if step.WorkingDir != "" {
		dir := step.WorkingDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(rootFolder, dir)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("working_dir %q: %w", step.WorkingDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("working_dir %q is not a directory", step.WorkingDir)
		}
		step.WorkingDir = dir
	}
	return nil
}

// toolBasename extracts the tool name used for allow-list membership:
// the basename when the cli value carries a path separator, the value
// itself otherwise.
func toolBasename(cli string) string {
	if strings.ContainsAny(cli, `/\`) {
		return filepath.Base(cli)
	}
	return cli
}

func allowedToolList() string {
	names := make([]string, 0, len(AllowedTools))
	for name := range AllowedTools {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

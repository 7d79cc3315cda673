package clirunner

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// GenerateStepSchema produces a JSON Schema Draft 2020-12 document from
// the CLI script Go types. Exported so the CLI can print it for editor
// integration.
func GenerateStepSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Document{})
	s.ID = "https://github.com/ormasoftchile/shift/schemas/cli-script.json"
	s.Title = "CLI migration script"
	s.Description = "Schema for .cli.yml migration documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal step schema: %w", err)
	}
	return data, nil
}

var compiledSchema = sync.OnceValues(func() (*sjsonschema.Schema, error) {
	raw, err := GenerateStepSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal step schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("cli-script.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("cli-script.json")
})

// validateSemantic checks a structurally-decoded document against the
// generated JSON Schema. Returns one message per violation, each
// carrying the instance location (which includes the step index).
func validateSemantic(doc *Document) []string {
	sch, err := compiledSchema()
	if err != nil {
		return []string{fmt.Sprintf("compile schema: %v", err)}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return []string{fmt.Sprintf("marshal for schema validation: %v", err)}
	}
	var inst any
	if err := json.Unmarshal(data, &inst); err != nil {
		return []string{fmt.Sprintf("unmarshal instance: %v", err)}
	}

	if err := sch.Validate(inst); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return []string{err.Error()}
		}
		var msgs []string
		for _, cause := range flattenCauses(ve) {
			loc := "/" + strings.Join(cause.InstanceLocation, "/")
			msgs = append(msgs, fmt.Sprintf("%s: %v", loc, cause.ErrorKind))
		}
		return msgs
	}
	return nil
}

// flattenCauses walks a validation error tree collecting leaves.
func flattenCauses(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var leaves []*sjsonschema.ValidationError
	for _, c := range ve.Causes {
		leaves = append(leaves, flattenCauses(c)...)
	}
	return leaves
}

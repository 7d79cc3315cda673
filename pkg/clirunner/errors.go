package clirunner

import (
	"fmt"

	"github.com/ormasoftchile/shift/pkg/script"
)

// ExecutionError is the typed failure of a CLI script step. It carries
// everything reporting needs: which script, which step, which tool, the
// exit code, and the captured output. Callers inspect the fields rather
// than parse the message.
type ExecutionError struct {
	ScriptName string
	ScriptPath string
	ScriptKind script.Kind
	CLITool    string
	Command    string
	ExitCode   int
	Stdout     string
	Stderr     string
	StepIndex  int // 0-based
	Message    string
	Cause      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("Failed to execute %s CLI script '%s' (step %d): %s",
		e.ScriptKind, e.ScriptName, e.StepIndex+1, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

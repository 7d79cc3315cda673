package clirunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"go.uber.org/zap"

	"github.com/ormasoftchile/shift/pkg/script"
)

// stderrLogLimit bounds how much captured stderr goes into the log on a
// failed step. The full text still travels on the ExecutionError.
const stderrLogLimit = 500

// CommandResult holds the output of one executed step.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// CommandExecutor abstracts process spawning so tests can substitute a
// canned implementation. The default spawns via os/exec with captured
// output and never errors on a non-zero exit.
type CommandExecutor interface {
	Execute(ctx context.Context, argv []string, dir string, env []string) (*CommandResult, error)
}

type execExecutor struct{}

func (execExecutor) Execute(ctx context.Context, argv []string, dir string, env []string) (*CommandResult, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		exitCode = exitErr.ExitCode()
	}

	return &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// Runner executes parsed CLI scripts.
type Runner struct {
	RootFolder string
	DryRun     bool
	Logger     *zap.Logger
	// Vars is the config variable scope visible to step `when` guards.
	Vars map[string]any
	// Env is the parent environment snapshot taken at engine start.
	// Each subprocess environment is composed from it, never from the
	// live process environment.
	Env []string

	// Exec and LookPath are injectable for tests; nil selects the
	// os/exec defaults.
	Exec     CommandExecutor
	LookPath func(name string) (string, error)
}

func (r *Runner) executor() CommandExecutor {
	if r.Exec != nil {
		return r.Exec
	}
	return execExecutor{}
}

func (r *Runner) lookPath(name string) (string, error) {
	if r.LookPath != nil {
		return r.LookPath(name)
	}
	return exec.LookPath(name)
}

// RunScript parses and executes a CLI script. Steps run in order; the
// first failure aborts the remainder and propagates. The returned
// duration is the wall clock of the whole script in seconds, rounded to
// the nearest integer, and is measured even under dry-run.
func (r *Runner) RunScript(ctx context.Context, s *script.Script, content string) (int, error) {
	log := r.Logger.With(
		zap.String("script_name", s.Name),
		zap.String("script_format", string(s.Format)),
	)

	steps, err := ParseScript(content, r.RootFolder)
	if err != nil {
		log.Error("Failed to parse CLI script", zap.Error(err))
		return 0, err
	}

	log.Debug("Parsed CLI script", zap.Int("step_count", len(steps)))
	if r.DryRun {
		log.Info("Running in dry-run mode. Commands will be logged but not executed.")
	}

	start := time.Now()
	for i, step := range steps {
		if err := r.runStep(ctx, s, step, i, log); err != nil {
			return int(math.Round(time.Since(start).Seconds())), err
		}
	}
	elapsed := int(math.Round(time.Since(start).Seconds()))

	log.Info("CLI migration script completed",
		zap.Int("steps_executed", len(steps)),
		zap.Int("execution_time_seconds", elapsed),
	)
	return elapsed, nil
}

// runStep executes one step. A nil return means the step either
// succeeded, was skipped by its when guard, or was a dry run.
func (r *Runner) runStep(ctx context.Context, s *script.Script, step Step, index int, log *zap.Logger) error {
	tool := toolBasename(step.CLI)
	commandString := strings.Join(append([]string{step.CLI}, append(strings.Fields(step.Command), step.Args...)...), " ")

	stepLog := log.With(
		zap.Int("step_index", index+1),
		zap.String("cli", step.CLI),
		zap.String("command", step.Command),
	)
	if step.Description != "" {
		stepLog = stepLog.With(zap.String("step_description", step.Description))
	}

	if step.When != "" {
		run, err := r.evalWhen(step.When)
		if err != nil {
			return &ExecutionError{
				ScriptName: s.Name, ScriptPath: s.FilePath, ScriptKind: s.Kind,
				CLITool: tool, Command: commandString, StepIndex: index,
				Message: fmt.Sprintf("invalid when guard %q: %v", step.When, err),
				Cause:   err,
			}
		}
		if !run {
			stepLog.Info("Skipping step: when guard is false", zap.String("when", step.When))
			return nil
		}
	}

	if r.DryRun {
		stepLog.Info("Dry run - would execute CLI command", zap.String("command", commandString))
		return nil
	}

	resolved, err := r.resolveTool(step.CLI, tool)
	if err != nil {
		stepLog.Error("CLI tool not available", zap.String("cli", step.CLI), zap.Error(err))
		return &ExecutionError{
			ScriptName: s.Name, ScriptPath: s.FilePath, ScriptKind: s.Kind,
			CLITool: tool, Command: commandString, StepIndex: index,
			Message: err.Error(),
			Cause:   err,
		}
	}

	argv := append([]string{resolved}, strings.Fields(step.Command)...)
	argv = append(argv, step.Args...)

	stepLog.Info("Executing CLI command", zap.String("command", commandString))

	result, err := r.executor().Execute(ctx, argv, step.WorkingDir, composeEnv(r.Env, step.Env))
	if err != nil {
		return r.spawnError(s, step, tool, commandString, index, stepLog, err)
	}

	for _, line := range outputLines(result.Stdout) {
		stepLog.Debug("CLI stdout", zap.String("output", line))
	}
	for _, line := range outputLines(result.Stderr) {
		stepLog.Debug("CLI stderr", zap.String("output", line))
	}

	if result.ExitCode != 0 {
		msg := strings.TrimSpace(result.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("Command exited with code %d", result.ExitCode)
		}
		stepLog.Error("CLI command failed",
			zap.Int("exit_code", result.ExitCode),
			zap.String("stderr", truncate(result.Stderr, stderrLogLimit)),
		)
		return &ExecutionError{
			ScriptName: s.Name, ScriptPath: s.FilePath, ScriptKind: s.Kind,
			CLITool: tool, Command: commandString, ExitCode: result.ExitCode,
			Stdout: result.Stdout, Stderr: result.Stderr, StepIndex: index,
			Message: msg,
		}
	}

	stepLog.Info("CLI command completed successfully", zap.Int("exit_code", 0))
	return nil
}

// resolveTool maps the step's cli value to the executable to spawn. A
// value with a path separator is used verbatim once the path exists; a
// bare name is searched on PATH.
func (r *Runner) resolveTool(cli, tool string) (string, error) {
	if strings.ContainsAny(cli, `/\`) {
		if _, err := os.Stat(cli); err != nil {
			return "", fmt.Errorf("CLI tool path %q does not exist", cli)
		}
		return cli, nil
	}
	path, err := r.lookPath(tool)
	if err != nil {
		return "", fmt.Errorf("CLI tool %q not found in PATH", tool)
	}
	return path, nil
}

func (r *Runner) spawnError(s *script.Script, step Step, tool, commandString string, index int, log *zap.Logger, err error) error {
	var msg string
	switch {
	case errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound):
		log.Error("CLI tool not found", zap.String("cli", step.CLI))
		msg = fmt.Sprintf("CLI tool '%s' not found. Is it installed and in PATH?", tool)
	case errors.Is(err, fs.ErrPermission):
		log.Error("Permission denied executing CLI tool", zap.String("cli", step.CLI))
		msg = fmt.Sprintf("Permission denied executing '%s'", tool)
	default:
		log.Error("Unexpected error executing CLI command", zap.Error(err))
		msg = fmt.Sprintf("Unexpected error: %v", err)
	}
	return &ExecutionError{
		ScriptName: s.Name, ScriptPath: s.FilePath, ScriptKind: s.Kind,
		CLITool: tool, Command: commandString, StepIndex: index,
		Message: msg,
		Cause:   err,
	}
}

// evalWhen evaluates a step guard against the config variable scope.
func (r *Runner) evalWhen(guard string) (bool, error) {
	env := r.Vars
	if env == nil {
		env = map[string]any{}
	}
	program, err := expr.Compile(guard, expr.Env(env), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("guard did not evaluate to a boolean")
	}
	return b, nil
}

// composeEnv overlays step-local variables on the parent snapshot.
func composeEnv(parent []string, overlay StringMap) []string {
	if len(overlay) == 0 {
		return parent
	}
	env := make([]string, len(parent), len(parent)+len(overlay))
	copy(env, parent)
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}

func outputLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

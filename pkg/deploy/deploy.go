// Package deploy implements the migration deploy engine.
//
// One run walks the repository, renders every script's canonical form,
// decides skip or apply against the change history, and dispatches the
// executable form either to the warehouse session (SQL) or to the CLI
// step runner. Scripts execute strictly sequentially; a script's history
// row is written before the next script starts.
package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ormasoftchile/shift/pkg/clirunner"
	"github.com/ormasoftchile/shift/pkg/config"
	"github.com/ormasoftchile/shift/pkg/render"
	"github.com/ormasoftchile/shift/pkg/script"
	"github.com/ormasoftchile/shift/pkg/session"
	"github.com/ormasoftchile/shift/pkg/version"
)

// Checksum returns the hex SHA-224 digest of a canonical form. This is
// the identity recorded in the change history; it must match digests
// produced by every other engine version for the same canonical bytes.
func Checksum(content string) string {
	sum := sha256.Sum224([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Result summarises one deploy run.
type Result struct {
	Applied       int
	Skipped       int
	Failed        int
	FailedScripts []string
}

// Engine executes deploy runs. Config, Session, and Logger are
// required; Exec and LookPath are test seams for the CLI dispatch path
// and default to os/exec behaviour when nil.
type Engine struct {
	Config   *config.DeployConfig
	Session  session.Session
	Logger   *zap.Logger
	Exec     clirunner.CommandExecutor
	LookPath func(name string) (string, error)
}

// Run executes a full deploy. The returned Result is non-nil whenever
// the run reached the script loop, including runs that end in error.
func Run(ctx context.Context, cfg *config.DeployConfig, sess session.Session, logger *zap.Logger) (*Result, error) {
	e := &Engine{Config: cfg, Session: sess, Logger: logger}
	return e.Run(ctx)
}

// Run executes one deploy pass over the repository.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	cfg, sess, logger := e.Config, e.Session, e.Logger
	details := sess.Details()
	logger.Info("Starting deploy",
		zap.Bool("dry_run", cfg.DryRun),
		zap.Bool("out_of_order", cfg.OutOfOrder),
		zap.String("account", details.Account),
		zap.String("default_role", details.Role),
		zap.String("default_warehouse", details.Warehouse),
		zap.String("default_database", details.Database),
		zap.String("default_schema", details.Schema),
		zap.String("change_history_table", details.ChangeHistoryTable),
	)

	meta, err := sess.GetScriptMetadata(cfg.CreateChangeHistoryTable, cfg.DryRun)
	if err != nil {
		return nil, fmt.Errorf("read change history: %w", err)
	}
	maxPublishedKey := version.Key(meta.MaxPublishedVersion)

	scripts, err := script.Collect(cfg.RootFolder, cfg.VersionNumberValidationRegex)
	if err != nil {
		return nil, err
	}
	ordered := executionOrder(scripts)

	renderer := render.New(cfg.RootFolder, cfg.ModulesFolder, cfg.ConfigVars)
	envSnapshot := os.Environ()

	res := &Result{}
	for _, name := range ordered {
		s := scripts[name]
		scriptLog := logger.With(
			zap.String("script_name", s.Name),
			zap.String("script_version", versionOrNA(s)),
		)

		relpath, err := renderer.Relpath(s.FilePath)
		if err != nil {
			return res, err
		}
		content, err := renderer.Render(relpath, s.Format)
		if err != nil {
			return res, err
		}

		checksum := Checksum(content)

		if s.Kind == script.KindVersioned {
			if record, ok := meta.Versioned[s.Name]; ok {
				scriptLog.Debug("Script has already been applied",
					zap.String("max_published_version", meta.MaxPublishedVersion))
				if record.Checksum != checksum {
					scriptLog.Info("Script checksum has drifted since application",
						zap.String("applied_checksum", record.Checksum),
						zap.String("current_checksum", checksum))
				}
				res.Skipped++
				continue
			}

			if !cfg.OutOfOrder &&
				len(maxPublishedKey) > 0 &&
				version.Compare(version.Key(s.Version), maxPublishedKey) <= 0 {
				if cfg.RaiseExceptionOnIgnoredVersionedScript {
					return res, fmt.Errorf("Versioned script will never be applied: %s\nVersion number is less than the max version number: %s",
						s.Name, meta.MaxPublishedVersion)
				}
				scriptLog.Debug("Skipping versioned script because it's older than the most recently applied change",
					zap.String("max_published_version", meta.MaxPublishedVersion))
				res.Skipped++
				continue
			}
		}

		if s.Kind == script.KindRepeatable {
			last := ""
			if prev, ok := meta.RepeatableChecksums[s.Name]; ok && len(prev) > 0 {
				last = prev[0]
			}
			if last == checksum {
				scriptLog.Debug("Skipping change script because there is no change since the last execution")
				res.Skipped++
				continue
			}
		}

		shouldContinue := (s.Kind == script.KindVersioned && cfg.ContinueVersionedOnError) ||
			(s.Kind == script.KindRepeatable && cfg.ContinueRepeatableOnError) ||
			(s.Kind == script.KindAlways && cfg.ContinueAlwaysOnError)

		isOutOfOrder := s.Kind == script.KindVersioned &&
			cfg.OutOfOrder &&
			len(maxPublishedKey) > 0 &&
			version.Compare(version.Key(s.Version), maxPublishedKey) <= 0

		err = e.dispatch(ctx, envSnapshot, s, content, checksum, isOutOfOrder, scriptLog)
		if err != nil {
			res.Failed++
			res.FailedScripts = append(res.FailedScripts, s.Name)
			scriptLog.Error("Failed to apply change script",
				zap.String("script_type", s.TypeDesc()),
				zap.Error(err))
			if !shouldContinue {
				return res, err
			}
			continue
		}
		res.Applied++
	}

	if res.Failed > 0 {
		logger.Error("Completed with errors",
			zap.Int("scripts_applied", res.Applied),
			zap.Int("scripts_skipped", res.Skipped),
			zap.Int("scripts_failed", res.Failed),
			zap.Strings("failed_scripts", res.FailedScripts),
		)
		return res, fmt.Errorf("%d change script(s) failed: %s", res.Failed, strings.Join(res.FailedScripts, ", "))
	}

	logger.Info("Completed successfully",
		zap.Int("scripts_applied", res.Applied),
		zap.Int("scripts_skipped", res.Skipped),
	)
	return res, nil
}

// dispatch routes the executable form to the session (SQL) or the CLI
// runner, and keeps the change history current for the CLI path.
func (e *Engine) dispatch(ctx context.Context, envSnapshot []string, s *script.Script, content, checksum string, outOfOrder bool, scriptLog *zap.Logger) error {
	cfg, sess := e.Config, e.Session
	// Executable fix-ups happen after checksum computation so the
	// recorded checksum always reflects the canonical form.
	executable := render.PrepareForExecution(content, s.Format)

	if s.Format == script.FormatCLI {
		runner := &clirunner.Runner{
			RootFolder: cfg.RootFolder,
			DryRun:     cfg.DryRun,
			Logger:     scriptLog,
			Vars:       cfg.ConfigVars,
			Env:        envSnapshot,
			Exec:       e.Exec,
			LookPath:   e.LookPath,
		}
		seconds, err := runner.RunScript(ctx, s, executable)
		if err != nil {
			var execErr *clirunner.ExecutionError
			if errors.As(err, &execErr) && !cfg.DryRun {
				if recErr := sess.RecordChangeHistory(s, checksum, seconds, session.StatusFailed, scriptLog, err.Error()); recErr != nil {
					scriptLog.Error("Failed to record change history", zap.Error(recErr))
				}
			}
			return err
		}
		if !cfg.DryRun {
			return sess.RecordChangeHistory(s, checksum, seconds, session.StatusSuccess, scriptLog, "")
		}
		return nil
	}

	return sess.ApplyChangeScript(s, executable, checksum, cfg.DryRun, scriptLog, outOfOrder)
}

// executionOrder sorts lowercased script names: versioned first, then
// repeatable, then always, each group in alphanumeric order.
func executionOrder(scripts map[string]*script.Script) []string {
	byKind := map[script.Kind][]string{}
	for name, s := range scripts {
		byKind[s.Kind] = append(byKind[s.Kind], name)
	}
	var ordered []string
	for _, kind := range []script.Kind{script.KindVersioned, script.KindRepeatable, script.KindAlways} {
		names := byKind[kind]
		sort.Strings(names)
		ordered = append(ordered, version.SortedAlphanumeric(names)...)
	}
	return ordered
}

func versionOrNA(s *script.Script) string {
	if s.Kind == script.KindVersioned {
		return s.Version
	}
	return "N/A"
}

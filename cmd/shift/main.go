// Package main provides the shift CLI entrypoint. Four verbs:
//
//	shift deploy              run the migration deploy engine
//	shift render <script>     print a script's canonical form
//	shift validate <file>     validate a .cli.yml step document
//	shift schema              export the .cli.yml JSON Schema
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ormasoftchile/shift/pkg/clirunner"
	"github.com/ormasoftchile/shift/pkg/config"
	"github.com/ormasoftchile/shift/pkg/deploy"
	"github.com/ormasoftchile/shift/pkg/render"
	"github.com/ormasoftchile/shift/pkg/script"
	"github.com/ormasoftchile/shift/pkg/session"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath string
	verbose    bool
	logger     *zap.Logger
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "shift",
	Short:        "Schema-migration deploy engine",
	Version:      fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "shift-config.yml", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	deployCmd.Flags().Bool("out-of-order", false, "allow applying versioned scripts older than the max published version")
	deployCmd.Flags().Bool("dry-run", false, "log decisions without executing anything")
	rootCmd.AddCommand(deployCmd, renderCmd, validateCmd, schemaCmd)
}

// --- deploy ---

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Discover, render, and apply migration scripts",
	Args:  cobra.NoArgs,
	RunE:  runDeploy,
}

func runDeploy(cmd *cobra.Command, args []string) error {
	file, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Flag absent means "not set" so the environment and config file
	// keep their say.
	var flagOutOfOrder *bool
	if cmd.Flags().Changed("out-of-order") {
		v, _ := cmd.Flags().GetBool("out-of-order")
		flagOutOfOrder = &v
	}
	cfg, err := file.Finalize(flagOutOfOrder)
	if err != nil {
		return err
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cfg.DryRun = true
	}

	sess, err := openSession(cfg)
	if err != nil {
		return err
	}

	res, err := deploy.Run(cmd.Context(), cfg, sess, logger)
	printSummary(res, err)
	return err
}

// openSession resolves the warehouse session. The open-source build
// ships no warehouse driver; dry runs use an offline session so the
// decision engine can be exercised without credentials.
func openSession(cfg *config.DeployConfig) (session.Session, error) {
	if cfg.DryRun {
		return offlineSession{}, nil
	}
	return nil, errors.New("no warehouse session configured; use --dry-run to preview decisions")
}

// offlineSession satisfies session.Session with empty history and
// refuses writes. Only reachable under dry-run, which never writes.
type offlineSession struct{}

func (offlineSession) GetScriptMetadata(create, dryRun bool) (*session.Metadata, error) {
	return &session.Metadata{
		Versioned:           map[string]session.VersionedRecord{},
		RepeatableChecksums: map[string][]string{},
	}, nil
}

func (offlineSession) ApplyChangeScript(s *script.Script, content, checksum string, dryRun bool, logger *zap.Logger, outOfOrder bool) error {
	if !dryRun {
		return errors.New("offline session cannot execute SQL")
	}
	logger.Info("Dry run - would execute SQL script", zap.String("script_name", s.Name))
	return nil
}

func (offlineSession) RecordChangeHistory(s *script.Script, checksum string, executionTime int, status session.Status, logger *zap.Logger, errorMessage string) error {
	return errors.New("offline session cannot write change history")
}

func (offlineSession) Details() session.Details {
	return session.Details{ChangeHistoryTable: "(offline)"}
}

func printSummary(res *deploy.Result, err error) {
	if res == nil {
		return
	}
	counts := dimStyle.Render(fmt.Sprintf("applied %d · skipped %d · failed %d", res.Applied, res.Skipped, res.Failed))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", failStyle.Render("✗ deploy failed"), counts)
		if len(res.FailedScripts) > 0 {
			fmt.Fprintf(os.Stderr, "  failed: %s\n", strings.Join(res.FailedScripts, ", "))
		}
		return
	}
	fmt.Printf("%s %s\n", successStyle.Render("✓ deploy complete"), counts)
}

// --- render ---

var renderCmd = &cobra.Command{
	Use:   "render [script]",
	Short: "Print the canonical form of a migration script",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	file, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg, err := file.Finalize(nil)
	if err != nil {
		return err
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	s, err := script.Classify(path, cfg.VersionNumberValidationRegex)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("%s does not match any migration script naming convention", args[0])
	}

	r := render.New(cfg.RootFolder, cfg.ModulesFolder, cfg.ConfigVars)
	rel, err := r.Relpath(path)
	if err != nil {
		return err
	}
	content, err := r.Render(rel, s.Format)
	if err != nil {
		return err
	}
	fmt.Println(content)
	return nil
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [file.cli.yml]",
	Short: "Validate a CLI step document against its schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	steps, err := clirunner.ParseScript(string(data), filepath.Dir(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", successStyle.Render("✓ valid"), dimStyle.Render(fmt.Sprintf("%d step(s)", len(steps))))
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export the CLI step document JSON Schema (Draft 2020-12)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := clirunner.GenerateStepSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhd2106/mongo-safe/internal/reporting"
	"github.com/nhd2106/mongo-safe/internal/rules"
	"github.com/nhd2106/mongo-safe/internal/rulesdsl"
	"github.com/nhd2106/mongo-safe/internal/shared"
	"github.com/nhd2106/mongo-safe/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
)

// exitError carries a process exit code without printing anything.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

// app is the state shared by every subcommand, filled in by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	dbPath     string
	logFormat  string
	logLevel   string
	noColor    bool

	cfg shared.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "mongo-safe",
		Short: "Static checks for unsafe MongoDB query code",
		Long: `mongo-safe scans application source for MongoDB query patterns that lead
to injection, data exposure, weak authentication, denial of service or
unhandled errors, and explains how to fix each one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/mongo-safe/config.yaml)")
	pf.StringVar(&a.dbPath, "db", "", "SQLite database path (overrides database.dsn)")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text|json")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")
	pf.BoolVar(&a.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newScanCmd(a),
		newRulesCmd(a),
		newReportCmd(a),
		newDiffCmd(a),
		newDetailCmd(a),
		newBrowseCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newUserCmd(a),
		newWaiverCmd(a),
		newAuditCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := shared.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.DSN = a.dbPath
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	reporting.ToolVersion = version

	log, err := shared.InitLogger(cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.log = log.With(zap.String("cmd", cmd.Name()))

	if a.noColor || !reporting.ColorTerminal(os.Stdout) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	return nil
}

// color reports whether rich terminal output is wanted.
func (a *app) color() bool {
	return !a.noColor && reporting.ColorTerminal(os.Stdout)
}

func (a *app) openDB() (*storage.DB, error) {
	db, err := storage.OpenSQLite(a.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.CreateSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// catalog is the built-in catalog extended with packs, in order.
func (a *app) catalog(packs []string) (*rules.Catalog, error) {
	if len(packs) == 0 {
		packs = a.cfg.Analysis.RulePacks
	}
	return rulesdsl.LoadPacks(rules.Builtin(), packs)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mongo-safe %s (commit %s)\n", version, commit)
			fmt.Fprintf(out, "  built-in rules: %d\n", rules.Builtin().Len())
		},
	}
}

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/reporting"
	"github.com/nhd2106/mongo-safe/internal/rules"
	"github.com/nhd2106/mongo-safe/internal/runner"
	"github.com/nhd2106/mongo-safe/internal/sources"
	"github.com/nhd2106/mongo-safe/internal/storage"
)

var nowFunc = time.Now

type scanFlags struct {
	out       string
	formats   []string
	threshold string
	disable   []string
	packs     []string
	workers   int
	maxBytes  int64
	failOn    string
	sourceID  string
	noSave    bool
	noReports bool
	quiet     bool
}

func newScanCmd(a *app) *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan [path|-]",
		Short: "Scan a file, a directory or stdin",
		Long: `Scan walks the given path (default: analysis.sources from config) and runs
every enabled rule over every line. Use "-" to read a single document from
stdin; --source-id names it in findings.

Exit status is 1 when --fail-on is set and a finding at or above that
severity remains after waivers.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ""
			if len(args) == 1 {
				root = args[0]
			} else if len(a.cfg.Analysis.Sources) > 0 {
				root = a.cfg.Analysis.Sources[0]
			}
			if root == "" {
				return fmt.Errorf("scan: no path given and analysis.sources is empty")
			}
			run, err := a.scan(cmd, root, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !f.quiet {
				printFindings(out, run.Findings)
			}
			printSummary(out, &run)
			return checkFailOn(run.Findings, f.failOn)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.out, "out", "o", "", "report directory (default reporting.out_dir)")
	fl.StringSliceVarP(&f.formats, "format", "f", nil, "report formats: json,html,sarif,checkstyle (default reporting.formats)")
	fl.StringVar(&f.threshold, "threshold", "", "lowest severity to report: low|medium|high")
	fl.StringSliceVar(&f.disable, "disable", nil, "rule IDs to skip")
	fl.StringSliceVar(&f.packs, "rules", nil, "extra rule packs (YAML or TOML)")
	fl.IntVar(&f.workers, "workers", 0, "parallel scanners (default analysis.workers)")
	fl.Int64Var(&f.maxBytes, "max-bytes", 0, "skip files larger than this (default analysis.max_file_bytes)")
	fl.StringVar(&f.failOn, "fail-on", "", "exit 1 when a finding at or above this severity remains")
	fl.StringVar(&f.sourceID, "source-id", "stdin", "source name for stdin input")
	fl.BoolVar(&f.noSave, "no-save", false, "do not store the run or apply stored waivers")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "print only the summary")
	return cmd
}

// scan runs one analysis with flag values layered over config.
func (a *app) scan(cmd *cobra.Command, root string, f scanFlags) (ir.Run, error) {
	cfg := a.cfg.Analysis
	threshold := cfg.SeverityThreshold
	if f.threshold != "" {
		threshold = f.threshold
	}
	if _, ok := rules.ParseSeverity(threshold); !ok {
		return ir.Run{}, fmt.Errorf("invalid threshold %q", threshold)
	}
	if f.failOn != "" {
		if _, ok := rules.ParseSeverity(f.failOn); !ok {
			return ir.Run{}, fmt.Errorf("invalid --fail-on %q", f.failOn)
		}
	}
	disabled := append(append([]string{}, cfg.DisabledRules...), f.disable...)
	packs := f.packs
	if len(packs) == 0 {
		packs = cfg.RulePacks
	}
	cat, err := a.catalog(packs)
	if err != nil {
		return ir.Run{}, err
	}

	var docs []sources.Document
	if root == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return ir.Run{}, fmt.Errorf("read stdin: %w", err)
		}
		docs = []sources.Document{{Path: f.sourceID, Text: sources.Normalize(string(b))}}
	} else {
		w := &sources.Walker{FS: afero.NewOsFs(), Extensions: cfg.Extensions, Exclude: cfg.Exclude, MaxBytes: cfg.MaxFileBytes}
		if f.maxBytes > 0 {
			w.MaxBytes = f.maxBytes
		}
		var warnings []string
		docs, warnings, err = w.Walk(root)
		if err != nil {
			return ir.Run{}, err
		}
		for _, msg := range warnings {
			a.log.Warn("source skipped", zap.String("reason", msg))
		}
	}

	var db *storage.DB
	var waivers []storage.Waiver
	if !f.noSave {
		db, err = a.openDB()
		if err != nil {
			return ir.Run{}, err
		}
		defer db.Close()
		waivers, err = db.ListWaivers(true)
		if err != nil {
			return ir.Run{}, err
		}
	}

	workers := cfg.Workers
	if f.workers > 0 {
		workers = f.workers
	}
	run := runner.Analyze(cmd.Context(), docs, runner.Options{
		Catalog:  cat,
		Settings: rules.NewSettings(threshold, disabled),
		Workers:  workers,
		Waivers:  waivers,
		Source:   root,
		Packs:    packs,
		Logger:   a.log,
	})

	if db != nil {
		if err := db.SaveRun(&run); err != nil {
			return ir.Run{}, err
		}
		if err := db.RecordRun(currentUser(), &run); err != nil {
			a.log.Warn("audit run", zap.String("run", run.ID), zap.Error(err))
		}
	}

	outDir := a.cfg.Reporting.OutDir
	if f.out != "" {
		outDir = f.out
	}
	formats := a.cfg.Reporting.Formats
	if len(f.formats) > 0 {
		formats = f.formats
	}
	if !f.noReports && outDir != "" && len(formats) > 0 {
		paths, err := reporting.Write(&run, outDir, formats)
		if err != nil {
			return ir.Run{}, err
		}
		for _, p := range paths {
			a.log.Info("report written", zap.String("path", p))
		}
	}
	return run, nil
}

// checkFailOn returns exit code 1 when any finding reaches failOn.
func checkFailOn(fs []ir.Finding, failOn string) error {
	if failOn == "" {
		return nil
	}
	min, _ := rules.ParseSeverity(failOn)
	for _, f := range fs {
		if sev, _ := rules.ParseSeverity(f.Severity); sev.Rank() >= min.Rank() {
			return &exitError{code: 1}
		}
	}
	return nil
}

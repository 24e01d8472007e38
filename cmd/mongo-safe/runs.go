package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/reporting"
	"github.com/nhd2106/mongo-safe/internal/storage"
	"github.com/nhd2106/mongo-safe/internal/tui"
)

// loadRun loads id, or the latest run when id is empty.
func loadRun(db *storage.DB, id string) (ir.Run, error) {
	if id == "" {
		latest, err := db.LatestRunID()
		if err != nil {
			return ir.Run{}, fmt.Errorf("no stored runs: %w", err)
		}
		id = latest
	}
	return db.LoadRun(id)
}

func newReportCmd(a *app) *cobra.Command {
	var runID, out string
	var formats []string
	var list bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Re-render reports for a stored run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if list {
				rows, err := db.ListRuns(50, 0)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), runsTable(rows))
				return nil
			}

			run, err := loadRun(db, runID)
			if err != nil {
				return err
			}
			if out == "" {
				out = a.cfg.Reporting.OutDir
			}
			if len(formats) == 0 {
				formats = a.cfg.Reporting.Formats
			}
			paths, err := reporting.Write(&run, out, formats)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run ID (default latest)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "report directory (default reporting.out_dir)")
	cmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "report formats (default reporting.formats)")
	cmd.Flags().BoolVar(&list, "list", false, "list stored runs instead")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	var base, head, out string
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare the findings of two stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if base == "" {
				return fmt.Errorf("diff: --base is required")
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if ok, err := db.HasRun(base); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("unknown base run %q", base)
			}
			b, err := db.LoadRun(base)
			if err != nil {
				return err
			}
			h, err := loadRun(db, head)
			if err != nil {
				return err
			}
			d := reporting.Diff(&b, &h)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s → %s: %d new, %d removed, %d changed\n",
				b.ID, h.ID, d.Summary.NewCount, d.Summary.RemovedCount, d.Summary.ChangedCount)
			for _, f := range d.New {
				fmt.Fprintf(w, "  + %s %s:%d %s\n", f.RuleID, f.Source, f.Line, f.Severity)
			}
			for _, f := range d.Removed {
				fmt.Fprintf(w, "  - %s %s:%d %s\n", f.RuleID, f.Source, f.Line, f.Severity)
			}
			if out != "" {
				p, err := reporting.WriteDiffJSON(out, &b, &h)
				if err != nil {
					return err
				}
				a.log.Info("diff written", zap.String("path", p))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "base run ID")
	cmd.Flags().StringVar(&head, "head", "", "head run ID (default latest)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the diff as JSON into this directory")
	return cmd
}

func newDetailCmd(a *app) *cobra.Command {
	var runID, findingID string
	var plain bool
	cmd := &cobra.Command{
		Use:   "detail",
		Short: "Explain one stored finding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if findingID == "" {
				return fmt.Errorf("detail: --finding is required")
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			if runID == "" {
				if runID, err = db.LatestRunID(); err != nil {
					return fmt.Errorf("no stored runs: %w", err)
				}
			}
			f, err := db.GetFinding(runID, findingID)
			if err != nil {
				return err
			}
			cat, err := a.catalog(nil)
			if err != nil {
				return err
			}
			r, _ := cat.Get(f.RuleID)
			md := reporting.DetailMarkdown(f, r)
			fmt.Fprint(cmd.OutOrStdout(), reporting.RenderDetail(md, reporting.DetailOptions{Plain: plain || !a.color()}))
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run ID (default latest)")
	cmd.Flags().StringVar(&findingID, "finding", "", "finding ID")
	cmd.Flags().BoolVar(&plain, "plain", false, "print raw markdown")
	return cmd
}

func newBrowseCmd(a *app) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "browse [path]",
		Short: "Browse findings interactively",
		Long: `Browse opens a terminal UI over the findings of a fresh scan of path, or of
a stored run (--run, default latest) when no path is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run ir.Run
			if len(args) == 1 {
				r, err := a.scan(cmd, args[0], scanFlags{noSave: true, noReports: true})
				if err != nil {
					return err
				}
				run = r
			} else {
				db, err := a.openDB()
				if err != nil {
					return err
				}
				r, err := loadRun(db, runID)
				db.Close()
				if err != nil {
					return err
				}
				run = r
			}
			if !a.color() {
				printFindings(cmd.OutOrStdout(), run.Findings)
				printSummary(cmd.OutOrStdout(), &run)
				return nil
			}
			cat, err := a.catalog(run.Context.RulePacks)
			if err != nil {
				return err
			}
			return tui.Run(run.Findings, tui.Options{Title: "mongo-safe " + run.ID, Catalog: cat})
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "stored run ID (default latest)")
	return cmd
}

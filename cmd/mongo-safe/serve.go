package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhd2106/mongo-safe/internal/api"
	"github.com/nhd2106/mongo-safe/internal/diagnostics"
	"github.com/nhd2106/mongo-safe/internal/engine"
	"github.com/nhd2106/mongo-safe/internal/present"
	"github.com/nhd2106/mongo-safe/internal/reporting"
	"github.com/nhd2106/mongo-safe/internal/rules"
	"github.com/nhd2106/mongo-safe/internal/sources"
	"github.com/nhd2106/mongo-safe/internal/watch"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			cat, err := a.catalog(nil)
			if err != nil {
				return err
			}
			s := &api.Server{
				DB:              db,
				UserStore:       db,
				Catalog:         cat,
				Settings:        rules.NewSettings(a.cfg.Analysis.SeverityThreshold, a.cfg.Analysis.DisabledRules),
				Logger:          a.log,
				AllowedOrigins:  a.cfg.Server.AllowedOrigins,
				SessionDuration: a.cfg.Server.SessionTTL,
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           s.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			a.log.Info("api listening", zap.String("addr", addr), zap.Int("rules", cat.Len()))

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.log.Info("api shutting down")
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var debounce time.Duration
	var explain bool
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Rescan files as they change and print their diagnostics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			} else if len(a.cfg.Analysis.Sources) > 0 {
				root = a.cfg.Analysis.Sources[0]
			}
			cat, err := a.catalog(nil)
			if err != nil {
				return err
			}
			settings := rules.NewSettings(a.cfg.Analysis.SeverityThreshold, a.cfg.Analysis.DisabledRules)
			col := diagnostics.NewCollection("mongo-safe")
			defer col.Close()

			updates := make(chan watch.Update, 64)
			w := &watch.Watcher{
				Root:       filepath.Clean(root),
				Walker:     &sources.Walker{FS: afero.NewOsFs(), Extensions: a.cfg.Analysis.Extensions, Exclude: a.cfg.Analysis.Exclude, MaxBytes: a.cfg.Analysis.MaxFileBytes},
				Rules:      cat.Select(settings),
				Collection: col,
				Debounce:   debounce,
				Logger:     a.log,
				Updates:    updates,
			}

			done := make(chan error, 1)
			go func() {
				done <- w.Run(cmd.Context())
				close(updates)
			}()
			var panel *diagnostics.Panel
			if explain {
				plain := !a.color()
				panel = diagnostics.NewPanel(func(f engine.Finding) string {
					return reporting.RenderDetail(reporting.RuleMarkdown(f.Rule), reporting.DetailOptions{Plain: plain})
				})
				defer panel.Close()
			}
			out := cmd.OutOrStdout()
			for u := range updates {
				printUpdate(out, col, u)
				if panel != nil {
					explainFirst(out, col, panel, u)
				}
			}
			return <-done
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a rescan")
	cmd.Flags().BoolVar(&explain, "explain", false, "describe the most severe finding of each update")
	return cmd
}

func printUpdate(w io.Writer, col *diagnostics.Collection, u watch.Update) {
	if u.Removed {
		fmt.Fprintf(w, "%s removed\n", u.Source)
		return
	}
	fmt.Fprintf(w, "%s v%d: %d findings\n", styleHeader.Render(u.Source), u.Version, u.Findings)
	for _, d := range col.Diagnostics(u.Source) {
		sev := severityFor(d.Level)
		fmt.Fprintf(w, "  %d:%d-%d  %s  %s  %s\n",
			d.Range.StartLine+1, d.Range.StartCol+1, d.Range.EndCol+1,
			present.Style(sev).Render(d.Level.String()), d.Code, d.Message)
	}
}

// explainFirst shows the most severe finding of u in the panel, replacing
// whatever it held. The panel is left alone when u has nothing to show.
func explainFirst(w io.Writer, col *diagnostics.Collection, panel *diagnostics.Panel, u watch.Update) {
	if u.Removed {
		return
	}
	var best *diagnostics.Diagnostic
	diags := col.Diagnostics(u.Source)
	for i := range diags {
		if best == nil || diags[i].Level > best.Level {
			best = &diags[i]
		}
	}
	if best == nil {
		return
	}
	f, ok := col.Lookup(diagnostics.Key{SourceID: u.Source, Line: best.Range.StartLine + 1, RuleID: best.Code})
	if !ok {
		return
	}
	fmt.Fprintln(w, panel.Show(f))
}

func severityFor(l diagnostics.Level) string {
	switch l {
	case diagnostics.LevelError:
		return "high"
	case diagnostics.LevelWarning:
		return "medium"
	default:
		return "low"
	}
}

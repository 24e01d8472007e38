package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhd2106/mongo-safe/internal/reporting"
	"github.com/nhd2106/mongo-safe/internal/rules"
	"github.com/nhd2106/mongo-safe/internal/rulesdsl"
)

func newRulesCmd(a *app) *cobra.Command {
	var packs []string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect, export and validate the rule catalog",
	}
	cmd.PersistentFlags().StringSliceVar(&packs, "rules", nil, "extra rule packs (YAML or TOML)")

	var search, severity, category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List rules in catalog order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog(packs)
			if err != nil {
				return err
			}
			var min rules.Severity
			if severity != "" {
				s, ok := rules.ParseSeverity(severity)
				if !ok {
					return fmt.Errorf("invalid severity %q", severity)
				}
				min = s
			}
			var out []*rules.Rule
			for _, r := range cat.Search(search) {
				if min != "" && r.Severity.Rank() < min.Rank() {
					continue
				}
				if category != "" && string(r.Category) != category {
					continue
				}
				out = append(out, r)
			}
			if len(out) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rules match.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), rulesTable(out))
			return nil
		},
	}
	list.Flags().StringVarP(&search, "search", "s", "", "fuzzy filter on id, name and category")
	list.Flags().StringVar(&severity, "severity", "", "lowest severity to list")
	list.Flags().StringVar(&category, "category", "", "only this category")

	var plain bool
	show := &cobra.Command{
		Use:   "show RULE-ID",
		Short: "Describe one rule with examples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog(packs)
			if err != nil {
				return err
			}
			r, ok := cat.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown rule %q", args[0])
			}
			md := reporting.RuleMarkdown(r)
			fmt.Fprint(cmd.OutOrStdout(), reporting.RenderDetail(md, reporting.DetailOptions{Plain: plain || !a.color()}))
			return nil
		},
	}
	show.Flags().BoolVar(&plain, "plain", false, "print raw markdown")

	var format, output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the catalog as a rule pack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog(packs)
			if err != nil {
				return err
			}
			if format != "yaml" && format != "toml" {
				return fmt.Errorf("invalid format %q (yaml|toml)", format)
			}
			b, err := rulesdsl.Export(cat.All(), format)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			return os.WriteFile(output, b, 0o644)
		},
	}
	export.Flags().StringVar(&format, "format", "yaml", "yaml|toml")
	export.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")

	validate := &cobra.Command{
		Use:   "validate PACK...",
		Short: "Check rule packs against the catalog and their own examples",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cat, err := rulesdsl.LoadPacks(rules.Builtin(), args)
			if err != nil {
				var ce *rules.ConfigError
				if errors.As(err, &ce) {
					for _, p := range ce.Problems {
						fmt.Fprintln(out, "  -", p)
					}
				}
				return err
			}
			added := cat.All()[rules.Builtin().Len():]
			bad := 0
			for _, r := range added {
				if r.UnsafeExample != "" && !r.Match(r.UnsafeExample) {
					fmt.Fprintf(out, "%s: unsafe example does not match\n", r.ID)
					bad++
				}
				if r.SafeExample != "" && r.Match(r.SafeExample) {
					fmt.Fprintf(out, "%s: safe example matches\n", r.ID)
					bad++
				}
			}
			if bad > 0 {
				return fmt.Errorf("%d example problems", bad)
			}
			fmt.Fprintln(out, styleOK.Render(fmt.Sprintf("OK: %d rules in %d packs", len(added), len(args))))
			return nil
		},
	}

	cmd.AddCommand(list, show, export, validate)
	return cmd
}

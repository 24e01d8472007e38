package main

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhd2106/mongo-safe/internal/security"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
	}
	var role, password string
	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create an API user",
		Long:  "Create an API user. Without --password the password is read from the first line of stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userRole, err := security.ParseRole(role)
			if err != nil {
				return err
			}
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			id, err := db.CreateUser(args[0], hash, userRole)
			if err != nil {
				return err
			}
			_ = db.LogAudit(currentUser(), "user:create", args[0], map[string]any{"id": id, "role": userRole})
			fmt.Fprintf(cmd.OutOrStdout(), "user %s created (id %d, %s)\n", args[0], id, userRole)
			return nil
		},
	}
	add.Flags().StringVar(&role, "role", security.RoleViewer, "admin|viewer")
	add.Flags().StringVar(&password, "password", "", "password (default: read stdin)")
	cmd.AddCommand(add)
	return cmd
}

func newWaiverCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waiver",
		Short: "Manage finding waivers",
	}

	var ruleID, glob, pattern, reason, expires string
	add := &cobra.Command{
		Use:   "add",
		Short: "Waive matching findings until an expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ruleID == "" || reason == "" {
				return fmt.Errorf("waiver add: --rule and --reason are required")
			}
			cat, err := a.catalog(nil)
			if err != nil {
				return err
			}
			r, ok := cat.Get(ruleID)
			if !ok {
				return fmt.Errorf("unknown rule %q", ruleID)
			}
			exp, err := parseExpiry(expires, nowFunc())
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			by := currentUser()
			id, err := db.CreateWaiver(r.ID, glob, pattern, reason, by, exp)
			if err != nil {
				return err
			}
			_ = db.LogAudit(by, "waiver:create", "", map[string]any{"id": id, "rule": r.ID})
			fmt.Fprintf(cmd.OutOrStdout(), "waiver %d created for %s until %s\n", id, r.ID, exp.Format(time.RFC3339))
			return nil
		},
	}
	add.Flags().StringVar(&ruleID, "rule", "", "rule ID to waive")
	add.Flags().StringVar(&glob, "glob", "", "only sources matching this glob")
	add.Flags().StringVar(&pattern, "pattern", "", "only lines containing this text")
	add.Flags().StringVar(&reason, "reason", "", "why the finding is accepted")
	add.Flags().StringVar(&expires, "expires", "720h", "RFC3339 time or duration from now")

	var active bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List waivers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			ws, err := db.ListWaivers(active)
			if err != nil {
				return err
			}
			if len(ws) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No waivers.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), waiversTable(ws))
			return nil
		},
	}
	list.Flags().BoolVar(&active, "active", false, "only active waivers")

	revoke := &cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke a waiver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid waiver id %q", args[0])
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.RevokeWaiver(id); err != nil {
				return err
			}
			_ = db.LogAudit(currentUser(), "waiver:revoke", "", map[string]any{"id": id})
			fmt.Fprintf(cmd.OutOrStdout(), "waiver %d revoked\n", id)
			return nil
		},
	}

	cmd.AddCommand(add, list, revoke)
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	var runID string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			entries, err := db.ListAudit(runID, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit entries.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), auditTable(entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "only events for this run")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	return cmd
}

// parseExpiry accepts an RFC3339 time or a duration added to now.
func parseExpiry(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		if !t.After(now) {
			return time.Time{}, fmt.Errorf("expiry %s is in the past", s)
		}
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("invalid expiry %q (RFC3339 or positive duration)", s)
	}
	return now.Add(d), nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if s := os.Getenv("USER"); s != "" {
		return s
	}
	return "cli"
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/localnerve/contentdb/internal/database"
	"github.com/spf13/cobra"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the content tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := database.AutoMigrate(c.app.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reap expired leases and trim history to the retention limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := c.app.Sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "locks reaped: %d\nhistory trimmed: %d\n", result.LocksReaped, result.HistoryTrimmed)
			return nil
		},
	}
}

func (c *cli) reapLocksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap-locks",
		Short: "Delete expired editing leases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := c.app.Locks.ReapExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "locks reaped: %d\n", n)
			return nil
		},
	}
}

func (c *cli) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the tables and columns the service owns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrator := c.app.DB.Migrator()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			for _, model := range database.Models() {
				stmt := c.app.DB.Model(model).Statement
				if err := stmt.Parse(model); err != nil {
					return fmt.Errorf("parse model: %w", err)
				}
				table := stmt.Schema.Table

				fmt.Fprintf(w, "\n=== Table: %s ===\n", table)
				if !migrator.HasTable(table) {
					fmt.Fprintln(w, "(missing, run migrate)")
					continue
				}
				columns, err := migrator.ColumnTypes(table)
				if err != nil {
					return fmt.Errorf("columns of %s: %w", table, err)
				}
				for _, col := range columns {
					nullable, _ := col.Nullable()
					primary, _ := col.PrimaryKey()
					flags := []string{}
					if primary {
						flags = append(flags, "pk")
					}
					if !nullable {
						flags = append(flags, "not null")
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", col.Name(), col.DatabaseTypeName(), strings.Join(flags, ","))
				}
			}
			return w.Flush()
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history PAGE_ID",
		Short: "List the retained versions of a page, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := c.app.History.List(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tCHANGE\tBY\tAT\tSUMMARY")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Version, e.ChangeType, e.ChangedBy, e.ChangedAt.UTC().Format(time.RFC3339), e.ChangeSummary)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum versions to list (0 = service default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshots as JSON")
	return cmd
}

func (c *cli) lockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock PAGE_ID",
		Short: "Show the editing lease of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := c.app.Locks.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !status.Locked {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: unlocked\n", status.PageID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: locked by %s (session %s) until %s\n",
				status.PageID, status.LockedBy, status.SessionID, status.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

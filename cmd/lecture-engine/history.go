// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/lecture-engine/internal/history"
	"github.com/pdiddy/lecture-engine/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and export past runs",
	Long: `History reads the local SQLite database where generate and serve record
their runs. Use subcommands to list, show, search, export, or delete runs.`,
}

// --- list subcommand ---

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(store *history.Store) error {
			runs, err := store.List(cmd.Context(), queryFromFlags(cmd, ""))
			if err != nil {
				return err
			}
			return printRuns(cmd, runs)
		})
	},
}

// --- search subcommand ---

var historySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over topics, subtopics and content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(store *history.Store) error {
			runs, err := store.List(cmd.Context(), queryFromFlags(cmd, strings.Join(args, " ")))
			if err != nil {
				return err
			}
			return printRuns(cmd, runs)
		})
	},
}

// --- show subcommand ---

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(store *history.Store) error {
			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			printRecord(out, rec)
			return nil
		})
	},
}

// --- export subcommand ---

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export runs to YAML or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		path, _ := cmd.Flags().GetString("output")
		return withHistory(cmd, func(store *history.Store) error {
			var w io.Writer = cmd.OutOrStdout()
			if path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := store.Export(cmd.Context(), w, format, queryFromFlags(cmd, "")); err != nil {
				return err
			}
			if path != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", path)
			}
			return nil
		})
	},
}

// --- delete subcommand ---

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(store *history.Store) error {
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		})
	},
}

// --- shared helpers ---

func withHistory(cmd *cobra.Command, fn func(*history.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func queryFromFlags(cmd *cobra.Command, text string) history.Query {
	mode, _ := cmd.Flags().GetString("mode")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	return history.Query{
		Text:       text,
		Mode:       types.Mode(mode),
		Status:     history.Status(status),
		MaxResults: limit,
	}
}

func printRuns(cmd *cobra.Command, runs []history.Record) error {
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if runs == nil {
			runs = []history.Record{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-16s  %-10s  %-8s  %-40s  %s\n",
		"ID", "Created", "Mode", "Status", "Title", "Cost")
	fmt.Fprintln(out, strings.Repeat("-", 130))
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-16s  %-10s  %-8s  %-40s  $%.4f\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Mode, r.Status,
			truncate(r.Title(), 40), r.Cost)
	}
	fmt.Fprintf(out, "\n%d runs\n", len(runs))
	return nil
}

func printRecord(w io.Writer, r history.Record) {
	fmt.Fprintf(w, "ID:         %s\n", r.ID)
	fmt.Fprintf(w, "Created:    %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Topic:      %s\n", r.Topic)
	if r.Subtopics != "" {
		fmt.Fprintf(w, "Subtopics:  %s\n", r.Subtopics)
	}
	fmt.Fprintf(w, "Mode:       %s\n", r.Mode)
	fmt.Fprintf(w, "Transcript: %t\n", r.Transcript)
	fmt.Fprintf(w, "Status:     %s\n", r.Status)
	if r.Message != "" {
		fmt.Fprintf(w, "Message:    %s\n", r.Message)
	}
	fmt.Fprintf(w, "Cost:       $%.4f\n", r.Cost)
	printGap(w, r.Gap)
	if r.Content != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimRight(r.Content, "\n"))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	for _, c := range []*cobra.Command{historyListCmd, historySearchCmd, historyExportCmd} {
		c.Flags().String("mode", "", "filter by mode: lecture, pre-read, or assignment")
		c.Flags().String("status", "", "filter by status: complete, error, mismatch, or aborted")
		c.Flags().Int("limit", 0, "maximum results (0 = use default)")
	}
	for _, c := range []*cobra.Command{historyListCmd, historySearchCmd, historyShowCmd} {
		c.Flags().Bool("json", false, "output as JSON")
	}
	historyExportCmd.Flags().String("format", history.FormatYAML, "export format: yaml or json")
	historyExportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyDeleteCmd)

	rootCmd.AddCommand(historyCmd)
}

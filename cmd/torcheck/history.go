package main

import (
	"errors"
	"fmt"

	"github.com/nao1215/torcheck"
	"github.com/nao1215/torcheck/internal/config"
	"github.com/nao1215/torcheck/internal/database"
	"github.com/nao1215/torcheck/internal/model"
	"github.com/nao1215/torcheck/internal/report"
	"github.com/spf13/cobra"
)

const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored check results",
		Long: `History prints results saved by previous check runs, newest first.

Examples:
  # Show the last 20 checks
  torcheck history

  # Show the most recent result of each method as JSON
  torcheck history --latest --json

  # Show every stored check
  torcheck history -n 0`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of results to show (0 shows all)")
	cmd.Flags().Bool("latest", false,
		"Show only the most recent result of each method")
	cmd.Flags().BoolP(config.KeyJSON, "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().Bool(config.KeyMarkdown, false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.Flags().String(config.KeyDBDir, config.XDGDataDir(),
		"Directory of the check history database")
	cmd.Flags().StringP(config.KeyConfig, "c", "",
		"Configuration file path (default: .torcheck in current or home directory)")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewLoader().Load(cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	latest, err := cmd.Flags().GetBool("latest")
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBDir, database.Options{})
	if errors.Is(err, database.ErrDatabaseNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No check history in %s\n", cfg.DBDir)
		return nil
	}
	if err != nil {
		return err
	}
	defer db.Close()

	var results []*model.CheckResult
	if latest {
		for _, m := range []torcheck.Method{torcheck.MethodPage, torcheck.MethodAPI} {
			r, err := db.Latest(cmd.Context(), m.String())
			if errors.Is(err, database.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			results = append(results, r)
		}
	} else {
		results, err = db.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(cmd.OutOrStdout(), report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewHistoryMarkdownWriter(cmd.OutOrStdout())
	default:
		w = report.NewSimpleWriter(cmd.OutOrStdout(), report.WithVerbose(true))
	}
	_, err = w.Write(results)
	return err
}

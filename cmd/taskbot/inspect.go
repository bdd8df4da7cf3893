package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/config"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
)

var kinds = []estimate.Kind{estimate.KindResearch, estimate.KindDraft}

func parseKind(arg string) (estimate.Kind, error) {
	for _, k := range kinds {
		if string(k) == arg {
			return k, nil
		}
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return "", fmt.Errorf("unknown kind %q (want one of %s)", arg, strings.Join(names, ", "))
}

// withHistory opens the configured history log for one command.
func withHistory(ctx context.Context, flags *rootFlags, fn func(*config.Config, estimate.Log) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log, db, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}
	return fn(cfg, log)
}

func newEstimateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <research|mk_draft>",
		Short: "Print the duration and cost forecast for the next run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return withHistory(cmd.Context(), flags, func(cfg *config.Config, log estimate.Log) error {
				f := estimate.NewEstimator(log, cfg.EstimateDefaults()).Estimate(cmd.Context(), kind)
				printForecast(cmd.OutOrStdout(), kind, f)
				return nil
			})
		},
	}
}

func printForecast(w io.Writer, kind estimate.Kind, f estimate.Forecast) {
	fmt.Fprintf(w, "%s: %s, %s (%s)\n", kind, f.TimeText(), f.CostText(), f.Note())
}

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <research|mk_draft>",
		Short: "List recorded runs, newest last",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return withHistory(cmd.Context(), flags, func(_ *config.Config, log estimate.Log) error {
				records, err := log.Load(cmd.Context(), kind)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "no %s runs recorded\n", kind)
					return nil
				}
				if limit > 0 && len(records) > limit {
					records = records[len(records)-limit:]
				}
				fmt.Fprintln(cmd.OutOrStdout(), historyTable(records))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most this many recent runs (0 for all)")
	return cmd
}

func historyTable(records []estimate.Record) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("when", "topic", "elapsed", "USD", "JPY").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	for _, r := range records {
		t.Row(
			r.Timestamp.Local().Format("2006-01-02 15:04"),
			truncate(r.Topic, 40),
			fmt.Sprintf("%.0fs", r.ElapsedSeconds),
			fmt.Sprintf("%.4f", r.CostUSD),
			fmt.Sprintf("%.1f", r.CostJPY),
		)
	}
	return t.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

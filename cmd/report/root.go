/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/HamedShams/sprint-insights/internal/adapters/jira"
	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/HamedShams/sprint-insights/internal/logger"
	"github.com/HamedShams/sprint-insights/internal/report"
	"github.com/HamedShams/sprint-insights/internal/services"
	"github.com/HamedShams/sprint-insights/internal/sprintfilter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// flags override the environment for a single invocation.
type flags struct {
	projects     []string
	boards       []int64
	from, to     string
	states       []string
	sprints      []int64
	includeNoEnd bool
	jql          string
	format       string
	out          string
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:   "sprint-report",
		Short: "Analyze Jira sprints and print a report",
		Long: `sprint-report fetches the scrum boards of the selected Jira projects, keeps
the sprints that pass the filter and prints per-sprint priority and
resolution statistics. Configuration comes from the environment; flags
override it for one run.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cfg, log, f, cmd.OutOrStdout())
		},
	}

	fl := root.Flags()
	fl.StringSliceVarP(&f.projects, "project", "p", nil, "project keys or ids (default JIRA_PROJECTS, else all)")
	fl.Int64SliceVarP(&f.boards, "board", "b", nil, "restrict to these board ids")
	fl.StringVar(&f.from, "from", "", "sprint start range begin, YYYY-MM-DD")
	fl.StringVar(&f.to, "to", "", "sprint start range end (inclusive), YYYY-MM-DD")
	fl.StringSliceVar(&f.states, "state", nil, "sprint states: active, closed, future")
	fl.Int64SliceVar(&f.sprints, "sprint", nil, "analyze exactly these sprint ids")
	fl.BoolVar(&f.includeNoEnd, "include-no-end", false, "keep sprints without an end date when a range is set")
	fl.StringVar(&f.jql, "jql", "", "extra JQL applied to sprint issues")
	fl.StringVarP(&f.format, "format", "f", "text", "output format: text, json or csv")
	fl.StringVarP(&f.out, "out", "o", "", "write the report to this file instead of stdout")

	root.AddCommand(newBoardsCmd())
	return root
}

// setup loads configuration, applies flags and builds a stderr logger.
func setup(cmd *cobra.Command, f flags) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	log := logger.NewWithWriter(cfg, cmd.ErrOrStderr())
	if err != nil {
		return cfg, log, err
	}
	if err := applyFlags(&cfg, f); err != nil {
		return cfg, log, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, log, err
	}
	return cfg, log, nil
}

func applyFlags(cfg *config.Config, f flags) error {
	if len(f.projects) > 0 {
		cfg.JiraProjects = f.projects
	}
	if len(f.boards) > 0 {
		cfg.JiraBoards = f.boards
	}
	if f.jql != "" {
		cfg.JiraIssueJQL = f.jql
	}
	if f.from != "" {
		t, err := config.ParseDate(f.from)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		cfg.Filter.DateRange.Start = t
		cfg.Filter.DateRange.Enabled = true
	}
	if f.to != "" {
		t, err := config.ParseEndDate(f.to)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		cfg.Filter.DateRange.End = t
		cfg.Filter.DateRange.Enabled = true
	}
	if len(f.states) > 0 {
		states, err := sprintfilter.ParseStates(f.states)
		if err != nil {
			return fmt.Errorf("--state: %w", err)
		}
		cfg.Filter.States = states
	}
	if len(f.sprints) > 0 {
		cfg.Filter.SpecificIDs = f.sprints
	}
	if f.includeNoEnd {
		cfg.Filter.IncludeNoEndDate = true
	}
	switch f.format {
	case "text", "json", "csv":
	default:
		return fmt.Errorf("--format %q: want text, json or csv", f.format)
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger, f flags, stdout io.Writer) error {
	client := jira.NewClient(cfg, log)
	analyzer := services.NewAnalyzer(client, log, cfg.WorkersJira)

	rep, err := analyzer.Run(ctx, services.RequestFromConfig(cfg))
	st := client.Stats()
	log.Debug().Int64("requests", st.Requests).Int64("retries", st.Retries).
		Int64("rate_limited", st.RateLimited).Int64("failed", st.Failed).Msg("jira traffic")
	if err != nil {
		return err
	}
	if rep.Partial() {
		log.Warn().Msg("some sections are unavailable; see DATA UNAVAILABLE markers")
	}

	w := stdout
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	if err := write(w, rep, f.format); err != nil {
		return err
	}
	if f.out != "" {
		log.Info().Str("path", f.out).Str("format", f.format).Msg("report written")
	}
	return nil
}

func write(w io.Writer, rep report.Report, format string) error {
	switch format {
	case "json":
		return report.WriteJSON(w, rep)
	case "csv":
		return report.WriteCSV(w, rep)
	}
	_, err := io.WriteString(w, report.RenderText(rep))
	return err
}

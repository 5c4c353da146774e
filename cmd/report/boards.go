/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/HamedShams/sprint-insights/internal/adapters/jira"
	"github.com/HamedShams/sprint-insights/internal/domain"
	"github.com/spf13/cobra"
)

type boardLister interface {
	Projects(ctx context.Context) ([]domain.Project, error)
	Boards(ctx context.Context, projectKeyOrID string) ([]domain.Board, error)
	Board(ctx context.Context, boardID int64) (domain.Board, error)
}

func newBoardsCmd() *cobra.Command {
	var f flags
	var boardID int64
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "List the boards of the selected projects",
		Long:  `Lists every board of the selected projects with its type, or shows a single board with --id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, f)
			if err != nil {
				return err
			}
			client := jira.NewClient(cfg, log)
			if boardID != 0 {
				return printBoard(cmd.Context(), cmd.OutOrStdout(), client, boardID)
			}
			return listBoards(cmd.Context(), cmd.OutOrStdout(), client, cfg.JiraProjects)
		},
	}
	cmd.Flags().StringSliceVarP(&f.projects, "project", "p", nil, "project keys or ids (default JIRA_PROJECTS, else all)")
	cmd.Flags().Int64Var(&boardID, "id", 0, "show one board")
	f.format = "text"
	return cmd
}

func printBoard(ctx context.Context, w io.Writer, c boardLister, id int64) error {
	b, err := c.Board(ctx, id)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Board: %s (ID: %d, %s, project %s)\n", b.Name, b.ID, b.Type, b.ProjectID)
	return err
}

func listBoards(ctx context.Context, w io.Writer, c boardLister, wanted []string) error {
	projects, err := c.Projects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if len(wanted) > 0 && !slices.ContainsFunc(wanted, func(s string) bool { return s == p.ID || strings.EqualFold(s, p.Key) }) {
			continue
		}
		fmt.Fprintf(w, "%s (%s, ID: %s)\n", p.Name, p.Key, p.ID)
		boards, err := c.Boards(ctx, p.ID)
		if err != nil {
			fmt.Fprintf(w, "  DATA UNAVAILABLE: %v\n", err)
			continue
		}
		if len(boards) == 0 {
			fmt.Fprintf(w, "  No boards found for project %s\n", p.Key)
		}
		for _, b := range boards {
			fmt.Fprintf(w, "  Board: %s (ID: %d, %s)\n", b.Name, b.ID, b.Type)
		}
	}
	return nil
}

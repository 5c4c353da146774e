/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/HamedShams/sprint-insights/internal/domain"
	"github.com/HamedShams/sprint-insights/internal/report"
	"github.com/HamedShams/sprint-insights/internal/sprintfilter"
	"github.com/rs/zerolog"
)

// Tracker is the fetch layer as seen by the pipeline.
type Tracker interface {
	Projects(ctx context.Context) ([]domain.Project, error)
	Boards(ctx context.Context, projectKeyOrID string) ([]domain.Board, error)
	Sprints(ctx context.Context, boardID int64) ([]domain.Sprint, error)
	SprintIssues(ctx context.Context, boardID, sprintID int64, jql string) ([]domain.Issue, error)
}

var ErrNothingToAnalyze = errors.New("no project matched the selection")

// Request is one analysis invocation.
type Request struct {
	Projects []string // ids or keys; empty selects every project
	Boards   []int64  // empty selects every scrum board of the selected projects
	Filter   sprintfilter.Config
	JQL      string
}

func RequestFromConfig(cfg config.Config) Request {
	return Request{
		Projects: cfg.JiraProjects,
		Boards:   cfg.JiraBoards,
		Filter:   cfg.Filter,
		JQL:      cfg.JiraIssueJQL,
	}
}

type Analyzer struct {
	tracker Tracker
	log     zerolog.Logger
	workers int
}

func NewAnalyzer(t Tracker, log zerolog.Logger, workers int) *Analyzer {
	if workers <= 0 {
		workers = 6
	}
	return &Analyzer{tracker: t, log: log, workers: workers}
}

// Run fetches, filters and measures, then assembles the report. Only an
// invalid request or a failed project listing is returned as an error; any
// other fetch failure marks its section unavailable and the run continues.
func (a *Analyzer) Run(ctx context.Context, req Request) (report.Report, error) {
	if err := req.Filter.Validate(); err != nil {
		return report.Report{}, fmt.Errorf("sprint filter: %w", err)
	}

	all, err := a.tracker.Projects(ctx)
	if err != nil {
		return report.Report{}, fmt.Errorf("list projects: %w", err)
	}
	projects := a.selectProjects(all, req.Projects)
	if len(projects) == 0 {
		return report.Report{}, ErrNothingToAnalyze
	}
	known := make(map[string]bool, len(all))
	for _, p := range all {
		known[p.ID] = true
	}

	// boards per project
	data := make([]report.ProjectData, len(projects))
	a.parallel(len(projects), func(i int) {
		p := projects[i]
		data[i].Project = p
		boards, err := a.tracker.Boards(ctx, p.ID)
		if err != nil {
			a.log.Error().Err(err).Str("project", p.Key).Msg("boards unavailable")
			data[i].Err = fmt.Errorf("boards: %w", err)
			return
		}
		boards = a.selectBoards(p, boards, req.Boards, known)
		ids := make([]int64, len(boards))
		for j, b := range boards {
			ids[j] = b.ID
			data[i].Boards = append(data[i].Boards, report.BoardData{Board: b})
		}
		data[i].Project = p.WithBoards(ids)
	})
	a.warnMissingBoards(data, req.Boards)

	// sprints per board
	var boardRefs []*report.BoardData
	for i := range data {
		for j := range data[i].Boards {
			boardRefs = append(boardRefs, &data[i].Boards[j])
		}
	}
	filter := sprintfilter.New(req.Filter, a.log)
	a.parallel(len(boardRefs), func(i int) {
		bd := boardRefs[i]
		sprints, err := a.tracker.Sprints(ctx, bd.Board.ID)
		if err != nil {
			a.log.Error().Err(err).Int64("board", bd.Board.ID).Msg("sprints unavailable")
			bd.Err = fmt.Errorf("sprints: %w", err)
			return
		}
		for _, s := range filter.Apply(sprints) {
			bd.Sprints = append(bd.Sprints, report.SprintData{Sprint: s})
		}
	})

	// issues per sprint
	type sprintRef struct {
		boardID int64
		sd      *report.SprintData
	}
	var sprintRefs []sprintRef
	for _, bd := range boardRefs {
		for k := range bd.Sprints {
			sprintRefs = append(sprintRefs, sprintRef{boardID: bd.Board.ID, sd: &bd.Sprints[k]})
		}
	}
	a.parallel(len(sprintRefs), func(i int) {
		ref := sprintRefs[i]
		issues, err := a.tracker.SprintIssues(ctx, ref.boardID, ref.sd.Sprint.ID, req.JQL)
		if err != nil {
			a.log.Error().Err(err).Int64("sprint", ref.sd.Sprint.ID).Msg("sprint issues unavailable")
			ref.sd.Err = fmt.Errorf("issues: %w", err)
			return
		}
		ref.sd.Issues = issues
	})

	if err := ctx.Err(); err != nil {
		return report.Report{}, err
	}
	rep := report.Assemble(report.Input{Filter: req.Filter, Projects: data})
	a.log.Info().Int("projects", len(rep.Projects)).Int("sprints", rep.SprintCount()).
		Int("issues", rep.Totals.IssueCount).Bool("partial", rep.Partial()).Msg("analysis done")
	return rep, nil
}

// parallel runs fn for 0..n-1 on a bounded pool of workers.
func (a *Analyzer) parallel(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(a.workers, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (a *Analyzer) selectProjects(all []domain.Project, wanted []string) []domain.Project {
	if len(wanted) == 0 {
		return slices.Clone(all)
	}
	var out []domain.Project
	for _, w := range wanted {
		found := false
		for _, p := range all {
			if p.ID == w || strings.EqualFold(p.Key, w) {
				if !slices.ContainsFunc(out, func(q domain.Project) bool { return q.ID == p.ID }) {
					out = append(out, p)
				}
				found = true
				break
			}
		}
		if !found {
			a.log.Warn().Str("project", w).Msg("configured project not found")
		}
	}
	return out
}

// selectBoards keeps the scrum boards located in p. A board located in a
// project the tracker did not return is dropped with a warning. A board
// without a location belongs to p, the project its listing was scoped to.
func (a *Analyzer) selectBoards(p domain.Project, boards []domain.Board, wanted []int64, known map[string]bool) []domain.Board {
	var out []domain.Board
	for _, b := range boards {
		if len(wanted) > 0 && !slices.Contains(wanted, b.ID) {
			continue
		}
		if b.Type != "" && !strings.EqualFold(b.Type, "scrum") {
			a.log.Debug().Int64("board", b.ID).Str("type", b.Type).Msg("board skipped: not a scrum board")
			continue
		}
		if b.ProjectID != "" && b.ProjectID != p.ID {
			if !known[b.ProjectID] {
				a.log.Warn().Int64("board", b.ID).Str("project", b.ProjectID).Msg("board excluded: located in an unknown project")
			}
			continue
		}
		if b.ProjectID == "" {
			a.log.Debug().Int64("board", b.ID).Str("project", p.ID).Msg("board has no location, assigned to listed project")
			b.ProjectID = p.ID
		}
		out = append(out, b)
	}
	return out
}

func (a *Analyzer) warnMissingBoards(data []report.ProjectData, wanted []int64) {
	for _, id := range wanted {
		found := false
		for _, pd := range data {
			if pd.Err != nil || slices.Contains(pd.Project.BoardIDs, id) {
				found = true
				break
			}
		}
		if !found {
			a.log.Warn().Int64("board", id).Msg("configured board not found in the selected projects")
		}
	}
}

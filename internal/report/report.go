/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package report assembles per-sprint metrics into the Project → Board →
// Sprint tree and renders it. Assembly does no I/O; the same input always
// yields the same tree and the same bytes.
package report

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/HamedShams/sprint-insights/internal/domain"
	"github.com/HamedShams/sprint-insights/internal/metrics"
	"github.com/HamedShams/sprint-insights/internal/sprintfilter"
)

// Availability marks a section whose data could not be fetched.
type Availability struct {
	Unavailable bool
	Reason      string
}

func unavailable(err error) Availability {
	if err == nil {
		return Availability{}
	}
	return Availability{Unavailable: true, Reason: err.Error()}
}

type Sprint struct {
	ID      int64
	Name    string
	State   domain.SprintState
	Start   *time.Time
	End     *time.Time
	Metrics metrics.Summary
	Availability
}

type Board struct {
	ID      int64
	Name    string
	Sprints []Sprint
	Rollup  metrics.Summary
	Availability
}

type Project struct {
	ID     string
	Key    string
	Name   string
	Boards []Board
	Rollup metrics.Summary
	Availability
}

type Report struct {
	Filter   []string
	Projects []Project
	Totals   metrics.Summary
}

// Input is everything the pipeline gathered. A non-nil Err on any level marks
// that section unavailable; its children are then ignored.
type Input struct {
	Filter   sprintfilter.Config
	Projects []ProjectData
}

type ProjectData struct {
	Project domain.Project
	Boards  []BoardData
	Err     error
}

type BoardData struct {
	Board   domain.Board
	Sprints []SprintData
	Err     error
}

type SprintData struct {
	Sprint domain.Sprint
	Issues []domain.Issue
	Err    error
}

// Assemble builds the report tree sorted by project, board and sprint id.
// Rollups are recomputed from the union of the available sprints' issues.
func Assemble(in Input) Report {
	rep := Report{Filter: in.Filter.Describe()}
	var all [][]domain.Issue

	projects := slices.Clone(in.Projects)
	slices.SortStableFunc(projects, func(a, b ProjectData) int { return compareIDs(a.Project.ID, b.Project.ID) })

	for _, pd := range projects {
		p := Project{ID: pd.Project.ID, Key: pd.Project.Key, Name: pd.Project.Name, Availability: unavailable(pd.Err)}
		var projectIssues [][]domain.Issue
		if pd.Err == nil {
			boards := slices.Clone(pd.Boards)
			slices.SortStableFunc(boards, func(a, b BoardData) int { return cmp.Compare(a.Board.ID, b.Board.ID) })
			for _, bd := range boards {
				b, issues := assembleBoard(bd)
				p.Boards = append(p.Boards, b)
				projectIssues = append(projectIssues, issues...)
			}
		}
		p.Rollup = metrics.Rollup(projectIssues...)
		all = append(all, projectIssues...)
		rep.Projects = append(rep.Projects, p)
	}
	rep.Totals = metrics.Rollup(all...)
	return rep
}

func assembleBoard(bd BoardData) (Board, [][]domain.Issue) {
	b := Board{ID: bd.Board.ID, Name: bd.Board.Name, Availability: unavailable(bd.Err)}
	if bd.Err != nil {
		b.Rollup = metrics.Rollup()
		return b, nil
	}
	sprints := slices.Clone(bd.Sprints)
	slices.SortStableFunc(sprints, func(a, b SprintData) int { return cmp.Compare(a.Sprint.ID, b.Sprint.ID) })

	var sets [][]domain.Issue
	for _, sd := range sprints {
		s := Sprint{
			ID:           sd.Sprint.ID,
			Name:         sd.Sprint.Name,
			State:        sd.Sprint.State,
			Start:        sd.Sprint.Start,
			End:          sd.Sprint.End,
			Availability: unavailable(sd.Err),
		}
		if sd.Err == nil {
			s.Metrics = metrics.ForSprint(sd.Sprint.ID, sd.Issues)
			sets = append(sets, sd.Issues)
		} else {
			s.Metrics = metrics.ForSprint(sd.Sprint.ID, nil)
		}
		b.Sprints = append(b.Sprints, s)
	}
	b.Rollup = metrics.Rollup(sets...)
	return b, sets
}

// compareIDs orders numeric ids numerically and anything else lexically.
func compareIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return cmp.Compare(a, b)
}

// SprintCount returns how many sprints the report covers.
func (r Report) SprintCount() int {
	n := 0
	for _, p := range r.Projects {
		for _, b := range p.Boards {
			n += len(b.Sprints)
		}
	}
	return n
}

// Partial reports whether any section is marked unavailable.
func (r Report) Partial() bool {
	for _, p := range r.Projects {
		if p.Unavailable {
			return true
		}
		for _, b := range p.Boards {
			if b.Unavailable {
				return true
			}
			for _, s := range b.Sprints {
				if s.Unavailable {
					return true
				}
			}
		}
	}
	return false
}

/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package sprintfilter decides which fetched sprints take part in an analysis.
package sprintfilter

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/HamedShams/sprint-insights/internal/domain"
	"github.com/rs/zerolog"
)

type DateRange struct {
	Start   time.Time
	End     time.Time
	Enabled bool
}

// Config is the zero-value-means-no-filtering sprint selection.
type Config struct {
	DateRange        DateRange
	States           []domain.SprintState
	SpecificIDs      []int64
	IncludeNoEndDate bool
}

var (
	ErrRangeInverted = errors.New("sprint filter: date range start is after end")
	ErrRangeOpen     = errors.New("sprint filter: enabled date range needs both start and end")
	ErrUnknownState  = errors.New("sprint filter: unknown sprint state")
)

// ParseStates converts user supplied state names; unknown names are an error.
func ParseStates(names []string) ([]domain.SprintState, error) {
	out := make([]domain.SprintState, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		st, ok := domain.ParseSprintState(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownState, n)
		}
		if !slices.Contains(out, st) {
			out = append(out, st)
		}
	}
	return out, nil
}

// Validate returns every problem with the configuration joined together.
func (c Config) Validate() error {
	var errs []error
	if c.DateRange.Enabled {
		if c.DateRange.Start.IsZero() || c.DateRange.End.IsZero() {
			errs = append(errs, ErrRangeOpen)
		} else if c.DateRange.Start.After(c.DateRange.End) {
			errs = append(errs, fmt.Errorf("%w: %s > %s", ErrRangeInverted,
				c.DateRange.Start.Format(time.DateOnly), c.DateRange.End.Format(time.DateOnly)))
		}
	}
	for _, st := range c.States {
		if _, ok := domain.ParseSprintState(string(st)); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownState, st))
		}
	}
	return errors.Join(errs...)
}

type Reason string

const (
	ReasonListed         Reason = "listed"
	ReasonNotListed      Reason = "not in sprint id list"
	ReasonMatched        Reason = "matched"
	ReasonUnclassifiable Reason = "unclassifiable state"
	ReasonState          Reason = "state not allowed"
	ReasonInvalidDates   Reason = "start date after end date"
	ReasonMalformedDate  Reason = "malformed date"
	ReasonNoEndDate      Reason = "no end date"
	ReasonNoStartDate    Reason = "no start date"
	ReasonOutOfRange     Reason = "start date outside range"
)

type Decision struct {
	Include bool
	Reason  Reason
}

// Evaluate is a pure predicate over (sprint, config).
func (c Config) Evaluate(s domain.Sprint) Decision {
	if len(c.SpecificIDs) > 0 {
		if slices.Contains(c.SpecificIDs, s.ID) {
			return Decision{Include: true, Reason: ReasonListed}
		}
		return Decision{Reason: ReasonNotListed}
	}
	if s.State == domain.SprintUnknown || s.State == "" {
		return Decision{Reason: ReasonUnclassifiable}
	}
	if len(c.States) > 0 && !slices.Contains(c.States, s.State) {
		return Decision{Reason: ReasonState}
	}
	if r, ok := c.dateMatch(s); !ok {
		return Decision{Reason: r}
	}
	return Decision{Include: true, Reason: ReasonMatched}
}

func (c Config) Match(s domain.Sprint) bool { return c.Evaluate(s).Include }

func (c Config) dateMatch(s domain.Sprint) (Reason, bool) {
	if !c.DateRange.Enabled {
		return "", true
	}
	if s.Has(domain.FlagInvalidDates) {
		return ReasonInvalidDates, false
	}
	if s.Has(domain.FlagMalformedDate) {
		return ReasonMalformedDate, false
	}
	if s.End == nil {
		return ReasonNoEndDate, c.IncludeNoEndDate
	}
	if s.Start == nil {
		return ReasonNoStartDate, false
	}
	if s.Start.Before(c.DateRange.Start) || s.Start.After(c.DateRange.End) {
		return ReasonOutOfRange, false
	}
	return "", true
}

// Describe renders the active configuration as header lines.
func (c Config) Describe() []string {
	var lines []string
	if c.DateRange.Enabled {
		lines = append(lines, fmt.Sprintf("Date Range: %s to %s",
			c.DateRange.Start.UTC().Format(time.DateOnly), c.DateRange.End.UTC().Format(time.DateOnly)))
	}
	if len(c.States) > 0 {
		names := make([]string, len(c.States))
		for i, st := range c.States {
			names[i] = string(st)
		}
		lines = append(lines, "Sprint States: "+strings.Join(names, ", "))
	}
	if len(c.SpecificIDs) > 0 {
		ids := make([]string, len(c.SpecificIDs))
		for i, id := range c.SpecificIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		lines = append(lines, "Specific Sprint IDs: "+strings.Join(ids, ", "))
	}
	if c.DateRange.Enabled && c.IncludeNoEndDate {
		lines = append(lines, "Including sprints without end date")
	}
	if len(lines) == 0 {
		lines = append(lines, "No sprint filtering")
	}
	return lines
}

// Filter applies a Config to sprint collections and logs what it drops.
type Filter struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Filter {
	return &Filter{cfg: cfg, log: log}
}

func (f *Filter) Config() Config { return f.cfg }

// Apply keeps the input order of the selected sprints.
func (f *Filter) Apply(sprints []domain.Sprint) []domain.Sprint {
	out := make([]domain.Sprint, 0, len(sprints))
	for _, s := range sprints {
		d := f.cfg.Evaluate(s)
		switch {
		case d.Include:
			out = append(out, s)
		case d.Reason == ReasonUnclassifiable:
			f.log.Warn().Int64("sprint", s.ID).Str("state", s.RawState).Msg("sprint excluded: unclassifiable state")
		case d.Reason == ReasonInvalidDates:
			f.log.Warn().Int64("sprint", s.ID).Msg("sprint excluded: start date after end date")
		case d.Reason == ReasonMalformedDate:
			f.log.Warn().Int64("sprint", s.ID).Msg("sprint excluded: malformed date")
		default:
			f.log.Debug().Int64("sprint", s.ID).Str("reason", string(d.Reason)).Msg("sprint filtered out")
		}
	}
	return out
}

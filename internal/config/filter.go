package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HamedShams/sprint-insights/internal/sprintfilter"
	"gopkg.in/yaml.v2"
)

// fileFilter is the on-disk and environment form of the sprint filter.
//
//	date_range:
//	  start: 2024-04-01
//	  end: 2024-06-30
//	  enabled: true
//	sprint_states: [active, closed]
//	specific_sprint_ids: [101, 102]
//	include_no_end_date: false
type fileFilter struct {
	DateRange struct {
		Start   string `yaml:"start"`
		End     string `yaml:"end"`
		Enabled *bool  `yaml:"enabled"`
	} `yaml:"date_range"`
	SprintStates     []string `yaml:"sprint_states"`
	SpecificIDs      []int64  `yaml:"specific_sprint_ids"`
	IncludeNoEndDate bool     `yaml:"include_no_end_date"`

	envErrs []error
}

func readFilterFile(path string) (fileFilter, error) {
	var ff fileFilter
	data, err := os.ReadFile(path)
	if err != nil {
		return ff, fmt.Errorf("SPRINT_FILTER_FILE: %w", err)
	}
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return ff, fmt.Errorf("SPRINT_FILTER_FILE %s: %w", path, err)
	}
	return ff, nil
}

// overlayEnv replaces file values with any SPRINT_* variables that are set.
func (s *fileFilter) overlayEnv() {
	if v := os.Getenv("SPRINT_FILTER_START"); v != "" {
		s.DateRange.Start = v
	}
	if v := os.Getenv("SPRINT_FILTER_END"); v != "" {
		s.DateRange.End = v
	}
	if v := os.Getenv("SPRINT_FILTER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.envErrs = append(s.envErrs, fmt.Errorf("SPRINT_FILTER_ENABLED: %q is not a boolean", v))
		} else {
			s.DateRange.Enabled = &b
		}
	}
	if v := os.Getenv("SPRINT_STATES"); v != "" {
		s.SprintStates = parseStrings(v)
	}
	if v := os.Getenv("SPRINT_IDS"); v != "" {
		ids, err := parseInt64s(v)
		if err != nil {
			s.envErrs = append(s.envErrs, fmt.Errorf("SPRINT_IDS: %w", err))
		} else {
			s.SpecificIDs = ids
		}
	}
	if v := os.Getenv("SPRINT_INCLUDE_NO_END"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.envErrs = append(s.envErrs, fmt.Errorf("SPRINT_INCLUDE_NO_END: %q is not a boolean", v))
		} else {
			s.IncludeNoEndDate = b
		}
	}
}

// build turns the file filter into a filter configuration. A date range given
// without an explicit enabled flag is enabled.
func (s fileFilter) build() (sprintfilter.Config, error) {
	errs := append([]error(nil), s.envErrs...)
	var cfg sprintfilter.Config

	start, err := ParseDate(s.DateRange.Start)
	if err != nil {
		errs = append(errs, fmt.Errorf("sprint filter start: %w", err))
	}
	end, err := ParseEndDate(s.DateRange.End)
	if err != nil {
		errs = append(errs, fmt.Errorf("sprint filter end: %w", err))
	}
	cfg.DateRange = sprintfilter.DateRange{Start: start, End: end}
	if s.DateRange.Enabled != nil {
		cfg.DateRange.Enabled = *s.DateRange.Enabled
	} else {
		cfg.DateRange.Enabled = s.DateRange.Start != "" || s.DateRange.End != ""
	}

	if cfg.States, err = sprintfilter.ParseStates(s.SprintStates); err != nil {
		errs = append(errs, err)
	}
	cfg.SpecificIDs = s.SpecificIDs
	cfg.IncludeNoEndDate = s.IncludeNoEndDate
	return cfg, errors.Join(errs...)
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns UTC. An empty string is
// the zero time.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date (want YYYY-MM-DD)", v)
}

// ParseEndDate is ParseDate, except a bare date means the end of that day so
// the range stays inclusive.
func ParseEndDate(v string) (time.Time, error) {
	t, err := ParseDate(v)
	if err != nil || t.IsZero() {
		return t, err
	}
	if _, bare := time.Parse(time.DateOnly, strings.TrimSpace(v)); bare == nil {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HamedShams/sprint-insights/internal/domain"
	"github.com/HamedShams/sprint-insights/internal/sprintfilter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JIRA_BASE_URL", "https://jira.example.com")
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50, cfg.JiraPageSize)
	assert.Equal(t, 6, cfg.WorkersJira)
	assert.Equal(t, "customfield_10020", cfg.JiraSprintField)
	assert.Equal(t, []string{"No sprint filtering"}, cfg.Filter.Describe())
}

func TestLoadFilterFromEnv(t *testing.T) {
	t.Setenv("SPRINT_FILTER_START", "2024-04-01")
	t.Setenv("SPRINT_FILTER_END", "2024-06-30")
	t.Setenv("SPRINT_STATES", "active, closed")
	t.Setenv("SPRINT_IDS", "7,9")
	t.Setenv("JIRA_BOARDS", "12, 34")

	cfg, err := Load()
	require.NoError(t, err)

	f := cfg.Filter
	assert.True(t, f.DateRange.Enabled, "a range without explicit flag is enabled")
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), f.DateRange.Start)
	assert.Equal(t, time.Date(2024, 6, 30, 23, 59, 59, 999999999, time.UTC), f.DateRange.End)
	assert.Equal(t, []domain.SprintState{domain.SprintActive, domain.SprintClosed}, f.States)
	assert.Equal(t, []int64{7, 9}, f.SpecificIDs)
	assert.Equal(t, []int64{12, 34}, cfg.JiraBoards)
}

func TestLoadFilterFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
date_range:
  start: 2024-01-01
  end: 2024-03-31
  enabled: false
sprint_states: [future]
include_no_end_date: true
unknown_key: ignored
`), 0o600))
	t.Setenv("SPRINT_FILTER_FILE", path)
	t.Setenv("SPRINT_FILTER_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Filter.DateRange.Enabled)
	assert.True(t, cfg.Filter.IncludeNoEndDate)
	assert.Equal(t, []domain.SprintState{domain.SprintFuture}, cfg.Filter.States)
}

func TestLoadCollectsEveryProblem(t *testing.T) {
	t.Setenv("SPRINT_FILTER_START", "April")
	t.Setenv("SPRINT_STATES", "archived")
	t.Setenv("SPRINT_IDS", "x1")
	t.Setenv("SPRINT_INCLUDE_NO_END", "maybe")

	_, err := Load()
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Len(t, cerr.Problems(), 1, "filter problems are joined into one entry")
	assert.ErrorIs(t, err, sprintfilter.ErrUnknownState)
	assert.Contains(t, err.Error(), "SPRINT_IDS")
	assert.Contains(t, err.Error(), "SPRINT_INCLUDE_NO_END")
	assert.Contains(t, err.Error(), `"April"`)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		JiraBaseURL:  "https://jira.example.com",
		JiraPageSize: 50,
		WorkersJira:  2,
		TZ:           "UTC",
	}
	require.NoError(t, cfg.Validate())

	cfg.JiraBaseURL = ""
	cfg.JiraPageSize = 0
	cfg.Filter = sprintfilter.Config{DateRange: sprintfilter.DateRange{
		Start:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Enabled: true,
	}}
	err := cfg.Validate()
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Len(t, cerr.Problems(), 3)
	assert.ErrorIs(t, err, ErrMissingBaseURL)
	assert.ErrorIs(t, err, ErrBadNumber)
	assert.ErrorIs(t, err, sprintfilter.ErrRangeInverted)
}

func TestParseEndDate(t *testing.T) {
	end, err := ParseEndDate("2024-04-14")
	require.NoError(t, err)
	assert.True(t, end.After(time.Date(2024, 4, 14, 23, 0, 0, 0, time.UTC)))

	exact, err := ParseEndDate("2024-04-14T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 14, 10, 0, 0, 0, time.UTC), exact)

	zero, err := ParseEndDate("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

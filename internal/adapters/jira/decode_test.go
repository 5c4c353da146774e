package jira

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/HamedShams/sprint-insights/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSprint(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		state domain.SprintState
		flags domain.SprintFlag
		start bool
		end   bool
	}{
		{
			name:  "closed with dates",
			raw:   `{"id": 1, "state": "closed", "startDate": "2024-04-01T08:00:00.000Z", "endDate": "2024-04-14T17:00:00.000Z"}`,
			state: domain.SprintClosed, start: true, end: true,
		},
		{
			name:  "closed without end",
			raw:   `{"id": 2, "state": "CLOSED", "startDate": "2024-04-01T08:00:00.000Z"}`,
			state: domain.SprintClosed, flags: domain.FlagMissingEndDate, start: true,
		},
		{
			name:  "start after end",
			raw:   `{"id": 3, "state": "active", "startDate": "2024-05-01T00:00:00Z", "endDate": "2024-04-01T00:00:00Z"}`,
			state: domain.SprintActive, flags: domain.FlagInvalidDates,
		},
		{
			name:  "unparseable date",
			raw:   `{"id": "4", "state": "future", "startDate": "next monday"}`,
			state: domain.SprintFuture, flags: domain.FlagMalformedDate,
		},
		{
			name:  "closed with unparseable end",
			raw:   `{"id": 6, "state": "closed", "startDate": "2020-01-01T00:00:00Z", "endDate": "not-a-date"}`,
			state: domain.SprintClosed, flags: domain.FlagMalformedDate, start: true,
		},
		{
			name:  "unrecognized state",
			raw:   `{"id": 5, "state": "archived"}`,
			state: domain.SprintUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := decodeSprint(json.RawMessage(tc.raw), 9)
			require.NoError(t, err)
			assert.Equal(t, tc.state, s.State)
			assert.Equal(t, tc.flags, s.Flags)
			assert.Equal(t, tc.start, s.Start != nil)
			assert.Equal(t, tc.end, s.End != nil)
			assert.EqualValues(t, 9, s.BoardID)
		})
	}
}

func TestDecodeSprintRequiresID(t *testing.T) {
	_, err := decodeSprint(json.RawMessage(`{"name": "no id"}`), 1)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "id", ve.Field)
}

func TestParseTimeUTC(t *testing.T) {
	want := time.Date(2024, 4, 1, 6, 30, 0, 0, time.UTC)
	for _, s := range []string{
		"2024-04-01T06:30:00Z",
		"2024-04-01T10:00:00+03:30",
		"2024-04-01T10:00:00.000+0330",
		"2024-04-01T10:00:00+0330",
	} {
		got, bad := parseTimeUTC(s)
		require.False(t, bad, s)
		require.NotNil(t, got, s)
		assert.True(t, want.Equal(*got), s)
	}
	got, bad := parseTimeUTC("")
	assert.Nil(t, got)
	assert.False(t, bad)
	_, bad = parseTimeUTC("01/04/2024")
	assert.True(t, bad)
}

func TestParseSprintIDsOrdersAndDedups(t *testing.T) {
	raw := json.RawMessage(`[{"id": 44}, "x.Sprint@1[id=12,state=CLOSED]", {"id": "44"}, 17]`)
	assert.Equal(t, []int64{12, 44}, parseSprintIDs(raw))
	assert.Nil(t, parseSprintIDs(nil))
	assert.Nil(t, parseSprintIDs(json.RawMessage(`null`)))
}

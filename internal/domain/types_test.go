package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestIssueResolutionTime(t *testing.T) {
	resolved := Issue{Key: "LT-1", Created: ts("2024-04-01T00:00:00Z"), Resolved: ts("2024-04-03T12:00:00Z")}
	d, ok := resolved.ResolutionTime()
	assert.True(t, ok)
	assert.Equal(t, 60*time.Hour, d)

	open := Issue{Key: "LT-2", Created: ts("2024-04-01T00:00:00Z")}
	_, ok = open.ResolutionTime()
	assert.False(t, ok, "unresolved issue must not report a duration")

	backwards := Issue{Key: "LT-3", Created: ts("2024-04-05T00:00:00Z"), Resolved: ts("2024-04-01T00:00:00Z")}
	_, ok = backwards.ResolutionTime()
	assert.False(t, ok)
}

func TestIssueCarriedOverFrom(t *testing.T) {
	iss := Issue{Key: "LT-9", SprintIDs: []int64{10, 11, 12}}
	assert.True(t, iss.CarriedOverFrom(10))
	assert.True(t, iss.CarriedOverFrom(11))
	assert.False(t, iss.CarriedOverFrom(12))
	assert.False(t, iss.CarriedOverFrom(99))
}

func TestParseEnumsAreTotal(t *testing.T) {
	st, ok := ParseSprintState(" Closed ")
	assert.True(t, ok)
	assert.Equal(t, SprintClosed, st)
	st, ok = ParseSprintState("archived")
	assert.False(t, ok)
	assert.Equal(t, SprintUnknown, st)

	assert.Equal(t, PriorityHighest, ParsePriority("Highest"))
	assert.Equal(t, PriorityUnknown, ParsePriority("Blocker"))
	assert.Equal(t, PriorityUnknown, ParsePriority(""))

	assert.Equal(t, TypeBug, ParseIssueType("Bug"))
	assert.Equal(t, TypeFeature, ParseIssueType("Story"))
	assert.Equal(t, TypeTask, ParseIssueType("Sub-task"))
	assert.Equal(t, TypeOther, ParseIssueType("Spike"))

	assert.Equal(t, StatusDone, StatusFromCategory("done"))
	assert.Equal(t, StatusInProgress, StatusFromCategory("indeterminate"))
	assert.Equal(t, StatusOpen, StatusFromCategory("new"))
	assert.Equal(t, StatusUnknown, StatusFromCategory("undefined"))
}

func TestProjectWithBoardsCopies(t *testing.T) {
	ids := []int64{2, 6}
	p := Project{ID: "10001", Key: "LT"}.WithBoards(ids)
	ids[0] = 99
	assert.Equal(t, []int64{2, 6}, p.BoardIDs)
}

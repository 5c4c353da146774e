package domain

import (
	"fmt"
	"time"
)

// Project is a tracker project. ID is the identifier used throughout a run.
type Project struct {
	ID       string
	Key      string
	Name     string
	BoardIDs []int64
}

// WithBoards returns a copy of p carrying the given board ids.
func (p Project) WithBoards(ids []int64) Project {
	cp := p
	cp.BoardIDs = append([]int64(nil), ids...)
	return cp
}

type Board struct {
	ID        int64
	Name      string
	Type      string
	ProjectID string
}

// SprintFlag marks tolerated data problems on a sprint.
type SprintFlag uint8

const (
	// FlagMissingEndDate is set on closed sprints that carry no end date.
	FlagMissingEndDate SprintFlag = 1 << iota
	// FlagInvalidDates is set when start was after end; both dates are dropped.
	FlagInvalidDates
	// FlagMalformedDate is set when a date string could not be parsed.
	FlagMalformedDate
)

type Sprint struct {
	ID       int64
	Name     string
	State    SprintState
	RawState string
	Start    *time.Time
	End      *time.Time
	Complete *time.Time
	BoardID  int64
	Goal     string
	Flags    SprintFlag
}

func (s Sprint) Has(f SprintFlag) bool { return s.Flags&f != 0 }

type User struct {
	AccountID   string
	DisplayName string
}

type Issue struct {
	ID          string
	Key         string
	Summary     string
	Priority    Priority
	RawPriority string
	Type        IssueType
	Status      Status
	RawStatus   string
	Created     *time.Time
	Resolved    *time.Time
	StoryPoints *float64
	SprintIDs   []int64
	Assignee    *User
}

// ResolutionTime is resolved minus created. ok is false when the issue is
// unresolved or its dates cannot produce a non-negative duration.
func (i Issue) ResolutionTime() (d time.Duration, ok bool) {
	if i.Resolved == nil || i.Created == nil {
		return 0, false
	}
	d = i.Resolved.Sub(*i.Created)
	if d < 0 {
		return 0, false
	}
	return d, true
}

// CarriedOverFrom reports whether the issue left sprintID for a later sprint.
func (i Issue) CarriedOverFrom(sprintID int64) bool {
	for idx, id := range i.SprintIDs {
		if id == sprintID {
			return idx < len(i.SprintIDs)-1
		}
	}
	return false
}

// ValidationError describes a tracker record that could not become an entity.
type ValidationError struct {
	Entity string
	ID     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: %s %s", e.Entity, e.ID, e.Field, e.Reason)
}

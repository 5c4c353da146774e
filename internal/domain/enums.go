package domain

import "strings"

type SprintState string

const (
	SprintActive  SprintState = "active"
	SprintClosed  SprintState = "closed"
	SprintFuture  SprintState = "future"
	SprintUnknown SprintState = "unknown"
)

// ParseSprintState maps a tracker state string; ok is false for anything
// outside active/closed/future.
func ParseSprintState(s string) (SprintState, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return SprintActive, true
	case "closed":
		return SprintClosed, true
	case "future":
		return SprintFuture, true
	}
	return SprintUnknown, false
}

type Priority string

const (
	PriorityHighest Priority = "highest"
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
	PriorityLowest  Priority = "lowest"
	PriorityUnknown Priority = "unknown"
)

func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHighest, PriorityHigh, PriorityMedium, PriorityLow, PriorityLowest:
		return p
	}
	return PriorityUnknown
}

type IssueType string

const (
	TypeBug     IssueType = "bug"
	TypeFeature IssueType = "feature"
	TypeTask    IssueType = "task"
	TypeOther   IssueType = "other"
)

var issueTypes = map[string]IssueType{
	"bug":         TypeBug,
	"defect":      TypeBug,
	"story":       TypeFeature,
	"feature":     TypeFeature,
	"new feature": TypeFeature,
	"improvement": TypeFeature,
	"epic":        TypeFeature,
	"task":        TypeTask,
	"sub-task":    TypeTask,
	"subtask":     TypeTask,
}

func ParseIssueType(s string) IssueType {
	if t, ok := issueTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return TypeOther
}

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusUnknown    Status = "unknown"
)

// StatusFromCategory maps a Jira status-category key (new, indeterminate,
// done) to the internal status.
func StatusFromCategory(key string) Status {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "new", "to do", "todo":
		return StatusOpen
	case "indeterminate", "in progress":
		return StatusInProgress
	case "done", "complete":
		return StatusDone
	}
	return StatusUnknown
}

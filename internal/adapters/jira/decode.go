package jira

import (
	"bytes"
	"encoding/json"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/HamedShams/sprint-insights/internal/domain"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.DateOnly,
}

// parseTimeUTC returns nil for an empty value. malformed is true when a
// non-empty value matched none of the Jira layouts.
func parseTimeUTC(s string) (t *time.Time, malformed bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	for _, l := range timeLayouts {
		if v, err := time.Parse(l, s); err == nil {
			v = v.UTC()
			return &v, false
		}
	}
	return nil, true
}

// flexID accepts ids sent as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}

func (f flexID) int64() (int64, bool) {
	n, err := strconv.ParseInt(string(f), 10, 64)
	return n, err == nil && n > 0
}

func invalid(entity, id, field, reason string) *domain.ValidationError {
	return &domain.ValidationError{Entity: entity, ID: id, Field: field, Reason: reason}
}

type projectJSON struct {
	ID   flexID `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

func decodeProject(raw json.RawMessage) (domain.Project, error) {
	var p projectJSON
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Project{}, invalid("project", "", "body", err.Error())
	}
	if p.ID == "" {
		return domain.Project{}, invalid("project", p.Key, "id", "is missing")
	}
	if p.Key == "" {
		return domain.Project{}, invalid("project", string(p.ID), "key", "is missing")
	}
	return domain.Project{ID: string(p.ID), Key: p.Key, Name: p.Name}, nil
}

type boardJSON struct {
	ID       flexID `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location struct {
		ProjectID  flexID `json:"projectId"`
		ProjectKey string `json:"projectKey"`
	} `json:"location"`
}

func decodeBoard(raw json.RawMessage) (domain.Board, error) {
	var b boardJSON
	if err := json.Unmarshal(raw, &b); err != nil {
		return domain.Board{}, invalid("board", "", "body", err.Error())
	}
	id, ok := b.ID.int64()
	if !ok {
		return domain.Board{}, invalid("board", string(b.ID), "id", "is not a positive integer")
	}
	return domain.Board{ID: id, Name: b.Name, Type: b.Type, ProjectID: string(b.Location.ProjectID)}, nil
}

type sprintJSON struct {
	ID            flexID `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	CompleteDate  string `json:"completeDate"`
	OriginBoardID flexID `json:"originBoardId"`
	Goal          string `json:"goal"`
}

// decodeSprint tolerates bad dates: unparseable dates are dropped and
// flagged, and a start after the end drops both.
func decodeSprint(raw json.RawMessage, boardID int64) (domain.Sprint, error) {
	var j sprintJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return domain.Sprint{}, invalid("sprint", "", "body", err.Error())
	}
	id, ok := j.ID.int64()
	if !ok {
		return domain.Sprint{}, invalid("sprint", string(j.ID), "id", "is not a positive integer")
	}
	s := domain.Sprint{ID: id, Name: j.Name, RawState: j.State, BoardID: boardID, Goal: j.Goal}
	s.State, _ = domain.ParseSprintState(j.State)

	var badStart, badEnd, badComplete bool
	s.Start, badStart = parseTimeUTC(j.StartDate)
	s.End, badEnd = parseTimeUTC(j.EndDate)
	s.Complete, badComplete = parseTimeUTC(j.CompleteDate)
	if badStart || badEnd || badComplete {
		s.Flags |= domain.FlagMalformedDate
	}
	if s.Start != nil && s.End != nil && s.Start.After(*s.End) {
		s.Start, s.End = nil, nil
		s.Flags |= domain.FlagInvalidDates
	}
	if s.State == domain.SprintClosed && s.End == nil && !badEnd && !s.Has(domain.FlagInvalidDates) {
		s.Flags |= domain.FlagMissingEndDate
	}
	return s, nil
}

type namedJSON struct {
	Name string `json:"name"`
}

type issueFieldsJSON struct {
	Summary   string     `json:"summary"`
	Priority  *namedJSON `json:"priority"`
	IssueType *namedJSON `json:"issuetype"`
	Status    *struct {
		Name           string `json:"name"`
		StatusCategory *struct {
			Key string `json:"key"`
		} `json:"statusCategory"`
	} `json:"status"`
	Created        string `json:"created"`
	ResolutionDate string `json:"resolutiondate"`
	Assignee       *struct {
		AccountID   string `json:"accountId"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"assignee"`
}

type issueJSON struct {
	ID     flexID          `json:"id"`
	Key    string          `json:"key"`
	Fields json.RawMessage `json:"fields"`
}

// issueDecode is the result of decoding one issue. Malformed lists fields
// whose values were dropped.
type issueDecode struct {
	Issue     domain.Issue
	Malformed []string
}

func (f Fields) decodeIssue(raw json.RawMessage) (issueDecode, error) {
	var j issueJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return issueDecode{}, invalid("issue", "", "body", err.Error())
	}
	if j.Key == "" {
		return issueDecode{}, invalid("issue", string(j.ID), "key", "is missing")
	}
	if j.ID == "" {
		return issueDecode{}, invalid("issue", j.Key, "id", "is missing")
	}
	var std issueFieldsJSON
	custom := map[string]json.RawMessage{}
	if len(j.Fields) > 0 {
		if err := json.Unmarshal(j.Fields, &std); err != nil {
			return issueDecode{}, invalid("issue", j.Key, "fields", err.Error())
		}
		if err := json.Unmarshal(j.Fields, &custom); err != nil {
			return issueDecode{}, invalid("issue", j.Key, "fields", err.Error())
		}
	}

	out := issueDecode{Issue: domain.Issue{ID: string(j.ID), Key: j.Key, Summary: std.Summary}}
	iss := &out.Issue
	if std.Priority != nil {
		iss.RawPriority = std.Priority.Name
	}
	iss.Priority = domain.ParsePriority(iss.RawPriority)
	if std.IssueType != nil {
		iss.Type = domain.ParseIssueType(std.IssueType.Name)
	} else {
		iss.Type = domain.TypeOther
	}
	iss.Status = domain.StatusUnknown
	if std.Status != nil {
		iss.RawStatus = std.Status.Name
		if std.Status.StatusCategory != nil {
			iss.Status = domain.StatusFromCategory(std.Status.StatusCategory.Key)
		}
		if iss.Status == domain.StatusUnknown {
			iss.Status = domain.StatusFromCategory(std.Status.Name)
		}
	}

	var bad bool
	if iss.Created, bad = parseTimeUTC(std.Created); bad {
		out.Malformed = append(out.Malformed, "created")
	}
	if iss.Resolved, bad = parseTimeUTC(std.ResolutionDate); bad {
		out.Malformed = append(out.Malformed, "resolutiondate")
	}
	if a := std.Assignee; a != nil {
		id := a.AccountID
		if id == "" {
			id = a.Name
		}
		iss.Assignee = &domain.User{AccountID: id, DisplayName: a.DisplayName}
	}
	if f.Points != "" {
		if v, ok := custom[f.Points]; ok {
			if p, ok := parsePoints(v); ok {
				iss.StoryPoints = &p
			}
		}
	}
	if f.Sprint != "" {
		iss.SprintIDs = parseSprintIDs(custom[f.Sprint])
	}
	return out, nil
}

func parsePoints(raw json.RawMessage) (float64, bool) {
	var p *float64
	if err := json.Unmarshal(raw, &p); err != nil || p == nil {
		return 0, false
	}
	return *p, true
}

var legacySprintID = regexp.MustCompile(`\bid=(\d+)`)

// parseSprintIDs reads the sprint custom field. Cloud sends objects, older
// servers send serialized strings such as "...Sprint@1a2b[id=12,state=CLOSED,...]".
// Ids come back ascending, which follows sprint creation order.
func parseSprintIDs(raw json.RawMessage) []int64 {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var ids []int64
	for _, it := range items {
		var obj struct {
			ID flexID `json:"id"`
		}
		if err := json.Unmarshal(it, &obj); err == nil {
			if id, ok := obj.ID.int64(); ok {
				ids = append(ids, id)
			}
			continue
		}
		var s string
		if err := json.Unmarshal(it, &s); err == nil {
			if m := legacySprintID.FindStringSubmatch(s); m != nil {
				if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
					ids = append(ids, id)
				}
			}
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

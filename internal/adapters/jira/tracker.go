package jira

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/HamedShams/sprint-insights/internal/domain"
)

var (
	ResProjects = Resource{Name: "projects", Path: "/rest/api/2/project/search", Items: "values"}
	ResBoards   = Resource{Name: "boards", Path: "/rest/agile/1.0/board", Items: "values"}
)

func sprintsResource(boardID int64) Resource {
	return Resource{
		Name:  "sprints",
		Path:  "/rest/agile/1.0/board/" + strconv.FormatInt(boardID, 10) + "/sprint",
		Items: "values",
	}
}

func sprintIssuesResource(boardID, sprintID int64) Resource {
	return Resource{
		Name:  "issues",
		Path:  "/rest/agile/1.0/board/" + strconv.FormatInt(boardID, 10) + "/sprint/" + strconv.FormatInt(sprintID, 10) + "/issue",
		Items: "issues",
	}
}

const defaultPageSize = 50

func (c *Client) pageSize() int {
	if c.pages > 0 {
		return c.pages
	}
	return defaultPageSize
}

// collect drains a collection, decoding each record. Records that fail
// validation are logged and skipped.
func collect[T any](ctx context.Context, c *Client, res Resource, q url.Values, decode func(json.RawMessage) (T, error)) ([]T, error) {
	var out []T
	for rec, err := range c.FetchCollection(ctx, res, q, c.pageSize()) {
		if err != nil {
			return nil, err
		}
		v, err := decode(rec.Raw)
		if err != nil {
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				c.log.Warn().Str("resource", res.Name).Str("id", rec.ID).Str("field", ve.Field).Str("reason", ve.Reason).Msg("record skipped")
				continue
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Projects lists every project visible to the credentials.
func (c *Client) Projects(ctx context.Context) ([]domain.Project, error) {
	return collect(ctx, c, ResProjects, nil, decodeProject)
}

// Boards lists the boards located in a project, addressed by id or key.
func (c *Client) Boards(ctx context.Context, projectKeyOrID string) ([]domain.Board, error) {
	q := url.Values{}
	if projectKeyOrID != "" {
		q.Set("projectKeyOrId", projectKeyOrID)
	}
	return collect(ctx, c, ResBoards, q, decodeBoard)
}

// Board fetches a single board.
func (c *Client) Board(ctx context.Context, boardID int64) (domain.Board, error) {
	var raw json.RawMessage
	path := "/rest/agile/1.0/board/" + strconv.FormatInt(boardID, 10)
	if err := c.getJSON(ctx, "board", path, nil, &raw); err != nil {
		return domain.Board{}, err
	}
	return decodeBoard(raw)
}

// Sprints lists the sprints of a board. Dates that cannot be used are
// flagged on the sprint and logged.
func (c *Client) Sprints(ctx context.Context, boardID int64) ([]domain.Sprint, error) {
	sprints, err := collect(ctx, c, sprintsResource(boardID), nil, func(raw json.RawMessage) (domain.Sprint, error) {
		return decodeSprint(raw, boardID)
	})
	if err != nil {
		return nil, err
	}
	for _, s := range sprints {
		var msg string
		switch {
		case s.Has(domain.FlagInvalidDates):
			msg = "sprint start is after its end; dates ignored"
		case s.Has(domain.FlagMalformedDate):
			msg = "sprint has an unparseable date; it is ignored"
		case s.Has(domain.FlagMissingEndDate):
			msg = "closed sprint has no end date"
		default:
			continue
		}
		c.log.Warn().Int64("board", boardID).Int64("sprint", s.ID).Msg(msg)
	}
	return sprints, nil
}

// SprintIssues lists the issues of one sprint, optionally narrowed by an
// extra JQL clause.
func (c *Client) SprintIssues(ctx context.Context, boardID, sprintID int64, jql string) ([]domain.Issue, error) {
	q := url.Values{}
	if strings.TrimSpace(jql) != "" {
		q.Set("jql", jql)
	}
	fields := []string{"summary", "priority", "issuetype", "status", "created", "resolutiondate", "assignee"}
	if c.fields.Sprint != "" {
		fields = append(fields, c.fields.Sprint)
	}
	if c.fields.Points != "" {
		fields = append(fields, c.fields.Points)
	}
	q.Set("fields", strings.Join(fields, ","))

	res := sprintIssuesResource(boardID, sprintID)
	return collect(ctx, c, res, q, func(raw json.RawMessage) (domain.Issue, error) {
		d, err := c.fields.decodeIssue(raw)
		if err != nil {
			return domain.Issue{}, err
		}
		if len(d.Malformed) > 0 {
			c.log.Warn().Str("key", d.Issue.Key).Strs("fields", d.Malformed).Msg("issue has unparseable dates; excluded from resolution time")
		}
		return d.Issue, nil
	})
}

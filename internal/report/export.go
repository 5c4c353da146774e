package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/HamedShams/sprint-insights/internal/metrics"
)

// WriteJSON writes the mapping with the filter description and overall
// totals. Map keys are emitted sorted, so output is stable.
func WriteJSON(w io.Writer, r Report) error {
	doc := map[string]any{
		"filter":   r.Filter,
		"projects": r.Mapping(),
		"totals":   summaryMap(r.Totals),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

var csvHeader = []string{
	"project_id", "project_key", "board_id", "board_name",
	"sprint_id", "sprint_name", "state", "start", "end", "available", "reason",
	"issue_count", "critical", "major", "minor", "unclassified",
	"resolved", "unresolved", "avg_days", "min_days", "max_days",
	"longest_key", "longest_days", "done", "carried_over",
	"committed_points", "completed_points",
}

// WriteCSV writes one row per sprint. An unavailable project or board gets a
// single row carrying its reason.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range r.Projects {
		if p.Unavailable {
			row := blankRow(p.ID, p.Key)
			row[9], row[10] = "false", p.Reason
			if err := cw.Write(row); err != nil {
				return err
			}
			continue
		}
		for _, b := range p.Boards {
			if b.Unavailable {
				row := blankRow(p.ID, p.Key)
				row[2], row[3] = strconv.FormatInt(b.ID, 10), b.Name
				row[9], row[10] = "false", b.Reason
				if err := cw.Write(row); err != nil {
					return err
				}
				continue
			}
			for _, s := range b.Sprints {
				if err := cw.Write(sprintRow(p, b, s)); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	return nil
}

func blankRow(projectID, projectKey string) []string {
	row := make([]string, len(csvHeader))
	row[0], row[1] = projectID, projectKey
	return row
}

func sprintRow(p Project, b Board, s Sprint) []string {
	m := s.Metrics
	row := blankRow(p.ID, p.Key)
	row[2], row[3] = strconv.FormatInt(b.ID, 10), b.Name
	row[4], row[5], row[6] = strconv.FormatInt(s.ID, 10), s.Name, string(s.State)
	row[7], row[8] = dateCell(s.Start), dateCell(s.End)
	row[9], row[10] = strconv.FormatBool(!s.Unavailable), s.Reason
	row[11] = strconv.Itoa(m.IssueCount)
	row[12] = strconv.Itoa(m.Priority[metrics.Critical])
	row[13] = strconv.Itoa(m.Priority[metrics.Major])
	row[14] = strconv.Itoa(m.Priority[metrics.Minor])
	row[15] = strconv.Itoa(m.Priority[metrics.Unclassified])
	row[16] = strconv.Itoa(m.Resolution.Resolved)
	row[17] = strconv.Itoa(m.Resolution.Unresolved)
	if avg, ok := m.Resolution.Average(); ok {
		row[18] = daysCell(avg)
		row[19] = daysCell(m.Resolution.Min)
		row[20] = daysCell(m.Resolution.Max)
	}
	if l := m.Longest; l != nil {
		row[21], row[22] = l.Key, daysCell(l.Duration)
	}
	row[23] = strconv.Itoa(m.Done)
	row[24] = strconv.Itoa(m.CarriedOver)
	row[25] = strconv.FormatFloat(m.CommittedPoints, 'f', -1, 64)
	row[26] = strconv.FormatFloat(m.CompletedPoints, 'f', -1, 64)
	return row
}

func dateCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func daysCell(d time.Duration) string {
	return strconv.FormatFloat(Round2(metrics.Days(d)), 'f', 2, 64)
}

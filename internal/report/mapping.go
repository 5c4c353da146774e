package report

import (
	"math"
	"strconv"
	"time"

	"github.com/HamedShams/sprint-insights/internal/metrics"
)

// Mapping exposes the tree as plain nested maps keyed by id:
//
//	project id → {name, key, boards: {board id → {name, sprints: {sprint id → {...}}, rollup}}, rollup}
//
// Every exporter renders this structure. Absent statistics are nil.
func (r Report) Mapping() map[string]any {
	out := make(map[string]any, len(r.Projects))
	for _, p := range r.Projects {
		pm := map[string]any{
			"name":   p.Name,
			"key":    p.Key,
			"rollup": summaryMap(p.Rollup),
		}
		availability(pm, p.Availability)
		boards := make(map[string]any, len(p.Boards))
		for _, b := range p.Boards {
			bm := map[string]any{
				"name":   b.Name,
				"rollup": summaryMap(b.Rollup),
			}
			availability(bm, b.Availability)
			sprints := make(map[string]any, len(b.Sprints))
			for _, s := range b.Sprints {
				sm := summaryMap(s.Metrics)
				sm["name"] = s.Name
				sm["state"] = string(s.State)
				sm["start"] = dateOrNil(s.Start)
				sm["end"] = dateOrNil(s.End)
				availability(sm, s.Availability)
				sprints[strconv.FormatInt(s.ID, 10)] = sm
			}
			bm["sprints"] = sprints
			boards[strconv.FormatInt(b.ID, 10)] = bm
		}
		pm["boards"] = boards
		out[p.ID] = pm
	}
	return out
}

func availability(m map[string]any, a Availability) {
	m["available"] = !a.Unavailable
	if a.Unavailable {
		m["reason"] = a.Reason
	}
}

func summaryMap(s metrics.Summary) map[string]any {
	dist := make(map[string]any, len(metrics.Buckets))
	for _, b := range metrics.Buckets {
		dist[string(b)] = s.Priority[b]
	}
	res := map[string]any{
		"avg":        nil,
		"min":        nil,
		"max":        nil,
		"resolved":   s.Resolution.Resolved,
		"unresolved": s.Resolution.Unresolved,
		"undated":    s.Resolution.Undated,
	}
	if avg, ok := s.Resolution.Average(); ok {
		res["avg"] = Round2(metrics.Days(avg))
		res["min"] = Round2(metrics.Days(s.Resolution.Min))
		res["max"] = Round2(metrics.Days(s.Resolution.Max))
	}
	var longest any
	if l := s.Longest; l != nil {
		longest = map[string]any{
			"key":      l.Key,
			"summary":  l.Summary,
			"priority": l.Priority,
			"days":     Round2(metrics.Days(l.Duration)),
		}
	}
	var ratio any
	if v, ok := s.CompletionRatio(); ok {
		ratio = Round2(v)
	}
	return map[string]any{
		"issue_count":           s.IssueCount,
		"priority_distribution": dist,
		"resolution_metrics":    res,
		"longest_resolution":    longest,
		"done":                  s.Done,
		"completion_ratio":      ratio,
		"committed_points":      s.CommittedPoints,
		"completed_points":      s.CompletedPoints,
		"carried_over":          s.CarriedOver,
	}
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.DateOnly)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/HamedShams/sprint-insights/internal/metrics"
)

// RenderText produces the human readable summary.
func RenderText(r Report) string {
	var b strings.Builder
	b.WriteString("=== Sprint Insights Report ===\n")
	b.WriteString("Filter Configuration:\n")
	for _, line := range r.Filter {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	fmt.Fprintf(&b, "Projects: %d, Sprints: %d\n", len(r.Projects), r.SprintCount())
	fmt.Fprintf(&b, "Total Issues Analyzed: %d\n", r.Totals.IssueCount)
	writeTotals(&b, r.Totals)

	for _, p := range r.Projects {
		fmt.Fprintf(&b, "\n=== Project: %s (%s, ID: %s) ===\n", p.Name, p.Key, p.ID)
		if p.Unavailable {
			fmt.Fprintf(&b, "DATA UNAVAILABLE: %s\n", p.Reason)
			continue
		}
		fmt.Fprintf(&b, "Total Issues Analyzed: %d\n", p.Rollup.IssueCount)
		writeTotals(&b, p.Rollup)
		if len(p.Boards) == 0 {
			fmt.Fprintf(&b, "\nNo Scrum boards found for project %s\n", p.Key)
			continue
		}

		b.WriteString("\n=== Board Details ===\n")
		for _, bd := range p.Boards {
			fmt.Fprintf(&b, "\nBoard: %s (ID: %d)\n", bd.Name, bd.ID)
			if bd.Unavailable {
				fmt.Fprintf(&b, "  DATA UNAVAILABLE: %s\n", bd.Reason)
				continue
			}
			fmt.Fprintf(&b, "Total Issues: %d\n", bd.Rollup.IssueCount)
			writeTotals(&b, bd.Rollup)
			if len(bd.Sprints) == 0 {
				b.WriteString("  No sprints matched the filter\n")
			}
			for _, s := range bd.Sprints {
				writeSprint(&b, s)
			}
		}
	}
	return b.String()
}

func writeSprint(b *strings.Builder, s Sprint) {
	fmt.Fprintf(b, "\n  Sprint: %s (%s%s) - %d issues\n", s.Name, s.State, period(s), s.Metrics.IssueCount)
	if s.Unavailable {
		fmt.Fprintf(b, "    DATA UNAVAILABLE: %s\n", s.Reason)
		return
	}
	m := s.Metrics
	if m.IssueCount == 0 {
		fmt.Fprintf(b, "    No issues found for sprint %s\n", s.Name)
		return
	}

	b.WriteString("    Priority Distribution:\n")
	for _, bucket := range metrics.Buckets {
		fmt.Fprintf(b, "      %s: %d\n", bucket, m.Priority[bucket])
	}

	if l := m.Longest; l != nil {
		fmt.Fprintf(b, "    Longest Resolution: %s - %s\n", l.Key, days(l.Duration))
		fmt.Fprintf(b, "      Summary: %s\n", l.Summary)
		fmt.Fprintf(b, "      Priority: %s\n", orDash(l.Priority))
	}

	b.WriteString("    Resolution Metrics:\n")
	if avg, ok := m.Resolution.Average(); ok {
		fmt.Fprintf(b, "      Average: %s\n", days(avg))
		fmt.Fprintf(b, "      Max: %s\n", days(m.Resolution.Max))
		fmt.Fprintf(b, "      Min: %s\n", days(m.Resolution.Min))
	} else {
		b.WriteString("      No resolved issues\n")
	}
	fmt.Fprintf(b, "      Unresolved: %d\n", m.Resolution.Unresolved)
	if m.Resolution.Undated > 0 {
		fmt.Fprintf(b, "      Missing dates: %d\n", m.Resolution.Undated)
	}

	ratio, _ := m.CompletionRatio()
	fmt.Fprintf(b, "    Completion: %d/%d done (%.0f%%), %d carried over", m.Done, m.IssueCount, ratio*100, m.CarriedOver)
	if m.CommittedPoints > 0 {
		fmt.Fprintf(b, ", %s/%s points", num(m.CompletedPoints), num(m.CommittedPoints))
	}
	b.WriteString("\n")
}

func writeTotals(b *strings.Builder, s metrics.Summary) {
	avg, ok := s.Resolution.Average()
	if !ok {
		b.WriteString("Average Resolution Time: no data\n")
		return
	}
	fmt.Fprintf(b, "Average Resolution Time: %s\n", days(avg))
	fmt.Fprintf(b, "Max Resolution Time: %s\n", days(s.Resolution.Max))
	fmt.Fprintf(b, "Min Resolution Time: %s\n", days(s.Resolution.Min))
}

func period(s Sprint) string {
	switch {
	case s.Start != nil && s.End != nil:
		return ", " + s.Start.UTC().Format(time.DateOnly) + " to " + s.End.UTC().Format(time.DateOnly)
	case s.Start != nil:
		return ", from " + s.Start.UTC().Format(time.DateOnly)
	}
	return ""
}

func days(d time.Duration) string { return fmt.Sprintf("%.1f days", metrics.Days(d)) }

func num(v float64) string { return strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0") }

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

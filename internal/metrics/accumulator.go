package metrics

import (
	"github.com/HamedShams/sprint-insights/internal/domain"
)

// Accumulator folds issues into a Summary. Issues are deduplicated by key so
// that a rollup over several sprints sees each issue once.
type Accumulator struct {
	sprintID int64
	seen     map[string]struct{}
	sum      Summary
}

// NewSprintAccumulator counts carry-over relative to sprintID.
func NewSprintAccumulator(sprintID int64) *Accumulator {
	return &Accumulator{sprintID: sprintID, seen: map[string]struct{}{}, sum: Summary{Priority: NewDistribution()}}
}

// NewRollupAccumulator is used for board and project level aggregation.
func NewRollupAccumulator() *Accumulator { return NewSprintAccumulator(0) }

// Add returns false when the issue key was already counted.
func (a *Accumulator) Add(iss domain.Issue) bool {
	if _, dup := a.seen[iss.Key]; dup {
		return false
	}
	a.seen[iss.Key] = struct{}{}

	s := &a.sum
	s.IssueCount++
	s.Priority[Classify(iss.Priority)]++

	if iss.StoryPoints != nil {
		s.CommittedPoints += *iss.StoryPoints
	}
	if iss.Status == domain.StatusDone {
		s.Done++
		if iss.StoryPoints != nil {
			s.CompletedPoints += *iss.StoryPoints
		}
	}

	if a.sprintID != 0 {
		if iss.CarriedOverFrom(a.sprintID) {
			s.CarriedOver++
		}
	} else if len(iss.SprintIDs) > 1 {
		s.CarriedOver++
	}

	switch d, ok := iss.ResolutionTime(); {
	case ok:
		s.Resolution.add(d)
		c := Longest{Key: iss.Key, Summary: iss.Summary, Priority: iss.RawPriority, Duration: d, Created: *iss.Created}
		if s.Longest.beats(c) {
			s.Longest = &c
		}
	case iss.Resolved == nil:
		s.Resolution.Unresolved++
	default:
		s.Resolution.Undated++
	}
	return true
}

func (a *Accumulator) AddAll(issues []domain.Issue) {
	for _, iss := range issues {
		a.Add(iss)
	}
}

// Summary returns a copy detached from the accumulator.
func (a *Accumulator) Summary() Summary {
	out := a.sum
	out.Priority = NewDistribution()
	for b, n := range a.sum.Priority {
		out.Priority[b] = n
	}
	if a.sum.Longest != nil {
		l := *a.sum.Longest
		out.Longest = &l
	}
	return out
}

// ForSprint computes the statistics of one sprint's issues.
func ForSprint(sprintID int64, issues []domain.Issue) Summary {
	acc := NewSprintAccumulator(sprintID)
	acc.AddAll(issues)
	return acc.Summary()
}

// Rollup recomputes statistics over the union of several issue sets, never
// averaging averages.
func Rollup(sets ...[]domain.Issue) Summary {
	acc := NewRollupAccumulator()
	for _, set := range sets {
		acc.AddAll(set)
	}
	return acc.Summary()
}

// Velocity is the mean completed story points per sprint.
func Velocity(sprints []Summary) (float64, bool) {
	if len(sprints) == 0 {
		return 0, false
	}
	var total float64
	for _, s := range sprints {
		total += s.CompletedPoints
	}
	return total / float64(len(sprints)), true
}

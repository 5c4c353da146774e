/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package metrics classifies issues and computes descriptive statistics for
// sprints and their board/project rollups. Everything here is pure.
package metrics

import (
	"time"

	"github.com/HamedShams/sprint-insights/internal/domain"
)

type Bucket string

const (
	Critical     Bucket = "Critical"
	Major        Bucket = "Major"
	Minor        Bucket = "Minor"
	Unclassified Bucket = "Unclassified"
)

// Buckets lists every bucket in report order.
var Buckets = []Bucket{Critical, Major, Minor, Unclassified}

// BucketTable is the priority classification. Priorities missing from the
// table are Unclassified.
var BucketTable = map[domain.Priority]Bucket{
	domain.PriorityHighest: Critical,
	domain.PriorityHigh:    Critical,
	domain.PriorityMedium:  Major,
	domain.PriorityLow:     Minor,
	domain.PriorityLowest:  Minor,
}

func Classify(p domain.Priority) Bucket {
	if b, ok := BucketTable[p]; ok {
		return b
	}
	return Unclassified
}

// Distribution always holds all four buckets.
type Distribution map[Bucket]int

func NewDistribution() Distribution {
	d := make(Distribution, len(Buckets))
	for _, b := range Buckets {
		d[b] = 0
	}
	return d
}

func (d Distribution) Total() int {
	n := 0
	for _, c := range d {
		n += c
	}
	return n
}

// Resolution holds resolution-time statistics over resolved issues only.
// Unresolved issues and issues whose dates cannot be measured are counted
// separately and never contribute to Total, Min or Max.
type Resolution struct {
	Resolved   int
	Unresolved int
	Undated    int
	Total      time.Duration
	Min        time.Duration
	Max        time.Duration
}

func (r Resolution) HasData() bool { return r.Resolved > 0 }

// Average is Total/Resolved; ok is false when nothing was resolved.
func (r Resolution) Average() (time.Duration, bool) {
	if r.Resolved == 0 {
		return 0, false
	}
	return r.Total / time.Duration(r.Resolved), true
}

func (r *Resolution) add(d time.Duration) {
	if r.Resolved == 0 || d < r.Min {
		r.Min = d
	}
	if r.Resolved == 0 || d > r.Max {
		r.Max = d
	}
	r.Resolved++
	r.Total += d
}

// Longest is the drill-down record for the slowest resolved issue.
type Longest struct {
	Key      string
	Summary  string
	Priority string
	Duration time.Duration
	Created  time.Time
}

// beats reports whether candidate should replace cur: longer wins, ties go to
// the earliest created issue, then the smallest key.
func (cur *Longest) beats(c Longest) bool {
	if cur == nil {
		return true
	}
	if c.Duration != cur.Duration {
		return c.Duration > cur.Duration
	}
	if !c.Created.Equal(cur.Created) {
		return c.Created.Before(cur.Created)
	}
	return c.Key < cur.Key
}

type Summary struct {
	IssueCount      int
	Priority        Distribution
	Resolution      Resolution
	Longest         *Longest
	Done            int
	CommittedPoints float64
	CompletedPoints float64
	// CarriedOver counts, for a sprint, issues that moved on to a later
	// sprint; for a rollup, distinct issues that touched more than one sprint.
	CarriedOver int
}

// CompletionRatio is done issues over all issues.
func (s Summary) CompletionRatio() (float64, bool) {
	if s.IssueCount == 0 {
		return 0, false
	}
	return float64(s.Done) / float64(s.IssueCount), true
}

// Days converts a duration to fractional days.
func Days(d time.Duration) float64 { return d.Hours() / 24 }

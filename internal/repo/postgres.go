/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/HamedShams/sprint-insights/internal/metrics"
	"github.com/HamedShams/sprint-insights/internal/report"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var (
	ErrNoRun = errors.New("no run recorded")
	// ErrNoReport is returned when no finished run has been archived yet.
	ErrNoReport = errors.New("no archived report")
)

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	db, err := Open(ctx, cfg.DBDSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("db open failed")
	}
	return db
}

func Open(ctx context.Context, dsn string, log zerolog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool, log: log}, nil
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// TryAdvisoryLock takes a session advisory lock on a dedicated pooled
// connection. unlock is nil when another session holds key.
func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (unlock func(context.Context) error, err error) {
	conn, err := r.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Release()
		return nil, err
	}
	if !ok {
		conn.Release()
		return nil, nil
	}
	return func(ctx context.Context) error {
		defer conn.Release()
		var ok bool
		err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
		if !ok && err == nil {
			return errors.New("advisory unlock returned false")
		}
		return err
	}, nil
}

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// Run is one archived analysis.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Trigger    string     `json:"trigger"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Status     RunStatus  `json:"status"`
	Projects   int        `json:"projects"`
	Sprints    int        `json:"sprints"`
	Issues     int        `json:"issues"`
	Filter     []string   `json:"filter"`
	Error      string     `json:"error"`
}

// Outcome is what FinishRun records.
type Outcome struct {
	Status     RunStatus
	Projects   int
	Sprints    int
	Issues     int
	ReportJSON []byte
	ReportText string
	Err        string
}

// ArchivedReport is the rendered output of the latest finished run.
type ArchivedReport struct {
	RunID      uuid.UUID
	FinishedAt time.Time
	Status     RunStatus
	Text       string
	JSON       []byte
}

func (r *Repository) StartRun(ctx context.Context, id uuid.UUID, trigger string, filter []string) error {
	if filter == nil {
		filter = []string{}
	}
	const q = `INSERT INTO analysis_runs(id, trigger, started_at, status, filter) VALUES($1, $2, now(), $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, id, trigger, RunRunning, filter)
	return err
}

func (r *Repository) FinishRun(ctx context.Context, id uuid.UUID, o Outcome) error {
	var body any
	if len(o.ReportJSON) > 0 {
		body = string(o.ReportJSON)
	}
	const q = `UPDATE analysis_runs SET finished_at=now(), status=$2, projects=$3, sprints=$4, issues=$5,
		report_json=$6, report_text=$7, error=$8 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, o.Status, o.Projects, o.Sprints, o.Issues, body, o.ReportText, o.Err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SaveSprintMetrics stores one row per sprint of the report, unavailable
// sprints included.
func (r *Repository) SaveSprintMetrics(ctx context.Context, runID uuid.UUID, rep report.Report) error {
	batch := &pgx.Batch{}
	const q = `INSERT INTO sprint_metrics(run_id, project_id, board_id, sprint_id, sprint_name, state, available,
		issue_count, critical, major, minor, unclassified, resolved, unresolved,
		avg_days, min_days, max_days, longest_key, done, carried_over, committed_points, completed_points)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (run_id, board_id, sprint_id) DO NOTHING`
	for _, p := range rep.Projects {
		for _, b := range p.Boards {
			for _, s := range b.Sprints {
				m := s.Metrics
				var avg, lo, hi *float64
				if a, ok := m.Resolution.Average(); ok {
					avg, lo, hi = days(a), days(m.Resolution.Min), days(m.Resolution.Max)
				}
				var longest *string
				if m.Longest != nil {
					longest = &m.Longest.Key
				}
				batch.Queue(q, runID, p.ID, b.ID, s.ID, s.Name, string(s.State), !s.Unavailable,
					m.IssueCount, m.Priority[metrics.Critical], m.Priority[metrics.Major],
					m.Priority[metrics.Minor], m.Priority[metrics.Unclassified],
					m.Resolution.Resolved, m.Resolution.Unresolved, avg, lo, hi, longest,
					m.Done, m.CarriedOver, m.CommittedPoints, m.CompletedPoints)
			}
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range batch.Len() {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func days(d time.Duration) *float64 {
	v := report.Round2(metrics.Days(d))
	return &v
}

func (r *Repository) GetLastRun(ctx context.Context) (*Run, error) {
	const q = `SELECT id, trigger, started_at, finished_at, status, projects, sprints, issues, filter, error
		FROM analysis_runs ORDER BY started_at DESC LIMIT 1`
	run := &Run{}
	err := r.db.Pool.QueryRow(ctx, q).Scan(&run.ID, &run.Trigger, &run.StartedAt, &run.FinishedAt,
		&run.Status, &run.Projects, &run.Sprints, &run.Issues, &run.Filter, &run.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// LatestReport returns the newest run that produced a report.
func (r *Repository) LatestReport(ctx context.Context) (*ArchivedReport, error) {
	const q = `SELECT id, finished_at, status, COALESCE(report_text, ''), report_json
		FROM analysis_runs WHERE status IN ('success', 'partial') AND finished_at IS NOT NULL
		ORDER BY finished_at DESC LIMIT 1`
	ar := &ArchivedReport{}
	err := r.db.Pool.QueryRow(ctx, q).Scan(&ar.RunID, &ar.FinishedAt, &ar.Status, &ar.Text, &ar.JSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoReport
	}
	if err != nil {
		return nil, err
	}
	return ar, nil
}

/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"

	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/HamedShams/sprint-insights/internal/repo"
	"github.com/HamedShams/sprint-insights/internal/report"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Archive stores runs and their rendered reports.
type Archive interface {
	StartRun(ctx context.Context, id uuid.UUID, trigger string, filter []string) error
	FinishRun(ctx context.Context, id uuid.UUID, o repo.Outcome) error
	SaveSprintMetrics(ctx context.Context, runID uuid.UUID, rep report.Report) error
	GetLastRun(ctx context.Context) (*repo.Run, error)
	LatestReport(ctx context.Context) (*repo.ArchivedReport, error)
}

type Notifier interface {
	Enabled() bool
	Broadcast(ctx context.Context, chatIDs []int64, text string) error
}

var ErrRunInProgress = errors.New("an analysis run is already in progress")

type Service struct {
	cfg      config.Config
	log      zerolog.Logger
	analyzer *Analyzer
	repo     Archive
	tg       Notifier
	running  atomic.Bool
}

func New(cfg config.Config, log zerolog.Logger, r Archive, jira Tracker, tg Notifier) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		analyzer: NewAnalyzer(jira, log, cfg.WorkersJira),
		repo:     r,
		tg:       tg,
	}
}

// RunResult is what one RunReport produced.
type RunResult struct {
	ID     uuid.UUID
	Status repo.RunStatus
	Report report.Report
	Text   string
	JSON   []byte
}

// RunReport analyzes the configured scope, archives the outcome and delivers
// the text report. Archive and delivery failures are logged and do not fail
// the run.
func (s *Service) RunReport(ctx context.Context, trigger string) (RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.run(ctx, trigger)
}

// Start claims the run slot and runs the report in the background, detached
// from ctx cancellation. It returns ErrRunInProgress without starting
// anything when another run holds the slot.
func (s *Service) Start(ctx context.Context, trigger string) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	go func() {
		defer s.running.Store(false)
		if _, err := s.run(context.WithoutCancel(ctx), trigger); err != nil {
			s.log.Error().Err(err).Str("trigger", trigger).Msg("background run failed")
		}
	}()
	return nil
}

func (s *Service) run(ctx context.Context, trigger string) (RunResult, error) {
	res := RunResult{ID: uuid.New()}
	log := s.log.With().Str("run", res.ID.String()).Str("trigger", trigger).Logger()
	req := RequestFromConfig(s.cfg)

	archived := true
	if err := s.repo.StartRun(ctx, res.ID, trigger, req.Filter.Describe()); err != nil {
		log.Error().Err(err).Msg("start run failed")
		archived = false
	}
	log.Info().Msg("report run: start")

	runCtx := ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	// finishing must outlive a run that was cancelled
	finishCtx := context.WithoutCancel(ctx)

	rep, err := s.analyzer.Run(runCtx, req)
	if err != nil {
		log.Error().Err(err).Msg("report run failed")
		if archived {
			if ferr := s.repo.FinishRun(finishCtx, res.ID, repo.Outcome{Status: repo.RunFailed, Err: err.Error()}); ferr != nil {
				log.Error().Err(ferr).Msg("finish run failed")
			}
		}
		res.Status = repo.RunFailed
		return res, err
	}

	res.Report = rep
	res.Text = report.RenderText(rep)
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, rep); err != nil {
		log.Error().Err(err).Msg("render json failed")
	}
	res.JSON = buf.Bytes()
	res.Status = repo.RunSuccess
	if rep.Partial() {
		res.Status = repo.RunPartial
	}

	if archived {
		if err := s.repo.SaveSprintMetrics(finishCtx, res.ID, rep); err != nil {
			log.Error().Err(err).Msg("save sprint metrics failed")
		}
		outcome := repo.Outcome{
			Status:     res.Status,
			Projects:   len(rep.Projects),
			Sprints:    rep.SprintCount(),
			Issues:     rep.Totals.IssueCount,
			ReportJSON: res.JSON,
			ReportText: res.Text,
		}
		if err := s.repo.FinishRun(finishCtx, res.ID, outcome); err != nil {
			log.Error().Err(err).Msg("finish run failed")
		}
	}

	s.deliver(finishCtx, log, res.Text)
	log.Info().Str("status", string(res.Status)).Int("sprints", rep.SprintCount()).Msg("report run: done")
	return res, nil
}

func (s *Service) deliver(ctx context.Context, log zerolog.Logger, text string) {
	if s.tg == nil || !s.tg.Enabled() || len(s.cfg.TelegramChatIDs) == 0 {
		log.Debug().Msg("telegram delivery disabled")
		return
	}
	if err := s.tg.Broadcast(ctx, s.cfg.TelegramChatIDs, text); err != nil {
		log.Error().Err(err).Msg("telegram delivery incomplete")
	}
}

// Running reports whether a run is in progress in this process.
func (s *Service) Running() bool { return s.running.Load() }

func (s *Service) GetLastRun(ctx context.Context) (*repo.Run, error) {
	return s.repo.GetLastRun(ctx)
}

func (s *Service) LatestReport(ctx context.Context) (*repo.ArchivedReport, error) {
	return s.repo.LatestReport(ctx)
}

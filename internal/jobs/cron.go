/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/HamedShams/sprint-insights/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// reportLockKey guards scheduled runs across instances sharing a database.
const reportLockKey int64 = 424242

type service interface {
	RunReport(ctx context.Context, trigger string) (services.RunResult, error)
}

type locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (func(context.Context) error, error)
}

type Cron struct {
	cfg  config.Config
	log  zerolog.Logger
	svc  service
	lock locker
	c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, lock locker) (*Cron, error) {
	c := cron.New(cron.WithLocation(cfg.Location()), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log, svc: svc, lock: lock, c: c}
	if _, err := c.AddFunc(cfg.ReportCron, cr.report); err != nil {
		return nil, fmt.Errorf("cron %q: %w", cfg.ReportCron, err)
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop halts scheduling and waits for a running job to return or ctx to end.
func (cr *Cron) Stop(ctx context.Context) {
	select {
	case <-cr.c.Stop().Done():
	case <-ctx.Done():
	}
}

func (cr *Cron) report() {
	budget := cr.cfg.RunTimeout + time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	unlock, err := cr.lock.TryAdvisoryLock(ctx, reportLockKey)
	if err != nil {
		cr.log.Error().Err(err).Msg("cron: lock error")
		return
	}
	if unlock == nil {
		cr.log.Info().Msg("cron: already running elsewhere")
		return
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			cr.log.Error().Err(err).Msg("cron: unlock failed")
		}
	}()

	cr.log.Info().Msg("cron: sprint report")
	if _, err := cr.svc.RunReport(ctx, "cron"); err != nil {
		cr.log.Error().Err(err).Msg("cron: report failed")
	}
}

/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HamedShams/sprint-insights/internal/adapters/jira"
	"github.com/HamedShams/sprint-insights/internal/adapters/telegram"
	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/HamedShams/sprint-insights/internal/http"
	"github.com/HamedShams/sprint-insights/internal/jobs"
	"github.com/HamedShams/sprint-insights/internal/logger"
	"github.com/HamedShams/sprint-insights/internal/repo"
	"github.com/HamedShams/sprint-insights/internal/services"
)

func main() {
	cfg, err := config.Load()
	log := logger.New(cfg)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db := repo.MustOpen(ctx, cfg, log)
	defer db.Close()
	if err := repo.Migrate(cfg.DBDSN, log); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
	repository := repo.NewRepository(db, log)

	// Adapters
	jc := jira.NewClient(cfg, log)
	tg := telegram.NewClient(cfg, log)

	// Services
	svc := services.New(cfg, log, repository, jc, tg)

	// HTTP server (Gin)
	srv := &nethttp.Server{Addr: cfg.HTTPAddr, Handler: http.NewRouter(cfg, log, svc), ReadHeaderTimeout: 10 * time.Second}

	// Cron
	cron, err := jobs.NewCron(cfg, log, svc, repository)
	if err != nil {
		log.Fatal().Err(err).Msg("cron")
	}
	cron.Start()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("addr", cfg.HTTPAddr).Str("cron", cfg.ReportCron).Msg("sprint insights up")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	cron.Stop(shutdownCtx)
	st := jc.Stats()
	log.Info().Int64("jira_requests", st.Requests).Int64("jira_retries", st.Retries).Msg("bye")
}

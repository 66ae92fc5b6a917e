package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"gatewatch/internal/config"
	"gatewatch/internal/db"
	"gatewatch/internal/logger"
	"gatewatch/internal/notify"
	"gatewatch/internal/pipeline"
	"gatewatch/internal/repository"
	"gatewatch/internal/scheduler"
	"gatewatch/internal/service"
	"gatewatch/internal/whitelist"
)

var stopTimeout = 2 * time.Second

// app holds the wired components shared by serve and run.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	gdb      *gorm.DB
	wl       whitelist.Whitelist
	notifier *notify.Composite
	service  *service.GateService
}

// newApp loads configuration and builds everything up to the service layer.
// Configuration faults surface here, before any goroutine starts. Logs go to
// out, or stdout when nil.
func newApp(path string, out io.Writer) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: out})

	wl, err := whitelist.Load(cfg.Whitelist, log)
	if err != nil {
		return nil, fmt.Errorf("load whitelist: %w", err)
	}

	gdb, err := db.Open(cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	notifier := notify.FromConfig(cfg.Notify, log)

	repo := repository.NewEventRepository(gdb)
	return &app{
		cfg:      cfg,
		log:      log,
		gdb:      gdb,
		wl:       wl,
		notifier: notifier,
		service:  service.NewGateService(repo, notifier, wl, cfg.Camera.ID, log),
	}, nil
}

func (a *app) newScheduler() *scheduler.Scheduler {
	proc := pipeline.FromConfig(a.cfg, a.wl, a.log)
	return scheduler.New(proc, a.service, a.cfg.Pipeline.TickInterval(), a.log)
}

// stopScheduler stops the loop. A timeout means a tick is still running and
// may touch the frame source and the database while they are released.
func (a *app) stopScheduler(s *scheduler.Scheduler) error {
	err := s.Stop(stopTimeout)
	if errors.Is(err, scheduler.ErrStopTimeout) {
		a.log.Error().
			Err(err).
			Dur("timeout", stopTimeout).
			Msg("scheduler still running a tick; frame source not released")
	}
	return err
}

func (a *app) close() error {
	return errors.Join(a.notifier.Close(), db.Close(a.gdb))
}

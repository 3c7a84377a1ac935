package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/borgmon/alarm-clock/pkg/audio"
	"github.com/borgmon/alarm-clock/pkg/control"
	"github.com/borgmon/alarm-clock/pkg/engine"
	"github.com/borgmon/alarm-clock/pkg/logger"
	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/notify"
	"github.com/borgmon/alarm-clock/pkg/scheduler"
	"github.com/borgmon/alarm-clock/pkg/store"
	"github.com/borgmon/alarm-clock/pkg/trigger"
	"github.com/borgmon/alarm-clock/pkg/waketimer"
)

// AlarmClock is the running daemon.
type AlarmClock struct {
	config    *models.Config
	log       zerolog.Logger
	logCloser io.Closer

	store  *store.SQLiteStore
	timer  *waketimer.LocalTimer
	engine *engine.Engine
	server *control.Server
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newAlarmClock(ctx context.Context, cfg *models.Config) (*AlarmClock, error) {
	ac := &AlarmClock{config: cfg}
	ac.log, ac.logCloser = logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Out: os.Stderr})

	ac.log.Info().
		Str("db", cfg.DBPath).
		Str("socket", cfg.SocketPath).
		Dur("snooze", cfg.SnoozeDuration()).
		Dur("sync_interval", cfg.SyncInterval).
		Dur("check_interval", cfg.CheckInterval).
		Bool("auto_start", cfg.AutoStart).
		Msg("Loaded configuration")

	st, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		ac.logCloser.Close()
		return nil, err
	}
	ac.store = st

	clock := waketimer.RealClock{}
	ac.timer = waketimer.NewLocalTimer(clock, ac.log)
	sched := scheduler.New(st, ac.timer, clock, ac.log)
	coord := trigger.New(st, sched, audio.NewPlayer(ac.log), notify.NewConsole(os.Stdout, cfg.SnoozeMinutes, ac.log), cfg.SnoozeMinutes, ac.log)
	ac.engine = engine.New(st, sched, coord, cfg.SyncInterval, ac.log)
	ac.server = control.NewServer(cfg.SocketPath, ac.engine, ac.log)
	return ac, nil
}

// run re-arms every active alarm, then serves until ctx is done.
func (ac *AlarmClock) run(ctx context.Context) error {
	if ac.config.AutoStart {
		if err := setupAutostart(true, ac.log); err != nil {
			ac.log.Warn().Err(err).Msg("Failed to setup autostart")
		}
	}

	report, err := ac.engine.OnBoot(ctx)
	if err != nil {
		return fmt.Errorf("boot recovery: %w", err)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "warning: alarm %d is not armed: %v\n", f.ID, f.Err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(3)
	go func() {
		defer wg.Done()
		ac.timer.Run(ctx, ac.config.CheckInterval)
	}()
	go func() {
		defer wg.Done()
		if err := ac.engine.Run(ctx); err != nil {
			errs <- fmt.Errorf("engine: %w", err)
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if err := ac.server.Serve(ctx); err != nil {
			errs <- fmt.Errorf("control socket: %w", err)
			cancel()
		}
	}()

	ac.log.Info().Int("armed", len(report.Armed)).Msg("alarmd running")
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

func (ac *AlarmClock) quit() {
	ac.timer.Close()
	if err := ac.store.Close(); err != nil {
		ac.log.Warn().Err(err).Msg("Failed to close store")
	}
	ac.log.Info().Msg("alarmd stopped")
	ac.logCloser.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

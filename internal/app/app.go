// Package app wires the host runtime: config manager, logging, transport
// adapter, scheduler/notifier services, storage and the plugin manager.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"hotbot/internal/config"
	"hotbot/internal/notifier"
	"hotbot/internal/plugin"
	"hotbot/internal/services/scheduler"
	"hotbot/internal/storage"
	kit "hotbot/internal/transport"
	"hotbot/internal/transport/telegram"
	logx "hotbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	sched   *scheduler.Service
	notif   *notifier.Service
	store   storage.Store
	pm      *plugin.PluginManager

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	defaultTimeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, time.Minute)
	if err != nil {
		return nil, err
	}
	schedSvc := scheduler.New(scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defaultTimeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
	}, log.With(logx.String("comp", "scheduler")))

	notifSvc := notifier.New(notifier.Config{
		Enabled:    cfg.Notifier.Enabled,
		Workers:    cfg.Notifier.Workers,
		QueueSize:  cfg.Notifier.QueueSize,
		RatePerSec: cfg.Notifier.RatePerSec,
		RetryMax:   cfg.Notifier.RetryMax,
	}, ad, log.With(logx.String("comp", "notifier")))
	notifSvc.SetDefaultTarget(kit.ChatTarget{ChatID: cfg.Telegram.PushChat})

	store, err := storage.Open(storage.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	pm := plugin.NewPluginManager(log.With(logx.String("comp", "plugins")),
		cfgm, plugin.PluginDeps{
			Logger: log,
			Config: cfgm,
			Services: &plugin.Services{
				Scheduler: schedSvc,
				Notifier:  notifSvc,
			},
			Store: store,
		})

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		sched:   schedSvc,
		notif:   notifSvc,
		store:   store,
		pm:      pm,
	}, nil
}

func (a *App) Plugins() *plugin.PluginManager { return a.pm }

func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Transactional hot reload: a config that fails validation is never
	// committed, the previous one stays applied.
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if cfg.Scheduler.Workers < 0 {
			return fmt.Errorf("scheduler.workers must be >= 0")
		}
		if cfg.Notifier.Workers < 0 {
			return fmt.Errorf("notifier.workers must be >= 0")
		}
		if raw := strings.TrimSpace(cfg.Scheduler.DefaultTimeout); raw != "" {
			if _, err := config.ParseDurationField("scheduler.default_timeout", raw); err != nil {
				return err
			}
		}
		if raw := strings.TrimSpace(cfg.Telegram.PollTimeout); raw != "" {
			if _, err := config.ParseDurationField("telegram.poll_timeout", raw); err != nil {
				return err
			}
		}
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	if err := a.adapter.Start(runCtx); err != nil {
		cancel()
		a.cancel = nil
		return err
	}

	if a.sched.Enabled() {
		a.sched.Start(runCtx)
	}
	a.notif.Start(runCtx)

	a.pm.BindContext(runCtx)
	if err := a.pm.StartAll(runCtx); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("config watch stopped", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// reloadLoop applies committed config updates to running components.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyConfig(ctx, newCfg)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.notif.Apply(notifier.Config{
		Enabled:    cfg.Notifier.Enabled,
		Workers:    cfg.Notifier.Workers,
		QueueSize:  cfg.Notifier.QueueSize,
		RatePerSec: cfg.Notifier.RatePerSec,
		RetryMax:   cfg.Notifier.RetryMax,
	})
	a.notif.SetDefaultTarget(kit.ChatTarget{ChatID: cfg.Telegram.PushChat})

	prevEnabled := a.sched.Enabled()
	defaultTimeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, time.Minute)
	if err != nil {
		a.log.Warn("invalid scheduler.default_timeout, keeping 1m", logx.Err(err))
		defaultTimeout = time.Minute
	}
	a.sched.Apply(scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defaultTimeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
	})
	if prevEnabled && !cfg.Scheduler.Enabled {
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	} else if !prevEnabled && cfg.Scheduler.Enabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	a.pm.OnConfigUpdate(ctx, cfg)
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.cancel == nil {
		return nil
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	// Cancel the run context first so background loops unwind immediately.
	a.cancel()
	a.cancel = nil

	// Bound each shutdown step so one component cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("step", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached, continuing",
				logx.String("step", name), logx.Err(stepCtx.Err()))
		}
	}

	step("plugins", 4*time.Second, func(c context.Context) error { a.pm.StopAll(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })

	step("background", 2*time.Second, func(c context.Context) error {
		done := make(chan struct{})
		go func() { a.wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close error", logx.Err(err))
		}
	}

	a.log.Info("stopped")
	return a.logs.Close()
}

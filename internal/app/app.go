package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"genboard/internal/commands"
	"genboard/internal/config"
	"genboard/internal/dashboard"
	"genboard/internal/eventbus"
	"genboard/internal/generator"
	"genboard/internal/notifier"
	rtsup "genboard/internal/runtime/supervisor"
	"genboard/internal/storage"
	"genboard/internal/task/scheduler"
	"genboard/internal/transport"
	"genboard/internal/transport/telegram"
	logx "genboard/pkg/logx"
)

const cycleSchedule = "dashboard.cycle"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter transport.Adapter

	gens     *generator.Store
	dash     *dashboard.Service
	activity *dashboard.Activity
	sched    *scheduler.Service
	notif    *notifier.Service
	cmds     *commands.Router

	updates chan transport.Update
}

// New loads the config and wires every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	// The chat sink needs the adapter, so logging starts without it and the
	// final config is applied once the sink is set.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logs, log := logx.New(bootCfg)

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	callTimeout, err := config.ParseDurationOrDefault("dashboard.call_timeout", cfg.Dashboard.CallTimeout, 10*time.Second)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout, CallTimeout: callTimeout}, log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	chatID, threadID, _ := config.ParseGroupLog(cfg.Telegram.GroupLog)
	logs.SetChatSink(chatSink(ad), chatID, threadID)
	logs.Apply(logCfg)

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     eventbus.New(),
		adapter: ad,
		updates: make(chan transport.Update, 256),
	}
	if err := a.wire(cfg, log); err != nil {
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func chatSink(m transport.Messenger) logx.ChatSendFunc {
	return func(ctx context.Context, chatID int64, threadID int, text string) error {
		_, err := m.SendText(ctx, transport.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &transport.SendOptions{DisablePreview: true})
		return err
	}
}

func (a *App) wire(cfg *config.Config, log logx.Logger) error {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = st
	a.log.Info("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	ds, err := mapDashboardConfig(cfg)
	if err != nil {
		return err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}

	a.gens = generator.NewStore(st, log)
	a.notif = notifier.New(ncfg, a.adapter, log, a.bus)
	a.dash = dashboard.New(a.gens, st, a.adapter, a.notif, a.bus, log, ds.Service)
	a.sched = scheduler.New(scheduler.Config{Enabled: ds.Enabled, Timezone: ds.Timezone}, log, a.bus)
	if err := a.registerCycle(ds.Schedule); err != nil {
		return err
	}
	a.activity = &dashboard.Activity{}
	a.cmds = commands.New(a.dash, a.adapter, st, log, commands.Options{Owners: cfg.Telegram.OwnerUserIDs, Activity: a.activity})
	return nil
}

func (a *App) registerCycle(schedule string) error {
	// No per-run timeout: a cycle is bounded by CallTimeout per call and
	// stops early on shutdown.
	return a.sched.AddSchedule(cycleSchedule, schedule, 0, func(ctx context.Context) error {
		_, err := a.dash.RunCycle(ctx)
		return err
	})
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error recorded by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.notif.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmds.Run(c, a.updates)
	})
	if mu, ok := a.adapter.(transport.CommandMenuUpdater); ok {
		a.sup.Go0("commands.menu", func(c context.Context) {
			cctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(cctx, a.cmds.MenuCommands()); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	actEvents, actUnsub := a.bus.Subscribe(64)
	a.sup.Go0("dashboard.activity", func(c context.Context) {
		defer actUnsub()
		a.activity.Run(c, eventbus.Filter(actEvents, 64, a.activity.Types()...))
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts into the latest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig re-applies the sections that can change at runtime.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, fields := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	chatID, threadID, _ := config.ParseGroupLog(next.Telegram.GroupLog)
	a.logs.SetChatSink(chatSink(a.adapter), chatID, threadID)
	a.logs.Apply(mapLoggingConfig(next))

	if ds, err := mapDashboardConfig(next); err != nil {
		a.log.Warn("invalid dashboard config; keeping previous", logx.Err(err))
	} else {
		a.dash.Apply(ds.Service)
		wasEnabled := a.sched.Enabled()
		a.sched.Apply(scheduler.Config{Enabled: ds.Enabled, Timezone: ds.Timezone})
		if err := a.registerCycle(ds.Schedule); err != nil {
			a.log.Warn("dashboard schedule not updated", logx.Err(err))
		}
		switch {
		case wasEnabled && !ds.Enabled:
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
			a.log.Info("dashboard refresh disabled via config")
		case !wasEnabled && ds.Enabled:
			a.sched.Start(ctx)
			a.log.Info("dashboard refresh enabled via config")
		}
	}

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.notif.Start(ctx)
		}
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}

// Stop shuts components down in dependency order. Each step has its own
// deadline so one stuck component cannot hold the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.closeResources()
	}
	start := time.Now()
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, d time.Duration, fn func(context.Context) error) {
		c, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		if err := fn(c); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step failed", logx.String("step", name), logx.Err(err))
		}
	}
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("supervisor", 3*time.Second, a.sup.Stop)

	err := a.closeResources()
	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	return err
}

func (a *App) closeResources() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

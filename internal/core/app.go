package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"calagent/internal/agent"
	"calagent/internal/config"
	"calagent/internal/eventbus"
	"calagent/internal/parser"
	"calagent/internal/services/sweeper"
	"calagent/internal/storage"

	logx "calagent/pkg/logx"
)

// App wires the process: config manager, logging service, meeting store,
// agent session, and the sweep service, plus the supervised background
// loops (config watch, hot reload, bus logging).
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	session *agent.Session
	sweep   *sweeper.Service
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	store, err := storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", effectiveDriver(cfg.Storage)))

	p, err := buildParser(cfg.Parser)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}

	now, err := clockFor(cfg.Agent.Timezone)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}

	mode, _ := agent.ParseMode(cfg.Agent.Mode)
	memory := agent.OpenMemory(cfg.Agent.MemoryPath, cfg.Agent.UserID, log.With(logx.String("comp", "memory")))
	session, err := agent.NewSession(agent.Options{
		UserID:    cfg.Agent.UserID,
		Mode:      mode,
		Threshold: cfg.Agent.ConfidenceThreshold,
		Store:     store,
		Parser:    p,
		Memory:    memory,
		Bus:       bus,
		Logger:    log.With(logx.String("comp", "agent")),
		Now:       now,
	})
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}

	sweepCfg, err := mapSweeperConfig(cfg.Sweeper)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	sweep := sweeper.New(sweepCfg, store, bus, log.With(logx.String("comp", "sweeper")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		session: session,
		sweep:   sweep,
	}, nil
}

// Session exposes the agent session for embedding callers.
func (a *App) Session() *agent.Session { return a.session }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx,
		WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		WithCancelOnError(true))

	if err := a.sweep.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.startReloadLoop()
	a.startBusLog()

	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

// startReloadLoop applies hot-reloadable config sections: logging, agent
// mode/threshold, sweeper cadence. Storage changes need a restart.
func (a *App) startReloadLoop() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
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
				sections, attrs := config.SummarizeChange(lastApplied, newCfg)
				if len(sections) == 0 {
					a.log.Debug("config reload received, but no effective changes detected")
					continue
				}
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Debug("config change summary", fields...)
				lastApplied = newCfg

				a.applyReload(c, sections, newCfg)
				a.log.Info("config reloaded", fields...)
			}
		}
	})
}

func (a *App) applyReload(ctx context.Context, sections []string, cfg *config.Config) {
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLoggingConfig(cfg))
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		case "agent":
			mode, ok := agent.ParseMode(cfg.Agent.Mode)
			if !ok {
				a.log.Warn("ignoring unknown agent mode", logx.String("mode", cfg.Agent.Mode))
			} else if err := a.session.SetMode(mode); err != nil {
				a.log.Warn("apply agent mode", logx.Err(err))
			}
			if cfg.Agent.ConfidenceThreshold != 0 {
				a.session.SetThreshold(cfg.Agent.ConfidenceThreshold)
			}
		case "parser":
			a.log.Warn("parser config changed; restart required for changes to take effect")
		case "sweeper":
			sweepCfg, err := mapSweeperConfig(cfg.Sweeper)
			if err != nil {
				a.log.Warn("invalid sweeper config ignored", logx.Err(err))
				continue
			}
			if err := a.sweep.Apply(ctx, sweepCfg); err != nil {
				a.log.Error("apply sweeper config", logx.Err(err))
			}
		}
	}
}

// startBusLog mirrors agent events into the log so operators can follow
// decisions without another surface.
func (a *App) startBusLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("bus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Info("event",
					logx.String("type", e.Type),
					logx.Time("at", e.Time),
					logx.Any("data", e.Data))
			}
		}
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Run a shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(ctx context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		start := time.Now()
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
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				return
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("max", max))
		}
	}

	step("sweeper", 6*time.Second, func(context.Context) error {
		a.sweep.Stop()
		return nil
	})

	var supErr error
	if a.sup != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		supErr = a.sup.Stop(waitCtx)
		cancel()
	}

	step("storage", 2*time.Second, func(context.Context) error {
		return a.store.Close()
	})

	a.log.Info("stopped")
	a.logs.Close()
	return supErr
}

// ---- config mapping ----

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}

func effectiveDriver(sc config.StorageConfig) string {
	d := strings.ToLower(strings.TrimSpace(sc.Driver))
	if d != "" {
		return d
	}
	if strings.TrimSpace(sc.Path) != "" {
		return "sqlite"
	}
	return "memory"
}

func buildParser(pc config.ParserConfig) (parser.Parser, error) {
	driver := strings.ToLower(strings.TrimSpace(pc.Driver))
	var p parser.Parser
	switch driver {
	case "", "rules":
		p = parser.NewRules()
	default:
		return nil, fmt.Errorf("unknown parser driver %q", pc.Driver)
	}

	timeout, err := config.ParseDurationOrDefault("parser.timeout", pc.Timeout, 0)
	if err != nil {
		return nil, err
	}
	return parser.Limited(p, pc.RatePerSec, timeout), nil
}

func mapSweeperConfig(sc config.SweeperConfig) (sweeper.Config, error) {
	every, err := config.ParseDurationOrDefault("sweeper.every", sc.Every, 0)
	if err != nil {
		return sweeper.Config{}, err
	}
	return sweeper.Config{
		Enabled:     sc.Enabled,
		Every:       every,
		HorizonDays: sc.HorizonDays,
	}, nil
}

// clockFor builds the session clock in the configured timezone; empty
// means the process-local zone.
func clockFor(tz string) (func() time.Time, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Now, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("agent.timezone: %w", err)
	}
	return func() time.Time { return time.Now().In(loc) }, nil
}

// validateConfig rejects configs that would break a hot reload: bad
// durations, unknown enum values, broken timezones.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	_ = ctx
	if _, ok := agent.ParseMode(cfg.Agent.Mode); !ok {
		return fmt.Errorf("agent.mode: unknown mode %q", cfg.Agent.Mode)
	}
	if t := cfg.Agent.ConfidenceThreshold; t != 0 && (t < 0.3 || t > 0.9) {
		return fmt.Errorf("agent.confidence_threshold: %v outside [0.3, 0.9]", t)
	}
	if _, err := clockFor(cfg.Agent.Timezone); err != nil {
		return err
	}
	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "memory", "mem", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if _, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("parser.timeout", cfg.Parser.Timeout, 0); err != nil {
		return err
	}
	if _, err := buildParser(cfg.Parser); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("sweeper.every", cfg.Sweeper.Every, 0); err != nil {
		return err
	}
	return nil
}

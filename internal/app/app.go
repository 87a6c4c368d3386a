// Package app wires configuration, logging, storage, and the scheduling
// engine together, and keeps them in sync across config hot-reloads.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"agentsched/internal/config"
	"agentsched/internal/eventbus"
	"agentsched/internal/observability/debugsrv"
	"agentsched/internal/observability/metrics"
	"agentsched/internal/runtime/supervisor"
	"agentsched/internal/storage"
	"agentsched/internal/task/executor"
	"agentsched/internal/task/manager"
	"agentsched/internal/task/registry"
	"agentsched/internal/task/scheduler"
	"agentsched/internal/task/strategy"
	"agentsched/internal/timeexpr"
	logx "agentsched/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	met   *metrics.Metrics

	reg   *registry.Registry
	mgr   *manager.Manager
	debug *debugsrv.Server

	handlers *executor.HandlerMap
}

// Options customize construction before components spin up.
type Options struct {
	// Oracle resolves vague schedule phrases. Optional.
	Oracle timeexpr.Oracle
	// Registerer receives the engine's collectors. Defaults to the
	// process-wide prometheus registry.
	Registerer prometheus.Registerer
	// Gatherer backs the /metrics endpoint. Defaults likewise.
	Gatherer prometheus.Gatherer
}

func NewApp(cfgPath string, opts Options) (*App, error) {
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

	bus := eventbus.New()

	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	met := metrics.New(opts.Registerer)

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	regOpts := []registry.Option{registry.WithLogger(log.With(logx.String("comp", "registry")))}
	if store != nil {
		regOpts = append(regOpts, registry.WithStore(store))
	}
	reg := registry.New(regOpts...)
	if store != nil {
		n, err := reg.LoadFrom(context.Background(), store)
		if err != nil {
			return nil, fmt.Errorf("restore tasks: %w", err)
		}
		if n > 0 {
			log.Info("tasks restored", logx.Int("count", n))
		}
	}

	prioCfg, err := mapStrategyConfig(cfg)
	if err != nil {
		return nil, err
	}
	chain := strategy.NewChain(prioCfg)
	sched := scheduler.New(reg, chain, log.With(logx.String("comp", "scheduler")))

	execCfg, err := mapExecutorConfig(cfg)
	if err != nil {
		return nil, err
	}
	handlers := executor.NewHandlerMap()
	execOpts := []executor.Option{
		executor.WithLogger(log.With(logx.String("comp", "executor"))),
		executor.WithBus(bus),
		executor.WithMetrics(met),
	}
	if store != nil {
		execOpts = append(execOpts, executor.WithStore(store))
	}
	exec := executor.New(reg, handlers, execCfg, execOpts...)

	mgrCfg, err := mapManagerConfig(cfg)
	if err != nil {
		return nil, err
	}
	mgrOpts := []manager.Option{
		manager.WithLogger(log.With(logx.String("comp", "manager"))),
		manager.WithMetrics(met),
	}
	if opts.Oracle != nil {
		mgrOpts = append(mgrOpts, manager.WithOracle(opts.Oracle))
	}
	mgr := manager.New(reg, sched, exec, mgrCfg, mgrOpts...)

	debug := debugsrv.New(log.With(logx.String("comp", "debug")), opts.Gatherer, func() any {
		return mgr.Snapshot()
	})

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		met:      met,
		reg:      reg,
		mgr:      mgr,
		debug:    debug,
		handlers: handlers,
	}, nil
}

// Handlers exposes the kind->handler registry so the caller can install
// its callbacks before Start.
func (a *App) Handlers() *executor.HandlerMap { return a.handlers }

// Manager exposes the engine façade for embedding callers.
func (a *App) Manager() *manager.Manager { return a.mgr }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if cfg.Executor.MaxConcurrency < 0 {
			return fmt.Errorf("executor.max_concurrency must be >= 0")
		}
		if cfg.Executor.HistorySize < 0 {
			return fmt.Errorf("executor.history_size must be >= 0")
		}
		if _, err := mapManagerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapExecutorConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStrategyConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDebugConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	cfg := a.cfgm.Get()
	if cfg.Manager.Enabled {
		a.mgr.Start(a.sup.Context())
	}

	dcfg, err := mapDebugConfig(cfg)
	if err != nil {
		return err
	}
	a.debug.Apply(a.sup.Context(), dcfg)

	// Debug-level event tap; components subscribe themselves for real work.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot-reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
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
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				lastApplied = newCfg
				a.applyReload(c, sections, newCfg)
			}
		}
	})

	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyReload re-applies hot-swappable sections and warns about the ones
// that need a restart.
func (a *App) applyReload(ctx context.Context, sections []string, cfg *config.Config) {
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
		case "debug":
			dcfg, err := mapDebugConfig(cfg)
			if err != nil {
				a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
				continue
			}
			a.debug.Apply(ctx, dcfg)
		case "manager":
			if cfg.Manager.Enabled {
				a.mgr.Start(ctx)
			} else {
				a.mgr.Stop(ctx)
			}
			a.log.Warn("manager poll settings changed; interval updates take effect after restart")
		case "storage", "executor", "strategy":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.mgr.Stop(ctx)
	a.debug.Stop(ctx)

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.log.Info("app stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

package app

import (
	"fmt"
	"strings"
	"time"

	"agentsched/internal/config"
	"agentsched/internal/observability/debugsrv"
	"agentsched/internal/storage"
	"agentsched/internal/task/executor"
	"agentsched/internal/task/manager"
	"agentsched/internal/task/strategy"
)

// Mapping helpers: translate the wire config (duration strings, omitted
// fields) into typed component configs. Each returns an error instead of
// guessing so hot-reload validation can reject bad files before commit.

func mapManagerConfig(cfg *config.Config) (manager.Config, error) {
	poll, err := config.ParseDurationOrDefault("manager.poll_interval", cfg.Manager.PollInterval, time.Second)
	if err != nil {
		return manager.Config{}, err
	}
	mc := manager.Config{PollInterval: poll}
	if tz := strings.TrimSpace(cfg.Manager.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return manager.Config{}, fmt.Errorf("manager.timezone: invalid %q: %w", tz, err)
		}
		mc.Location = loc
	}
	return mc, nil
}

func mapExecutorConfig(cfg *config.Config) (executor.Config, error) {
	timeout, err := config.ParseDurationOrDefault("executor.default_timeout", cfg.Executor.DefaultTimeout, 0)
	if err != nil {
		return executor.Config{}, err
	}
	return executor.Config{
		MaxConcurrency:     cfg.Executor.MaxConcurrency,
		DefaultTimeout:     timeout,
		HistorySize:        cfg.Executor.HistorySize,
		DispatchRatePerSec: float64(cfg.Executor.DispatchRatePerSec),
	}, nil
}

func mapStrategyConfig(cfg *config.Config) (strategy.PriorityConfig, error) {
	minAge, err := config.ParseDurationOrDefault("strategy.min_pending_age", cfg.Strategy.MinPendingAge, 0)
	if err != nil {
		return strategy.PriorityConfig{}, err
	}
	threshold := cfg.Strategy.PriorityThreshold
	if threshold == 0 {
		threshold = 5
	}
	return strategy.PriorityConfig{Threshold: threshold, MinPendingAge: minAge}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}

func mapDebugConfig(cfg *config.Config) (debugsrv.Config, error) {
	read, err := config.ParseDurationOrDefault("debug.read_timeout", cfg.Debug.ReadTimeout, 0)
	if err != nil {
		return debugsrv.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("debug.write_timeout", cfg.Debug.WriteTimeout, 0)
	if err != nil {
		return debugsrv.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("debug.idle_timeout", cfg.Debug.IdleTimeout, 0)
	if err != nil {
		return debugsrv.Config{}, err
	}
	return debugsrv.Config{
		Enabled:              cfg.Debug.Enabled,
		Addr:                 cfg.Debug.Addr,
		Token:                cfg.Debug.Token,
		AllowInsecure:        cfg.Debug.AllowInsecure,
		ReadTimeout:          read,
		WriteTimeout:         write,
		IdleTimeout:          idle,
		BlockProfileRate:     cfg.Debug.BlockProfileRate,
		MutexProfileFraction: cfg.Debug.MutexProfileFraction,
	}, nil
}

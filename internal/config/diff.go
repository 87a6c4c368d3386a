package config

import (
	"reflect"
	"sort"
	"strings"

	logx "agentsched/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
//
// The app layer uses the section list to re-Apply only the services whose
// config actually changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Debug server (never log token)
	oldD := oldCfg.Debug
	newD := newCfg.Debug
	if oldD.Enabled != newD.Enabled ||
		strings.TrimSpace(oldD.Addr) != strings.TrimSpace(newD.Addr) ||
		oldD.AllowInsecure != newD.AllowInsecure ||
		strings.TrimSpace(oldD.ReadTimeout) != strings.TrimSpace(newD.ReadTimeout) ||
		strings.TrimSpace(oldD.WriteTimeout) != strings.TrimSpace(newD.WriteTimeout) ||
		strings.TrimSpace(oldD.IdleTimeout) != strings.TrimSpace(newD.IdleTimeout) ||
		oldD.MutexProfileFraction != newD.MutexProfileFraction ||
		oldD.BlockProfileRate != newD.BlockProfileRate ||
		(strings.TrimSpace(oldD.Token) != "") != (strings.TrimSpace(newD.Token) != "") {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newD.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newD.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newD.Token) != ""),
			logx.Bool("debug.allow_insecure", newD.AllowInsecure),
		)
	}

	// Manager (poll loop)
	if oldCfg.Manager.Enabled != newCfg.Manager.Enabled ||
		strings.TrimSpace(oldCfg.Manager.PollInterval) != strings.TrimSpace(newCfg.Manager.PollInterval) ||
		strings.TrimSpace(oldCfg.Manager.Timezone) != strings.TrimSpace(newCfg.Manager.Timezone) {
		changed = append(changed, "manager")
		attrs = append(attrs,
			logx.Bool("manager.enabled", newCfg.Manager.Enabled),
			logx.String("manager.poll_interval", strings.TrimSpace(newCfg.Manager.PollInterval)),
			logx.String("manager.timezone", strings.TrimSpace(newCfg.Manager.Timezone)),
		)
	}

	// Executor
	if !reflect.DeepEqual(oldCfg.Executor, newCfg.Executor) {
		changed = append(changed, "executor")
		attrs = append(attrs,
			logx.Int("executor.max_concurrency", newCfg.Executor.MaxConcurrency),
			logx.String("executor.default_timeout", strings.TrimSpace(newCfg.Executor.DefaultTimeout)),
			logx.Int("executor.history_size", newCfg.Executor.HistorySize),
			logx.Int("executor.dispatch_rate_per_sec", newCfg.Executor.DispatchRatePerSec),
		)
	}

	// Strategy tuning
	if !reflect.DeepEqual(oldCfg.Strategy, newCfg.Strategy) {
		changed = append(changed, "strategy")
		attrs = append(attrs,
			logx.Int("strategy.priority_threshold", newCfg.Strategy.PriorityThreshold),
			logx.String("strategy.min_pending_age", strings.TrimSpace(newCfg.Strategy.MinPendingAge)),
		)
	}

	// Storage (persistence). Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

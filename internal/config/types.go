package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Debug   DebugConfig   `json:"debug,omitempty"`

	// Manager controls the polling façade (discover-and-execute loop).
	Manager ManagerConfig `json:"manager"`

	// Executor controls batch execution of due tasks.
	Executor ExecutorConfig `json:"executor,omitempty"`

	// Strategy tunes the priority-based fallback strategy.
	Strategy StrategyConfig `json:"strategy,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
}

// ManagerConfig controls the scheduler manager's poll loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type ManagerConfig struct {
	Enabled bool `json:"enabled"`

	// PollInterval is the period of the discover-and-execute loop.
	// Default: "1s".
	PollInterval string `json:"poll_interval,omitempty"`

	// Timezone is the IANA zone used when resolving natural-language
	// schedule expressions (e.g. "Asia/Jakarta"). Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

// ExecutorConfig controls execution settings for due tasks.
//
// Defaults (when fields are omitted/zero):
//   - max_concurrency: 5
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
//   - dispatch_rate_per_sec: 0 (unlimited)
type ExecutorConfig struct {
	MaxConcurrency int `json:"max_concurrency,omitempty"`

	// DefaultTimeout is a Go duration string (e.g. "10s", "1m").
	// Use "0s" to disable a global default timeout.
	DefaultTimeout string `json:"default_timeout,omitempty"`

	HistorySize int `json:"history_size,omitempty"`

	// DispatchRatePerSec throttles how fast tasks within a batch are
	// handed to workers. 0 disables throttling.
	DispatchRatePerSec int `json:"dispatch_rate_per_sec,omitempty"`
}

// StrategyConfig tunes the priority-based fallback strategy.
type StrategyConfig struct {
	// PriorityThreshold is the minimum priority at which an unscheduled
	// Pending task becomes eligible. Default: 5.
	PriorityThreshold int `json:"priority_threshold,omitempty"`

	// MinPendingAge is a Go duration string; a task must have been Pending
	// at least this long before the priority strategy fires (prevents
	// immediate-fire races on creation). Default: "0s".
	MinPendingAge string `json:"min_pending_age,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./agentsched_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DebugConfig controls the optional debug HTTP server (pprof + metrics).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /debug/pprof/profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

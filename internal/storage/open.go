package storage

import (
	"context"
	"errors"
	"strings"

	logx "agentsched/pkg/logx"
)

// Store is the minimal persistence API used by the task registry and the
// executor. Implementations must be safe for concurrent use.
type Store interface {
	PutTask(ctx context.Context, rec TaskRecord) error
	DeleteTask(ctx context.Context, id string) error
	LoadTasks(ctx context.Context) ([]TaskRecord, error)
	AppendResult(ctx context.Context, rec ResultRecord) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

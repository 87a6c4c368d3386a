package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// TaskRecord is a task snapshot keyed by ID. Payload is the task's JSON
// encoding; the store never interprets it, which keeps the schema stable
// as the task model grows fields.
type TaskRecord struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

// ResultRecord is one execution attempt, flattened for the journal.
// Keep it compact and schema-stable.
type ResultRecord struct {
	TaskID     string    `json:"taskId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Success    bool      `json:"success"`
	Attempt    int       `json:"attempt"`
	ErrCode    string    `json:"errCode,omitempty"`
	ErrMsg     string    `json:"errMsg,omitempty"`
	TookMS     int64     `json:"tookMs"`
}

package storage

// Package storage provides an optional persistence layer for the scheduler.
//
// It currently supports:
//   - Task record upserts/deletes (to restore the registry on restart)
//   - Execution result appends (append-only run history)

package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "agentsched/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.results.jsonl        (append-only JSON Lines)
//   - <prefix>.tasks.snapshot.json  (periodic snapshot)
//   - <prefix>.tasks.journal.jsonl  (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	resultsFile *os.File

	taskSnapshotPath string
	taskJournalFile  *os.File
	tasks            map[string]json.RawMessage

	taskWrites int
}

// taskJournalRecord is one journal line. A nil Payload marks a deletion.
type taskJournalRecord struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	resultsPath := prefix + ".results.jsonl"
	snapPath := prefix + ".tasks.snapshot.json"
	journalPath := prefix + ".tasks.journal.jsonl"

	rf, err := os.OpenFile(resultsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load tasks from snapshot + journal.
	tasks := map[string]json.RawMessage{}
	_ = loadTaskSnapshot(snapPath, tasks)
	_ = replayTaskJournal(journalPath, tasks)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	return &fileStore{
		log:              log,
		resultsFile:      rf,
		taskSnapshotPath: snapPath,
		taskJournalFile:  jf,
		tasks:            tasks,
		taskWrites:       0,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.resultsFile != nil {
		err1 = s.resultsFile.Close()
		s.resultsFile = nil
	}
	if s.taskJournalFile != nil {
		err2 = s.taskJournalFile.Close()
		s.taskJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendResult(ctx context.Context, rec ResultRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultsFile == nil {
		return errors.New("results file closed")
	}
	return json.NewEncoder(s.resultsFile).Encode(rec)
}

func (s *fileStore) PutTask(ctx context.Context, rec TaskRecord) error {
	_ = ctx
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskJournalFile == nil {
		return errors.New("task journal closed")
	}
	if s.tasks == nil {
		s.tasks = map[string]json.RawMessage{}
	}
	s.tasks[id] = json.RawMessage(rec.Payload)

	if err := s.appendJournalLocked(taskJournalRecord{ID: id, Payload: rec.Payload}); err != nil {
		return err
	}
	return nil
}

func (s *fileStore) DeleteTask(ctx context.Context, id string) error {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskJournalFile == nil {
		return errors.New("task journal closed")
	}
	delete(s.tasks, id)

	return s.appendJournalLocked(taskJournalRecord{ID: id})
}

func (s *fileStore) LoadTasks(ctx context.Context) ([]TaskRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskRecord, 0, len(s.tasks))
	for id, payload := range s.tasks {
		out = append(out, TaskRecord{ID: id, Payload: append([]byte(nil), payload...)})
	}
	return out, nil
}

func (s *fileStore) appendJournalLocked(rec taskJournalRecord) error {
	if err := json.NewEncoder(s.taskJournalFile).Encode(rec); err != nil {
		return err
	}
	s.taskWrites++
	if s.taskWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("task journal compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	if s.tasks == nil {
		return nil
	}

	tmp := s.taskSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.tasks); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.taskSnapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.taskJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.taskJournalFile.Seek(0, 2)
	return err
}

func loadTaskSnapshot(path string, out map[string]json.RawMessage) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]json.RawMessage
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayTaskJournal(path string, out map[string]json.RawMessage) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		var r taskJournalRecord
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			continue
		}
		if r.ID == "" {
			continue
		}
		if len(r.Payload) == 0 {
			delete(out, r.ID)
			continue
		}
		out[r.ID] = r.Payload
	}
	return s.Err()
}

// ============================================================================
// Persistence - Opaque Durable Snapshot/Restore Interface
// ============================================================================
//
// Package: internal/persistence
// File: persistence.go
// Purpose: The persistence backend is an external, opaque
// collaborator: snapshot() -> bytes, restore(bytes). This package defines
// that interface plus a JSON-file default implementation, so the scheduler
// is runnable without a real durable store wired in.
//
// The default implementation writes atomically (temp file + rename) and
// checks a schema version on load, covering the full durable state: the
// task id counter, every ScheduledTask, every cron JobConfiguration, and
// the cluster-master framework id.
// ============================================================================

package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ethanzhu/shardsched/pkg/model"
)

const schemaVersion = 1

// Errors returned by the JSON file Store.
var (
	ErrCorrupted           = errors.New("persistence: snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("persistence: snapshot schema version is incompatible")
)

// Snapshot is the full durable state of the scheduler.
type Snapshot struct {
	SchemaVersion int                       `json:"schema_version"`
	TaskCounter   int64                     `json:"task_counter"`
	Tasks         []*model.ScheduledTask    `json:"tasks"`
	CronJobs      []model.JobConfiguration  `json:"cron_jobs"`
	FrameworkID   string                    `json:"framework_id,omitempty"`
}

// Store is the opaque persistence backend: snapshot()/restore(bytes) in
// collaborator terms.
type Store interface {
	Snapshot(data Snapshot) error
	Restore() (Snapshot, error)
}

// JSONFile is a Store backed by a single JSON file on disk, written
// atomically (temp file + os.Rename, a POSIX-atomic operation).
type JSONFile struct {
	path string
	mu   sync.Mutex
}

// NewJSONFile creates a JSONFile-backed Store at path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Snapshot implements Store.
func (f *JSONFile) Snapshot(data Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data.SchemaVersion = schemaVersion
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Restore implements Store. A missing file is not an error: it means
// first startup, and an empty Snapshot is returned.
func (f *JSONFile) Restore() (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var data Snapshot
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{SchemaVersion: schemaVersion}, nil
		}
		return data, fmt.Errorf("read snapshot: %w", err)
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if data.SchemaVersion != schemaVersion {
		return data, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, data.SchemaVersion, schemaVersion)
	}
	return data, nil
}

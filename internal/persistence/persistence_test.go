package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanzhu/shardsched/pkg/model"
)

func TestRestoreMissingFileReturnsEmptySnapshot(t *testing.T) {
	f := NewJSONFile(filepath.Join(t.TempDir(), "does-not-exist.json"))

	snap, err := f.Restore()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, snap.SchemaVersion)
	assert.Empty(t, snap.Tasks)
}

func TestSnapshotThenRestoreRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	f := NewJSONFile(path)

	daemon := true
	original := Snapshot{
		TaskCounter: 42,
		Tasks: []*model.ScheduledTask{
			{ID: 1, Status: model.StatusRunning, JobKey: model.JobKey{Owner: "www", Name: "hello"}, Info: model.TaskInfo{Daemon: &daemon}},
		},
		CronJobs:    []model.JobConfiguration{{Owner: "www", Name: "cron", CronSchedule: "0 * * * *"}},
		FrameworkID: "fw-1",
	}

	require.NoError(t, f.Snapshot(original))

	restored, err := f.Restore()
	require.NoError(t, err)
	assert.Equal(t, int64(42), restored.TaskCounter)
	require.Len(t, restored.Tasks, 1)
	assert.Equal(t, model.TaskID(1), restored.Tasks[0].ID)
	assert.True(t, *restored.Tasks[0].Info.Daemon)
	require.Len(t, restored.CronJobs, 1)
	assert.Equal(t, "fw-1", restored.FrameworkID)
}

func TestSnapshotWritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	f := NewJSONFile(path)

	require.NoError(t, f.Snapshot(Snapshot{TaskCounter: 1}))

	// The temp file used for the atomic rename must not linger.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestRestoreRejectsIncompatibleSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":999}`), 0o644))

	f := NewJSONFile(path)
	_, err := f.Restore()
	require.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestRestoreRejectsCorruptedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	f := NewJSONFile(path)
	_, err := f.Restore()
	require.ErrorIs(t, err, ErrCorrupted)
}

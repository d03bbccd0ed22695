// ============================================================================
// JobManager - Job Intake Abstraction
// ============================================================================
//
// Package: internal/jobmanager
// File: jobmanager.go
// Purpose: The receiveJob/updateJob/hasJob/deleteJob abstraction and its two
// variants: ImmediateJobManager (materializes tasks at submit time) and
// CronJobManager (stores the configuration, materializes on each firing).
//
// Two owners of non-overlapping job keys, chosen by submission-order
// priority in the scheduler's intake chain. CronJobManager has no back
// reference to SchedulerCore: it only ever receives a cronTriggered(jobKey)
// call, and the deps needed to materialize tasks and run the state machine
// are supplied to it at construction time, never the other way around.
// ============================================================================

package jobmanager

import (
	"sync"

	"github.com/ethanzhu/shardsched/internal/statemach"
	"github.com/ethanzhu/shardsched/internal/store"
	"github.com/ethanzhu/shardsched/pkg/model"
)

// JobManager is the common job-intake abstraction implemented by
// ImmediateJobManager and CronJobManager.
type JobManager interface {
	// Accepts reports whether this manager is responsible for cfg.
	Accepts(cfg model.JobConfiguration) bool
	// ReceiveJob materializes (or stores) an accepted job configuration.
	ReceiveJob(cfg model.JobConfiguration) error
	// HasJob reports whether key is currently owned by this manager.
	HasJob(key model.JobKey) bool
	// DeleteJob removes any job-manager-owned state for key (the stored
	// cron configuration, for CronJobManager; a no-op for
	// ImmediateJobManager, which owns no state beyond the TaskStore).
	DeleteJob(key model.JobKey) bool
}

// MaterializeTasks builds one PENDING ScheduledTask per TaskInfo in cfg,
// assigns each a fresh id, and inserts them into the store.
func MaterializeTasks(s *store.TaskStore, nextID func() model.TaskID, cfg model.JobConfiguration) ([]*model.ScheduledTask, error) {
	key := cfg.Key()
	tasks := make([]*model.ScheduledTask, 0, len(cfg.Tasks))
	for _, info := range cfg.Tasks {
		tasks = append(tasks, &model.ScheduledTask{
			ID:      nextID(),
			Status:  model.StatusPending,
			ShardID: info.ShardID,
			JobKey:  key,
			Info:    info,
		})
	}
	if err := s.Add(tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ImmediateJobManager materializes tasks into the TaskStore at submit
// time and retains no state of its own.
type ImmediateJobManager struct {
	store  *store.TaskStore
	nextID func() model.TaskID
}

// NewImmediateJobManager creates an ImmediateJobManager backed by s,
// drawing new task ids from nextID.
func NewImmediateJobManager(s *store.TaskStore, nextID func() model.TaskID) *ImmediateJobManager {
	return &ImmediateJobManager{store: s, nextID: nextID}
}

// Accepts implements JobManager: immediate jobs are anything without a
// cron expression.
func (m *ImmediateJobManager) Accepts(cfg model.JobConfiguration) bool {
	return !cfg.IsCron()
}

// ReceiveJob implements JobManager.
func (m *ImmediateJobManager) ReceiveJob(cfg model.JobConfiguration) error {
	_, err := MaterializeTasks(m.store, m.nextID, cfg)
	return err
}

// HasJob implements JobManager: an immediate job is "active" so long as it
// has at least one active (PENDING/STARTING/RUNNING) task.
func (m *ImmediateJobManager) HasJob(key model.JobKey) bool {
	return m.store.Exists(model.ActiveQuery(key))
}

// DeleteJob implements JobManager: ImmediateJobManager owns no state
// beyond the TaskStore, so there is nothing to delete here; killing the
// job's tasks is the caller's (SchedulerCore's) responsibility.
func (m *ImmediateJobManager) DeleteJob(model.JobKey) bool {
	return false
}

// CronJobManager stores cron JobConfigurations and materializes fresh
// tasks each time its cron expression fires.
type CronJobManager struct {
	mu      sync.Mutex
	configs map[model.JobKey]model.JobConfiguration

	deps statemach.Deps
}

// NewCronJobManager creates a CronJobManager. deps supplies the store, id
// counter, and kill dispatcher needed to apply a KillExisting collision
// policy when a cron fires.
func NewCronJobManager(deps statemach.Deps) *CronJobManager {
	return &CronJobManager{
		configs: make(map[model.JobKey]model.JobConfiguration),
		deps:    deps,
	}
}

// Accepts implements JobManager: cron jobs are anything with a cron
// expression set.
func (m *CronJobManager) Accepts(cfg model.JobConfiguration) bool {
	return cfg.IsCron()
}

// ReceiveJob implements JobManager: stores the configuration without
// materializing any tasks; the first firing of CronTriggered does that.
func (m *CronJobManager) ReceiveJob(cfg model.JobConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.Key()] = cfg
	return nil
}

// HasJob implements JobManager.
func (m *CronJobManager) HasJob(key model.JobKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.configs[key]
	return ok
}

// DeleteJob implements JobManager: removes the stored cron configuration.
// This does not fail merely because no live tasks exist.
func (m *CronJobManager) DeleteJob(key model.JobKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[key]; !ok {
		return false
	}
	delete(m.configs, key)
	return true
}

// AllConfigurations returns every stored cron configuration, in no
// particular order. Used only by snapshot capture.
func (m *CronJobManager) AllConfigurations() []model.JobConfiguration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.JobConfiguration, 0, len(m.configs))
	for _, cfg := range m.configs {
		out = append(out, cfg)
	}
	return out
}

// Configuration returns the stored configuration for key, if any.
func (m *CronJobManager) Configuration(key model.JobKey) (model.JobConfiguration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[key]
	return cfg, ok
}

// UpdateConfiguration replaces the stored configuration for an
// already-accepted cron job. Reports false if key is not cron-managed.
func (m *CronJobManager) UpdateConfiguration(cfg model.JobConfiguration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cfg.Key()
	if _, ok := m.configs[key]; !ok {
		return false
	}
	m.configs[key] = cfg
	return true
}

// CronTriggered materializes tasks for key's cron firing, applying the
// configured collision policy when active tasks from a previous firing
// still exist. Returns the newly materialized tasks, or nil if the firing
// was skipped (CancelNew) or the key is unknown.
func (m *CronJobManager) CronTriggered(key model.JobKey) ([]*model.ScheduledTask, error) {
	m.mu.Lock()
	cfg, ok := m.configs[key]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}

	active := m.deps.Store.Fetch(model.ActiveQuery(key))
	if len(active) > 0 {
		switch cfg.CronCollisionPolicy {
		case model.CancelNew:
			return nil, nil
		case model.RunOverlap:
			// materialize without killing
		default: // model.KillExisting, and the empty-string default
			statemach.Apply(m.deps, model.ActiveQuery(key), model.StatusKilledByClient)
		}
	}

	return MaterializeTasks(m.deps.Store, m.deps.NextID, cfg)
}

// ============================================================================
// ConfigurationManager - Job Configuration Validation
// ============================================================================
//
// Package: internal/configmgr
// File: configmgr.go
// Purpose: Validates a submitted JobConfiguration and fills in job-level
// defaults (the cron collision policy). TaskInfo fields are left as
// submitted; no task-level field is copied in from the enclosing job.
//
// Validation failures are reported as a schederr.TaskDescriptionException
// and propagated to the caller unchanged; they are never logged-and-
// swallowed like routine scheduler-internal rejections.
// ============================================================================

package configmgr

import (
	"sort"

	"github.com/robfig/cron/v3"

	"github.com/ethanzhu/shardsched/internal/schederr"
	"github.com/ethanzhu/shardsched/pkg/model"
)

// Manager validates JobConfigurations and populates inherited task fields.
type Manager struct {
	cronParser cron.Parser
}

// New creates a ConfigurationManager using the standard five-field cron
// expression grammar. Unlike robfig/cron's ParseStandard, it does not accept
// @-descriptors such as "@hourly" or "@every 1h".
func New() *Manager {
	return &Manager{
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Validate checks structural invariants on cfg and returns a
// *schederr.TaskDescriptionException describing the first violation found,
// or nil if cfg is well formed.
func (m *Manager) Validate(cfg model.JobConfiguration) error {
	if cfg.Owner == "" {
		return schederr.NewTaskDescriptionException("owner must not be empty")
	}
	if cfg.Name == "" {
		return schederr.NewTaskDescriptionException("job name must not be empty")
	}
	if len(cfg.Tasks) == 0 {
		return schederr.NewTaskDescriptionException("job %s/%s has no tasks", cfg.Owner, cfg.Name)
	}

	seen := make(map[int]bool, len(cfg.Tasks))
	for _, task := range cfg.Tasks {
		if task.ShardID < 0 {
			return schederr.NewTaskDescriptionException("shard id %d is negative", task.ShardID)
		}
		if seen[task.ShardID] {
			return schederr.NewTaskDescriptionException("duplicate shard id %d", task.ShardID)
		}
		seen[task.ShardID] = true

		if task.StartCommand == "" {
			return schederr.NewTaskDescriptionException("shard %d has no start command", task.ShardID)
		}
		if task.NumCPUs <= 0 {
			return schederr.NewTaskDescriptionException("shard %d has non-positive num_cpus", task.ShardID)
		}
		if task.RAMMb <= 0 {
			return schederr.NewTaskDescriptionException("shard %d has non-positive ram_mb", task.ShardID)
		}
		if task.DiskMb < 0 {
			return schederr.NewTaskDescriptionException("shard %d has negative disk_mb", task.ShardID)
		}
		if task.MaxTaskFailures != nil && *task.MaxTaskFailures < 1 {
			return schederr.NewTaskDescriptionException("shard %d has non-positive max_task_failures", task.ShardID)
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for i, id := range ids {
		if id != i {
			return schederr.NewTaskDescriptionException(
				"shard ids must form the contiguous range [0, %d), got %v", len(ids), ids)
		}
	}

	if cfg.IsCron() {
		if _, err := m.cronParser.Parse(cfg.CronSchedule); err != nil {
			return schederr.NewTaskDescriptionException("invalid cron expression %q: %v", cfg.CronSchedule, err)
		}
		switch cfg.CronCollisionPolicy {
		case "", model.KillExisting, model.CancelNew, model.RunOverlap:
		default:
			return schederr.NewTaskDescriptionException("unknown cron collision policy %q", cfg.CronCollisionPolicy)
		}
	}

	return nil
}

// Populate returns cfg with CronCollisionPolicy defaulted to KillExisting
// for cron jobs. It leaves every TaskInfo unchanged.
func (m *Manager) Populate(cfg model.JobConfiguration) model.JobConfiguration {
	if cfg.IsCron() && cfg.CronCollisionPolicy == "" {
		cfg.CronCollisionPolicy = model.KillExisting
	}
	return cfg
}

// ValidateAndPopulate runs Validate then Populate, the sequence
// createJob/updateJob invoke on every submission.
func (m *Manager) ValidateAndPopulate(cfg model.JobConfiguration) (model.JobConfiguration, error) {
	if err := m.Validate(cfg); err != nil {
		return cfg, err
	}
	return m.Populate(cfg), nil
}

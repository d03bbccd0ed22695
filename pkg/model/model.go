// Package model defines the core domain types shared by the scheduler:
// task descriptions, job configurations, and live scheduled tasks.
package model

import "time"

// TaskID uniquely identifies one attempt to run one shard. Strictly
// increasing across the process lifetime.
type TaskID int64

// JobKey identifies a job: the (owner, name) pair is globally unique
// across active jobs.
type JobKey struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (k JobKey) String() string {
	return k.Owner + "/" + k.Name
}

// TaskStatus is a point in the task lifecycle state machine.
type TaskStatus string

const (
	StatusPending        TaskStatus = "PENDING"
	StatusStarting       TaskStatus = "STARTING"
	StatusRunning        TaskStatus = "RUNNING"
	StatusFinished       TaskStatus = "FINISHED"
	StatusFailed         TaskStatus = "FAILED"
	StatusKilled         TaskStatus = "KILLED"
	StatusLost           TaskStatus = "LOST"
	StatusKilledByClient TaskStatus = "KILLED_BY_CLIENT"
)

// IsTerminal reports whether no further transitions are admitted from s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusKilled, StatusLost, StatusKilledByClient:
		return true
	default:
		return false
	}
}

// IsActive reports whether a task in status s counts toward the
// at-most-one-active-task-per-shard invariant.
func (s TaskStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusStarting, StatusRunning:
		return true
	default:
		return false
	}
}

// CronCollisionPolicy governs what happens when a cron job fires while a
// previous firing's tasks are still active.
type CronCollisionPolicy string

const (
	// KillExisting kills the currently active tasks, then materializes a
	// fresh batch.
	KillExisting CronCollisionPolicy = "KILL_EXISTING"
	// CancelNew skips this firing entirely, leaving the active tasks alone.
	CancelNew CronCollisionPolicy = "CANCEL_NEW"
	// RunOverlap materializes a fresh batch alongside the active tasks.
	RunOverlap CronCollisionPolicy = "RUN_OVERLAP"
)

const defaultMaxTaskFailures = 1

// TaskInfo is an immutable description of one shard's work. Optional
// fields use pointers so "unset" is distinguishable from the zero value;
// unset fields are stored as nil and resolved at read time by IsDaemon and
// EffectiveMaxTaskFailures, not filled in by ConfigurationManager.
type TaskInfo struct {
	StartCommand string `json:"start_command"`

	NumCPUs  float64 `json:"num_cpus"`
	RAMMb    int64   `json:"ram_mb"`
	DiskMb   int64   `json:"disk_mb"`
	Ports    []string `json:"ports,omitempty"`

	Daemon          *bool `json:"daemon,omitempty"`
	MaxTaskFailures *int  `json:"max_task_failures,omitempty"`
	Priority        *int  `json:"priority,omitempty"`

	// ShardID is unique within the job; shard ids form the contiguous
	// range [0, N).
	ShardID int `json:"shard_id"`
}

// IsDaemon reports the effective daemon flag (false if unset).
func (t TaskInfo) IsDaemon() bool {
	return t.Daemon != nil && *t.Daemon
}

// EffectiveMaxTaskFailures returns the configured max_task_failures, or the
// default of 1 if unset.
func (t TaskInfo) EffectiveMaxTaskFailures() int {
	if t.MaxTaskFailures == nil {
		return defaultMaxTaskFailures
	}
	return *t.MaxTaskFailures
}

// JobConfiguration describes a submitted job: owner, name, the set of
// TaskInfos (one per shard), and optional cron scheduling.
type JobConfiguration struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`

	Tasks []TaskInfo `json:"tasks"`

	CronSchedule        string              `json:"cron_schedule,omitempty"`
	CronCollisionPolicy CronCollisionPolicy `json:"cron_collision_policy,omitempty"`
}

// Key returns the job's (owner, name) key.
func (j JobConfiguration) Key() JobKey {
	return JobKey{Owner: j.Owner, Name: j.Name}
}

// IsCron reports whether this configuration fires on a cron schedule
// rather than materializing tasks immediately at submit time.
func (j JobConfiguration) IsCron() bool {
	return j.CronSchedule != ""
}

// VolatileResources is the non-persisted, best-effort resource-consumption
// snapshot reported by the slave for a running task.
type VolatileResources struct {
	CPUUsage  float64 `json:"-"`
	RAMUsage  int64   `json:"-"`
	DiskUsage int64   `json:"-"`
}

// ScheduledTask is a live record of one attempt to run one shard.
type ScheduledTask struct {
	ID TaskID `json:"id"`

	AssignedTaskID string  `json:"assigned_task_id,omitempty"`
	SlaveID        *string `json:"slave_id,omitempty"`
	SlaveHost      *string `json:"slave_host,omitempty"`

	Status       TaskStatus `json:"status"`
	FailureCount int        `json:"failure_count"`

	// AncestorID is the id of the prior attempt this task replaces, if any.
	AncestorID *TaskID `json:"ancestor_id,omitempty"`

	ShardID int `json:"shard_id"`

	JobKey JobKey   `json:"job_key"`
	Info   TaskInfo `json:"info"`

	Resources VolatileResources `json:"-"`

	// LastHeartbeat is set when an offer places this task and refreshed by
	// every slave report for it from its recorded host; used by the
	// reconciliation grace period. Unlike Resources, it is persisted.
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
}

// IsAssignedToSlave reports whether the task has been placed (slave id and
// host are set iff status is not PENDING).
func (t *ScheduledTask) IsAssignedToSlave() bool {
	return t.SlaveID != nil
}

// Clone returns a deep-enough copy of t suitable for returning from store
// queries without aliasing mutable fields.
func (t *ScheduledTask) Clone() *ScheduledTask {
	clone := *t
	if t.SlaveID != nil {
		id := *t.SlaveID
		clone.SlaveID = &id
	}
	if t.SlaveHost != nil {
		host := *t.SlaveHost
		clone.SlaveHost = &host
	}
	if t.AncestorID != nil {
		anc := *t.AncestorID
		clone.AncestorID = &anc
	}
	if t.Info.Ports != nil {
		clone.Info.Ports = append([]string(nil), t.Info.Ports...)
	}
	return &clone
}

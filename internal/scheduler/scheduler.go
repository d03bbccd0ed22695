// ============================================================================
// SchedulerCore - Facade Over Every Scheduling Component
// ============================================================================
//
// Package: internal/scheduler
// File: scheduler.go
// Purpose: Wires the TaskStore, state machine, configuration manager,
// scheduling filter, job managers, work queue, cron clock, and update
// planner into the single facade external callers (a cluster-master driver
// callback, a CLI, an HTTP handler) interact with.
//
// Concurrency model: a single coarse RWMutex. Every mutating operation
// (createJob, offer, setTaskStatus, killTasks, restartTasks, updateJob,
// updateRegisteredTasks) takes the write lock; getTasks takes the read
// lock. Driver I/O (kill RPCs) is deferred to the workqueue so it never
// runs while the lock is held. The task id counter lives under the same
// lock: every caller of nextID already holds it.
// ============================================================================

package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ethanzhu/shardsched/internal/configmgr"
	"github.com/ethanzhu/shardsched/internal/driver"
	"github.com/ethanzhu/shardsched/internal/filter"
	"github.com/ethanzhu/shardsched/internal/jobmanager"
	"github.com/ethanzhu/shardsched/internal/metrics"
	"github.com/ethanzhu/shardsched/internal/persistence"
	"github.com/ethanzhu/shardsched/internal/reconcile"
	"github.com/ethanzhu/shardsched/internal/schederr"
	"github.com/ethanzhu/shardsched/internal/statemach"
	"github.com/ethanzhu/shardsched/internal/store"
	"github.com/ethanzhu/shardsched/internal/updater"
	"github.com/ethanzhu/shardsched/internal/workqueue"
	"github.com/ethanzhu/shardsched/pkg/model"
)

var log = slog.Default()

// Clock is the minimal cron-trigger-clock surface SchedulerCore drives;
// satisfied by *cronclock.Clock, and narrowed here so the core does not
// depend on robfig/cron directly.
type Clock interface {
	Schedule(key model.JobKey, expr string, onFire func(model.JobKey)) error
	Unschedule(key model.JobKey)
}

// Core is the scheduler facade.
type Core struct {
	mu sync.RWMutex

	store     *store.TaskStore
	configMgr *configmgr.Manager
	filter    filter.Filter
	immediate *jobmanager.ImmediateJobManager
	cron      *jobmanager.CronJobManager
	managers  []jobmanager.JobManager

	reconciler *reconcile.Engine
	planner    *updater.Planner

	wq     *workqueue.Queue
	drv    driver.Driver
	clock  Clock
	metric *metrics.Collector

	frameworkID string
	nextID      int64
}

// Options configures a new Core. Zero values select sensible defaults:
// filter.Default, driver.Logging, updater.LoggingLauncher, a 5 minute
// reconciliation grace period, and no metrics collector.
type Options struct {
	Filter              filter.Filter
	Driver              driver.Driver
	Clock               Clock
	Launcher            updater.Launcher
	Metrics             *metrics.Collector
	ReconcileGracePeriod time.Duration
	WorkQueueBuffer     int
}

// New constructs a Core with an empty TaskStore and no cron jobs.
func New(opts Options) *Core {
	s := store.New()

	if opts.Filter == nil {
		opts.Filter = filter.Default{}
	}
	if opts.Driver == nil {
		opts.Driver = driver.Logging{}
	}
	if opts.ReconcileGracePeriod <= 0 {
		opts.ReconcileGracePeriod = 5 * time.Minute
	}
	if opts.WorkQueueBuffer <= 0 {
		opts.WorkQueueBuffer = 256
	}

	c := &Core{
		store:     s,
		configMgr: configmgr.New(),
		filter:    opts.Filter,
		wq:        workqueue.New(opts.WorkQueueBuffer),
		drv:       opts.Driver,
		clock:     opts.Clock,
		metric:    opts.Metrics,
	}

	deps := statemach.Deps{
		Store:       s,
		NextID:      c.nextTaskID,
		EnqueueKill: c.enqueueKill,
	}

	c.immediate = jobmanager.NewImmediateJobManager(s, c.nextTaskID)
	c.cron = jobmanager.NewCronJobManager(deps)
	c.managers = []jobmanager.JobManager{c.cron, c.immediate}

	c.reconciler = reconcile.New(deps, opts.ReconcileGracePeriod, c.metric)
	c.planner = updater.New(s, c.cron, opts.Launcher, deps, c.onCronScheduleChange)

	c.wq.Start()
	return c
}

// nextTaskID hands out the next strictly-increasing task id. Every call
// site already holds Core's write lock: the id counter is protected by
// the scheduler lock, not a separate atomic.
func (c *Core) nextTaskID() model.TaskID {
	c.nextID++
	return model.TaskID(c.nextID)
}

func (c *Core) enqueueKill(id model.TaskID) {
	drv := c.drv
	if err := c.wq.DoWork(func() bool {
		result := drv.KillTask(id)
		return result == 0
	}); err != nil {
		log.Warn("failed to enqueue kill", "taskID", id, "error", err)
	}
}

func (c *Core) onCronScheduleChange(key model.JobKey, expr string) {
	if c.clock == nil {
		return
	}
	if err := c.clock.Schedule(key, expr, c.cronFired); err != nil {
		log.Error("failed to reschedule cron job", "job", key, "error", err)
	}
}

func (c *Core) cronFired(key model.JobKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks, err := c.cron.CronTriggered(key)
	if err != nil {
		log.Error("cron firing failed", "job", key, "error", err)
		return
	}
	log.Info("cron job fired", "job", key, "materialized", len(tasks))
}

// Registered binds a real cluster-master driver connection and framework
// id, replacing the default logging driver. It does not start the cron
// clock.
func (c *Core) Registered(drv driver.Driver, frameworkID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drv = drv
	c.frameworkID = frameworkID
}

// CreateJob validates cfg, routes it to the manager that accepts it
// (cron or immediate), and rejects duplicates of an already-active job
// key.
func (c *Core) CreateJob(cfg model.JobConfiguration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	populated, err := c.configMgr.ValidateAndPopulate(cfg)
	if err != nil {
		c.recordRejected()
		return err
	}

	key := populated.Key()
	for _, m := range c.managers {
		if m.HasJob(key) {
			c.recordRejected()
			return schederr.NewScheduleException("job %s already active", key)
		}
	}

	for _, m := range c.managers {
		if !m.Accepts(populated) {
			continue
		}
		if err := m.ReceiveJob(populated); err != nil {
			c.recordRejected()
			return err
		}
		if populated.IsCron() && c.clock != nil {
			if err := c.clock.Schedule(key, populated.CronSchedule, c.cronFired); err != nil {
				c.recordRejected()
				return schederr.NewTaskDescriptionException("failed to schedule cron job: %v", err)
			}
		}
		if c.metric != nil {
			c.metric.RecordJobCreated()
		}
		return nil
	}
	c.recordRejected()
	return schederr.NewScheduleException("no job manager accepts job %s", key)
}

func (c *Core) recordRejected() {
	if c.metric != nil {
		c.metric.RecordJobRejected()
	}
}

// Offer matches the first PENDING task, in ascending task id order, that
// the scheduling filter accepts for the offer's resources, transitioning it
// to STARTING. Returns nil, false if no pending task fits.
func (c *Core) Offer(slaveID, slaveHost string, resources filter.OfferResources) (*model.ScheduledTask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pred := c.filter.MakeFilter(resources, slaveHost)
	candidates := c.store.Fetch(model.QueryByStatus(model.StatusPending))
	sortByID(candidates)

	for _, t := range candidates {
		if !pred(t) {
			continue
		}
		deps := c.deps()
		assigned := statemach.Assign(deps, t.ID, slaveID, slaveHost)
		if assigned != nil {
			c.store.Mutate(model.QueryByID(assigned.ID), func(mt *model.ScheduledTask) {
				mt.LastHeartbeat = time.Now()
			})
			if c.metric != nil {
				c.metric.RecordOfferMatched()
			}
			return c.store.Get(assigned.ID), true
		}
	}
	if c.metric != nil {
		c.metric.RecordOfferDeclined()
	}
	return nil, false
}

func sortByID(tasks []*model.ScheduledTask) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].ID < tasks[j-1].ID; j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}

func (c *Core) deps() statemach.Deps {
	return statemach.Deps{Store: c.store, NextID: c.nextTaskID, EnqueueKill: c.enqueueKill}
}

// SetTaskStatus drives tasks matched by q through the state machine toward
// `to`, applying whatever reschedule/kill-dispatch side effects the
// transition table calls for. Used both for externally observed slave
// reports and internal test/administrative use.
func (c *Core) SetTaskStatus(q model.Query, to model.TaskStatus) []*model.ScheduledTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := statemach.Apply(c.deps(), q, to)
	c.recordRescheduleOutcomes(results, to)
	return results
}

func (c *Core) recordRescheduleOutcomes(results []*model.ScheduledTask, to model.TaskStatus) {
	if c.metric == nil {
		return
	}
	for _, t := range results {
		if t.Status == model.StatusPending && t.AncestorID != nil {
			c.metric.RecordRescheduled()
		}
	}
}

// KillTasks removes PENDING matches outright and transitions active
// non-PENDING matches to KILLED_BY_CLIENT (scheduling a driver kill for
// each). If q targets a job key that is cron-managed, the cron job
// definition is always deleted too, even if no tasks matched.
func (c *Core) KillTasks(q model.Query) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	matches := c.store.Fetch(q)
	var pendingIDs, activeIDs []model.TaskID
	for _, t := range matches {
		switch {
		case t.Status == model.StatusPending:
			pendingIDs = append(pendingIDs, t.ID)
		case t.Status.IsActive():
			activeIDs = append(activeIDs, t.ID)
		}
	}

	if len(pendingIDs) > 0 {
		c.store.Remove(model.QueryByID(pendingIDs...))
	}
	if len(activeIDs) > 0 {
		statemach.Apply(c.deps(), model.QueryByID(activeIDs...), model.StatusKilledByClient)
	}

	if q.Owner != "" && q.JobName != "" {
		key := model.JobKey{Owner: q.Owner, Name: q.JobName}
		if c.cron.HasJob(key) {
			c.cron.DeleteJob(key)
			if c.clock != nil {
				c.clock.Unschedule(key)
			}
		}
	}

	return nil
}

// RestartTasks kills each active task in ids and immediately reschedules
// a fresh replacement, regardless of its failure budget. Returns the ids
// that were accepted (existing and active); unknown or terminal ids are
// silently skipped.
func (c *Core) RestartTasks(ids []model.TaskID) []model.TaskID {
	c.mu.Lock()
	defer c.mu.Unlock()

	var accepted []model.TaskID
	deps := c.deps()
	for _, id := range ids {
		t := c.store.Get(id)
		if t == nil || !t.Status.IsActive() {
			continue
		}
		statemach.Apply(deps, model.QueryByID(id), model.StatusKilledByClient)
		killed := c.store.Get(id)
		if killed != nil {
			statemach.Reschedule(deps, killed)
		}
		accepted = append(accepted, id)
	}
	return accepted
}

// UpdateJob plans and (when it does not require an external updater)
// applies an update to an existing job's configuration.
func (c *Core) UpdateJob(cfg model.JobConfiguration) (updater.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	populated, err := c.configMgr.ValidateAndPopulate(cfg)
	if err != nil {
		c.recordRejected()
		return "", err
	}

	result, err := c.planner.Plan(populated)
	if err != nil {
		c.recordRejected()
		return result, err
	}
	if c.metric != nil {
		c.metric.RecordUpdateOutcome(string(result))
	}
	return result, nil
}

// UpdateRegisteredTasks reconciles one slave's periodic self-report
// against the TaskStore.
func (c *Core) UpdateRegisteredTasks(report reconcile.RegisteredTaskUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconciler.Reconcile(report)
}

// GetTasks returns a snapshot of every task matching q. Takes only the
// read lock: queries run concurrently with each other, but not with any
// mutating operation.
func (c *Core) GetTasks(q model.Query) []*model.ScheduledTask {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Fetch(q)
}

// Snapshot captures the full durable state of the scheduler.
func (c *Core) Snapshot() persistence.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tasks := c.store.Fetch(model.GetAll())
	var cronJobs []model.JobConfiguration
	// A snapshot is the one place that needs every cron configuration;
	// CronJobManager.AllConfigurations exists for this caller only.
	cronJobs = c.cron.AllConfigurations()

	return persistence.Snapshot{
		TaskCounter: c.nextID,
		Tasks:       tasks,
		CronJobs:    cronJobs,
		FrameworkID: c.frameworkID,
	}
}

// Restore replaces the scheduler's in-memory state with a previously
// captured Snapshot, re-registering every cron job's clock entry. Intended
// for startup only, before any caller can observe the store.
func (c *Core) Restore(data persistence.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Add(data.Tasks); err != nil {
		return err
	}
	c.nextID = data.TaskCounter
	c.frameworkID = data.FrameworkID

	for _, cfg := range data.CronJobs {
		if err := c.cron.ReceiveJob(cfg); err != nil {
			return err
		}
		if c.clock != nil {
			if err := c.clock.Schedule(cfg.Key(), cfg.CronSchedule, c.cronFired); err != nil {
				log.Error("failed to reschedule restored cron job", "job", cfg.Key(), "error", err)
			}
		}
	}
	return nil
}

// Close stops the work queue, waiting for any in-flight kill dispatch.
func (c *Core) Close() {
	c.wq.Stop()
}

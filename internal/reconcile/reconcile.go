// ============================================================================
// ReconciliationEngine - Slave Report Reconciliation
// ============================================================================
//
// Package: internal/reconcile
// File: reconcile.go
// Purpose: Reconciles a slave's periodic RegisteredTaskUpdate report against
// the TaskStore: drives reported status changes through the state machine,
// rejects reports for tasks recorded on a different slave host, and declares
// LOST any task this slave should be running but did not report, once it
// has gone unconfirmed for longer than the grace period.
//
// Uses reconcileJobDifferences-style diffing (compare an external source
// of truth against local state, act only on the delta), adapted here to
// task status rather than job membership.
// ============================================================================

package reconcile

import (
	"log/slog"
	"time"

	"github.com/ethanzhu/shardsched/internal/metrics"
	"github.com/ethanzhu/shardsched/internal/statemach"
	"github.com/ethanzhu/shardsched/pkg/model"
)

var log = slog.Default()

// TaskUpdate is one task's reported status, as seen by its slave.
type TaskUpdate struct {
	TaskID    model.TaskID
	Status    model.TaskStatus
	Resources model.VolatileResources
}

// RegisteredTaskUpdate is a slave's periodic self-report: every task it
// believes it is running or has finished running, plus its own identity.
type RegisteredTaskUpdate struct {
	SlaveHost string
	Tasks     []TaskUpdate
}

// Engine reconciles slave reports against the TaskStore.
type Engine struct {
	deps        statemach.Deps
	gracePeriod time.Duration
	metric      *metrics.Collector
}

// New creates a reconciliation Engine. gracePeriod bounds how long a task
// this slave should be running may go unconfirmed before it is declared
// LOST. metric may be nil, in which case no metrics are recorded.
func New(deps statemach.Deps, gracePeriod time.Duration, metric *metrics.Collector) *Engine {
	return &Engine{deps: deps, gracePeriod: gracePeriod, metric: metric}
}

// Reconcile processes one slave report: applies reported transitions,
// refreshes heartbeats, and declares LOST any task expected on this slave
// that the report omitted past the grace period.
func (e *Engine) Reconcile(report RegisteredTaskUpdate) {
	reportedIDs := make(map[model.TaskID]bool, len(report.Tasks))

	for _, upd := range report.Tasks {
		reportedIDs[upd.TaskID] = true

		t := e.deps.Store.Get(upd.TaskID)
		if t == nil {
			log.Warn("reconcile: report for unknown task", "taskID", upd.TaskID, "slaveHost", report.SlaveHost)
			continue
		}
		if t.SlaveHost == nil || *t.SlaveHost != report.SlaveHost {
			log.Warn("reconcile: cross-slave report ignored", "taskID", upd.TaskID,
				"recordedHost", derefOr(t.SlaveHost, "<none>"), "reportedHost", report.SlaveHost)
			if e.metric != nil {
				e.metric.RecordCrossSlaveRejected()
			}
			continue
		}

		e.deps.Store.Mutate(model.QueryByID(upd.TaskID), func(mt *model.ScheduledTask) {
			mt.Resources = upd.Resources
			mt.LastHeartbeat = now()
		})

		if upd.Status != t.Status {
			statemach.Apply(e.deps, model.QueryByID(upd.TaskID), upd.Status)
		}
	}

	e.expireMissing(report.SlaveHost, reportedIDs)
}

// expireMissing declares LOST any task recorded as active on slaveHost
// that the report did not mention, once it has been unconfirmed for
// longer than the grace period.
func (e *Engine) expireMissing(slaveHost string, reportedIDs map[model.TaskID]bool) {
	onSlave := e.deps.Store.Fetch(model.QueryByStatus(model.StatusStarting, model.StatusRunning).
		WithPredicate(func(t *model.ScheduledTask) bool {
			return t.SlaveHost != nil && *t.SlaveHost == slaveHost
		}))

	cutoff := now().Add(-e.gracePeriod)
	for _, t := range onSlave {
		if reportedIDs[t.ID] {
			continue
		}
		if t.LastHeartbeat.After(cutoff) {
			continue
		}
		log.Warn("reconcile: task missing from slave report past grace period, declaring LOST",
			"taskID", t.ID, "slaveHost", slaveHost, "lastHeartbeat", t.LastHeartbeat)
		if e.metric != nil {
			e.metric.RecordReconcileLost()
		}
		statemach.Apply(e.deps, model.QueryByID(t.ID), model.StatusLost)
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// now is a package-level seam so tests can observe deterministic grace
// period behavior without real clock races.
var now = time.Now

// ============================================================================
// StateMachine - Canonical Task Status Transition Table
// ============================================================================
//
// Package: internal/statemach
// File: statemach.go
// Purpose: The guarded From -> To transition table for a ScheduledTask, and
// the side effects (reschedule, failure-count bump, driver kill dispatch)
// attached to entering each state.
//
// All transitions not named below are rejected: the task's status is left
// unchanged and the rejection is logged, never surfaced as an error to the
// caller (routine in a distributed system, per the scheduler's error
// design). Terminal states admit no further transitions at all.
// ============================================================================

package statemach

import (
	"log/slog"

	"github.com/ethanzhu/shardsched/internal/store"
	"github.com/ethanzhu/shardsched/pkg/model"
)

var log = slog.Default()

// decision is the outcome of evaluating one task's requested transition.
type decision struct {
	allowed      bool
	failureDelta int
	reschedule   bool
	enqueueKill  bool
}

// decide evaluates whether task may move from its current status to `to`,
// and what side effects that move carries.
func decide(task *model.ScheduledTask, to model.TaskStatus) decision {
	from := task.Status
	if from.IsTerminal() {
		return decision{}
	}

	switch {
	case from == model.StatusPending && to == model.StatusStarting:
		return decision{allowed: true}

	case from == model.StatusPending && to == model.StatusLost:
		// LOST (from PENDING, STARTING or RUNNING) never bumps the failure
		// count, it is a pure reschedule.
		return decision{allowed: true, reschedule: true}

	case from == model.StatusStarting && to == model.StatusRunning:
		return decision{allowed: true}

	case from == model.StatusStarting && to == model.StatusLost:
		return decision{allowed: true, reschedule: true}

	case from == model.StatusStarting && to == model.StatusFailed:
		return failureDecision(task)

	case from == model.StatusStarting && to == model.StatusKilled:
		return decision{allowed: true}

	case from == model.StatusRunning && to == model.StatusFinished:
		return decision{allowed: true, reschedule: task.Info.IsDaemon()}

	case from == model.StatusRunning && to == model.StatusFailed:
		return failureDecision(task)

	case from == model.StatusRunning && to == model.StatusKilled:
		return decision{allowed: true}

	case from == model.StatusRunning && to == model.StatusLost:
		return decision{allowed: true, reschedule: true}

	case to == model.StatusKilledByClient &&
		(from == model.StatusPending || from == model.StatusStarting || from == model.StatusRunning):
		return decision{allowed: true, enqueueKill: true}

	default:
		return decision{}
	}
}

// failureDecision implements the RUNNING/STARTING -> FAILED side effect:
// bump the failure count, and reschedule only if the budget is not yet
// exhausted.
func failureDecision(task *model.ScheduledTask) decision {
	next := task.FailureCount + 1
	return decision{
		allowed:      true,
		failureDelta: 1,
		reschedule:   next < task.Info.EffectiveMaxTaskFailures(),
	}
}

// Deps are the collaborators the state machine needs to carry out side
// effects: the store it mutates, the global id counter, and the deferred
// kill dispatcher.
type Deps struct {
	Store       *store.TaskStore
	NextID      func() model.TaskID
	EnqueueKill func(model.TaskID)
}

// Apply evaluates and applies `to` against every task matched by q,
// rejecting (and logging) any task for which the transition is not legal.
// It returns the resulting task snapshots: the mutated originals plus any
// tasks created by rescheduling.
func Apply(deps Deps, q model.Query, to model.TaskStatus) []*model.ScheduledTask {
	matched := deps.Store.Fetch(q)
	var results []*model.ScheduledTask

	for _, t := range matched {
		dec := decide(t, to)
		if !dec.allowed {
			log.Warn("rejected state transition", "taskID", t.ID, "from", t.Status, "to", to)
			continue
		}

		id := t.ID
		deps.Store.Mutate(model.QueryByID(id), func(mt *model.ScheduledTask) {
			mt.Status = to
			mt.FailureCount += dec.failureDelta
		})
		updated := deps.Store.Get(id)
		results = append(results, updated)

		if dec.reschedule {
			replacement := Reschedule(deps, updated)
			results = append(results, replacement)
		}
		if dec.enqueueKill && deps.EnqueueKill != nil {
			deps.EnqueueKill(id)
		}
	}
	return results
}

// Assign transitions a PENDING task to STARTING and records the slave it
// was placed on. Returns nil if the task does not exist or is not PENDING.
func Assign(deps Deps, id model.TaskID, slaveID, slaveHost string) *model.ScheduledTask {
	t := deps.Store.Get(id)
	if t == nil {
		return nil
	}
	dec := decide(t, model.StatusStarting)
	if !dec.allowed {
		log.Warn("rejected assignment", "taskID", id, "from", t.Status)
		return nil
	}

	updated := deps.Store.Mutate(model.QueryByID(id), func(mt *model.ScheduledTask) {
		mt.Status = model.StatusStarting
		mt.SlaveID = &slaveID
		mt.SlaveHost = &slaveHost
	})
	if len(updated) == 0 {
		return nil
	}
	return updated[0]
}

// Reschedule creates and stores a fresh PENDING task that replaces
// terminal (post-mutation) task t, preserving its shard and job, with
// ancestor id set to t.ID.
func Reschedule(deps Deps, t *model.ScheduledTask) *model.ScheduledTask {
	ancestor := t.ID
	replacement := &model.ScheduledTask{
		ID:           deps.NextID(),
		Status:       model.StatusPending,
		FailureCount: t.FailureCount,
		AncestorID:   &ancestor,
		ShardID:      t.ShardID,
		JobKey:       t.JobKey,
		Info:         t.Info,
	}
	if err := deps.Store.Add([]*model.ScheduledTask{replacement}); err != nil {
		log.Error("failed to add rescheduled task", "ancestor", ancestor, "error", err)
		return nil
	}
	log.Info("rescheduled task", "ancestor", ancestor, "replacement", replacement.ID, "shard", t.ShardID)
	return replacement
}

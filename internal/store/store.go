// ============================================================================
// TaskStore - Indexed Scheduled-Task Collection
// ============================================================================
//
// Package: internal/store
// File: store.go
// Purpose: Owns every ScheduledTask in the scheduler and answers Query
// selections over owner, job, id, status, and an arbitrary predicate.
//
// Design (hybrid, same shape as a job-queue's unified-map-plus-indexes):
//   tasks map[TaskID]*ScheduledTask  - unified storage, single source of truth
//   byJob map[JobKey]map[TaskID]bool - secondary index by job key
//   byStatus map[TaskStatus]map[TaskID]bool - secondary index by status
//   order []TaskID                  - insertion order, for fetch() ordering
//
// byJob and byStatus are kept up to date by Add/Mutate/Remove, but no query
// reads them: Fetch, Mutate and Exists scan `order` and test every task
// with Query.Matches.
//
// All operations are serialized by one RWMutex: Add/Mutate/Remove take the
// write lock, Fetch takes the read lock. Callers must not rely on fetch()
// order beyond "insertion order".
// ============================================================================

package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethanzhu/shardsched/pkg/model"
)

// ErrDuplicateTaskID is returned by Add when a task id already exists.
var ErrDuplicateTaskID = errors.New("store: duplicate task id")

// TaskStore is an indexed collection of ScheduledTasks.
type TaskStore struct {
	mu sync.RWMutex

	tasks    map[model.TaskID]*model.ScheduledTask
	byJob    map[model.JobKey]map[model.TaskID]bool
	byStatus map[model.TaskStatus]map[model.TaskID]bool
	order    []model.TaskID
}

// New creates an empty TaskStore.
func New() *TaskStore {
	return &TaskStore{
		tasks:    make(map[model.TaskID]*model.ScheduledTask),
		byJob:    make(map[model.JobKey]map[model.TaskID]bool),
		byStatus: make(map[model.TaskStatus]map[model.TaskID]bool),
	}
}

// Add inserts new ScheduledTasks. It rejects the whole batch, unmutated, if
// any id collides with an existing task.
func (s *TaskStore) Add(tasks []*model.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tasks {
		if _, exists := s.tasks[t.ID]; exists {
			return fmt.Errorf("%w: %d", ErrDuplicateTaskID, t.ID)
		}
	}

	for _, t := range tasks {
		s.insertLocked(t)
	}
	return nil
}

func (s *TaskStore) insertLocked(t *model.ScheduledTask) {
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)
	s.indexLocked(t)
}

func (s *TaskStore) indexLocked(t *model.ScheduledTask) {
	jobSet, ok := s.byJob[t.JobKey]
	if !ok {
		jobSet = make(map[model.TaskID]bool)
		s.byJob[t.JobKey] = jobSet
	}
	jobSet[t.ID] = true

	statusSet, ok := s.byStatus[t.Status]
	if !ok {
		statusSet = make(map[model.TaskID]bool)
		s.byStatus[t.Status] = statusSet
	}
	statusSet[t.ID] = true
}

func (s *TaskStore) deindexStatusLocked(t *model.ScheduledTask, oldStatus model.TaskStatus) {
	if set, ok := s.byStatus[oldStatus]; ok {
		delete(set, t.ID)
	}
}

// Mutation is applied in place to every task matched by a Query, under the
// store's exclusive lock.
type Mutation func(*model.ScheduledTask)

// Mutate atomically finds tasks matching q and applies fn to each; it
// returns clones of the updated tasks.
func (s *TaskStore) Mutate(q model.Query, fn Mutation) []*model.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated []*model.ScheduledTask
	for _, id := range s.order {
		t, ok := s.tasks[id]
		if !ok || !q.Matches(t) {
			continue
		}
		oldStatus := t.Status
		fn(t)
		if t.Status != oldStatus {
			s.deindexStatusLocked(t, oldStatus)
			set, ok := s.byStatus[t.Status]
			if !ok {
				set = make(map[model.TaskID]bool)
				s.byStatus[t.Status] = set
			}
			set[t.ID] = true
		}
		updated = append(updated, t.Clone())
	}
	return updated
}

// Remove deletes every task matched by q.
func (s *TaskStore) Remove(q model.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []model.TaskID
	for _, id := range s.order {
		t, ok := s.tasks[id]
		if !ok {
			continue
		}
		if q.Matches(t) {
			delete(s.tasks, id)
			if set, ok := s.byJob[t.JobKey]; ok {
				delete(set, id)
			}
			if set, ok := s.byStatus[t.Status]; ok {
				delete(set, id)
			}
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Fetch returns a snapshot set of tasks matching q, in insertion order.
func (s *TaskStore) Fetch(q model.Query) []*model.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.ScheduledTask
	for _, id := range s.order {
		t, ok := s.tasks[id]
		if !ok || !q.Matches(t) {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

// Get returns a single task by id, or nil if absent.
func (s *TaskStore) Get(id model.TaskID) *model.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil
	}
	return t.Clone()
}

// Exists reports whether any task matches q.
func (s *TaskStore) Exists(q model.Query) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		t, ok := s.tasks[id]
		if ok && q.Matches(t) {
			return true
		}
	}
	return false
}

package statemach

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanzhu/shardsched/internal/store"
	"github.com/ethanzhu/shardsched/pkg/model"
)

func newDeps(s *store.TaskStore) Deps {
	var counter int64
	return Deps{
		Store: s,
		NextID: func() model.TaskID {
			counter++
			return model.TaskID(counter + 1000)
		},
		EnqueueKill: func(model.TaskID) {},
	}
}

func newTask(id model.TaskID, status model.TaskStatus, info model.TaskInfo) *model.ScheduledTask {
	return &model.ScheduledTask{ID: id, Status: status, JobKey: model.JobKey{Owner: "www", Name: "hello"}, Info: info}
}

func TestApplyLegalTransition(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Add([]*model.ScheduledTask{newTask(1, model.StatusPending, model.TaskInfo{})}))
	deps := newDeps(s)

	results := Apply(deps, model.QueryByID(1), model.StatusStarting)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusStarting, results[0].Status)
}

func TestApplyRejectsIllegalTransition(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Add([]*model.ScheduledTask{newTask(1, model.StatusPending, model.TaskInfo{})}))
	deps := newDeps(s)

	results := Apply(deps, model.QueryByID(1), model.StatusRunning)
	assert.Empty(t, results)
	assert.Equal(t, model.StatusPending, s.Get(1).Status)
}

func TestApplyRejectsTransitionFromTerminalState(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Add([]*model.ScheduledTask{newTask(1, model.StatusFinished, model.TaskInfo{})}))
	deps := newDeps(s)

	results := Apply(deps, model.QueryByID(1), model.StatusPending)
	assert.Empty(t, results)
}

func TestDaemonRescheduleOnFinished(t *testing.T) {
	daemon := true
	s := store.New()
	require.NoError(t, s.Add([]*model.ScheduledTask{newTask(1, model.StatusRunning, model.TaskInfo{Daemon: &daemon})}))
	deps := newDeps(s)

	results := Apply(deps, model.QueryByID(1), model.StatusFinished)
	require.Len(t, results, 2)
	assert.Equal(t, model.StatusFinished, results[0].Status)
	assert.Equal(t, model.StatusPending, results[1].Status)
	assert.Equal(t, model.TaskID(1), *results[1].AncestorID)
}

func TestNonDaemonNoRescheduleOnFinished(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Add([]*model.ScheduledTask{newTask(1, model.StatusRunning, model.TaskInfo{})}))
	deps := newDeps(s)

	results := Apply(deps, model.QueryByID(1), model.StatusFinished)
	require.Len(t, results, 1)
}

func TestFailureBudgetRespected(t *testing.T) {
	maxFailures := 2
	s := store.New()
	require.NoError(t, s.Add([]*model.ScheduledTask{newTask(1, model.StatusRunning, model.TaskInfo{MaxTaskFailures: &maxFailures})}))
	deps := newDeps(s)

	// First failure: failure count 0 -> 1, 1 < 2, so reschedule.
	results := Apply(deps, model.QueryByID(1), model.StatusFailed)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].FailureCount)
	replacementID := results[1].ID

	// Second failure on the replacement: failure count carried over is 1,
	// bumps to 2, 2 is not < 2, so no reschedule.
	require.Len(t, Apply(deps, model.QueryByID(replacementID), model.StatusStarting), 1)
	results = Apply(deps, model.QueryByID(replacementID), model.StatusFailed)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].FailureCount)
	assert.Equal(t, model.StatusFailed, results[0].Status)
}

func TestLostWhilePendingReschedulesWithoutFailureBump(t *testing.T) {
	maxFailures := 1
	s := store.New()
	require.NoError(t, s.Add([]*model.ScheduledTask{newTask(1, model.StatusPending, model.TaskInfo{MaxTaskFailures: &maxFailures})}))
	deps := newDeps(s)

	results := Apply(deps, model.QueryByID(1), model.StatusLost)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].FailureCount)
	assert.Equal(t, 0, results[1].FailureCount)
}

func TestKilledByClientEnqueuesKillAndDoesNotAutoReschedule(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Add([]*model.ScheduledTask{newTask(1, model.StatusRunning, model.TaskInfo{})}))

	var killed []model.TaskID
	deps := Deps{
		Store:       s,
		NextID:      func() model.TaskID { return 2 },
		EnqueueKill: func(id model.TaskID) { killed = append(killed, id) },
	}

	results := Apply(deps, model.QueryByID(1), model.StatusKilledByClient)
	require.Len(t, results, 1)
	assert.Equal(t, []model.TaskID{1}, killed)
}

func TestAssignSetsSlaveFieldsAndTransitions(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Add([]*model.ScheduledTask{newTask(1, model.StatusPending, model.TaskInfo{})}))
	deps := newDeps(s)

	assigned := Assign(deps, 1, "slave-1", "host-1")
	require.NotNil(t, assigned)
	assert.Equal(t, model.StatusStarting, assigned.Status)
	assert.Equal(t, "slave-1", *assigned.SlaveID)
	assert.Equal(t, "host-1", *assigned.SlaveHost)
}

func TestAssignRejectsNonPendingTask(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Add([]*model.ScheduledTask{newTask(1, model.StatusRunning, model.TaskInfo{})}))
	deps := newDeps(s)

	assert.Nil(t, Assign(deps, 1, "slave-1", "host-1"))
}

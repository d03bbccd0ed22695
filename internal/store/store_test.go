package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanzhu/shardsched/pkg/model"
)

func task(id model.TaskID, key model.JobKey, status model.TaskStatus) *model.ScheduledTask {
	return &model.ScheduledTask{ID: id, JobKey: key, Status: status, ShardID: int(id)}
}

func TestAddRejectsDuplicateIDAsWholeBatch(t *testing.T) {
	s := New()
	key := model.JobKey{Owner: "www", Name: "hello"}

	require.NoError(t, s.Add([]*model.ScheduledTask{task(1, key, model.StatusPending)}))

	err := s.Add([]*model.ScheduledTask{task(2, key, model.StatusPending), task(1, key, model.StatusPending)})
	require.ErrorIs(t, err, ErrDuplicateTaskID)

	// The whole batch must be rejected: id 2 should not have been inserted.
	assert.Nil(t, s.Get(2))
}

func TestFetchReturnsInsertionOrder(t *testing.T) {
	s := New()
	key := model.JobKey{Owner: "www", Name: "hello"}
	require.NoError(t, s.Add([]*model.ScheduledTask{
		task(3, key, model.StatusPending),
		task(1, key, model.StatusPending),
		task(2, key, model.StatusPending),
	}))

	got := s.Fetch(model.GetAll())
	require.Len(t, got, 3)
	assert.Equal(t, []model.TaskID{3, 1, 2}, []model.TaskID{got[0].ID, got[1].ID, got[2].ID})
}

func TestFetchClonesSoMutationIsSafe(t *testing.T) {
	s := New()
	key := model.JobKey{Owner: "www", Name: "hello"}
	require.NoError(t, s.Add([]*model.ScheduledTask{task(1, key, model.StatusPending)}))

	got := s.Fetch(model.GetAll())
	got[0].Status = model.StatusRunning

	stillPending := s.Get(1)
	assert.Equal(t, model.StatusPending, stillPending.Status)
}

func TestMutateUpdatesStatusIndex(t *testing.T) {
	s := New()
	key := model.JobKey{Owner: "www", Name: "hello"}
	require.NoError(t, s.Add([]*model.ScheduledTask{task(1, key, model.StatusPending)}))

	updated := s.Mutate(model.QueryByID(1), func(t *model.ScheduledTask) { t.Status = model.StatusRunning })
	require.Len(t, updated, 1)
	assert.Equal(t, model.StatusRunning, updated[0].Status)

	assert.Empty(t, s.Fetch(model.QueryByStatus(model.StatusPending)))
	assert.Len(t, s.Fetch(model.QueryByStatus(model.StatusRunning)), 1)
}

func TestRemoveDeletesMatchedTasks(t *testing.T) {
	s := New()
	key := model.JobKey{Owner: "www", Name: "hello"}
	require.NoError(t, s.Add([]*model.ScheduledTask{
		task(1, key, model.StatusPending),
		task(2, key, model.StatusPending),
	}))

	s.Remove(model.QueryByID(1))

	assert.Nil(t, s.Get(1))
	assert.NotNil(t, s.Get(2))
	assert.Len(t, s.Fetch(model.GetAll()), 1)
}

func TestExists(t *testing.T) {
	s := New()
	key := model.JobKey{Owner: "www", Name: "hello"}
	assert.False(t, s.Exists(model.QueryByJob(key)))

	require.NoError(t, s.Add([]*model.ScheduledTask{task(1, key, model.StatusPending)}))
	assert.True(t, s.Exists(model.QueryByJob(key)))
}

func TestQueryByJobIsolatesJobs(t *testing.T) {
	s := New()
	a := model.JobKey{Owner: "www", Name: "a"}
	b := model.JobKey{Owner: "www", Name: "b"}
	require.NoError(t, s.Add([]*model.ScheduledTask{
		task(1, a, model.StatusPending),
		task(2, b, model.StatusPending),
	}))

	got := s.Fetch(model.QueryByJob(a))
	require.Len(t, got, 1)
	assert.Equal(t, model.TaskID(1), got[0].ID)
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDaemonDefaultsFalse(t *testing.T) {
	assert.False(t, TaskInfo{}.IsDaemon())

	daemon := true
	assert.True(t, TaskInfo{Daemon: &daemon}.IsDaemon())
}

func TestEffectiveMaxTaskFailuresDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, TaskInfo{}.EffectiveMaxTaskFailures())

	max := 5
	assert.Equal(t, 5, TaskInfo{MaxTaskFailures: &max}.EffectiveMaxTaskFailures())
}

func TestCloneDoesNotAliasPointerOrSliceFields(t *testing.T) {
	slaveID := "slave-1"
	task := &ScheduledTask{ID: 1, SlaveID: &slaveID, Info: TaskInfo{Ports: []string{"8080"}}}

	clone := task.Clone()
	*clone.SlaveID = "mutated"
	clone.Info.Ports[0] = "mutated"

	assert.Equal(t, "slave-1", *task.SlaveID)
	assert.Equal(t, "8080", task.Info.Ports[0])
}

func TestCloneHandlesNilPointerFields(t *testing.T) {
	task := &ScheduledTask{ID: 1}
	clone := task.Clone()
	assert.Nil(t, clone.SlaveID)
	assert.Nil(t, clone.AncestorID)
}

func TestQueryMatchesConjunction(t *testing.T) {
	task := &ScheduledTask{ID: 1, JobKey: JobKey{Owner: "www", Name: "hello"}, Status: StatusRunning}

	assert.True(t, QueryByJob(JobKey{Owner: "www", Name: "hello"}).Matches(task))
	assert.False(t, QueryByJob(JobKey{Owner: "www", Name: "other"}).Matches(task))
	assert.True(t, QueryByStatus(StatusRunning, StatusPending).Matches(task))
	assert.False(t, QueryByStatus(StatusFinished).Matches(task))
}

func TestQueryWithPredicateANDsOntoExistingFilters(t *testing.T) {
	task := &ScheduledTask{ID: 1, JobKey: JobKey{Owner: "www", Name: "hello"}}

	q := QueryByJob(task.JobKey).WithPredicate(func(*ScheduledTask) bool { return false })
	assert.False(t, q.Matches(task))

	q2 := GetAll().WithPredicate(func(t *ScheduledTask) bool { return t.ID == 1 }).
		WithPredicate(func(t *ScheduledTask) bool { return t.ID == 2 })
	assert.False(t, q2.Matches(task))
}

func TestIsCronReportsWhetherScheduleIsSet(t *testing.T) {
	assert.False(t, JobConfiguration{}.IsCron())
	assert.True(t, JobConfiguration{CronSchedule: "0 * * * *"}.IsCron())
}

func TestTaskStatusTerminalAndActive(t *testing.T) {
	assert.True(t, StatusFinished.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusRunning.IsActive())
	assert.False(t, StatusFinished.IsActive())
}

package configmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanzhu/shardsched/internal/schederr"
	"github.com/ethanzhu/shardsched/pkg/model"
)

func validJob() model.JobConfiguration {
	return model.JobConfiguration{
		Owner: "www",
		Name:  "hello",
		Tasks: []model.TaskInfo{
			{ShardID: 0, StartCommand: "echo hi", NumCPUs: 1, RAMMb: 128},
			{ShardID: 1, StartCommand: "echo hi", NumCPUs: 1, RAMMb: 128},
		},
	}
}

func TestValidateAcceptsWellFormedJob(t *testing.T) {
	m := New()
	assert.NoError(t, m.Validate(validJob()))
}

func TestValidateRejectsEmptyOwner(t *testing.T) {
	m := New()
	cfg := validJob()
	cfg.Owner = ""
	err := m.Validate(cfg)
	require.Error(t, err)
	assert.IsType(t, &schederr.TaskDescriptionException{}, err)
}

func TestValidateRejectsNoTasks(t *testing.T) {
	m := New()
	cfg := validJob()
	cfg.Tasks = nil
	assert.Error(t, m.Validate(cfg))
}

func TestValidateRejectsDuplicateShardID(t *testing.T) {
	m := New()
	cfg := validJob()
	cfg.Tasks[1].ShardID = 0
	assert.Error(t, m.Validate(cfg))
}

func TestValidateRejectsNonContiguousShardIDs(t *testing.T) {
	m := New()
	cfg := validJob()
	cfg.Tasks[1].ShardID = 5
	assert.Error(t, m.Validate(cfg))
}

func TestValidateRejectsNonPositiveResources(t *testing.T) {
	m := New()
	cfg := validJob()
	cfg.Tasks[0].NumCPUs = 0
	assert.Error(t, m.Validate(cfg))
}

func TestValidateRejectsInvalidCronExpression(t *testing.T) {
	m := New()
	cfg := validJob()
	cfg.CronSchedule = "not a cron expression"
	assert.Error(t, m.Validate(cfg))
}

func TestValidateAcceptsValidCronExpression(t *testing.T) {
	m := New()
	cfg := validJob()
	cfg.CronSchedule = "0 * * * *"
	assert.NoError(t, m.Validate(cfg))
}

func TestValidateRejectsUnknownCollisionPolicy(t *testing.T) {
	m := New()
	cfg := validJob()
	cfg.CronSchedule = "0 * * * *"
	cfg.CronCollisionPolicy = "NOT_A_POLICY"
	assert.Error(t, m.Validate(cfg))
}

func TestPopulateDefaultsCronCollisionPolicy(t *testing.T) {
	m := New()
	cfg := validJob()
	cfg.CronSchedule = "0 * * * *"

	populated := m.Populate(cfg)
	assert.Equal(t, model.KillExisting, populated.CronCollisionPolicy)
}

func TestPopulateLeavesExplicitCollisionPolicy(t *testing.T) {
	m := New()
	cfg := validJob()
	cfg.CronSchedule = "0 * * * *"
	cfg.CronCollisionPolicy = model.RunOverlap

	populated := m.Populate(cfg)
	assert.Equal(t, model.RunOverlap, populated.CronCollisionPolicy)
}

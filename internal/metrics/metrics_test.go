package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector := NewCollector()

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.jobsCreated)
	assert.NotNil(t, collector.jobsRejected)
	assert.NotNil(t, collector.tasksRescheduled)
	assert.NotNil(t, collector.offersMatched)
	assert.NotNil(t, collector.offersDeclined)
	assert.NotNil(t, collector.reconcileLost)
	assert.NotNil(t, collector.reconcileCrossSlave)
	assert.NotNil(t, collector.tasksByState)
	assert.NotNil(t, collector.taskIDCounter)
	assert.NotNil(t, collector.updateOutcomes)
}

func TestRecordJobCreatedAndRejected(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordJobCreated()
		collector.RecordJobRejected()
	})
}

func TestRecordOfferOutcomes(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			collector.RecordOfferMatched()
		}
		for i := 0; i < 3; i++ {
			collector.RecordOfferDeclined()
		}
	})
}

func TestRecordReconcileOutcomes(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordReconcileLost()
		collector.RecordCrossSlaveRejected()
	})
}

func TestSetTasksByState(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.SetTasksByState(map[string]int{
			"PENDING": 3,
			"RUNNING": 10,
			"FAILED":  1,
		})
		// A second call must not accumulate stale labels.
		collector.SetTasksByState(map[string]int{"PENDING": 0})
	})
}

func TestRecordUpdateOutcome(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordUpdateOutcome("JOB_UNCHANGED")
		collector.RecordUpdateOutcome("COMPLETED")
		collector.RecordUpdateOutcome("UPDATER_LAUNCHED")
		collector.RecordUpdateOutcome("JOB_UNCHANGED_CRON")
	})
}

func TestSetTaskIDCounter(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.SetTaskIDCounter(42)
	})
}

func TestConcurrentMetricUpdates(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			collector.RecordJobCreated()
			collector.RecordOfferMatched()
			collector.SetTasksByState(map[string]int{"RUNNING": 1})
			done <- true
		}()
	}
	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestCollectorIsolation(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector1 := NewCollector()
	require.NotNil(t, collector1)

	// A second collector will panic on duplicate registration: a process
	// should have only one.
	assert.Panics(t, func() {
		NewCollector()
	})
}

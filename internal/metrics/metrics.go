// ============================================================================
// Scheduler Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose scheduler metrics for Prometheus monitoring.
//
// Metric Categories:
//
//   1. Job Counters - Cumulative, monotonically increasing:
//      - scheduler_jobs_created_total: Jobs accepted by createJob
//      - scheduler_jobs_rejected_total: Jobs rejected by validation or as duplicates
//      - scheduler_tasks_rescheduled_total: Tasks rescheduled after a terminal transition
//
//   2. Status Metrics (Gauge) - Instantaneous values:
//      - scheduler_tasks_by_state: Current task count, labeled by status
//      - scheduler_task_id_counter: The current value of the task id generator
//
//   3. Offer Metrics - placement outcomes:
//      - scheduler_offers_matched_total / scheduler_offers_declined_total
//
//   4. Reconciliation Metrics:
//      - scheduler_reconcile_lost_total: Tasks declared LOST by the
//        reconciliation engine's grace-period expiry
//      - scheduler_reconcile_cross_slave_total: Reports rejected for
//        recording a different slave host than expected
//
//   5. Update Planner Metrics:
//      - scheduler_update_outcomes_total: labeled by outcome (JOB_UNCHANGED,
//        COMPLETED, UPDATER_LAUNCHED, JOB_UNCHANGED_CRON)
//
// HTTP Endpoint:
//   Exposed via /metrics, scraped by Prometheus. Default port: 9090.
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for the scheduler core.
type Collector struct {
	jobsCreated         prometheus.Counter
	jobsRejected        prometheus.Counter
	tasksRescheduled    prometheus.Counter
	offersMatched       prometheus.Counter
	offersDeclined      prometheus.Counter
	reconcileLost       prometheus.Counter
	reconcileCrossSlave prometheus.Counter

	tasksByState  *prometheus.GaugeVec
	taskIDCounter prometheus.Gauge
	updateOutcomes *prometheus.CounterVec
}

// NewCollector creates and registers a new metrics Collector.
func NewCollector() *Collector {
	c := &Collector{
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_created_total",
			Help: "Total number of jobs accepted by createJob",
		}),
		jobsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_jobs_rejected_total",
			Help: "Total number of jobs rejected (validation failure or duplicate job key)",
		}),
		tasksRescheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_tasks_rescheduled_total",
			Help: "Total number of tasks rescheduled after a terminal transition",
		}),
		offersMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_offers_matched_total",
			Help: "Total number of offers matched to a pending task",
		}),
		offersDeclined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_offers_declined_total",
			Help: "Total number of offers that matched no pending task",
		}),
		reconcileLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_reconcile_lost_total",
			Help: "Total number of tasks declared LOST by grace-period expiry",
		}),
		reconcileCrossSlave: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_reconcile_cross_slave_total",
			Help: "Total number of slave reports rejected for a recorded-host mismatch",
		}),
		tasksByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_tasks_by_state",
			Help: "Current number of tasks in each status",
		}, []string{"status"}),
		taskIDCounter: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_task_id_counter",
			Help: "Current value of the monotonic task id generator",
		}),
		updateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_update_outcomes_total",
			Help: "Total update planner outcomes, labeled by outcome",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		c.jobsCreated, c.jobsRejected, c.tasksRescheduled,
		c.offersMatched, c.offersDeclined,
		c.reconcileLost, c.reconcileCrossSlave,
		c.tasksByState, c.taskIDCounter, c.updateOutcomes,
	)
	return c
}

// RecordJobCreated records a successful createJob call.
func (c *Collector) RecordJobCreated() { c.jobsCreated.Inc() }

// RecordJobRejected records a createJob/updateJob rejection.
func (c *Collector) RecordJobRejected() { c.jobsRejected.Inc() }

// RecordRescheduled records a state-machine-driven reschedule.
func (c *Collector) RecordRescheduled() { c.tasksRescheduled.Inc() }

// RecordOfferMatched records an offer successfully placed.
func (c *Collector) RecordOfferMatched() { c.offersMatched.Inc() }

// RecordOfferDeclined records an offer that matched nothing.
func (c *Collector) RecordOfferDeclined() { c.offersDeclined.Inc() }

// RecordReconcileLost records a grace-period LOST transition.
func (c *Collector) RecordReconcileLost() { c.reconcileLost.Inc() }

// RecordCrossSlaveRejected records a cross-slave-host report rejection.
func (c *Collector) RecordCrossSlaveRejected() { c.reconcileCrossSlave.Inc() }

// SetTaskIDCounter records the current value of the task id generator.
func (c *Collector) SetTaskIDCounter(v int64) { c.taskIDCounter.Set(float64(v)) }

// SetTasksByState replaces the tasks-by-state gauge with counts.
func (c *Collector) SetTasksByState(counts map[string]int) {
	c.tasksByState.Reset()
	for status, n := range counts {
		c.tasksByState.WithLabelValues(status).Set(float64(n))
	}
}

// RecordUpdateOutcome records one UpdatePlanner decision.
func (c *Collector) RecordUpdateOutcome(outcome string) {
	c.updateOutcomes.WithLabelValues(outcome).Inc()
}

// StartServer starts the Prometheus metrics HTTP server.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}

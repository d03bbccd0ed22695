// Package driver defines the cluster-master driver external collaborator:
// it issues kill commands and (out of CORE scope) receives task launches.
package driver

import (
	"log/slog"

	"github.com/ethanzhu/shardsched/pkg/model"
)

var log = slog.Default()

// Driver issues commands to the cluster master. KillTask's return value is
// ignored for correctness (only logged) — the state machine never advances
// on it; the subsequent slave status report drives the observable
// terminal state.
type Driver interface {
	KillTask(taskID model.TaskID) int
}

// Logging is a Driver that only logs; useful as a default before a
// scheduler is bound to a real cluster-master connection via Registered.
type Logging struct{}

// KillTask implements Driver.
func (Logging) KillTask(taskID model.TaskID) int {
	log.Info("driver kill requested (no driver registered)", "taskID", taskID)
	return 0
}

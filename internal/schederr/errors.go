// Package schederr defines the scheduler's caller-facing error types.
// Everything else (unknown task ids, rejected transitions, cross-slave
// reports) is logged and swallowed rather than surfaced as an error.
package schederr

import "fmt"

// TaskDescriptionException means the submitted JobConfiguration is
// structurally invalid: empty task set, missing/duplicate/non-contiguous
// shard ids, unparsable numeric fields, or an invalid cron expression.
// Raised from ConfigurationManager during createJob/updateJob.
type TaskDescriptionException struct {
	Reason string
}

func (e *TaskDescriptionException) Error() string {
	return fmt.Sprintf("invalid task description: %s", e.Reason)
}

// NewTaskDescriptionException constructs a TaskDescriptionException with a
// formatted reason.
func NewTaskDescriptionException(format string, args ...any) error {
	return &TaskDescriptionException{Reason: fmt.Sprintf(format, args...)}
}

// ScheduleException is a semantic rejection: duplicate job key, an update
// targeting a non-existent job, or a cron policy violation.
type ScheduleException struct {
	Reason string
}

func (e *ScheduleException) Error() string {
	return fmt.Sprintf("schedule rejected: %s", e.Reason)
}

// NewScheduleException constructs a ScheduleException with a formatted
// reason.
func NewScheduleException(format string, args ...any) error {
	return &ScheduleException{Reason: fmt.Sprintf(format, args...)}
}

package tracking

import (
	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/enums"
)

// Decision is what the poller does after observing a failure.
type Decision struct {
	Action enums.CheckpointFailureAction

	// RestartCount is the attempt counter after the decision. Nil when the
	// application carries no restart policy.
	RestartCount *int

	// CheckpointTrigger reports whether the application has the checkpoint
	// failure trigger configured. It is informational; the action does not
	// depend on it.
	CheckpointTrigger bool
}

// IsFailure reports whether an observed state calls for a failure decision.
func IsFailure(state enums.AppState) bool {
	return state == enums.StateFailed || state == enums.StateLost
}

// Decide picks RESTART when the application's restart budget still allows
// another attempt, ALERT otherwise. A restart increments RestartCount on
// app, so callers should pass a snapshot.
func Decide(app *application.Application) Decision {
	d := Decision{
		Action:            enums.CheckpointFailureAlert,
		CheckpointTrigger: app.CheckpointFailureTriggerEnabled(),
	}
	if app.CanRetryAfterFailure() {
		next := *app.RestartCount + 1
		app.RestartCount = &next
		d.Action = enums.CheckpointFailureRestart
	}
	if app.RestartCount != nil {
		n := *app.RestartCount
		d.RestartCount = &n
	}
	return d
}

// Package lifecycle derives lifecycle policy from job states.
//
// There is no adjacency graph here. All policy is expressed as predicates
// over the closed state and release sets in package enums; callers decide
// transitions themselves.
package lifecycle

import "github.com/3leaps/streamctl/pkg/enums"

// ShouldTrack reports whether an external poller should keep refreshing a
// job in this state. Idle and terminal states are not tracked.
func ShouldTrack(state enums.AppState) bool {
	switch state {
	case enums.StateAdded,
		enums.StateCreated,
		enums.StateFinished,
		enums.StateFailed,
		enums.StateCanceled,
		enums.StateTerminated,
		enums.StatePosTerminated:
		return false
	default:
		return true
	}
}

// CanStart reports whether a job in this state may be submitted again.
// Any state that is not currently active qualifies; this is what prevents
// double submission.
func CanStart(state enums.AppState) bool {
	switch state {
	case enums.StateAdded,
		enums.StateCreated,
		enums.StateFailed,
		enums.StateCanceled,
		enums.StateFinished,
		enums.StateLost,
		enums.StateTerminated,
		enums.StateSucceeded,
		enums.StateKilled,
		enums.StatePosTerminated:
		return true
	default:
		return false
	}
}

// IsActive is the complement of CanStart.
func IsActive(state enums.AppState) bool {
	return !CanStart(state)
}

// IsRunning reports whether the state is RUNNING.
func IsRunning(state enums.AppState) bool {
	return state == enums.StateRunning
}

// NeedsRollback reports whether the release state asks for a rollback.
func NeedsRollback(release enums.ReleaseState) bool {
	return release == enums.ReleaseNeedRollback
}

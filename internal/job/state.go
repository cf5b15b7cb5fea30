// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package job implements the Job state machine: dispatch to workers,
// the worker-completion protocol, and stop/cancel handling.
package job

// State is a Job's lifecycle state.
type State string

const (
	StateUninitialized        State = "UNINITIALIZED"
	StateNotYetStarted        State = "NOT_YET_STARTED"
	StateDisabled             State = "DISABLED"
	StateRunning               State = "RUNNING"
	StateCompletedSuccessfully State = "COMPLETED_SUCCESSFULLY"
	StateCompletedWithErrors   State = "COMPLETED_WITH_ERRORS"
	StateStoppedByUser         State = "STOPPED_BY_USER"
	StateStoppedDueToDuration  State = "STOPPED_DUE_TO_DURATION"
	StateStoppedDueToStopTime  State = "STOPPED_DUE_TO_STOP_TIME"
	StateStoppedDueToError     State = "STOPPED_DUE_TO_ERROR"
	StateStoppedByShutdown     State = "STOPPED_BY_SHUTDOWN"
	StateCancelled             State = "CANCELLED"
	StateNoSuchJob             State = "NO_SUCH_JOB"
)

// IsTerminal reports whether a state is one a Job cannot leave.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompletedSuccessfully, StateCompletedWithErrors, StateStoppedByUser,
		StateStoppedDueToDuration, StateStoppedDueToStopTime, StateStoppedDueToError,
		StateStoppedByShutdown, StateCancelled, StateNoSuchJob:
		return true
	default:
		return false
	}
}

// severity ranks terminal states from least to most severe. The
// worker-completion protocol only ever moves a Job's final state to a
// MORE severe one as workers report in — a worker reporting success
// after another has already reported an error must never erase that
// error.
var severity = map[State]int{
	StateCompletedSuccessfully: 0,
	StateCompletedWithErrors:   1,
	StateStoppedByUser:         2,
	StateStoppedDueToDuration:  2,
	StateStoppedDueToStopTime:  2,
	StateStoppedDueToError:     3,
	StateStoppedByShutdown:     4,
	StateCancelled:             5,
}

// moreSevere reports whether candidate outranks current under the
// monotone severity rule. Non-terminal or unranked states never win.
func moreSevere(current, candidate State) bool {
	cs, ok := severity[candidate]
	if !ok {
		return false
	}
	if current == "" || !current.IsTerminal() {
		return true
	}
	curS, ok := severity[current]
	if !ok {
		return true
	}
	return cs > curS
}

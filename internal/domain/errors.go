package domain

import "errors"

// Rejection is returned when a command is not valid in the current state.
// It is a notice for the user, not a failure.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

var (
	ErrAlreadyRunning = &Rejection{
		Code:    "already_running",
		Message: "You already started a run!",
	}
	ErrRunFinished = &Rejection{
		Code:    "run_finished",
		Message: "You've already completed a run. Press Reset before starting a new one.",
	}
	ErrNotRunning = &Rejection{
		Code:    "not_running",
		Message: "The timer is not running right now!",
	}
	ErrResetWhileRunning = &Rejection{
		Code:    "reset_while_running",
		Message: "You can't reset a running timer!",
	}
	ErrShowWhileRunning = &Rejection{
		Code:    "show_while_running",
		Message: "You need to finish your new run before you see your results!",
	}
	ErrNoFinishedRun = &Rejection{
		Code:    "no_finished_run",
		Message: "There is no finished run to show yet.",
	}
)

// AsRejection reports whether err is a command rejection.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

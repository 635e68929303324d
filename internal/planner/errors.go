package planner

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a synthesis request arrives while another is in
// flight. The flag is checked only at operation start; an accepted request
// always runs to completion.
var ErrBusy = errors.New("planner: synthesis already in progress")

// ErrNoTrajectory is the terminal failure of the retry search: no
// candidate/rotation combination produced the primitive's required stages.
// The caller should reset the arm to its rest configuration.
var ErrNoTrajectory = errors.New("planner: no feasible trajectory for any candidate")

// ConfigurationError reports an invalid request rejected before any
// planning attempt, such as a transfer primitive without a place point.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("planner: invalid request: %s", e.Reason)
}

package audit

import (
	"errors"
	"fmt"
)

const (
	// InterruptedExitCode is the conventional exit status after SIGINT.
	InterruptedExitCode = 130

	interruptedErrorTemplateConstant = "audit interrupted: %v"
)

// ErrDriftDetected is returned when drift is found and the run fails on drift.
var ErrDriftDetected = errors.New("drift detected since previous snapshot")

// InterruptedError reports a run cancelled by a signal. No snapshot is written.
type InterruptedError struct {
	Cause error
}

// Error describes the interruption.
func (interrupted InterruptedError) Error() string {
	return fmt.Sprintf(interruptedErrorTemplateConstant, interrupted.Cause)
}

// Unwrap exposes the cause.
func (interrupted InterruptedError) Unwrap() error {
	return interrupted.Cause
}

// ExitCode returns the SIGINT exit status.
func (interrupted InterruptedError) ExitCode() int {
	return InterruptedExitCode
}

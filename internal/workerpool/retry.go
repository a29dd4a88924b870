package workerpool

import (
	"context"
	"fmt"

	"github.com/temirov/fleetaudit/internal/scanner"
)

const (
	jobFailedTemplateConstant      = "job %d (%s) failed: worker reported %q, local retry failed: %v"
	localScanPanicTemplateConstant = "local scan of %s panicked: %v"
	defaultMaxLocalRetriesConstant = 1
)

// JobFailedError reports a job that failed in a worker and in every local retry.
type JobFailedError struct {
	JobID       int
	Directory   string
	WorkerError string
	Cause       error
}

// Error describes the failed job.
func (failure JobFailedError) Error() string {
	return fmt.Sprintf(jobFailedTemplateConstant, failure.JobID, failure.Directory, failure.WorkerError, failure.Cause)
}

// Unwrap exposes the last local failure.
func (failure JobFailedError) Unwrap() error {
	return failure.Cause
}

// RetryPolicy governs how a job that failed in a worker is retried in-process.
type RetryPolicy struct {
	// MaxLocalRetries bounds in-process attempts per job. Zero means one attempt.
	MaxLocalRetries int
}

// DefaultRetryPolicy allows a single local retry.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxLocalRetries: defaultMaxLocalRetriesConstant}
}

// Recover rescans directory in-process, escalating to JobFailedError when every attempt fails.
func (policy RetryPolicy) Recover(executionContext context.Context, projectScanner ProjectScanner, jobID int, directory string, workerError string) (scanner.ProjectRecord, error) {
	attempts := policy.MaxLocalRetries
	if attempts < 1 {
		attempts = defaultMaxLocalRetriesConstant
	}

	var lastError error
	for attempt := 0; attempt < attempts; attempt++ {
		record, scanError := scanLocally(executionContext, projectScanner, directory)
		if scanError == nil {
			return record, nil
		}
		lastError = scanError
	}
	return scanner.ProjectRecord{}, JobFailedError{JobID: jobID, Directory: directory, WorkerError: workerError, Cause: lastError}
}

func scanLocally(executionContext context.Context, projectScanner ProjectScanner, directory string) (record scanner.ProjectRecord, scanError error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			scanError = fmt.Errorf(localScanPanicTemplateConstant, directory, recovered)
		}
	}()
	return projectScanner.ScanProject(executionContext, directory), nil
}

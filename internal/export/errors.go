package export

import (
	"errors"
	"fmt"
)

var (
	// ErrInitiationFailed means the start request was refused or could not be classified.
	ErrInitiationFailed = errors.New("backup could not start")
	// ErrInBandError means a progress response carried an error token.
	ErrInBandError = errors.New("error encountered in progress response")
	// ErrMissingTaskID means the service did not report the task to poll.
	ErrMissingTaskID = errors.New("task id missing from response")
	// ErrNothingToResolve means the job was rate limited and no earlier URL was recorded.
	ErrNothingToResolve = errors.New("rate limited and no last known backup location")
	// ErrMissingArtifact means a completed job did not name its archive.
	ErrMissingArtifact = errors.New("completed job did not report an artifact")
	// ErrPollFailed means a progress request itself failed.
	ErrPollFailed = errors.New("progress request failed")
)

// FatalError aborts a run. It keeps the raw server response so it can be logged.
type FatalError struct {
	Err    error
	Status int
	Body   string
}

func (e *FatalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v (status %d)", e.Err, e.Status)
	}
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(err error, status int, body string) *FatalError {
	return &FatalError{Err: err, Status: status, Body: body}
}

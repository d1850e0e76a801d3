package pipeline

import "errors"

var (
	// ErrRetryLimitExceeded is returned when a retry is requested for a job
	// whose retry count already reached its cap. The job is left untouched.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")

	// ErrInvalidState is returned when the requested operation is not legal for
	// the job's current status, e.g. retrying a job that is still processing.
	ErrInvalidState = errors.New("invalid job state")

	// ErrValidation marks a malformed or incomplete callback payload. Nothing
	// is mutated; workers should not blindly retry on it.
	ErrValidation = errors.New("invalid payload")

	// ErrDispatch marks a failed handoff to the processing worker. The job is
	// rolled back to FAILED with the underlying cause in its error message.
	ErrDispatch = errors.New("dispatch failed")
)

// Package pipeline orchestrates the five-stage document ingestion job: stage
// transitions, retry bookkeeping, and dispatch to the external processing
// worker.
package pipeline

import (
	"github.com/pagebound/pagebound/internal/model"
)

// DeriveJobStatus computes the aggregate job status from the five stage
// statuses. retryPending marks the window between a retry being scheduled and
// the job being re-dispatched.
//
// The rules, checked in order:
//   - any stage failed: failed, or retrying while a retry is pending
//   - all stages completed: completed
//   - any stage processing: processing
//   - otherwise: pending
func DeriveJobStatus(stages []model.StageStatus, retryPending bool) model.JobStatus {
	var anyFailed, anyProcessing bool
	allCompleted := len(stages) > 0
	for _, s := range stages {
		switch s {
		case model.StageFailed:
			anyFailed = true
		case model.StageProcessing:
			anyProcessing = true
		}
		if s != model.StageCompleted {
			allCompleted = false
		}
	}
	switch {
	case anyFailed && retryPending:
		return model.JobRetrying
	case anyFailed:
		return model.JobFailed
	case allCompleted:
		return model.JobCompleted
	case anyProcessing:
		return model.JobProcessing
	default:
		return model.JobPending
	}
}

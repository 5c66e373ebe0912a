package jobs

import "context"

// Store persists job states for restart recovery. Finished jobs stay in
// the store as history after the queue forgets them.
type Store interface {
	LoadJobs(ctx context.Context) ([]*DubbingJob, error)
	UpsertJob(ctx context.Context, job *DubbingJob) error
}

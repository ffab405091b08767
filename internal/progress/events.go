// Package progress carries job progress to observers through a
// publish/subscribe bus: fine-grained progress on a per-job topic and coarse
// lifecycle events on a per-notebook topic.
package progress

import (
	"context"
	"time"
)

// Lifecycle event kinds published on the notebook topic.
const (
	LifecycleCreated = "created"
	LifecycleDone    = "done"
	LifecycleDeleted = "deleted"
)

// ProgressEvent is one discrete progress update for a job.
type ProgressEvent struct {
	JobID   string    `json:"job_id"`
	Step    string    `json:"step"`
	Percent int       `json:"percent"` // 0-100
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// LifecycleEvent is a coarse notification on the owning notebook's topic, so
// other members see job activity without subscribing to every job.
type LifecycleEvent struct {
	NotebookID string    `json:"notebook_id"`
	JobID      string    `json:"job_id"`
	JobKind    string    `json:"job_kind"`
	Kind       string    `json:"kind"` // created | done | deleted
	At         time.Time `json:"at"`
}

// Bus is the progress transport. Implementations: Redis (production) and
// in-memory (tests, single-node dev).
type Bus interface {
	PublishProgress(ctx context.Context, ev ProgressEvent) error
	PublishLifecycle(ctx context.Context, ev LifecycleEvent) error

	// SubscribeJob delivers progress events for one job until the returned
	// cancel func runs or ctx is done.
	SubscribeJob(ctx context.Context, jobID string) (<-chan ProgressEvent, func(), error)
	// SubscribeNotebook delivers lifecycle events for one notebook.
	SubscribeNotebook(ctx context.Context, notebookID string) (<-chan LifecycleEvent, func(), error)

	Close() error
}

func jobTopic(jobID string) string           { return "job:" + jobID }
func notebookTopic(notebookID string) string { return "notebook:" + notebookID }

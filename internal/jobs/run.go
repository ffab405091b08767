// Package jobs tracks every long-running AI task (AiSet) through its
// lifecycle: queued -> processing -> done|failed, forward-only. Pipelines
// never write job rows directly; they go through a Run handle.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/platform/logger"
	"github.com/markdave123-py/Studya/internal/progress"
)

// Store is the persistence surface the job runtime needs. core.DbClient
// satisfies it.
type Store interface {
	CreateAiSet(ctx context.Context, set *models.AiSet) error
	GetAiSetByID(ctx context.Context, id string) (*models.AiSet, error)
	MarkAiSetProcessing(ctx context.Context, id string, startedAt time.Time) (bool, error)
	MarkAiSetDone(ctx context.Context, id string, finishedAt time.Time, outputStats []byte) (bool, error)
	MarkAiSetFailed(ctx context.Context, id string, finishedAt time.Time, errMsg string) (bool, error)
}

// Output statistics per job kind. A tagged union instead of an open map:
// only the boundary that parses model output deals in loose JSON.
type IngestStats struct {
	Kind       string `json:"kind"` // always "ingest"
	ChunkCount int    `json:"chunk_count"`
	TextChars  int    `json:"text_chars"`
}

type SummaryStats struct {
	Kind         string `json:"kind"` // always "summary"
	SummaryChars int    `json:"summary_chars"`
	FileCount    int    `json:"file_count"`
	StorageURL   string `json:"storage_url,omitempty"`
}

type QuizStats struct {
	Kind          string `json:"kind"` // always "quiz"
	QuestionCount int    `json:"question_count"`
	StorageURL    string `json:"storage_url,omitempty"`
}

type FlashcardStats struct {
	Kind       string `json:"kind"` // always "flashcard"
	CardCount  int    `json:"card_count"`
	StorageURL string `json:"storage_url,omitempty"`
}

// Run is the execution handle for one claimed job. It owns the only
// sanctioned state transitions and the progress side channel.
type Run struct {
	Set *models.AiSet

	store Store
	bus   progress.Bus
	log   *logger.Logger
}

func newRun(set *models.AiSet, store Store, bus progress.Bus, log *logger.Logger) *Run {
	return &Run{Set: set, store: store, bus: bus, log: log.With("job_id", set.ID, "job_kind", set.Kind)}
}

// Input decodes the job's input configuration into dst.
func (r *Run) Input(dst any) error {
	if len(r.Set.InputConfig) == 0 {
		return nil
	}
	return json.Unmarshal(r.Set.InputConfig, dst)
}

// Progress emits one discrete progress event for this job.
func (r *Run) Progress(ctx context.Context, step string, pct int, msg string) {
	if r.bus == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	_ = r.bus.PublishProgress(ctx, progress.ProgressEvent{
		JobID:   r.Set.ID,
		Step:    step,
		Percent: pct,
		Message: msg,
		At:      time.Now(),
	})
}

// Reporter returns a throttled, monotonic reporter for a long-running step.
func (r *Run) Reporter(step string, basePct int) *progress.Reporter {
	return progress.NewReporter(r.bus, r.Set.ID, step, basePct, 0)
}

// start flips queued -> processing, stamping started_at exactly once.
// Returns false when the job was not queued (already claimed or finished).
func (r *Run) start(ctx context.Context) (bool, error) {
	now := time.Now()
	ok, err := r.store.MarkAiSetProcessing(ctx, r.Set.ID, now)
	if err != nil || !ok {
		return false, err
	}
	r.Set.Status = models.JobStatusProcessing
	r.Set.StartedAt = &now
	return true, nil
}

// done flips processing -> done, stamping finished_at exactly once and
// attaching the output statistics payload.
func (r *Run) done(ctx context.Context, stats any) error {
	var raw []byte
	if stats != nil {
		b, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		raw = b
	}
	now := time.Now()
	ok, err := r.store.MarkAiSetDone(ctx, r.Set.ID, now, raw)
	if err != nil {
		return err
	}
	if !ok {
		r.log.Warn("done transition rejected", "status", r.Set.Status)
		return nil
	}
	r.Set.Status = models.JobStatusDone
	r.Set.FinishedAt = &now
	r.Set.OutputStats = raw

	r.Progress(ctx, "finished", 100, "completed")
	if r.bus != nil {
		_ = r.bus.PublishLifecycle(ctx, progress.LifecycleEvent{
			NotebookID: r.Set.NotebookID,
			JobID:      r.Set.ID,
			JobKind:    r.Set.Kind,
			Kind:       progress.LifecycleDone,
			At:         now,
		})
	}
	return nil
}

// fail flips processing -> failed with a captured message.
func (r *Run) fail(ctx context.Context, jobErr error) {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	now := time.Now()
	ok, err := r.store.MarkAiSetFailed(ctx, r.Set.ID, now, msg)
	if err != nil {
		r.log.Error("failed transition not persisted", "error", err)
		return
	}
	if !ok {
		r.log.Warn("failed transition rejected", "status", r.Set.Status)
		return
	}
	r.Set.Status = models.JobStatusFailed
	r.Set.FinishedAt = &now
	r.Set.ErrorMessage = msg

	r.Progress(ctx, "failed", 100, msg)
}

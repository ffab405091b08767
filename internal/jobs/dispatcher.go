package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/platform/logger"
	"github.com/markdave123-py/Studya/internal/progress"
)

// Handler executes one job kind. It returns the output statistics to attach
// on success; any error fails the job with its message captured.
type Handler func(ctx context.Context, run *Run) (any, error)

// Dispatcher is the fire-and-forget background scheduler: requests enqueue a
// job ID and return; a bounded pool of workers dequeues and executes. The
// queue boundary is the async mechanism, no self-invocation involved.
type Dispatcher struct {
	store    Store
	bus      progress.Bus
	log      *logger.Logger
	handlers map[string]Handler
	queue    chan string
}

// queueCapacity bounds the backlog of accepted-but-unstarted jobs.
const queueCapacity = 64

// NewDispatcher constructs the dispatcher with a bounded job queue.
func NewDispatcher(store Store, bus progress.Bus, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		bus:      bus,
		log:      log.With("component", "JobDispatcher"),
		handlers: make(map[string]Handler),
		queue:    make(chan string, queueCapacity),
	}
}

// Register binds a handler to a job kind. Call before Start.
func (d *Dispatcher) Register(kind string, h Handler) {
	d.handlers[kind] = h
}

// Submit creates the AiSet row in queued state, publishes the lifecycle
// "created" event and enqueues the job. It returns as soon as the row
// exists; all further transitions happen on a worker. A full queue rejects
// the submission immediately instead of blocking the caller, leaving the
// row failed.
func (d *Dispatcher) Submit(ctx context.Context, notebookID, userID, kind string, input any) (*models.AiSet, error) {
	if _, ok := d.handlers[kind]; !ok {
		return nil, fmt.Errorf("no handler registered for job kind %q", kind)
	}

	var raw json.RawMessage
	if input != nil {
		b, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("encode job input: %w", err)
		}
		raw = b
	}

	now := time.Now()
	set := &models.AiSet{
		ID:          uuid.NewString(),
		NotebookID:  notebookID,
		UserID:      userID,
		Kind:        kind,
		Status:      models.JobStatusQueued,
		InputConfig: raw,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.store.CreateAiSet(ctx, set); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	_ = d.bus.PublishLifecycle(ctx, progress.LifecycleEvent{
		NotebookID: notebookID,
		JobID:      set.ID,
		JobKind:    kind,
		Kind:       progress.LifecycleCreated,
		At:         now,
	})

	select {
	case d.queue <- set.ID:
	default:
		d.abandon(set.ID)
		return nil, fmt.Errorf("job queue full, retry later")
	}
	return set, nil
}

// abandon fails a row that never made it onto the queue so it does not sit
// in queued state forever. Status only moves forward, so the row walks
// queued -> processing -> failed. A fresh context is used because the
// caller's may already be cancelled.
func (d *Dispatcher) abandon(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	ok, err := d.store.MarkAiSetProcessing(ctx, jobID, now)
	if err != nil || !ok {
		d.log.Error("rejected job not claimed for cleanup", "job_id", jobID, "error", err)
		return
	}
	if _, err := d.store.MarkAiSetFailed(ctx, jobID, now, "job queue full, retry later"); err != nil {
		d.log.Error("rejected job not marked failed", "job_id", jobID, "error", err)
	}
}

// Start launches numWorkers goroutines reading from the queue.
func (d *Dispatcher) Start(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	d.log.Info("starting job workers", "count", numWorkers)

	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					d.log.Info("job worker shutting down", "worker", w)
					return
				case jobID := <-d.queue:
					d.runOne(ctx, w, jobID)
				}
			}
		}(w)
	}
}

// runOne claims and executes a single job. The claim is a compare-and-swap
// on status, so a job enqueued twice runs once.
func (d *Dispatcher) runOne(ctx context.Context, workerID int, jobID string) {
	set, err := d.store.GetAiSetByID(ctx, jobID)
	if err != nil || set == nil {
		d.log.Warn("job not found", "worker", workerID, "job_id", jobID, "error", err)
		return
	}

	run := newRun(set, d.store, d.bus, d.log)

	ok, err := run.start(ctx)
	if err != nil {
		d.log.Error("job claim failed", "worker", workerID, "job_id", jobID, "error", err)
		return
	}
	if !ok {
		d.log.Debug("job already claimed or finished", "worker", workerID, "job_id", jobID)
		return
	}

	handler := d.handlers[set.Kind]
	if handler == nil {
		run.fail(ctx, fmt.Errorf("no handler for job kind %q", set.Kind))
		return
	}

	d.log.Info("job started", "worker", workerID, "job_id", jobID, "kind", set.Kind)
	run.Progress(ctx, "started", 0, "processing")

	stats, runErr := d.execute(ctx, run, handler)
	if runErr != nil {
		d.log.Warn("job failed", "worker", workerID, "job_id", jobID, "error", runErr)
		run.fail(ctx, runErr)
		return
	}
	if err := run.done(ctx, stats); err != nil {
		d.log.Error("job result not persisted", "worker", workerID, "job_id", jobID, "error", err)
	}
}

// execute runs the handler with panic containment; a panicking pipeline
// fails its job instead of killing the worker.
func (d *Dispatcher) execute(ctx context.Context, run *Run, handler Handler) (stats any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("job handler panic", "job_id", run.Set.ID, "panic", r)
			stats = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, run)
}

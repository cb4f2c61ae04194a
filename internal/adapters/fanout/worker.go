// Package fanout runs deferred publication work asynchronously. The archival
// engine enqueues one job per dataset after committing the kick-off
// transaction; the worker drives the finalize step and records the outcome.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus describes the lifecycle stage of a queued job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord tracks an enqueued job and its outcome.
type JobRecord struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Logger is the logging surface the worker needs.
type Logger interface {
	Infow(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

// Worker executes queued jobs one at a time. At most one job per key may be
// pending; enqueueing a duplicate key is rejected until the running job
// completes. Keys are dataset ids, so a dataset is finalized by at most one
// goroutine at a time.
type Worker struct {
	log Logger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*JobRecord
	keys  map[string]string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id  string
	run func(ctx context.Context) error
}

// NewWorker constructs a worker with the given queue depth.
func NewWorker(log Logger, depth int) *Worker {
	if depth <= 0 {
		depth = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		log:    log,
		queue:  make(chan task, depth),
		jobs:   make(map[string]*JobRecord),
		keys:   make(map[string]string),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing queued jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the loop to exit.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules run under the given key and returns the queued record.
func (w *Worker) Enqueue(key string, run func(ctx context.Context) error) (JobRecord, error) {
	if key == "" {
		return JobRecord{}, fmt.Errorf("job key required")
	}
	now := time.Now().UTC()
	record := JobRecord{
		ID:        uuid.NewString(),
		Key:       key,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	w.mu.Lock()
	if _, pending := w.keys[key]; pending {
		w.mu.Unlock()
		return JobRecord{}, fmt.Errorf("job for %s already pending", key)
	}
	w.jobs[record.ID] = &record
	w.keys[key] = record.ID
	queued := record
	w.mu.Unlock()

	select {
	case w.queue <- task{id: record.ID, run: run}:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		delete(w.keys, key)
		w.mu.Unlock()
		return JobRecord{}, fmt.Errorf("job queue full")
	}
	return queued, nil
}

// Get returns a snapshot of the job record.
func (w *Worker) Get(id string) (JobRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return JobRecord{}, false
	}
	return *record, true
}

// Await blocks until the job reaches a terminal status or the context is
// cancelled. Intended for tests and shutdown paths.
func (w *Worker) Await(ctx context.Context, id string) (JobRecord, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		record, ok := w.Get(id)
		if !ok {
			return JobRecord{}, fmt.Errorf("job %s not found", id)
		}
		if record.Status == JobStatusSucceeded || record.Status == JobStatusFailed {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return record, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) process(t task) {
	w.setStatus(t.id, JobStatusRunning, "")
	err := t.run(w.ctx)
	now := time.Now().UTC()

	w.mu.Lock()
	record, ok := w.jobs[t.id]
	if ok {
		record.UpdatedAt = now
		record.CompletedAt = &now
		if err != nil {
			record.Status = JobStatusFailed
			record.Error = err.Error()
		} else {
			record.Status = JobStatusSucceeded
		}
		delete(w.keys, record.Key)
	}
	w.mu.Unlock()

	if err != nil && w.log != nil {
		w.log.Errorw("fanout job failed", "job", t.id, "error", err)
	}
}

func (w *Worker) setStatus(id string, status JobStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
}

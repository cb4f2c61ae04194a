package fanout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"archivecore/internal/adapters/fanout"
)

func TestWorkerRunsJobsAndRecordsOutcome(t *testing.T) {
	worker := fanout.NewWorker(nil, 8)
	worker.Start()
	defer stopWorker(t, worker)

	done := make(chan struct{})
	job, err := worker.Enqueue("ds1", func(context.Context) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	record, err := worker.Await(ctx, job.ID)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if record.Status != fanout.JobStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", record.Status)
	}
	if record.CompletedAt == nil {
		t.Fatalf("expected completion timestamp")
	}
}

func TestWorkerRecordsFailure(t *testing.T) {
	worker := fanout.NewWorker(nil, 8)
	worker.Start()
	defer stopWorker(t, worker)

	job, err := worker.Enqueue("ds1", func(context.Context) error {
		return errors.New("finalize blew up")
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	record, err := worker.Await(ctx, job.ID)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if record.Status != fanout.JobStatusFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
	if record.Error == "" {
		t.Fatalf("expected error message recorded")
	}
}

func TestWorkerRejectsDuplicateKeyWhilePending(t *testing.T) {
	worker := fanout.NewWorker(nil, 8)
	// Not started: the first job stays queued.
	if _, err := worker.Enqueue("ds1", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := worker.Enqueue("ds1", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected duplicate key rejection")
	}
	if _, err := worker.Enqueue("ds2", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("distinct key should enqueue: %v", err)
	}
}

func TestWorkerAllowsKeyReuseAfterCompletion(t *testing.T) {
	worker := fanout.NewWorker(nil, 8)
	worker.Start()
	defer stopWorker(t, worker)

	var mu sync.Mutex
	runs := 0
	run := func(context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	}

	first, err := worker.Enqueue("ds1", run)
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := worker.Await(ctx, first.ID); err != nil {
		t.Fatalf("await first: %v", err)
	}

	second, err := worker.Enqueue("ds1", run)
	if err != nil {
		t.Fatalf("enqueue after completion: %v", err)
	}
	if _, err := worker.Await(ctx, second.ID); err != nil {
		t.Fatalf("await second: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if runs != 2 {
		t.Fatalf("expected both jobs to run, got %d", runs)
	}
}

func stopWorker(t *testing.T, worker *fanout.Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := worker.Stop(ctx); err != nil {
		t.Fatalf("stop worker: %v", err)
	}
}

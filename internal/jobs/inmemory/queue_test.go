package inmemory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/deveshk/invoicescan/internal/jobs"
)

// waitForStatus polls the store until the job reaches a terminal status.
func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ScanJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("Job %s never reached status %s, last: %+v", jobID, want, job)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, 0, store)
	defer queue.Close()

	done := make(chan string, 1)
	handler := func(ctx context.Context, job jobs.Job) error {
		done <- job.GetID()
		return nil
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &jobs.ScanJob{OwnerID: "alice", Filename: "a.jpg"}
	if err := queue.PublishScanDocument(context.Background(), job); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case id := <-done:
		if id != job.JobID {
			t.Errorf("Handler got job %s, expected %s", id, job.JobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Handler never invoked")
	}

	final := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if final.Error != "" {
		t.Errorf("Expected no error on completed job, got %q", final.Error)
	}
}

func TestQueue_PermanentErrorSkipsRetry(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, 0, store)
	defer queue.Close()

	calls := 0
	handler := func(ctx context.Context, job jobs.Job) error {
		calls++
		return &jobs.PermanentError{Err: fmt.Errorf("image rejected")}
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &jobs.ScanJob{OwnerID: "alice", Filename: "blurry.jpg"}
	if err := queue.PublishScanDocument(context.Background(), job); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	final := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if final.RetryCount != 0 {
		t.Errorf("Expected no retries for permanent failure, got %d", final.RetryCount)
	}
	if calls != 1 {
		t.Errorf("Expected handler to run once, got %d", calls)
	}
}

func TestQueue_TransientErrorRetries(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, 0, store)
	defer queue.Close()

	done := make(chan struct{})
	calls := 0
	handler := func(ctx context.Context, job jobs.Job) error {
		calls++
		if calls < 2 {
			return fmt.Errorf("model unavailable")
		}
		close(done)
		return nil
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &jobs.ScanJob{OwnerID: "alice", Filename: "a.jpg", MaxRetries: 2}
	if err := queue.PublishScanDocument(context.Background(), job); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Job never retried after transient failure")
	}

	waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
}

func TestQueue_ConfiguredMaxRetries(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, 7, store)
	defer queue.Close()

	job := &jobs.ScanJob{OwnerID: "alice", Filename: "a.jpg"}
	if err := queue.PublishScanDocument(context.Background(), job); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if job.MaxRetries != 7 {
		t.Errorf("Expected queue retry budget 7 on published job, got %d", job.MaxRetries)
	}

	// An explicit per-job budget wins over the queue default.
	job = &jobs.ScanJob{OwnerID: "alice", Filename: "b.jpg", MaxRetries: 1}
	if err := queue.PublishScanDocument(context.Background(), job); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if job.MaxRetries != 1 {
		t.Errorf("Expected per-job retry budget 1 to be kept, got %d", job.MaxRetries)
	}
}

func TestStore_ListJobsFilter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i, owner := range []string{"alice", "alice", "bob"} {
		job := &jobs.ScanJob{
			JobID:   fmt.Sprintf("job-%d", i),
			OwnerID: owner,
			Status:  jobs.JobStatusPending,
		}
		if err := store.SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}
	}

	aliceJobs, err := store.ListJobs(ctx, jobs.JobFilter{OwnerID: "alice"})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(aliceJobs) != 2 {
		t.Errorf("Expected 2 jobs for alice, got %d", len(aliceJobs))
	}

	limited, err := store.ListJobs(ctx, jobs.JobFilter{OwnerID: "alice", Limit: 1})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected limit to apply, got %d jobs", len(limited))
	}
}

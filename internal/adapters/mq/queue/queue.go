// Package queue holds process jobs waiting for a worker.
//
// A video can be pending only once: a second Enqueue for the same canonical
// URL is rejected with ErrDuplicate until the first job is marked Done.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/yap/internal/domain/dedupe"
	"github.com/okian/yap/pkg/metrics"
)

const defaultQueueCapacity = 1000

// Job asks a worker to score and persist one video.
type Job struct {
	ID         string    `json:"job_id"`
	VideoURL   string    `json:"video_url"`
	ProfileID  string    `json:"profile_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job, assigning its ID and EnqueuedAt. It never blocks.
	Enqueue(ctx context.Context, j Job) (Job, error)
	// Dequeue returns the channel workers read from. It is closed by Close.
	Dequeue(ctx context.Context) <-chan Job
	// Done releases the job's video so it can be enqueued again.
	Done(ctx context.Context, j Job)
	Len(ctx context.Context) int
	Capacity() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	pending  dedupe.Deduper

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	if q.pending == nil {
		// Queued plus in-progress keys never exceed this bound in practice;
		// eviction only happens if Done is never called.
		q.pending = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(q.capacity * 4))
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) (Job, error) {
	start := time.Now()
	defer func() { metrics.RecordQueueProcessingLatency(float64(time.Since(start).Milliseconds())) }()

	if j.VideoURL == "" {
		metrics.RecordQueueEnqueueError()
		return Job{}, ErrEmptyKey
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return Job{}, ErrClosed
	}
	if q.pending.SeenAndRecord(ctx, j.VideoURL) {
		metrics.RecordQueueDuplicate()
		return Job{}, fmt.Errorf("%w: %s", ErrDuplicate, j.VideoURL)
	}

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.EnqueuedAt = time.Now().UTC()

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.publish()
		return j, nil
	case <-ctx.Done():
		q.pending.Unrecord(ctx, j.VideoURL)
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return Job{}, ctx.Err()
	default:
		q.pending.Unrecord(ctx, j.VideoURL)
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return Job{}, ErrQueueFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job { return q.jobs }

// Done implements Queue.
func (q *InMemoryQueue) Done(ctx context.Context, j Job) {
	q.pending.Unrecord(ctx, j.VideoURL)
	metrics.RecordQueueDequeue()
	q.publish()
}

// Pending reports whether a job for videoURL is queued or running.
func (q *InMemoryQueue) Pending(ctx context.Context, videoURL string) bool {
	return q.pending.Contains(ctx, videoURL)
}

// Len implements Queue.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	q.publish()
	return len(q.jobs)
}

// Capacity implements Queue.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

func (q *InMemoryQueue) publish() {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close stops accepting jobs. Jobs already queued stay readable until the
// channel drains.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

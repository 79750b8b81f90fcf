package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/observability"
	"github.com/hibiken/asynq"
)

const (
	defaultMaxRetry    = 2
	defaultTaskTimeout = 6 * time.Hour
)

// QueueManager manages task queuing
type QueueManager struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

// NewQueueManager creates a new queue manager for queue
func NewQueueManager(redisOpt *asynq.RedisClientOpt, queue string) *QueueManager {
	if queue == "" {
		queue = QueueEnrich
	}

	return &QueueManager{
		client:    asynq.NewClient(*redisOpt),
		inspector: asynq.NewInspector(*redisOpt),
		queue:     queue,
	}
}

// Queue returns the queue tasks are enqueued on
func (q *QueueManager) Queue() string {
	return q.queue
}

// EnqueueTrack enqueues an enrichment task. It reports false without error
// when the same file is already pending or running. An archived task for
// the file is replaced.
func (q *QueueManager) EnqueueTrack(ctx context.Context, payload TrackPayload, opts ...asynq.Option) (bool, error) {
	if err := payload.Validate(); err != nil {
		return false, err
	}

	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	task := asynq.NewTask(TypeEnrichTrack, data)

	allOpts := []asynq.Option{
		asynq.TaskID(payload.UniqueID()),
		asynq.Queue(q.queue),
		asynq.MaxRetry(defaultMaxRetry),
		asynq.Timeout(defaultTaskTimeout),
	}
	allOpts = append(allOpts, opts...)

	_, err = q.client.EnqueueContext(ctx, task, allOpts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		var released bool

		if released, err = q.releaseArchived(payload.UniqueID()); err != nil {
			observability.RecordTaskEnqueued(payload.Trigger, "error")
			return false, err
		}

		if !released {
			observability.RecordTaskEnqueued(payload.Trigger, "duplicate")
			return false, nil
		}

		_, err = q.client.EnqueueContext(ctx, task, allOpts...)
	}

	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			observability.RecordTaskEnqueued(payload.Trigger, "duplicate")
			return false, nil
		}

		observability.RecordTaskEnqueued(payload.Trigger, "error")

		return false, fmt.Errorf("failed to enqueue %s: %w", payload.Input, err)
	}

	observability.RecordTaskEnqueued(payload.Trigger, "enqueued")

	return true, nil
}

// releaseArchived deletes the task with id when it was archived after its
// retries ran out, so the file can be queued again.
func (q *QueueManager) releaseArchived(id string) (bool, error) {
	info, err := q.inspector.GetTaskInfo(q.queue, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to inspect task %s: %w", id, err)
	}

	if info.State != asynq.TaskStateArchived {
		return false, nil
	}

	if err := q.inspector.DeleteTask(q.queue, id); err != nil {
		return false, fmt.Errorf("failed to delete archived task %s: %w", id, err)
	}

	return true, nil
}

// IsTrackPendingOrRunning checks if input has a task waiting or running
func (q *QueueManager) IsTrackPendingOrRunning(input string) (bool, error) {
	info, err := q.inspector.GetTaskInfo(q.queue, TrackPayload{Input: input}.UniqueID())
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return false, nil
		}

		return false, err
	}

	return info.State == asynq.TaskStatePending ||
		info.State == asynq.TaskStateActive ||
		info.State == asynq.TaskStateRetry, nil
}

// GetQueueStats returns queue statistics
func (q *QueueManager) GetQueueStats() (*asynq.QueueInfo, error) {
	return q.inspector.GetQueueInfo(q.queue)
}

// Close closes the queue manager
func (q *QueueManager) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}

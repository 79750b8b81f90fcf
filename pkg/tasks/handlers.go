package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/observability"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Processor enriches one trajectory file
type Processor interface {
	Process(ctx context.Context, input string) error
}

// TaskHandler handles task execution
type TaskHandler struct {
	processor Processor
	log       logrus.FieldLogger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(processor Processor, log logrus.FieldLogger) *TaskHandler {
	return &TaskHandler{
		processor: processor,
		log:       log.WithField("component", "task-handler"),
	}
}

// HandleEnrichTrack handles enrichment tasks. Payloads that can never be
// processed are not retried.
func (h *TaskHandler) HandleEnrichTrack(ctx context.Context, t *asynq.Task) error {
	var payload TrackPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		observability.RecordError("task-handler", "unmarshal_error")
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	if err := payload.Validate(); err != nil {
		observability.RecordError("task-handler", "invalid_payload")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	log := h.log.WithFields(logrus.Fields{
		"input":   payload.Input,
		"trigger": payload.Trigger,
	})

	log.Info("Starting enrichment task")

	startTime := time.Now()

	observability.RecordTaskStart()

	if err := h.processor.Process(ctx, payload.Input); err != nil {
		log.WithError(err).Error("Enrichment failed")
		observability.RecordTaskComplete("failed", time.Since(startTime).Seconds())
		observability.RecordError("task-handler", "execution_error")

		return fmt.Errorf("execution error: %w", err)
	}

	observability.RecordTaskComplete("success", time.Since(startTime).Seconds())

	log.WithField("duration", time.Since(startTime)).Info("Task completed successfully")

	return nil
}

// Routes returns the task handler routes for Asynq
func (h *TaskHandler) Routes() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		TypeEnrichTrack: h.HandleEnrichTrack,
	}
}

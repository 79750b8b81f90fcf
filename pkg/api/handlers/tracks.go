package handlers

import (
	"fmt"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/tasks"
	"github.com/gofiber/fiber/v3"
)

// EnqueueRequest is the body of POST /api/v1/tracks
type EnqueueRequest struct {
	Input string `json:"input"`
}

// EnqueueResponse reports the task created for a track
type EnqueueResponse struct {
	TaskID   string `json:"task_id"`
	Enqueued bool   `json:"enqueued"`
}

// QueueResponse summarises the enrichment queue
type QueueResponse struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Completed int    `json:"completed"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Paused    bool   `json:"paused"`
}

// EnqueueTrack handles POST /api/v1/tracks. A track that is already queued
// answers 200 with enqueued false, a new task 202.
func (s *Server) EnqueueTrack(c fiber.Ctx) error {
	if s.queue == nil {
		return ErrQueueUnavailable
	}

	var body EnqueueRequest
	if err := c.Bind().JSON(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
	}

	if body.Input == "" {
		return ErrInputRequired
	}

	payload := tasks.TrackPayload{
		Input:      body.Input,
		Trigger:    tasks.TriggerManual,
		EnqueuedAt: time.Now().UTC(),
	}

	enqueued, err := s.queue.EnqueueTrack(c.Context(), payload)
	if err != nil {
		s.log.WithError(err).WithField("input", body.Input).Error("Failed to enqueue track")
		return fiber.NewError(fiber.StatusBadGateway, "failed to enqueue track")
	}

	status := fiber.StatusAccepted
	if !enqueued {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(EnqueueResponse{
		TaskID:   payload.UniqueID(),
		Enqueued: enqueued,
	})
}

// QueueStats handles GET /api/v1/queue
func (s *Server) QueueStats(c fiber.Ctx) error {
	if s.queue == nil {
		return ErrQueueUnavailable
	}

	info, err := s.queue.GetQueueStats()
	if err != nil {
		s.log.WithError(err).Warn("Failed to read queue stats")
		return fiber.NewError(fiber.StatusBadGateway, "failed to read queue stats")
	}

	return c.JSON(QueueResponse{
		Queue:     info.Queue,
		Size:      info.Size,
		Pending:   info.Pending,
		Active:    info.Active,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Completed: info.Completed,
		Processed: info.Processed,
		Failed:    info.Failed,
		Paused:    info.Paused,
	})
}

// Package tasks provides task queue management using Asynq
package tasks

import (
	"errors"
	"path/filepath"
	"time"
)

const (
	// TypeEnrichTrack is the task type for enriching one trajectory file
	TypeEnrichTrack = "track:enrich"
	// QueueEnrich is the default queue for enrichment tasks
	QueueEnrich = "enrich"
)

// Triggers recorded on enqueue
const (
	TriggerManual    = "manual"
	TriggerScheduler = "scheduler"
)

// ErrInputRequired is returned for payloads without an input path
var ErrInputRequired = errors.New("track payload has no input path")

// TrackPayload represents the payload for an enrichment task
type TrackPayload struct {
	Input      string    `json:"input"`
	Trigger    string    `json:"trigger"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// UniqueID returns the task id. A file has at most one pending or active
// enrichment at a time.
func (p TrackPayload) UniqueID() string {
	return "track:" + filepath.Clean(p.Input)
}

// Validate checks if the payload can be processed
func (p TrackPayload) Validate() error {
	if p.Input == "" {
		return ErrInputRequired
	}

	return nil
}

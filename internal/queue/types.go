package queue

import (
	"errors"
	"time"

	"github.com/vishnualpha/sensuQ-sub001/internal/navigator"
)

// Priority orders items within a depth level.
type Priority string

// Item priorities. Interactive-element targets outrank plain links,
// which outrank assets and external-looking paths.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// rank maps a priority to its sort order, lower first.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Status tracks an item through its lifecycle.
type Status string

// Item statuses.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Item is one durable crawl-queue record. Exactly one exists per
// (run, URL) pair for the lifetime of a run.
type Item struct {
	RunID        string           `json:"run_id"`
	URL          string           `json:"url"`
	Depth        int              `json:"depth"`
	OriginPageID string           `json:"origin_page_id,omitempty"`
	ScenarioID   string           `json:"scenario_id,omitempty"`
	Priority     Priority         `json:"priority"`
	Status       Status           `json:"status"`
	// RequiredSteps replays the exact path that discovered this URL, so
	// a fresh session can rebuild any application state it depends on.
	RequiredSteps    []navigator.Step `json:"required_steps,omitempty"`
	DiscoveredPageID string           `json:"discovered_page_id,omitempty"`
	Error            string           `json:"error,omitempty"`
	Seq              uint64           `json:"seq"`
	EnqueuedAt       time.Time        `json:"enqueued_at"`
}

// Queue errors.
var (
	ErrQueueClosed = errors.New("queue is closed")
	ErrNotFound    = errors.New("queue item not found")
)

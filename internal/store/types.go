package store

import (
	"errors"
	"time"

	"github.com/vishnualpha/sensuQ-sub001/internal/navigator"
)

// RunStatus is the lifecycle state of one exploration run.
type RunStatus string

// Run statuses.
const (
	RunIdle       RunStatus = "idle"
	RunCrawling   RunStatus = "crawling"
	RunGenerating RunStatus = "generating"
	RunReady      RunStatus = "ready"
	RunFailed     RunStatus = "failed"
)

// Run is the top-level record of one exploration.
type Run struct {
	ID         string    `json:"id"`
	TargetURL  string    `json:"target_url"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	PageCount  int       `json:"page_count"`
	Error      string    `json:"error,omitempty"`
}

// DiscoveredPage is one node in the exploration graph. Virtual pages
// represent SPA states that share a URL with their parent but differ
// structurally; their identity comes from the state identifier.
type DiscoveredPage struct {
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	URL             string    `json:"url"`
	Title           string    `json:"title,omitempty"`
	ScreenName      string    `json:"screen_name,omitempty"`
	PageType        string    `json:"page_type,omitempty"`
	Depth           int       `json:"depth"`
	ElementCount    int       `json:"element_count"`
	IsVirtual       bool      `json:"is_virtual"`
	StateIdentifier string    `json:"state_identifier,omitempty"`
	ParentPageID    string    `json:"parent_page_id,omitempty"`
	ScreenshotPath  string    `json:"screenshot_path,omitempty"`
	PageSource      []byte    `json:"page_source,omitempty"`
	DiscoveredAt    time.Time `json:"discovered_at"`
}

// InteractiveElement is one actionable control found on a page.
// SelfHealed marks elements whose recorded selector no longer matched
// and was recovered through the fallback ladder.
type InteractiveElement struct {
	ID             string            `json:"id"`
	PageID         string            `json:"page_id"`
	RunID          string            `json:"run_id"`
	Selector       string            `json:"selector"`
	ElementType    string            `json:"element_type"`
	Text           string            `json:"text,omitempty"`
	Purpose        string            `json:"purpose,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Priority       int               `json:"priority,omitempty"`
	IdentifiedBy   string            `json:"identified_by,omitempty"`
	SelfHealed     bool              `json:"self_healed,omitempty"`
	HealedSelector string            `json:"healed_selector,omitempty"`
}

// CrawlPath is an edge of the exploration graph: how PageID was reached
// from FromPageID, with the complete replayable step sequence from a
// clean session, including any login and state-building clicks. Trigger
// is the step appended over the origin's log to produce this one; an
// empty FromPageID marks the seed.
type CrawlPath struct {
	ID         string           `json:"id"`
	RunID      string           `json:"run_id"`
	PageID     string           `json:"page_id"`
	FromPageID string           `json:"from_page_id,omitempty"`
	Trigger    navigator.Step   `json:"trigger"`
	Depth      int              `json:"depth"`
	Steps      []navigator.Step `json:"steps"`
}

// Store errors.
var (
	ErrNotFound    = errors.New("record not found")
	ErrStoreClosed = errors.New("store is closed")
)

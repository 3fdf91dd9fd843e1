package explorer

import (
	"time"

	"github.com/vishnualpha/sensuQ-sub001/internal/store"
)

// RunResult summarizes one completed (or stopped) exploration run.
type RunResult struct {
	RunID           string          `json:"run_id"`
	Target          string          `json:"target"`
	Status          store.RunStatus `json:"status"`
	PagesDiscovered int             `json:"pages_discovered"`
	PagesCompleted  int             `json:"pages_completed"`
	PagesFailed     int             `json:"pages_failed"`
	VirtualPages    int             `json:"virtual_pages"`
	Elements        int             `json:"elements"`
	Duration        time.Duration   `json:"duration"`
	Error           string          `json:"error,omitempty"`
}

// RunStatusInfo is a live view of a run for the status surface.
type RunStatusInfo struct {
	Run       *store.Run `json:"run"`
	Queued    int        `json:"queued"`
	Completed int        `json:"completed"`
	Failed    int        `json:"failed"`
	Pages     int        `json:"pages"`
}

// Package progress publishes exploration run progress to subscribers,
// including a WebSocket broadcast for external dashboards.
package progress

import (
	"sync"
	"time"

	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
)

// Phase is the externally visible run phase.
type Phase string

// Run phases, in order.
const (
	PhaseCrawling   Phase = "crawling"
	PhaseGenerating Phase = "generating"
	PhaseReady      Phase = "ready"
	PhaseFailed     Phase = "failed"
)

// Event is one progress update.
type Event struct {
	RunID           string    `json:"run_id"`
	Phase           Phase     `json:"phase"`
	Percent         int       `json:"percent"`
	PagesDiscovered int       `json:"pages_discovered"`
	PagesCompleted  int       `json:"pages_completed"`
	Depth           int       `json:"depth"`
	CurrentURL      string    `json:"current_url,omitempty"`
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Percent derives a display percentage from the run state. Crawling
// ramps 0-89 with completed pages over discovered, generating parks at
// 90, terminal phases read 100.
func Percent(phase Phase, completed, discovered int) int {
	switch phase {
	case PhaseReady, PhaseFailed:
		return 100
	case PhaseGenerating:
		return 90
	}
	if discovered <= 0 {
		return 0
	}
	p := completed * 89 / discovered
	if p > 89 {
		p = 89
	}
	return p
}

const subscriberBuffer = 16

// Tracker fans progress events out to subscribers. Slow subscribers
// drop events rather than stalling the crawl; the latest event is
// always retrievable via Last.
type Tracker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	last   Event
	log    *logger.Logger
}

// NewTracker creates a tracker.
func NewTracker(log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Tracker{
		subs: make(map[int]chan Event),
		log:  log.WithComponent("progress"),
	}
}

// Publish stamps and delivers an event to every subscriber.
func (t *Tracker) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Percent == 0 {
		ev.Percent = Percent(ev.Phase, ev.PagesCompleted, ev.PagesDiscovered)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = ev
	for id, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			t.log.Debugf("Dropping progress event for slow subscriber %d", id)
		}
	}
}

// Subscribe registers a listener. The returned cancel function must be
// called to release the subscription.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	ch := make(chan Event, subscriberBuffer)
	t.subs[id] = ch

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Last returns the most recently published event.
func (t *Tracker) Last() Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// SubscriberCount returns the number of active subscribers.
func (t *Tracker) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

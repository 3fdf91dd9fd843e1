package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vishnualpha/sensuQ-sub001/internal/errors"
	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
)

// PoolSession is what the pool needs from a browser session. Session
// satisfies it; tests substitute fakes.
type PoolSession interface {
	ID() string
	Page() Page
	ClearBrowserData(ctx context.Context) error
	Close() error
}

// LaunchFunc launches a new session for a pool slot.
type LaunchFunc func(id string, config Config) (PoolSession, error)

// Handle is an exclusive lease on one pooled session.
type Handle struct {
	slot    int
	Session PoolSession
}

// ID returns the leased session's identifier.
func (h *Handle) ID() string {
	return h.Session.ID()
}

// Page returns the leased session's page surface.
func (h *Handle) Page() Page {
	return h.Session.Page()
}

// Pool manages a fixed-size set of independent browser sessions. Slots
// never disappear: a session that dies is replaced in place, so
// available+busy always equals the pool size.
type Pool struct {
	mu     sync.Mutex
	config Config
	launch LaunchFunc
	log    *logger.Logger

	slots  []PoolSession
	free   chan int
	busy   int
	closed bool

	pollInterval time.Duration
}

// NewPool creates an uninitialized pool.
func NewPool(config Config, log *logger.Logger) *Pool {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Pool{
		config: config,
		log:    log.WithComponent("pool"),
		launch: func(id string, cfg Config) (PoolSession, error) {
			return NewSession(id, cfg)
		},
		pollInterval: time.Second,
	}
}

// SetLaunchFunc overrides session launching. Used by tests.
func (p *Pool) SetLaunchFunc(fn LaunchFunc) {
	p.launch = fn
}

// Initialize launches n independent sessions synchronously. A launch
// failure tears down any sessions already started.
func (p *Pool) Initialize(n int) error {
	if n < 1 {
		n = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slots != nil {
		return fmt.Errorf("pool already initialized")
	}

	p.slots = make([]PoolSession, n)
	p.free = make(chan int, n)

	for i := 0; i < n; i++ {
		session, err := p.launch(fmt.Sprintf("browser-%d", i), p.config)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = p.slots[j].Close()
			}
			p.slots = nil
			p.free = nil
			return errors.NewSession("initialize", fmt.Errorf("slot %d: %w", i, err))
		}
		p.slots[i] = session
		p.free <- i
	}

	p.log.Infof("Browser pool ready with %d sessions", n)
	return nil
}

// Acquire blocks until a session is free, polling so that a global stop
// is honored within one interval. The returned handle is exclusively
// owned by the caller until Release.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("pool is closed")
		}
		free := p.free
		p.mu.Unlock()

		select {
		case slot := <-free:
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return nil, fmt.Errorf("pool is closed")
			}
			p.busy++
			h := &Handle{slot: slot, Session: p.slots[slot]}
			p.mu.Unlock()
			return h, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}

// Release returns a leased session to the free list.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.busy--
	p.free <- h.slot
}

// Reset clears cookies and web storage on a leased session so that one
// branch's login cannot leak into an unrelated branch crawled by the
// same slot. If clearing fails the session is replaced in place with a
// fresh launch, keeping the pool size invariant.
func (p *Pool) Reset(ctx context.Context, h *Handle) error {
	if err := h.Session.ClearBrowserData(ctx); err == nil {
		return nil
	} else {
		p.log.Warnf("Session %s reset failed, replacing: %v", h.ID(), err)
	}

	_ = h.Session.Close()

	replacement, err := p.launch(fmt.Sprintf("browser-%d", h.slot), p.config)
	if err != nil {
		return errors.NewSession("reset", fmt.Errorf("replace slot %d: %w", h.slot, err))
	}

	p.mu.Lock()
	p.slots[h.slot] = replacement
	p.mu.Unlock()
	h.Session = replacement
	return nil
}

// CloseAll tears down every session. Individual close failures are
// logged, not returned as fatal; the pool ends closed regardless.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var lastErr error
	for i, session := range p.slots {
		if session == nil {
			continue
		}
		if err := session.Close(); err != nil {
			p.log.Warnf("Failed to close session %d: %v", i, err)
			lastErr = err
		}
	}
	p.slots = nil
	p.busy = 0
	return lastErr
}

// PoolStats is a snapshot of pool occupancy.
type PoolStats struct {
	Size      int `json:"size"`
	Available int `json:"available"`
	Busy      int `json:"busy"`
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := len(p.slots)
	available := 0
	if p.free != nil {
		available = len(p.free)
	}
	return PoolStats{
		Size:      size,
		Available: available,
		Busy:      p.busy,
	}
}

// Size returns the pool size.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

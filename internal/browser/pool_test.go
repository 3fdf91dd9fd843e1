package browser

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeSession is an in-memory PoolSession.
type fakeSession struct {
	id        string
	clearErr  error
	clears    int
	closed    bool
	closeOnce sync.Once
}

func (f *fakeSession) ID() string { return f.id }
func (f *fakeSession) Page() Page { return nil }
func (f *fakeSession) ClearBrowserData(ctx context.Context) error {
	f.clears++
	return f.clearErr
}
func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() { f.closed = true })
	return nil
}

func newFakePool(t *testing.T, n int) (*Pool, *[]*fakeSession) {
	t.Helper()
	var launched []*fakeSession
	p := NewPool(DefaultConfig(), nil)
	p.SetLaunchFunc(func(id string, cfg Config) (PoolSession, error) {
		s := &fakeSession{id: id}
		launched = append(launched, s)
		return s, nil
	})
	if err := p.Initialize(n); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return p, &launched
}

func TestPoolInitializeAndStats(t *testing.T) {
	p, _ := newFakePool(t, 3)
	defer p.CloseAll()

	stats := p.Stats()
	if stats.Size != 3 || stats.Available != 3 || stats.Busy != 0 {
		t.Errorf("stats = %+v, want size 3 available 3 busy 0", stats)
	}
}

func TestPoolInitializeFailureRollsBack(t *testing.T) {
	var launched []*fakeSession
	p := NewPool(DefaultConfig(), nil)
	p.SetLaunchFunc(func(id string, cfg Config) (PoolSession, error) {
		if len(launched) == 2 {
			return nil, fmt.Errorf("chrome refused to start")
		}
		s := &fakeSession{id: id}
		launched = append(launched, s)
		return s, nil
	})

	if err := p.Initialize(3); err == nil {
		t.Fatal("Initialize succeeded, want launch failure")
	}
	for i, s := range launched {
		if !s.closed {
			t.Errorf("session %d not closed on rollback", i)
		}
	}
	if p.Size() != 0 {
		t.Errorf("Size = %d after failed init, want 0", p.Size())
	}
}

func TestPoolAcquireRelease(t *testing.T) {
	p, _ := newFakePool(t, 2)
	defer p.CloseAll()

	h1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	h2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if h1.ID() == h2.ID() {
		t.Error("two leases returned the same session")
	}

	stats := p.Stats()
	if stats.Available != 0 || stats.Busy != 2 {
		t.Errorf("stats = %+v, want available 0 busy 2", stats)
	}
	if stats.Available+stats.Busy != stats.Size {
		t.Errorf("pool invariant broken: %+v", stats)
	}

	p.Release(h1)
	stats = p.Stats()
	if stats.Available != 1 || stats.Busy != 1 {
		t.Errorf("stats after release = %+v, want available 1 busy 1", stats)
	}
	p.Release(h2)
}

func TestPoolAcquireBlocksUntilRelease(t *testing.T) {
	p, _ := newFakePool(t, 1)
	defer p.CloseAll()

	h, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	got := make(chan *Handle, 1)
	go func() {
		h2, err := p.Acquire(context.Background())
		if err == nil {
			got <- h2
		}
	}()

	select {
	case <-got:
		t.Fatal("Acquire returned while all sessions were leased")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(h)
	select {
	case h2 := <-got:
		p.Release(h2)
	case <-time.After(3 * time.Second):
		t.Fatal("Acquire did not wake after Release")
	}
}

func TestPoolAcquireHonorsCancellation(t *testing.T) {
	p, _ := newFakePool(t, 1)
	defer p.CloseAll()

	h, _ := p.Acquire(context.Background())
	defer p.Release(h)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); err == nil {
		t.Fatal("Acquire succeeded on exhausted pool under deadline")
	}
}

func TestPoolResetClearsSession(t *testing.T) {
	p, launched := newFakePool(t, 1)
	defer p.CloseAll()

	h, _ := p.Acquire(context.Background())
	if err := p.Reset(context.Background(), h); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if (*launched)[0].clears != 1 {
		t.Errorf("clears = %d, want 1", (*launched)[0].clears)
	}
	if len(*launched) != 1 {
		t.Errorf("launched = %d sessions, reset should not replace a healthy one", len(*launched))
	}
	p.Release(h)
}

func TestPoolResetReplacesDeadSession(t *testing.T) {
	p, launched := newFakePool(t, 2)
	defer p.CloseAll()

	h, _ := p.Acquire(context.Background())
	dead := h.Session.(*fakeSession)
	dead.clearErr = fmt.Errorf("session disconnected")

	if err := p.Reset(context.Background(), h); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if !dead.closed {
		t.Error("dead session not closed on replacement")
	}
	if h.Session == PoolSession(dead) {
		t.Error("handle still points at the dead session")
	}
	if len(*launched) != 3 {
		t.Errorf("launched = %d, want 3 (2 initial + 1 replacement)", len(*launched))
	}

	p.Release(h)
	stats := p.Stats()
	if stats.Size != 2 || stats.Available+stats.Busy != 2 {
		t.Errorf("pool invariant broken after replacement: %+v", stats)
	}
}

func TestPoolCloseAll(t *testing.T) {
	p, launched := newFakePool(t, 3)
	if err := p.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
	for i, s := range *launched {
		if !s.closed {
			t.Errorf("session %d not closed", i)
		}
	}
	if _, err := p.Acquire(context.Background()); err == nil {
		t.Error("Acquire succeeded on closed pool")
	}
}

// Guards against accidental interface drift between Session and Page.
var _ Page = (*Session)(nil)
var _ PoolSession = (*Session)(nil)

package metrics

import (
	"sync"
	"testing"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()

	c.PageDiscovered()
	c.PageDiscovered()
	c.PageCrawled()
	c.VirtualPage()
	c.ElementsFound(7)
	c.ScenarioExecuted()
	c.ScenarioFailed()
	c.LoginPerformed()
	c.SelectorHealed()
	c.NavigationRetry()
	c.Error("navigation")
	c.Error("navigation")
	c.Error("llm")
	c.SetQueueDepth(4)
	c.SetActiveWorkers(2)
	c.SetPoolStats(3, 2)

	s := c.Snapshot()
	if s.PagesDiscovered != 2 || s.PagesCrawled != 1 || s.VirtualPages != 1 {
		t.Errorf("page counters = %d/%d/%d", s.PagesDiscovered, s.PagesCrawled, s.VirtualPages)
	}
	if s.ElementsFound != 7 {
		t.Errorf("ElementsFound = %d, want 7", s.ElementsFound)
	}
	if s.ErrorsTotal != 3 || s.ErrorCounts["navigation"] != 2 || s.ErrorCounts["llm"] != 1 {
		t.Errorf("errors = %d %v", s.ErrorsTotal, s.ErrorCounts)
	}
	if s.QueueDepth != 4 || s.ActiveWorkers != 2 || s.PoolSize != 3 || s.PoolInUse != 2 {
		t.Errorf("gauges = %d/%d/%d/%d", s.QueueDepth, s.ActiveWorkers, s.PoolSize, s.PoolInUse)
	}
	if s.ScenarioFailRate != 0.5 {
		t.Errorf("ScenarioFailRate = %v, want 0.5", s.ScenarioFailRate)
	}
	if s.Uptime <= 0 {
		t.Error("Uptime not advancing")
	}
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector()
	c.PageCrawled()
	c.Error("navigation")
	c.SetPoolStats(3, 1)

	c.Reset()

	s := c.Snapshot()
	if s.PagesCrawled != 0 || s.ErrorsTotal != 0 || s.PoolSize != 0 {
		t.Errorf("snapshot after reset = %+v", s)
	}
	if len(s.ErrorCounts) != 0 {
		t.Errorf("ErrorCounts after reset = %v", s.ErrorCounts)
	}
}

func TestCollectorConcurrentUse(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.PageCrawled()
				c.Error("interaction")
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.PagesCrawled != 1000 {
		t.Errorf("PagesCrawled = %d, want 1000", s.PagesCrawled)
	}
	if s.ErrorCounts["interaction"] != 1000 {
		t.Errorf("interaction errors = %d, want 1000", s.ErrorCounts["interaction"])
	}
}

func TestSnapshotZeroRates(t *testing.T) {
	s := NewCollector().Snapshot()
	if s.ScenarioFailRate != 0 {
		t.Errorf("ScenarioFailRate = %v with no scenarios", s.ScenarioFailRate)
	}
}

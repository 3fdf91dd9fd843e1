// Package metrics collects exploration counters for run summaries and
// the status endpoint.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector accumulates counters for a single exploration run.
type Collector struct {
	startTime time.Time

	pagesDiscovered   atomic.Int64
	pagesCrawled      atomic.Int64
	virtualPages      atomic.Int64
	elementsFound     atomic.Int64
	scenariosExecuted atomic.Int64
	scenariosFailed   atomic.Int64
	loginsPerformed   atomic.Int64
	selfHealed        atomic.Int64
	navigationRetries atomic.Int64
	errorsTotal       atomic.Int64

	queueDepth    atomic.Int64
	activeWorkers atomic.Int64
	poolSize      atomic.Int64
	poolInUse     atomic.Int64

	mu          sync.Mutex
	errorCounts map[string]int64
}

// NewCollector creates a collector with the clock started.
func NewCollector() *Collector {
	return &Collector{
		startTime:   time.Now(),
		errorCounts: make(map[string]int64),
	}
}

func (c *Collector) PageDiscovered()   { c.pagesDiscovered.Add(1) }
func (c *Collector) PageCrawled()      { c.pagesCrawled.Add(1) }
func (c *Collector) VirtualPage()      { c.virtualPages.Add(1) }
func (c *Collector) ScenarioExecuted() { c.scenariosExecuted.Add(1) }
func (c *Collector) ScenarioFailed()   { c.scenariosFailed.Add(1) }
func (c *Collector) LoginPerformed()   { c.loginsPerformed.Add(1) }
func (c *Collector) SelectorHealed()   { c.selfHealed.Add(1) }
func (c *Collector) NavigationRetry()  { c.navigationRetries.Add(1) }

// ElementsFound adds a batch of identified elements.
func (c *Collector) ElementsFound(n int) { c.elementsFound.Add(int64(n)) }

// Error records a failure by kind.
func (c *Collector) Error(kind string) {
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.errorCounts[kind]++
	c.mu.Unlock()
}

func (c *Collector) SetQueueDepth(n int)    { c.queueDepth.Store(int64(n)) }
func (c *Collector) SetActiveWorkers(n int) { c.activeWorkers.Store(int64(n)) }

// SetPoolStats records the browser pool size and in-use count.
func (c *Collector) SetPoolStats(size, inUse int) {
	c.poolSize.Store(int64(size))
	c.poolInUse.Store(int64(inUse))
}

// Snapshot is a point-in-time view of the collector.
type Snapshot struct {
	Uptime            time.Duration    `json:"uptime"`
	PagesDiscovered   int64            `json:"pages_discovered"`
	PagesCrawled      int64            `json:"pages_crawled"`
	VirtualPages      int64            `json:"virtual_pages"`
	ElementsFound     int64            `json:"elements_found"`
	ScenariosExecuted int64            `json:"scenarios_executed"`
	ScenariosFailed   int64            `json:"scenarios_failed"`
	LoginsPerformed   int64            `json:"logins_performed"`
	SelfHealed        int64            `json:"self_healed_selectors"`
	NavigationRetries int64            `json:"navigation_retries"`
	ErrorsTotal       int64            `json:"errors_total"`
	ErrorCounts       map[string]int64 `json:"error_counts,omitempty"`
	QueueDepth        int64            `json:"queue_depth"`
	ActiveWorkers     int64            `json:"active_workers"`
	PoolSize          int64            `json:"pool_size"`
	PoolInUse         int64            `json:"pool_in_use"`
	PagesPerMinute    float64          `json:"pages_per_minute"`
	ScenarioFailRate  float64          `json:"scenario_fail_rate"`
}

// Snapshot returns the current values with derived rates.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	counts := make(map[string]int64, len(c.errorCounts))
	for k, v := range c.errorCounts {
		counts[k] = v
	}
	c.mu.Unlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime),
		PagesDiscovered:   c.pagesDiscovered.Load(),
		PagesCrawled:      c.pagesCrawled.Load(),
		VirtualPages:      c.virtualPages.Load(),
		ElementsFound:     c.elementsFound.Load(),
		ScenariosExecuted: c.scenariosExecuted.Load(),
		ScenariosFailed:   c.scenariosFailed.Load(),
		LoginsPerformed:   c.loginsPerformed.Load(),
		SelfHealed:        c.selfHealed.Load(),
		NavigationRetries: c.navigationRetries.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
		ErrorCounts:       counts,
		QueueDepth:        c.queueDepth.Load(),
		ActiveWorkers:     c.activeWorkers.Load(),
		PoolSize:          c.poolSize.Load(),
		PoolInUse:         c.poolInUse.Load(),
	}

	if mins := s.Uptime.Minutes(); mins > 0 {
		s.PagesPerMinute = float64(s.PagesCrawled) / mins
	}
	if total := s.ScenariosExecuted + s.ScenariosFailed; total > 0 {
		s.ScenarioFailRate = float64(s.ScenariosFailed) / float64(total)
	}
	return s
}

// Reset zeroes all counters and restarts the clock.
func (c *Collector) Reset() {
	c.startTime = time.Now()
	c.pagesDiscovered.Store(0)
	c.pagesCrawled.Store(0)
	c.virtualPages.Store(0)
	c.elementsFound.Store(0)
	c.scenariosExecuted.Store(0)
	c.scenariosFailed.Store(0)
	c.loginsPerformed.Store(0)
	c.selfHealed.Store(0)
	c.navigationRetries.Store(0)
	c.errorsTotal.Store(0)
	c.queueDepth.Store(0)
	c.activeWorkers.Store(0)
	c.poolSize.Store(0)
	c.poolInUse.Store(0)

	c.mu.Lock()
	c.errorCounts = make(map[string]int64)
	c.mu.Unlock()
}

// Package explorer drives autonomous exploration of a single web
// application: level-synchronous breadth-first crawling over pooled
// browser sessions, deterministic path replay, login handling, scenario
// execution with self-healing, and SPA virtual-page materialization.
package explorer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vishnualpha/sensuQ-sub001/internal/auth"
	"github.com/vishnualpha/sensuQ-sub001/internal/browser"
	"github.com/vishnualpha/sensuQ-sub001/internal/collab"
	"github.com/vishnualpha/sensuQ-sub001/internal/credstore"
	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
	"github.com/vishnualpha/sensuQ-sub001/internal/metrics"
	"github.com/vishnualpha/sensuQ-sub001/internal/navigator"
	"github.com/vishnualpha/sensuQ-sub001/internal/progress"
	"github.com/vishnualpha/sensuQ-sub001/internal/queue"
	"github.com/vishnualpha/sensuQ-sub001/internal/ratelimit"
	"github.com/vishnualpha/sensuQ-sub001/internal/scope"
	"github.com/vishnualpha/sensuQ-sub001/internal/spastate"
	"github.com/vishnualpha/sensuQ-sub001/internal/store"
)

// Explorer is the crawl orchestrator.
type Explorer struct {
	config *Config
	log    *logger.Logger

	store    *store.Store
	db       *bolt.DB
	queue    *queue.Queue
	scope    *scope.Checker
	limiter  *ratelimit.Limiter
	detector *spastate.Detector
	login    *auth.Handler
	metrics  *metrics.Collector
	tracker  *progress.Tracker

	identifier collab.ElementIdentifier
	fallback   *collab.StaticIdentifier
	planner    collab.ScenarioPlanner
	adapter    collab.FailureAdapter
	creds      credstore.Store

	launch browser.LaunchFunc

	runID       string
	running     atomic.Bool
	paused      atomic.Bool
	stopped     atomic.Bool
	pagesStored atomic.Int64
	pagesDone   atomic.Int64
	pageSeq     atomic.Int64
	elementSeq  atomic.Int64

	mu          sync.Mutex
	initialized bool
}

// New creates an explorer with the given options.
func New(opts ...Option) (*Explorer, error) {
	e := &Explorer{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if e.log == nil {
		level := logger.WarnLevel
		if e.config.Debug {
			level = logger.DebugLevel
		} else if e.config.Verbose {
			level = logger.InfoLevel
		}
		e.log = logger.New(logger.Config{
			Level:     level,
			Pretty:    true,
			Component: "explorer",
		})
	}

	return e, nil
}

// initialize wires all components. Idempotent across runs on the same
// explorer value.
func (e *Explorer) initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	if err := e.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var err error
	e.scope, err = scope.NewChecker(e.config.Target, e.config.Scope)
	if err != nil {
		return fmt.Errorf("create scope checker: %w", err)
	}

	e.store, e.db, err = store.Open(e.config.StatePath, e.log)
	if err != nil {
		return err
	}

	e.queue, err = queue.New(e.db, queue.Options{MaxDepth: e.config.MaxDepth}, e.log)
	if err != nil {
		return err
	}

	e.limiter = ratelimit.New(e.config.RateLimit.RequestsPerSecond, e.config.RateLimit.Burst)
	if e.config.RateLimit.HostDelay > 0 {
		e.limiter.SetHostDelay(e.config.RateLimit.HostDelay)
	}

	e.detector = spastate.NewDetector(e.log)
	e.login = auth.NewHandler(e.log)
	e.metrics = metrics.NewCollector()
	e.tracker = progress.NewTracker(e.log)
	e.fallback = collab.NewStaticIdentifier(e.log)

	if err := e.initCollaborators(); err != nil {
		return err
	}
	if err := e.initCredentials(); err != nil {
		return err
	}

	e.initialized = true
	return nil
}

// initCollaborators binds the configured LLM provider to the
// identifier, planner, and adapter roles. Without a provider the static
// identifier serves alone and scenario planning is skipped.
func (e *Explorer) initCollaborators() error {
	if e.config.Provider.Name != "" && (e.identifier == nil || e.planner == nil || e.adapter == nil) {
		client, err := collab.NewClient(e.config.Provider.Name, e.config.Provider.Model)
		if err != nil {
			return fmt.Errorf("create collaborator client: %w", err)
		}
		llm := collab.NewLLMCollaborator(client, e.log)
		if e.identifier == nil {
			e.identifier = llm
		}
		if e.planner == nil {
			e.planner = llm
		}
		if e.adapter == nil {
			e.adapter = llm
		}
	}
	if e.identifier == nil {
		e.identifier = e.fallback
	}
	return nil
}

// initCredentials builds the credential store from config unless one
// was injected.
func (e *Explorer) initCredentials() error {
	if e.creds != nil {
		return nil
	}
	cfg := e.config.Credentials
	switch {
	case cfg.Username != "" || cfg.Password != "":
		e.creds = credstore.NewStatic(cfg.Username, cfg.Password)
	case cfg.Blob != "":
		s, err := credstore.Decode(cfg.Blob)
		if err != nil {
			return fmt.Errorf("decode credential blob: %w", err)
		}
		e.creds = s
	case cfg.File != "":
		s, err := credstore.LoadFile(cfg.File)
		if err != nil {
			return err
		}
		e.creds = s
	}
	return nil
}

// Explore runs one exploration to completion and returns its summary.
func (e *Explorer) Explore(ctx context.Context) (*RunResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("explorer is already running")
	}
	defer e.running.Store(false)

	if err := e.initialize(); err != nil {
		return nil, err
	}

	e.stopped.Store(false)
	e.paused.Store(false)
	e.pagesStored.Store(0)
	e.pagesDone.Store(0)

	seed, err := scope.Normalize(e.config.Target)
	if err != nil {
		return nil, fmt.Errorf("normalize target: %w", err)
	}

	e.runID = newRunID()
	started := time.Now()
	runLog := e.log.WithRun(e.runID)

	run := &store.Run{
		ID:        e.runID,
		TargetURL: seed,
		Status:    store.RunCrawling,
		StartedAt: started,
	}
	if err := e.store.SaveRun(run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	var broadcaster *progress.Broadcaster
	if e.config.ProgressAddr != "" {
		broadcaster = progress.NewBroadcaster(e.tracker, e.log)
		go func() {
			if err := broadcaster.Start(e.config.ProgressAddr); err != nil {
				runLog.Warnf("Progress broadcaster stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = broadcaster.Shutdown(shutdownCtx)
		}()
	}

	runLog.Infof("Exploration started: %s (depth<=%d, pages<=%d)", seed, e.config.MaxDepth, e.config.MaxPages)
	e.publish(progress.PhaseCrawling, seed, "seeding", 0)

	admitted, err := e.queue.Enqueue(&queue.Item{
		RunID:         e.runID,
		URL:           seed,
		Depth:         0,
		Priority:      queue.PriorityHigh,
		RequiredSteps: []navigator.Step{navigator.GotoStep(seed)},
	})
	if err != nil {
		return e.failRun(started, seed, fmt.Errorf("enqueue seed: %w", err))
	}
	if !admitted {
		return e.failRun(started, seed, fmt.Errorf("seed %s not admitted to the frontier", seed))
	}

	for depth := 0; depth <= e.config.MaxDepth; depth++ {
		if e.stopped.Load() || ctx.Err() != nil {
			break
		}
		if e.pagesStored.Load() >= int64(e.config.MaxPages) {
			runLog.Infof("Page budget reached at depth %d", depth)
			break
		}

		items, err := e.queue.FetchReady(e.runID, depth)
		if err != nil {
			return e.failRun(started, seed, fmt.Errorf("fetch level %d: %w", depth, err))
		}
		if len(items) == 0 {
			continue
		}

		runLog.WithDepth(depth).Infof("Draining level: %d items", len(items))
		if err := e.drainLevel(ctx, depth, items); err != nil {
			return e.failRun(started, seed, err)
		}

		if depth == 0 {
			if item, err := e.queue.Get(e.runID, seed); err == nil && item.Status == queue.StatusFailed {
				return e.failRun(started, seed, fmt.Errorf("seed unreachable: %s", item.Error))
			}
		}
	}

	e.publish(progress.PhaseGenerating, "", "finalizing run", 0)
	if err := e.store.UpdateRunStatus(e.runID, store.RunGenerating, ""); err != nil {
		runLog.Warnf("Run status update failed: %v", err)
	}

	result := e.buildResult(started, seed)
	result.Status = store.RunReady
	if err := e.store.UpdateRunStatus(e.runID, store.RunReady, ""); err != nil {
		runLog.Warnf("Run status update failed: %v", err)
	}

	if r, err := e.store.GetRun(e.runID); err == nil {
		r.PageCount = result.PagesDiscovered
		_ = e.store.SaveRun(r)
	}

	e.publish(progress.PhaseReady, "", "exploration complete", 0)
	runLog.Infof("Exploration finished: %d pages (%d virtual), %d failed items",
		result.PagesDiscovered, result.VirtualPages, result.PagesFailed)
	return result, nil
}

// drainLevel processes every ready item at one depth with a dedicated
// browser pool, fully closed before the next level starts.
func (e *Explorer) drainLevel(ctx context.Context, depth int, items []*queue.Item) error {
	poolSize := len(items)
	if poolSize > e.config.MaxParallelCrawls {
		poolSize = e.config.MaxParallelCrawls
	}

	pool := browser.NewPool(e.config.Browser, e.log)
	if e.launch != nil {
		pool.SetLaunchFunc(e.launch)
	}
	if err := pool.Initialize(poolSize); err != nil {
		return fmt.Errorf("initialize level %d pool: %w", depth, err)
	}
	defer pool.CloseAll()

	stats := pool.Stats()
	e.metrics.SetPoolStats(stats.Size, stats.Busy)
	e.metrics.SetActiveWorkers(poolSize)
	defer e.metrics.SetActiveWorkers(0)

	work := make(chan *queue.Item, len(items))
	for _, item := range items {
		work <- item
	}
	close(work)

	var wg sync.WaitGroup
	for w := 0; w < poolSize; w++ {
		wg.Add(1)
		go e.worker(ctx, w, pool, work, &wg)
	}
	wg.Wait()
	return nil
}

// worker drains items until the level is exhausted or a stop is seen.
func (e *Explorer) worker(ctx context.Context, id int, pool *browser.Pool, work <-chan *queue.Item, wg *sync.WaitGroup) {
	defer wg.Done()
	log := e.log.WithRun(e.runID).WithWorker(id)

	for item := range work {
		if e.stopped.Load() || ctx.Err() != nil {
			return
		}
		if !e.waitIfPaused(ctx) {
			return
		}
		if e.pagesStored.Load() >= int64(e.config.MaxPages) {
			return
		}

		handle, err := pool.Acquire(ctx)
		if err != nil {
			log.Warnf("Acquire failed, abandoning level: %v", err)
			return
		}

		if err := e.queue.MarkProcessing(item.RunID, item.URL); err != nil {
			log.Warnf("Mark processing %s: %v", item.URL, err)
		}

		pageID, err := e.crawlItem(ctx, handle.Page(), item, log)
		if err != nil {
			log.WithURL(item.URL).Warnf("Crawl failed: %v", err)
			e.metrics.Error(errKind(err))
			if qerr := e.queue.MarkFailed(item.RunID, item.URL, err.Error()); qerr != nil {
				log.Warnf("Mark failed %s: %v", item.URL, qerr)
			}
		} else {
			if qerr := e.queue.MarkCompleted(item.RunID, item.URL, pageID); qerr != nil {
				log.Warnf("Mark completed %s: %v", item.URL, qerr)
			}
			e.pagesDone.Add(1)
		}

		if err := pool.Reset(ctx, handle); err != nil {
			log.Warnf("Session reset failed: %v", err)
		}
		pool.Release(handle)

		e.publish(progress.PhaseCrawling, item.URL, "", item.Depth)
	}
}

// waitIfPaused blocks while the run is paused. Returns false when the
// wait was cut short by stop or cancellation.
func (e *Explorer) waitIfPaused(ctx context.Context) bool {
	for e.paused.Load() {
		if e.stopped.Load() || ctx.Err() != nil {
			return false
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// Pause suspends workers before their next item or scenario step.
func (e *Explorer) Pause() {
	e.paused.Store(true)
}

// Resume lifts a pause.
func (e *Explorer) Resume() {
	e.paused.Store(false)
}

// Stop requests a cooperative stop. In-flight items finish first.
func (e *Explorer) Stop() {
	e.stopped.Store(true)
	e.paused.Store(false)
}

// IsRunning reports whether an exploration is in progress.
func (e *Explorer) IsRunning() bool {
	return e.running.Load()
}

// Progress returns the run's progress tracker for subscription.
func (e *Explorer) Progress() *progress.Tracker {
	return e.tracker
}

// Metrics returns the run's metrics collector.
func (e *Explorer) Metrics() *metrics.Collector {
	return e.metrics
}

// Status reports the live state of a run.
func (e *Explorer) Status(runID string) (*RunStatusInfo, error) {
	if err := e.initialize(); err != nil {
		return nil, err
	}

	run, err := e.store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	counts, err := e.queue.CountByStatus(runID)
	if err != nil {
		return nil, err
	}
	pages, err := e.store.CountPages(runID)
	if err != nil {
		return nil, err
	}

	return &RunStatusInfo{
		Run:       run,
		Queued:    counts.Queued + counts.Processing,
		Completed: counts.Completed,
		Failed:    counts.Failed,
		Pages:     pages,
	}, nil
}

// Runs lists all recorded runs, newest first.
func (e *Explorer) Runs() ([]*store.Run, error) {
	if err := e.initialize(); err != nil {
		return nil, err
	}
	return e.store.ListRuns()
}

// Pages lists the pages of a run in discovery order.
func (e *Explorer) Pages(runID string) ([]*store.DiscoveredPage, error) {
	if err := e.initialize(); err != nil {
		return nil, err
	}
	return e.store.ListPages(runID)
}

// Close releases the queue and the shared database.
func (e *Explorer) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil
	}
	e.initialized = false

	if e.queue != nil {
		_ = e.queue.Close()
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// failRun records a terminal failure and returns the partial result.
// Everything captured before the failure stays persisted.
func (e *Explorer) failRun(started time.Time, seed string, cause error) (*RunResult, error) {
	e.log.WithRun(e.runID).Errorf("Run failed: %v", cause)
	if err := e.store.UpdateRunStatus(e.runID, store.RunFailed, cause.Error()); err != nil {
		e.log.Warnf("Run status update failed: %v", err)
	}
	e.publish(progress.PhaseFailed, "", cause.Error(), 0)

	result := e.buildResult(started, seed)
	result.Status = store.RunFailed
	result.Error = cause.Error()
	return result, cause
}

// buildResult assembles the run summary from persisted state.
func (e *Explorer) buildResult(started time.Time, seed string) *RunResult {
	result := &RunResult{
		RunID:    e.runID,
		Target:   seed,
		Duration: time.Since(started),
	}

	if counts, err := e.queue.CountByStatus(e.runID); err == nil {
		result.PagesCompleted = counts.Completed
		result.PagesFailed = counts.Failed
	}
	if pages, err := e.store.ListPages(e.runID); err == nil {
		result.PagesDiscovered = len(pages)
		for _, p := range pages {
			if p.IsVirtual {
				result.VirtualPages++
			}
		}
	}

	snap := e.metrics.Snapshot()
	result.Elements = int(snap.ElementsFound)
	return result
}

// publish emits a progress event derived from current counters.
func (e *Explorer) publish(phase progress.Phase, currentURL, message string, depth int) {
	if e.tracker == nil {
		return
	}
	e.tracker.Publish(progress.Event{
		RunID:           e.runID,
		Phase:           phase,
		PagesDiscovered: int(e.pagesStored.Load()),
		PagesCompleted:  int(e.pagesDone.Load()),
		Depth:           depth,
		CurrentURL:      currentURL,
		Message:         message,
	})
}

// newRunID builds a unique, sortable run identifier.
func newRunID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "run-" + time.Now().UTC().Format("20060102-150405") + "-" + hex.EncodeToString(buf)
}

// newPageID returns the next page identifier for the run.
func (e *Explorer) newPageID() string {
	return fmt.Sprintf("page-%04d", e.pageSeq.Add(1))
}

// newElementID returns the next element identifier for the run.
func (e *Explorer) newElementID() string {
	return fmt.Sprintf("element-%05d", e.elementSeq.Add(1))
}

// hostOf extracts the hostname for rate limiting.
func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Hostname()
	}
	return ""
}

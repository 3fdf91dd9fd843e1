package queue

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vishnualpha/sensuQ-sub001/internal/navigator"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "explore.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestQueue(t *testing.T, maxDepth int) *Queue {
	t.Helper()
	q, err := New(openTestDB(t), Options{MaxDepth: maxDepth}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q
}

func TestEnqueueAndFetchReady(t *testing.T) {
	q := newTestQueue(t, 3)

	items := []*Item{
		{RunID: "run-1", URL: "https://app.example.com/c", Depth: 1, Priority: PriorityLow},
		{RunID: "run-1", URL: "https://app.example.com/a", Depth: 1, Priority: PriorityHigh},
		{RunID: "run-1", URL: "https://app.example.com/b", Depth: 1, Priority: PriorityMedium},
		{RunID: "run-1", URL: "https://app.example.com/deep", Depth: 2, Priority: PriorityHigh},
	}
	for _, item := range items {
		admitted, err := q.Enqueue(item)
		if err != nil {
			t.Fatalf("Enqueue %s: %v", item.URL, err)
		}
		if !admitted {
			t.Fatalf("Enqueue %s rejected", item.URL)
		}
	}

	ready, err := q.FetchReady("run-1", 1)
	if err != nil {
		t.Fatalf("FetchReady: %v", err)
	}
	if len(ready) != 3 {
		t.Fatalf("FetchReady returned %d items, want 3", len(ready))
	}

	wantOrder := []string{
		"https://app.example.com/a",
		"https://app.example.com/b",
		"https://app.example.com/c",
	}
	for i, url := range wantOrder {
		if ready[i].URL != url {
			t.Errorf("position %d = %s, want %s", i, ready[i].URL, url)
		}
	}
}

func TestEnqueueSamePriorityKeepsFIFO(t *testing.T) {
	q := newTestQueue(t, 3)

	urls := []string{
		"https://app.example.com/z",
		"https://app.example.com/m",
		"https://app.example.com/a",
	}
	for _, u := range urls {
		if _, err := q.Enqueue(&Item{RunID: "run-1", URL: u, Depth: 1, Priority: PriorityMedium}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	ready, err := q.FetchReady("run-1", 1)
	if err != nil {
		t.Fatalf("FetchReady: %v", err)
	}
	for i, u := range urls {
		if ready[i].URL != u {
			t.Errorf("position %d = %s, want %s (admission order)", i, ready[i].URL, u)
		}
	}
}

func TestEnqueueDuplicateIsNoOp(t *testing.T) {
	q := newTestQueue(t, 3)

	item := &Item{RunID: "run-1", URL: "https://app.example.com/page", Depth: 1}
	if admitted, _ := q.Enqueue(item); !admitted {
		t.Fatal("first enqueue rejected")
	}
	if admitted, err := q.Enqueue(&Item{RunID: "run-1", URL: item.URL, Depth: 2}); err != nil || admitted {
		t.Errorf("duplicate enqueue: admitted=%t err=%v, want false nil", admitted, err)
	}

	// Same URL under a different run is a fresh record.
	if admitted, _ := q.Enqueue(&Item{RunID: "run-2", URL: item.URL, Depth: 1}); !admitted {
		t.Error("same URL in a different run was rejected")
	}
}

func TestEnqueueBeyondMaxDepthIsNoOp(t *testing.T) {
	q := newTestQueue(t, 2)

	if admitted, err := q.Enqueue(&Item{RunID: "run-1", URL: "https://app.example.com/x", Depth: 3}); err != nil || admitted {
		t.Errorf("over-depth enqueue: admitted=%t err=%v, want false nil", admitted, err)
	}
	if admitted, _ := q.Enqueue(&Item{RunID: "run-1", URL: "https://app.example.com/y", Depth: 2}); !admitted {
		t.Error("at-limit enqueue rejected")
	}
}

func TestEnqueueVisitedURLIsNoOp(t *testing.T) {
	q := newTestQueue(t, 3)

	if err := q.MarkVisited("run-1", "https://app.example.com/done"); err != nil {
		t.Fatalf("MarkVisited: %v", err)
	}
	if admitted, _ := q.Enqueue(&Item{RunID: "run-1", URL: "https://app.example.com/done", Depth: 1}); admitted {
		t.Error("visited URL was re-admitted")
	}
}

func TestStatusLifecycle(t *testing.T) {
	q := newTestQueue(t, 3)

	url := "https://app.example.com/page"
	if _, err := q.Enqueue(&Item{RunID: "run-1", URL: url, Depth: 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := q.MarkProcessing("run-1", url); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	item, err := q.Get("run-1", url)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Status != StatusProcessing {
		t.Errorf("status = %s, want processing", item.Status)
	}

	if err := q.MarkCompleted("run-1", url, "page-42"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	item, _ = q.Get("run-1", url)
	if item.Status != StatusCompleted || item.DiscoveredPageID != "page-42" {
		t.Errorf("item = %+v, want completed with page-42", item)
	}
	if !q.HasVisited("run-1", url) {
		t.Error("completed URL not marked visited")
	}

	// Completed items are no longer ready.
	ready, _ := q.FetchReady("run-1", 1)
	if len(ready) != 0 {
		t.Errorf("FetchReady = %d items after completion, want 0", len(ready))
	}
}

func TestMarkFailedRecordsError(t *testing.T) {
	q := newTestQueue(t, 3)

	url := "https://app.example.com/broken"
	if _, err := q.Enqueue(&Item{RunID: "run-1", URL: url, Depth: 0}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.MarkFailed("run-1", url, "navigation timeout"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	item, _ := q.Get("run-1", url)
	if item.Status != StatusFailed || item.Error != "navigation timeout" {
		t.Errorf("item = %+v, want failed with message", item)
	}
	if !q.HasVisited("run-1", url) {
		t.Error("failed URL not marked visited")
	}
}

func TestRequiredStepsRoundTrip(t *testing.T) {
	q := newTestQueue(t, 3)

	steps := []navigator.Step{
		navigator.GotoStep("https://app.example.com/login"),
		navigator.FillStep("#username", navigator.PlaceholderUsername),
		navigator.FillStep("#password", navigator.PlaceholderPassword),
		navigator.ClickStep("button[type=submit]"),
	}
	if _, err := q.Enqueue(&Item{
		RunID:         "run-1",
		URL:           "https://app.example.com/account",
		Depth:         1,
		RequiredSteps: steps,
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	item, err := q.Get("run-1", "https://app.example.com/account")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(item.RequiredSteps) != 4 {
		t.Fatalf("RequiredSteps = %d, want 4", len(item.RequiredSteps))
	}
	if item.RequiredSteps[2].Value != navigator.PlaceholderPassword {
		t.Errorf("persisted step value = %q, want placeholder", item.RequiredSteps[2].Value)
	}
}

func TestCountByStatus(t *testing.T) {
	q := newTestQueue(t, 3)

	for _, u := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue(&Item{RunID: "run-1", URL: "https://x.example.com/" + u, Depth: 0}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	q.MarkCompleted("run-1", "https://x.example.com/a", "page-1")
	q.MarkFailed("run-1", "https://x.example.com/b", "boom")

	counts, err := q.CountByStatus("run-1")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts.Queued != 1 || counts.Completed != 1 || counts.Failed != 1 {
		t.Errorf("counts = %+v, want 1/0/1/1", counts)
	}
	if counts.Total() != 3 {
		t.Errorf("Total = %d, want 3", counts.Total())
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explore.db")

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	q, err := New(db, Options{MaxDepth: 3}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := q.Enqueue(&Item{RunID: "run-1", URL: "https://app.example.com/a", Depth: 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.MarkVisited("run-1", "https://app.example.com/seen")
	q.Close()
	db.Close()

	db, err = bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer db.Close()
	q2, err := New(db, Options{MaxDepth: 3}, nil)
	if err != nil {
		t.Fatalf("New after reopen: %v", err)
	}

	item, err := q2.Get("run-1", "https://app.example.com/a")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if item.Status != StatusQueued {
		t.Errorf("status = %s, want queued", item.Status)
	}
	if !q2.HasVisited("run-1", "https://app.example.com/seen") {
		t.Error("visited set not rebuilt after reopen")
	}
}

func TestGetMissing(t *testing.T) {
	q := newTestQueue(t, 3)
	if _, err := q.Get("run-1", "https://nowhere.example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestMaxDepthWithItems(t *testing.T) {
	q := newTestQueue(t, 5)

	if max, _ := q.MaxDepthWithItems("run-1"); max != -1 {
		t.Errorf("empty run max depth = %d, want -1", max)
	}
	q.Enqueue(&Item{RunID: "run-1", URL: "https://a.example.com", Depth: 0})
	q.Enqueue(&Item{RunID: "run-1", URL: "https://b.example.com", Depth: 2})
	if max, _ := q.MaxDepthWithItems("run-1"); max != 2 {
		t.Errorf("max depth = %d, want 2", max)
	}
}

func TestClosedQueueRejectsOperations(t *testing.T) {
	q := newTestQueue(t, 3)
	q.Close()

	if _, err := q.Enqueue(&Item{RunID: "r", URL: "https://x.example.com", Depth: 0}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue on closed = %v, want ErrQueueClosed", err)
	}
	if _, err := q.FetchReady("r", 0); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("FetchReady on closed = %v, want ErrQueueClosed", err)
	}
}

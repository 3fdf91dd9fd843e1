// Package queue implements the durable crawl frontier: one bbolt-backed
// record per (run, URL), fetched level by level in priority order.
package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	bolt "go.etcd.io/bbolt"

	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
)

var (
	bucketQueue   = []byte("queue")
	bucketVisited = []byte("visited")
)

const (
	bloomCapacity      = 100000
	bloomFalsePositive = 0.01
)

// Options configures queue admission.
type Options struct {
	// MaxDepth rejects items deeper than this level. Zero means the
	// seed only.
	MaxDepth int
}

// Queue is the persistent crawl frontier. The bloom filter fronts the
// visited bucket so the common not-yet-seen case skips a disk read; a
// bloom hit still confirms against bbolt before rejecting.
type Queue struct {
	mu      sync.Mutex
	db      *bolt.DB
	opts    Options
	visited *bloom.BloomFilter
	log     *logger.Logger
	closed  bool
}

// New creates the queue buckets in db and rebuilds the visited filter
// from any previous run state.
func New(db *bolt.DB, opts Options, log *logger.Logger) (*Queue, error) {
	if log == nil {
		log = logger.NewDefault()
	}

	q := &Queue{
		db:      db,
		opts:    opts,
		visited: bloom.NewWithEstimates(bloomCapacity, bloomFalsePositive),
		log:     log.WithComponent("queue"),
	}

	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketQueue); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketVisited); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create queue buckets: %w", err)
	}

	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVisited).ForEach(func(k, v []byte) error {
			q.visited.Add(k)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild visited filter: %w", err)
	}

	return q, nil
}

// itemKey builds the per-run per-URL record key.
func itemKey(runID, url string) []byte {
	return []byte(runID + "\x00" + url)
}

// Enqueue admits item into the frontier. It reports false without error
// when the item is a duplicate of an existing (run, URL) record, the URL
// was already visited in this run, or the depth exceeds the configured
// maximum. On admission the item gets a monotonic sequence number that
// fixes FIFO order within a priority class.
func (q *Queue) Enqueue(item *Item) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrQueueClosed
	}
	if item.Depth > q.opts.MaxDepth {
		return false, nil
	}
	if q.hasVisitedLocked(item.RunID, item.URL) {
		return false, nil
	}

	admitted := false
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		key := itemKey(item.RunID, item.URL)
		if b.Get(key) != nil {
			return nil
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		item.Seq = seq
		item.Status = StatusQueued
		if item.Priority == "" {
			item.Priority = PriorityMedium
		}
		if item.EnqueuedAt.IsZero() {
			item.EnqueuedAt = time.Now()
		}

		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		admitted = true
		return b.Put(key, data)
	})
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", item.URL, err)
	}
	return admitted, nil
}

// FetchReady returns every queued item of the run at exactly depth,
// ordered by priority then admission sequence. The items stay queued;
// callers mark them processing as workers pick them up.
func (q *Queue) FetchReady(runID string, depth int) ([]*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	var items []*Item
	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				q.log.Warnf("Skipping undecodable queue record %q: %v", k, err)
				return nil
			}
			if item.RunID != runID || item.Depth != depth || item.Status != StatusQueued {
				return nil
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority.rank() != items[j].Priority.rank() {
			return items[i].Priority.rank() < items[j].Priority.rank()
		}
		return items[i].Seq < items[j].Seq
	})
	return items, nil
}

// Get returns the record for (runID, url).
func (q *Queue) Get(runID, url string) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	var item *Item
	err := q.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketQueue).Get(itemKey(runID, url))
		if data == nil {
			return ErrNotFound
		}
		item = &Item{}
		return json.Unmarshal(data, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// MarkProcessing transitions an item to processing.
func (q *Queue) MarkProcessing(runID, url string) error {
	return q.update(runID, url, func(item *Item) {
		item.Status = StatusProcessing
	})
}

// MarkCompleted transitions an item to completed, recording the page it
// resolved to, and marks the URL visited for the run.
func (q *Queue) MarkCompleted(runID, url, discoveredPageID string) error {
	if err := q.update(runID, url, func(item *Item) {
		item.Status = StatusCompleted
		item.DiscoveredPageID = discoveredPageID
		item.Error = ""
	}); err != nil {
		return err
	}
	return q.MarkVisited(runID, url)
}

// MarkFailed transitions an item to failed with the failure message, and
// marks the URL visited so the run never retries it.
func (q *Queue) MarkFailed(runID, url, errMsg string) error {
	if err := q.update(runID, url, func(item *Item) {
		item.Status = StatusFailed
		item.Error = errMsg
	}); err != nil {
		return err
	}
	return q.MarkVisited(runID, url)
}

// update applies fn to the stored record under lock.
func (q *Queue) update(runID, url string, fn func(*Item)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	return q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		key := itemKey(runID, url)
		data := b.Get(key)
		if data == nil {
			return ErrNotFound
		}

		var item Item
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		fn(&item)

		out, err := json.Marshal(&item)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
}

// MarkVisited records the URL as seen for the run.
func (q *Queue) MarkVisited(runID, url string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	key := itemKey(runID, url)
	err := q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVisited).Put(key, []byte{1})
	})
	if err != nil {
		return err
	}
	q.visited.Add(key)
	return nil
}

// HasVisited reports whether the URL was already processed in the run.
func (q *Queue) HasVisited(runID, url string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasVisitedLocked(runID, url)
}

func (q *Queue) hasVisitedLocked(runID, url string) bool {
	key := itemKey(runID, url)
	if !q.visited.Test(key) {
		return false
	}

	var visited bool
	_ = q.db.View(func(tx *bolt.Tx) error {
		visited = tx.Bucket(bucketVisited).Get(key) != nil
		return nil
	})
	return visited
}

// Counts summarizes item statuses for a run.
type Counts struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Total returns the number of records across all statuses.
func (c Counts) Total() int {
	return c.Queued + c.Processing + c.Completed + c.Failed
}

// CountByStatus tallies the run's records per status.
func (q *Queue) CountByStatus(runID string) (Counts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var counts Counts
	if q.closed {
		return counts, ErrQueueClosed
	}

	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return nil
			}
			if item.RunID != runID {
				return nil
			}
			switch item.Status {
			case StatusQueued:
				counts.Queued++
			case StatusProcessing:
				counts.Processing++
			case StatusCompleted:
				counts.Completed++
			case StatusFailed:
				counts.Failed++
			}
			return nil
		})
	})
	return counts, err
}

// MaxDepthWithItems returns the deepest level holding any record for the
// run, or -1 when the run has none. The orchestrator uses it to decide
// when the frontier is exhausted.
func (q *Queue) MaxDepthWithItems(runID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return -1, ErrQueueClosed
	}

	max := -1
	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return nil
			}
			if item.RunID == runID && item.Depth > max {
				max = item.Depth
			}
			return nil
		})
	})
	return max, err
}

// Close marks the queue closed. The underlying database is owned by the
// caller and stays open.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

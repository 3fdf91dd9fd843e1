// Package store persists the exploration graph: runs, discovered pages,
// their interactive elements, and the replayable paths that reach them.
// It shares one bbolt database with the crawl queue, each package owning
// its own buckets.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vishnualpha/sensuQ-sub001/internal/logger"
)

var (
	bucketRuns     = []byte("runs")
	bucketPages    = []byte("pages")
	bucketElements = []byte("elements")
	bucketPaths    = []byte("paths")
	bucketStates   = []byte("states")
)

// Store is the bbolt-backed exploration graph.
type Store struct {
	db  *bolt.DB
	log *logger.Logger
}

// Open opens (or creates) a database file and its buckets.
func Open(path string, log *logger.Logger) (*Store, *bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	s, err := New(db, log)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

// New creates the store's buckets in an already-open database.
func New(db *bolt.DB, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewDefault()
	}

	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRuns, bucketPages, bucketElements, bucketPaths, bucketStates} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create store buckets: %w", err)
	}

	return &Store{db: db, log: log.WithComponent("store")}, nil
}

// scopedKey namespaces a record under its run.
func scopedKey(runID, id string) []byte {
	return []byte(runID + "\x00" + id)
}

func put(tx *bolt.Tx, bucket []byte, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put(key, data)
}

// SaveRun inserts or updates a run record.
func (s *Store) SaveRun(run *Run) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketRuns, []byte(run.ID), run)
	})
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	var run *Run
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(runID))
		if data == nil {
			return ErrNotFound
		}
		run = &Run{}
		return json.Unmarshal(data, run)
	})
	return run, err
}

// UpdateRunStatus transitions a run and stamps completion time for
// terminal states.
func (s *Store) UpdateRunStatus(runID string, status RunStatus, errMsg string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(runID))
		if data == nil {
			return ErrNotFound
		}
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			return err
		}
		run.Status = status
		run.Error = errMsg
		if status == RunReady || status == RunFailed {
			run.FinishedAt = time.Now()
		}
		return put(tx, bucketRuns, []byte(runID), &run)
	})
}

// ListRuns returns all runs, most recent first.
func (s *Store) ListRuns() ([]*Run, error) {
	var runs []*Run
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return nil
			}
			runs = append(runs, &run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// SavePage persists a discovered page. Virtual pages also register
// their state identifier so later captures of the same state dedupe.
func (s *Store) SavePage(page *DiscoveredPage) error {
	if page.DiscoveredAt.IsZero() {
		page.DiscoveredAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := put(tx, bucketPages, scopedKey(page.RunID, page.ID), page); err != nil {
			return err
		}
		if page.IsVirtual && page.StateIdentifier != "" {
			if err := tx.Bucket(bucketStates).Put(
				scopedKey(page.RunID, page.StateIdentifier), []byte(page.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPage fetches a page by run and ID.
func (s *Store) GetPage(runID, pageID string) (*DiscoveredPage, error) {
	var page *DiscoveredPage
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPages).Get(scopedKey(runID, pageID))
		if data == nil {
			return ErrNotFound
		}
		page = &DiscoveredPage{}
		return json.Unmarshal(data, page)
	})
	return page, err
}

// FindPageByState resolves a state identifier to an existing virtual
// page ID, or "" when the state is new to the run.
func (s *Store) FindPageByState(runID, stateIdentifier string) (string, error) {
	var pageID string
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketStates).Get(scopedKey(runID, stateIdentifier)); data != nil {
			pageID = string(data)
		}
		return nil
	})
	return pageID, err
}

// ListPages returns all pages of a run in discovery order.
func (s *Store) ListPages(runID string) ([]*DiscoveredPage, error) {
	prefix := []byte(runID + "\x00")
	var pages []*DiscoveredPage
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPages).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var page DiscoveredPage
			if err := json.Unmarshal(v, &page); err != nil {
				s.log.Warnf("Skipping undecodable page record %q: %v", k, err)
				continue
			}
			pages = append(pages, &page)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].DiscoveredAt.Before(pages[j].DiscoveredAt)
	})
	return pages, nil
}

// CountPages returns the number of pages recorded for a run.
func (s *Store) CountPages(runID string) (int, error) {
	prefix := []byte(runID + "\x00")
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPages).Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// SaveElements replaces the element list of a page.
func (s *Store) SaveElements(runID, pageID string, elements []*InteractiveElement) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketElements, scopedKey(runID, pageID), elements)
	})
}

// ListElements returns the elements recorded for a page.
func (s *Store) ListElements(runID, pageID string) ([]*InteractiveElement, error) {
	var elements []*InteractiveElement
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketElements).Get(scopedKey(runID, pageID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &elements)
	})
	return elements, err
}

// SavePath persists the replayable path to a page.
func (s *Store) SavePath(path *CrawlPath) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketPaths, scopedKey(path.RunID, path.PageID), path)
	})
}

// GetPath fetches the path that reaches a page.
func (s *Store) GetPath(runID, pageID string) (*CrawlPath, error) {
	var path *CrawlPath
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPaths).Get(scopedKey(runID, pageID))
		if data == nil {
			return ErrNotFound
		}
		path = &CrawlPath{}
		return json.Unmarshal(data, path)
	})
	return path, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

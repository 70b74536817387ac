package jobs

import (
	"sort"
	"sync"
	"time"
)

// Store is the single source of truth for job state. Implementations must be
// safe for one writer per job and many concurrent readers.
type Store interface {
	// Put replaces the record for jobID unconditionally (last write wins).
	Put(jobID string, rec Record)
	// Get returns a copy of the record for jobID.
	Get(jobID string) (Record, bool)
	// Advance applies a progress update if the record is still processing and
	// belongs to runID. Progress never moves backwards.
	Advance(jobID, runID string, progress int, details string) bool
	// Finish writes a terminal record if the current one is still processing
	// and belongs to runID. Only the first terminal write for a run succeeds.
	Finish(jobID, runID string, rec Record) bool
	// List returns copies of all records, newest first.
	List() []Record
}

// MemoryStore is a Store backed by a mutex-guarded map. It does not survive a
// process restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Put(jobID string, rec Record) {
	rec = rec.clone()
	rec.JobID = jobID
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.records[jobID] = rec
	s.mu.Unlock()
}

func (s *MemoryStore) Get(jobID string) (Record, bool) {
	s.mu.RLock()
	rec, ok := s.records[jobID]
	s.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

func (s *MemoryStore) Advance(jobID, runID string, progress int, details string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[jobID]
	if !ok || cur.RunID != runID || cur.Status != StatusProcessing {
		return false
	}
	progress = clampPercent(progress)
	if progress < cur.Progress {
		progress = cur.Progress
	}
	// terminal records own 100
	if progress > 99 {
		progress = 99
	}
	cur.Progress = progress
	cur.Details = details
	cur.UpdatedAt = time.Now().UTC()
	s.records[jobID] = cur
	return true
}

func (s *MemoryStore) Finish(jobID, runID string, rec Record) bool {
	if !rec.Status.IsTerminal() {
		return false
	}
	rec = rec.clone()
	rec.JobID = jobID
	rec.RunID = runID
	rec.Progress = 100
	rec.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[jobID]
	if !ok || cur.RunID != runID || cur.Status != StatusProcessing {
		return false
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = cur.CreatedAt
	}
	s.records[jobID] = rec
	return true
}

func (s *MemoryStore) List() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

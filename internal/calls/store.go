package calls

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store is the call record table keyed by provider call id.
//
// Put is last-writer-wins. Remove is idempotent. Implementations must be safe
// for concurrent use.
type Store interface {
	Put(rec Record)
	Get(callID string) (Record, bool)
	Remove(callID string)

	// PutIfAbsent stores rec only when no record exists for rec.CallID.
	// It reports whether rec was stored.
	PutIfAbsent(rec Record) bool

	// MarkAnswered flags the record for callID as answered. It reports true
	// only the first time for a stored record; the flag goes with the record.
	MarkAnswered(callID string) bool

	// Take removes and returns the record for callID in one step. Of
	// concurrent callers at most one gets ok == true.
	Take(callID string) (Record, bool)

	Len() int
}

// MemoryStore is the process-lifetime Store. Records do not survive restarts.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	answered map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}, answered: map[string]struct{}{}}
}

func (s *MemoryStore) Put(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.CallID] = rec
	delete(s.answered, rec.CallID)
}

func (s *MemoryStore) Get(callID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[callID]
	return rec, ok
}

func (s *MemoryStore) Remove(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, callID)
	delete(s.answered, callID)
}

func (s *MemoryStore) PutIfAbsent(rec Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.CallID]; ok {
		return false
	}
	s.records[rec.CallID] = rec
	return true
}

func (s *MemoryStore) Take(callID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[callID]
	delete(s.records, callID)
	delete(s.answered, callID)
	return rec, ok
}

func (s *MemoryStore) MarkAnswered(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[callID]; !ok {
		return false
	}
	if _, seen := s.answered[callID]; seen {
		return false
	}
	s.answered[callID] = struct{}{}
	return true
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// EvictOlderThan removes records created before cutoff and returns how many
// were removed. It releases records whose end-of-call event never arrived.
func (s *MemoryStore) EvictOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			delete(s.answered, id)
			n++
		}
	}
	return n
}

// RunEviction periodically evicts records older than ttl until ctx is done.
// A non-positive ttl disables eviction and returns immediately.
func RunEviction(ctx context.Context, s *MemoryStore, ttl, interval time.Duration, now func() time.Time, log *slog.Logger) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.EvictOlderThan(now().Add(-ttl)); n > 0 {
				log.Info("evicted stale call records", "component", "call_store", "count", n, "ttl", ttl.String())
			}
		}
	}
}

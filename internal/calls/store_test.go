package calls

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_PutGetRemove(t *testing.T) {
	s := NewMemoryStore()
	s.Put(Record{CallID: "a", Prompt: "p1"})
	s.Put(Record{CallID: "a", Prompt: "p2"})

	rec, ok := s.Get("a")
	if !ok || rec.Prompt != "p2" {
		t.Fatalf("expected last writer to win, got %+v ok=%v", rec, ok)
	}

	s.Remove("a")
	s.Remove("a")
	if _, ok := s.Get("a"); ok {
		t.Fatalf("expected record removed")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestMemoryStore_PutIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	if !s.PutIfAbsent(Record{CallID: "a", Prompt: "first"}) {
		t.Fatalf("expected first insert to win")
	}
	if s.PutIfAbsent(Record{CallID: "a", Prompt: "second"}) {
		t.Fatalf("expected second insert to be refused")
	}
	if rec, _ := s.Get("a"); rec.Prompt != "first" {
		t.Fatalf("expected existing record kept, got %q", rec.Prompt)
	}
}

func TestMemoryStore_ConcurrentPutIfAbsentSingleWinner(t *testing.T) {
	s := NewMemoryStore()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.PutIfAbsent(Record{CallID: "same"}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestMemoryStore_EvictOlderThan(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.Put(Record{CallID: "old", CreatedAt: now.Add(-2 * time.Hour)})
	s.Put(Record{CallID: "new", CreatedAt: now.Add(-time.Minute)})

	if n := s.EvictOlderThan(now.Add(-time.Hour)); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := s.Get("old"); ok {
		t.Fatalf("expected old record evicted")
	}
	if _, ok := s.Get("new"); !ok {
		t.Fatalf("expected new record kept")
	}
}

func TestRunEviction_DisabledReturnsImmediately(t *testing.T) {
	done := make(chan struct{})
	go func() {
		RunEviction(context.Background(), NewMemoryStore(), 0, time.Millisecond, nil, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected RunEviction to return with ttl 0")
	}
}

func TestRunEviction_SweepsUntilCancelled(t *testing.T) {
	s := NewMemoryStore()
	s.Put(Record{CallID: "stale", CreatedAt: time.Unix(0, 0)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunEviction(ctx, s, time.Minute, 5*time.Millisecond, time.Now, nil)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected stale record to be swept")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected RunEviction to stop on cancel")
	}
}

func TestMemoryStore_MarkAnsweredOnce(t *testing.T) {
	s := NewMemoryStore()
	if s.MarkAnswered("a") {
		t.Fatalf("expected no mark without a record")
	}
	s.Put(Record{CallID: "a"})
	if !s.MarkAnswered("a") {
		t.Fatalf("expected first mark to succeed")
	}
	if s.MarkAnswered("a") {
		t.Fatalf("expected repeated mark to be refused")
	}

	s.Remove("a")
	s.Put(Record{CallID: "a"})
	if !s.MarkAnswered("a") {
		t.Fatalf("expected mark to reset with a new record")
	}
}

func TestMemoryStore_TakeSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	s.Put(Record{CallID: "same", Prompt: "p"})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rec, ok := s.Take("same"); ok && rec.Prompt == "p" {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one take, got %d", wins)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

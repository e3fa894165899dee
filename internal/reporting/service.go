package reporting

import (
	"context"
	"sync"
	"time"

	"call-relay/internal/calls"
)

// Service counts call lifecycle transitions in memory. It implements
// calls.Observer; the summary is served on /debug.
type Service struct {
	mu    sync.Mutex
	since time.Time

	total     int
	failed    int
	answered  int
	completed int

	timed       int
	durationSec int
}

func NewService(now time.Time) *Service { return &Service{since: now.UTC()} }

func (s *Service) Observe(ctx context.Context, t calls.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t.Kind {
	case calls.TransitionInitiated:
		s.total++
	case calls.TransitionFailed:
		s.failed++
	case calls.TransitionAnswered:
		s.answered++
	case calls.TransitionEnded:
		if t.Record == nil {
			return
		}
		s.completed++
		if !t.Record.CreatedAt.IsZero() && t.At.After(t.Record.CreatedAt) {
			s.timed++
			s.durationSec += int(t.At.Sub(t.Record.CreatedAt) / time.Second)
		}
	}
}

func (s *Service) CallsSummary() CallsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := CallsSummary{
		Since:                s.since,
		TotalCalls:           s.total,
		FailedCalls:          s.failed,
		AnsweredCalls:        s.answered,
		CompletedCalls:       s.completed,
		TotalDurationSeconds: s.durationSec,
	}
	if s.total > s.completed {
		out.InProgressCalls = s.total - s.completed
	}
	if s.timed > 0 {
		out.AverageDurationSeconds = s.durationSec / s.timed
	}
	return out
}

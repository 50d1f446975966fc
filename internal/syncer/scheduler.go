package syncer

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/zendegi/directgtd/internal/tombstone"
)

// Scheduler owns the periodic tombstone-purge loop. Purge itself runs
// synchronously to completion inside each tick; the scheduler is the
// only place that triggers it in a long-running process.
type Scheduler struct {
	tombstones *tombstone.Service
	interval   time.Duration

	mu      gosync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a scheduler that purges every interval.
func NewScheduler(svc *tombstone.Service, interval time.Duration) *Scheduler {
	return &Scheduler{
		tombstones: svc,
		interval:   interval,
	}
}

// Start launches the purge loop. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
}

// Stop terminates the loop and waits for any in-flight purge pass to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := s.tombstones.Purge(ctx)
			if err != nil {
				slog.Error("tombstone purge failed", "error", err)
				continue
			}
			if stats.Total() > 0 {
				slog.Info("tombstone purge completed",
					"items", stats.Items,
					"tags", stats.Tags,
					"item_tags", stats.ItemTags,
					"time_entries", stats.TimeEntries)
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

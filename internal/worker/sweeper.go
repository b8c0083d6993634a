// internal/worker/sweeper.go

package worker

import (
	"context"
	"log"
	"time"

	"github.com/kmerland/hubdispo-sub001/internal/service"
)

// Sweeper is the safety net behind the departure deadline: groups that never
// reached their minimum participant count would otherwise sit LOCKED-less
// forever. Each tick it cancels every overdue underfilled group and lets the
// matcher find the orphaned shipments a new home.
type Sweeper struct {
	svc      *service.ConsolidationService
	interval time.Duration
}

func NewSweeper(svc *service.ConsolidationService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{svc: svc, interval: interval}
}

// Start runs the worker loop. Blocking call.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Printf("[Sweeper] Worker started. Polling every %s.", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[Sweeper] Context cancelled, stopping.")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cancelled, err := s.svc.CancelExpiredGroups(ctx)
	if err != nil {
		log.Printf("[Sweeper] Sweep error: %v", err)
		return
	}
	if cancelled > 0 {
		log.Printf("[Sweeper] Cancelled %d overdue underfilled groups.", cancelled)
	}
}

package server

import (
	"context"
	"log"
	"time"
)

type staleReclaimer interface {
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// runReaper abandons idle sessions every interval until ctx ends. A
// non-positive staleAfter disables it.
func runReaper(ctx context.Context, r staleReclaimer, interval, staleAfter time.Duration) {
	if r == nil || staleAfter <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.ReclaimStale(ctx, staleAfter)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("interview: reap stale sessions: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("interview: reclaimed %d stale sessions", n)
			}
		}
	}
}

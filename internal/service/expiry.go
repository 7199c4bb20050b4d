package service

import (
	"context"
	"time"
)

// RunExpirySweeper deletes expired sessions and their messages every interval
// until ctx is done.
func (s *Service) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpiredSessions(ctx)
		}
	}
}

func (s *Service) sweepExpiredSessions(ctx context.Context) int64 {
	sweepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	n, err := s.store.DeleteExpiredSessions(sweepCtx, s.now())
	if err != nil {
		s.logger.Warn("session expiry sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", "count", n)
	}
	return n
}

package pairing

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/3dhome4u/wc-backend/internal/metrics"
)

// SweepInterval is how often stale attempts are purged, independent of
// request traffic, so memory stays bounded even with zero polling.
const SweepInterval = 60 * time.Second

// Sweeper periodically removes pairing attempts older than the TTL.
type Sweeper struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewSweeper creates the TTL sweeper for the pairing store.
func NewSweeper(store Store, ttl time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: SweepInterval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in pairing sweeper", "panic", fmt.Sprint(r))
		}
	}()

	removed, err := s.store.Sweep(ctx, time.Now().Add(-s.ttl))
	if err != nil {
		s.logger.Warn("pairing sweep failed", "error", err)
		return
	}
	if removed > 0 {
		metrics.PairingsSweptTotal.Add(float64(removed))
		s.logger.Info("swept stale pairings", "removed", removed)
	}
}

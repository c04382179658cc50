// Package scheduler runs the background jobs of the posting service.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hera/autojournal/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ErrInvalidConfig is returned when the sweep configuration is unusable
var ErrInvalidConfig = errors.New("invalid scheduler configuration")

// StaleBatchFlusher flushes OPEN batch groups that never reached their
// threshold
type StaleBatchFlusher interface {
	FlushStaleBatches(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// StaleBatchSweeper periodically flushes batch groups older than MaxAge so
// quiet organizations still see their small transactions in the ledger.
type StaleBatchSweeper struct {
	flusher StaleBatchFlusher
	config  config.SweepConfig
	logger  *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// DefaultSweepConfig returns the sweep defaults
func DefaultSweepConfig() config.SweepConfig {
	return config.SweepConfig{
		Enabled:  true,
		Interval: 15 * time.Minute,
		MaxAge:   24 * time.Hour,
		Limit:    100,
	}
}

// NewStaleBatchSweeper creates a sweeper. Zero fields in cfg take defaults.
func NewStaleBatchSweeper(flusher StaleBatchFlusher, cfg config.SweepConfig, logger *zap.Logger) (*StaleBatchSweeper, error) {
	if flusher == nil {
		return nil, errors.New("stale batch flusher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultSweepConfig()
	if cfg.Interval == 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = defaults.MaxAge
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaults.Limit
	}
	if cfg.Interval < 0 || cfg.MaxAge < 0 || cfg.Limit < 0 {
		return nil, ErrInvalidConfig
	}
	return &StaleBatchSweeper{flusher: flusher, config: cfg, logger: logger}, nil
}

// Start launches the sweep loop. It returns immediately and is a no-op when
// the sweeper is disabled or already running.
func (s *StaleBatchSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Stale batch sweeper is disabled")
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Stale batch sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("max_age", s.config.MaxAge),
		zap.Int("limit", s.config.Limit),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish or ctx
// to expire
func (s *StaleBatchSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Stale batch sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Stale batch sweeper stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active
func (s *StaleBatchSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *StaleBatchSweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Stale batch sweep loop stopping")
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Per-group failures are logged and the
// count of groups that did flush is still returned.
func (s *StaleBatchSweeper) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	flushed, err := s.flusher.FlushStaleBatches(ctx, s.config.MaxAge, s.config.Limit)
	fields := []zap.Field{
		zap.Int("flushed", flushed),
		zap.Duration("max_age", s.config.MaxAge),
		zap.Duration("duration", time.Since(started)),
	}
	if err != nil {
		s.logger.Error("Stale batch sweep failed", append(fields, zap.Error(err))...)
		return flushed, err
	}
	if flushed > 0 {
		s.logger.Info("Stale batch sweep completed", fields...)
	} else {
		s.logger.Debug("Stale batch sweep found nothing to flush", fields...)
	}
	return flushed, nil
}

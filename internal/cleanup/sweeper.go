// Package cleanup owns the background removal of expired pastes. The
// sweeper is an explicit process-owned object constructed once at startup
// and stopped on shutdown; there is no global scheduler state.
package cleanup

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quillbin/quillbin/internal/metrics"
)

var (
	errMissingStore    = errors.New("cleanup: paste store is required")
	errMissingInterval = errors.New("cleanup: sweep interval must be positive")
)

// PasteStore is the slice of the paste service the sweeper needs.
type PasteStore interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SweeperConfig describes a sweeper's dependencies.
type SweeperConfig struct {
	Store    PasteStore
	Interval time.Duration
	Logger   *zap.Logger
}

// Sweeper periodically deletes pastes whose expiry has passed.
type Sweeper struct {
	store    PasteStore
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper constructs a stopped sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Interval <= 0 {
		return nil, errMissingInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:    cfg.Store,
		interval: cfg.Interval,
		logger:   logger,
	}, nil
}

// Start launches the sweep loop. It runs one immediate cycle and then ticks
// until Stop is called or the parent context ends.
func (s *Sweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sweep(runCtx)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.sweep(runCtx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.store.SweepExpired(ctx)
	metrics.SweepCycles.Inc()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("expired paste sweep failed", zap.Error(err))
		}
		return
	}
	if removed > 0 {
		metrics.SweptPastes.Add(float64(removed))
		s.logger.Info("expired pastes swept", zap.Int64("removed", removed))
	}
}

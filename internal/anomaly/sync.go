package anomaly

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guardianai/llmguard/pkg/logging"
)

const defaultSyncInterval = 5 * time.Minute

// BaselineSyncer periodically writes the detector's rolling baselines to a
// BaselineStore so a restarted worker resumes with warm statistics.
type BaselineSyncer struct {
	store    *BaselineStore
	detector *Detector
	interval time.Duration
	logger   *logging.Logger

	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewBaselineSyncer creates a syncer. interval <= 0 uses the 5m default.
func NewBaselineSyncer(store *BaselineStore, detector *Detector, interval time.Duration, logger *logging.Logger) *BaselineSyncer {
	if store == nil {
		panic("anomaly: baseline store cannot be nil")
	}
	if detector == nil {
		panic("anomaly: detector cannot be nil")
	}
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BaselineSyncer{
		store:    store,
		detector: detector,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background sync loop.
func (s *BaselineSyncer) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run(ctx)
	})
}

func (s *BaselineSyncer) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.persist(ctx)
		}
	}
}

// Stop halts the loop and performs one final synchronous save so a graceful
// shutdown never loses the learned statistics.
func (s *BaselineSyncer) Stop() {
	s.stopOnce.Do(func() {
		if s.started.Load() {
			close(s.stop)
			<-s.done
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.persist(ctx)
	})
}

func (s *BaselineSyncer) persist(ctx context.Context) {
	baselines := s.detector.Baselines()
	if len(baselines) == 0 {
		return
	}
	if err := s.store.SaveAll(ctx, baselines); err != nil {
		s.logger.Error("anomaly: baseline persist failed", "error", err)
		return
	}
	s.logger.Info("anomaly: baselines persisted", "count", len(baselines))
}

package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultSweepInterval is used when SweeperConfig.Interval is not set.
const DefaultSweepInterval = time.Minute

// SweeperConfig configures the background recovery sweep.
type SweeperConfig struct {
	Interval       time.Duration
	StaleAfter     time.Duration
	OrphanAdminAge time.Duration

	// OrphanPartitionGrace is how long an unreferenced partition must be observed before it is
	// dropped. It must comfortably exceed the time a create takes between its partition and
	// organization writes.
	OrphanPartitionGrace time.Duration
}

// Sweeper periodically runs Recover and drops partitions that stay orphaned across passes.
type Sweeper struct {
	manager *Manager
	cfg     SweeperConfig

	mu        sync.Mutex
	firstSeen map[string]time.Time
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper and starts its background loop, which runs until Stop() is called.
func NewSweeper(ctx context.Context, manager *Manager, cfg SweeperConfig) *Sweeper {
	sweepCtx, cancel := context.WithCancel(ctx)

	s := newSweeper(manager, cfg)
	s.ctx = sweepCtx
	s.cancel = cancel

	s.wg.Add(1)
	go s.sweepLoop()

	return s
}

func newSweeper(manager *Manager, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	return &Sweeper{
		manager:   manager,
		cfg:       cfg,
		firstSeen: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Stop gracefully stops the background sweep.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Info().Msg("Recovery sweeper stopped")
			return

		case <-ticker.C:
			started := time.Now()
			_, err := s.RunOnce(s.ctx)
			if err != nil {
				log.Error().Err(err).Msg("Recovery sweep failed")
			}

			m := telemetry.GetMetrics()
			m.SweepsTotal.Add(s.ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
			m.SweepDuration.Record(s.ctx, float64(time.Since(started).Milliseconds()))
		}
	}
}

// RunOnce performs a single sweep. Orphaned partitions are only dropped once they have been
// reported by passes spanning at least the configured grace period.
func (s *Sweeper) RunOnce(ctx context.Context) (*RecoverReport, error) {
	report, err := s.manager.Recover(ctx, RecoverOptions{
		StaleAfter:     s.cfg.StaleAfter,
		OrphanAdminAge: s.cfg.OrphanAdminAge,
	})
	if report == nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	seen := make(map[string]bool, len(report.OrphanPartitions))
	for _, name := range report.OrphanPartitions {
		seen[name] = true

		first, ok := s.firstSeen[name]
		if !ok {
			s.firstSeen[name] = now
			continue
		}
		if now.Sub(first) < s.cfg.OrphanPartitionGrace {
			continue
		}

		dropped, dropErr := s.manager.DropOrphanPartition(ctx, name)
		if dropErr != nil {
			log.Error().Err(dropErr).Str("partition", name).Msg("Failed to drop orphaned partition")
			continue
		}
		delete(s.firstSeen, name)
		if dropped {
			report.PartitionsDropped = append(report.PartitionsDropped, name)
		}
	}

	// Forget partitions that were claimed or removed since the last pass.
	for name := range s.firstSeen {
		if !seen[name] {
			delete(s.firstSeen, name)
		}
	}

	if len(report.RolledForward)+len(report.RolledBack)+len(report.DeletesCompleted)+
		len(report.AdminsRemoved)+len(report.PartitionsDropped) > 0 {
		log.Info().
			Int("rolled_forward", len(report.RolledForward)).
			Int("rolled_back", len(report.RolledBack)).
			Int("deletes_completed", len(report.DeletesCompleted)).
			Int("admins_removed", len(report.AdminsRemoved)).
			Int("partitions_dropped", len(report.PartitionsDropped)).
			Msg("Recovery sweep repaired state")
	}

	return report, err
}

package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/znz-systems/sesdash/internal/blob"
	"github.com/znz-systems/sesdash/internal/metrics"
	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/pkg/clock"
	"github.com/znz-systems/sesdash/internal/store"
)

// DefaultDays is how long events are kept when no retention is configured.
const DefaultDays = 7

type Options struct {
	Days    int
	Blobs   blob.Store
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Service deletes events older than the retention period.
type Service struct {
	store   store.RetentionStore
	days    int
	blobs   blob.Store
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(st store.RetentionStore, opts Options) *Service {
	s := &Service{
		store:   st,
		days:    opts.Days,
		blobs:   opts.Blobs,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if s.days <= 0 {
		s.days = DefaultDays
	}
	if s.clock == nil {
		s.clock = clock.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Cutoff is the oldest epoch second that survives a run started now.
func (s *Service) Cutoff() int64 {
	return s.clock.Now().Add(-time.Duration(s.days) * 24 * time.Hour).Unix()
}

// Preview counts what Cleanup would delete without deleting anything.
func (s *Service) Preview(ctx context.Context) (models.CleanupCounts, error) {
	return s.store.CountOlderThan(ctx, s.Cutoff())
}

// Cleanup deletes aged rows in one transaction, then removes archived
// payloads of the deleted audit rows. Payload removal failures are logged
// and do not fail the run.
func (s *Service) Cleanup(ctx context.Context) (models.CleanupCounts, error) {
	cutoff := s.Cutoff()
	counts, keys, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention cleanup failed", "cutoff", cutoff, "error", err)
		return models.CleanupCounts{Cutoff: cutoff}, err
	}

	if err := blob.DeleteAll(ctx, s.blobs, keys); err != nil {
		s.logger.Warn("failed to delete archived payloads", "count", len(keys), "error", err)
	}

	s.metrics.CleanupDeleted(counts.ByTable())
	s.logger.Info("retention cleanup finished",
		"cutoff", cutoff,
		"email_events", counts.EmailEvents,
		"raw_events", counts.RawEvents,
		"blobs", len(keys),
	)
	return counts, nil
}

// Start runs Cleanup every interval until ctx is cancelled. The first run
// happens immediately.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Cleanup(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

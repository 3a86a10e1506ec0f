package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"photovault/internal/metrics"
)

const DefaultRetention = 7 * 24 * time.Hour

// Purger is the part of Service the sweeper drives.
type Purger interface {
	BinnedRecords(ctx context.Context) ([]*Record, error)
	PurgeIfExpired(ctx context.Context, userID, objectID string, observedDeletedAt int64, cutoff time.Time) error
}

// SweepStats summarises one sweep.
type SweepStats struct {
	RunID   string
	Scanned int
	Expired int
	Purged  int
	Skipped int
	Failed  int
}

// SweeperConfig holds configuration for the retention sweeper
type SweeperConfig struct {
	Retention time.Duration // binned objects older than this are purged (default: 7 days)
	Interval  time.Duration // how often to sweep (default: 1h)
	Now       func() time.Time
}

// Sweeper purges binned objects whose retention has elapsed. It never
// touches bytes itself; every purge goes through the lifecycle manager.
type Sweeper struct {
	purger Purger
	cfg    SweeperConfig
	log    zerolog.Logger
}

func NewSweeper(purger Purger, cfg SweeperConfig, log zerolog.Logger) *Sweeper {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		purger: purger,
		cfg:    cfg,
		log:    log.With().Str("component", "sweeper").Logger(),
	}
}

// RunOnce performs a single sweep. Failures are logged and counted, never
// returned. A cancelled ctx stops the sweep between objects; the object in
// progress is always finished.
func (s *Sweeper) RunOnce(ctx context.Context) SweepStats {
	start := time.Now()
	stats := SweepStats{RunID: ulid.Make().String()}
	log := s.log.With().Str("run_id", stats.RunID).Logger()

	recs, err := s.purger.BinnedRecords(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to enumerate bin")
		stats.Failed++
		metrics.RecordSweep(0, 0, 1, time.Since(start).Seconds())
		return stats
	}

	now := s.cfg.Now()
	cutoff := now.Add(-s.cfg.Retention)
	for _, rec := range recs {
		if ctx.Err() != nil {
			log.Info().Msg("sweep interrupted")
			break
		}
		stats.Scanned++
		if rec.DeletedAt == nil || *rec.DeletedAt > cutoff.UnixMilli() {
			continue
		}
		stats.Expired++

		err := s.purger.PurgeIfExpired(context.WithoutCancel(ctx), rec.UserID, rec.ObjectID, *rec.DeletedAt, cutoff)
		switch {
		case err == nil:
			stats.Purged++
		case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
			stats.Skipped++
			log.Debug().Str("user_id", rec.UserID).Str("object_id", rec.ObjectID).Err(err).Msg("object changed since scan; skipped")
		default:
			stats.Failed++
			log.Error().Str("user_id", rec.UserID).Str("object_id", rec.ObjectID).Err(err).Msg("purge failed")
		}
	}

	elapsed := time.Since(start)
	metrics.RecordSweep(stats.Purged, stats.Skipped, stats.Failed, elapsed.Seconds())
	log.Info().
		Int("scanned", stats.Scanned).
		Int("expired", stats.Expired).
		Int("purged", stats.Purged).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Dur("duration", elapsed).
		Msg("sweep completed")
	return stats
}

// Start sweeps once immediately and then on every interval until ctx is
// done or the returned stop func is called. stop blocks until the loop has
// exited and is safe to call more than once.
func (s *Sweeper) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				s.log.Info().Msg("sweeper stopped")
				return
			}
		}
	}()

	s.log.Info().Dur("interval", s.cfg.Interval).Dur("retention", s.cfg.Retention).Msg("sweeper started")

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

package lock

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridian-org/casework-system/internal/metrics"
)

// PurgeJob periodically removes long-expired lock records. It exists
// for storage hygiene only: expiry is evaluated lazily on every read
// and write, so the lock semantics are identical whether or not this
// job ever runs.
type PurgeJob struct {
	store    Store
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewPurgeJob creates a purge job that runs at the specified interval.
func NewPurgeJob(store Store, interval time.Duration, logger zerolog.Logger) *PurgeJob {
	return &PurgeJob{
		store:    store,
		interval: interval,
		logger:   logger.With().Str("component", "lock-purge").Logger(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the purge job in a background goroutine.
func (j *PurgeJob) Start() {
	go j.run()
}

// Stop signals the purge job to stop and waits for it to finish.
func (j *PurgeJob) Stop() {
	close(j.stopCh)
	<-j.doneCh
}

func (j *PurgeJob) run() {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			j.logger.Info().Msg("purge job stopped")
			return
		case <-ticker.C:
			j.runPurge()
		}
	}
}

func (j *PurgeJob) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.store.Purge(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("failed to purge expired lock records")
		return
	}

	if count > 0 {
		metrics.RecordLocksPurged(count)
		j.logger.Info().
			Int64("removedCount", count).
			Msg("purged expired lock records")
	}
}

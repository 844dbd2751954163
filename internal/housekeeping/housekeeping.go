// Package housekeeping prunes finished timer runs on a schedule.
package housekeeping

import (
	"context"
	"sync"
	"time"

	"github.com/fentz26/dormindo/internal/store"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
)

// Job deletes runs that ended longer ago than the retention window.
type Job struct {
	store     *store.Store
	retention time.Duration
	every     time.Duration

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	lastRun   time.Time
	pruned    int64
}

// New creates a Job. A zero retention disables pruning.
func New(s *store.Store, retention, every time.Duration) *Job {
	return &Job{store: s, retention: retention, every: every}
}

// Start schedules the job; the first prune runs immediately.
func (j *Job) Start() error {
	if j.retention <= 0 {
		log.Info().Msg("housekeeping: retention disabled")
		return nil
	}

	s := gocron.NewScheduler(time.UTC)
	if _, err := s.Every(j.every).Do(j.run); err != nil {
		return err
	}
	s.StartAsync()

	j.mu.Lock()
	j.scheduler = s
	j.mu.Unlock()

	log.Info().Dur("retention", j.retention).Dur("every", j.every).Msg("housekeeping: scheduled")
	return nil
}

// Stop halts the schedule.
func (j *Job) Stop() {
	j.mu.Lock()
	s := j.scheduler
	j.scheduler = nil
	j.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

func (j *Job) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := j.Prune(ctx); err != nil {
		log.Error().Err(err).Msg("housekeeping: prune failed")
	}
}

// Prune deletes runs that ended before now minus the retention window.
func (j *Job) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-j.retention)
	n, err := j.store.PruneRuns(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	j.mu.Lock()
	j.lastRun = time.Now()
	j.pruned += n
	j.mu.Unlock()

	if n > 0 {
		log.Info().Int64("runs", n).Msg("housekeeping: pruned history")
	}
	return n, nil
}

// GetStats returns prune statistics.
func (j *Job) GetStats() map[string]interface{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	return map[string]interface{}{
		"retention": j.retention.String(),
		"pruned":    j.pruned,
		"last_run":  j.lastRun,
	}
}

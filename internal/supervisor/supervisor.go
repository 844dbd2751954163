// Package supervisor hosts the timer engine and its background workers
// with a single start/stop contract, independent of any client.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/fentz26/dormindo/internal/audit"
	"github.com/fentz26/dormindo/internal/broadcast"
	"github.com/fentz26/dormindo/internal/engine"
	"github.com/fentz26/dormindo/internal/housekeeping"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/fentz26/dormindo/internal/store"
	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog/log"
)

// Workers are the optional background workers started with the engine.
type Workers struct {
	Hub          *broadcast.Hub
	SSE          *sse.Server
	Housekeeping *housekeeping.Job
}

// Supervisor runs the engine goroutine and records run lifecycle events.
type Supervisor struct {
	engine  *engine.Engine
	store   *store.Store
	audit   *audit.Recorder
	workers Workers

	mu       sync.Mutex
	started  bool
	counts   map[engine.EventKind]int
	lastRun  string
	lastKind engine.EventKind

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new supervisor.
func New(eng *engine.Engine, s *store.Store, rec *audit.Recorder, workers Workers) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Supervisor{
		engine:  eng,
		store:   s,
		audit:   rec,
		workers: workers,
		counts:  make(map[engine.EventKind]int),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the engine and the workers.
func (sv *Supervisor) Start() error {
	sv.mu.Lock()
	if sv.started {
		sv.mu.Unlock()
		return nil
	}
	sv.started = true
	sv.mu.Unlock()

	if n, err := sv.store.AbandonOpenRuns(sv.ctx, "daemon restarted before the timer ended"); err != nil {
		log.Warn().Err(err).Msg("supervisor: could not close stale runs")
	} else if n > 0 {
		log.Info().Int64("runs", n).Msg("supervisor: closed stale runs")
	}

	sv.wg.Add(2)
	go func() {
		defer sv.wg.Done()
		sv.engine.Run(sv.ctx)
	}()
	go sv.eventLoop()

	if sv.workers.Hub != nil && sv.workers.SSE != nil {
		sv.wg.Add(1)
		go func() {
			defer sv.wg.Done()
			broadcast.ForwardSSE(sv.ctx, sv.workers.Hub, sv.workers.SSE)
		}()
	}

	if sv.workers.Housekeeping != nil {
		if err := sv.workers.Housekeeping.Start(); err != nil {
			sv.Stop()
			return err
		}
	}

	log.Info().Msg("supervisor: started")
	return nil
}

// Stop cancels the engine and waits for every worker to finish.
func (sv *Supervisor) Stop() {
	if sv.workers.Housekeeping != nil {
		sv.workers.Housekeeping.Stop()
	}
	sv.cancel()
	sv.wg.Wait()
	log.Info().Msg("supervisor: stopped")
}

// eventLoop persists lifecycle events until the engine has exited and its
// last events are drained.
func (sv *Supervisor) eventLoop() {
	defer sv.wg.Done()

	for {
		select {
		case ev := <-sv.engine.Events():
			sv.record(ev)
		case <-sv.engine.Done():
			for {
				select {
				case ev := <-sv.engine.Events():
					sv.record(ev)
				default:
					return
				}
			}
		}
	}
}

func (sv *Supervisor) record(ev engine.Event) {
	sv.mu.Lock()
	sv.counts[ev.Kind]++
	sv.lastRun = ev.RunID
	sv.lastKind = ev.Kind
	sv.mu.Unlock()

	// The engine context may already be cancelled during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := log.With().Str("run_id", ev.RunID).Str("event", string(ev.Kind)).Logger()

	switch ev.Kind {
	case engine.EventStarted:
		media := models.MediaInfo{}
		if ev.Media != nil {
			media = *ev.Media
		}
		if _, err := sv.store.CreateRun(ctx, ev.RunID, ev.TotalSeconds, media); err != nil {
			logger.Error().Err(err).Msg("supervisor: record run start")
		}
		return
	case engine.EventCompleted:
		sv.finish(ctx, ev, models.OutcomeCompleted)
		outcome := audit.OutcomeSuccess
		if ev.Detail != "" {
			outcome = audit.OutcomeError
		}
		sv.audit.Record(ctx, "timer.expire", map[string]string{"run_id": ev.RunID}, outcome, ev.RunID, ev.Detail)
	case engine.EventCancelled:
		sv.finish(ctx, ev, models.OutcomeCancelled)
	case engine.EventFailed:
		sv.finish(ctx, ev, models.OutcomeFailed)
		sv.audit.Record(ctx, "timer.fail", map[string]string{"run_id": ev.RunID}, audit.OutcomeError, ev.RunID, ev.Detail)
	}
	logger.Debug().Str("detail", ev.Detail).Msg("supervisor: run finished")
}

func (sv *Supervisor) finish(ctx context.Context, ev engine.Event, outcome models.RunOutcome) {
	if err := sv.store.FinishRun(ctx, ev.RunID, outcome, ev.Detail); err != nil {
		log.Error().Err(err).Str("run_id", ev.RunID).Msg("supervisor: record run end")
	}
}

// GetStats returns current supervisor statistics.
func (sv *Supervisor) GetStats() map[string]interface{} {
	sv.mu.Lock()
	counts := make(map[string]int)
	for k, v := range sv.counts {
		counts[string(k)] = v
	}
	stats := map[string]interface{}{
		"running":    sv.started,
		"events":     counts,
		"last_run":   sv.lastRun,
		"last_event": string(sv.lastKind),
	}
	sv.mu.Unlock()

	if sv.workers.Hub != nil {
		stats["broadcast"] = sv.workers.Hub.Stats()
	}
	if sv.workers.Housekeeping != nil {
		stats["housekeeping"] = sv.workers.Housekeeping.GetStats()
	}
	return stats
}

// Package engine implements the sleep-timer state machine. A single
// goroutine owns the countdown; commands and clock ticks are processed one
// at a time, so no timer state is shared.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/dormindo/internal/media"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Publisher receives every de-duplicated snapshot.
type Publisher interface {
	Publish(models.Snapshot)
}

// Notifier owns the status notification.
type Notifier interface {
	SetEnabled(enabled bool)
	Update(remaining int64, paused bool) bool
	Refresh(remaining int64, paused bool) bool
	Complete() bool
	Clear()
}

// Options tunes the engine clock. Zero values use the defaults.
type Options struct {
	Clock              clockwork.Clock
	TickInterval       time.Duration
	PausedPollInterval time.Duration
	StopTimeout        time.Duration
}

type timerState struct {
	runID     string
	phase     models.Phase
	remaining int64
	total     int64
	paused    bool
	media     *models.MediaInfo

	lastSeconds int64
	lastPaused  bool
}

// Engine runs the countdown. Create it with New and host Run in its own
// goroutine; every other method is safe for concurrent use.
type Engine struct {
	gateway   media.Gateway
	notifier  Notifier
	publisher Publisher

	clock       clockwork.Clock
	tick        time.Duration
	poll        time.Duration
	stopTimeout time.Duration

	commands chan envelope
	events   chan Event
	done     chan struct{}

	// owned by Run
	state  timerState
	ticker clockwork.Ticker
}

// New creates an Engine.
func New(gw media.Gateway, notifier Notifier, publisher Publisher, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.PausedPollInterval <= 0 {
		opts.PausedPollInterval = 500 * time.Millisecond
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}

	return &Engine{
		gateway:     gw,
		notifier:    notifier,
		publisher:   publisher,
		clock:       opts.Clock,
		tick:        opts.TickInterval,
		poll:        opts.PausedPollInterval,
		stopTimeout: opts.StopTimeout,
		commands:    make(chan envelope),
		events:      make(chan Event, 64),
		done:        make(chan struct{}),
		state:       timerState{phase: models.PhaseIdle, lastSeconds: -1},
	}
}

// Events delivers run lifecycle events. Events are dropped if nobody reads them.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run processes commands and ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	defer e.shutdown()

	log.Debug().Dur("tick", e.tick).Dur("poll", e.poll).Msg("engine: running")

	for {
		var tickC <-chan time.Time
		current := e.ticker
		if current != nil {
			tickC = current.Chan()
		}

		select {
		case <-ctx.Done():
			return
		case env := <-e.commands:
			e.handle(env)
		case <-tickC:
			// A command queued behind this tick is applied first, so a
			// Cancel always beats a pending tick.
			e.drainCommands()
			if e.ticker == current {
				e.safely(e.onTick)
			}
		}
	}
}

func (e *Engine) drainCommands() {
	for {
		select {
		case env := <-e.commands:
			e.handle(env)
		default:
			return
		}
	}
}

// Submit sends a command and waits for its result.
func (e *Engine) Submit(ctx context.Context, cmd Command) (models.TimerStatus, error) {
	env := envelope{cmd: cmd, reply: make(chan result, 1)}

	select {
	case e.commands <- env:
	case <-e.done:
		return models.TimerStatus{}, ErrStopped
	case <-ctx.Done():
		return models.TimerStatus{}, ctx.Err()
	}

	select {
	case res := <-env.reply:
		return res.status, res.err
	case <-e.done:
		return models.TimerStatus{}, ErrStopped
	case <-ctx.Done():
		return models.TimerStatus{}, ctx.Err()
	}
}

// Start begins a new timer of the given length, replacing any active one.
func (e *Engine) Start(ctx context.Context, seconds int64, opts StartOptions) (models.TimerStatus, error) {
	return e.Submit(ctx, Command{Kind: CmdStart, Seconds: seconds, Start: opts})
}

// Pause freezes the countdown.
func (e *Engine) Pause(ctx context.Context) (models.TimerStatus, error) {
	return e.Submit(ctx, Command{Kind: CmdPause})
}

// Resume continues a paused countdown.
func (e *Engine) Resume(ctx context.Context) (models.TimerStatus, error) {
	return e.Submit(ctx, Command{Kind: CmdResume})
}

// Cancel ends the active timer without stopping media.
func (e *Engine) Cancel(ctx context.Context) (models.TimerStatus, error) {
	return e.Submit(ctx, Command{Kind: CmdCancel})
}

// AddMinutes extends the active timer.
func (e *Engine) AddMinutes(ctx context.Context, minutes int) (models.TimerStatus, error) {
	return e.Submit(ctx, Command{Kind: CmdAddMinutes, Minutes: minutes})
}

// RequestUpdate re-emits the current snapshot if subscribers have not seen it.
func (e *Engine) RequestUpdate(ctx context.Context) (models.TimerStatus, error) {
	return e.Submit(ctx, Command{Kind: CmdRequestUpdate})
}

// Status returns the current timer status without side effects.
func (e *Engine) Status(ctx context.Context) (models.TimerStatus, error) {
	return e.Submit(ctx, Command{Kind: CmdQuery})
}

func (e *Engine) handle(env envelope) {
	var res result
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.fail(fmt.Sprintf("panic in %s: %v", env.cmd.Kind, r))
				res = result{status: e.status(), err: fmt.Errorf("%w: %v", ErrInternal, r)}
			}
		}()
		res = e.apply(env.cmd)
	}()
	env.reply <- res
}

func (e *Engine) apply(cmd Command) result {
	var err error
	switch cmd.Kind {
	case CmdStart:
		err = e.start(cmd.Seconds, cmd.Start)
	case CmdPause:
		err = e.pause()
	case CmdResume:
		err = e.resume()
	case CmdCancel:
		err = e.cancel()
	case CmdAddMinutes:
		err = e.addMinutes(cmd.Minutes)
	case CmdRequestUpdate:
		e.emit()
	case CmdQuery:
	default:
		err = fmt.Errorf("unknown command %q", cmd.Kind)
	}
	return result{status: e.status(), err: err}
}

func (e *Engine) start(seconds int64, opts StartOptions) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: must be positive", ErrInvalidDuration)
	}
	if seconds > MaxSeconds {
		return fmt.Errorf("%w: longer than %d seconds", ErrInvalidDuration, MaxSeconds)
	}
	if e.state.phase.Active() {
		e.stopTicker()
		e.sendEvent(EventCancelled, "replaced by a new timer")
	}

	e.state = timerState{
		runID:       uuid.New().String(),
		phase:       models.PhaseRunning,
		remaining:   seconds,
		total:       seconds,
		media:       opts.Media,
		lastSeconds: -1,
	}

	e.notifier.SetEnabled(opts.Notify)
	e.notifier.Update(e.state.remaining, false)
	e.startTicker(e.tick)
	e.emit()
	e.sendEvent(EventStarted, "")

	log.Info().Str("run_id", e.state.runID).Int64("seconds", seconds).Msg("engine: timer started")
	return nil
}

func (e *Engine) pause() error {
	switch e.state.phase {
	case models.PhasePaused:
		return nil
	case models.PhaseRunning:
	default:
		return ErrNotRunning
	}

	e.state.phase = models.PhasePaused
	e.state.paused = true
	e.startTicker(e.poll)
	e.notifier.Update(e.state.remaining, true)
	e.emit()
	log.Debug().Int64("remaining", e.state.remaining).Msg("engine: paused")
	return nil
}

func (e *Engine) resume() error {
	switch e.state.phase {
	case models.PhaseRunning:
		return nil
	case models.PhasePaused:
	default:
		return ErrNotPaused
	}

	e.state.phase = models.PhaseRunning
	e.state.paused = false
	e.startTicker(e.tick)
	e.notifier.Update(e.state.remaining, false)
	e.emit()
	log.Debug().Int64("remaining", e.state.remaining).Msg("engine: resumed")
	return nil
}

func (e *Engine) addMinutes(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: must be positive", ErrInvalidDuration)
	}
	if !e.state.phase.Active() {
		return ErrNoActiveTimer
	}
	// compare in minutes so the multiplication cannot overflow
	if int64(minutes) > (MaxSeconds-e.state.remaining)/60 {
		return fmt.Errorf("%w: remaining time would exceed %d seconds", ErrInvalidDuration, MaxSeconds)
	}

	e.state.remaining += int64(minutes) * 60
	e.notifier.Update(e.state.remaining, e.state.paused)
	e.emit()
	log.Debug().Int("minutes", minutes).Int64("remaining", e.state.remaining).Msg("engine: time added")
	return nil
}

func (e *Engine) cancel() error {
	if !e.state.phase.Active() {
		return ErrNoActiveTimer
	}

	e.stopTicker()
	e.notifier.Clear()
	e.terminate(models.PhaseCancelled)
	e.sendEvent(EventCancelled, "")
	log.Info().Str("run_id", e.state.runID).Msg("engine: timer cancelled")
	return nil
}

func (e *Engine) onTick() {
	if e.state.phase != models.PhaseRunning {
		// paused poll: nothing counts down
		return
	}

	e.state.remaining--
	if e.state.remaining <= 0 {
		e.state.remaining = 0
		e.expire()
		return
	}

	e.emit()
	if e.state.remaining%5 == 0 || e.state.remaining <= 10 {
		e.notifier.Refresh(e.state.remaining, false)
	}
}

// expire runs once per timer instance: the ticker is stopped first so no
// further tick can reach it.
func (e *Engine) expire() {
	e.stopTicker()

	detail := ""
	ctx, cancel := context.WithTimeout(context.Background(), e.stopTimeout)
	err := e.gateway.Stop(ctx)
	cancel()
	if err != nil {
		detail = err.Error()
		log.Error().Err(err).Str("run_id", e.state.runID).Msg("engine: media stop failed")
	}

	e.notifier.Complete()
	e.state.phase = models.PhaseCompleted
	e.state.paused = false
	e.emit()
	e.sendEvent(EventCompleted, detail)
	log.Info().Str("run_id", e.state.runID).Msg("engine: timer completed")
}

// fail moves an active instance to Cancelled after an unexpected panic.
func (e *Engine) fail(reason string) {
	log.Error().Str("run_id", e.state.runID).Str("reason", reason).Msg("engine: timer failed")
	if !e.state.phase.Active() {
		return
	}
	e.stopTicker()
	e.guard("clear notification", e.notifier.Clear)
	e.state.phase = models.PhaseCancelled
	e.state.remaining = 0
	e.state.paused = false
	e.state.lastSeconds = -1
	e.guard("emit", e.emit)
	e.sendEvent(EventFailed, reason)
}

func (e *Engine) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.fail(fmt.Sprintf("panic in tick: %v", r))
		}
	}()
	fn()
}

func (e *Engine) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("step", what).Interface("panic", r).Msg("engine: recovery step failed")
		}
	}()
	fn()
}

// terminate zeroes the countdown and resets de-duplication so the zeroed
// snapshot is always delivered.
func (e *Engine) terminate(phase models.Phase) {
	e.state.phase = phase
	e.state.remaining = 0
	e.state.paused = false
	e.state.lastSeconds = -1
	e.emit()
}

func (e *Engine) shutdown() {
	e.stopTicker()
	if e.state.phase.Active() {
		e.guard("clear notification", e.notifier.Clear)
		e.state.phase = models.PhaseCancelled
		e.state.remaining = 0
		e.state.paused = false
		e.sendEvent(EventCancelled, "engine shutdown")
	}
	log.Debug().Msg("engine: stopped")
}

func (e *Engine) emit() {
	s := &e.state
	if s.remaining == s.lastSeconds && s.paused == s.lastPaused {
		return
	}
	s.lastSeconds = s.remaining
	s.lastPaused = s.paused
	e.publisher.Publish(models.Snapshot{RemainingSeconds: s.remaining, IsPaused: s.paused})
}

func (e *Engine) status() models.TimerStatus {
	return models.TimerStatus{
		RunID:            e.state.runID,
		Phase:            e.state.phase,
		RemainingSeconds: e.state.remaining,
		TotalSeconds:     e.state.total,
		IsPaused:         e.state.paused,
		Active:           e.state.phase.Active(),
	}
}

func (e *Engine) startTicker(d time.Duration) {
	e.stopTicker()
	e.ticker = e.clock.NewTicker(d)
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func (e *Engine) sendEvent(kind EventKind, detail string) {
	ev := Event{
		Kind:         kind,
		RunID:        e.state.runID,
		TotalSeconds: e.state.total,
		Media:        e.state.media,
		Detail:       detail,
		At:           e.clock.Now(),
	}
	select {
	case e.events <- ev:
	default:
		log.Warn().Str("kind", string(kind)).Str("run_id", ev.RunID).Msg("engine: event dropped")
	}
}

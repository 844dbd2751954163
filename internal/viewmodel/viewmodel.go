package viewmodel

import (
	"context"
	"errors"
	"sync"

	"github.com/fentz26/dormindo/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoMediaPlaying is shown when a start is attempted with nothing playing.
	ErrNoMediaPlaying = errors.New("no media is playing; start playback before setting a timer")
	// ErrNoMediaDetected is shown when a media refresh finds no session.
	ErrNoMediaDetected = errors.New("no media session detected")
)

// Controller issues timer commands. Both the in-process service and the
// HTTP client satisfy it.
type Controller interface {
	StartTimer(ctx context.Context, seconds int64) (models.TimerStatus, error)
	Pause(ctx context.Context) (models.TimerStatus, error)
	Resume(ctx context.Context) (models.TimerStatus, error)
	AddMinutes(ctx context.Context, minutes int) (models.TimerStatus, error)
	Cancel(ctx context.Context, stopMedia bool) (models.TimerStatus, error)
	Refresh(ctx context.Context) (models.TimerStatus, error)
	Status(ctx context.Context) (models.TimerStatus, error)
	IsMediaPlaying(ctx context.Context) (bool, error)
	CurrentMedia(ctx context.Context) (*models.MediaInfo, error)
}

// ViewModel owns a UiState and fans every new state out to listeners.
type ViewModel struct {
	ctrl Controller

	mu        sync.Mutex
	state     UiState
	listeners map[int]chan UiState
	nextID    int
}

// New creates a ViewModel in the idle state.
func New(ctrl Controller) *ViewModel {
	return &ViewModel{
		ctrl:      ctrl,
		state:     UiState{Status: StatusIdle},
		listeners: make(map[int]chan UiState),
	}
}

// State returns the current state.
func (vm *ViewModel) State() UiState {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state
}

// Subscribe returns a channel receiving every new state. A slow listener
// misses intermediate states.
func (vm *ViewModel) Subscribe(buffer int) (<-chan UiState, int) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan UiState, buffer)

	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.nextID++
	vm.listeners[vm.nextID] = ch
	return ch, vm.nextID
}

// Unsubscribe closes a listener channel.
func (vm *ViewModel) Unsubscribe(id int) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if ch, ok := vm.listeners[id]; ok {
		delete(vm.listeners, id)
		close(ch)
	}
}

// Dispatch folds ev into the state and returns the result.
func (vm *ViewModel) Dispatch(ev Event) UiState {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.setLocked(Reduce(vm.state, ev))
	return vm.state
}

func (vm *ViewModel) setLocked(s UiState) {
	vm.state = s
	for _, ch := range vm.listeners {
		select {
		case ch <- s:
		default:
		}
	}
}

// StartTimer starts a timer unless one is active or a command is in
// flight. It returns false when the request was dropped locally.
func (vm *ViewModel) StartTimer(ctx context.Context, minutes int) bool {
	vm.mu.Lock()
	if vm.state.IsLoading || vm.state.Active() {
		vm.mu.Unlock()
		return false
	}
	vm.setLocked(Reduce(vm.state, LoadingEvent{Loading: true}))
	vm.mu.Unlock()

	playing, err := vm.ctrl.IsMediaPlaying(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("viewmodel: media query failed")
	}
	if !playing {
		vm.Dispatch(CommandResultEvent{Op: OpStart, Err: ErrNoMediaPlaying})
		return true
	}

	st, err := vm.ctrl.StartTimer(ctx, int64(minutes)*60)
	vm.Dispatch(CommandResultEvent{Op: OpStart, Status: st, Err: err})
	return true
}

// Pause pauses the active timer.
func (vm *ViewModel) Pause(ctx context.Context) {
	vm.command(OpPause, func() (models.TimerStatus, error) { return vm.ctrl.Pause(ctx) })
}

// Resume resumes a paused timer.
func (vm *ViewModel) Resume(ctx context.Context) {
	vm.command(OpResume, func() (models.TimerStatus, error) { return vm.ctrl.Resume(ctx) })
}

// TogglePause pauses a running timer or resumes a paused one.
func (vm *ViewModel) TogglePause(ctx context.Context) {
	if vm.State().Status == StatusPaused {
		vm.Resume(ctx)
		return
	}
	vm.Pause(ctx)
}

// AddMinutes extends the active timer.
func (vm *ViewModel) AddMinutes(ctx context.Context, minutes int) {
	vm.command(OpAdd, func() (models.TimerStatus, error) { return vm.ctrl.AddMinutes(ctx, minutes) })
}

// Cancel ends the timer and leaves media playing.
func (vm *ViewModel) Cancel(ctx context.Context) {
	vm.command(OpCancel, func() (models.TimerStatus, error) { return vm.ctrl.Cancel(ctx, false) })
}

// StopTimer ends the timer and stops media now.
func (vm *ViewModel) StopTimer(ctx context.Context) {
	vm.command(OpStop, func() (models.TimerStatus, error) { return vm.ctrl.Cancel(ctx, true) })
}

func (vm *ViewModel) command(op Op, fn func() (models.TimerStatus, error)) {
	vm.Dispatch(LoadingEvent{Loading: true})
	st, err := fn()
	vm.Dispatch(CommandResultEvent{Op: op, Status: st, Err: err})
}

// RefreshMediaInfo reloads the current media session.
func (vm *ViewModel) RefreshMediaInfo(ctx context.Context) {
	info, err := vm.ctrl.CurrentMedia(ctx)
	if err != nil || info == nil {
		if err != nil {
			log.Debug().Err(err).Msg("viewmodel: media lookup failed")
		}
		vm.Dispatch(MediaEvent{Err: ErrNoMediaDetected})
		return
	}
	vm.Dispatch(MediaEvent{Info: info})
}

// ClearError dismisses the current error.
func (vm *ViewModel) ClearError() {
	vm.Dispatch(ClearErrorEvent{})
}

// Sync reads the engine status once, for a freshly subscribed client that
// cannot rely on replay.
func (vm *ViewModel) Sync(ctx context.Context) error {
	st, err := vm.ctrl.Refresh(ctx)
	if err != nil {
		return err
	}
	vm.Dispatch(StatusEvent{Status: st})
	return nil
}

// Watch folds snapshots into the state until snaps closes or ctx is done.
// A zeroed snapshot is followed by a status read so a cancel is not shown
// as a completion.
func (vm *ViewModel) Watch(ctx context.Context, snaps <-chan models.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			vm.Dispatch(SnapshotEvent{Snapshot: snap})
			if snap.RemainingSeconds == 0 {
				if st, err := vm.ctrl.Status(ctx); err == nil {
					vm.Dispatch(StatusEvent{Status: st})
				}
			}
		}
	}
}

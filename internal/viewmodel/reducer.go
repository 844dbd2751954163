// Package viewmodel folds timer snapshots and command results into the
// presentation state shown by clients.
package viewmodel

import "github.com/fentz26/dormindo/internal/models"

// Status is the presentation status of the timer.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// UiState is everything a client renders. RemainingSeconds carries the
// frozen value while paused. Error stays set until a ClearErrorEvent.
type UiState struct {
	IsLoading        bool
	Status           Status
	RemainingSeconds int64
	CurrentMedia     *models.MediaInfo
	Error            string
	RunID            string
}

// Active reports whether a timer is counting down or paused.
func (s UiState) Active() bool {
	return s.Status == StatusRunning || s.Status == StatusPaused
}

// Op names a user command whose result is folded into the state.
type Op string

const (
	OpStart   Op = "start"
	OpPause   Op = "pause"
	OpResume  Op = "resume"
	OpAdd     Op = "add"
	OpCancel  Op = "cancel"
	OpStop    Op = "stop"
	OpRefresh Op = "refresh"
)

// Event is anything Reduce understands.
type Event interface {
	event()
}

// SnapshotEvent carries a broadcast snapshot.
type SnapshotEvent struct {
	Snapshot models.Snapshot
}

// StatusEvent carries an authoritative status read from the engine.
type StatusEvent struct {
	Status models.TimerStatus
}

// CommandResultEvent carries the outcome of a user command.
type CommandResultEvent struct {
	Op     Op
	Status models.TimerStatus
	Err    error
}

// MediaEvent carries a media lookup result.
type MediaEvent struct {
	Info *models.MediaInfo
	Err  error
}

// LoadingEvent marks a command in flight.
type LoadingEvent struct {
	Loading bool
}

// ClearErrorEvent dismisses the current error.
type ClearErrorEvent struct{}

func (SnapshotEvent) event()      {}
func (StatusEvent) event()        {}
func (CommandResultEvent) event() {}
func (MediaEvent) event()         {}
func (LoadingEvent) event()       {}
func (ClearErrorEvent) event()    {}

// Reduce returns the state after ev. It never mutates s.
func Reduce(s UiState, ev Event) UiState {
	switch e := ev.(type) {
	case SnapshotEvent:
		remaining := e.Snapshot.RemainingSeconds
		switch {
		case remaining > 0 && e.Snapshot.IsPaused:
			s.Status = StatusPaused
		case remaining > 0:
			s.Status = StatusRunning
		case s.Active():
			// A timer reaching zero on its own completes; a cancel is
			// corrected by the StatusEvent that follows.
			s.Status = StatusCompleted
		}
		s.RemainingSeconds = remaining

	case StatusEvent:
		s = applyStatus(s, e.Status)

	case CommandResultEvent:
		s.IsLoading = false
		if e.Err != nil {
			s.Error = e.Err.Error()
			if !s.Active() {
				s.Status = StatusError
			}
			return s
		}
		s = applyStatus(s, e.Status)

	case MediaEvent:
		if e.Err != nil {
			s.CurrentMedia = nil
			s.Error = e.Err.Error()
			return s
		}
		s.CurrentMedia = e.Info

	case LoadingEvent:
		s.IsLoading = e.Loading

	case ClearErrorEvent:
		s.Error = ""
		if s.Status == StatusError {
			s.Status = StatusIdle
		}
	}
	return s
}

func applyStatus(s UiState, st models.TimerStatus) UiState {
	s.RemainingSeconds = st.RemainingSeconds
	if st.RunID != "" {
		s.RunID = st.RunID
	}
	switch st.Phase {
	case models.PhaseRunning:
		s.Status = StatusRunning
	case models.PhasePaused:
		s.Status = StatusPaused
	case models.PhaseCompleted:
		s.Status = StatusCompleted
	case models.PhaseCancelled, models.PhaseIdle:
		s.Status = StatusIdle
	}
	return s
}

package engine

import (
	"time"

	"github.com/fentz26/dormindo/internal/models"
)

// CommandKind is the closed set of commands the engine accepts.
type CommandKind string

const (
	CmdStart         CommandKind = "start"
	CmdPause         CommandKind = "pause"
	CmdResume        CommandKind = "resume"
	CmdCancel        CommandKind = "cancel"
	CmdAddMinutes    CommandKind = "add_minutes"
	CmdRequestUpdate CommandKind = "request_update"
	CmdQuery         CommandKind = "query"
)

// Command is a request to the engine. Seconds applies to Start and Minutes
// to AddMinutes.
type Command struct {
	Kind    CommandKind
	Seconds int64
	Minutes int
	Start   StartOptions
}

// StartOptions carries per-run settings captured when the timer starts.
type StartOptions struct {
	Notify bool
	Media  *models.MediaInfo
}

type result struct {
	status models.TimerStatus
	err    error
}

type envelope struct {
	cmd   Command
	reply chan result
}

// EventKind identifies a run lifecycle event.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventCompleted EventKind = "completed"
	EventCancelled EventKind = "cancelled"
	EventFailed    EventKind = "failed"
)

// Event reports a run lifecycle transition to whoever hosts the engine.
type Event struct {
	Kind         EventKind
	RunID        string
	TotalSeconds int64
	Media        *models.MediaInfo
	Detail       string
	At           time.Time
}

// Package models defines the core domain types for Dormindo.
package models

import "time"

// Phase represents where a timer instance is in its lifecycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
)

// Active reports whether the phase still counts down or can be resumed.
func (p Phase) Active() bool {
	return p == PhaseRunning || p == PhasePaused
}

// Terminal reports whether the phase ends a timer instance.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// Snapshot is the value broadcast to subscribers on every accepted state change.
type Snapshot struct {
	RemainingSeconds int64 `json:"remaining_seconds"`
	IsPaused         bool  `json:"is_paused"`
}

// TimerStatus is the reply to every engine command and the answer to
// the "is a timer active" query.
type TimerStatus struct {
	RunID            string `json:"run_id,omitempty"`
	Phase            Phase  `json:"phase"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	TotalSeconds     int64  `json:"total_seconds"`
	IsPaused         bool   `json:"is_paused"`
	Active           bool   `json:"active"`
}

// Snapshot returns the broadcast form of the status.
func (s TimerStatus) Snapshot() Snapshot {
	return Snapshot{RemainingSeconds: s.RemainingSeconds, IsPaused: s.IsPaused}
}

// PlaybackState mirrors the state reported by a media session.
type PlaybackState string

const (
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackStopped PlaybackState = "stopped"
	PlaybackNoMedia PlaybackState = "no_media"
)

// MediaInfo describes the media session a timer would stop.
type MediaInfo struct {
	AppID     string `json:"app_id"`
	AppName   string `json:"app_name"`
	IsPlaying bool   `json:"is_playing"`
	Title     string `json:"title,omitempty"`
	Artist    string `json:"artist,omitempty"`
}

// Settings holds the user preferences read at timer start.
type Settings struct {
	DefaultDurationMinutes int  `json:"default_duration_minutes"`
	NotificationsEnabled   bool `json:"notifications_enabled"`
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		DefaultDurationMinutes: 30,
		NotificationsEnabled:   true,
	}
}

// RunOutcome records how a timer run ended.
type RunOutcome string

const (
	OutcomeRunning   RunOutcome = "running"
	OutcomeCompleted RunOutcome = "completed"
	OutcomeCancelled RunOutcome = "cancelled"
	OutcomeFailed    RunOutcome = "failed"
)

// TimerRun is one persisted timer instance, from Start to its terminal phase.
type TimerRun struct {
	ID          string     `json:"id" db:"id"`
	DurationSec int64      `json:"duration_sec" db:"duration_sec"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Outcome     RunOutcome `json:"outcome" db:"outcome"`
	MediaApp    string     `json:"media_app,omitempty" db:"media_app"`
	MediaTitle  string     `json:"media_title,omitempty" db:"media_title"`
	Detail      string     `json:"detail,omitempty" db:"detail"`
}

// AuditRecord represents a decision record for a state-mutating command.
type AuditRecord struct {
	ID         string    `json:"id" db:"id"`
	Action     string    `json:"action" db:"action"`
	InputsHash string    `json:"inputs_hash" db:"inputs_hash"`
	Outcome    string    `json:"outcome" db:"outcome"`
	RunID      string    `json:"run_id,omitempty" db:"run_id"`
	Details    string    `json:"details,omitempty" db:"details"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}

package engine

import "errors"

// MaxSeconds bounds both a starting duration and the remaining time after
// AddMinutes.
const MaxSeconds int64 = 7 * 24 * 60 * 60

// Sentinel errors for engine commands.
var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrNoActiveTimer   = errors.New("no active timer")
	ErrNotRunning      = errors.New("timer is not running")
	ErrNotPaused       = errors.New("timer is not paused")
	ErrStopped         = errors.New("engine stopped")
	ErrInternal        = errors.New("internal engine failure")
)

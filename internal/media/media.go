// Package media defines the gateway between timers and the platform's
// active media sessions.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/fentz26/dormindo/internal/models"
)

var (
	// ErrNoSession is returned when no media session can be found.
	ErrNoSession = errors.New("no active media session")
	// ErrUnsupported is returned when a player does not implement an operation.
	ErrUnsupported = errors.New("operation not supported by player")
)

// Gateway controls the active media session.
type Gateway interface {
	// Name returns the gateway identifier.
	Name() string

	// IsPlaying reports whether any session is currently playing.
	IsPlaying(ctx context.Context) (bool, error)

	// Stop stops playback of the active session.
	Stop(ctx context.Context) error

	// Pause pauses playback of the active session.
	Pause(ctx context.Context) error

	// CurrentMediaInfo describes the active session, or returns ErrNoSession.
	CurrentMediaInfo(ctx context.Context) (*models.MediaInfo, error)
}

// OpError is the tagged failure of a gateway operation.
type OpError struct {
	Op     string
	Player string
	Err    error
}

func (e *OpError) Error() string {
	if e.Player == "" {
		return fmt.Sprintf("media %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("media %s (%s): %v", e.Op, e.Player, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

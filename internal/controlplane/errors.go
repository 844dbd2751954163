package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/dormindo/internal/engine"
	"github.com/fentz26/dormindo/internal/media"
	"github.com/fentz26/dormindo/internal/store"
)

// Sentinel errors for control plane operations.
var (
	ErrNoMediaPlaying  = errors.New("no media is playing; start playback before setting a timer")
	ErrInvalidSettings = errors.New("default duration must be between 1 and 1440 minutes")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnknownAction   = errors.New("unknown notification action")
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidSettings),
		errors.Is(err, ErrUnknownAction),
		errors.Is(err, engine.ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoActiveTimer),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, media.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, ErrNoMediaPlaying),
		errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, engine.ErrNotPaused):
		return http.StatusConflict
	case errors.Is(err, engine.ErrStopped):
		return http.StatusServiceUnavailable
	}

	var opErr *media.OpError
	if errors.As(err, &opErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

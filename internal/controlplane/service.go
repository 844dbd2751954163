// Package controlplane provides the use cases and HTTP API for Dormindo.
package controlplane

import (
	"context"
	"errors"
	"fmt"

	"github.com/fentz26/dormindo/internal/audit"
	"github.com/fentz26/dormindo/internal/broadcast"
	"github.com/fentz26/dormindo/internal/engine"
	"github.com/fentz26/dormindo/internal/media"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/fentz26/dormindo/internal/notify"
	"github.com/fentz26/dormindo/internal/store"
	"github.com/rs/zerolog/log"
)

// Add-time shortcuts offered by every client.
var AddShortcuts = []int{1, 5, 10, 15}

// Service provides the control plane business logic.
type Service struct {
	engine  *engine.Engine
	gateway media.Gateway
	store   *store.Store
	audit   *audit.Recorder
	hub     *broadcast.Hub
}

// NewService creates a new control plane service.
func NewService(eng *engine.Engine, gw media.Gateway, s *store.Store, rec *audit.Recorder, hub *broadcast.Hub) *Service {
	return &Service{
		engine:  eng,
		gateway: gw,
		store:   s,
		audit:   rec,
		hub:     hub,
	}
}

// --- Timer Operations ---

// StartTimer starts a timer of the given length in seconds. Zero uses the
// default duration from settings. Nothing starts unless media is playing.
func (s *Service) StartTimer(ctx context.Context, seconds int64) (models.TimerStatus, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return models.TimerStatus{}, err
	}
	if seconds == 0 {
		seconds = int64(settings.DefaultDurationMinutes) * 60
	}
	inputs := map[string]int64{"seconds": seconds}

	playing, err := s.IsMediaPlaying(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("controlplane: media query failed")
		s.audit.Record(ctx, "timer.start", inputs, audit.OutcomeError, "", err.Error())
		return models.TimerStatus{}, err
	}
	if !playing {
		s.audit.Record(ctx, "timer.start", inputs, audit.OutcomeRejected, "", ErrNoMediaPlaying.Error())
		return models.TimerStatus{}, ErrNoMediaPlaying
	}

	opts := engine.StartOptions{Notify: settings.NotificationsEnabled}
	if info, err := s.gateway.CurrentMediaInfo(ctx); err == nil {
		opts.Media = info
	}

	st, err := s.engine.Start(ctx, seconds, opts)
	if err != nil {
		s.audit.Record(ctx, "timer.start", inputs, audit.OutcomeRejected, "", err.Error())
		return st, err
	}
	s.audit.Record(ctx, "timer.start", inputs, audit.OutcomeSuccess, st.RunID, fmt.Sprintf("duration=%d", seconds))
	return st, nil
}

// Pause freezes the active timer.
func (s *Service) Pause(ctx context.Context) (models.TimerStatus, error) {
	st, err := s.engine.Pause(ctx)
	s.record(ctx, "timer.pause", nil, st, err)
	return st, err
}

// Resume continues a paused timer.
func (s *Service) Resume(ctx context.Context) (models.TimerStatus, error) {
	st, err := s.engine.Resume(ctx)
	s.record(ctx, "timer.resume", nil, st, err)
	return st, err
}

// AddMinutes extends the active timer.
func (s *Service) AddMinutes(ctx context.Context, minutes int) (models.TimerStatus, error) {
	st, err := s.engine.AddMinutes(ctx, minutes)
	s.record(ctx, "timer.add", map[string]int{"minutes": minutes}, st, err)
	return st, err
}

// Cancel ends the active timer. With stopMedia the playing session is
// stopped afterwards and a gateway failure is returned to the caller; the
// timer stays cancelled either way.
func (s *Service) Cancel(ctx context.Context, stopMedia bool) (models.TimerStatus, error) {
	inputs := map[string]bool{"stop_media": stopMedia}
	st, err := s.engine.Cancel(ctx)
	if err != nil && !(stopMedia && errors.Is(err, engine.ErrNoActiveTimer)) {
		s.record(ctx, "timer.cancel", inputs, st, err)
		return st, err
	}

	if stopMedia {
		if stopErr := s.gateway.Stop(ctx); stopErr != nil && !errors.Is(stopErr, media.ErrNoSession) {
			s.audit.Record(ctx, "timer.cancel", inputs, audit.OutcomeError, st.RunID, stopErr.Error())
			return st, stopErr
		}
	}
	s.record(ctx, "timer.cancel", inputs, st, nil)
	return st, nil
}

// Refresh asks the engine to re-emit its snapshot and returns the current status.
func (s *Service) Refresh(ctx context.Context) (models.TimerStatus, error) {
	return s.engine.RequestUpdate(ctx)
}

// Status reports whether a timer is active and its remaining time.
func (s *Service) Status(ctx context.Context) (models.TimerStatus, error) {
	return s.engine.Status(ctx)
}

// HandleAction applies a notification button press.
func (s *Service) HandleAction(ctx context.Context, action notify.ActionKey) (models.TimerStatus, error) {
	switch action {
	case notify.ActionPause:
		return s.Pause(ctx)
	case notify.ActionResume:
		return s.Resume(ctx)
	case notify.ActionCancel:
		return s.Cancel(ctx, false)
	case notify.ActionAdd15:
		return s.AddMinutes(ctx, 15)
	}
	return models.TimerStatus{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

func (s *Service) record(ctx context.Context, action string, inputs interface{}, st models.TimerStatus, err error) {
	if err != nil {
		outcome := audit.OutcomeRejected
		if errors.Is(err, engine.ErrInternal) || errors.Is(err, engine.ErrStopped) {
			outcome = audit.OutcomeError
		}
		s.audit.Record(ctx, action, inputs, outcome, st.RunID, err.Error())
		return
	}
	s.audit.Record(ctx, action, inputs, audit.OutcomeSuccess, st.RunID, "")
}

// --- Media Operations ---

// IsMediaPlaying reports whether any media session is playing.
func (s *Service) IsMediaPlaying(ctx context.Context) (bool, error) {
	playing, err := s.gateway.IsPlaying(ctx)
	if errors.Is(err, media.ErrNoSession) {
		return false, nil
	}
	return playing, err
}

// CurrentMedia describes the session a timer would stop.
func (s *Service) CurrentMedia(ctx context.Context) (*models.MediaInfo, error) {
	return s.gateway.CurrentMediaInfo(ctx)
}

// --- Settings Operations ---

// GetSettings returns the stored user settings.
func (s *Service) GetSettings(ctx context.Context) (models.Settings, error) {
	return s.store.GetSettings(ctx)
}

// UpdateSettings validates and stores new settings.
func (s *Service) UpdateSettings(ctx context.Context, settings models.Settings) (models.Settings, error) {
	if settings.DefaultDurationMinutes < 1 || settings.DefaultDurationMinutes > 1440 {
		return models.Settings{}, ErrInvalidSettings
	}
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return models.Settings{}, err
	}
	s.audit.Record(ctx, "settings.update", settings, audit.OutcomeSuccess, "", "")
	return settings, nil
}

// --- History Operations ---

// History returns recent timer runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]models.TimerRun, error) {
	return s.store.ListRuns(ctx, limit)
}

// --- Subscriptions ---

// Subscribe returns a snapshot stream for in-process readers.
func (s *Service) Subscribe(buffer int) (<-chan models.Snapshot, int) {
	return s.hub.Subscribe(buffer)
}

// Unsubscribe releases a stream returned by Subscribe.
func (s *Service) Unsubscribe(id int) {
	s.hub.Unsubscribe(id)
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

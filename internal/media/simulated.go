package media

import (
	"context"
	"sync"

	"github.com/fentz26/dormindo/internal/models"
)

// Simulated is an in-memory Gateway used by tests and the simulated backend.
type Simulated struct {
	mu         sync.Mutex
	info       *models.MediaInfo
	stopErr    error
	pauseErr   error
	queryErr   error
	stopCalls  int
	pauseCalls int
}

// NewSimulated creates a Simulated gateway. A nil info means no session.
func NewSimulated(info *models.MediaInfo) *Simulated {
	if info != nil {
		cp := *info
		info = &cp
	}
	return &Simulated{info: info}
}

// Name returns the gateway identifier.
func (s *Simulated) Name() string {
	return "simulated"
}

// SetSession replaces the simulated session. nil removes it.
func (s *Simulated) SetSession(info *models.MediaInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info != nil {
		cp := *info
		info = &cp
	}
	s.info = info
}

// FailStop makes subsequent Stop calls return err.
func (s *Simulated) FailStop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopErr = err
}

// FailPause makes subsequent Pause calls return err.
func (s *Simulated) FailPause(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseErr = err
}

// FailQuery makes subsequent IsPlaying calls return err.
func (s *Simulated) FailQuery(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErr = err
}

// StopCalls returns how many times Stop was called.
func (s *Simulated) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// PauseCalls returns how many times Pause was called.
func (s *Simulated) PauseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseCalls
}

// IsPlaying reports whether the simulated session is playing.
func (s *Simulated) IsPlaying(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return false, &OpError{Op: "query", Player: s.playerLocked(), Err: s.queryErr}
	}
	return s.info != nil && s.info.IsPlaying, nil
}

// Stop stops the simulated session.
func (s *Simulated) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	if s.stopErr != nil {
		return &OpError{Op: "stop", Player: s.playerLocked(), Err: s.stopErr}
	}
	if s.info == nil {
		return &OpError{Op: "stop", Err: ErrNoSession}
	}
	s.info.IsPlaying = false
	return nil
}

// Pause pauses the simulated session.
func (s *Simulated) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseCalls++
	if s.pauseErr != nil {
		return &OpError{Op: "pause", Player: s.playerLocked(), Err: s.pauseErr}
	}
	if s.info == nil {
		return &OpError{Op: "pause", Err: ErrNoSession}
	}
	s.info.IsPlaying = false
	return nil
}

// CurrentMediaInfo returns a copy of the simulated session.
func (s *Simulated) CurrentMediaInfo(ctx context.Context) (*models.MediaInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return nil, ErrNoSession
	}
	cp := *s.info
	return &cp, nil
}

func (s *Simulated) playerLocked() string {
	if s.info == nil {
		return ""
	}
	return s.info.AppID
}

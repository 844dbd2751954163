package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sink delivers descriptors to one notification surface.
type Sink interface {
	Name() string
	Post(ctx context.Context, d Descriptor) error
	Cancel(ctx context.Context, id int) error
}

// Manager owns the single timer notification. It suppresses posts whose
// content matches the last posted descriptor unless the caller forces one.
type Manager struct {
	mu      sync.Mutex
	sinks   []Sink
	timeout time.Duration
	enabled bool
	posted  bool
	last    uint64
	posts   int
}

// NewManager creates a Manager that fans out to sinks.
func NewManager(sinks ...Sink) *Manager {
	return &Manager{
		sinks:   sinks,
		timeout: 2 * time.Second,
		enabled: true,
	}
}

// SetEnabled turns delivery on or off. Disabling clears any visible notification.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	wasPosted := m.posted
	m.enabled = enabled
	m.mu.Unlock()

	if !enabled && wasPosted {
		m.Clear()
	}
}

// Update posts the countdown notification if its content changed.
func (m *Manager) Update(remaining int64, paused bool) bool {
	return m.post(Build(remaining, paused), false)
}

// Refresh posts the countdown notification even when unchanged.
func (m *Manager) Refresh(remaining int64, paused bool) bool {
	return m.post(Build(remaining, paused), true)
}

// Complete replaces the countdown with the completed notification.
func (m *Manager) Complete() bool {
	return m.post(Completed(), false)
}

// Clear removes the notification from every sink.
func (m *Manager) Clear() {
	m.mu.Lock()
	if !m.posted {
		m.mu.Unlock()
		return
	}
	m.posted = false
	m.last = 0
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	for _, s := range m.sinks {
		if err := s.Cancel(ctx, NotificationID); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("notify: cancel failed")
		}
	}
}

// Posts returns how many descriptors were delivered.
func (m *Manager) Posts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts
}

// Visible reports whether a notification is currently posted.
func (m *Manager) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posted
}

func (m *Manager) post(d Descriptor, force bool) bool {
	fp := d.Fingerprint()

	m.mu.Lock()
	if !m.enabled || (!force && m.posted && m.last == fp) {
		m.mu.Unlock()
		return false
	}
	m.posted = true
	m.last = fp
	m.posts++
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	for _, s := range m.sinks {
		if err := s.Post(ctx, d); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("notify: post failed")
		}
	}
	return true
}

// LogSink writes notifications to the debug log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Post(ctx context.Context, d Descriptor) error {
	log.Debug().
		Int("id", d.ID).
		Str("title", d.Title).
		Str("body", d.Body).
		Bool("ongoing", d.Ongoing).
		Msg("notification posted")
	return nil
}

func (LogSink) Cancel(ctx context.Context, id int) error {
	log.Debug().Int("id", id).Msg("notification cancelled")
	return nil
}

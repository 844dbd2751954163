// Package notify renders the timer's single status notification and
// delivers it to the configured sinks.
package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NotificationID is the fixed identifier of the timer notification.
const NotificationID = 1001

// ActionKey identifies a notification button.
type ActionKey string

const (
	ActionPause  ActionKey = "pause"
	ActionResume ActionKey = "resume"
	ActionCancel ActionKey = "cancel"
	ActionAdd15  ActionKey = "add15"
)

// Action is a button shown on the notification.
type Action struct {
	Key   ActionKey `json:"key"`
	Label string    `json:"label"`
}

// Descriptor is everything a sink needs to show the notification.
type Descriptor struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Clock       string   `json:"clock,omitempty"`
	Compact     string   `json:"compact,omitempty"`
	Ongoing     bool     `json:"ongoing"`
	AutoDismiss bool     `json:"auto_dismiss"`
	Actions     []Action `json:"actions,omitempty"`
}

// Build maps a countdown position to the ongoing notification.
func Build(remaining int64, paused bool) Descriptor {
	if remaining < 0 {
		remaining = 0
	}
	clock := FormatClock(remaining)

	toggle := Action{Key: ActionPause, Label: "Pause"}
	title := "Timer active"
	body := "Remaining " + clock
	if paused {
		toggle = Action{Key: ActionResume, Label: "Resume"}
		title = "Timer paused"
		body = "Paused with " + clock + " left"
	}

	return Descriptor{
		ID:      NotificationID,
		Title:   title,
		Body:    body,
		Clock:   clock,
		Compact: FormatCompact(remaining),
		Ongoing: true,
		Actions: []Action{
			toggle,
			{Key: ActionCancel, Label: "Cancel"},
			{Key: ActionAdd15, Label: "+15 min"},
		},
	}
}

// Completed returns the notification shown once media has been stopped.
func Completed() Descriptor {
	return Descriptor{
		ID:          NotificationID,
		Title:       "Timer finished",
		Body:        "Media playback was stopped",
		AutoDismiss: true,
	}
}

// FormatClock renders seconds as HH:MM:SS.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatCompact renders seconds as MM:SS, or H:MM:SS from one hour up.
func FormatCompact(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Fingerprint hashes the visible content of the descriptor.
func (d Descriptor) Fingerprint() uint64 {
	var b strings.Builder
	b.WriteString(strconv.Itoa(d.ID))
	for _, part := range []string{d.Title, d.Body, d.Clock, d.Compact} {
		b.WriteByte(0)
		b.WriteString(part)
	}
	b.WriteByte(0)
	b.WriteString(strconv.FormatBool(d.Ongoing))
	b.WriteString(strconv.FormatBool(d.AutoDismiss))
	for _, a := range d.Actions {
		b.WriteByte(0)
		b.WriteString(string(a.Key))
		b.WriteByte('=')
		b.WriteString(a.Label)
	}
	return xxhash.Sum64String(b.String())
}

package notify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds int64
		clock   string
		compact string
	}{
		{0, "00:00:00", "00:00"},
		{9, "00:00:09", "00:09"},
		{61, "00:01:01", "01:01"},
		{3599, "00:59:59", "59:59"},
		{3600, "01:00:00", "1:00:00"},
		{5430, "01:30:30", "1:30:30"},
		{-4, "00:00:00", "00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.clock, FormatClock(tt.seconds), "FormatClock(%d)", tt.seconds)
		assert.Equal(t, tt.compact, FormatCompact(tt.seconds), "FormatCompact(%d)", tt.seconds)
	}
}

func TestBuildRunning(t *testing.T) {
	want := Descriptor{
		ID:      NotificationID,
		Title:   "Timer active",
		Body:    "Remaining 00:02:05",
		Clock:   "00:02:05",
		Compact: "02:05",
		Ongoing: true,
		Actions: []Action{
			{Key: ActionPause, Label: "Pause"},
			{Key: ActionCancel, Label: "Cancel"},
			{Key: ActionAdd15, Label: "+15 min"},
		},
	}
	if diff := cmp.Diff(want, Build(125, false)); diff != "" {
		t.Errorf("Build mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPausedTogglesAction(t *testing.T) {
	d := Build(60, true)
	assert.Equal(t, ActionResume, d.Actions[0].Key)
	assert.Equal(t, "Timer paused", d.Title)
	assert.Len(t, d.Actions, 3)
}

func TestBuildIsIdempotent(t *testing.T) {
	a := Build(42, true)
	b := Build(42, true)
	assert.Equal(t, a, b)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	assert.NotEqual(t, a.Fingerprint(), Build(41, true).Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), Build(42, false).Fingerprint())
}

func TestCompletedDescriptor(t *testing.T) {
	d := Completed()
	assert.False(t, d.Ongoing)
	assert.True(t, d.AutoDismiss)
	assert.Empty(t, d.Actions)
	assert.Equal(t, NotificationID, d.ID)
	assert.NotEqual(t, Build(0, false).Fingerprint(), d.Fingerprint())
}

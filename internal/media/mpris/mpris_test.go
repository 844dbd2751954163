package mpris

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestFilterPlayers(t *testing.T) {
	names := []string{
		"org.freedesktop.DBus",
		"org.mpris.MediaPlayer2.vlc",
		":1.42",
		"org.mpris.MediaPlayer2.spotify",
		"org.mpris.MediaPlayer2.chromium.instance77",
	}

	got := filterPlayers(names, "")
	want := []string{
		"org.mpris.MediaPlayer2.chromium.instance77",
		"org.mpris.MediaPlayer2.spotify",
		"org.mpris.MediaPlayer2.vlc",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("filterPlayers mismatch (-want +got):\n%s", diff)
	}

	got = filterPlayers(names, "chromium")
	assert.Equal(t, []string{"org.mpris.MediaPlayer2.chromium.instance77"}, got)
}

func TestPickSessionPrefersPlaying(t *testing.T) {
	s, ok := pickSession([]session{
		{busName: "a", status: "Paused"},
		{busName: "b", status: "Playing"},
	})
	assert.True(t, ok)
	assert.Equal(t, "b", s.busName)

	s, ok = pickSession([]session{{busName: "a", status: "Stopped"}})
	assert.True(t, ok)
	assert.Equal(t, "a", s.busName)

	_, ok = pickSession(nil)
	assert.False(t, ok)
}

func TestParseMetadata(t *testing.T) {
	info := parseMetadata(map[string]dbus.Variant{
		"xesam:title":  dbus.MakeVariant("Clair de Lune"),
		"xesam:artist": dbus.MakeVariant([]string{"Debussy", "Tomita"}),
		"mpris:length": dbus.MakeVariant(int64(300000000)),
	})
	assert.Equal(t, "Clair de Lune", info.Title)
	assert.Equal(t, "Debussy, Tomita", info.Artist)

	assert.Empty(t, parseMetadata(nil).Title)
}

func TestTrimBusName(t *testing.T) {
	assert.Equal(t, "spotify", trimBusName("org.mpris.MediaPlayer2.spotify"))
}

package media

import (
	"context"
	"errors"
	"testing"

	"github.com/fentz26/dormindo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedStopEndsPlayback(t *testing.T) {
	ctx := context.Background()
	g := NewSimulated(&models.MediaInfo{AppID: "vlc", AppName: "VLC", IsPlaying: true})

	playing, err := g.IsPlaying(ctx)
	require.NoError(t, err)
	assert.True(t, playing)

	require.NoError(t, g.Stop(ctx))
	playing, _ = g.IsPlaying(ctx)
	assert.False(t, playing)
	assert.Equal(t, 1, g.StopCalls())
}

func TestSimulatedNoSession(t *testing.T) {
	ctx := context.Background()
	g := NewSimulated(nil)

	playing, err := g.IsPlaying(ctx)
	require.NoError(t, err)
	assert.False(t, playing)

	_, err = g.CurrentMediaInfo(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	err = g.Stop(ctx)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "stop", opErr.Op)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSimulatedFailuresAreTagged(t *testing.T) {
	ctx := context.Background()
	g := NewSimulated(&models.MediaInfo{AppID: "mpv", IsPlaying: true})
	boom := errors.New("bus closed")
	g.FailStop(boom)
	g.FailPause(boom)

	err := g.Stop(ctx)
	assert.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "media stop (mpv): bus closed")

	err = g.Pause(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, g.PauseCalls())
}

func TestSimulatedInfoIsCopied(t *testing.T) {
	info := &models.MediaInfo{AppID: "vlc", Title: "a"}
	g := NewSimulated(info)
	info.Title = "b"

	got, err := g.CurrentMediaInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)

	got.Title = "c"
	again, _ := g.CurrentMediaInfo(context.Background())
	assert.Equal(t, "a", again.Title)
}

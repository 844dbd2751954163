package viewmodel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/dormindo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu        sync.Mutex
	playing   bool
	media     *models.MediaInfo
	status    models.TimerStatus
	startErr  error
	cancelErr error
	calls     map[string]int
	block     chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		playing: true,
		media:   &models.MediaInfo{AppID: "mpv", AppName: "mpv", IsPlaying: true},
		status:  models.TimerStatus{Phase: models.PhaseIdle},
		calls:   make(map[string]int),
	}
}

func (f *fakeController) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeController) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	block := f.block
	f.mu.Unlock()
	if block != nil && name == "start" {
		<-block
	}
}

func (f *fakeController) StartTimer(ctx context.Context, seconds int64) (models.TimerStatus, error) {
	f.hit("start")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return models.TimerStatus{}, f.startErr
	}
	f.status = models.TimerStatus{RunID: "run-1", Phase: models.PhaseRunning, RemainingSeconds: seconds, TotalSeconds: seconds, Active: true}
	return f.status, nil
}

func (f *fakeController) Pause(ctx context.Context) (models.TimerStatus, error) {
	f.hit("pause")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Phase = models.PhasePaused
	f.status.IsPaused = true
	return f.status, nil
}

func (f *fakeController) Resume(ctx context.Context) (models.TimerStatus, error) {
	f.hit("resume")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Phase = models.PhaseRunning
	f.status.IsPaused = false
	return f.status, nil
}

func (f *fakeController) AddMinutes(ctx context.Context, minutes int) (models.TimerStatus, error) {
	f.hit("add")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.RemainingSeconds += int64(minutes) * 60
	return f.status, nil
}

func (f *fakeController) Cancel(ctx context.Context, stopMedia bool) (models.TimerStatus, error) {
	if stopMedia {
		f.hit("stop")
	} else {
		f.hit("cancel")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = models.TimerStatus{RunID: f.status.RunID, Phase: models.PhaseCancelled}
	return f.status, f.cancelErr
}

func (f *fakeController) Refresh(ctx context.Context) (models.TimerStatus, error) {
	f.hit("refresh")
	return f.Status(ctx)
}

func (f *fakeController) Status(ctx context.Context) (models.TimerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeController) IsMediaPlaying(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing, nil
}

func (f *fakeController) CurrentMedia(ctx context.Context) (*models.MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.media == nil {
		return nil, errors.New("no active media session")
	}
	return f.media, nil
}

func TestStartTimer(t *testing.T) {
	ctrl := newFakeController()
	vm := New(ctrl)

	assert.True(t, vm.StartTimer(context.Background(), 30))

	st := vm.State()
	assert.Equal(t, StatusRunning, st.Status)
	assert.Equal(t, int64(1800), st.RemainingSeconds)
	assert.False(t, st.IsLoading)
	assert.Equal(t, "run-1", st.RunID)
	assert.Empty(t, st.Error)
}

func TestStartTimerRejectedWhileActive(t *testing.T) {
	ctrl := newFakeController()
	vm := New(ctrl)
	ctx := context.Background()

	require.True(t, vm.StartTimer(ctx, 10))
	assert.False(t, vm.StartTimer(ctx, 10))
	assert.Equal(t, 1, ctrl.count("start"))
}

func TestStartTimerRejectedWhileLoading(t *testing.T) {
	ctrl := newFakeController()
	ctrl.block = make(chan struct{})
	vm := New(ctrl)
	ctx := context.Background()

	done := make(chan bool)
	go func() { done <- vm.StartTimer(ctx, 10) }()

	require.Eventually(t, func() bool { return ctrl.count("start") == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, vm.State().IsLoading)
	assert.False(t, vm.StartTimer(ctx, 10))

	close(ctrl.block)
	assert.True(t, <-done)
	assert.Equal(t, 1, ctrl.count("start"))
}

func TestStartTimerWithoutMedia(t *testing.T) {
	ctrl := newFakeController()
	ctrl.playing = false
	vm := New(ctrl)

	assert.True(t, vm.StartTimer(context.Background(), 10))

	st := vm.State()
	assert.Equal(t, 0, ctrl.count("start"))
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, ErrNoMediaPlaying.Error(), st.Error)
	assert.False(t, st.IsLoading)

	vm.ClearError()
	assert.Equal(t, UiState{Status: StatusIdle}, vm.State())
}

func TestStartTimerFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.startErr = errors.New("engine stopped")
	vm := New(ctrl)

	vm.StartTimer(context.Background(), 10)
	assert.Equal(t, "engine stopped", vm.State().Error)

	// The error stays until cleared.
	vm.RefreshMediaInfo(context.Background())
	assert.Equal(t, "engine stopped", vm.State().Error)
}

func TestCommands(t *testing.T) {
	ctrl := newFakeController()
	vm := New(ctrl)
	ctx := context.Background()

	vm.StartTimer(ctx, 1)
	vm.TogglePause(ctx)
	assert.Equal(t, StatusPaused, vm.State().Status)

	vm.AddMinutes(ctx, 5)
	assert.Equal(t, int64(360), vm.State().RemainingSeconds)
	assert.Equal(t, StatusPaused, vm.State().Status)

	vm.TogglePause(ctx)
	assert.Equal(t, StatusRunning, vm.State().Status)

	vm.StopTimer(ctx)
	st := vm.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Equal(t, int64(0), st.RemainingSeconds)
	assert.Equal(t, 1, ctrl.count("stop"))
	assert.Equal(t, 1, ctrl.count("pause"))
	assert.Equal(t, 1, ctrl.count("resume"))
}

func TestStopFailureIsShown(t *testing.T) {
	ctrl := newFakeController()
	vm := New(ctrl)
	ctx := context.Background()

	vm.StartTimer(ctx, 1)
	ctrl.cancelErr = errors.New("media stop: player gone")
	vm.StopTimer(ctx)

	st := vm.State()
	assert.Equal(t, "media stop: player gone", st.Error)
	assert.False(t, st.IsLoading)
}

func TestRefreshMediaInfo(t *testing.T) {
	ctrl := newFakeController()
	vm := New(ctrl)
	ctx := context.Background()

	vm.RefreshMediaInfo(ctx)
	require.NotNil(t, vm.State().CurrentMedia)
	assert.Equal(t, "mpv", vm.State().CurrentMedia.AppName)

	ctrl.mu.Lock()
	ctrl.media = nil
	ctrl.mu.Unlock()

	vm.RefreshMediaInfo(ctx)
	assert.Nil(t, vm.State().CurrentMedia)
	assert.Equal(t, ErrNoMediaDetected.Error(), vm.State().Error)
}

func TestWatchFoldsSnapshots(t *testing.T) {
	ctrl := newFakeController()
	vm := New(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states, id := vm.Subscribe(16)
	defer vm.Unsubscribe(id)

	snaps := make(chan models.Snapshot)
	done := make(chan struct{})
	go func() {
		vm.Watch(ctx, snaps)
		close(done)
	}()

	snaps <- models.Snapshot{RemainingSeconds: 3}
	snaps <- models.Snapshot{RemainingSeconds: 2}

	ctrl.mu.Lock()
	ctrl.status = models.TimerStatus{RunID: "run-9", Phase: models.PhaseCompleted}
	ctrl.mu.Unlock()
	snaps <- models.Snapshot{}
	close(snaps)
	<-done

	st := vm.State()
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, int64(0), st.RemainingSeconds)
	assert.Equal(t, "run-9", st.RunID)

	first := <-states
	assert.Equal(t, StatusRunning, first.Status)
	assert.Equal(t, int64(3), first.RemainingSeconds)
}

func TestWatchCorrectsCancelFromElsewhere(t *testing.T) {
	ctrl := newFakeController()
	vm := New(ctrl)
	ctx := context.Background()
	vm.StartTimer(ctx, 1)

	// Another client cancels; this view only sees the zeroed snapshot.
	ctrl.mu.Lock()
	ctrl.status = models.TimerStatus{RunID: "run-1", Phase: models.PhaseCancelled}
	ctrl.mu.Unlock()

	snaps := make(chan models.Snapshot, 1)
	snaps <- models.Snapshot{}
	close(snaps)
	vm.Watch(ctx, snaps)

	assert.Equal(t, StatusIdle, vm.State().Status)
}

func TestSync(t *testing.T) {
	ctrl := newFakeController()
	ctrl.status = models.TimerStatus{RunID: "run-3", Phase: models.PhasePaused, RemainingSeconds: 77, IsPaused: true, Active: true}
	vm := New(ctrl)

	require.NoError(t, vm.Sync(context.Background()))
	st := vm.State()
	assert.Equal(t, StatusPaused, st.Status)
	assert.Equal(t, int64(77), st.RemainingSeconds)
	assert.Equal(t, 1, ctrl.count("refresh"))
}

// Package tui provides the interactive terminal UI for Dormindo.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/dormindo/internal/controlplane"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/fentz26/dormindo/internal/notify"
	"github.com/fentz26/dormindo/internal/viewmodel"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(fgColor).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(secondaryColor).
			Padding(1, 4)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	daemonOnlineStyle = lipgloss.NewStyle().
				Foreground(successColor).
				Bold(true)

	daemonOfflineStyle = lipgloss.NewStyle().
				Foreground(errorColor)
)

const mediaRefreshInterval = 5 * time.Second

// Backend is what the TUI needs from the daemon.
type Backend interface {
	viewmodel.Controller
	GetSettings(ctx context.Context) (models.Settings, error)
	History(ctx context.Context, limit int) ([]models.TimerRun, error)
	Snapshots(ctx context.Context, buffer int) <-chan models.Snapshot
}

// App is the main TUI application model.
type App struct {
	backend Backend
	vm      *viewmodel.ViewModel
	states  <-chan viewmodel.UiState
	stateID int

	ctx    context.Context
	cancel context.CancelFunc

	state          viewmodel.UiState
	input          textinput.Model
	viewport       viewport.Model
	suggestions    *Suggestions
	width          int
	height         int
	mode           string // "timer", "history"
	runs           []models.TimerRun
	message        string
	daemonOnline   bool
	defaultMinutes int
}

// New creates a new TUI application.
func New(backend Backend) *App {
	ti := textinput.New()
	ti.Placeholder = "Keys below, or type /start 30 | /add 5 | /stop (+ for quick add)"
	ti.Focus()
	ti.CharLimit = 64
	ti.Width = 80

	vp := viewport.New(80, 12)

	vm := viewmodel.New(backend)
	states, id := vm.Subscribe(32)
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		backend:        backend,
		vm:             vm,
		states:         states,
		stateID:        id,
		ctx:            ctx,
		cancel:         cancel,
		state:          vm.State(),
		input:          ti,
		viewport:       vp,
		suggestions:    NewSuggestions(),
		mode:           "timer",
		defaultMinutes: models.DefaultSettings().DefaultDurationMinutes,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	defer a.cancel()
	defer a.vm.Unsubscribe(a.stateID)

	go a.vm.Watch(a.ctx, a.backend.Snapshots(a.ctx, 16))

	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.waitForState(),
		a.syncTimer(),
		a.loadSettings(),
		a.refreshMedia(),
		a.mediaTick(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if a.mode == "history" {
				a.mode = "timer"
				return a, nil
			}
			if a.state.Error != "" {
				return a, a.run(func(ctx context.Context) { a.vm.ClearError() })
			}

		case "up":
			if a.suggestions.IsVisible() {
				a.suggestions.Prev()
				return a, nil
			}
			if a.mode == "history" {
				a.viewport.LineUp(1)
				return a, nil
			}

		case "down":
			if a.suggestions.IsVisible() {
				a.suggestions.Next()
				return a, nil
			}
			if a.mode == "history" {
				a.viewport.LineDown(1)
				return a, nil
			}

		case "tab":
			if a.suggestions.IsVisible() {
				if selected := a.suggestions.Selected(); selected != nil {
					a.input.SetValue(selected.Text + " ")
					a.input.CursorEnd()
					a.suggestions.Update("")
				}
				return a, nil
			}

		case "enter":
			if a.suggestions.IsVisible() {
				if selected := a.suggestions.Selected(); selected != nil {
					a.input.SetValue("")
					a.suggestions.Update("")
					return a, a.executeCommand(selected.Text)
				}
			}
			cmd := strings.TrimSpace(a.input.Value())
			if cmd != "" {
				a.input.SetValue("")
				a.suggestions.Update("")
				return a, a.executeCommand(cmd)
			}
			return a, nil

		default:
			// Single-key shortcuts apply only while the input is empty.
			if a.input.Value() == "" {
				if cmd, ok := a.shortcut(msg.String()); ok {
					return a, cmd
				}
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-12, 3)
		a.viewport.SetContent(a.renderHistory())

	case stateMsg:
		a.state = viewmodel.UiState(msg)
		cmds = append(cmds, a.waitForState())
		if a.state.Status == viewmodel.StatusCompleted {
			a.message = "Timer finished, media stopped"
		}

	case settingsLoadedMsg:
		a.defaultMinutes = msg.settings.DefaultDurationMinutes

	case historyLoadedMsg:
		a.mode = "history"
		a.runs = msg.runs
		a.viewport.SetContent(a.renderHistory())
		a.viewport.GotoTop()

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case mediaTickMsg:
		return a, tea.Batch(a.refreshMedia(), a.mediaTick())

	case commandResultMsg:
		a.message = msg.message

	case errMsg:
		a.message = "Error: " + msg.err.Error()
	}

	// Update input
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	// Update suggestions based on input
	a.suggestions.Update(a.input.Value())

	return a, tea.Batch(cmds...)
}

// shortcut maps a single key to a command.
func (a *App) shortcut(key string) (tea.Cmd, bool) {
	switch key {
	case "s":
		return a.executeCommand("start"), true
	case "p", " ":
		return a.run(func(ctx context.Context) { a.vm.TogglePause(ctx) }), true
	case "c":
		return a.executeCommand("cancel"), true
	case "x":
		return a.executeCommand("stop"), true
	case "m":
		return a.executeCommand("media"), true
	case "h":
		return a.executeCommand("history"), true
	case "q":
		return tea.Quit, true
	}
	// 1-4 pick an add-time shortcut.
	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(controlplane.AddShortcuts) {
		return a.executeCommand(fmt.Sprintf("add %d", controlplane.AddShortcuts[n-1])), true
	}
	return nil, false
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := daemonOnlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = daemonOfflineStyle.Render("○ DAEMON")
	}
	header := titleStyle.Render("☾ DORMINDO Sleep Timer") + "  " + daemonStatus
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 10)) + "\n")

	switch a.mode {
	case "history":
		b.WriteString("\n  Recent timers\n")
		b.WriteString(a.viewport.View() + "\n")
	default:
		b.WriteString(a.renderTimer())
	}

	// Message bar
	switch {
	case a.state.Error != "":
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(errorColor).Render("Error: "+a.state.Error))
	case a.message != "":
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	default:
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))

	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case "history":
		status = fmt.Sprintf(" Runs: %d | ↑↓:scroll | Esc:back | Ctrl+C:quit", len(a.runs))
	default:
		status = " s:start | p:pause/resume | 1-4:+1/5/10/15m | c:cancel | x:stop media | m:media | h:history | q:quit"
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 10)).Render(status))

	return b.String()
}

func (a *App) renderTimer() string {
	var b strings.Builder
	s := a.state

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().MarginLeft(2).Render(clockStyle.Render(notify.FormatClock(s.RemainingSeconds))))
	b.WriteString("\n\n  " + formatStatus(s))
	if s.IsLoading {
		b.WriteString("  " + helpStyle.Render("working..."))
	}
	b.WriteString("\n\n")

	if m := s.CurrentMedia; m != nil {
		line := m.AppName
		if m.Title != "" {
			line = m.Title
			if m.Artist != "" {
				line += " - " + m.Artist
			}
			line += lipgloss.NewStyle().Foreground(mutedColor).Render(" (" + m.AppName + ")")
		}
		icon := lipgloss.NewStyle().Foreground(successColor).Render("♪")
		if !m.IsPlaying {
			icon = lipgloss.NewStyle().Foreground(mutedColor).Render("♪")
		}
		b.WriteString("  " + icon + " " + line + "\n")
	} else {
		b.WriteString("  " + helpStyle.Render("No media detected. Start playback, then press m.") + "\n")
	}

	if !s.Active() {
		b.WriteString("  " + helpStyle.Render(fmt.Sprintf("Default timer: %d min", a.defaultMinutes)) + "\n")
	}
	return b.String()
}

func formatStatus(s viewmodel.UiState) string {
	switch s.Status {
	case viewmodel.StatusRunning:
		return lipgloss.NewStyle().Foreground(primaryColor).Render("◑ RUNNING")
	case viewmodel.StatusPaused:
		return lipgloss.NewStyle().Foreground(warningColor).Render(fmt.Sprintf("◐ PAUSED at %s", notify.FormatCompact(s.RemainingSeconds)))
	case viewmodel.StatusCompleted:
		return lipgloss.NewStyle().Foreground(successColor).Render("● DONE")
	case viewmodel.StatusError:
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗ ERROR")
	default:
		return lipgloss.NewStyle().Foreground(mutedColor).Render("○ IDLE")
	}
}

func (a *App) renderHistory() string {
	if len(a.runs) == 0 {
		return "  " + lipgloss.NewStyle().Foreground(mutedColor).Render("No timers yet")
	}

	var b strings.Builder
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(cyanColor)
	b.WriteString(fmt.Sprintf("  %s  %s  %s  %s\n",
		headerStyle.Render(fmt.Sprintf("%-16s", "STARTED")),
		headerStyle.Render(fmt.Sprintf("%-8s", "LENGTH")),
		headerStyle.Render(fmt.Sprintf("%-10s", "OUTCOME")),
		headerStyle.Render("MEDIA"),
	))
	b.WriteString("  " + strings.Repeat("─", 60) + "\n")

	for _, r := range a.runs {
		outcomeStyle := lipgloss.NewStyle().Foreground(successColor)
		switch r.Outcome {
		case models.OutcomeCancelled:
			outcomeStyle = lipgloss.NewStyle().Foreground(warningColor)
		case models.OutcomeFailed:
			outcomeStyle = lipgloss.NewStyle().Foreground(errorColor)
		case models.OutcomeRunning:
			outcomeStyle = lipgloss.NewStyle().Foreground(primaryColor)
		}
		mediaName := r.MediaTitle
		if mediaName == "" {
			mediaName = r.MediaApp
		}
		if len(mediaName) > 28 {
			mediaName = mediaName[:25] + "..."
		}
		b.WriteString(fmt.Sprintf("  %-16s  %-8s  %s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			notify.FormatCompact(r.DurationSec),
			outcomeStyle.Render(fmt.Sprintf("%-10s", r.Outcome)),
			mediaName,
		))
	}
	return b.String()
}

// run executes fn off the UI goroutine; state changes arrive through the
// view model subscription.
func (a *App) run(fn func(ctx context.Context)) tea.Cmd {
	return func() tea.Msg {
		fn(a.ctx)
		return nil
	}
}

func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(strings.TrimPrefix(strings.TrimPrefix(input, "/"), "+"))
	if len(parts) == 0 {
		return nil
	}

	cmd := parts[0]
	args := parts[1:]

	return func() tea.Msg {
		ctx := a.ctx
		switch cmd {
		case "start":
			minutes := a.defaultMinutes
			if len(args) > 0 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return commandResultMsg{"Usage: start [minutes]"}
				}
				minutes = n
			}
			if !a.vm.StartTimer(ctx, minutes) {
				return commandResultMsg{"A timer is already active"}
			}
			if a.vm.State().Error != "" {
				return commandResultMsg{""}
			}
			return commandResultMsg{fmt.Sprintf("✓ Timer set for %d min", minutes)}

		case "pause":
			a.vm.Pause(ctx)
		case "resume":
			a.vm.Resume(ctx)

		case "add":
			if len(args) < 1 {
				return commandResultMsg{"Usage: add <minutes>"}
			}
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return commandResultMsg{"Usage: add <minutes>"}
			}
			a.vm.AddMinutes(ctx, n)
			if a.vm.State().Error == "" {
				return commandResultMsg{fmt.Sprintf("✓ Added %d min", n)}
			}

		case "cancel":
			a.vm.Cancel(ctx)
			if a.vm.State().Error == "" {
				return commandResultMsg{"✓ Timer cancelled"}
			}

		case "stop":
			a.vm.StopTimer(ctx)
			if a.vm.State().Error == "" {
				return commandResultMsg{"✓ Timer cancelled, media stopped"}
			}

		case "media":
			a.vm.RefreshMediaInfo(ctx)

		case "history":
			runs, err := a.backend.History(ctx, 50)
			if err != nil {
				return errMsg{err}
			}
			return historyLoadedMsg{runs}

		case "clear":
			a.vm.ClearError()
			return commandResultMsg{""}

		case "q", "quit", "exit":
			return tea.Quit()

		default:
			return commandResultMsg{fmt.Sprintf("Unknown: %s (try: start, pause, add, stop, history)", cmd)}
		}
		return nil
	}
}

func (a *App) waitForState() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-a.states
		if !ok {
			return nil
		}
		return stateMsg(s)
	}
}

func (a *App) syncTimer() tea.Cmd {
	return func() tea.Msg {
		err := a.vm.Sync(a.ctx)
		return daemonStatusMsg{online: err == nil}
	}
}

func (a *App) loadSettings() tea.Cmd {
	return func() tea.Msg {
		s, err := a.backend.GetSettings(a.ctx)
		if err != nil {
			return errMsg{err}
		}
		return settingsLoadedMsg{s}
	}
}

func (a *App) refreshMedia() tea.Cmd {
	return func() tea.Msg {
		info, err := a.backend.CurrentMedia(a.ctx)
		if err != nil {
			// Background polls only update the panel; the explicit
			// media command reports a missing session as an error.
			a.vm.Dispatch(viewmodel.MediaEvent{})
			return nil
		}
		a.vm.Dispatch(viewmodel.MediaEvent{Info: info})
		return nil
	}
}

func (a *App) mediaTick() tea.Cmd {
	return tea.Tick(mediaRefreshInterval, func(t time.Time) tea.Msg {
		return mediaTickMsg(t)
	})
}

type stateMsg viewmodel.UiState

type commandResultMsg struct {
	message string
}

type errMsg struct {
	err error
}

type historyLoadedMsg struct {
	runs []models.TimerRun
}

type settingsLoadedMsg struct {
	settings models.Settings
}

type daemonStatusMsg struct {
	online bool
}

type mediaTickMsg time.Time

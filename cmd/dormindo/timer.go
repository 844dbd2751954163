package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/fentz26/dormindo/internal/client"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/fentz26/dormindo/internal/notify"
	"github.com/spf13/cobra"
)

const requestTimeout = 10 * time.Second

var stopMedia bool

var startCmd = &cobra.Command{
	Use:   "start [minutes]",
	Short: "Start a sleep timer (default duration from settings)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStart,
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running timer",
	Args:  cobra.NoArgs,
	RunE: statusCommand(func(ctx context.Context, c *client.Client) (models.TimerStatus, error) {
		return c.Pause(ctx)
	}),
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused timer",
	Args:  cobra.NoArgs,
	RunE: statusCommand(func(ctx context.Context, c *client.Client) (models.TimerStatus, error) {
		return c.Resume(ctx)
	}),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the timer",
	Args:  cobra.NoArgs,
	RunE: statusCommand(func(ctx context.Context, c *client.Client) (models.TimerStatus, error) {
		return c.Cancel(ctx, stopMedia)
	}),
}

var addCmd = &cobra.Command{
	Use:   "add <minutes>",
	Short: "Add minutes to the active timer",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the timer status",
	Args:  cobra.NoArgs,
	RunE: statusCommand(func(ctx context.Context, c *client.Client) (models.TimerStatus, error) {
		return c.Status(ctx)
	}),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the countdown until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Show the current media session",
	Args:  cobra.NoArgs,
	RunE:  runMedia,
}

func init() {
	cancelCmd.Flags().BoolVar(&stopMedia, "stop-media", false, "Also stop media playback")
}

func timerCmds() []*cobra.Command {
	return []*cobra.Command{startCmd, pauseCmd, resumeCmd, cancelCmd, addCmd, statusCmd, watchCmd, mediaCmd}
}

func statusCommand(fn func(ctx context.Context, c *client.Client) (models.TimerStatus, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		st, err := fn(ctx, client.New(apiAddr))
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	var minutes int
	if len(args) == 1 {
		n, err := parseMinutes(args[0])
		if err != nil {
			return err
		}
		minutes = n
	}
	return statusCommand(func(ctx context.Context, c *client.Client) (models.TimerStatus, error) {
		return c.StartTimer(ctx, int64(minutes)*60)
	})(cmd, args)
}

func runAdd(cmd *cobra.Command, args []string) error {
	minutes, err := parseMinutes(args[0])
	if err != nil {
		return err
	}
	if minutes == 0 {
		return fmt.Errorf("minutes must be positive")
	}
	return statusCommand(func(ctx context.Context, c *client.Client) (models.TimerStatus, error) {
		return c.AddMinutes(ctx, minutes)
	})(cmd, args)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	show := func(s models.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		printTick(out, s)
	}

	c := client.New(apiAddr)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- c.Watch(ctx, show)
	}()

	// The stream does not replay, so ask for the current state once.
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	st, err := c.Refresh(reqCtx)
	cancel()
	if err != nil {
		stop()
		<-watchErr
		return err
	}
	if st.Active {
		show(st.Snapshot())
	} else {
		mu.Lock()
		printStatus(out, st)
		mu.Unlock()
	}

	return <-watchErr
}

func runMedia(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	info, err := client.New(apiAddr).CurrentMedia(ctx)
	if client.IsNotFound(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "No media session")
		return nil
	}
	if err != nil {
		return err
	}
	printMedia(cmd.OutOrStdout(), info)
	return nil
}

func parseMinutes(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid minutes %q", arg)
	}
	return n, nil
}

func printStatus(w io.Writer, st models.TimerStatus) {
	if !st.Active {
		fmt.Fprintf(w, "No active timer (%s)\n", st.Phase)
		return
	}
	fmt.Fprintf(w, "Timer:     %s\n", st.RunID)
	fmt.Fprintf(w, "Phase:     %s\n", st.Phase)
	fmt.Fprintf(w, "Remaining: %s\n", notify.FormatClock(st.RemainingSeconds))
	fmt.Fprintf(w, "Total:     %s\n", notify.FormatClock(st.TotalSeconds))
}

func printTick(w io.Writer, s models.Snapshot) {
	state := "running"
	if s.IsPaused {
		state = "paused"
	}
	fmt.Fprintf(w, "%s  %s\n", notify.FormatClock(s.RemainingSeconds), state)
}

func printMedia(w io.Writer, info *models.MediaInfo) {
	state := "paused"
	if info.IsPlaying {
		state = "playing"
	}
	fmt.Fprintf(w, "App:    %s (%s)\n", info.AppName, info.AppID)
	fmt.Fprintf(w, "State:  %s\n", state)
	if info.Title != "" {
		fmt.Fprintf(w, "Title:  %s\n", info.Title)
	}
	if info.Artist != "" {
		fmt.Fprintf(w, "Artist: %s\n", info.Artist)
	}
}

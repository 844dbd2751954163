// Package playerctl provides a media gateway that shells out to the
// playerctl command with a strict allowlist.
package playerctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fentz26/dormindo/internal/media"
	"github.com/fentz26/dormindo/internal/models"
)

// allowedSubcommands is the strict allowlist of playerctl subcommands.
var allowedSubcommands = map[string]bool{
	"status":   true,
	"stop":     true,
	"pause":    true,
	"metadata": true,
}

const metadataFormat = "{{playerName}}\t{{title}}\t{{artist}}"

// Result holds the result of one playerctl invocation.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Gateway implements media.Gateway on top of playerctl.
type Gateway struct {
	binary string
	player string
}

// New creates a Gateway. An empty binary means "playerctl" from PATH and an
// empty player lets playerctl pick the active one.
func New(binary, player string) *Gateway {
	if binary == "" {
		binary = "playerctl"
	}
	return &Gateway{binary: binary, player: player}
}

// Name returns the gateway identifier.
func (g *Gateway) Name() string {
	return "playerctl"
}

// IsAllowed checks if a subcommand is in the allowlist.
func IsAllowed(args []string) bool {
	if len(args) == 0 {
		return false
	}
	return allowedSubcommands[args[0]]
}

// Execute runs playerctl if the subcommand is allowed.
func (g *Gateway) Execute(ctx context.Context, args ...string) (*Result, error) {
	if !IsAllowed(args) {
		return nil, fmt.Errorf("subcommand not allowed: %s", strings.Join(args, " "))
	}

	full := args
	if g.player != "" {
		full = append([]string{"--player=" + g.player}, args...)
	}

	cmd := exec.CommandContext(ctx, g.binary, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return nil, fmt.Errorf("exec error: %w", err)
		}
	}

	return &Result{
		Args:     args,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Status returns the playback state of the active player.
func (g *Gateway) Status(ctx context.Context) (models.PlaybackState, error) {
	res, err := g.run(ctx, "status")
	if err != nil {
		if errors.Is(err, media.ErrNoSession) {
			return models.PlaybackNoMedia, nil
		}
		return "", err
	}
	switch strings.TrimSpace(res.Stdout) {
	case "Playing":
		return models.PlaybackPlaying, nil
	case "Paused":
		return models.PlaybackPaused, nil
	default:
		return models.PlaybackStopped, nil
	}
}

// IsPlaying reports whether the active player is playing.
func (g *Gateway) IsPlaying(ctx context.Context) (bool, error) {
	state, err := g.Status(ctx)
	if err != nil {
		return false, err
	}
	return state == models.PlaybackPlaying, nil
}

// Stop stops the active player.
func (g *Gateway) Stop(ctx context.Context) error {
	_, err := g.run(ctx, "stop")
	return err
}

// Pause pauses the active player.
func (g *Gateway) Pause(ctx context.Context) error {
	_, err := g.run(ctx, "pause")
	return err
}

// CurrentMediaInfo describes the active player.
func (g *Gateway) CurrentMediaInfo(ctx context.Context) (*models.MediaInfo, error) {
	state, err := g.Status(ctx)
	if err != nil {
		return nil, err
	}
	if state == models.PlaybackNoMedia {
		return nil, media.ErrNoSession
	}

	res, err := g.run(ctx, "metadata", "--format", metadataFormat)
	if err != nil {
		return nil, err
	}
	info := parseMetadata(res.Stdout)
	info.IsPlaying = state == models.PlaybackPlaying
	return &info, nil
}

func (g *Gateway) run(ctx context.Context, args ...string) (*Result, error) {
	res, err := g.Execute(ctx, args...)
	if err != nil {
		return nil, &media.OpError{Op: args[0], Player: g.player, Err: err}
	}
	if res.ExitCode != 0 {
		stderr := strings.TrimSpace(res.Stderr)
		if strings.Contains(stderr, "No players found") {
			return nil, &media.OpError{Op: args[0], Player: g.player, Err: media.ErrNoSession}
		}
		return nil, &media.OpError{
			Op:     args[0],
			Player: g.player,
			Err:    fmt.Errorf("exit code %d: %s", res.ExitCode, stderr),
		}
	}
	return res, nil
}

func parseMetadata(out string) models.MediaInfo {
	fields := strings.Split(strings.TrimRight(out, "\r\n"), "\t")
	for len(fields) < 3 {
		fields = append(fields, "")
	}
	name := strings.TrimSpace(fields[0])
	return models.MediaInfo{
		AppID:   name,
		AppName: displayName(name),
		Title:   strings.TrimSpace(fields[1]),
		Artist:  strings.TrimSpace(fields[2]),
	}
}

func displayName(player string) string {
	if player == "" {
		return ""
	}
	// instance suffixes look like "chromium.instance1234"
	if i := strings.IndexByte(player, '.'); i > 0 {
		player = player[:i]
	}
	return strings.ToUpper(player[:1]) + player[1:]
}

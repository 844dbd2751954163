// Package mpris provides a media gateway over the MPRIS D-Bus interface
// exposed by Linux desktop media players.
package mpris

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/fentz26/dormindo/internal/media"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	busPrefix   = "org.mpris.MediaPlayer2."
	objectPath  = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	rootIface   = "org.mpris.MediaPlayer2"
	playerIface = "org.mpris.MediaPlayer2.Player"
)

// Gateway implements media.Gateway against the session bus.
type Gateway struct {
	conn   *dbus.Conn
	player string
}

// New connects to the session bus. player optionally restricts control to
// bus names ending in that suffix (for example "spotify").
func New(player string) (*Gateway, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, &media.OpError{Op: "connect", Err: err}
	}
	return &Gateway{conn: conn, player: player}, nil
}

// Name returns the gateway identifier.
func (g *Gateway) Name() string {
	return "mpris"
}

// Close releases the bus connection.
func (g *Gateway) Close() error {
	return g.conn.Close()
}

type session struct {
	busName string
	status  string
}

func (g *Gateway) sessions(ctx context.Context) ([]session, error) {
	var names []string
	if err := g.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return nil, err
	}

	var out []session
	for _, name := range filterPlayers(names, g.player) {
		v, err := g.conn.Object(name, objectPath).GetProperty(playerIface + ".PlaybackStatus")
		if err != nil {
			log.Debug().Err(err).Str("player", name).Msg("mpris: skip player without status")
			continue
		}
		status, _ := v.Value().(string)
		out = append(out, session{busName: name, status: status})
	}
	return out, nil
}

// active returns the playing session if any, otherwise the first one.
func (g *Gateway) active(ctx context.Context, op string) (session, error) {
	sessions, err := g.sessions(ctx)
	if err != nil {
		return session{}, &media.OpError{Op: op, Player: g.player, Err: err}
	}
	s, ok := pickSession(sessions)
	if !ok {
		return session{}, &media.OpError{Op: op, Player: g.player, Err: media.ErrNoSession}
	}
	return s, nil
}

// IsPlaying reports whether any matching player is playing.
func (g *Gateway) IsPlaying(ctx context.Context) (bool, error) {
	sessions, err := g.sessions(ctx)
	if err != nil {
		return false, &media.OpError{Op: "status", Player: g.player, Err: err}
	}
	s, ok := pickSession(sessions)
	return ok && s.status == "Playing", nil
}

// Stop stops the active player. Players that reject Stop are paused instead.
func (g *Gateway) Stop(ctx context.Context) error {
	s, err := g.active(ctx, "stop")
	if err != nil {
		return err
	}
	obj := g.conn.Object(s.busName, objectPath)
	if err := obj.CallWithContext(ctx, playerIface+".Stop", 0).Err; err != nil {
		log.Warn().Err(err).Str("player", s.busName).Msg("mpris: stop rejected, pausing instead")
		if err := obj.CallWithContext(ctx, playerIface+".Pause", 0).Err; err != nil {
			return &media.OpError{Op: "stop", Player: trimBusName(s.busName), Err: err}
		}
	}
	return nil
}

// Pause pauses the active player.
func (g *Gateway) Pause(ctx context.Context) error {
	s, err := g.active(ctx, "pause")
	if err != nil {
		return err
	}
	if err := g.conn.Object(s.busName, objectPath).CallWithContext(ctx, playerIface+".Pause", 0).Err; err != nil {
		return &media.OpError{Op: "pause", Player: trimBusName(s.busName), Err: err}
	}
	return nil
}

// CurrentMediaInfo describes the active player.
func (g *Gateway) CurrentMediaInfo(ctx context.Context) (*models.MediaInfo, error) {
	s, err := g.active(ctx, "metadata")
	if err != nil {
		var opErr *media.OpError
		if errors.As(err, &opErr) && errors.Is(opErr.Err, media.ErrNoSession) {
			return nil, media.ErrNoSession
		}
		return nil, err
	}

	obj := g.conn.Object(s.busName, objectPath)
	var metadata map[string]dbus.Variant
	if v, err := obj.GetProperty(playerIface + ".Metadata"); err == nil {
		metadata, _ = v.Value().(map[string]dbus.Variant)
	}

	info := parseMetadata(metadata)
	info.AppID = trimBusName(s.busName)
	info.AppName = info.AppID
	if v, err := obj.GetProperty(rootIface + ".Identity"); err == nil {
		if identity, ok := v.Value().(string); ok && identity != "" {
			info.AppName = identity
		}
	}
	info.IsPlaying = s.status == "Playing"
	return &info, nil
}

func filterPlayers(names []string, player string) []string {
	var out []string
	for _, name := range names {
		if !strings.HasPrefix(name, busPrefix) {
			continue
		}
		if player != "" && !strings.HasPrefix(trimBusName(name), player) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func pickSession(sessions []session) (session, bool) {
	if len(sessions) == 0 {
		return session{}, false
	}
	for _, s := range sessions {
		if s.status == "Playing" {
			return s, true
		}
	}
	return sessions[0], true
}

func trimBusName(name string) string {
	return strings.TrimPrefix(name, busPrefix)
}

func parseMetadata(m map[string]dbus.Variant) models.MediaInfo {
	var info models.MediaInfo
	if v, ok := m["xesam:title"]; ok {
		info.Title, _ = v.Value().(string)
	}
	if v, ok := m["xesam:artist"]; ok {
		switch a := v.Value().(type) {
		case []string:
			info.Artist = strings.Join(a, ", ")
		case string:
			info.Artist = a
		}
	}
	return info
}

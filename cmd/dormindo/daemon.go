package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fentz26/dormindo/internal/audit"
	"github.com/fentz26/dormindo/internal/broadcast"
	"github.com/fentz26/dormindo/internal/config"
	"github.com/fentz26/dormindo/internal/controlplane"
	"github.com/fentz26/dormindo/internal/engine"
	"github.com/fentz26/dormindo/internal/housekeeping"
	"github.com/fentz26/dormindo/internal/media"
	"github.com/fentz26/dormindo/internal/media/mpris"
	"github.com/fentz26/dormindo/internal/media/playerctl"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/fentz26/dormindo/internal/notify"
	"github.com/fentz26/dormindo/internal/store"
	"github.com/fentz26/dormindo/internal/supervisor"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the Dormindo daemon",
	Long:  `Starts the daemon that owns the timer, controls media sessions and serves the HTTP API.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the config file")
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

func setupLogging(cfg *config.Config, out io.Writer) {
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(cfg.GetLogLevel())

	switch strings.ToLower(cfg.Daemon.LogLevel) {
	case "", "error", "warning", "warn", "info", "debug":
	default:
		log.Warn().Str("log_level", cfg.Daemon.LogLevel).Msg("unknown log level, using info")
	}
}

func loadDaemonConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if listenAddr != "" {
		cfg.Daemon.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.Daemon.DBPath = dbPath
	}
	return cfg, nil
}

// newGateway builds the configured media gateway. The returned closer is
// never nil.
func newGateway(cfg *config.Config) (media.Gateway, func(), error) {
	switch cfg.Media.Gateway {
	case config.GatewayMPRIS:
		gw, err := mpris.New(cfg.Media.Player)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to session bus: %w", err)
		}
		return gw, func() { gw.Close() }, nil
	case config.GatewayPlayerctl:
		return playerctl.New("playerctl", cfg.Media.Player), func() {}, nil
	default:
		return newSimulatedGateway(cfg.Media.Player), func() {}, nil
	}
}

// newSimulatedGateway starts with one playing session so timers can be
// started without a real player. Stopping it ends playback for the life of
// the daemon.
func newSimulatedGateway(player string) *media.Simulated {
	if player == "" {
		player = "simulated"
	}
	return media.NewSimulated(&models.MediaInfo{
		AppID:     player,
		AppName:   player,
		IsPlaying: true,
		Title:     "Simulated playback",
	})
}

// newNotifier assembles the sinks. Desktop notifications are optional; a
// missing notification daemon only costs the buttons.
func newNotifier(cfg *config.Config) (*notify.Manager, *notify.Desktop) {
	sinks := []notify.Sink{notify.LogSink{}}

	var desktop *notify.Desktop
	if cfg.Notifications.Desktop {
		d, err := notify.NewDesktop("Dormindo")
		if err != nil {
			log.Warn().Err(err).Msg("desktop notifications unavailable")
		} else {
			desktop = d
			sinks = append(sinks, d)
		}
	}
	if cfg.Notifications.Pushover.Enabled() {
		sinks = append(sinks, notify.NewPushover(cfg.Notifications.Pushover.Token, cfg.Notifications.Pushover.Recipient))
	}
	return notify.NewManager(sinks...), desktop
}

// forwardActions routes notification button presses to the service until
// the channel closes or ctx ends.
func forwardActions(ctx context.Context, actions <-chan notify.ActionKey, service *controlplane.Service) {
	for {
		select {
		case <-ctx.Done():
			return
		case key, ok := <-actions:
			if !ok {
				return
			}
			if _, err := service.HandleAction(ctx, key); err != nil {
				log.Warn().Err(err).Str("action", string(key)).Msg("notification action failed")
			}
		}
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg, os.Stderr)
	log.Info().Str("version", controlplane.Version).Msg("starting dormindo daemon")

	s, err := store.New(cfg.Daemon.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		log.Info().Msg("closing database connection")
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("database close error")
		}
	}()

	gw, closeGateway, err := newGateway(cfg)
	if err != nil {
		return err
	}
	defer closeGateway()
	log.Info().Str("gateway", gw.Name()).Str("player", cfg.Media.Player).Msg("media gateway ready")

	notifier, desktop := newNotifier(cfg)
	if desktop != nil {
		defer desktop.Close()
	}

	hub := broadcast.NewHub()
	events := broadcast.NewSSEServer()
	defer events.Close()

	eng := engine.New(gw, notifier, hub, engine.Options{
		TickInterval:       cfg.Timer.TickInterval,
		PausedPollInterval: cfg.Timer.PausedPollInterval,
		StopTimeout:        cfg.Media.StopTimeout,
	})

	rec := audit.NewRecorder(s)
	var job *housekeeping.Job
	if cfg.History.RetentionDays > 0 {
		job = housekeeping.New(s, time.Duration(cfg.History.RetentionDays)*24*time.Hour, cfg.History.PruneEvery)
	}

	sv := supervisor.New(eng, s, rec, supervisor.Workers{Hub: hub, SSE: events, Housekeeping: job})
	if err := sv.Start(); err != nil {
		return err
	}
	defer sv.Stop()

	service := controlplane.NewService(eng, gw, s, rec, hub)
	server := controlplane.NewServer(service, events, cfg.Daemon.Listen, cfg.Daemon.AllowedOrigins)

	actionCtx, stopActions := context.WithCancel(context.Background())
	defer stopActions()
	if desktop != nil {
		go forwardActions(actionCtx, desktop.Actions(), service)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Daemon.Listen).Msg("API listening")
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("server error")
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("shutdown complete")
	return nil
}

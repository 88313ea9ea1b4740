package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"turret-ctrl/internal/actuator"
	"turret-ctrl/internal/capture"
	"turret-ctrl/internal/config"
	"turret-ctrl/internal/observability"
	"turret-ctrl/internal/server"
	"turret-ctrl/internal/state"
)

//go:embed web/*
var staticFiles embed.FS

func main() {
	// Command line flags
	configPath := flag.String("config", "", "TOML configuration file (defaults when empty)")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides server.listen)")
	logLevel := flag.String("log-level", "", "Log level (overrides log_level)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := observability.InitLogger("turretd", "info")
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	log := observability.InitLogger("turretd", cfg.LogLevel)

	frames, err := openFrames(cfg.Camera, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open frame source")
	}
	if frames != nil {
		defer frames.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := state.New()
	deps := actuator.Deps{}
	if frames != nil {
		deps.Frames = frames
	}
	sys := actuator.NewSystem(cfg, st, deps, log)

	srv, err := server.New(server.Config{
		ListenAddr: cfg.Server.Listen,
		OnShutdown: cancel,
	}, st, staticFiles, observability.Component(log, "server"))
	if err != nil {
		log.Fatal().Err(err).Msg("create server")
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			st.RequestExit()
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("operator server stopped")
		}
	}()

	log.Info().
		Str("listen", cfg.Server.Listen).
		Str("detection", cfg.Detection.Addr).
		Str("range", cfg.Serial.Range.Device).
		Str("motor", cfg.Serial.Motor.Device).
		Msg("turret controller starting")

	if err := sys.Run(ctx); err != nil {
		log.Error().Err(err).Msg("control loops failed")
	}
	srv.Stop()
	log.Info().Msg("stopped")
}

// openFrames picks the configured frame source. Neither configured means
// the turret runs without vision and holds neutral.
func openFrames(cam config.Camera, log zerolog.Logger) (capture.Source, error) {
	switch {
	case cam.RTSPURL != "":
		src, err := capture.NewRTSP(cam.RTSPURL, observability.Component(log, "capture"))
		if err != nil {
			return nil, err
		}
		if err := src.Connect(); err != nil {
			return nil, err
		}
		return src, nil
	case cam.FramesDir != "":
		src, err := capture.NewDir(cam.FramesDir)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, nil
}

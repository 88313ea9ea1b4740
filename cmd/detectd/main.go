// Command detectd is a bench stand-in for the perception service. It speaks
// the detection wire protocol and answers every frame with a fixed result.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"turret-ctrl/internal/detection"
	"turret-ctrl/internal/observability"
	"turret-ctrl/internal/state"
)

func main() {
	listen := flag.String("listen", "[::1]:8000", "TCP listen address")
	sentinel := flag.Int64("sentinel", detection.DefaultSentinel, "No-detection sentinel")
	box := flag.String("box", "", "Fixed target as left,right pixels (none when empty)")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	observability.InitLogger("detectd", *logLevel)

	boxes, err := parseBoxes(*box)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -box")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *listen).Msg("listen")
	}
	log.Info().Str("addr", ln.Addr().String()).Int("targets", len(boxes)).Msg("detectd listening")

	srv := detection.NewServer(fixed(boxes), *sentinel, observability.Component(log.Logger, "detection"))
	if err := srv.Serve(ctx, ln); err != nil {
		log.Fatal().Err(err).Msg("detectd stopped")
	}
	log.Info().Msg("detectd stopped")
}

func fixed(boxes []state.Bounds) detection.Detector {
	return detection.DetectorFunc(func(context.Context, []byte) ([]state.Bounds, error) {
		return boxes, nil
	})
}

// parseBoxes reads "left,right". Empty means no target.
func parseBoxes(s string) ([]state.Bounds, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("want left,right, got %q", s)
	}
	var v [2]int32
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("box %q: %w", s, err)
		}
		v[i] = int32(n)
	}
	if v[0] > v[1] {
		return nil, fmt.Errorf("box %q: left exceeds right", s)
	}
	return []state.Bounds{{Left: v[0], Right: v[1]}}, nil
}

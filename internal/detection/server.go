package detection

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"turret-ctrl/internal/framing"
	"turret-ctrl/internal/state"
)

// DefaultMaxFrame bounds a single inbound frame.
const DefaultMaxFrame = 8 * 1024 * 1024

// Detector finds targets in one encoded frame.
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) ([]state.Bounds, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, jpeg []byte) ([]state.Bounds, error)

func (f DetectorFunc) Detect(ctx context.Context, jpeg []byte) ([]state.Bounds, error) {
	return f(ctx, jpeg)
}

// Server is the perception side of the wire contract.
type Server struct {
	det      Detector
	sentinel int64
	maxFrame uint32
	log      zerolog.Logger
}

func NewServer(det Detector, sentinel int64, log zerolog.Logger) *Server {
	if sentinel == 0 {
		sentinel = DefaultSentinel
	}
	return &Server{det: det, sentinel: sentinel, maxFrame: DefaultMaxFrame, log: log}
}

// Serve accepts connections until ctx is done or ln fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("accepted connection")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		frame, err := framing.ReadFrame(conn, s.maxFrame)
		if errors.Is(err, framing.ErrStreamClosed) {
			log.Info().Msg("client ended stream")
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("closing connection")
			return
		}

		boxes, err := s.det.Detect(ctx, frame)
		if err != nil {
			log.Warn().Err(err).Int("bytes", len(frame)).Msg("detector failed")
			boxes = nil
		}
		if _, err := conn.Write([]byte(FormatResponse(boxes, s.sentinel))); err != nil {
			log.Warn().Err(err).Msg("write response")
			return
		}
	}
}

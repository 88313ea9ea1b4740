package detection

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"turret-ctrl/internal/observability"
	"turret-ctrl/internal/state"
	"turret-ctrl/internal/timeutil"
)

// FrameSource yields encoded JPEG frames.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// LoopConfig configures the detection client loop.
type LoopConfig struct {
	Client     ClientConfig
	ImageWidth int
	FrameRate  float64
}

// Loop streams frames to the perception service and publishes the derived
// yaw error. It is the only writer of the target field.
type Loop struct {
	cfg   LoopConfig
	src   FrameSource
	st    *state.Control
	clock timeutil.Clock
	log   zerolog.Logger

	dial func(context.Context, ClientConfig) (*Client, error)
}

func NewLoop(cfg LoopConfig, src FrameSource, st *state.Control, clock timeutil.Clock, log zerolog.Logger) *Loop {
	return &Loop{cfg: cfg, src: src, st: st, clock: clock, log: log, dial: Dial}
}

func (l *Loop) framePeriod() time.Duration {
	if l.cfg.FrameRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / l.cfg.FrameRate)
}

// Run connects once and exchanges frames until shutdown or a transport
// failure. The target is Invalid whenever Run is not producing results.
func (l *Loop) Run(ctx context.Context) error {
	defer l.st.InvalidateTarget()

	client, err := l.dial(ctx, l.cfg.Client)
	if err != nil {
		return err
	}
	defer client.Close()
	l.log.Info().Str("addr", l.cfg.Client.Addr).Msg("connected to perception service")

	period := l.framePeriod()
	for {
		if ctx.Err() != nil || l.st.ExitRequested() {
			return nil
		}

		frame, err := l.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		res, err := client.Exchange(frame)
		switch {
		case errors.Is(err, ErrProtocol):
			l.log.Debug().Err(err).Msg("bad detection response")
			observability.RecordDetection(observability.DetectionProtocolError)
			l.st.InvalidateTarget()
		case err != nil:
			return err
		default:
			if res.Found {
				observability.RecordDetection(observability.DetectionTarget)
			} else {
				observability.RecordDetection(observability.DetectionNone)
			}
			l.st.SetTarget(res.Target(l.cfg.ImageWidth))
		}

		if period > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-l.clock.After(period):
			}
		}
	}
}

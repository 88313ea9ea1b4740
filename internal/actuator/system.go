package actuator

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"turret-ctrl/internal/ballistics"
	"turret-ctrl/internal/config"
	"turret-ctrl/internal/detection"
	"turret-ctrl/internal/fire"
	"turret-ctrl/internal/observability"
	"turret-ctrl/internal/state"
	"turret-ctrl/internal/telemetry"
	"turret-ctrl/internal/timeutil"
	"turret-ctrl/internal/yaw"
)

// Deps are the collaborators injected into a System.
type Deps struct {
	// Open opens serial devices; nil uses telemetry.Open.
	Open telemetry.Opener
	// Frames feeds the detection loop; nil disables it.
	Frames detection.FrameSource
	// Clock; nil uses the real clock.
	Clock timeutil.Clock
}

// System runs the detection, range and motor loops over one control state.
type System struct {
	cfg  config.Config
	st   *state.Control
	deps Deps
	log  zerolog.Logger

	act *Actuator
}

func NewSystem(cfg config.Config, st *state.Control, deps Deps, log zerolog.Logger) *System {
	if deps.Open == nil {
		deps.Open = telemetry.Open
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}

	arb := fire.NewArbiter(fire.Config{
		RequiredSamples:   cfg.Fire.RequiredSamples,
		Cooldown:          cfg.Fire.Cooldown.Duration,
		AimTolerancePx:    cfg.AimTolerancePx(),
		CompletionTimeout: cfg.Fire.CompletionTimeout.Duration,
		Power:             fire.BallisticPower(ballistics.DefaultSimulator(), cfg.Fire.LaunchAngle),
	})
	act := New(yaw.NewController(cfg.YawConfig()), arb, st, deps.Clock,
		cfg.ControlPeriod(), cfg.Yaw.ResetTimeout.Duration, observability.Component(log, "actuator"))

	return &System{cfg: cfg, st: st, deps: deps, log: log, act: act}
}

// Run blocks until every loop has observed shutdown.
func (s *System) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.deps.Frames != nil {
		dlog := observability.Component(s.log, "detection")
		loop := detection.NewLoop(detection.LoopConfig{
			Client: detection.ClientConfig{
				Addr:         s.cfg.Detection.Addr,
				Sentinel:     s.cfg.Detection.Sentinel,
				DialTimeout:  s.cfg.Detection.DialTimeout.Duration,
				ReplyTimeout: s.cfg.Detection.ReplyTimeout.Duration,
			},
			ImageWidth: s.cfg.Camera.Width,
			FrameRate:  s.cfg.Camera.FrameRate,
		}, s.deps.Frames, s.st, s.deps.Clock, dlog)
		g.Go(func() error {
			return Supervise(ctx, s.st, s.deps.Clock, s.cfg.Detection.ReconnectDelay.Duration, dlog, loop.Run, func() {
				observability.RecordLoopRestart("detection")
			})
		})
	} else {
		s.log.Warn().Msg("no frame source configured, yaw error stays invalid")
	}

	rlog := observability.Component(s.log, "range")
	g.Go(func() error {
		return Supervise(ctx, s.st, s.deps.Clock, s.cfg.Serial.ReconnectDelay.Duration, rlog, s.runRange, func() {
			observability.RecordLoopRestart("range")
		})
	})

	mlog := observability.Component(s.log, "motor")
	g.Go(func() error {
		return Supervise(ctx, s.st, s.deps.Clock, s.cfg.Serial.ReconnectDelay.Duration, mlog, s.runMotor, func() {
			observability.RecordLoopRestart("motor")
		})
	})

	return g.Wait()
}

func (s *System) runRange(ctx context.Context) error {
	p := s.cfg.Serial.Range
	port, err := s.deps.Open(p.Device, telemetry.PortOptions{BaudRate: p.BaudRate, ReadTimeout: p.ReadTimeout.Duration})
	if err != nil {
		return err
	}
	defer port.Close()
	s.log.Info().Str("device", p.Device).Msg("range sensor open")

	return telemetry.NewRangeReader(p.Device, port, s.st, observability.Component(s.log, "range")).Run(ctx)
}

func (s *System) runMotor(ctx context.Context) error {
	p := s.cfg.Serial.Motor
	port, err := s.deps.Open(p.Device, telemetry.PortOptions{BaudRate: p.BaudRate, ReadTimeout: p.ReadTimeout.Duration})
	if err != nil {
		return err
	}
	mlog := observability.Component(s.log, "motor")
	link := telemetry.NewMotorLink(p.Device, port, s.cfg.Serial.CompletionMarker, mlog)
	defer link.Close()
	mlog.Info().Str("device", p.Device).Msg("motor controller open")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return link.Monitor(gctx, s.st) })
	g.Go(func() error { return s.act.Run(gctx, link) })
	return g.Wait()
}

package telemetry

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"turret-ctrl/internal/observability"
	"turret-ctrl/internal/state"
)

// RangeFrameLen is the size of one range sensor sample.
const RangeFrameLen = 11

// MaxRange is the largest plausible distance in meters.
const MaxRange = 100

// DecodeRange decodes one sample. Bytes 3-5 carry the integer meters and
// 7-9 the millimeters as ASCII digits; byte 6 is the separator.
func DecodeRange(frame []byte) state.Reading[float64] {
	if len(frame) < RangeFrameLen {
		return state.Invalid[float64]()
	}
	d := func(i int) float64 { return float64(int(frame[i]) - 0x30) }
	dist := 100*d(3) + 10*d(4) + d(5) + 0.1*d(7) + 0.01*d(8) + 0.001*d(9)
	if dist < 0 || dist > MaxRange {
		return state.Invalid[float64]()
	}
	return state.Valid(dist)
}

// RangeReader reads range samples from the sensor port into the shared
// control state. It is the only writer of the range field.
type RangeReader struct {
	device string
	port   io.Reader
	st     *state.Control
	log    zerolog.Logger
	buf    [RangeFrameLen]byte
}

func NewRangeReader(device string, port io.Reader, st *state.Control, log zerolog.Logger) *RangeReader {
	return &RangeReader{device: device, port: port, st: st, log: log}
}

// ReadSample reads one frame. A read timeout before the frame is complete
// yields Invalid with a nil error.
func (r *RangeReader) ReadSample() (state.Reading[float64], error) {
	n := 0
	for n < RangeFrameLen {
		m, err := r.port.Read(r.buf[n:])
		n += m
		if err != nil {
			return state.Invalid[float64](), &DeviceError{Device: r.device, Err: err}
		}
		if m == 0 {
			r.log.Debug().Int("bytes", n).Msg("short range frame")
			return state.Invalid[float64](), nil
		}
	}
	return DecodeRange(r.buf[:]), nil
}

// Run reads samples until shutdown or a device error. The range is Invalid
// once it returns.
func (r *RangeReader) Run(ctx context.Context) error {
	defer r.st.SetRange(state.Invalid[float64]())
	for {
		if ctx.Err() != nil || r.st.ExitRequested() {
			return nil
		}
		sample, err := r.ReadSample()
		if err != nil {
			return err
		}
		r.st.SetRange(sample)
		observability.RecordRangeSample(sample.Valid())
		r.log.Trace().Stringer("range", sample).Msg("range sample")
	}
}

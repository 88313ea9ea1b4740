package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"turret-ctrl/internal/state"
)

// Command letters understood by the motor controller.
const (
	CmdYawDuty = 'y'
	CmdReset   = 'r'
	CmdFire    = 'f'
)

// DefaultCompletionMarker is the line the controller sends when a shot
// has finished.
const DefaultCompletionMarker = "done"

const maxLineLen = 256

// MotorLink is the newline-framed link to the motor/encoder controller.
// Commands may be sent from any goroutine; Monitor owns the read side.
type MotorLink struct {
	device     string
	port       Port
	completion string
	log        zerolog.Logger

	mu     sync.Mutex
	resets atomic.Uint64

	// owned by the Monitor goroutine
	pending      []byte
	seenResets   uint64
	awaitingHome bool
}

func NewMotorLink(device string, port Port, completionMarker string, log zerolog.Logger) *MotorLink {
	if completionMarker == "" {
		completionMarker = DefaultCompletionMarker
	}
	return &MotorLink{
		device:     device,
		port:       port,
		completion: completionMarker,
		log:        log,
	}
}

func (m *MotorLink) send(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	line += "\n"
	n, err := m.port.Write([]byte(line))
	if err != nil {
		return &DeviceError{Device: m.device, Err: err}
	}
	if n != len(line) {
		return &DeviceError{Device: m.device, Err: fmt.Errorf("short write %d of %d bytes", n, len(line))}
	}
	return nil
}

// SetYawDuty sends y<duty>.
func (m *MotorLink) SetYawDuty(duty uint8) error {
	return m.send(fmt.Sprintf("%c%d", CmdYawDuty, duty))
}

// ResetYaw sends r. Monitor drops what it has read so far and reports the
// next encoder count as the homed position.
func (m *MotorLink) ResetYaw() error {
	m.resets.Add(1)
	return m.send(string(CmdReset))
}

// Fire sends f<power>.
func (m *MotorLink) Fire(power int) error {
	return m.send(fmt.Sprintf("%c%d", CmdFire, power))
}

func (m *MotorLink) Close() error {
	return m.port.Close()
}

// ReadLine returns the next complete line without its terminator. ok is
// false when the read timed out before a line completed.
func (m *MotorLink) ReadLine() (line string, ok bool, err error) {
	var chunk [64]byte
	for {
		if i := bytes.IndexByte(m.pending, '\n'); i >= 0 {
			line = string(m.pending[:i])
			m.pending = append(m.pending[:0], m.pending[i+1:]...)
			return strings.TrimSpace(line), true, nil
		}
		if len(m.pending) > maxLineLen {
			m.log.Warn().Int("bytes", len(m.pending)).Msg("discarding unterminated motor line")
			m.pending = m.pending[:0]
		}
		n, err := m.port.Read(chunk[:])
		m.pending = append(m.pending, chunk[:n]...)
		if err != nil {
			return "", false, &DeviceError{Device: m.device, Err: err}
		}
		if n == 0 {
			return "", false, nil
		}
	}
}

// HandleLine applies one inbound line to the control state. Lines that are
// neither an encoder count nor the completion marker are ignored, keeping
// the previous encoder value.
func (m *MotorLink) HandleLine(st *state.Control, line string) {
	if line == "" {
		return
	}
	if line == m.completion {
		st.SignalFireComplete()
		m.log.Info().Msg("fire complete")
		return
	}
	count, err := strconv.ParseInt(line, 10, 32)
	if err != nil {
		m.log.Debug().Str("line", line).Msg("ignoring motor line")
		return
	}
	st.SetEncoder(state.Valid(int32(count)))
	if m.awaitingHome {
		m.awaitingHome = false
		st.MarkYawHomed()
		m.log.Debug().Int64("encoder", count).Msg("first encoder report after reset")
	}
}

// Monitor reads controller lines into st until shutdown or a device error.
// It is the only writer of the encoder, which is Invalid once it returns.
func (m *MotorLink) Monitor(ctx context.Context, st *state.Control) error {
	defer st.SetEncoder(state.Invalid[int32]())
	for {
		if ctx.Err() != nil || st.ExitRequested() {
			return nil
		}
		m.syncReset(st)
		line, ok, err := m.ReadLine()
		if err != nil {
			return err
		}
		// a line completed across a reset predates it
		if !ok || m.syncReset(st) {
			continue
		}
		m.HandleLine(st, line)
	}
}

// syncReset reports whether a reset was sent since the last call, and if so
// invalidates the encoder and drops buffered input.
func (m *MotorLink) syncReset(st *state.Control) bool {
	n := m.resets.Load()
	if n == m.seenResets {
		return false
	}
	m.seenResets = n
	m.awaitingHome = true
	m.pending = m.pending[:0]
	st.SetEncoder(state.Invalid[int32]())
	return true
}

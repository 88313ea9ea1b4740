// Package telemetry speaks the two serial protocols of the turret: the
// fixed-width range sensor stream and the newline-framed motor controller
// link.
package telemetry

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the minimal serial port surface. Reads return (0, nil) when the
// read timeout elapses without data.
type Port interface {
	io.ReadWriter
	io.Closer
}

// ErrDevice matches every DeviceError.
var ErrDevice = errors.New("telemetry: device error")

// DeviceError reports a serial device that could not be opened or failed
// mid-stream. It terminates the owning loop.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("telemetry: device %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

// PortOptions describes how a serial device is opened.
type PortOptions struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// Opener opens a serial device. Tests substitute fakes.
type Opener func(path string, opts PortOptions) (Port, error)

// Open opens a real serial port, 8N1, with the given read timeout.
func Open(path string, opts PortOptions) (Port, error) {
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, &DeviceError{Device: path, Err: err}
	}
	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, &DeviceError{Device: path, Err: fmt.Errorf("set read timeout: %w", err)}
		}
	}
	return port, nil
}

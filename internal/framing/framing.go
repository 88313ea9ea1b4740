// Package framing implements the length-prefixed frame stream used to push
// encoded camera frames to the perception service.
//
// A frame is a 4-byte little-endian payload length followed by the payload.
// A length of zero terminates the stream.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

const PrefixLen = 4

var ErrStreamClosed = errors.New("framing: stream closed by peer")

// TransportError is a connection-level failure. The owning connection
// should be closed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("framing: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// WriteFrame writes the length prefix and payload. An empty payload is
// rejected; use WriteEnd to terminate a stream.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return &TransportError{Op: "write", Err: errors.New("empty payload")}
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return &TransportError{Op: "write", Err: fmt.Errorf("payload of %d bytes exceeds prefix range", len(payload))}
	}
	buf := make([]byte, PrefixLen+len(payload))
	binary.LittleEndian.PutUint32(buf[:PrefixLen], uint32(len(payload)))
	copy(buf[PrefixLen:], payload)
	if _, err := w.Write(buf); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// WriteEnd writes the zero-length termination sentinel.
func WriteEnd(w io.Writer) error {
	var prefix [PrefixLen]byte
	if _, err := w.Write(prefix[:]); err != nil {
		return &TransportError{Op: "write end", Err: err}
	}
	return nil
}

// ReadFrame blocks until a whole frame is read. The termination sentinel
// yields ErrStreamClosed. maxLen bounds the allocation; zero means no limit.
func ReadFrame(r io.Reader, maxLen uint32) ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, &TransportError{Op: "read prefix", Err: err}
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	if n == 0 {
		return nil, ErrStreamClosed
	}
	if maxLen > 0 && n > maxLen {
		return nil, &TransportError{Op: "read", Err: fmt.Errorf("frame of %d bytes exceeds limit %d", n, maxLen)}
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &TransportError{Op: "read payload", Err: err}
	}
	return payload, nil
}

// Writer serializes frame writes on one connection.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (fw *Writer) Send(payload []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return WriteFrame(fw.w, payload)
}

func (fw *Writer) End() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return WriteEnd(fw.w)
}

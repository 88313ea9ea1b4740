// Package detection implements the request/response link to the perception
// service: a framed JPEG goes out, an unframed decimal text answer comes
// back.
package detection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"turret-ctrl/internal/state"
)

// DefaultSentinel is the wire value for "no target".
const DefaultSentinel = 69420

// ResponseBufferSize is the largest response read in one go.
const ResponseBufferSize = 1024

// ErrProtocol marks a malformed response. It is recoverable: the caller
// treats the sample as Invalid and continues.
var ErrProtocol = errors.New("detection: malformed response")

// Result is the outcome of one detection exchange.
type Result struct {
	Found  bool
	Bounds state.Bounds
}

// NoDetection is the Result for the sentinel response.
var NoDetection = Result{}

// Target converts the result to the shared-state representation.
func (r Result) Target(imageWidth int) state.Target {
	if !r.Found {
		return state.Target{}
	}
	return state.Target{
		Bounds:   state.Valid(r.Bounds),
		YawError: state.Valid(r.Bounds.YawError(imageWidth)),
	}
}

// ParseResponse decodes "<sentinel>", "<sentinel>,<x>" or "<left>,<right>".
func ParseResponse(text string, sentinel int64) (Result, error) {
	text = strings.TrimSpace(text)
	parts := strings.Split(text, ",")
	if len(parts) > 2 {
		return Result{}, fmt.Errorf("%w: %d fields in %q", ErrProtocol, len(parts), text)
	}
	vals := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %q", ErrProtocol, text)
		}
		vals[i] = v
	}
	if vals[0] == sentinel {
		return NoDetection, nil
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("%w: single value %q is not the sentinel", ErrProtocol, text)
	}
	return Result{Found: true, Bounds: state.Bounds{Left: int32(vals[0]), Right: int32(vals[1])}}, nil
}

// FormatResponse encodes the selection policy for a set of detected
// boxes: none is "<sentinel>", exactly one is "<left>,<right>", more than
// one is "<sentinel>,<sentinel>".
func FormatResponse(boxes []state.Bounds, sentinel int64) string {
	switch len(boxes) {
	case 0:
		return strconv.FormatInt(sentinel, 10)
	case 1:
		return fmt.Sprintf("%d,%d", boxes[0].Left, boxes[0].Right)
	default:
		return fmt.Sprintf("%d,%d", sentinel, sentinel)
	}
}

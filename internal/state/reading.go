package state

import "fmt"

// Reading is a measurement that may be missing. The zero value is Invalid.
type Reading[T any] struct {
	value T
	ok    bool
}

// Valid wraps a legitimate measurement.
func Valid[T any](v T) Reading[T] {
	return Reading[T]{value: v, ok: true}
}

// Invalid returns the missing-measurement marker for T.
func Invalid[T any]() Reading[T] {
	return Reading[T]{}
}

// Get returns the value and whether it is valid.
func (r Reading[T]) Get() (T, bool) {
	return r.value, r.ok
}

// Valid reports whether the reading holds a measurement.
func (r Reading[T]) Valid() bool {
	return r.ok
}

func (r Reading[T]) String() string {
	if !r.ok {
		return "invalid"
	}
	return fmt.Sprint(r.value)
}

// Bounds are the pixel x-bounds of the single tracked target.
type Bounds struct {
	Left  int32 `json:"left"`
	Right int32 `json:"right"`
}

// Center returns the horizontal centroid of the box.
func (b Bounds) Center() int32 {
	return int32((int64(b.Left) + int64(b.Right)) / 2)
}

// YawError returns the offset of the box centroid from the image center.
func (b Bounds) YawError(imageWidth int) int32 {
	return b.Center() - int32(imageWidth/2)
}

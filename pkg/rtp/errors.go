package rtp

import "errors"

var (
	// ErrValidation indicates malformed or inconsistent caller input: a
	// nil/zero-length buffer, a timestamp mismatch when adding a packet to a
	// frame, an unsupported H.264 NAL type, or Opus TOC count 3.
	ErrValidation = errors.New("rtp: validation failed")

	// ErrMalformed indicates the payload itself is broken: a truncated
	// aggregation length, an FU fragment with no preceding start, or a bit
	// reader running past the end of its buffer.
	ErrMalformed = errors.New("rtp: malformed payload")

	// ErrOverflow indicates composing a unit into a Media buffer would
	// exceed that buffer's capacity.
	ErrOverflow = errors.New("rtp: output buffer overflow")

	// ErrNoResources indicates an allocation failed.
	ErrNoResources = errors.New("rtp: allocation failed")
)

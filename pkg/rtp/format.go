package rtp

import "fmt"

// Codec selects the payload format a Depacketizer reassembles.
type Codec int

const (
	// CodecH264 selects RFC 6184 H.264 depacketization.
	CodecH264 Codec = iota
	// CodecOpus selects RFC 7587 Opus depacketization.
	CodecOpus
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecOpus:
		return "opus"
	default:
		return fmt.Sprintf("Codec(%d)", int(c))
	}
}

// Composer accumulates one Frame's worth of packet payloads into a
// Media buffer. A new Composer is created per Frame.reassemble call;
// it is not shared across frames because fragmentation state (FU-A/FU-B
// continuation, STAP SEI injection) is scoped to a single access unit.
type Composer interface {
	// AddUnit composes one packet's payload into m, appending at
	// m.Length and advancing it. Order matters: packets must be fed in
	// ascending sequence order.
	AddUnit(m *Media, payload []byte) error

	// FrameType returns the codec-specific frame-type byte observed so
	// far (0 if the codec has no notion of frame type, as with Opus).
	FrameType() byte
}

// Format is the per-codec vtable: the completeness predicates used by
// Frame, and the Composer factory used by Frame.reassemble.
type Format interface {
	// FirstUnit reports whether payload is valid as the first packet
	// of an access unit.
	FirstUnit(payload []byte) bool

	// LastUnit reports whether payload is valid as the last packet of
	// an access unit.
	LastUnit(payload []byte) bool

	// Fragmented reports whether payload, taken alone, is an
	// incomplete fragment of a larger unit (so a single-packet frame
	// containing only this payload cannot be complete).
	Fragmented(payload []byte) bool

	// IsAudio reports whether Media produced by this format should be
	// flagged as audio.
	IsAudio() bool

	// NewComposer returns a fresh Composer for one Frame.reassemble
	// call. completed forwards the Frame's completion state (a frame
	// reaped by age arrives with completed=false) so the composer can
	// reflect that in codec-specific framing, e.g. H.264's
	// forbidden_zero_bit on a reconstructed NAL header.
	NewComposer(completed bool, opts ComposerOptions) Composer
}

// ComposerOptions carries the handful of knobs that affect composition
// but aren't part of the RTP wire data itself.
type ComposerOptions struct {
	// Prefix selects NAL-unit framing for H.264; ignored by Opus.
	Prefix Prefix

	// InjectSEITimestamps enables appending a user-unregistered SEI
	// NALU carrying a wall-clock timestamp after every PPS. Ignored by
	// Opus.
	InjectSEITimestamps bool

	// Context carries the codec context persisted from this stream's
	// prior frame (*H264Context or *OpusContext), or nil for the first
	// frame. The H.264 Composer continues updating it in place; the Opus
	// Composer does not read it and stores a new *OpusContext on Media.
	Context interface{}
}

// FormatFor returns the vtable for codec, or ErrValidation if codec is
// not one of the supported values.
func FormatFor(codec Codec) (Format, error) {
	switch codec {
	case CodecH264:
		return h264Format{}, nil
	case CodecOpus:
		return opusFormat{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported codec %v", ErrValidation, codec)
	}
}

package rtp

import "time"

// Prefix selects how composed H.264 NAL units are framed in a Media
// buffer. Opus ignores it.
type Prefix int

const (
	// PrefixNone emits no framing; NAL units are simply concatenated.
	PrefixNone Prefix = iota
	// PrefixAnnexB emits a 4-byte 00 00 00 01 start code before each NALU.
	PrefixAnnexB
	// PrefixAVCC emits a 4-byte big-endian length before each NALU.
	PrefixAVCC
)

func (p Prefix) String() string {
	switch p {
	case PrefixNone:
		return "none"
	case PrefixAnnexB:
		return "annexb"
	case PrefixAVCC:
		return "avcc"
	default:
		return "unknown"
	}
}

// DefaultMediaCapacity is the buffer size used for a Media instance
// when the caller has no tighter bound in mind.
const DefaultMediaCapacity = 512 * 1024

// SPSInfo holds the H.264 sequence-parameter-set fields a
// reassembled stream's context tracks.
type SPSInfo struct {
	ProfileIDC                     uint8
	LevelIDC                       uint8
	SeqParameterSetID              uint32
	Log2MaxFrameNumMinus4          uint32
	PicOrderCntType                uint32
	Log2MaxPicOrderCntLsbMinus4    uint32
	NumRefFrames                   uint32
	GapsInFrameNumValueAllowedFlag bool
	PicWidthInMbsMinus1            uint32
	PicHeightInMapUnitsMinus1      uint32
	FrameMbsOnlyFlag               bool
	Direct8x8InferenceFlag         bool
	FrameCroppingFlag              bool
	VUIParametersPresentFlag       bool
	RBSPStopOneBit                 bool
}

// SliceHeaderInfo holds the H.264 slice-header fields decoded from an
// IDR or non-IDR coded-slice NALU.
type SliceHeaderInfo struct {
	FirstMBInSlice    uint32
	SliceType         uint32
	PicParameterSetID uint32
	FrameNum          uint32
}

// H264Context is the decoded codec context carried on a Media frame
// when its codec is CodecH264. Slice is the zero value until a type 1
// or 5 NALU has been observed and parsed.
type H264Context struct {
	HaveSPS bool
	SPS     SPSInfo

	HaveSlice bool
	Slice     SliceHeaderInfo
}

// OpusContext is the opaque context Opus carries; it records only the
// most recently observed TOC byte, since Opus has no cross-packet
// parameter set to track.
type OpusContext struct {
	LastTOC byte
}

// Media is the output artifact of Frame.reassemble: a reusable,
// fixed-capacity buffer plus the metadata describing what was written
// into it.
type Media struct {
	// Buffer backs Length bytes of composed codec payload. Its
	// capacity is fixed at creation time.
	Buffer []byte

	// Length is how much of Buffer is currently filled.
	Length int

	// Prefix is the NAL-unit framing mode used when filling Buffer.
	// Ignored for Opus.
	Prefix Prefix

	// Type is the codec-specific frame-type byte (for H.264, the NAL
	// unit type of the first type 1 or type 5 slice composed, else 0;
	// always 0 for Opus).
	Type byte

	// IsAudio mirrors the producing codec: false for H.264, true for Opus.
	IsAudio bool

	// RTPTime is the RTP timestamp the source Frame was keyed on.
	RTPTime uint32

	// CreatedAt is propagated from the source Frame's creation time.
	CreatedAt time.Time

	// HeadSeq and TailSeq are the first and last RTP sequence numbers
	// covered by this Media frame, in circular order.
	HeadSeq uint16
	TailSeq uint16

	// UnitCount is the number of packets drained into this Media.
	UnitCount int

	// Context is either *H264Context or *OpusContext, matching the
	// codec that produced this Media.
	Context interface{}
}

// NewMedia allocates a Media with the given fixed capacity and NAL
// framing mode. A non-positive capacity falls back to
// DefaultMediaCapacity.
func NewMedia(capacity int, prefix Prefix) *Media {
	if capacity <= 0 {
		capacity = DefaultMediaCapacity
	}
	return &Media{
		Buffer: make([]byte, capacity),
		Prefix: prefix,
	}
}

// reset prepares m for reuse by a new Frame.reassemble call, restoring
// its full capacity as available space without reallocating Buffer.
func (m *Media) reset() {
	m.Length = 0
	m.Type = 0
	m.IsAudio = false
	m.RTPTime = 0
	m.CreatedAt = time.Time{}
	m.HeadSeq = 0
	m.TailSeq = 0
	m.UnitCount = 0
	m.Context = nil
}

// append writes b at m.Length, advancing it, or fails with ErrOverflow
// if doing so would reach or exceed m.Buffer's capacity. The bound is
// strict: a write landing exactly at capacity still fails rather than
// filling the buffer to its last byte, so there is always at least one
// byte of headroom below limit.
func (m *Media) append(b []byte) error {
	if m.Length+len(b) >= len(m.Buffer) {
		return ErrOverflow
	}
	copy(m.Buffer[m.Length:], b)
	m.Length += len(b)
	return nil
}

// reserve advances m.Length by n zero bytes, returning the offset the
// caller can later backpatch (used for AVCC length prefixes, which are
// only known once the NALU body has been written). Like append, the
// bound is strict: reserving exactly to capacity fails.
func (m *Media) reserve(n int) (int, error) {
	if m.Length+n >= len(m.Buffer) {
		return 0, ErrOverflow
	}
	offset := m.Length
	m.Length += n
	return offset, nil
}

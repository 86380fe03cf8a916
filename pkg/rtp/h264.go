package rtp

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/nalstream/rtpdepacketizer/pkg/logger"
)

// H.264 NAL unit types, RFC 6184 §5.2.
const (
	nalTypeSliceNonIDR = 1
	nalTypeSEI         = 6
	nalTypeSPS         = 7
	nalTypePPS         = 8
	nalTypeSliceIDR    = 5
	nalTypeSTAPAMin    = 24
	nalTypeSTAPBMax    = 27
	nalTypeFUAMin      = 28
	nalTypeFUBMax      = 29
)

// seiTimestampUUID identifies the user-data-unregistered SEI payload
// this depacketizer injects after every PPS when timestamp injection
// is enabled.
var seiTimestampUUID = [16]byte{
	0x76, 0x27, 0xDF, 0xE0, 0x49, 0x24, 0x40, 0x84,
	0xB9, 0x8D, 0xF2, 0xC9, 0x44, 0x4B, 0x8E, 0x98,
}

func h264NALType(payload []byte) byte {
	return payload[0] & 0x1F
}

// nalRefIDCFor maps a reconstructed FU-A/FU-B NALU type to the 2-bit
// nal_ref_idc carried in the NAL header this depacketizer synthesizes.
func nalRefIDCFor(nalType byte) byte {
	switch nalType {
	case nalTypeSliceIDR, nalTypeSPS, nalTypePPS:
		return 3
	case nalTypeSliceNonIDR, 2:
		return 2
	case 3, 4:
		return 1
	default:
		return 0
	}
}

// h264Format implements Format for RFC 6184 H.264.
type h264Format struct{}

func (h264Format) FirstUnit(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	switch t := h264NALType(payload); {
	case t >= nalTypeSliceNonIDR && t <= nalTypePPS:
		return true
	case t >= nalTypeSTAPAMin && t <= nalTypeSTAPBMax:
		return true
	case t >= nalTypeFUAMin && t <= nalTypeFUBMax:
		return len(payload) >= 2 && (payload[1]>>7)&0x01 == 1
	default:
		return false
	}
}

func (h264Format) LastUnit(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	switch t := h264NALType(payload); {
	case t >= nalTypeSliceNonIDR && t <= nalTypePPS:
		return true
	case t >= nalTypeSTAPAMin && t <= nalTypeSTAPBMax:
		return true
	case t >= nalTypeFUAMin && t <= nalTypeFUBMax:
		return len(payload) >= 2 && (payload[1]>>6)&0x01 == 1
	default:
		return false
	}
}

func (h264Format) Fragmented(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	t := h264NALType(payload)
	if t < nalTypeFUAMin || t > nalTypeFUBMax {
		return false
	}
	if len(payload) < 2 {
		return true
	}
	start := (payload[1] >> 7) & 0x01
	end := (payload[1] >> 6) & 0x01
	return !(start == 1 && end == 1)
}

func (h264Format) IsAudio() bool { return false }

func (h264Format) NewComposer(completed bool, opts ComposerOptions) Composer {
	ctx, _ := opts.Context.(*H264Context)
	if ctx == nil {
		ctx = &H264Context{}
	}
	return &h264Composer{
		prefix:      opts.Prefix,
		injectSEI:   opts.InjectSEITimestamps,
		completed:   completed,
		ctx:         ctx,
		fuBackpatch: -1,
	}
}

// h264Composer composes one access unit's worth of RTP payloads into a
// Media buffer: it expands aggregation packets, rejoins fragmentation
// units, optionally injects SEI timestamps after each PPS, and parses
// SPS/slice-header fields from the NAL units it writes.
type h264Composer struct {
	prefix    Prefix
	injectSEI bool
	completed bool
	ctx       *H264Context

	sawFirstNAL bool
	frameType   byte

	fuActive    bool
	fuBackpatch int
	fuNALStart  int
	fuNALType   byte
}

func (c *h264Composer) FrameType() byte { return c.frameType }

func (c *h264Composer) AddUnit(m *Media, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty H.264 payload", ErrValidation)
	}
	m.Context = c.ctx

	switch t := h264NALType(payload); {
	case t >= nalTypeSliceNonIDR && t <= nalTypePPS:
		return c.addSingle(m, payload)
	case t >= nalTypeSTAPAMin && t <= nalTypeSTAPBMax:
		return c.addAggregate(m, payload)
	case t >= nalTypeFUAMin && t <= nalTypeFUBMax:
		if len(payload) < 2 {
			return fmt.Errorf("%w: FU payload shorter than 2-byte prefix", ErrMalformed)
		}
		return c.addFragment(m, payload)
	default:
		logger.UnsupportedNALType(t)
		return fmt.Errorf("%w: unsupported NAL unit type %d", ErrValidation, t)
	}
}

// emitPrefix writes the configured NAL framing and returns the offset
// to backpatch with the unit's byte length (AVCC only); -1 means no
// backpatch is needed.
func (c *h264Composer) emitPrefix(m *Media) (int, error) {
	switch c.prefix {
	case PrefixAnnexB:
		return -1, m.append([]byte{0x00, 0x00, 0x00, 0x01})
	case PrefixAVCC:
		return m.reserve(4)
	default:
		return -1, nil
	}
}

func (c *h264Composer) backpatchLength(m *Media, offset, length int) {
	if offset < 0 {
		return
	}
	binary.BigEndian.PutUint32(m.Buffer[offset:offset+4], uint32(length))
}

func (c *h264Composer) addSingle(m *Media, payload []byte) error {
	if c.fuActive {
		return fmt.Errorf("%w: single NAL unit arrived before FU reassembly ended", ErrMalformed)
	}
	backpatch, err := c.emitPrefix(m)
	if err != nil {
		return err
	}
	nalStart := m.Length
	if err := m.append(payload); err != nil {
		return err
	}
	c.backpatchLength(m, backpatch, len(payload))
	return c.onNALUnit(m, h264NALType(payload), nalStart, m.Length)
}

// addAggregate expands STAP-A, STAP-B, MTAP16, and MTAP24 packets
// (NAL types 24-27) uniformly as a sequence of (len:uint16be, nalu)
// tuples following the one-byte aggregation header.
func (c *h264Composer) addAggregate(m *Media, payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("%w: aggregation payload shorter than header plus one length field", ErrMalformed)
	}
	offset := 1
	for offset < len(payload) {
		if offset+2 > len(payload) {
			return fmt.Errorf("%w: truncated aggregation length field", ErrMalformed)
		}
		naluLen := int(binary.BigEndian.Uint16(payload[offset : offset+2]))
		offset += 2
		if offset+naluLen > len(payload) {
			return fmt.Errorf("%w: aggregated NALU runs past packet end", ErrMalformed)
		}
		nalu := payload[offset : offset+naluLen]
		offset += naluLen

		if len(nalu) == 0 {
			continue
		}

		backpatch, err := c.emitPrefix(m)
		if err != nil {
			return err
		}
		nalStart := m.Length
		if err := m.append(nalu); err != nil {
			return err
		}
		c.backpatchLength(m, backpatch, len(nalu))
		if err := c.onNALUnit(m, h264NALType(nalu), nalStart, m.Length); err != nil {
			return err
		}
	}
	return nil
}

func (c *h264Composer) addFragment(m *Media, payload []byte) error {
	fuHeader := payload[1]
	start := (fuHeader >> 7) & 0x01
	end := (fuHeader >> 6) & 0x01
	fuType := fuHeader & 0x1F

	if start == 1 {
		backpatch, err := c.emitPrefix(m)
		if err != nil {
			return err
		}
		nalStart := m.Length

		var forbidden byte
		if !c.completed {
			forbidden = 1
		}
		header := forbidden<<7 | nalRefIDCFor(fuType)<<5 | fuType
		if err := m.append([]byte{header}); err != nil {
			return err
		}
		if len(payload) > 2 {
			if err := m.append(payload[2:]); err != nil {
				return err
			}
		}

		c.fuActive = true
		c.fuBackpatch = backpatch
		c.fuNALStart = nalStart
		c.fuNALType = fuType
	} else {
		if !c.fuActive {
			return fmt.Errorf("%w: FU fragment without a preceding start fragment", ErrMalformed)
		}
		if len(payload) > 2 {
			if err := m.append(payload[2:]); err != nil {
				return err
			}
		}
	}

	if end == 1 {
		c.fuActive = false
		c.backpatchLength(m, c.fuBackpatch, m.Length-c.fuNALStart)
		return c.onNALUnit(m, c.fuNALType, c.fuNALStart, m.Length)
	}
	return nil
}

// onNALUnit runs after a complete NAL unit (header byte through the
// last RBSP byte) has been written to m.Buffer[start:end]. It tracks
// the frame's reported type, decodes the SPS when it is the very
// first NALU of the access unit, decodes slice headers for coded
// slices, and injects an SEI timestamp after every PPS when enabled.
func (c *h264Composer) onNALUnit(m *Media, nalType byte, start, end int) error {
	isFirst := !c.sawFirstNAL
	c.sawFirstNAL = true

	if nalType == nalTypeSliceNonIDR || nalType == nalTypeSliceIDR {
		if c.frameType == 0 {
			c.frameType = nalType
		}
		if err := c.decodeSliceHeader(m.Buffer[start:end]); err != nil {
			return err
		}
	}

	if nalType == nalTypeSPS && isFirst {
		if err := c.decodeSPS(m.Buffer[start:end]); err != nil {
			return err
		}
	}

	if nalType == nalTypePPS && c.injectSEI {
		if err := c.appendSEITimestamp(m); err != nil {
			return err
		}
	}

	return nil
}

func (c *h264Composer) appendSEITimestamp(m *Media) error {
	backpatch, err := c.emitPrefix(m)
	if err != nil {
		return err
	}
	nalu := buildSEITimestampNALU(time.Now())
	if err := m.append(nalu); err != nil {
		return err
	}
	c.backpatchLength(m, backpatch, len(nalu))
	return nil
}

// buildSEITimestampNALU builds a user-data-unregistered SEI NALU
// carrying now as big-endian Unix microseconds.
func buildSEITimestampNALU(now time.Time) []byte {
	buf := make([]byte, 0, 3+16+8+1)
	buf = append(buf, 0x06)       // NAL header: forbidden=0, nal_ref_idc=0, type=6 (SEI)
	buf = append(buf, 0x05)       // payload type: user data unregistered
	buf = append(buf, 24)         // payload size: 16-byte UUID + 8-byte timestamp
	buf = append(buf, seiTimestampUUID[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.UnixMicro()))
	buf = append(buf, ts[:]...)
	buf = append(buf, 0xFF) // trailing byte
	return buf
}

// profileSkipsSeqParameterSetID holds the profile_idc values for which
// SPS decoding skips the seq_parameter_set_id read (and the
// high-profile chroma-format block along with it). Each value appears
// once. The set should not be treated as a reference for how many high
// profiles actually share this layout — consult the H.264 spec
// directly for that.
var profileSkipsSeqParameterSetID = map[uint8]bool{
	100: true, 110: true, 122: true, 244: true, 44: true,
	83: true, 86: true, 118: true, 128: true, 138: true, 144: true,
}

// decodeSPS parses the sequence-parameter-set fields through
// rbsp_stop_one_bit, mutating nal in place to force
// gaps_in_frame_num_value_allowed_flag to 1. nal is a slice of the
// Media buffer the caller already wrote this NALU's bytes into, not
// the original RTP payload — the mutation must land in the outgoing
// bitstream.
func (c *h264Composer) decodeSPS(nal []byte) error {
	r := newBitReader(nal)

	if _, err := r.getBits(1); err != nil { // forbidden_zero_bit
		return err
	}
	if _, err := r.getBits(2); err != nil { // nal_ref_idc
		return err
	}
	if _, err := r.getBits(5); err != nil { // nal_unit_type
		return err
	}
	profileIDC, err := r.getBits(8)
	if err != nil {
		return err
	}
	if _, err := r.getBits(4); err != nil { // four constraint flags
		return err
	}
	if _, err := r.getBits(4); err != nil { // reserved
		return err
	}
	levelIDC, err := r.getBits(8)
	if err != nil {
		return err
	}

	var spsID uint32
	if !profileSkipsSeqParameterSetID[uint8(profileIDC)] {
		if spsID, err = r.ue(); err != nil {
			return err
		}
	}

	log2MaxFrameNumMinus4, err := r.ue()
	if err != nil {
		return err
	}

	picOrderCntType, err := r.ue()
	if err != nil {
		return err
	}

	var log2MaxPicOrderCntLsbMinus4 uint32
	if picOrderCntType == 0 {
		if log2MaxPicOrderCntLsbMinus4, err = r.ue(); err != nil {
			return err
		}
	} else {
		if _, err := r.getBits(1); err != nil { // delta_pic_order_always_zero_flag
			return err
		}
		if _, err := r.se(); err != nil { // offset_for_non_ref_pic
			return err
		}
		if _, err := r.se(); err != nil { // offset_for_top_to_bottom_field
			return err
		}
		numRefFramesInCycle, err := r.ue()
		if err != nil {
			return err
		}
		for i := uint32(0); i < numRefFramesInCycle; i++ {
			if _, err := r.se(); err != nil {
				return err
			}
		}
	}

	numRefFrames, err := r.ue()
	if err != nil {
		return err
	}

	// Force gaps_in_frame_num_value_allowed_flag to 1 in the outgoing
	// bitstream. setBit both mutates and advances past the bit, so no
	// separate read is needed to continue parsing past it.
	if err := r.setBit(1); err != nil {
		return err
	}

	picWidthInMbsMinus1, err := r.ue()
	if err != nil {
		return err
	}
	picHeightInMapUnitsMinus1, err := r.ue()
	if err != nil {
		return err
	}
	frameMbsOnlyFlag, err := r.getBits(1)
	if err != nil {
		return err
	}
	direct8x8InferenceFlag, err := r.getBits(1)
	if err != nil {
		return err
	}
	frameCroppingFlag, err := r.getBits(1)
	if err != nil {
		return err
	}
	vuiParametersPresentFlag, err := r.getBits(1)
	if err != nil {
		return err
	}
	rbspStopOneBit, err := r.getBits(1)
	if err != nil {
		return err
	}

	c.ctx.HaveSPS = true
	c.ctx.SPS = SPSInfo{
		ProfileIDC:                     uint8(profileIDC),
		LevelIDC:                       uint8(levelIDC),
		SeqParameterSetID:              spsID,
		Log2MaxFrameNumMinus4:          log2MaxFrameNumMinus4,
		PicOrderCntType:                picOrderCntType,
		Log2MaxPicOrderCntLsbMinus4:    log2MaxPicOrderCntLsbMinus4,
		NumRefFrames:                   numRefFrames,
		GapsInFrameNumValueAllowedFlag: true,
		PicWidthInMbsMinus1:            picWidthInMbsMinus1,
		PicHeightInMapUnitsMinus1:      picHeightInMapUnitsMinus1,
		FrameMbsOnlyFlag:               frameMbsOnlyFlag == 1,
		Direct8x8InferenceFlag:         direct8x8InferenceFlag == 1,
		FrameCroppingFlag:              frameCroppingFlag == 1,
		VUIParametersPresentFlag:       vuiParametersPresentFlag == 1,
		RBSPStopOneBit:                 rbspStopOneBit == 1,
	}
	return nil
}

// decodeSliceHeader parses the leading slice-header fields from a type
// 1 or 5 NALU. frame_num's width comes from the SPS belonging to the
// same stream context, defaulting to 4 bits (i.e.
// log2_max_frame_num_minus4 == 0) when no SPS has been seen yet.
func (c *h264Composer) decodeSliceHeader(nal []byte) error {
	r := newBitReader(nal)

	if _, err := r.getBits(1); err != nil { // forbidden_zero_bit
		return err
	}
	if _, err := r.getBits(2); err != nil { // nal_ref_idc
		return err
	}
	if _, err := r.getBits(5); err != nil { // nal_unit_type
		return err
	}

	firstMB, err := r.ue()
	if err != nil {
		return err
	}
	sliceType, err := r.ue()
	if err != nil {
		return err
	}
	ppsID, err := r.ue()
	if err != nil {
		return err
	}

	frameNumBits := 4
	if c.ctx.HaveSPS {
		frameNumBits = int(c.ctx.SPS.Log2MaxFrameNumMinus4) + 4
	}
	frameNum, err := r.getBits(frameNumBits)
	if err != nil {
		return err
	}

	c.ctx.HaveSlice = true
	c.ctx.Slice = SliceHeaderInfo{
		FirstMBInSlice:    firstMB,
		SliceType:         sliceType,
		PicParameterSetID: ppsID,
		FrameNum:          frameNum,
	}
	return nil
}

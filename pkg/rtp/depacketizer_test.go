package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDepacketizer_RejectsNonPositiveDurations(t *testing.T) {
	_, err := NewDepacketizer(CodecH264, 0, time.Second)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewDepacketizer(CodecH264, time.Second, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDepacketizer_SinglePacketFrame(t *testing.T) {
	d, err := NewDepacketizer(CodecH264, 5*time.Second, 200*time.Millisecond)
	require.NoError(t, err)

	data := append(rtpHeader(true, 96, 10, 100, 1), 0x61, 0xAA, 0xBB)
	pkt, err := NewPacket(data, false, false, time.Now())
	require.NoError(t, err)

	ready, err := d.AddPacket(pkt)
	require.NoError(t, err)
	assert.True(t, ready)

	media := NewMedia(0, PrefixAnnexB)
	ok, err := d.GetFrame(media)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x61, 0xAA, 0xBB}, media.Buffer[:media.Length])

	ok, err = d.GetFrame(media)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDepacketizer_MultipleTimestampsOrderedByTimestamp(t *testing.T) {
	d, err := NewDepacketizer(CodecH264, 5*time.Second, 200*time.Millisecond)
	require.NoError(t, err)

	for _, ts := range []uint32{300, 100, 200} {
		data := append(rtpHeader(true, 96, uint16(ts), ts, 1), 0x61, 0xE0, byte(ts))
		pkt, err := NewPacket(data, false, false, time.Now())
		require.NoError(t, err)
		_, err = d.AddPacket(pkt)
		require.NoError(t, err)
	}

	var seen []uint32
	media := NewMedia(0, PrefixNone)
	for {
		ok, err := d.GetFrame(media)
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, media.RTPTime)
	}

	assert.Equal(t, []uint32{100, 200, 300}, seen)
}

// S5 — a gapped frame is reaped (not completed) after reap_us elapses.
func TestDepacketizer_ReapPromotesIncompleteFrame(t *testing.T) {
	d, err := NewDepacketizer(CodecH264, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, err)

	mk := func(seq uint16, ts uint32, marker bool, fu byte) *Packet {
		data := append(rtpHeader(marker, 96, seq, ts, 1), 0x7C, fu, byte(seq))
		pkt, err := NewPacket(data, false, false, time.Now())
		require.NoError(t, err)
		return pkt
	}

	_, err = d.AddPacket(mk(70, 300, false, 0x85)) // start
	require.NoError(t, err)
	ready, err := d.AddPacket(mk(72, 300, true, 0x45)) // end, seq 71 missing
	require.NoError(t, err)
	assert.False(t, ready, "gapped frame should not be immediately ready")

	time.Sleep(15 * time.Millisecond)

	// Any further add_packet call sweeps the map and reaps the gapped frame.
	other := mk(1, 999, true, 0xC5)
	ready, err = d.AddPacket(other)
	require.NoError(t, err)
	assert.True(t, ready)

	media := NewMedia(0, PrefixNone)
	ok, err := d.GetFrame(media)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(300), media.RTPTime)
	// forbidden_zero_bit must be set since this frame's completion was forced by reap.
	assert.Equal(t, byte(0x80|nalRefIDCFor(5)<<5|5), media.Buffer[0])
}

// Never-completing frames are picked up by the reap sweep before the
// timeout sweep ever needs to run, since reap here is shorter than
// timeout: reap promotes the frame to the completion queue well before
// timeout would otherwise discard it outright.
func TestDepacketizer_NeverCompletingFrameStillSurfaces(t *testing.T) {
	d, err := NewDepacketizer(CodecH264, 10*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)

	mk := func(seq uint16, ts uint32, marker bool) *Packet {
		data := append(rtpHeader(marker, 96, seq, ts, 1), 0x7C, 0x85, byte(seq))
		pkt, err := NewPacket(data, false, false, time.Now())
		require.NoError(t, err)
		return pkt
	}

	_, err = d.AddPacket(mk(1, 500, false)) // never completes: no end fragment ever arrives
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// Trigger enough add_packet calls for both the reap sweep (promotes to
	// queue at reap_us) and the timeout sweep (would discard if still in
	// the map) to run; since reap_us < timeout_us here the frame is
	// promoted to the completion queue well before timeout, so it still
	// surfaces via GetFrame.
	_, err = d.AddPacket(mk(100, 600, true))
	require.NoError(t, err)

	media := NewMedia(0, PrefixNone)
	var sawTS []uint32
	for {
		ok, err := d.GetFrame(media)
		require.NoError(t, err)
		if !ok {
			break
		}
		sawTS = append(sawTS, media.RTPTime)
	}
	assert.Contains(t, sawTS, uint32(500))
}

func TestDepacketizer_ContextPersistsAcrossFrames(t *testing.T) {
	d, err := NewDepacketizer(CodecH264, 5*time.Second, 200*time.Millisecond)
	require.NoError(t, err)

	sps := buildMinimalSPS(t, false)
	data := append(rtpHeader(true, 96, 1, 100, 1), sps...)
	pkt, err := NewPacket(data, false, false, time.Now())
	require.NoError(t, err)
	_, err = d.AddPacket(pkt)
	require.NoError(t, err)

	media := NewMedia(0, PrefixNone)
	ok, err := d.GetFrame(media)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, ok := media.Context.(*H264Context)
	require.True(t, ok)
	assert.True(t, ctx.HaveSPS)

	// A following slice-header-only frame should see frame_num width
	// derived from the persisted SPS context.
	sliceW := newBitWriter()
	sliceW.putBits(1, 0)
	sliceW.putBits(2, 3)
	sliceW.putBits(5, 1) // nal_unit_type = slice non-IDR
	sliceW.putUE(0)      // first_mb_in_slice
	sliceW.putUE(0)      // slice_type
	sliceW.putUE(0)      // pic_parameter_set_id
	sliceW.putBits(4, 5) // frame_num (4 bits, since log2_max_frame_num_minus4=0)
	slice := sliceW.bytes()

	data2 := append(rtpHeader(true, 96, 2, 200, 1), slice...)
	pkt2, err := NewPacket(data2, false, false, time.Now())
	require.NoError(t, err)
	_, err = d.AddPacket(pkt2)
	require.NoError(t, err)

	ok, err = d.GetFrame(media)
	require.NoError(t, err)
	require.True(t, ok)
	ctx2, ok := media.Context.(*H264Context)
	require.True(t, ok)
	assert.True(t, ctx2.HaveSlice)
}

func TestTimestampOrder(t *testing.T) {
	assert.Equal(t, 0, timestampOrder(10, 10))
	assert.Equal(t, -1, timestampOrder(10, 20))
	assert.Equal(t, 1, timestampOrder(20, 10))
	assert.Equal(t, -1, timestampOrder(4294967295, 1))
	assert.Equal(t, 1, timestampOrder(1, 4294967295))
}

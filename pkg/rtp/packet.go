package rtp

import (
	"encoding/binary"
	"fmt"
	"time"
)

const fixedHeaderSize = 12

// Packet owns one RTP datagram. It parses just enough of the fixed
// header to support timestamp grouping and sequence ordering, and
// exposes the payload slice with CSRC list, extension block, and
// padding already stripped.
//
// A Packet is created on ingestion, handed to a Frame by
// Depacketizer.AddPacket, and discarded with that Frame.
type Packet struct {
	Version        uint8
	Padding        bool
	Extension      bool
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32

	// Payload is the RTP payload after CSRC/extension/padding stripping.
	// When the packet was created with duplicate=false, Payload aliases
	// the caller's buffer.
	Payload []byte

	// IsAudio distinguishes Opus packets from H.264 packets when a
	// Depacketizer instance is shared across codecs by a higher layer.
	IsAudio bool

	// Arrival is the time passed to NewPacket for this packet. The
	// Depacketizer's reap and timeout sweeps do not read it; they use
	// the time taken when AddPacket is called.
	Arrival time.Time
}

// NewPacket parses raw bytes into a Packet. If duplicate is true, buf
// is copied so the Packet owns independent memory; otherwise the
// returned Packet's Payload aliases buf and the caller must keep buf
// alive for the Packet's lifetime.
func NewPacket(buf []byte, isAudio bool, duplicate bool, arrival time.Time) (*Packet, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty packet", ErrValidation)
	}
	if duplicate {
		dup := make([]byte, len(buf))
		copy(dup, buf)
		buf = dup
	}
	return parsePacket(buf, isAudio, arrival)
}

func parsePacket(data []byte, isAudio bool, arrival time.Time) (*Packet, error) {
	if len(data) < fixedHeaderSize {
		return nil, fmt.Errorf("%w: packet shorter than fixed header (%d bytes)", ErrValidation, len(data))
	}

	p := &Packet{IsAudio: isAudio, Arrival: arrival}

	p.Version = data[0] >> 6
	p.Padding = (data[0]>>5)&0x01 == 1
	p.Extension = (data[0]>>4)&0x01 == 1
	csrcCount := int(data[0] & 0x0F)

	p.Marker = (data[1]>>7)&0x01 == 1
	p.PayloadType = data[1] & 0x7F

	p.SequenceNumber = binary.BigEndian.Uint16(data[2:4])
	p.Timestamp = binary.BigEndian.Uint32(data[4:8])
	p.SSRC = binary.BigEndian.Uint32(data[8:12])

	offset := fixedHeaderSize + csrcCount*4
	if len(data) < offset {
		return nil, fmt.Errorf("%w: CSRC list runs past end of packet", ErrValidation)
	}

	if p.Extension {
		if len(data) < offset+4 {
			return nil, fmt.Errorf("%w: extension header runs past end of packet", ErrValidation)
		}
		extLen := int(binary.BigEndian.Uint16(data[offset+2:offset+4])) * 4
		offset += 4
		if len(data) < offset+extLen {
			return nil, fmt.Errorf("%w: extension body runs past end of packet", ErrValidation)
		}
		offset += extLen
	}

	payload := data[offset:]
	if p.Padding {
		if len(payload) == 0 {
			return nil, fmt.Errorf("%w: padding flag set on empty payload", ErrValidation)
		}
		padLen := int(payload[len(payload)-1])
		if padLen > len(payload) {
			return nil, fmt.Errorf("%w: padding length %d exceeds payload", ErrValidation, padLen)
		}
		payload = payload[:len(payload)-padLen]
	}

	p.Payload = payload
	return p, nil
}

// SequenceOrder reports the circular ordering of two 16-bit RTP
// sequence numbers: negative if a precedes b, zero if equal, positive
// if a follows b. Wrap-around is handled per RFC 1982 serial-number
// arithmetic: when the raw difference exceeds half the sequence
// space, its sign is inverted.
func SequenceOrder(a, b uint16) int {
	diff := int32(a) - int32(b)
	if diff > 1<<15 {
		diff -= 1 << 16
	} else if diff < -(1 << 15) {
		diff += 1 << 16
	}
	switch {
	case diff < 0:
		return -1
	case diff > 0:
		return 1
	default:
		return 0
	}
}

// sequenceSpan returns the forward circular distance from head to
// tail, i.e. how many increments of head (mod 2^16) reach tail.
func sequenceSpan(head, tail uint16) uint16 {
	return tail - head
}

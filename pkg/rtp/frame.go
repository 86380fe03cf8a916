package rtp

import (
	"fmt"
	"sort"
	"time"
)

// Frame groups the RTP packets that share one 32-bit RTP timestamp,
// i.e. one access unit. It tracks completeness as packets arrive and,
// once complete (or reaped by age), hands its packets to a Composer in
// sequence order.
type Frame struct {
	Timestamp uint32
	Codec     Codec
	CreatedAt time.Time

	packets    []*Packet
	markerSeen bool
	completed  bool
	sorted     bool

	format Format
}

// newFrame creates an empty Frame for the given timestamp, recording
// the monotonic creation time used for reap/timeout comparisons.
func newFrame(timestamp uint32, codec Codec, format Format, createdAt time.Time) *Frame {
	return &Frame{
		Timestamp: timestamp,
		Codec:     codec,
		CreatedAt: createdAt,
		format:    format,
	}
}

// Completed reports whether the completeness check has succeeded for
// this Frame. A Frame the Depacketizer reaps after reap_us without
// passing that check still reports false.
func (f *Frame) Completed() bool { return f.completed }

// UnitCount is the number of packets currently held by this Frame.
func (f *Frame) UnitCount() int { return len(f.packets) }

// AddPacket appends pkt to the frame, sorts and checks completeness
// once the marker bit or the codec's LastUnit predicate fires, and
// reports the frame's completed state after the call.
//
// AddPacket rejects pkt with ErrValidation if its timestamp does not
// match f.Timestamp; the caller retains ownership of pkt on failure,
// since a Frame only owns packets it accepted.
func (f *Frame) AddPacket(pkt *Packet) (bool, error) {
	if pkt.Timestamp != f.Timestamp {
		return f.completed, fmt.Errorf("%w: packet timestamp %d does not match frame timestamp %d", ErrValidation, pkt.Timestamp, f.Timestamp)
	}

	f.packets = append(f.packets, pkt)
	f.sorted = false

	if pkt.Marker || f.format.LastUnit(pkt.Payload) {
		f.markerSeen = true
		f.sortPackets()
		f.completed = f.checkCompleteness()
	}

	return f.completed, nil
}

// sortPackets orders the packet list ascending by RTP sequence number
// under 16-bit circular comparison. It sorts again only if a packet has
// been added since the last sort: AddPacket calls it whenever the
// marker bit or LastUnit fires, and reassemble calls it before draining.
func (f *Frame) sortPackets() {
	if f.sorted {
		return
	}
	sort.SliceStable(f.packets, func(i, j int) bool {
		return SequenceOrder(f.packets[i].SequenceNumber, f.packets[j].SequenceNumber) < 0
	})
	f.sorted = true
}

// checkCompleteness reports whether the frame's packets form one
// complete access unit: the first packet must satisfy FirstUnit, the
// last must satisfy LastUnit, and (when there is more than one packet)
// the sequence run from head to tail must be contiguous with no gaps.
// Contiguity tracking uses an explicit "started" flag rather than
// overloading zero as a sentinel, so a true first sequence of 0 is
// handled correctly.
func (f *Frame) checkCompleteness() bool {
	if !f.markerSeen || len(f.packets) == 0 {
		return false
	}

	head := f.packets[0]
	tail := f.packets[len(f.packets)-1]

	if !f.format.FirstUnit(head.Payload) {
		return false
	}
	if !f.format.LastUnit(tail.Payload) {
		return false
	}

	if head == tail {
		return !f.format.Fragmented(head.Payload)
	}

	started := false
	var prev uint16
	for _, pkt := range f.packets {
		if !started {
			prev = pkt.SequenceNumber
			started = true
			continue
		}
		if pkt.SequenceNumber != prev+1 {
			return false
		}
		prev = pkt.SequenceNumber
	}
	return prev == tail.SequenceNumber
}

// reassemble drains f's packets head-to-tail into media via a fresh
// Composer, recording head/tail sequence, unit count, and the other
// frame metadata Media carries. completed is forwarded separately
// from f.completed because a reaped Frame is reassembled with
// completed=false even though its packet list may be non-empty.
func (f *Frame) reassemble(media *Media, completed bool, opts ComposerOptions) error {
	media.reset()

	if len(f.packets) == 0 {
		return fmt.Errorf("%w: frame has no packets to reassemble", ErrValidation)
	}
	f.sortPackets()

	composer := f.format.NewComposer(completed, opts)

	media.Prefix = opts.Prefix
	media.IsAudio = f.format.IsAudio()
	media.RTPTime = f.Timestamp
	media.CreatedAt = f.CreatedAt
	media.HeadSeq = f.packets[0].SequenceNumber
	media.TailSeq = f.packets[len(f.packets)-1].SequenceNumber

	for _, pkt := range f.packets {
		if err := composer.AddUnit(media, pkt.Payload); err != nil {
			return err
		}
		media.UnitCount++
	}

	media.Type = composer.FrameType()
	return nil
}

// age reports how long it has been since f was created, per the given
// current monotonic time.
func (f *Frame) age(now time.Time) time.Duration {
	return now.Sub(f.CreatedAt)
}

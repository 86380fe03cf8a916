package rtp

import (
	"fmt"
	"sort"
	"time"

	"github.com/nalstream/rtpdepacketizer/pkg/logger"
)

// Depacketizer is the top-level, single-threaded, caller-driven
// reassembly pipeline: it buffers packets per RTP timestamp, promotes
// or discards frames on a schedule, and hands completed frames back in
// timestamp order. One instance handles one codec (and, in practice,
// one SSRC); a higher layer fans packets out to per-stream instances.
//
// Depacketizer is not safe for concurrent use. Callers that fan in
// from multiple goroutines must serialize their own calls.
type Depacketizer struct {
	codec  Codec
	format Format

	timeout time.Duration
	reap    time.Duration

	frames map[uint32]*Frame
	queue  []*Frame

	lastEnqueue time.Time
	refresh     time.Time

	ctx interface{}

	// InjectSEITimestamps enables H.264 SEI timestamp injection after
	// every PPS (see pkg/rtp.ComposerOptions); ignored for Opus. Off by
	// default, matching "logging/diagnostics not part of the contract"
	// style opt-in elsewhere in this package.
	InjectSEITimestamps bool
}

// NewDepacketizer creates an empty Depacketizer for codec. timeout and
// reap must both be positive durations: reap is the age after which an
// incomplete Frame is promoted to the completion queue anyway; timeout
// is the age after which a Frame (complete or not) is discarded
// without ever reaching the queue.
func NewDepacketizer(codec Codec, timeout, reap time.Duration) (*Depacketizer, error) {
	format, err := FormatFor(codec)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 || reap <= 0 {
		return nil, fmt.Errorf("%w: timeout and reap durations must be positive", ErrValidation)
	}

	now := time.Now()
	return &Depacketizer{
		codec:       codec,
		format:      format,
		timeout:     timeout,
		reap:        reap,
		frames:      make(map[uint32]*Frame),
		lastEnqueue: now,
		refresh:     now,
	}, nil
}

// AddPacket assigns pkt to the Frame for its RTP timestamp, creating
// one if none exists, then sweeps the frame table for newly-complete
// or reap-expired frames. It reports whether at least one frame is now
// available from GetFrame. Ownership of pkt transfers to the
// Depacketizer in all cases, including failure.
func (d *Depacketizer) AddPacket(pkt *Packet) (bool, error) {
	if pkt == nil {
		return false, fmt.Errorf("%w: nil packet", ErrValidation)
	}

	now := time.Now()

	frame, existed := d.frames[pkt.Timestamp]
	created := false
	if !existed {
		frame = newFrame(pkt.Timestamp, d.codec, d.format, now)
		d.frames[pkt.Timestamp] = frame
		created = true
	}

	_, err := frame.AddPacket(pkt)
	if err != nil {
		if created {
			delete(d.frames, pkt.Timestamp)
		}
		logger.RejectedPacket(pkt.SequenceNumber, pkt.Timestamp, err)
		return !d.queueEmpty(), err
	}

	d.lastEnqueue = now
	d.sweepReap(now)
	d.sweepTimeout(now)

	return !d.queueEmpty(), nil
}

// AddBuffer parses buf into a Packet (copying it, since the caller
// retains buf) and feeds it through AddPacket.
func (d *Depacketizer) AddBuffer(isAudio bool, buf []byte) (bool, error) {
	pkt, err := NewPacket(buf, isAudio, true, time.Now())
	if err != nil {
		return !d.queueEmpty(), err
	}
	return d.AddPacket(pkt)
}

// sweepReap promotes every Frame that is either completed or older
// than d.reap from the working map into the completion queue, ordered
// ascending by RTP timestamp. It runs on every AddPacket call.
func (d *Depacketizer) sweepReap(now time.Time) {
	for ts, frame := range d.frames {
		if frame.Completed() || frame.age(now) > d.reap {
			delete(d.frames, ts)
			d.enqueueCompleted(frame)
		}
	}
}

// sweepTimeout discards Frames older than d.timeout once d.timeout has
// elapsed since the last sweep, using the enqueue time already
// captured in AddPacket as "now" so the comparison always has a valid
// reference point.
func (d *Depacketizer) sweepTimeout(now time.Time) {
	if now.Sub(d.refresh) <= d.timeout {
		return
	}
	for ts, frame := range d.frames {
		if frame.age(now) > d.timeout {
			delete(d.frames, ts)
		}
	}
	d.refresh = now
}

// enqueueCompleted inserts frame into the completion queue, keeping it
// sorted ascending by RTP timestamp under 32-bit wrap-around
// comparison (timestampOrder), so a stream that runs long enough to
// wrap its RTP clock still orders correctly.
func (d *Depacketizer) enqueueCompleted(frame *Frame) {
	idx := sort.Search(len(d.queue), func(i int) bool {
		return timestampOrder(d.queue[i].Timestamp, frame.Timestamp) >= 0
	})
	d.queue = append(d.queue, nil)
	copy(d.queue[idx+1:], d.queue[idx:])
	d.queue[idx] = frame
}

func (d *Depacketizer) queueEmpty() bool { return len(d.queue) == 0 }

// GetFrame pops the earliest-timestamped completed Frame and
// reassembles it into media, reusing media's buffer. It reports false
// (with a nil error) when the completion queue is empty. The popped
// Frame's codec context is folded back into the Depacketizer's running
// context and passed to the next Frame's Composer. H.264 continues from
// it (SPS fields); Opus ignores it and records a fresh last TOC per
// Frame.
func (d *Depacketizer) GetFrame(media *Media) (bool, error) {
	if media == nil {
		return false, fmt.Errorf("%w: nil media", ErrValidation)
	}
	if d.queueEmpty() {
		return false, nil
	}

	frame := d.queue[0]
	d.queue = d.queue[1:]

	opts := ComposerOptions{
		Prefix:              media.Prefix,
		InjectSEITimestamps: d.InjectSEITimestamps,
		Context:             d.ctx,
	}

	if err := frame.reassemble(media, frame.Completed(), opts); err != nil {
		return false, err
	}

	d.ctx = media.Context
	return true, nil
}

// Close releases the Depacketizer's working set. It is not strictly
// necessary in Go (the GC reclaims the map and queue), but it gives
// callers an unambiguous point to drop a stream.
func (d *Depacketizer) Close() {
	d.frames = nil
	d.queue = nil
	d.ctx = nil
}

// timestampOrder reports the circular ordering of two 32-bit RTP
// timestamps, the same wrap-around arithmetic SequenceOrder uses for
// 16-bit sequence numbers.
func timestampOrder(a, b uint32) int {
	diff := int64(a) - int64(b)
	half := int64(1) << 31
	if diff > half {
		diff -= int64(1) << 32
	} else if diff < -half {
		diff += int64(1) << 32
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

package rtp

import "fmt"

// opusTOCCount extracts the 2-bit frame-count field from an Opus TOC
// byte (RFC 7587 §4.2, RFC 6716 §3.1): config:5, stereo:1, count:2.
func opusTOCCount(toc byte) byte {
	return toc & 0x03
}

// opusFormat implements Format for RFC 7587 Opus. Every RTP packet
// carries one standalone Opus frame (or, for count=3, a self-delimited
// series this depacketizer does not support), so the completeness
// predicates are trivial: every packet both starts and ends its
// access unit, and no packet is ever a fragment on its own.
type opusFormat struct{}

func (opusFormat) FirstUnit(payload []byte) bool { return len(payload) > 0 }
func (opusFormat) LastUnit(payload []byte) bool  { return len(payload) > 0 }
func (opusFormat) Fragmented(payload []byte) bool { return false }
func (opusFormat) IsAudio() bool                  { return true }

func (opusFormat) NewComposer(completed bool, opts ComposerOptions) Composer {
	return &opusComposer{}
}

// opusComposer copies TOC-prefixed Opus payloads verbatim into the
// output Media. There is no cross-packet state: RFC 7587 carries one
// complete Opus packet per RTP packet.
type opusComposer struct {
	lastTOC byte
}

func (c *opusComposer) AddUnit(m *Media, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty Opus payload", ErrValidation)
	}

	count := opusTOCCount(payload[0])
	if count == 3 {
		return fmt.Errorf("%w: Opus TOC count 3 (self-delimited framing) is unsupported", ErrValidation)
	}

	c.lastTOC = payload[0]
	if err := m.append(payload); err != nil {
		return err
	}

	if ctx, ok := m.Context.(*OpusContext); ok && ctx != nil {
		ctx.LastTOC = c.lastTOC
	} else {
		m.Context = &OpusContext{LastTOC: c.lastTOC}
	}
	return nil
}

// FrameType is reserved for future use; Opus has no notion of a
// frame-type byte distinct from its TOC, which is preserved verbatim
// in the output.
func (c *opusComposer) FrameType() byte { return 0 }

// Command rtpdepacketize reads a capture file of length-prefixed RTP
// datagrams and writes the reassembled media frames it produces to an
// output directory. It is a thin driver over pkg/rtp, not part of the
// library's contract.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nalstream/rtpdepacketizer/internal/config"
	"github.com/nalstream/rtpdepacketizer/pkg/logger"
	"github.com/nalstream/rtpdepacketizer/pkg/rtp"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("config error: %v", err))
		os.Exit(1)
	}

	logger.SetLevel(cfg.GetLogLevel())

	runID := uuid.New().String()
	info := color.New(color.FgCyan)
	info.Printf("run %s: codec=%s prefix=%s timeout=%dms reap=%dms\n",
		runID, cfg.Codec, cfg.Prefix, cfg.TimeoutMs, cfg.ReapMs)

	if err := run(cfg, runID); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("run %s failed: %v", runID, errors.Cause(err)))
		os.Exit(1)
	}
}

func run(cfg *config.Config, runID string) error {
	codec, err := cfg.RTPCodec()
	if err != nil {
		return errors.Wrap(err, "resolve codec")
	}
	prefix, err := cfg.RTPPrefix()
	if err != nil {
		return errors.Wrap(err, "resolve prefix")
	}

	d, err := rtp.NewDepacketizer(codec, cfg.Timeout(), cfg.Reap())
	if err != nil {
		return errors.Wrap(err, "create depacketizer")
	}
	d.InjectSEITimestamps = cfg.InjectSEITimestamps
	defer d.Close()

	input, err := openInput(cfg.InputPath)
	if err != nil {
		return errors.Wrap(err, "open input")
	}
	defer input.Close()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	isAudio := codec == rtp.CodecOpus
	media := rtp.NewMedia(rtp.DefaultMediaCapacity, prefix)

	ok := color.New(color.FgGreen)
	frameIndex := 0
	packetIndex := 0

	for {
		buf, err := readRecord(input)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "read capture record")
		}
		packetIndex++

		ready, err := d.AddBuffer(isAudio, buf)
		if err != nil {
			logger.Debug("[run %s] packet %d rejected: %v", runID, packetIndex, err)
			continue
		}
		if !ready {
			continue
		}

		for {
			got, err := d.GetFrame(media)
			if err != nil {
				return errors.Wrap(err, "reassemble frame")
			}
			if !got {
				break
			}
			if err := writeFrame(cfg.OutputDir, frameIndex, codec, media); err != nil {
				return errors.Wrap(err, "write frame")
			}
			ok.Printf("run %s: wrote frame %d (%d bytes, rtptime=%d)\n", runID, frameIndex, media.Length, media.RTPTime)
			frameIndex++
		}
	}

	return nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// readRecord reads one (uint32 big-endian length, RTP datagram) record
// from r.
func readRecord(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(dir string, index int, codec rtp.Codec, media *rtp.Media) error {
	ext := "opus"
	if codec == rtp.CodecH264 {
		ext = "h264"
	}
	path := filepath.Join(dir, fmt.Sprintf("frame-%05d.%s", index, ext))
	return os.WriteFile(path, media.Buffer[:media.Length], 0o644)
}

package transcode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

// DemuxHandler receives demuxed events in stream order. Returning an error
// stops the demuxer and the error is returned from Run unchanged.
type DemuxHandler struct {
	OnConfig func(ctx context.Context, cfg *DecoderConfig) error
	OnChunk  func(ctx context.Context, chunk *EncodedChunk) error
}

// Demuxer turns one container byte stream into config and chunk events.
// A config event always precedes the first chunk that depends on it.
type Demuxer interface {
	Run(ctx context.Context, r io.Reader, h DemuxHandler) error
}

// DemuxerFunc adapts a function to the Demuxer interface.
type DemuxerFunc func(ctx context.Context, r io.Reader, h DemuxHandler) error

// Run implements Demuxer.
func (f DemuxerFunc) Run(ctx context.Context, r io.Reader, h DemuxHandler) error {
	return f(ctx, r, h)
}

const (
	ivfFileHeaderSize  = 32
	ivfFrameHeaderSize = 12
)

// IVFDemuxer reads IVF-framed VP8, VP9 or AV1 streams.
type IVFDemuxer struct {
	// HardwareAccel is copied into every emitted DecoderConfig.
	HardwareAccel HardwareAcceleration
}

// NewIVFDemuxer creates an IVF demuxer.
func NewIVFDemuxer() *IVFDemuxer {
	return &IVFDemuxer{}
}

// Run implements Demuxer. A keyframe whose coded size differs from the
// active config triggers a new config event before that keyframe.
//
// ivfreader rescales frame timestamps by den/num with integer division, which
// loses the raw pts for timebases like 1001/30000. The raw header bytes are
// captured on the way in and converted to microseconds once.
func (d *IVFDemuxer) Run(ctx context.Context, r io.Reader, h DemuxHandler) error {
	var tap headerTap
	reader, header, err := ivfreader.NewWith(io.TeeReader(r, &tap))
	if err != nil {
		if tap.n == ivfFileHeaderSize && string(tap.buf[:4]) == "DKIF" && binary.LittleEndian.Uint32(tap.buf[16:20]) == 0 {
			return &DemuxError{Offset: 16, Err: fmt.Errorf("invalid timebase: %w", err)}
		}
		return &DemuxError{Offset: 0, Err: err}
	}

	codec := CodecFromFourCC(header.FourCC)
	if codec == VideoCodecUnknown {
		return &DemuxError{Offset: 8, Err: fmt.Errorf("%w: fourcc %q", ErrCodecNotSupported, header.FourCC)}
	}
	// A zero numerator makes ivfreader divide by zero.
	if header.TimebaseNumerator == 0 {
		return &DemuxError{Offset: 20, Err: fmt.Errorf("invalid timebase %d/%d",
			header.TimebaseNumerator, header.TimebaseDenominator)}
	}

	tb := ivfTimebase{num: int64(header.TimebaseNumerator), den: int64(header.TimebaseDenominator)}
	active := &DecoderConfig{
		Codec:         codec,
		CodecString:   codec.DefaultCodecString(),
		CodedWidth:    int(header.Width),
		CodedHeight:   int(header.Height),
		HardwareAccel: d.HardwareAccel,
	}
	announced := false
	offset := int64(ivfFileHeaderSize)

	// Each chunk is held until the next frame arrives so its duration can be
	// taken from the pts gap. The last chunk reuses the previous gap.
	var pending *EncodedChunk
	var pendingConfig *DecoderConfig
	frameDuration := tb.micros(1)
	emit := func() error {
		if pending == nil {
			return nil
		}
		if pendingConfig != nil {
			if err := h.OnConfig(ctx, pendingConfig); err != nil {
				return err
			}
		}
		err := h.OnChunk(ctx, pending)
		pending, pendingConfig = nil, nil
		return err
	}

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tap.reset()
		payload, frameHeader, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return emit()
		}
		if err != nil {
			return &DemuxError{Offset: offset, Err: err}
		}
		pts := int64(binary.LittleEndian.Uint64(tap.buf[4:ivfFrameHeaderSize]))

		if index == 0 {
			if got := DetectVideoCodec(payload); got != VideoCodecUnknown && got != codec {
				return &DemuxError{Offset: offset, Err: fmt.Errorf("%w: fourcc %q, first frame looks like %v",
					ErrCodecMismatch, header.FourCC, got)}
			}
		}

		chunk := &EncodedChunk{
			Kind:      ChunkData,
			Type:      FrameTypeDelta,
			Timestamp: tb.micros(pts),
			Data:      payload,
		}
		if IsKeyframe(codec, payload) || (index == 0 && !keyframeDetectable(codec)) {
			chunk.Type = FrameTypeKey
		}

		if pending != nil {
			if gap := chunk.Timestamp - pending.Timestamp; gap > 0 {
				frameDuration = gap
			}
			pending.Duration = frameDuration
			if err := emit(); err != nil {
				return err
			}
		}

		if chunk.Type == FrameTypeKey {
			if w, hgt, ok := KeyframeSize(codec, payload); ok && (w != active.CodedWidth || hgt != active.CodedHeight) {
				if announced {
					active = active.Clone()
				}
				active.CodedWidth, active.CodedHeight = w, hgt
				announced = false
			}
		}
		if !announced {
			pendingConfig = active
			announced = true
		}
		chunk.Duration = frameDuration
		pending = chunk

		offset += ivfFrameHeaderSize + int64(frameHeader.FrameSize)
	}
}

func keyframeDetectable(codec VideoCodec) bool {
	return codec == VideoCodecVP8 || codec == VideoCodecVP9
}

// headerTap keeps the first bytes written to it since the last reset. Fed
// through io.TeeReader it sees the file header, then each frame header.
type headerTap struct {
	buf [ivfFileHeaderSize]byte
	n   int
}

func (t *headerTap) Write(p []byte) (int, error) {
	if t.n < len(t.buf) {
		t.n += copy(t.buf[t.n:], p)
	}
	return len(p), nil
}

func (t *headerTap) reset() { t.n = 0 }

// ivfTimebase is the duration of one pts tick in seconds, num/den.
type ivfTimebase struct {
	num, den int64
}

func (tb ivfTimebase) micros(pts int64) int64 {
	return pts * tb.num * int64(time.Second/time.Microsecond) / tb.den
}

// StreamInfo summarizes a demuxed stream.
type StreamInfo struct {
	Codec     VideoCodec
	Configs   []*DecoderConfig
	Frames    int
	Keyframes int
	Bytes     int64
	Duration  time.Duration
}

// Probe runs d over r and collects a StreamInfo without decoding.
func Probe(ctx context.Context, d Demuxer, r io.Reader) (*StreamInfo, error) {
	info := &StreamInfo{}
	var last int64
	err := d.Run(ctx, r, DemuxHandler{
		OnConfig: func(_ context.Context, cfg *DecoderConfig) error {
			info.Codec = cfg.Codec
			info.Configs = append(info.Configs, cfg.Clone())
			return nil
		},
		OnChunk: func(_ context.Context, chunk *EncodedChunk) error {
			info.Frames++
			if chunk.IsKeyframe() {
				info.Keyframes++
			}
			info.Bytes += int64(len(chunk.Data))
			last = max(last, chunk.Timestamp+chunk.Duration)
			return nil
		},
	})
	info.Duration = time.Duration(last) * time.Microsecond
	return info, err
}

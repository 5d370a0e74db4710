package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
)

// buildIVF writes an IVF file with a 1/30 timebase and pts 0, 1, 2...
func buildIVF(fourcc string, width, height int, frames [][]byte) []byte {
	pts := make([]uint64, len(frames))
	for i := range pts {
		pts[i] = uint64(i)
	}
	return buildIVFTimed(fourcc, width, height, 1, 30, pts, frames)
}

// buildIVFTimed writes an IVF file with a num/den timebase and explicit pts.
func buildIVFTimed(fourcc string, width, height int, num, den uint32, pts []uint64, frames [][]byte) []byte {
	var buf bytes.Buffer
	hdr := make([]byte, ivfFileHeaderSize)
	copy(hdr[0:4], "DKIF")
	binary.LittleEndian.PutUint16(hdr[4:], 0)
	binary.LittleEndian.PutUint16(hdr[6:], ivfFileHeaderSize)
	copy(hdr[8:12], fourcc)
	binary.LittleEndian.PutUint16(hdr[12:], uint16(width))
	binary.LittleEndian.PutUint16(hdr[14:], uint16(height))
	binary.LittleEndian.PutUint32(hdr[16:], den)
	binary.LittleEndian.PutUint32(hdr[20:], num)
	binary.LittleEndian.PutUint32(hdr[24:], uint32(len(frames)))
	buf.Write(hdr)

	for i, f := range frames {
		fh := make([]byte, ivfFrameHeaderSize)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(f)))
		binary.LittleEndian.PutUint64(fh[4:], pts[i])
		buf.Write(fh)
		buf.Write(f)
	}
	return buf.Bytes()
}

// vp8Frame returns a minimal VP8 frame. Keyframes carry the coded size.
func vp8Frame(key bool, width, height int) []byte {
	f := make([]byte, 16)
	if !key {
		f[0] = 0x01
		return f
	}
	f[3], f[4], f[5] = 0x9D, 0x01, 0x2A
	binary.LittleEndian.PutUint16(f[6:], uint16(width))
	binary.LittleEndian.PutUint16(f[8:], uint16(height))
	return f
}

// vp8Stream returns n frames whose coded size switches at each entry of sizes.
func vp8Stream(n int, sizes map[int][2]int) [][]byte {
	frames := make([][]byte, n)
	for i := range frames {
		if wh, ok := sizes[i]; ok {
			frames[i] = vp8Frame(true, wh[0], wh[1])
		} else {
			frames[i] = vp8Frame(false, 0, 0)
		}
	}
	return frames
}

var errCorruptBitstream = errors.New("corrupt bitstream")

// fakeDecoder emits one frame per chunk at the configured coded size.
type fakeDecoder struct {
	init      DecoderInit
	cfg       DecoderConfig
	ready     bool
	failAt    int  // 1-based Decode call that fails (0: never)
	asyncFail bool // Report the failure through the error callback
	decoded   int
	closes    *atomic.Int32
}

type fakeDecoderOptions struct {
	failAt      int
	asyncFail   bool
	unsupported bool
	closes      *atomic.Int32
}

func fakeDecoderFactory(opts fakeDecoderOptions) DecoderFactory {
	if opts.closes == nil {
		opts.closes = new(atomic.Int32)
	}
	return func(codec VideoCodec, init DecoderInit) (VideoDecoder, error) {
		if opts.unsupported {
			return nil, ErrCodecNotSupported
		}
		return &fakeDecoder{init: init, failAt: opts.failAt, asyncFail: opts.asyncFail, closes: opts.closes}, nil
	}
}

func (d *fakeDecoder) IsConfigSupported(ctx context.Context, cfg DecoderConfig) (bool, error) {
	return cfg.CodedWidth > 0 && cfg.CodedHeight > 0, nil
}

func (d *fakeDecoder) Configure(cfg DecoderConfig) error {
	d.cfg = cfg
	d.ready = true
	return nil
}

func (d *fakeDecoder) Decode(chunk *EncodedChunk) error {
	if !d.ready {
		return ErrNotConfigured
	}
	n := d.decoded
	d.decoded++
	if d.decoded == d.failAt {
		if d.asyncFail {
			d.init.Error(errCorruptBitstream)
			return nil
		}
		return errCorruptBitstream
	}
	frame, err := d.init.Frames.AllocateFrame(d.cfg.CodedWidth, d.cfg.CodedHeight)
	if err != nil {
		return err
	}
	frame.Timestamp = chunk.Timestamp
	frame.Duration = chunk.Duration
	for i := range frame.Y {
		frame.Y[i] = byte(n)
	}
	d.init.Output(frame)
	return nil
}

func (d *fakeDecoder) Flush(ctx context.Context) error { return nil }

func (d *fakeDecoder) Close() error {
	d.closes.Add(1)
	return nil
}

// fakeEncoder emits one chunk of chunkSize bytes per frame.
type fakeEncoder struct {
	cb      EncoderCallbacks
	cfg     EncoderConfig
	opts    fakeEncoderOptions
	encoded int
}

type fakeEncoderOptions struct {
	chunkSize   int
	unsupported bool
	failAt      int // 1-based Encode call that fails (0: never)
	// describe returns the decoder config to attach to output n, or nil.
	describe func(n int, cfg EncoderConfig) *DecoderConfig
	closes   *atomic.Int32
}

func fakeEncoderFactory(opts fakeEncoderOptions) EncoderFactory {
	if opts.closes == nil {
		opts.closes = new(atomic.Int32)
	}
	if opts.chunkSize == 0 {
		opts.chunkSize = 64
	}
	if opts.describe == nil {
		opts.describe = func(n int, cfg EncoderConfig) *DecoderConfig {
			if n != 0 {
				return nil
			}
			return &DecoderConfig{Codec: cfg.Codec, CodecString: cfg.CodecString,
				CodedWidth: cfg.Width, CodedHeight: cfg.Height}
		}
	}
	return func(codec VideoCodec, cb EncoderCallbacks) (VideoEncoder, error) {
		return &fakeEncoder{cb: cb, opts: opts}, nil
	}
}

func (e *fakeEncoder) IsConfigSupported(ctx context.Context, cfg EncoderConfig) (bool, error) {
	return !e.opts.unsupported, nil
}

func (e *fakeEncoder) Configure(cfg EncoderConfig) error {
	e.cfg = cfg
	return nil
}

func (e *fakeEncoder) Encode(frame *DecodedFrame, opts EncodeOptions) error {
	if frame.Released() {
		return errors.New("encode of released frame")
	}
	if frame.Width != e.cfg.Width || frame.Height != e.cfg.Height {
		return errors.New("frame not at target size")
	}
	n := e.encoded
	e.encoded++
	if e.encoded == e.opts.failAt {
		return errors.New("encoder rejected frame")
	}
	chunk := &EncodedChunk{
		Type:      FrameTypeDelta,
		Timestamp: frame.Timestamp,
		Duration:  frame.Duration,
		Data:      bytes.Repeat([]byte{byte(n)}, e.opts.chunkSize),
	}
	if opts.KeyFrame {
		chunk.Type = FrameTypeKey
	}
	e.cb.Output(chunk, EncodedChunkMetadata{DecoderConfig: e.opts.describe(n, e.cfg)})
	return nil
}

func (e *fakeEncoder) Flush(ctx context.Context) error { return nil }

func (e *fakeEncoder) Close() error {
	e.opts.closes.Add(1)
	return nil
}

// rawMuxer emits data chunk payloads verbatim and records what it saw.
type rawMuxer struct {
	kinds      []ChunkKind
	timestamps []int64
	durations  []int64
	output     bytes.Buffer
	configured bool
	trailer    []byte
}

func (m *rawMuxer) Mux(chunk *EncodedChunk) ([]byte, error) {
	m.kinds = append(m.kinds, chunk.Kind)
	if chunk.IsConfig() {
		m.configured = true
		return nil, nil
	}
	if !m.configured {
		return nil, ErrOutOfOrderConfig
	}
	m.timestamps = append(m.timestamps, chunk.Timestamp)
	m.durations = append(m.durations, chunk.Duration)
	m.output.Write(chunk.Data)
	return chunk.Data, nil
}

func (m *rawMuxer) Finish() ([]byte, error) {
	m.output.Write(m.trailer)
	return m.trailer, nil
}

func (m *rawMuxer) factory() MuxerFactory {
	return func() (Muxer, error) { return m, nil }
}

// memUploader stores segments in memory.
type memUploader struct {
	mu       sync.Mutex
	segments []*Segment
	failAt   uint32 // Sequence that fails (0: never)
}

func (u *memUploader) UploadSegment(ctx context.Context, seg *Segment) error {
	if seg.Sequence == u.failAt {
		return errors.New("store unavailable")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.segments = append(u.segments, &Segment{
		Sequence: seg.Sequence,
		Name:     seg.Name,
		Data:     append([]byte(nil), seg.Data...),
	})
	return nil
}

func (u *memUploader) all() []*Segment {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*Segment(nil), u.segments...)
}

func (u *memUploader) joined() []byte {
	var b bytes.Buffer
	for _, s := range u.all() {
		b.Write(s.Data)
	}
	return b.Bytes()
}

// countingReader counts Read calls on r.
type countingReader struct {
	r     *bytes.Reader
	reads atomic.Int32
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads.Add(1)
	return c.r.Read(p)
}

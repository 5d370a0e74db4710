//go:build (darwin || linux) && !novpx

// VP8/VP9 engines backed by libmedia_vpx, loaded at runtime with purego.
//
// libmedia_vpx is a thin wrapper around libvpx with a primitive-only API.
// Library locations checked (in order):
//   - MEDIA_VPX_LIB_PATH environment variable
//   - MEDIA_SDK_LIB_PATH environment variable
//   - build/ffi directory (development)
//   - System library paths

package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mediaVPXOnce    sync.Once
	mediaVPXHandle  uintptr
	mediaVPXInitErr error
)

// libmedia_vpx function pointers
var (
	mediaVPXEncoderCreate        func(codec, width, height, fps, bitrateKbps, threads int32) uint64
	mediaVPXEncoderEncode        func(encoder uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride, forceKeyframe int32, outData uintptr, outCapacity int32, outFrameType, outPts uintptr) int32
	mediaVPXEncoderMaxOutputSize func(encoder uint64) int32
	mediaVPXEncoderSetBitrate    func(encoder uint64, bitrateKbps int32) int32
	mediaVPXEncoderDestroy       func(encoder uint64)

	mediaVPXDecoderCreate   func(codec, threads int32) uint64
	mediaVPXDecoderDecodeV2 func(decoder uint64, data uintptr, dataLen int32, resultOut uintptr) int32
	mediaVPXDecoderDestroy  func(decoder uint64)

	mediaVPXGetError       func() uintptr
	mediaVPXCodecAvailable func(codec int32) int32
)

// mediaVPXDecodeResult matches media_vpx_decode_result_t in C.
// It must be heap-allocated for purego to work correctly on arm64.
type mediaVPXDecodeResult struct {
	YPtr     uint64
	UPtr     uint64
	VPtr     uint64
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
	Result   int32 // 1=decoded, 0=buffering, <0=error
	Reserved int32
}

// Constants from media_vpx.h
const (
	mediaVPXCodecVP8 = 0
	mediaVPXCodecVP9 = 1

	mediaVPXFrameKey = 0

	maxVPXDimension = 16384
	vpxThreads      = 4
)

func loadMediaVPX() error {
	mediaVPXOnce.Do(func() {
		mediaVPXInitErr = loadMediaVPXLib()
	})
	return mediaVPXInitErr
}

func loadMediaVPXLib() error {
	var lastErr error
	for _, path := range getMediaVPXLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		mediaVPXHandle = handle
		if err := loadMediaVPXSymbols(); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load libmedia_vpx: %w", lastErr)
	}
	return errors.New("libmedia_vpx not found in any standard location")
}

func getMediaVPXLibPaths() []string {
	var paths []string

	libName := "libmedia_vpx.so"
	if runtime.GOOS == "darwin" {
		libName = "libmedia_vpx.dylib"
	}

	if envPath := os.Getenv("MEDIA_VPX_LIB_PATH"); envPath != "" {
		paths = append(paths, envPath)
	}
	if envPath := os.Getenv("MEDIA_SDK_LIB_PATH"); envPath != "" {
		paths = append(paths, filepath.Join(envPath, libName))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, libName),
			filepath.Join(exeDir, "..", "lib", libName),
		)
	}

	if root := findModuleRoot(); root != "" {
		paths = append(paths,
			filepath.Join(root, "build", libName),
			filepath.Join(root, "build", "ffi", libName),
		)
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			libName,
			"/usr/local/lib/"+libName,
			"/opt/homebrew/lib/"+libName,
		)
	case "linux":
		paths = append(paths,
			libName,
			"/usr/local/lib/"+libName,
			"/usr/lib/"+libName,
		)
	}

	return paths
}

func loadMediaVPXSymbols() (err error) {
	// RegisterLibFunc panics on a missing symbol.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libmedia_vpx symbol: %v", r)
		}
	}()

	purego.RegisterLibFunc(&mediaVPXEncoderCreate, mediaVPXHandle, "media_vpx_encoder_create")
	purego.RegisterLibFunc(&mediaVPXEncoderEncode, mediaVPXHandle, "media_vpx_encoder_encode")
	purego.RegisterLibFunc(&mediaVPXEncoderMaxOutputSize, mediaVPXHandle, "media_vpx_encoder_max_output_size")
	purego.RegisterLibFunc(&mediaVPXEncoderSetBitrate, mediaVPXHandle, "media_vpx_encoder_set_bitrate")
	purego.RegisterLibFunc(&mediaVPXEncoderDestroy, mediaVPXHandle, "media_vpx_encoder_destroy")

	purego.RegisterLibFunc(&mediaVPXDecoderCreate, mediaVPXHandle, "media_vpx_decoder_create")
	purego.RegisterLibFunc(&mediaVPXDecoderDecodeV2, mediaVPXHandle, "media_vpx_decoder_decode_v2")
	purego.RegisterLibFunc(&mediaVPXDecoderDestroy, mediaVPXHandle, "media_vpx_decoder_destroy")

	purego.RegisterLibFunc(&mediaVPXGetError, mediaVPXHandle, "media_vpx_get_error")
	purego.RegisterLibFunc(&mediaVPXCodecAvailable, mediaVPXHandle, "media_vpx_codec_available")
	return nil
}

// IsVPXAvailable checks if libmedia_vpx is available.
func IsVPXAvailable() bool {
	return loadMediaVPX() == nil
}

// IsVP8Available checks if the VP8 codec is available.
func IsVP8Available() bool {
	return IsVPXAvailable() && mediaVPXCodecAvailable(mediaVPXCodecVP8) != 0
}

// IsVP9Available checks if the VP9 codec is available.
func IsVP9Available() bool {
	return IsVPXAvailable() && mediaVPXCodecAvailable(mediaVPXCodecVP9) != 0
}

func getVPXError() string {
	ptr := mediaVPXGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

func vpxCodecType(codec VideoCodec) (int32, bool) {
	switch codec {
	case VideoCodecVP8:
		return mediaVPXCodecVP8, true
	case VideoCodecVP9:
		return mediaVPXCodecVP9, true
	default:
		return 0, false
	}
}

func vpxCodecSupported(codec VideoCodec) bool {
	ct, ok := vpxCodecType(codec)
	return ok && IsVPXAvailable() && mediaVPXCodecAvailable(ct) != 0
}

// VPXEncoder implements VideoEncoder using libmedia_vpx.
type VPXEncoder struct {
	codec VideoCodec
	cb    EncoderCallbacks

	mu        sync.Mutex
	config    EncoderConfig
	handle    uint64
	outputBuf []byte
	announced bool // Decoder config already reported since Configure
}

// NewVPXEncoder creates an unconfigured VP8 or VP9 encoder.
func NewVPXEncoder(codec VideoCodec, cb EncoderCallbacks) (*VPXEncoder, error) {
	if _, ok := vpxCodecType(codec); !ok {
		return nil, fmt.Errorf("%w: libvpx cannot encode %s", ErrCodecNotSupported, codec)
	}
	if err := loadMediaVPX(); err != nil {
		return nil, fmt.Errorf("%s encoder not available: %w", codec, err)
	}
	return &VPXEncoder{codec: codec, cb: cb}, nil
}

// IsConfigSupported implements VideoEncoder.
func (e *VPXEncoder) IsConfigSupported(ctx context.Context, cfg EncoderConfig) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if cfg.Codec != e.codec || !vpxCodecSupported(cfg.Codec) {
		return false, nil
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxVPXDimension || cfg.Height > maxVPXDimension {
		return false, nil
	}
	if cfg.Width%2 != 0 || cfg.Height%2 != 0 || cfg.BitrateBps <= 0 {
		return false, nil
	}
	return true, nil
}

// Configure implements VideoEncoder. Reconfiguring recreates the native encoder.
func (e *VPXEncoder) Configure(cfg EncoderConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	codecType, ok := vpxCodecType(cfg.Codec)
	if !ok || cfg.Codec != e.codec {
		return fmt.Errorf("%w: %s", ErrCodecNotSupported, cfg.Codec)
	}

	bitrateKbps := cfg.BitrateBps / 1000
	if bitrateKbps <= 0 {
		bitrateKbps = 1000
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = 30
	}

	if e.handle != 0 {
		mediaVPXEncoderDestroy(e.handle)
		e.handle = 0
	}
	handle := mediaVPXEncoderCreate(codecType, int32(cfg.Width), int32(cfg.Height), int32(fps), int32(bitrateKbps), vpxThreads)
	if handle == 0 {
		return fmt.Errorf("failed to create %s encoder: %s", e.codec, getVPXError())
	}

	maxOutput := mediaVPXEncoderMaxOutputSize(handle)
	if maxOutput <= 0 {
		maxOutput = int32(I420Size(cfg.Width, cfg.Height))
	}

	e.handle = handle
	e.config = cfg
	e.outputBuf = make([]byte, maxOutput)
	e.announced = false
	return nil
}

// Encode implements VideoEncoder.
func (e *VPXEncoder) Encode(frame *DecodedFrame, opts EncodeOptions) error {
	chunk, meta, err := e.encode(frame, opts)
	if err != nil || chunk == nil {
		return err
	}
	if e.cb.Output != nil {
		e.cb.Output(chunk, meta)
	}
	return nil
}

func (e *VPXEncoder) encode(frame *DecodedFrame, opts EncodeOptions) (*EncodedChunk, EncodedChunkMetadata, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var meta EncodedChunkMetadata
	if e.handle == 0 {
		return nil, meta, ErrNotConfigured
	}
	if frame.Width != e.config.Width || frame.Height != e.config.Height {
		return nil, meta, fmt.Errorf("frame %dx%d does not match encoder %dx%d",
			frame.Width, frame.Height, e.config.Width, e.config.Height)
	}

	forceKeyframe := int32(0)
	if opts.KeyFrame || !e.announced {
		forceKeyframe = 1
	}

	var frameType int32
	var pts int64
	result := mediaVPXEncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&frame.Y[0])),
		uintptr(unsafe.Pointer(&frame.U[0])),
		uintptr(unsafe.Pointer(&frame.V[0])),
		int32(frame.StrideY),
		int32(frame.StrideU),
		forceKeyframe,
		uintptr(unsafe.Pointer(&e.outputBuf[0])),
		int32(len(e.outputBuf)),
		uintptr(unsafe.Pointer(&frameType)),
		uintptr(unsafe.Pointer(&pts)),
	)
	runtime.KeepAlive(frame)

	if result < 0 {
		return nil, meta, fmt.Errorf("encode failed: %s", getVPXError())
	}
	if result == 0 {
		return nil, meta, nil // Rate control dropped the frame
	}

	ft := FrameTypeDelta
	if frameType == mediaVPXFrameKey {
		ft = FrameTypeKey
	}

	chunk := &EncodedChunk{
		Kind:      ChunkData,
		Type:      ft,
		Timestamp: frame.Timestamp,
		Duration:  frame.Duration,
		Data:      append([]byte(nil), e.outputBuf[:result]...),
	}
	if !e.announced {
		e.announced = true
		meta.DecoderConfig = &DecoderConfig{
			Codec:       e.config.Codec,
			CodecString: e.config.CodecString,
			CodedWidth:  e.config.Width,
			CodedHeight: e.config.Height,
		}
	}
	return chunk, meta, nil
}

// Flush implements VideoEncoder. The realtime encoder never holds frames back.
func (e *VPXEncoder) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == 0 {
		return ErrNotConfigured
	}
	return ctx.Err()
}

// SetBitrate updates the target bitrate of a configured encoder.
func (e *VPXEncoder) SetBitrate(bitrateBps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == 0 {
		return ErrNotConfigured
	}
	if mediaVPXEncoderSetBitrate(e.handle, int32(bitrateBps/1000)) != 0 {
		return fmt.Errorf("set bitrate: %s", getVPXError())
	}
	e.config.BitrateBps = bitrateBps
	return nil
}

// Close implements io.Closer.
func (e *VPXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != 0 {
		mediaVPXEncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}

// VPXDecoder implements VideoDecoder using libmedia_vpx.
type VPXDecoder struct {
	codec VideoCodec
	init  DecoderInit

	mu     sync.Mutex
	handle uint64
	closed bool

	// Persistent output struct; purego has issues with output pointer
	// parameters on arm64. Layout must match media_vpx_decode_result_t.
	decodeResult *mediaVPXDecodeResult
}

// NewVPXDecoder creates an unconfigured VP8 or VP9 decoder.
func NewVPXDecoder(codec VideoCodec, init DecoderInit) (*VPXDecoder, error) {
	if _, ok := vpxCodecType(codec); !ok {
		return nil, fmt.Errorf("%w: libvpx cannot decode %s", ErrCodecNotSupported, codec)
	}
	if err := loadMediaVPX(); err != nil {
		return nil, fmt.Errorf("%s decoder not available: %w", codec, err)
	}
	if init.Frames == nil {
		init.Frames = NewFramePool(4).Allocator(context.Background())
	}
	return &VPXDecoder{
		codec:        codec,
		init:         init,
		decodeResult: &mediaVPXDecodeResult{},
	}, nil
}

// IsConfigSupported implements VideoDecoder.
func (d *VPXDecoder) IsConfigSupported(ctx context.Context, cfg DecoderConfig) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if cfg.Codec != d.codec || !vpxCodecSupported(cfg.Codec) {
		return false, nil
	}
	return cfg.CodedWidth <= maxVPXDimension && cfg.CodedHeight <= maxVPXDimension, nil
}

// Configure implements VideoDecoder. libvpx follows in-band size changes, so
// reconfiguring with the same codec keeps the native decoder.
func (d *VPXDecoder) Configure(cfg DecoderConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrEngineClosed
	}
	codecType, ok := vpxCodecType(cfg.Codec)
	if !ok || cfg.Codec != d.codec {
		return fmt.Errorf("%w: %s", ErrCodecNotSupported, cfg.Codec)
	}
	if d.handle != 0 {
		return nil
	}
	handle := mediaVPXDecoderCreate(codecType, vpxThreads)
	if handle == 0 {
		return fmt.Errorf("failed to create %s decoder: %s", d.codec, getVPXError())
	}
	d.handle = handle
	return nil
}

// Decode implements VideoDecoder. Output runs on the calling goroutine.
func (d *VPXDecoder) Decode(chunk *EncodedChunk) error {
	frame, err := d.decode(chunk)
	if err != nil || frame == nil {
		return err
	}
	if d.init.Output != nil {
		d.init.Output(frame)
	} else {
		frame.Release()
	}
	return nil
}

func (d *VPXDecoder) decode(chunk *EncodedChunk) (*DecodedFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrEngineClosed
	}
	if d.handle == 0 {
		return nil, ErrNotConfigured
	}
	if len(chunk.Data) == 0 {
		return nil, errors.New("empty encoded data")
	}

	out := d.decodeResult
	result := mediaVPXDecoderDecodeV2(
		d.handle,
		uintptr(unsafe.Pointer(&chunk.Data[0])),
		int32(len(chunk.Data)),
		uintptr(unsafe.Pointer(out)),
	)
	runtime.KeepAlive(chunk.Data)
	runtime.KeepAlive(out)

	if result < 0 {
		return nil, fmt.Errorf("decode failed: %s", getVPXError())
	}
	if result == 0 {
		return nil, nil // Buffering, no frame yet
	}

	w := int(out.Width)
	h := int(out.Height)
	if w <= 0 || h <= 0 || out.YPtr == 0 || out.YStride <= 0 || out.UVStride <= 0 {
		return nil, fmt.Errorf("invalid decoder output: stride=%d/%d, size=%dx%d",
			out.YStride, out.UVStride, w, h)
	}

	// The native planes stay valid until the next decode call, which the lock
	// excludes, so copying while the allocator blocks is safe.
	frame, err := d.init.Frames.AllocateFrame(w, h)
	if err != nil {
		return nil, err
	}
	uvW, uvH := chromaSize(w, h)
	copyNativePlane(frame.Y, frame.StrideY, out.YPtr, int(out.YStride), w, h)
	copyNativePlane(frame.U, frame.StrideU, out.UPtr, int(out.UVStride), uvW, uvH)
	copyNativePlane(frame.V, frame.StrideV, out.VPtr, int(out.UVStride), uvW, uvH)
	frame.Timestamp = chunk.Timestamp
	frame.Duration = chunk.Duration
	return frame, nil
}

func copyNativePlane(dst []byte, dstStride int, src uint64, srcStride, width, height int) {
	for row := 0; row < height; row++ {
		line := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(src)+uintptr(row*srcStride))), width)
		copy(dst[row*dstStride:row*dstStride+width], line)
	}
}

// Flush implements VideoDecoder. Decoded frames are delivered from Decode.
func (d *VPXDecoder) Flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == 0 {
		return ErrNotConfigured
	}
	return ctx.Err()
}

// Close implements io.Closer.
func (d *VPXDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.handle != 0 {
		mediaVPXDecoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}

// Register VP8/VP9 engines when libmedia_vpx loads.
func init() {
	if err := loadMediaVPX(); err != nil {
		return
	}
	for _, codec := range []VideoCodec{VideoCodecVP8, VideoCodecVP9} {
		ct, _ := vpxCodecType(codec)
		if mediaVPXCodecAvailable(ct) == 0 {
			continue
		}
		RegisterVideoEncoder(codec, ProviderLibvpx, func(codec VideoCodec, cb EncoderCallbacks) (VideoEncoder, error) {
			return NewVPXEncoder(codec, cb)
		})
		RegisterVideoDecoder(codec, ProviderLibvpx, func(codec VideoCodec, init DecoderInit) (VideoDecoder, error) {
			return NewVPXDecoder(codec, init)
		})
	}
}

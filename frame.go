// Core frame types shared by the decode, encode and preview stages.

package transcode

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// FrameType indicates whether an encoded chunk is a keyframe or delta frame.
type FrameType int

const (
	FrameTypeUnknown FrameType = iota
	FrameTypeKey               // Can be decoded independently
	FrameTypeDelta             // Requires previous frames
)

func (f FrameType) String() string {
	switch f {
	case FrameTypeKey:
		return "Key"
	case FrameTypeDelta:
		return "Delta"
	default:
		return "Unknown"
	}
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	cw, ch := chromaSize(width, height)
	return width*height + cw*ch*2
}

func chromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// DecodedFrame is a raw I420 picture owned by exactly one holder at a time.
// The holder must call Release once it no longer reads the planes.
type DecodedFrame struct {
	Y, U, V                   []byte
	StrideY, StrideU, StrideV int
	Width                     int
	Height                    int
	Timestamp                 int64 // Presentation time in microseconds
	Duration                  int64 // Microseconds (optional)

	pool     *FramePool
	buf      []byte
	released atomic.Bool
}

// NewDecodedFrame allocates a frame outside any pool. Release only marks it.
func NewDecodedFrame(width, height int) *DecodedFrame {
	f := &DecodedFrame{}
	f.attach(make([]byte, I420Size(width, height)), width, height)
	return f
}

func (f *DecodedFrame) attach(buf []byte, width, height int) {
	cw, ch := chromaSize(width, height)
	ySize := width * height
	uvSize := cw * ch
	f.buf = buf
	f.Width = width
	f.Height = height
	f.Y = buf[:ySize:ySize]
	f.U = buf[ySize : ySize+uvSize : ySize+uvSize]
	f.V = buf[ySize+uvSize : ySize+2*uvSize : ySize+2*uvSize]
	f.StrideY = width
	f.StrideU = cw
	f.StrideV = cw
}

// Release returns the frame's buffer to its pool. Calls after the first are no-ops.
func (f *DecodedFrame) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.pool != nil {
		f.pool.put(f.buf)
	}
	f.Y, f.U, f.V, f.buf = nil, nil, nil, nil
}

// Released reports whether Release has been called.
func (f *DecodedFrame) Released() bool {
	return f.released.Load()
}

// CopyFrom copies plane data from src honoring both sets of strides.
// Dimensions must match.
func (f *DecodedFrame) CopyFrom(src *DecodedFrame) error {
	if src.Width != f.Width || src.Height != f.Height {
		return fmt.Errorf("frame size mismatch: %dx%d into %dx%d", src.Width, src.Height, f.Width, f.Height)
	}
	cw, ch := chromaSize(f.Width, f.Height)
	copyPlane(f.Y, f.StrideY, src.Y, src.StrideY, f.Width, f.Height)
	copyPlane(f.U, f.StrideU, src.U, src.StrideU, cw, ch)
	copyPlane(f.V, f.StrideV, src.V, src.StrideV, cw, ch)
	f.Timestamp = src.Timestamp
	f.Duration = src.Duration
	return nil
}

func copyPlane(dst []byte, dstStride int, src []byte, srcStride int, width, height int) {
	if dstStride == srcStride && dstStride == width {
		copy(dst[:width*height], src[:width*height])
		return
	}
	for row := 0; row < height; row++ {
		copy(dst[row*dstStride:row*dstStride+width], src[row*srcStride:row*srcStride+width])
	}
}

// FrameAllocator hands out frames to decode engines.
type FrameAllocator interface {
	AllocateFrame(width, height int) (*DecodedFrame, error)
}

// FramePool bounds the number of live decoded frames. Get blocks while the
// budget is exhausted, which is how slow consumers throttle decoding.
type FramePool struct {
	sem chan struct{}

	mu   sync.Mutex
	free [][]byte

	acquired atomic.Int64
	released atomic.Int64
}

// NewFramePool creates a pool that allows at most size frames outstanding.
func NewFramePool(size int) *FramePool {
	if size < 1 {
		size = 1
	}
	return &FramePool{
		sem:  make(chan struct{}, size),
		free: make([][]byte, 0, size),
	}
}

// Get acquires a frame of the given size, waiting for a free slot.
func (p *FramePool) Get(ctx context.Context, width, height int) (*DecodedFrame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.acquired.Add(1)

	f := &DecodedFrame{pool: p}
	f.attach(p.take(I420Size(width, height)), width, height)
	return f, nil
}

// Allocator returns a FrameAllocator that draws from p and gives up when ctx ends.
func (p *FramePool) Allocator(ctx context.Context) FrameAllocator {
	return &poolAllocator{pool: p, ctx: ctx}
}

// Cap returns the pool budget.
func (p *FramePool) Cap() int { return cap(p.sem) }

// Outstanding returns the number of frames handed out and not yet released.
func (p *FramePool) Outstanding() int { return len(p.sem) }

// Acquired returns the total number of frames handed out.
func (p *FramePool) Acquired() int64 { return p.acquired.Load() }

// Returned returns the total number of frames released back to the pool.
func (p *FramePool) Returned() int64 { return p.released.Load() }

func (p *FramePool) take(size int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.free) - 1; i >= 0; i-- {
		if cap(p.free[i]) >= size {
			buf := p.free[i][:size]
			p.free[i] = p.free[len(p.free)-1]
			p.free = p.free[:len(p.free)-1]
			return buf
		}
	}
	return make([]byte, size)
}

func (p *FramePool) put(buf []byte) {
	p.mu.Lock()
	if len(p.free) < cap(p.sem) {
		p.free = append(p.free, buf[:cap(buf)])
	}
	p.mu.Unlock()
	p.released.Add(1)
	<-p.sem
}

type poolAllocator struct {
	pool *FramePool
	ctx  context.Context
}

func (a *poolAllocator) AllocateFrame(width, height int) (*DecodedFrame, error) {
	return a.pool.Get(a.ctx, width, height)
}

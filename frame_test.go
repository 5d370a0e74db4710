package transcode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFrameType_String(t *testing.T) {
	tests := []struct {
		ft   FrameType
		want string
	}{
		{FrameTypeKey, "Key"},
		{FrameTypeDelta, "Delta"},
		{FrameTypeUnknown, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.ft.String(); got != tt.want {
				t.Errorf("FrameType.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestI420Size(t *testing.T) {
	tests := []struct {
		width, height int
		want          int
	}{
		{1920, 1080, 1920*1080 + 2*(960*540)},
		{1280, 720, 1280*720 + 2*(640*360)},
		{640, 480, 640*480 + 2*(320*240)},
		{320, 240, 320*240 + 2*(160*120)},
		{15, 9, 15*9 + 2*(8*5)},
	}

	for _, tt := range tests {
		if got := I420Size(tt.width, tt.height); got != tt.want {
			t.Errorf("I420Size(%d, %d) = %d, want %d", tt.width, tt.height, got, tt.want)
		}
	}
}

func TestDecodedFrame_Planes(t *testing.T) {
	f := NewDecodedFrame(16, 8)
	if len(f.Y) != 128 || len(f.U) != 32 || len(f.V) != 32 {
		t.Errorf("plane sizes = %d/%d/%d", len(f.Y), len(f.U), len(f.V))
	}
	if f.StrideY != 16 || f.StrideU != 8 || f.StrideV != 8 {
		t.Errorf("strides = %d/%d/%d", f.StrideY, f.StrideU, f.StrideV)
	}
	// Planes must not alias.
	f.Y[len(f.Y)-1] = 1
	if f.U[0] != 0 {
		t.Error("Y plane overlaps U")
	}
}

func TestDecodedFrame_CopyFrom(t *testing.T) {
	src := NewDecodedFrame(4, 4)
	for i := range src.Y {
		src.Y[i] = byte(i)
	}
	src.U[3], src.V[2] = 7, 9
	src.Timestamp, src.Duration = 100, 33

	dst := NewDecodedFrame(4, 4)
	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom() error = %v", err)
	}
	if dst.Y[15] != 15 || dst.U[3] != 7 || dst.V[2] != 9 {
		t.Error("plane data not copied")
	}
	if dst.Timestamp != 100 || dst.Duration != 33 {
		t.Errorf("timing = %d/%d", dst.Timestamp, dst.Duration)
	}

	if err := NewDecodedFrame(8, 8).CopyFrom(src); err == nil {
		t.Error("CopyFrom() with mismatched size error = nil")
	}
}

func TestDecodedFrame_ReleaseOnce(t *testing.T) {
	pool := NewFramePool(1)
	f, err := pool.Get(context.Background(), 8, 8)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Release()
		}()
	}
	wg.Wait()

	if !f.Released() {
		t.Error("Released() = false")
	}
	if pool.Returned() != 1 || pool.Outstanding() != 0 {
		t.Errorf("Returned() = %d, Outstanding() = %d", pool.Returned(), pool.Outstanding())
	}
	if f.Y != nil {
		t.Error("planes still reachable after Release")
	}
}

func TestFramePool_Blocks(t *testing.T) {
	pool := NewFramePool(2)
	a, _ := pool.Get(context.Background(), 16, 16)
	_, _ = pool.Get(context.Background(), 16, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Get(ctx, 16, 16); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Get() on exhausted pool error = %v, want deadline", err)
	}

	got := make(chan *DecodedFrame)
	go func() {
		f, _ := pool.Get(context.Background(), 16, 16)
		got <- f
	}()
	a.Release()

	select {
	case f := <-got:
		if f == nil || len(f.Y) != 256 {
			t.Error("Get() after Release returned a bad frame")
		}
	case <-time.After(time.Second):
		t.Fatal("Get() still blocked after Release")
	}
	if pool.Acquired() != 3 || pool.Returned() != 1 || pool.Outstanding() != 2 {
		t.Errorf("acquired %d, returned %d, outstanding %d", pool.Acquired(), pool.Returned(), pool.Outstanding())
	}
}

func TestFramePool_ReusesBuffers(t *testing.T) {
	pool := NewFramePool(1)
	a, _ := pool.Get(context.Background(), 32, 32)
	a.Y[0] = 42
	buf := &a.buf[0]
	a.Release()

	b, _ := pool.Get(context.Background(), 16, 16)
	if &b.buf[0] != buf {
		t.Error("smaller frame did not reuse the released buffer")
	}
	if len(b.Y) != 256 {
		t.Errorf("len(Y) = %d, want 256", len(b.Y))
	}
}

func TestFramePool_InvalidSize(t *testing.T) {
	pool := NewFramePool(1)
	if _, err := pool.Get(context.Background(), 0, 10); err == nil {
		t.Error("Get(0x10) error = nil")
	}
	if pool.Outstanding() != 0 {
		t.Error("invalid Get consumed budget")
	}
}

func TestFramePool_Allocator(t *testing.T) {
	pool := NewFramePool(3)
	alloc := pool.Allocator(context.Background())
	f, err := alloc.AllocateFrame(4, 2)
	if err != nil {
		t.Fatalf("AllocateFrame() error = %v", err)
	}
	if f.Width != 4 || f.Height != 2 || pool.Outstanding() != 1 || pool.Cap() != 3 {
		t.Errorf("frame %dx%d, outstanding %d, cap %d", f.Width, f.Height, pool.Outstanding(), pool.Cap())
	}
	f.Release()
}

func TestEncodedChunk_Clone(t *testing.T) {
	chunk := &EncodedChunk{
		Kind:          ChunkConfig,
		Timestamp:     12345,
		DecoderConfig: &DecoderConfig{Codec: VideoCodecVP9, Description: []byte{1, 2}},
	}
	clone := chunk.Clone()
	clone.DecoderConfig.Description[0] = 9
	if chunk.DecoderConfig.Description[0] != 1 {
		t.Error("Clone shares DecoderConfig.Description")
	}

	data := &EncodedChunk{Type: FrameTypeKey, Data: []byte{1, 2, 3}}
	dc := data.Clone()
	dc.Data[0] = 7
	if data.Data[0] != 1 {
		t.Error("Clone shares Data")
	}
	if !dc.IsKeyframe() || dc.IsConfig() {
		t.Error("Clone lost kind or type")
	}
}

func TestEncodedChunk_IsKeyframe(t *testing.T) {
	tests := []struct {
		chunk *EncodedChunk
		want  bool
	}{
		{&EncodedChunk{Type: FrameTypeKey}, true},
		{&EncodedChunk{Type: FrameTypeDelta}, false},
		{&EncodedChunk{Kind: ChunkConfig, Type: FrameTypeKey}, false},
	}
	for i, tt := range tests {
		if got := tt.chunk.IsKeyframe(); got != tt.want {
			t.Errorf("case %d: IsKeyframe() = %v, want %v", i, got, tt.want)
		}
	}
}

func BenchmarkFramePool_GetRelease(b *testing.B) {
	pool := NewFramePool(4)
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f, _ := pool.Get(ctx, 320, 240)
		f.Release()
	}
}

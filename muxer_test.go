package transcode

import (
	"bytes"
	"errors"
	"testing"
)

var (
	ebmlMagic   = []byte{0x1A, 0x45, 0xDF, 0xA3}
	clusterID   = []byte{0x1F, 0x43, 0xB6, 0x75}
	simpleBlock = byte(0xA3)
)

func vp9Config(w, h int) *EncodedChunk {
	return NewConfigChunk(&DecoderConfig{Codec: VideoCodecVP9, CodecString: "vp09.00.10.08", CodedWidth: w, CodedHeight: h})
}

func dataChunk(tsMs int64, key bool, payload ...byte) *EncodedChunk {
	c := &EncodedChunk{Type: FrameTypeDelta, Timestamp: tsMs * 1000, Data: payload}
	if key {
		c.Type = FrameTypeKey
	}
	return c
}

func TestWebMMuxer_Layout(t *testing.T) {
	m := NewWebMMuxer()

	b, err := m.Mux(vp9Config(320, 240))
	if err != nil || len(b) != 0 {
		t.Fatalf("Mux(config) = %d bytes, %v; want no bytes", len(b), err)
	}

	first, err := m.Mux(dataChunk(0, true, 0xAA, 0xBB))
	if err != nil {
		t.Fatalf("Mux(first) error = %v", err)
	}
	if !bytes.HasPrefix(first, ebmlMagic) {
		t.Errorf("first output starts % x, want EBML header", first[:4])
	}
	for _, want := range [][]byte{[]byte("webm"), []byte("V_VP9"), clusterID, {0xAA, 0xBB}} {
		if !bytes.Contains(first, want) {
			t.Errorf("first output missing % x", want)
		}
	}

	second, err := m.Mux(dataChunk(33, false, 0xCC))
	if err != nil {
		t.Fatalf("Mux(second) error = %v", err)
	}
	if len(second) == 0 || second[0] != simpleBlock {
		t.Errorf("second output = % x, want a bare SimpleBlock", second)
	}
	if bytes.Contains(second, clusterID) {
		t.Error("second output opened a new cluster")
	}

	trailer, err := m.Finish()
	if err != nil || len(trailer) != 0 {
		t.Errorf("Finish() = % x, %v", trailer, err)
	}
}

func TestWebMMuxer_Clusters(t *testing.T) {
	tests := []struct {
		name       string
		chunk      *EncodedChunk
		newCluster bool
	}{
		{"delta within range", dataChunk(4_000, false, 1), false},
		{"keyframe before interval", dataChunk(4_999, true, 1), false},
		{"keyframe after interval", dataChunk(5_000, true, 1), true},
		{"delta past int16 range", dataChunk(32_768, false, 1), true},
		{"timestamp moves backwards", dataChunk(-1, false, 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewWebMMuxer()
			if _, err := m.Mux(vp9Config(64, 64)); err != nil {
				t.Fatal(err)
			}
			if _, err := m.Mux(dataChunk(0, true, 1)); err != nil {
				t.Fatal(err)
			}
			out, err := m.Mux(tt.chunk)
			if err != nil {
				t.Fatalf("Mux() error = %v", err)
			}
			if got := bytes.HasPrefix(out, clusterID); got != tt.newCluster {
				t.Errorf("new cluster = %v, want %v", got, tt.newCluster)
			}
		})
	}
}

func TestWebMMuxer_Errors(t *testing.T) {
	t.Run("data before config", func(t *testing.T) {
		m := NewWebMMuxer()
		if _, err := m.Mux(dataChunk(0, true, 1)); !errors.Is(err, ErrOutOfOrderConfig) {
			t.Errorf("Mux() error = %v, want ErrOutOfOrderConfig", err)
		}
	})

	t.Run("codec without webm mapping", func(t *testing.T) {
		m := NewWebMMuxer()
		_, err := m.Mux(NewConfigChunk(&DecoderConfig{Codec: VideoCodecUnknown}))
		if !errors.Is(err, ErrCodecNotSupported) {
			t.Errorf("Mux() error = %v, want ErrCodecNotSupported", err)
		}
	})

	t.Run("codec change after header", func(t *testing.T) {
		m := NewWebMMuxer()
		m.Mux(vp9Config(64, 64))
		m.Mux(dataChunk(0, true, 1))
		_, err := m.Mux(NewConfigChunk(&DecoderConfig{Codec: VideoCodecVP8, CodedWidth: 64, CodedHeight: 64}))
		if !errors.Is(err, ErrTrackChanged) {
			t.Errorf("Mux() error = %v, want ErrTrackChanged", err)
		}
	})

	t.Run("size change after header", func(t *testing.T) {
		m := NewWebMMuxer()
		m.Mux(vp9Config(64, 64))
		m.Mux(dataChunk(0, true, 1))
		if _, err := m.Mux(vp9Config(128, 128)); !errors.Is(err, ErrTrackChanged) {
			t.Errorf("Mux() error = %v, want ErrTrackChanged", err)
		}
	})

	t.Run("same size after header", func(t *testing.T) {
		m := NewWebMMuxer()
		m.Mux(vp9Config(64, 64))
		m.Mux(dataChunk(0, true, 1))
		if _, err := m.Mux(vp9Config(64, 64)); err != nil {
			t.Errorf("Mux() error = %v, want repeated config accepted", err)
		}
	})

	t.Run("size change before header", func(t *testing.T) {
		m := NewWebMMuxer()
		m.Mux(vp9Config(64, 64))
		if _, err := m.Mux(vp9Config(128, 96)); err != nil {
			t.Fatalf("Mux() error = %v", err)
		}
		out, err := m.Mux(dataChunk(0, true, 1))
		if err != nil {
			t.Fatalf("Mux(data) error = %v", err)
		}
		// PixelWidth (0xB0) and PixelHeight (0xBA) hold the last config.
		for _, want := range [][]byte{{0xB0, 0x81, 128}, {0xBA, 0x81, 96}} {
			if !bytes.Contains(out, want) {
				t.Errorf("header missing % x", want)
			}
		}
	})

	t.Run("use after finish", func(t *testing.T) {
		m := NewWebMMuxer()
		m.Mux(vp9Config(64, 64))
		if _, err := m.Finish(); err != nil {
			t.Fatal(err)
		}
		if _, err := m.Mux(dataChunk(0, true, 1)); !errors.Is(err, ErrEngineClosed) {
			t.Errorf("Mux() after Finish error = %v, want ErrEngineClosed", err)
		}
		if _, err := m.Finish(); !errors.Is(err, ErrEngineClosed) {
			t.Errorf("second Finish() error = %v, want ErrEngineClosed", err)
		}
	})
}

func TestWebMMuxerFactory(t *testing.T) {
	f := NewWebMMuxerFactory()
	a, _ := f()
	b, _ := f()
	if a == b {
		t.Error("factory returned a shared muxer")
	}
}

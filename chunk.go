package transcode

import (
	"path/filepath"
	"strconv"
	"strings"
)

// ChunkKind distinguishes configuration events from compressed payloads.
type ChunkKind int

const (
	ChunkData ChunkKind = iota
	ChunkConfig
)

func (k ChunkKind) String() string {
	if k == ChunkConfig {
		return "config"
	}
	return "data"
}

// EncodedChunk is one compressed access unit, or a configuration event that
// applies to every data chunk after it.
type EncodedChunk struct {
	Kind          ChunkKind
	Type          FrameType
	Timestamp     int64 // Microseconds
	Duration      int64 // Microseconds (optional)
	Data          []byte
	DecoderConfig *DecoderConfig // Set only on config chunks
}

// NewConfigChunk wraps cfg in a config event.
func NewConfigChunk(cfg *DecoderConfig) *EncodedChunk {
	return &EncodedChunk{Kind: ChunkConfig, DecoderConfig: cfg}
}

// IsConfig reports whether this is a configuration event.
func (c *EncodedChunk) IsConfig() bool { return c.Kind == ChunkConfig }

// IsKeyframe returns true if this is a keyframe data chunk.
func (c *EncodedChunk) IsKeyframe() bool {
	return c.Kind == ChunkData && c.Type == FrameTypeKey
}

// Clone creates a deep copy of the chunk.
func (c *EncodedChunk) Clone() *EncodedChunk {
	clone := *c
	if c.Data != nil {
		clone.Data = append([]byte(nil), c.Data...)
	}
	clone.DecoderConfig = c.DecoderConfig.Clone()
	return &clone
}

// ByteRun is an append-only fragment of the muxed output.
type ByteRun struct {
	Position int64 // Offset of Data within the whole output
	Data     []byte
}

// Segment is one bounded slice of the muxed output handed to an Uploader.
type Segment struct {
	Sequence uint32 // 1-based, contiguous within a run
	Name     string
	Data     []byte
}

// Size returns the payload length.
func (s *Segment) Size() int { return len(s.Data) }

// SegmentInfo describes an uploaded segment in a Result.
type SegmentInfo struct {
	Sequence uint32
	Name     string
	Size     int
}

// SegmentName builds "<base>-<label>.<seq>.<ext>".
func SegmentName(base, label string, seq uint32, ext string) string {
	var b strings.Builder
	b.Grow(len(base) + len(label) + len(ext) + 13)
	b.WriteString(base)
	b.WriteByte('-')
	b.WriteString(label)
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(uint64(seq), 10))
	b.WriteByte('.')
	b.WriteString(strings.TrimPrefix(ext, "."))
	return b.String()
}

// BaseName returns the file name of path without directory or extension.
func BaseName(path string) string {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

package transcode

import (
	"bytes"
	"fmt"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
)

// Muxer lays out encoded chunks in a container. Every call returns the bytes
// appended to the output by that call; the output is append-only.
type Muxer interface {
	// Mux consumes one chunk. Config chunks set up the track and may return
	// no bytes. A data chunk before any config chunk fails.
	Mux(chunk *EncodedChunk) ([]byte, error)

	// Finish returns any trailing bytes. The muxer is unusable afterwards.
	Finish() ([]byte, error)
}

// MuxerFactory creates a Muxer for one run.
type MuxerFactory func() (Muxer, error)

const (
	webmTrackNumber = 1
	webmTrackUID    = 0x5452414E // "TRAN"
	webmTrackVideo  = 1
	webmTimecodeMs  = 1_000_000 // TimecodeScale in ns: block timestamps are milliseconds

	// Start a new cluster at a keyframe after this long, or whenever the
	// relative block timecode would overflow int16.
	webmClusterKeyframeMs = 5_000
	webmClusterMaxMs      = 32_767
)

type webmInfo struct {
	TimecodeScale uint64 `ebml:"TimecodeScale"`
	MuxingApp     string `ebml:"MuxingApp"`
	WritingApp    string `ebml:"WritingApp"`
}

type webmTracks struct {
	TrackEntry []webm.TrackEntry `ebml:"TrackEntry"`
}

type webmHead struct {
	Header  webm.EBMLHeader `ebml:"EBML"`
	Segment struct {
		Info   webmInfo   `ebml:"Info"`
		Tracks webmTracks `ebml:"Tracks"`
	} `ebml:"Segment,size=unknown"`
}

type webmClusterHead struct {
	Cluster struct {
		Timecode uint64 `ebml:"Timecode"`
	} `ebml:"Cluster,size=unknown"`
}

type webmSimpleBlock struct {
	SimpleBlock ebml.Block `ebml:"SimpleBlock"`
}

// WebMMuxer writes a single-video-track WebM stream with unknown-size
// segment and clusters, so bytes can be emitted as soon as blocks arrive.
type WebMMuxer struct {
	config      *DecoderConfig
	headWritten bool
	finished    bool

	clusterOpen bool
	clusterTs   int64 // Milliseconds

	buf bytes.Buffer
}

// NewWebMMuxer creates a WebM muxer.
func NewWebMMuxer() *WebMMuxer {
	return &WebMMuxer{}
}

// NewWebMMuxerFactory returns a MuxerFactory producing WebM muxers.
func NewWebMMuxerFactory() MuxerFactory {
	return func() (Muxer, error) { return NewWebMMuxer(), nil }
}

// Mux implements Muxer.
func (m *WebMMuxer) Mux(chunk *EncodedChunk) ([]byte, error) {
	if m.finished {
		return nil, ErrEngineClosed
	}
	if chunk.IsConfig() {
		return nil, m.configure(chunk.DecoderConfig)
	}
	if m.config == nil {
		return nil, ErrOutOfOrderConfig
	}

	m.buf.Reset()
	if !m.headWritten {
		if err := m.writeHead(); err != nil {
			return nil, err
		}
	}

	ts := chunk.Timestamp / 1000
	rel := ts - m.clusterTs
	if !m.clusterOpen || rel > webmClusterMaxMs || rel < 0 ||
		(chunk.IsKeyframe() && rel >= webmClusterKeyframeMs) {
		if err := m.openCluster(ts); err != nil {
			return nil, err
		}
		rel = 0
	}

	block := webmSimpleBlock{SimpleBlock: ebml.Block{
		TrackNumber: webmTrackNumber,
		Timecode:    int16(rel),
		Keyframe:    chunk.IsKeyframe(),
		Data:        [][]byte{chunk.Data},
	}}
	if err := ebml.Marshal(&block, &m.buf); err != nil {
		return nil, fmt.Errorf("marshal block: %w", err)
	}
	return m.take(), nil
}

func (m *WebMMuxer) configure(cfg *DecoderConfig) error {
	if cfg == nil {
		return fmt.Errorf("config chunk without decoder config")
	}
	if cfg.Codec.WebMCodecID() == "" {
		return fmt.Errorf("%w: %s in webm", ErrCodecNotSupported, cfg.Codec)
	}
	if m.headWritten {
		if cfg.Codec != m.config.Codec {
			return fmt.Errorf("%w: codec %s -> %s", ErrTrackChanged, m.config.Codec, cfg.Codec)
		}
		if cfg.CodedWidth != m.config.CodedWidth || cfg.CodedHeight != m.config.CodedHeight {
			return fmt.Errorf("%w: size %dx%d -> %dx%d", ErrTrackChanged,
				m.config.CodedWidth, m.config.CodedHeight, cfg.CodedWidth, cfg.CodedHeight)
		}
	}
	m.config = cfg
	return nil
}

func (m *WebMMuxer) writeHead() error {
	var head webmHead
	head.Header = webm.EBMLHeader{
		EBMLVersion:        1,
		EBMLReadVersion:    1,
		EBMLMaxIDLength:    4,
		EBMLMaxSizeLength:  8,
		DocType:            "webm",
		DocTypeVersion:     4,
		DocTypeReadVersion: 2,
	}
	head.Segment.Info = webmInfo{
		TimecodeScale: webmTimecodeMs,
		MuxingApp:     "transcode",
		WritingApp:    "transcode",
	}
	head.Segment.Tracks.TrackEntry = []webm.TrackEntry{{
		Name:         "video",
		TrackNumber:  webmTrackNumber,
		TrackUID:     webmTrackUID,
		CodecID:      m.config.Codec.WebMCodecID(),
		CodecPrivate: m.config.Description,
		TrackType:    webmTrackVideo,
		Video: &webm.Video{
			PixelWidth:  uint64(m.config.CodedWidth),
			PixelHeight: uint64(m.config.CodedHeight),
		},
	}}
	if err := ebml.Marshal(&head, &m.buf); err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	m.headWritten = true
	return nil
}

func (m *WebMMuxer) openCluster(tsMs int64) error {
	if tsMs < 0 {
		tsMs = 0
	}
	var c webmClusterHead
	c.Cluster.Timecode = uint64(tsMs)
	if err := ebml.Marshal(&c, &m.buf); err != nil {
		return fmt.Errorf("marshal cluster: %w", err)
	}
	m.clusterOpen = true
	m.clusterTs = tsMs
	return nil
}

func (m *WebMMuxer) take() []byte {
	out := make([]byte, m.buf.Len())
	copy(out, m.buf.Bytes())
	m.buf.Reset()
	return out
}

// Finish implements Muxer. Unknown-size elements need no trailer, so this
// only seals the muxer.
func (m *WebMMuxer) Finish() ([]byte, error) {
	if m.finished {
		return nil, ErrEngineClosed
	}
	m.finished = true
	return nil, nil
}

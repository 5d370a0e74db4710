package transcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Uploader persists one segment. UploadSegment returns once the segment is
// stored or has definitively failed; retries are the implementation's concern.
type Uploader interface {
	UploadSegment(ctx context.Context, seg *Segment) error
}

// UploaderFunc adapts a function to the Uploader interface.
type UploaderFunc func(ctx context.Context, seg *Segment) error

// UploadSegment implements Uploader.
func (f UploaderFunc) UploadSegment(ctx context.Context, seg *Segment) error {
	return f(ctx, seg)
}

// SegmentConfig controls how muxed output is cut into segments.
type SegmentConfig struct {
	BaseName        string // Input file name without directory or extension
	ResolutionLabel string // e.g. "240p"
	Extension       string // e.g. "webm"
	Threshold       int    // Flush once accumulated bytes exceed this (0 = DefaultSegmentThreshold)
}

func (c *SegmentConfig) normalize() error {
	if c.BaseName == "" {
		return errors.New("segment base name required")
	}
	if c.ResolutionLabel == "" {
		return errors.New("segment resolution label required")
	}
	if c.Extension == "" {
		c.Extension = "webm"
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultSegmentThreshold
	}
	if c.Threshold < 0 {
		return fmt.Errorf("invalid segment threshold %d", c.Threshold)
	}
	return nil
}

// SegmenterState is the lifecycle of a Segmenter.
type SegmenterState int

const (
	SegmenterAccumulating SegmenterState = iota
	SegmenterFlushing
	SegmenterFinalFlush
	SegmenterClosed
)

func (s SegmenterState) String() string {
	switch s {
	case SegmenterAccumulating:
		return "accumulating"
	case SegmenterFlushing:
		return "flushing"
	case SegmenterFinalFlush:
		return "final-flush"
	case SegmenterClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Segmenter accumulates byte runs and hands bounded segments to an Uploader
// in sequence order. It is owned by a single goroutine.
type Segmenter struct {
	cfg      SegmentConfig
	uploader Uploader
	logger   *zap.Logger
	metrics  *Metrics

	state    SegmenterState
	pending  []byte
	position int64 // Bytes accepted so far
	seq      uint32
	segments []SegmentInfo
	uploaded int64
}

// NewSegmenter creates a Segmenter. logger and metrics may be nil.
func NewSegmenter(cfg SegmentConfig, uploader Uploader, logger *zap.Logger, metrics *Metrics) (*Segmenter, error) {
	if uploader == nil {
		return nil, errors.New("uploader required")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Segmenter{
		cfg:      cfg,
		uploader: uploader,
		logger:   logger,
		metrics:  metrics,
		pending:  make([]byte, 0, segmentBufferHint(cfg.Threshold)),
	}, nil
}

func segmentBufferHint(threshold int) int {
	return min(threshold+threshold/8, 16<<20)
}

// Write appends run to the current segment and uploads the segment once it
// exceeds the threshold. The upload is awaited before Write returns.
func (s *Segmenter) Write(ctx context.Context, run ByteRun) error {
	if s.state != SegmenterAccumulating {
		return ErrSegmenterClosed
	}
	if run.Position != s.position {
		return fmt.Errorf("byte run at %d, expected %d", run.Position, s.position)
	}

	s.pending = append(s.pending, run.Data...)
	s.position += int64(len(run.Data))

	if len(s.pending) <= s.cfg.Threshold {
		return nil
	}
	s.state = SegmenterFlushing
	if err := s.flush(ctx); err != nil {
		s.state = SegmenterClosed
		return err
	}
	s.state = SegmenterAccumulating
	return nil
}

// Close uploads the residual bytes, if any, as the final segment.
func (s *Segmenter) Close(ctx context.Context) error {
	if s.state != SegmenterAccumulating {
		return ErrSegmenterClosed
	}
	s.state = SegmenterFinalFlush
	defer func() { s.state = SegmenterClosed }()

	if len(s.pending) == 0 {
		return nil
	}
	return s.flush(ctx)
}

// Abort drops buffered bytes without uploading them.
func (s *Segmenter) Abort() {
	s.state = SegmenterClosed
	s.pending = nil
}

func (s *Segmenter) flush(ctx context.Context) error {
	s.seq++
	seg := &Segment{
		Sequence: s.seq,
		Name:     SegmentName(s.cfg.BaseName, s.cfg.ResolutionLabel, s.seq, s.cfg.Extension),
		Data:     s.pending,
	}
	// The uploader owns seg.Data from here on.
	s.pending = make([]byte, 0, segmentBufferHint(s.cfg.Threshold))

	start := time.Now()
	if err := s.uploader.UploadSegment(ctx, seg); err != nil {
		return &UploadError{Sequence: seg.Sequence, Name: seg.Name, Err: err}
	}
	elapsed := time.Since(start)

	s.segments = append(s.segments, SegmentInfo{Sequence: seg.Sequence, Name: seg.Name, Size: len(seg.Data)})
	s.uploaded += int64(len(seg.Data))
	s.metrics.segmentUploaded(len(seg.Data), elapsed)
	s.logger.Info("segment uploaded",
		zap.Uint32("sequence", seg.Sequence),
		zap.String("name", seg.Name),
		zap.Int("bytes", len(seg.Data)),
		zap.Duration("elapsed", elapsed))
	return nil
}

// State returns the current lifecycle state.
func (s *Segmenter) State() SegmenterState { return s.state }

// Buffered returns the number of bytes waiting for the next flush.
func (s *Segmenter) Buffered() int { return len(s.pending) }

// Uploaded returns the number of segments and bytes delivered so far.
func (s *Segmenter) Uploaded() (segments int, bytes int64) {
	return len(s.segments), s.uploaded
}

// Segments returns the segments uploaded so far.
func (s *Segmenter) Segments() []SegmentInfo {
	return append([]SegmentInfo(nil), s.segments...)
}

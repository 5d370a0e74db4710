package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultChannelDepth is the capacity of each inter-stage channel.
const DefaultChannelDepth = 4

// PipelineState represents the state of a Pipeline.
type PipelineState int32

const (
	PipelineStateIdle      PipelineState = iota // Not started
	PipelineStateRunning                        // Processing input
	PipelineStateCompleted                      // Finished, every segment uploaded
	PipelineStateFailed                         // Aborted by the first stage error
)

func (s PipelineState) String() string {
	switch s {
	case PipelineStateIdle:
		return "idle"
	case PipelineStateRunning:
		return "running"
	case PipelineStateCompleted:
		return "completed"
	case PipelineStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PipelineConfig configures a Pipeline. Only Encoder, Uploader and
// Segment.BaseName are required.
type PipelineConfig struct {
	Demuxer           Demuxer        // Default: IVF
	NewDecoder        DecoderFactory // Default: registry, auto provider
	NewEncoder        EncoderFactory // Default: registry, auto provider
	NewPreviewDecoder DecoderFactory // Default: NewDecoder
	NewMuxer          MuxerFactory   // Default: WebM

	Encoder   EncoderConfig
	ScaleMode ScaleMode

	// Render receives re-decoded output frames. Nil disables preview decoding.
	Render RenderFunc

	Uploader Uploader
	Segment  SegmentConfig // ResolutionLabel defaults to Encoder.ResolutionLabel()

	ChannelDepth  int // Default: DefaultChannelDepth
	FramePoolSize int // Decoded frames in flight. Default: ChannelDepth + 2

	Logger  *zap.Logger // Default: no-op
	Metrics *Metrics    // Optional
}

func (c *PipelineConfig) normalize() error {
	if c.Uploader == nil {
		return errors.New("uploader is required")
	}
	if err := c.Encoder.Validate(); err != nil {
		return fmt.Errorf("encoder config: %w", err)
	}
	if c.Segment.ResolutionLabel == "" {
		c.Segment.ResolutionLabel = c.Encoder.ResolutionLabel()
	}
	if err := c.Segment.normalize(); err != nil {
		return err
	}
	if c.Demuxer == nil {
		c.Demuxer = NewIVFDemuxer()
	}
	if c.NewDecoder == nil {
		c.NewDecoder = DecoderFactoryFor(ProviderAuto)
	}
	if c.NewEncoder == nil {
		c.NewEncoder = EncoderFactoryFor(ProviderAuto)
	}
	if c.NewPreviewDecoder == nil {
		c.NewPreviewDecoder = c.NewDecoder
	}
	if c.NewMuxer == nil {
		c.NewMuxer = NewWebMMuxerFactory()
	}
	if c.ChannelDepth <= 0 {
		c.ChannelDepth = DefaultChannelDepth
	}
	if c.FramePoolSize <= 0 {
		c.FramePoolSize = c.ChannelDepth + 2
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}

// PipelineStats is a snapshot of pipeline progress.
type PipelineStats struct {
	ChunksDemuxed  uint64
	ConfigChanges  uint64
	FramesDecoded  uint64
	FramesEncoded  uint64
	FramesScaled   uint64
	ChunksEncoded  uint64
	PreviewFrames  uint64
	RenderFailures uint64
	BytesMuxed     uint64
	Segments       uint64
	BytesUploaded  uint64
	FramesAcquired int64 // Frames taken from the pools
	FramesReleased int64 // Frames returned to the pools
}

// Result describes a completed run.
type Result struct {
	RunID    uuid.UUID
	Segments []SegmentInfo
	Stats    PipelineStats
	Elapsed  time.Duration
}

// Pipeline transcodes one input into uploaded segments:
//
//	Demux -> Decode -> Encode -> Preview -> Mux -> Upload
//
// A Pipeline runs once. Separate Pipelines share no mutable state.
type Pipeline struct {
	cfg PipelineConfig

	state atomic.Int32
	stats stageCounters

	decodePool  *FramePool
	scalePool   *FramePool
	previewPool *FramePool
}

// New validates cfg and creates a Pipeline.
func New(cfg PipelineConfig) (*Pipeline, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:         cfg,
		decodePool:  NewFramePool(cfg.FramePoolSize),
		scalePool:   NewFramePool(2),
		previewPool: NewFramePool(2),
	}
	p.state.Store(int32(PipelineStateIdle))
	return p, nil
}

// State returns the current pipeline state.
func (p *Pipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// Stats returns a snapshot of the pipeline counters. Safe during a run.
func (p *Pipeline) Stats() PipelineStats {
	s := &p.stats
	return PipelineStats{
		ChunksDemuxed:  s.chunksDemuxed.Load(),
		ConfigChanges:  s.configChanges.Load(),
		FramesDecoded:  s.framesDecoded.Load(),
		FramesEncoded:  s.framesEncoded.Load(),
		FramesScaled:   s.framesScaled.Load(),
		ChunksEncoded:  s.chunksEncoded.Load(),
		PreviewFrames:  s.previewFrames.Load(),
		RenderFailures: s.renderFailures.Load(),
		BytesMuxed:     s.bytesMuxed.Load(),
		Segments:       s.segments.Load(),
		BytesUploaded:  s.bytesUploaded.Load(),
		FramesAcquired: p.decodePool.Acquired() + p.scalePool.Acquired() + p.previewPool.Acquired(),
		FramesReleased: p.decodePool.Returned() + p.scalePool.Returned() + p.previewPool.Returned(),
	}
}

// Run transcodes r. It returns after every stage has stopped, with either a
// Result or a *StageError naming the stage that failed first.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (*Result, error) {
	if !p.state.CompareAndSwap(int32(PipelineStateIdle), int32(PipelineStateRunning)) {
		return nil, ErrAlreadyStarted
	}

	runID := uuid.New()
	log := p.cfg.Logger.With(zap.String("run_id", runID.String()))
	start := time.Now()
	log.Info("pipeline started",
		zap.String("base_name", p.cfg.Segment.BaseName),
		zap.Stringer("target", &p.cfg.Encoder))

	segments, err := p.run(ctx, r, log)
	elapsed := time.Since(start)
	p.cfg.Metrics.runFinished(err, elapsed)

	if err != nil {
		p.state.Store(int32(PipelineStateFailed))
		log.Error("pipeline failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}
	p.state.Store(int32(PipelineStateCompleted))

	res := &Result{
		RunID:    runID,
		Segments: segments,
		Stats:    p.Stats(),
		Elapsed:  elapsed,
	}
	log.Info("pipeline completed",
		zap.Int("segments", len(segments)),
		zap.Uint64("bytes", res.Stats.BytesUploaded),
		zap.Duration("elapsed", elapsed))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, r io.Reader, log *zap.Logger) ([]SegmentInfo, error) {
	env := &runEnv{log: log, metrics: p.cfg.Metrics, stats: &p.stats}
	depth := p.cfg.ChannelDepth

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	chunks := make(chan *EncodedChunk, depth)
	frames := make(chan *DecodedFrame, depth)
	encoded := make(chan *EncodedChunk, depth)
	previewed := make(chan *EncodedChunk, depth)
	runs := make(chan ByteRun, depth)

	// Fail fast on an unusable target before reading any input.
	enc := &encodeStage{
		env:       env,
		cfg:       p.cfg.Encoder,
		scaleMode: p.cfg.ScaleMode,
		scalePool: p.scalePool,
		in:        frames,
		out:       encoded,
		ctx:       gctx,
	}
	if err := enc.open(gctx, p.cfg.NewEncoder); err != nil {
		return nil, stageErr(StageEncode, err)
	}

	muxer, err := p.cfg.NewMuxer()
	if err != nil {
		enc.close()
		return nil, stageErr(StageMux, &MuxError{Err: err})
	}
	seg, err := NewSegmenter(p.cfg.Segment, p.cfg.Uploader, env.stageLogger(StageUpload), p.cfg.Metrics)
	if err != nil {
		enc.close()
		return nil, stageErr(StageUpload, err)
	}

	demux := &demuxStage{env: env, demuxer: p.cfg.Demuxer, out: chunks}
	dec := &decodeStage{env: env, factory: p.cfg.NewDecoder, pool: p.decodePool, in: chunks, out: frames}
	prev := &previewStage{env: env, factory: p.cfg.NewPreviewDecoder, pool: p.previewPool,
		render: p.cfg.Render, in: encoded, out: previewed}
	mux := &muxStage{env: env, muxer: muxer, in: previewed, out: runs}
	up := &uploadStage{env: env, seg: seg, in: runs}

	g.Go(func() error { return stageErr(StageDemux, demux.run(gctx, r)) })
	g.Go(func() error { return stageErr(StageDecode, dec.run(gctx)) })
	g.Go(func() error { return stageErr(StageEncode, enc.run(gctx)) })
	g.Go(func() error { return stageErr(StagePreview, prev.run(gctx)) })
	g.Go(func() error { return stageErr(StageMux, mux.run(gctx)) })
	g.Go(func() error { return stageErr(StageUpload, up.run(gctx)) })

	err = g.Wait()
	releaseStranded(frames)
	p.cfg.Metrics.framesInFlight(p.decodePool.Outstanding())
	if err != nil {
		return nil, err
	}
	return seg.Segments(), nil
}

// releaseStranded releases frames left in a channel after the stages stopped.
func releaseStranded(frames chan *DecodedFrame) {
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			f.Release()
		default:
			return
		}
	}
}

package transcode

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"go.uber.org/zap"
)

// stageCounters are the live counters behind PipelineStats.
type stageCounters struct {
	chunksDemuxed  atomic.Uint64
	configChanges  atomic.Uint64
	framesDecoded  atomic.Uint64
	framesEncoded  atomic.Uint64
	framesScaled   atomic.Uint64
	chunksEncoded  atomic.Uint64
	previewFrames  atomic.Uint64
	renderFailures atomic.Uint64
	bytesMuxed     atomic.Uint64
	segments       atomic.Uint64
	bytesUploaded  atomic.Uint64
}

// runEnv is shared by the stages of one run.
type runEnv struct {
	log     *zap.Logger
	metrics *Metrics
	stats   *stageCounters
}

func (e *runEnv) stageLogger(stage Stage) *zap.Logger {
	return e.log.With(zap.Stringer("stage", stage))
}

// send hands v to the next stage, giving up when ctx ends.
func send[T any](ctx context.Context, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stageErr attributes err to stage unless it already carries a stage.
func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// demuxStage feeds the demuxer's events into the chunk channel. Config events
// travel as config chunks so they stay ordered with the data.
type demuxStage struct {
	env     *runEnv
	demuxer Demuxer
	out     chan<- *EncodedChunk
}

func (s *demuxStage) run(ctx context.Context, r io.Reader) (err error) {
	defer func() {
		if err == nil {
			close(s.out)
		}
	}()
	log := s.env.stageLogger(StageDemux)

	err = s.demuxer.Run(ctx, r, DemuxHandler{
		OnConfig: func(ctx context.Context, cfg *DecoderConfig) error {
			log.Info("input configuration", zap.Stringer("config", cfg))
			return send(ctx, s.out, NewConfigChunk(cfg.Clone()))
		},
		OnChunk: func(ctx context.Context, chunk *EncodedChunk) error {
			s.env.stats.chunksDemuxed.Add(1)
			s.env.metrics.chunkDemuxed()
			return send(ctx, s.out, chunk)
		},
	})
	if err != nil {
		return err
	}
	log.Debug("input exhausted", zap.Uint64("chunks", s.env.stats.chunksDemuxed.Load()))
	return nil
}

// muxStage turns chunks into ordered byte runs.
type muxStage struct {
	env   *runEnv
	muxer Muxer
	in    <-chan *EncodedChunk
	out   chan<- ByteRun
	pos   int64
}

func (s *muxStage) run(ctx context.Context) (err error) {
	defer func() {
		if err == nil {
			close(s.out)
		}
	}()

	for {
		var chunk *EncodedChunk
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok = <-s.in:
		}
		if !ok {
			trailer, err := s.muxer.Finish()
			if err != nil {
				return &MuxError{Err: err}
			}
			return s.emit(ctx, trailer)
		}

		b, err := s.muxer.Mux(chunk)
		if err != nil {
			return &MuxError{Err: err}
		}
		if err := s.emit(ctx, b); err != nil {
			return err
		}
	}
}

func (s *muxStage) emit(ctx context.Context, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := send(ctx, s.out, ByteRun{Position: s.pos, Data: b}); err != nil {
		return err
	}
	s.pos += int64(len(b))
	s.env.stats.bytesMuxed.Add(uint64(len(b)))
	s.env.metrics.muxed(len(b))
	return nil
}

// uploadStage drives the Segmenter. Residual bytes are only flushed when the
// byte-run channel closes, which happens only if every upstream stage succeeded.
type uploadStage struct {
	env *runEnv
	seg *Segmenter
	in  <-chan ByteRun
}

func (s *uploadStage) run(ctx context.Context) error {
	for {
		var run ByteRun
		var ok bool
		select {
		case <-ctx.Done():
			s.seg.Abort()
			return ctx.Err()
		case run, ok = <-s.in:
		}
		if !ok {
			err := s.seg.Close(ctx)
			s.record()
			return err
		}
		if err := s.seg.Write(ctx, run); err != nil {
			s.seg.Abort()
			return err
		}
		s.record()
	}
}

func (s *uploadStage) record() {
	n, b := s.seg.Uploaded()
	s.env.stats.segments.Store(uint64(n))
	s.env.stats.bytesUploaded.Store(uint64(b))
}

package transcode

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// previewStage forwards every chunk unchanged and, when a renderer is set,
// re-decodes the data chunks for preview.
type previewStage struct {
	env     *runEnv
	factory DecoderFactory
	pool    *FramePool
	render  RenderFunc
	in      <-chan *EncodedChunk
	out     chan<- *EncodedChunk
}

func (s *previewStage) run(ctx context.Context) (err error) {
	log := s.env.stageLogger(StagePreview)

	var sess *decoderSession
	if s.render != nil {
		sess = newDecoderSession(StagePreview, s.factory, s.pool.Allocator(ctx), func(f *DecodedFrame) {
			s.show(ctx, log, f)
		}, log)
	}

	defer func() {
		if sess != nil {
			if cerr := sess.close(); cerr != nil && err == nil {
				err = &DecodeError{Timestamp: sess.lastTs, Err: cerr}
			}
		}
		if err == nil {
			close(s.out)
		}
	}()

	var engineErrs <-chan error
	if sess != nil {
		engineErrs = sess.errs
	}

	for {
		var chunk *EncodedChunk
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case engineErr := <-engineErrs:
			return &DecodeError{Timestamp: sess.lastTs, Err: engineErr}
		case chunk, ok = <-s.in:
		}
		if !ok {
			if sess != nil {
				return sess.flush(ctx)
			}
			return nil
		}

		if sess != nil {
			if chunk.IsConfig() {
				changed, err := sess.configure(ctx, chunk.DecoderConfig)
				if err != nil {
					return err
				}
				if changed {
					s.env.metrics.configChanged(StagePreview)
				}
			} else if err := sess.decode(chunk); err != nil {
				return err
			}
		}
		if err := send(ctx, s.out, chunk); err != nil {
			return err
		}
	}
}

// show hands f to the renderer and releases it afterwards. Render failures
// are logged and counted only.
func (s *previewStage) show(ctx context.Context, log *zap.Logger, f *DecodedFrame) {
	defer f.Release()

	err := safeRender(ctx, s.render, f)
	s.env.stats.previewFrames.Add(1)
	s.env.metrics.previewRendered(err != nil)
	if err != nil {
		s.env.stats.renderFailures.Add(1)
		log.Warn("preview render failed", zap.Int64("timestamp_us", f.Timestamp), zap.Error(err))
	}
}

func safeRender(ctx context.Context, render RenderFunc, f *DecodedFrame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()
	return render(ctx, f)
}

package transcode

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// decoderSession owns one decode engine at a time and swaps it when the
// codec changes. It is shared by the input and preview decode stages.
type decoderSession struct {
	stage   Stage
	factory DecoderFactory
	frames  FrameAllocator
	output  func(*DecodedFrame)
	log     *zap.Logger

	errs chan error // First asynchronous engine error

	dec        VideoDecoder
	codec      VideoCodec
	active     *DecoderConfig
	configured bool
	lastTs     int64
	closeOnce  sync.Once
}

func newDecoderSession(stage Stage, factory DecoderFactory, frames FrameAllocator,
	output func(*DecodedFrame), log *zap.Logger) *decoderSession {
	return &decoderSession{
		stage:   stage,
		factory: factory,
		frames:  frames,
		output:  output,
		log:     log,
		errs:    make(chan error, 1),
	}
}

func (s *decoderSession) report(err error) {
	if err == nil {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

// asyncErr returns a pending engine error without blocking.
func (s *decoderSession) asyncErr() error {
	select {
	case err := <-s.errs:
		return &DecodeError{Timestamp: s.lastTs, Err: err}
	default:
		return nil
	}
}

// configure applies cfg before the next data chunk and reports whether the
// engine was reconfigured. A config equal to the active one is a no-op. A
// codec change flushes and closes the current engine before creating a new one.
func (s *decoderSession) configure(ctx context.Context, cfg *DecoderConfig) (bool, error) {
	if cfg == nil {
		return false, &DecodeError{Timestamp: s.lastTs, Err: errors.New("config chunk without decoder config")}
	}
	if s.active.Equal(cfg) {
		return false, nil
	}
	if err := cfg.Validate(); err != nil {
		return false, &UnsupportedConfigurationError{Kind: "decoder", Config: cfg.String(), Err: err}
	}

	if s.dec != nil && s.codec != cfg.Codec {
		s.log.Info("decoder codec change", zap.Stringer("from", s.codec), zap.Stringer("to", cfg.Codec))
		if err := s.dec.Flush(ctx); err != nil {
			return false, &DecodeError{Timestamp: s.lastTs, Err: err}
		}
		if err := s.asyncErr(); err != nil {
			return false, err
		}
		if err := s.dec.Close(); err != nil {
			return false, &DecodeError{Timestamp: s.lastTs, Err: err}
		}
		s.dec = nil
	}

	if s.dec == nil {
		dec, err := s.factory(cfg.Codec, DecoderInit{
			Frames: s.frames,
			Output: s.output,
			Error:  s.report,
		})
		if err != nil {
			if errors.Is(err, ErrCodecNotSupported) || errors.Is(err, ErrProviderNotFound) {
				return false, &UnsupportedConfigurationError{Kind: "decoder", Config: cfg.String(), Err: err}
			}
			return false, &DecodeError{Timestamp: s.lastTs, Err: err}
		}
		s.dec = dec
		s.codec = cfg.Codec
	}

	s.configured = false
	ok, err := s.dec.IsConfigSupported(ctx, *cfg)
	if err != nil {
		return false, &DecodeError{Timestamp: s.lastTs, Err: err}
	}
	if !ok {
		return false, &UnsupportedConfigurationError{Kind: "decoder", Config: cfg.String()}
	}
	if err := s.dec.Configure(*cfg); err != nil {
		return false, &DecodeError{Timestamp: s.lastTs, Err: err}
	}
	s.active = cfg
	s.configured = true
	s.log.Info("decoder configured", zap.Stringer("config", cfg))
	return true, nil
}

func (s *decoderSession) decode(chunk *EncodedChunk) error {
	s.lastTs = chunk.Timestamp
	if !s.configured {
		return &DecodeError{Timestamp: chunk.Timestamp, Err: ErrNotConfigured}
	}
	if err := s.asyncErr(); err != nil {
		return err
	}
	if err := s.dec.Decode(chunk); err != nil {
		return &DecodeError{Timestamp: chunk.Timestamp, Err: err}
	}
	return nil
}

// flush waits for every pending frame. A session that never saw a config has
// nothing to flush.
func (s *decoderSession) flush(ctx context.Context) error {
	if s.dec == nil || !s.configured {
		return nil
	}
	if err := s.dec.Flush(ctx); err != nil {
		return &DecodeError{Timestamp: s.lastTs, Err: err}
	}
	return s.asyncErr()
}

// close releases the engine. Safe to call more than once.
func (s *decoderSession) close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.dec != nil {
			err = s.dec.Close()
			s.dec = nil
		}
	})
	return err
}

// decodeStage decodes the input chunks into frames for the encoder.
type decodeStage struct {
	env     *runEnv
	factory DecoderFactory
	pool    *FramePool
	in      <-chan *EncodedChunk
	out     chan<- *DecodedFrame
}

func (s *decodeStage) run(ctx context.Context) (err error) {
	log := s.env.stageLogger(StageDecode)
	sess := newDecoderSession(StageDecode, s.factory, s.pool.Allocator(ctx), func(f *DecodedFrame) {
		if err := send(ctx, s.out, f); err != nil {
			f.Release()
			return
		}
		s.env.stats.framesDecoded.Add(1)
		s.env.metrics.frameDecoded()
		s.env.metrics.framesInFlight(s.pool.Outstanding())
	}, log)

	defer func() {
		if cerr := sess.close(); cerr != nil && err == nil {
			err = &DecodeError{Timestamp: sess.lastTs, Err: cerr}
		}
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
		case engineErr := <-sess.errs:
			return &DecodeError{Timestamp: sess.lastTs, Err: engineErr}
		case chunk, ok = <-s.in:
		}
		if !ok {
			if err := sess.flush(ctx); err != nil {
				return err
			}
			log.Debug("decoder drained", zap.Uint64("frames", s.env.stats.framesDecoded.Load()))
			return nil
		}

		if chunk.IsConfig() {
			changed, err := sess.configure(ctx, chunk.DecoderConfig)
			if err != nil {
				return err
			}
			if changed {
				s.env.stats.configChanges.Add(1)
				s.env.metrics.configChanged(StageDecode)
			}
			continue
		}
		if err := sess.decode(chunk); err != nil {
			return err
		}
	}
}

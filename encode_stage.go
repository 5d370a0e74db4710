package transcode

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// encodeStage re-encodes decoded frames at the target configuration and
// inserts a config chunk ahead of the first data chunk of each new decoder
// configuration.
type encodeStage struct {
	env       *runEnv
	cfg       EncoderConfig
	scaleMode ScaleMode
	scalePool *FramePool
	in        <-chan *DecodedFrame
	out       chan<- *EncodedChunk
	log       *zap.Logger

	// ctx bounds output delivery from engine callbacks.
	ctx context.Context

	enc       VideoEncoder
	errs      chan error
	closeOnce sync.Once

	frames     int
	lastConfig *DecoderConfig
	lastTs     int64
}

// open creates and configures the engine. It runs before any stage goroutine
// starts so an unsupported target fails the run without consuming input.
func (s *encodeStage) open(ctx context.Context, factory EncoderFactory) error {
	s.errs = make(chan error, 1)
	s.log = s.env.stageLogger(StageEncode)

	enc, err := factory(s.cfg.Codec, EncoderCallbacks{
		Output: s.onOutput,
		Error:  s.onError,
	})
	if err != nil {
		if errors.Is(err, ErrCodecNotSupported) || errors.Is(err, ErrProviderNotFound) {
			return &UnsupportedConfigurationError{Kind: "encoder", Config: s.cfg.String(), Err: err}
		}
		return &EncodeError{Err: err}
	}
	s.enc = enc

	ok, err := enc.IsConfigSupported(ctx, s.cfg)
	if err != nil {
		s.close()
		return &EncodeError{Err: err}
	}
	if !ok {
		s.close()
		return &UnsupportedConfigurationError{Kind: "encoder", Config: s.cfg.String()}
	}
	if err := enc.Configure(s.cfg); err != nil {
		s.close()
		return &UnsupportedConfigurationError{Kind: "encoder", Config: s.cfg.String(), Err: err}
	}
	s.log.Info("encoder configured", zap.Stringer("config", &s.cfg))
	return nil
}

func (s *encodeStage) onError(err error) {
	if err == nil {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

func (s *encodeStage) onOutput(chunk *EncodedChunk, meta EncodedChunkMetadata) {
	cfg := meta.DecoderConfig
	if cfg == nil && s.lastConfig == nil {
		// Engine did not describe its output; derive it from the target.
		cfg = &DecoderConfig{
			Codec:       s.cfg.Codec,
			CodecString: s.cfg.CodecString,
			CodedWidth:  s.cfg.Width,
			CodedHeight: s.cfg.Height,
		}
	}
	if cfg != nil && !cfg.Equal(s.lastConfig) {
		cfg = cfg.Clone()
		if err := send(s.ctx, s.out, NewConfigChunk(cfg)); err != nil {
			return
		}
		s.lastConfig = cfg
		s.env.stats.configChanges.Add(1)
		s.env.metrics.configChanged(StageEncode)
		s.log.Debug("output configuration", zap.Stringer("config", cfg))
	}

	chunk.Kind = ChunkData
	chunk.DecoderConfig = nil
	if err := send(s.ctx, s.out, chunk); err != nil {
		return
	}
	s.env.stats.chunksEncoded.Add(1)
	s.env.metrics.chunkEncoded()
}

func (s *encodeStage) close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.enc != nil {
			err = s.enc.Close()
		}
	})
	return err
}

func (s *encodeStage) asyncErr() error {
	select {
	case err := <-s.errs:
		return &EncodeError{Timestamp: s.lastTs, Err: err}
	default:
		return nil
	}
}

func (s *encodeStage) run(ctx context.Context) (err error) {
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = &EncodeError{Timestamp: s.lastTs, Err: cerr}
		}
		if err == nil {
			close(s.out)
		}
	}()

	for {
		var frame *DecodedFrame
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case engineErr := <-s.errs:
			return &EncodeError{Timestamp: s.lastTs, Err: engineErr}
		case frame, ok = <-s.in:
		}
		if !ok {
			if err := s.enc.Flush(ctx); err != nil {
				return &EncodeError{Timestamp: s.lastTs, Err: err}
			}
			if err := s.asyncErr(); err != nil {
				return err
			}
			s.log.Debug("encoder drained",
				zap.Int("frames", s.frames),
				zap.Uint64("chunks", s.env.stats.chunksEncoded.Load()))
			return nil
		}
		if err := s.encode(ctx, frame); err != nil {
			return err
		}
	}
}

// encode consumes frame, releasing it (and any scaled copy) before returning.
func (s *encodeStage) encode(ctx context.Context, frame *DecodedFrame) error {
	defer frame.Release()
	s.lastTs = frame.Timestamp

	src := frame
	scaled := frame.Width != s.cfg.Width || frame.Height != s.cfg.Height
	if scaled {
		dst, err := s.scalePool.Get(ctx, s.cfg.Width, s.cfg.Height)
		if err != nil {
			return err
		}
		defer dst.Release()
		ScaleInto(dst, frame, s.scaleMode)
		src = dst
	}

	keyFrame := s.frames == 0 || (s.cfg.KeyframeInterval > 0 && s.frames%s.cfg.KeyframeInterval == 0)
	s.frames++

	if err := s.enc.Encode(src, EncodeOptions{KeyFrame: keyFrame}); err != nil {
		return &EncodeError{Timestamp: frame.Timestamp, Err: err}
	}
	s.env.stats.framesEncoded.Add(1)
	if scaled {
		s.env.stats.framesScaled.Add(1)
	}
	s.env.metrics.frameEncoded(scaled)
	return nil
}

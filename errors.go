package transcode

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrProviderNotFound  = errors.New("provider not available")
	ErrCodecNotSupported = errors.New("codec not supported by provider")
	ErrCodecMismatch     = errors.New("payload does not match declared codec")
	ErrNotSupported      = errors.New("operation not supported")
	ErrNotConfigured     = errors.New("engine used before configure")
	ErrEngineClosed      = errors.New("engine closed")
	ErrAlreadyStarted    = errors.New("pipeline already started")
	ErrOutOfOrderConfig  = errors.New("data chunk before any config chunk")
	ErrTrackChanged      = errors.New("track changed after header was written")
	ErrSegmenterClosed   = errors.New("segmenter closed")
)

// Stage identifies one step of the pipeline.
type Stage int

const (
	StageDemux Stage = iota
	StageDecode
	StageEncode
	StagePreview
	StageMux
	StageUpload
)

func (s Stage) String() string {
	switch s {
	case StageDemux:
		return "demux"
	case StageDecode:
		return "decode"
	case StageEncode:
		return "encode"
	case StagePreview:
		return "preview"
	case StageMux:
		return "mux"
	case StageUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// StageError is the single failure a run reports. Err holds the typed cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// DemuxError reports malformed or unsupported container input.
type DemuxError struct {
	Offset int64 // Byte offset where parsing failed (-1 if unknown)
	Err    error
}

func (e *DemuxError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("demux at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("demux: %v", e.Err)
}

func (e *DemuxError) Unwrap() error { return e.Err }

// UnsupportedConfigurationError reports a codec configuration an engine rejected
// before first use.
type UnsupportedConfigurationError struct {
	Kind   string // "decoder" or "encoder"
	Config string
	Err    error // Optional cause from the support check
}

func (e *UnsupportedConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported %s configuration %s: %v", e.Kind, e.Config, e.Err)
	}
	return fmt.Sprintf("unsupported %s configuration %s", e.Kind, e.Config)
}

func (e *UnsupportedConfigurationError) Unwrap() error { return e.Err }

// DecodeError reports a decode engine runtime failure.
type DecodeError struct {
	Timestamp int64 // Timestamp of the chunk being decoded, in microseconds
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode at %dus: %v", e.Timestamp, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports an encode engine runtime failure.
type EncodeError struct {
	Timestamp int64
	Err       error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode at %dus: %v", e.Timestamp, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// MuxError reports a container muxing failure.
type MuxError struct {
	Err error
}

func (e *MuxError) Error() string { return "mux: " + e.Err.Error() }

func (e *MuxError) Unwrap() error { return e.Err }

// UploadError reports a segment that could not be delivered.
type UploadError struct {
	Sequence uint32
	Name     string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload segment %d (%s): %v", e.Sequence, e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// errorKind names the typed cause of err for logs and metrics.
func errorKind(err error) string {
	var (
		demuxErr       *DemuxError
		unsupportedErr *UnsupportedConfigurationError
		decodeErr      *DecodeError
		encodeErr      *EncodeError
		muxErr         *MuxError
		uploadErr      *UploadError
	)
	switch {
	case errors.As(err, &unsupportedErr):
		return "unsupported_configuration"
	case errors.As(err, &demuxErr):
		return "demux"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &encodeErr):
		return "encode"
	case errors.As(err, &muxErr):
		return "mux"
	case errors.As(err, &uploadErr):
		return "upload"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}

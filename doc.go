// Package transcode re-encodes a video file into a lower-resolution WebM stream
// while rendering a live preview and uploading the result in bounded segments.
//
// Key pieces include:
//   - Demuxer (IVF via pion) producing config and chunk events
//   - Decoder/encoder engine interfaces with a provider registry (libvpx via purego)
//   - A preview tee that re-decodes encoded output for a render callback
//   - A WebM muxer producing append-only byte runs
//   - A Segmenter that cuts the muxed stream into numbered uploads
//
// # Architecture
//
//	Demuxer -> DecodeStage -> EncodeStage -> PreviewStage -> MuxStage -> UploadStage
//	                                              |
//	                                              +-> RenderFunc (best effort)
//
// Every stage runs in its own goroutine and hands ownership of each value to the
// next stage through a bounded channel, so a slow uploader stalls the demuxer
// instead of growing memory. The first failure cancels the whole run.
//
// # Native Libraries
//
// The libvpx engines load libmedia_vpx with purego (no cgo). Set
// MEDIA_VPX_LIB_PATH or MEDIA_SDK_LIB_PATH to point at the library. When it is
// missing, codec support checks report false and the pipeline fails with
// UnsupportedConfigurationError before accepting any frame.
//
// # Frame Ownership
//
// DecodedFrame buffers come from a finite FramePool. Whoever holds a frame must
// call Release exactly once when done; engines must copy frame data they need
// after Encode returns.
package transcode

package transcode

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// EncodeOptions are per-frame encoder hints.
type EncodeOptions struct {
	KeyFrame bool
}

// EncodedChunkMetadata accompanies an encoder output chunk. DecoderConfig is
// set when the chunk needs a decoder configuration different from the last one.
type EncodedChunkMetadata struct {
	DecoderConfig *DecoderConfig
}

// EncoderCallbacks receive engine output. Output may block; engines must not
// hold internal locks while calling it.
type EncoderCallbacks struct {
	Output func(chunk *EncodedChunk, meta EncodedChunkMetadata)
	Error  func(err error)
}

// VideoEncoder compresses raw frames.
//
// Encode does not take ownership of the frame: the caller releases it after
// Encode returns, so engines copy whatever they keep.
type VideoEncoder interface {
	io.Closer

	// IsConfigSupported reports whether Configure would accept cfg.
	IsConfigSupported(ctx context.Context, cfg EncoderConfig) (bool, error)

	Configure(cfg EncoderConfig) error

	Encode(frame *DecodedFrame, opts EncodeOptions) error

	// Flush returns once every output for frames passed to Encode was delivered.
	Flush(ctx context.Context) error
}

// EncoderFactory creates an encode engine for codec.
type EncoderFactory func(codec VideoCodec, cb EncoderCallbacks) (VideoEncoder, error)

// --- Registry ---

type engineRegistry struct {
	mu sync.RWMutex

	// codec -> provider -> factory
	encoders map[VideoCodec]map[Provider]EncoderFactory
	decoders map[VideoCodec]map[Provider]DecoderFactory

	// Default provider per codec
	encoderDefaults map[VideoCodec]Provider
	decoderDefaults map[VideoCodec]Provider
}

var globalEngineRegistry = &engineRegistry{
	encoders:        make(map[VideoCodec]map[Provider]EncoderFactory),
	decoders:        make(map[VideoCodec]map[Provider]DecoderFactory),
	encoderDefaults: make(map[VideoCodec]Provider),
	decoderDefaults: make(map[VideoCodec]Provider),
}

// RegisterVideoEncoder registers an encoder factory for a codec+provider and
// marks the provider available. It panics for providers that cannot encode,
// including ProviderAuto.
func RegisterVideoEncoder(codec VideoCodec, provider Provider, factory EncoderFactory) {
	if !provider.CanEncode() {
		panic(fmt.Sprintf("transcode: provider %s cannot register an encoder", provider))
	}
	r := globalEngineRegistry
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoders[codec] == nil {
		r.encoders[codec] = make(map[Provider]EncoderFactory)
	}
	r.encoders[codec][provider] = factory
	setProviderAvailable(provider)

	// Set default: prefer permissive license providers, then first registered
	current, exists := r.encoderDefaults[codec]
	if !exists || (provider.License().Permissive() && !current.License().Permissive()) {
		r.encoderDefaults[codec] = provider
	}
}

// SetDefaultVideoEncoderProvider sets the default provider for a codec.
func SetDefaultVideoEncoderProvider(codec VideoCodec, provider Provider) {
	globalEngineRegistry.mu.Lock()
	defer globalEngineRegistry.mu.Unlock()
	globalEngineRegistry.encoderDefaults[codec] = provider
}

// NewVideoEncoder creates an encode engine from the registry.
func NewVideoEncoder(codec VideoCodec, provider Provider, cb EncoderCallbacks) (VideoEncoder, error) {
	r := globalEngineRegistry
	r.mu.RLock()
	providers := r.encoders[codec]
	if providers == nil {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: no encoder providers for %s", ErrCodecNotSupported, codec)
	}

	p := provider
	if p == ProviderAuto {
		p = r.encoderDefaults[codec]
	}
	factory, ok := providers[p]
	r.mu.RUnlock()

	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, codec)
	}
	return factory(codec, cb)
}

// EncoderFactoryFor returns a factory that resolves engines from the registry.
func EncoderFactoryFor(provider Provider) EncoderFactory {
	return func(codec VideoCodec, cb EncoderCallbacks) (VideoEncoder, error) {
		return NewVideoEncoder(codec, provider, cb)
	}
}

// VideoEncoderProviders returns available providers for a codec.
func VideoEncoderProviders(codec VideoCodec) []Provider {
	globalEngineRegistry.mu.RLock()
	defer globalEngineRegistry.mu.RUnlock()
	return availableProviders(globalEngineRegistry.encoders[codec])
}

func availableProviders[F any](providers map[Provider]F) []Provider {
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

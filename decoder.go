package transcode

import (
	"context"
	"fmt"
	"io"
)

// DecoderInit wires a decode engine to its frame source and consumer.
type DecoderInit struct {
	// Frames supplies output buffers. AllocateFrame blocks while the
	// pipeline's frame budget is exhausted.
	Frames FrameAllocator

	// Output receives ownership of each decoded frame, in presentation order.
	Output func(frame *DecodedFrame)

	// Error reports an asynchronous engine failure.
	Error func(err error)
}

// VideoDecoder decompresses encoded chunks into raw frames.
type VideoDecoder interface {
	io.Closer

	// IsConfigSupported reports whether Configure would accept cfg.
	IsConfigSupported(ctx context.Context, cfg DecoderConfig) (bool, error)

	// Configure (re)configures the engine. Chunks decoded afterwards use cfg.
	Configure(cfg DecoderConfig) error

	// Decode queues one data chunk. Returns ErrNotConfigured before Configure.
	Decode(chunk *EncodedChunk) error

	// Flush returns once every frame for chunks passed to Decode was delivered.
	Flush(ctx context.Context) error
}

// DecoderFactory creates a decode engine for codec.
type DecoderFactory func(codec VideoCodec, init DecoderInit) (VideoDecoder, error)

// RegisterVideoDecoder registers a decoder factory for a codec+provider and
// marks the provider available. It panics for ProviderAuto and for providers
// that cannot decode.
func RegisterVideoDecoder(codec VideoCodec, provider Provider, factory DecoderFactory) {
	if !provider.CanDecode() {
		panic(fmt.Sprintf("transcode: provider %s cannot register a decoder", provider))
	}
	r := globalEngineRegistry
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.decoders[codec] == nil {
		r.decoders[codec] = make(map[Provider]DecoderFactory)
	}
	r.decoders[codec][provider] = factory
	setProviderAvailable(provider)

	current, exists := r.decoderDefaults[codec]
	if !exists || (provider.License().Permissive() && !current.License().Permissive()) {
		r.decoderDefaults[codec] = provider
	}
}

// SetDefaultVideoDecoderProvider sets the default provider for a codec.
func SetDefaultVideoDecoderProvider(codec VideoCodec, provider Provider) {
	globalEngineRegistry.mu.Lock()
	defer globalEngineRegistry.mu.Unlock()
	globalEngineRegistry.decoderDefaults[codec] = provider
}

// NewVideoDecoder creates a decode engine from the registry.
func NewVideoDecoder(codec VideoCodec, provider Provider, init DecoderInit) (VideoDecoder, error) {
	r := globalEngineRegistry
	r.mu.RLock()
	providers := r.decoders[codec]
	if providers == nil {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: no decoder providers for %s", ErrCodecNotSupported, codec)
	}

	p := provider
	if p == ProviderAuto {
		p = r.decoderDefaults[codec]
	}
	factory, ok := providers[p]
	r.mu.RUnlock()

	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, codec)
	}
	return factory(codec, init)
}

// DecoderFactoryFor returns a factory that resolves engines from the registry.
func DecoderFactoryFor(provider Provider) DecoderFactory {
	return func(codec VideoCodec, init DecoderInit) (VideoDecoder, error) {
		return NewVideoDecoder(codec, provider, init)
	}
}

// VideoDecoderProviders returns available providers for a codec.
func VideoDecoderProviders(codec VideoCodec) []Provider {
	globalEngineRegistry.mu.RLock()
	defer globalEngineRegistry.mu.RUnlock()
	return availableProviders(globalEngineRegistry.decoders[codec])
}

package transcode

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Provider identifies a codec engine implementation.
type Provider uint8

const (
	ProviderAuto   Provider = iota // Let the registry choose the best available
	ProviderLibvpx                 // libvpx VP8/VP9 via libmedia_vpx
	ProviderCustom                 // Engines registered by the embedding program
	providerCount
)

// License represents the software license of a provider.
type License uint8

const (
	LicenseGPL License = iota // Copyleft - requires source disclosure
	LicenseBSD                // Permissive - no copyleft obligations
)

// Permissive returns true if the license has no copyleft obligations.
func (l License) Permissive() bool { return l == LicenseBSD }

func (l License) String() string {
	switch l {
	case LicenseGPL:
		return "GPL"
	case LicenseBSD:
		return "BSD"
	default:
		return "unknown"
	}
}

// Features is a bitmask of provider capabilities.
type Features uint32

const (
	FeatureHardware       Features = 1 << iota // Runs on a hardware block
	FeatureLowLatency                          // Realtime deadline encoding
	FeatureDynamicBitrate                      // Runtime bitrate changes
	FeatureResolutionChange                    // Decoder follows in-band size changes
)

// Has returns true if all specified features are supported.
func (f Features) Has(feature Features) bool { return f&feature == feature }

func (f Features) String() string {
	var names []string
	if f.Has(FeatureHardware) {
		names = append(names, "hardware")
	}
	if f.Has(FeatureLowLatency) {
		names = append(names, "low-latency")
	}
	if f.Has(FeatureDynamicBitrate) {
		names = append(names, "dynamic-bitrate")
	}
	if f.Has(FeatureResolutionChange) {
		names = append(names, "resolution-change")
	}
	return strings.Join(names, ",")
}

type providerMeta struct {
	Name     string
	License  License
	Encoder  bool
	Decoder  bool
	Features Features
}

var providerInfo = [providerCount]providerMeta{
	ProviderAuto:   {"auto", LicenseBSD, false, false, 0},
	ProviderLibvpx: {"libvpx", LicenseBSD, true, true, FeatureLowLatency | FeatureDynamicBitrate | FeatureResolutionChange},
	ProviderCustom: {"custom", LicenseBSD, true, true, 0},
}

// Runtime availability - set when an implementation registers or loads.
var providerAvailable [providerCount]atomic.Bool

// ParseProvider maps a provider name to a Provider.
func ParseProvider(name string) (Provider, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return ProviderAuto, nil
	}
	for p := Provider(0); p < providerCount; p++ {
		if providerInfo[p].Name == n {
			return p, nil
		}
	}
	return ProviderAuto, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
}

// Providers returns every known provider except ProviderAuto.
func Providers() []Provider {
	out := make([]Provider, 0, providerCount-1)
	for p := ProviderAuto + 1; p < providerCount; p++ {
		out = append(out, p)
	}
	return out
}

// String returns the provider name.
func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// License returns the provider's license type.
func (p Provider) License() License {
	if p >= providerCount {
		return LicenseGPL
	}
	return providerInfo[p].License
}

// Features returns the provider's feature bitmask.
func (p Provider) Features() Features {
	if p >= providerCount {
		return 0
	}
	return providerInfo[p].Features
}

// CanEncode returns true if the provider supports encoding.
func (p Provider) CanEncode() bool {
	return p < providerCount && providerInfo[p].Encoder
}

// CanDecode returns true if the provider supports decoding.
func (p Provider) CanDecode() bool {
	return p < providerCount && providerInfo[p].Decoder
}

// Available returns true if the provider is usable at runtime.
func (p Provider) Available() bool {
	if p >= providerCount {
		return false
	}
	return providerAvailable[p].Load()
}

func setProviderAvailable(p Provider) {
	if p < providerCount {
		providerAvailable[p].Store(true)
	}
}

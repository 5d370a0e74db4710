package transcode

import (
	"errors"
	"slices"
	"testing"
)

func TestVideoCodec_String(t *testing.T) {
	tests := []struct {
		codec VideoCodec
		want  string
	}{
		{VideoCodecVP8, "VP8"},
		{VideoCodecVP9, "VP9"},
		{VideoCodecH264, "H264"},
		{VideoCodecAV1, "AV1"},
		{VideoCodecUnknown, "Unknown"},
		{VideoCodec(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.codec.String(); got != tt.want {
				t.Errorf("VideoCodec.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVideoCodec_FourCCRoundTrip(t *testing.T) {
	for _, codec := range []VideoCodec{VideoCodecVP8, VideoCodecVP9, VideoCodecAV1, VideoCodecH264} {
		t.Run(codec.String(), func(t *testing.T) {
			if got := CodecFromFourCC(codec.FourCC()); got != codec {
				t.Errorf("CodecFromFourCC(%q) = %v, want %v", codec.FourCC(), got, codec)
			}
		})
	}
	if got := CodecFromFourCC("avc1"); got != VideoCodecH264 {
		t.Errorf("CodecFromFourCC(avc1) = %v", got)
	}
	if got := CodecFromFourCC("MJPG"); got != VideoCodecUnknown {
		t.Errorf("CodecFromFourCC(MJPG) = %v", got)
	}
}

func TestVideoCodec_WebMCodecID(t *testing.T) {
	tests := []struct {
		codec VideoCodec
		want  string
	}{
		{VideoCodecVP8, "V_VP8"},
		{VideoCodecVP9, "V_VP9"},
		{VideoCodecAV1, "V_AV1"},
		{VideoCodecUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.codec.String(), func(t *testing.T) {
			if got := tt.codec.WebMCodecID(); got != tt.want {
				t.Errorf("VideoCodec.WebMCodecID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCodecString(t *testing.T) {
	tests := []struct {
		in      string
		want    VideoCodec
		wantErr bool
	}{
		{"vp8", VideoCodecVP8, false},
		{"vp09.00.10.08", VideoCodecVP9, false},
		{"VP9", VideoCodecVP9, false},
		{"av01.0.04M.08", VideoCodecAV1, false},
		{"avc1.42002A", VideoCodecH264, false},
		{" avc3.640028 ", VideoCodecH264, false},
		{"hev1.1.6.L93.B0", VideoCodecUnknown, true},
		{"", VideoCodecUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCodecString(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCodecString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrCodecNotSupported) {
				t.Errorf("error %v does not wrap ErrCodecNotSupported", err)
			}
			if got != tt.want {
				t.Errorf("ParseCodecString() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHardwareAcceleration(t *testing.T) {
	for _, h := range []HardwareAcceleration{
		HardwareAccelerationNoPreference,
		HardwareAccelerationPreferHardware,
		HardwareAccelerationPreferSoftware,
	} {
		got, err := ParseHardwareAcceleration(h.String())
		if err != nil || got != h {
			t.Errorf("ParseHardwareAcceleration(%q) = %v, %v", h.String(), got, err)
		}
	}
	if _, err := ParseHardwareAcceleration("gpu"); err == nil {
		t.Error("ParseHardwareAcceleration(gpu) error = nil")
	}
}

func TestProvider(t *testing.T) {
	tests := []struct {
		provider  Provider
		name      string
		canEncode bool
		canDecode bool
		license   License
	}{
		{ProviderAuto, "auto", false, false, LicenseBSD},
		{ProviderLibvpx, "libvpx", true, true, LicenseBSD},
		{ProviderCustom, "custom", true, true, LicenseBSD},
		{Provider(200), "unknown", false, false, LicenseGPL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.provider.String(); got != tt.name {
				t.Errorf("String() = %v, want %v", got, tt.name)
			}
			if got := tt.provider.CanEncode(); got != tt.canEncode {
				t.Errorf("CanEncode() = %v, want %v", got, tt.canEncode)
			}
			if got := tt.provider.CanDecode(); got != tt.canDecode {
				t.Errorf("CanDecode() = %v, want %v", got, tt.canDecode)
			}
			if got := tt.provider.License(); got != tt.license {
				t.Errorf("License() = %v, want %v", got, tt.license)
			}
		})
	}

	if p, err := ParseProvider(" LibVPX "); err != nil || p != ProviderLibvpx {
		t.Errorf("ParseProvider(libvpx) = %v, %v", p, err)
	}
	if p, err := ParseProvider(""); err != nil || p != ProviderAuto {
		t.Errorf("ParseProvider(\"\") = %v, %v", p, err)
	}
	if _, err := ParseProvider("nvenc"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("ParseProvider(nvenc) error = %v", err)
	}
	if slices.Contains(Providers(), ProviderAuto) {
		t.Error("Providers() includes auto")
	}
}

func TestFeatures_String(t *testing.T) {
	f := FeatureLowLatency | FeatureResolutionChange
	if got := f.String(); got != "low-latency,resolution-change" {
		t.Errorf("String() = %q", got)
	}
	if !f.Has(FeatureLowLatency) || f.Has(FeatureHardware) {
		t.Error("Has() mismatch")
	}
}

func TestRegistry(t *testing.T) {
	// AV1 has no built-in engines, so the custom registrations own it.
	RegisterVideoEncoder(VideoCodecAV1, ProviderCustom, fakeEncoderFactory(fakeEncoderOptions{}))
	RegisterVideoDecoder(VideoCodecAV1, ProviderCustom, fakeDecoderFactory(fakeDecoderOptions{}))

	if !ProviderCustom.Available() {
		t.Error("custom provider not available after registration")
	}

	enc, err := NewVideoEncoder(VideoCodecAV1, ProviderAuto, EncoderCallbacks{})
	if err != nil {
		t.Fatalf("NewVideoEncoder(auto) error = %v", err)
	}
	if _, ok := enc.(*fakeEncoder); !ok {
		t.Errorf("NewVideoEncoder(auto) = %T, want the registered engine", enc)
	}
	if _, err := DecoderFactoryFor(ProviderCustom)(VideoCodecAV1, DecoderInit{}); err != nil {
		t.Errorf("DecoderFactoryFor(custom) error = %v", err)
	}
	if got := VideoEncoderProviders(VideoCodecAV1); !slices.Contains(got, ProviderCustom) {
		t.Errorf("VideoEncoderProviders(AV1) = %v", got)
	}
	if got := VideoDecoderProviders(VideoCodecAV1); !slices.Contains(got, ProviderCustom) {
		t.Errorf("VideoDecoderProviders(AV1) = %v", got)
	}

	if _, err := NewVideoEncoder(VideoCodecH264, ProviderAuto, EncoderCallbacks{}); !errors.Is(err, ErrCodecNotSupported) {
		t.Errorf("NewVideoEncoder(H264) error = %v, want ErrCodecNotSupported", err)
	}
	if _, err := NewVideoDecoder(VideoCodecAV1, ProviderLibvpx, DecoderInit{}); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("NewVideoDecoder(AV1, libvpx) error = %v, want ErrProviderNotFound", err)
	}
}

func TestRegistry_RejectsProvidersWithoutCapability(t *testing.T) {
	tests := []struct {
		name     string
		register func()
	}{
		{"auto encoder", func() {
			RegisterVideoEncoder(VideoCodecAV1, ProviderAuto, fakeEncoderFactory(fakeEncoderOptions{}))
		}},
		{"auto decoder", func() {
			RegisterVideoDecoder(VideoCodecAV1, ProviderAuto, fakeDecoderFactory(fakeDecoderOptions{}))
		}},
		{"unknown encoder", func() {
			RegisterVideoEncoder(VideoCodecAV1, Provider(200), fakeEncoderFactory(fakeEncoderOptions{}))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("registration did not panic")
				}
			}()
			tt.register()
		})
	}
	if ProviderAuto.Available() {
		t.Error("auto marked available by a rejected registration")
	}
}

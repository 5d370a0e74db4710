package transcode

import (
	"fmt"
	"strings"
)

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecAV1
	VideoCodecH264
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	case VideoCodecAV1:
		return "AV1"
	case VideoCodecH264:
		return "H264"
	default:
		return "Unknown"
	}
}

// FourCC returns the IVF fourcc for this codec.
func (c VideoCodec) FourCC() string {
	switch c {
	case VideoCodecVP8:
		return "VP80"
	case VideoCodecVP9:
		return "VP90"
	case VideoCodecAV1:
		return "AV01"
	case VideoCodecH264:
		return "H264"
	default:
		return ""
	}
}

// WebMCodecID returns the Matroska codec id for this codec.
func (c VideoCodec) WebMCodecID() string {
	switch c {
	case VideoCodecVP8:
		return "V_VP8"
	case VideoCodecVP9:
		return "V_VP9"
	case VideoCodecAV1:
		return "V_AV1"
	case VideoCodecH264:
		return "V_MPEG4/ISO/AVC"
	default:
		return ""
	}
}

// DefaultCodecString returns the codec string used when a config names only the codec.
func (c VideoCodec) DefaultCodecString() string {
	switch c {
	case VideoCodecVP8:
		return "vp8"
	case VideoCodecVP9:
		return "vp09.00.10.08"
	case VideoCodecAV1:
		return "av01.0.04M.08"
	case VideoCodecH264:
		return "avc1.42002A"
	default:
		return ""
	}
}

// CodecFromFourCC maps an IVF fourcc to a codec.
func CodecFromFourCC(fourCC string) VideoCodec {
	switch strings.ToUpper(fourCC) {
	case "VP80":
		return VideoCodecVP8
	case "VP90":
		return VideoCodecVP9
	case "AV01":
		return VideoCodecAV1
	case "H264", "AVC1":
		return VideoCodecH264
	default:
		return VideoCodecUnknown
	}
}

// ParseCodecString parses a codec string such as "vp8", "vp09.00.10.08",
// "av01.0.04M.08" or "avc1.42002A".
func ParseCodecString(s string) (VideoCodec, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "vp8":
		return VideoCodecVP8, nil
	case v == "vp9" || strings.HasPrefix(v, "vp09."):
		return VideoCodecVP9, nil
	case v == "av1" || strings.HasPrefix(v, "av01."):
		return VideoCodecAV1, nil
	case v == "h264" || strings.HasPrefix(v, "avc1.") || strings.HasPrefix(v, "avc3."):
		return VideoCodecH264, nil
	}
	return VideoCodecUnknown, fmt.Errorf("%w: %q", ErrCodecNotSupported, s)
}

// HardwareAcceleration is an engine placement hint.
type HardwareAcceleration int

const (
	HardwareAccelerationNoPreference HardwareAcceleration = iota
	HardwareAccelerationPreferHardware
	HardwareAccelerationPreferSoftware
)

func (h HardwareAcceleration) String() string {
	switch h {
	case HardwareAccelerationPreferHardware:
		return "prefer-hardware"
	case HardwareAccelerationPreferSoftware:
		return "prefer-software"
	default:
		return "no-preference"
	}
}

// ParseHardwareAcceleration parses the string form produced by String.
func ParseHardwareAcceleration(s string) (HardwareAcceleration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "no-preference":
		return HardwareAccelerationNoPreference, nil
	case "prefer-hardware":
		return HardwareAccelerationPreferHardware, nil
	case "prefer-software":
		return HardwareAccelerationPreferSoftware, nil
	}
	return HardwareAccelerationNoPreference, fmt.Errorf("unknown hardware acceleration %q", s)
}

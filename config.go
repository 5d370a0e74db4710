package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultSegmentThreshold is the accumulated byte count a segment must exceed
// before it is flushed.
const DefaultSegmentThreshold = 10_000_000

// DecoderConfig describes how to configure a decode engine.
// Values are immutable once emitted; copy before modifying.
type DecoderConfig struct {
	Codec         VideoCodec
	CodecString   string // e.g. "vp09.00.10.08"
	CodedWidth    int
	CodedHeight   int
	Description   []byte // Out-of-band codec setup data, if any
	HardwareAccel HardwareAcceleration
}

// Validate checks the fields a decoder needs.
func (c *DecoderConfig) Validate() error {
	if c.Codec == VideoCodecUnknown {
		return fmt.Errorf("%w: decoder codec unknown", ErrCodecNotSupported)
	}
	if c.CodedWidth < 0 || c.CodedHeight < 0 {
		return fmt.Errorf("invalid coded size %dx%d", c.CodedWidth, c.CodedHeight)
	}
	return nil
}

// Equal reports whether two configs would configure an engine identically.
func (c *DecoderConfig) Equal(o *DecoderConfig) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Codec == o.Codec &&
		c.CodecString == o.CodecString &&
		c.CodedWidth == o.CodedWidth &&
		c.CodedHeight == o.CodedHeight &&
		c.HardwareAccel == o.HardwareAccel &&
		bytes.Equal(c.Description, o.Description)
}

// Clone returns a deep copy.
func (c *DecoderConfig) Clone() *DecoderConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Description != nil {
		clone.Description = append([]byte(nil), c.Description...)
	}
	return &clone
}

func (c *DecoderConfig) String() string {
	codec := c.CodecString
	if codec == "" {
		codec = c.Codec.DefaultCodecString()
	}
	return fmt.Sprintf("%s %dx%d", codec, c.CodedWidth, c.CodedHeight)
}

// EncoderConfig describes the target of the encode stage.
type EncoderConfig struct {
	Codec            VideoCodec
	CodecString      string
	Width            int
	Height           int
	BitrateBps       int
	FPS              int
	KeyframeInterval int // Frames between forced keyframes (0 = first frame only)
	HardwareAccel    HardwareAcceleration
}

// Preset resolutions (width x height).
var presets = map[string][2]int{
	"144p": {256, 144},
	"qvga": {320, 240},
	"240p": {320, 240},
	"vga":  {640, 480},
	"480p": {640, 480},
	"hd":   {1280, 720},
	"720p": {1280, 720},
}

// PresetResolution returns the dimensions for a named preset.
func PresetResolution(name string) (width, height int, ok bool) {
	wh, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return wh[0], wh[1], ok
}

// DefaultEncoderConfig returns a QVGA VP9 config at 10 Mbps.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Codec:            VideoCodecVP9,
		CodecString:      "vp09.00.10.08",
		Width:            320,
		Height:           240,
		BitrateBps:       10_000_000,
		FPS:              30,
		KeyframeInterval: 60,
		HardwareAccel:    HardwareAccelerationPreferSoftware,
	}
}

// Validate checks the config and fills the codec from CodecString when unset.
func (c *EncoderConfig) Validate() error {
	if c.Codec == VideoCodecUnknown && c.CodecString != "" {
		codec, err := ParseCodecString(c.CodecString)
		if err != nil {
			return err
		}
		c.Codec = codec
	}
	if c.Codec == VideoCodecUnknown {
		return errors.New("encoder codec required")
	}
	if c.CodecString == "" {
		c.CodecString = c.Codec.DefaultCodecString()
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid encoder size %dx%d", c.Width, c.Height)
	}
	if c.Width%2 != 0 || c.Height%2 != 0 {
		return fmt.Errorf("encoder size %dx%d must be even", c.Width, c.Height)
	}
	if c.BitrateBps <= 0 {
		return fmt.Errorf("invalid bitrate %d", c.BitrateBps)
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.KeyframeInterval < 0 {
		return fmt.Errorf("invalid keyframe interval %d", c.KeyframeInterval)
	}
	return nil
}

// ResolutionLabel is the default segment label for this config, e.g. "240p".
func (c *EncoderConfig) ResolutionLabel() string {
	return strconv.Itoa(c.Height) + "p"
}

func (c *EncoderConfig) String() string {
	return fmt.Sprintf("%s %dx%d@%dfps %dbps", c.CodecString, c.Width, c.Height, c.FPS, c.BitrateBps)
}

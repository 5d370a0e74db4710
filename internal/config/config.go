package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/thesyncim/transcode"
)

//go:embed sample_config.toml
var sampleConfig string

// Encoder contains the encode target.
type Encoder struct {
	Codec            string `toml:"codec"`
	Preset           string `toml:"preset"` // Named resolution, ignored when width and height are set
	Width            int    `toml:"width"`
	Height           int    `toml:"height"`
	Bitrate          int    `toml:"bitrate"`
	FPS              int    `toml:"fps"`
	KeyframeInterval int    `toml:"keyframe_interval"`
	HardwareAccel    string `toml:"hardware_acceleration"`
	Provider         string `toml:"provider"`
	ScaleMode        string `toml:"scale_mode"`
}

// Decoder contains input decoding settings.
type Decoder struct {
	Provider string `toml:"provider"`
}

// Segment contains output segmentation settings.
type Segment struct {
	Label     string `toml:"label"` // Default: "<height>p"
	Extension string `toml:"extension"`
	Threshold int    `toml:"threshold"`
}

// UploadDir writes segments into a local directory.
type UploadDir struct {
	Path string `toml:"path"`
}

// UploadS3 stores segments as S3 objects. Credentials come from the standard
// AWS environment and shared config files.
type UploadS3 struct {
	Bucket       string `toml:"bucket"`
	Prefix       string `toml:"prefix"`
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"` // For S3-compatible stores
	UsePathStyle bool   `toml:"use_path_style"`
}

// UploadHTTP posts segments to an HTTP endpoint.
type UploadHTTP struct {
	Endpoint       string `toml:"endpoint"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Upload selects and configures the segment destination.
type Upload struct {
	Target string     `toml:"target"` // "dir", "s3" or "http"
	Dir    UploadDir  `toml:"dir"`
	S3     UploadS3   `toml:"s3"`
	HTTP   UploadHTTP `toml:"http"`
}

// Preview contains snapshot rendering settings.
type Preview struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path"`
	Every     int    `toml:"every"`
	MaxWidth  int    `toml:"max_width"`
	MaxHeight int    `toml:"max_height"`
	Quality   int    `toml:"quality"`
}

// Pipeline contains buffering settings.
type Pipeline struct {
	ChannelDepth  int `toml:"channel_depth"`
	FramePoolSize int `toml:"frame_pool_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains the Prometheus endpoint settings.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Config encapsulates all configuration values for transcode.
type Config struct {
	Encoder  Encoder  `toml:"encoder"`
	Decoder  Decoder  `toml:"decoder"`
	Segment  Segment  `toml:"segment"`
	Upload   Upload   `toml:"upload"`
	Preview  Preview  `toml:"preview"`
	Pipeline Pipeline `toml:"pipeline"`
	Logging  Logging  `toml:"logging"`
	Metrics  Metrics  `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/transcode/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error: the defaults apply and exists is false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("transcode.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EncoderConfig returns the pipeline encoder target.
func (c *Config) EncoderConfig() (transcode.EncoderConfig, error) {
	hw, err := transcode.ParseHardwareAcceleration(c.Encoder.HardwareAccel)
	if err != nil {
		return transcode.EncoderConfig{}, fmt.Errorf("encoder.hardware_acceleration: %w", err)
	}
	codec, err := transcode.ParseCodecString(c.Encoder.Codec)
	if err != nil {
		return transcode.EncoderConfig{}, fmt.Errorf("encoder.codec: %w", err)
	}
	cfg := transcode.EncoderConfig{
		Codec:            codec,
		CodecString:      c.Encoder.Codec,
		Width:            c.Encoder.Width,
		Height:           c.Encoder.Height,
		BitrateBps:       c.Encoder.Bitrate,
		FPS:              c.Encoder.FPS,
		KeyframeInterval: c.Encoder.KeyframeInterval,
		HardwareAccel:    hw,
	}
	if err := cfg.Validate(); err != nil {
		return transcode.EncoderConfig{}, fmt.Errorf("encoder: %w", err)
	}
	return cfg, nil
}

// SegmentConfig returns the segmentation settings for an input base name.
func (c *Config) SegmentConfig(baseName string) transcode.SegmentConfig {
	return transcode.SegmentConfig{
		BaseName:        baseName,
		ResolutionLabel: c.Segment.Label,
		Extension:       c.Segment.Extension,
		Threshold:       c.Segment.Threshold,
	}
}

// Providers returns the decoder and encoder providers.
func (c *Config) Providers() (decoder, encoder transcode.Provider, err error) {
	if decoder, err = transcode.ParseProvider(c.Decoder.Provider); err != nil {
		return 0, 0, fmt.Errorf("decoder.provider: %w", err)
	}
	if encoder, err = transcode.ParseProvider(c.Encoder.Provider); err != nil {
		return 0, 0, fmt.Errorf("encoder.provider: %w", err)
	}
	return decoder, encoder, nil
}

// ScaleMode returns the resampling mode used when the input size differs
// from the target.
func (c *Config) ScaleMode() (transcode.ScaleMode, error) {
	mode, err := transcode.ParseScaleMode(c.Encoder.ScaleMode)
	if err != nil {
		return 0, fmt.Errorf("encoder.scale_mode: %w", err)
	}
	return mode, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the annotated sample configuration.
func SampleConfig() string { return sampleConfig }

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/thesyncim/transcode"
)

func (c *Config) normalize() error {
	if err := c.normalizeEncoder(); err != nil {
		return err
	}
	c.normalizeSegment()
	if err := c.normalizeUpload(); err != nil {
		return err
	}
	if err := c.normalizePreview(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Metrics.Bind == "" {
		c.Metrics.Bind = defaultMetricsBind
	}
	return nil
}

func (c *Config) normalizeEncoder() error {
	c.Encoder.Codec = strings.TrimSpace(c.Encoder.Codec)
	if c.Encoder.Codec == "" {
		c.Encoder.Codec = defaultCodec
	}
	c.Encoder.Provider = lowerOr(c.Encoder.Provider, defaultProvider)
	c.Decoder.Provider = lowerOr(c.Decoder.Provider, defaultProvider)
	c.Encoder.HardwareAccel = lowerOr(c.Encoder.HardwareAccel, defaultHardwareAccel)
	c.Encoder.ScaleMode = lowerOr(c.Encoder.ScaleMode, defaultScaleMode)
	c.Encoder.Preset = strings.ToLower(strings.TrimSpace(c.Encoder.Preset))

	if c.Encoder.Width == 0 && c.Encoder.Height == 0 {
		preset := c.Encoder.Preset
		if preset == "" {
			preset = defaultPreset
		}
		w, h, ok := transcode.PresetResolution(preset)
		if !ok {
			return fmt.Errorf("encoder.preset: unknown preset %q", c.Encoder.Preset)
		}
		c.Encoder.Width, c.Encoder.Height = w, h
	}
	if c.Encoder.FPS == 0 {
		c.Encoder.FPS = defaultFPS
	}
	return nil
}

func (c *Config) normalizeSegment() {
	c.Segment.Label = strings.TrimSpace(c.Segment.Label)
	if c.Segment.Label == "" && c.Encoder.Height > 0 {
		c.Segment.Label = strconv.Itoa(c.Encoder.Height) + "p"
	}
	c.Segment.Extension = strings.TrimPrefix(strings.TrimSpace(c.Segment.Extension), ".")
	if c.Segment.Extension == "" {
		c.Segment.Extension = defaultExtension
	}
	if c.Segment.Threshold == 0 {
		c.Segment.Threshold = transcode.DefaultSegmentThreshold
	}
}

func (c *Config) normalizeUpload() error {
	c.Upload.Target = lowerOr(c.Upload.Target, defaultUploadTarget)

	var err error
	if c.Upload.Dir.Path, err = expandPath(strings.TrimSpace(c.Upload.Dir.Path)); err != nil {
		return fmt.Errorf("upload.dir.path: %w", err)
	}

	c.Upload.S3.Bucket = strings.TrimSpace(c.Upload.S3.Bucket)
	c.Upload.S3.Endpoint = strings.TrimSpace(c.Upload.S3.Endpoint)
	c.Upload.S3.Region = strings.TrimSpace(c.Upload.S3.Region)

	c.Upload.HTTP.Endpoint = strings.TrimSpace(c.Upload.HTTP.Endpoint)
	if value, ok := os.LookupEnv("TRANSCODE_UPLOAD_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Upload.HTTP.Token = strings.TrimSpace(value)
	}
	if c.Upload.HTTP.TimeoutSeconds == 0 {
		c.Upload.HTTP.TimeoutSeconds = defaultHTTPTimeout
	}
	return nil
}

func (c *Config) normalizePreview() error {
	c.Preview.Path = strings.TrimSpace(c.Preview.Path)
	if c.Preview.Path == "" {
		c.Preview.Path = defaultPreviewPath
	}
	var err error
	if c.Preview.Path, err = expandPath(c.Preview.Path); err != nil {
		return fmt.Errorf("preview.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = lowerOr(c.Logging.Format, defaultLogFormat)
	c.Logging.Level = lowerOr(c.Logging.Level, defaultLogLevel)
}

func lowerOr(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}

package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateSegment(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validatePreview(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateEncoder() error {
	if _, err := c.EncoderConfig(); err != nil {
		return err
	}
	if _, _, err := c.Providers(); err != nil {
		return err
	}
	if _, err := c.ScaleMode(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSegment() error {
	if c.Segment.Threshold < 0 {
		return errors.New("segment.threshold must be positive")
	}
	if c.Segment.Label == "" {
		return errors.New("segment.label must be set")
	}
	return nil
}

func (c *Config) validateUpload() error {
	switch c.Upload.Target {
	case "dir":
		if c.Upload.Dir.Path == "" {
			return errors.New("upload.dir.path must be set")
		}
	case "s3":
		if c.Upload.S3.Bucket == "" {
			return errors.New("upload.s3.bucket must be set")
		}
		if c.Upload.S3.Endpoint != "" {
			if _, err := url.ParseRequestURI(c.Upload.S3.Endpoint); err != nil {
				return fmt.Errorf("upload.s3.endpoint: %w", err)
			}
		}
	case "http":
		if c.Upload.HTTP.Endpoint == "" {
			return errors.New("upload.http.endpoint must be set")
		}
		u, err := url.Parse(c.Upload.HTTP.Endpoint)
		if err != nil {
			return fmt.Errorf("upload.http.endpoint: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("upload.http.endpoint: unsupported scheme %q", u.Scheme)
		}
		if c.Upload.HTTP.TimeoutSeconds < 0 {
			return errors.New("upload.http.timeout_seconds must be positive")
		}
	default:
		return fmt.Errorf("upload.target: unknown target %q (want dir, s3 or http)", c.Upload.Target)
	}
	return nil
}

func (c *Config) validatePreview() error {
	if !c.Preview.Enabled {
		return nil
	}
	if c.Preview.Every < 0 {
		return errors.New("preview.every must not be negative")
	}
	if c.Preview.MaxWidth < 0 || c.Preview.MaxHeight < 0 {
		return errors.New("preview.max_width and preview.max_height must not be negative")
	}
	if c.Preview.Quality < 0 || c.Preview.Quality > 100 {
		return errors.New("preview.quality must be between 0 and 100")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.ChannelDepth < 0 {
		return errors.New("pipeline.channel_depth must not be negative")
	}
	if c.Pipeline.FramePoolSize < 0 {
		return errors.New("pipeline.frame_pool_size must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}

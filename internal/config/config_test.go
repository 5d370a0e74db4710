package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/thesyncim/transcode"
	"github.com/thesyncim/transcode/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if !strings.HasSuffix(resolved, filepath.Join(".config", "transcode", "config.toml")) {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}

	enc, err := cfg.EncoderConfig()
	if err != nil {
		t.Fatalf("EncoderConfig returned error: %v", err)
	}
	if enc.Codec != transcode.VideoCodecVP9 || enc.Width != 320 || enc.Height != 240 {
		t.Fatalf("unexpected encoder: %v", enc.String())
	}
	if enc.BitrateBps != 10_000_000 || enc.HardwareAccel != transcode.HardwareAccelerationPreferSoftware {
		t.Fatalf("unexpected encoder bitrate/hw: %d %v", enc.BitrateBps, enc.HardwareAccel)
	}

	seg := cfg.SegmentConfig("movie")
	if seg.ResolutionLabel != "240p" || seg.Extension != "webm" || seg.Threshold != transcode.DefaultSegmentThreshold {
		t.Fatalf("unexpected segment config: %+v", seg)
	}
	if cfg.Upload.Target != "dir" || !filepath.IsAbs(cfg.Upload.Dir.Path) {
		t.Fatalf("unexpected upload: %+v", cfg.Upload)
	}
	if cfg.Pipeline.ChannelDepth != transcode.DefaultChannelDepth {
		t.Fatalf("unexpected channel depth: %d", cfg.Pipeline.ChannelDepth)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "transcode.toml")

	type payload struct {
		Encoder struct {
			Codec    string `toml:"codec"`
			Preset   string `toml:"preset"`
			Provider string `toml:"provider"`
		} `toml:"encoder"`
		Upload struct {
			Target string `toml:"target"`
			S3     struct {
				Bucket       string `toml:"bucket"`
				Endpoint     string `toml:"endpoint"`
				UsePathStyle bool   `toml:"use_path_style"`
			} `toml:"s3"`
		} `toml:"upload"`
		Logging struct {
			Format string `toml:"format"`
			Level  string `toml:"level"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Encoder.Codec = "vp8"
	custom.Encoder.Preset = "144p"
	custom.Encoder.Provider = "LibVPX"
	custom.Upload.Target = "S3"
	custom.Upload.S3.Bucket = "media"
	custom.Upload.S3.Endpoint = "http://localhost:9000"
	custom.Upload.S3.UsePathStyle = true
	custom.Logging.Format = "JSON"
	custom.Logging.Level = "debug"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q %v", resolved, exists)
	}

	enc, err := cfg.EncoderConfig()
	if err != nil {
		t.Fatalf("EncoderConfig returned error: %v", err)
	}
	if enc.Codec != transcode.VideoCodecVP8 || enc.Width != 256 || enc.Height != 144 {
		t.Fatalf("unexpected encoder: %v", enc.String())
	}
	if cfg.Segment.Label != "144p" {
		t.Fatalf("expected label derived from preset height, got %q", cfg.Segment.Label)
	}
	_, encProvider, err := cfg.Providers()
	if err != nil || encProvider != transcode.ProviderLibvpx {
		t.Fatalf("Providers() = %v, %v", encProvider, err)
	}
	if cfg.Upload.Target != "s3" || !cfg.Upload.S3.UsePathStyle {
		t.Fatalf("unexpected upload: %+v", cfg.Upload)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lower-cased log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "transcode.toml")
	if err := os.WriteFile(configPath, []byte("[encoder]\nbitrate_kbps = 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestEnvTokenOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "transcode.toml")
	content := "[upload]\ntarget = \"http\"\n[upload.http]\nendpoint = \"https://uploads.example.com/segments\"\ntoken = \"file-token\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRANSCODE_UPLOAD_TOKEN", "env-token")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Upload.HTTP.Token != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.Upload.HTTP.Token)
	}
	if cfg.Upload.HTTP.TimeoutSeconds != 300 {
		t.Fatalf("expected default timeout, got %d", cfg.Upload.HTTP.TimeoutSeconds)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "transcode.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if string(data) != config.SampleConfig() {
		t.Fatal("sample file differs from embedded sample")
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	want := config.Default()
	if cfg.Encoder.Bitrate != want.Encoder.Bitrate || cfg.Segment.Threshold != want.Segment.Threshold {
		t.Fatal("sample values drifted from defaults")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"codec", func(c *config.Config) { c.Encoder.Codec = "hvc1" }, "encoder.codec"},
		{"odd width", func(c *config.Config) { c.Encoder.Width = 321 }, "must be even"},
		{"bitrate", func(c *config.Config) { c.Encoder.Bitrate = 0 }, "bitrate"},
		{"provider", func(c *config.Config) { c.Decoder.Provider = "nvdec" }, "decoder.provider"},
		{"scale mode", func(c *config.Config) { c.Encoder.ScaleMode = "zoom" }, "encoder.scale_mode"},
		{"threshold", func(c *config.Config) { c.Segment.Threshold = -1 }, "segment.threshold"},
		{"target", func(c *config.Config) { c.Upload.Target = "ftp" }, "upload.target"},
		{"s3 bucket", func(c *config.Config) { c.Upload.Target = "s3" }, "upload.s3.bucket"},
		{"http endpoint", func(c *config.Config) { c.Upload.Target = "http" }, "upload.http.endpoint"},
		{"http scheme", func(c *config.Config) {
			c.Upload.Target = "http"
			c.Upload.HTTP.Endpoint = "ftp://example.com"
		}, "unsupported scheme"},
		{"preview quality", func(c *config.Config) {
			c.Preview.Enabled = true
			c.Preview.Quality = 101
		}, "preview.quality"},
		{"channel depth", func(c *config.Config) { c.Pipeline.ChannelDepth = -1 }, "pipeline.channel_depth"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Encoder.Width, cfg.Encoder.Height = 320, 240
			cfg.Segment.Label = "240p"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

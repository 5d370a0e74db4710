package config

import "github.com/thesyncim/transcode"

const (
	defaultCodec            = "vp09.00.10.08"
	defaultPreset           = "qvga"
	defaultBitrate          = 10_000_000
	defaultFPS              = 30
	defaultKeyframeInterval = 60
	defaultHardwareAccel    = "prefer-software"
	defaultProvider         = "auto"
	defaultScaleMode        = "fit"
	defaultExtension        = "webm"
	defaultUploadTarget     = "dir"
	defaultUploadDir        = "./segments"
	defaultHTTPTimeout      = 300
	defaultPreviewPath      = "preview/latest.jpg"
	defaultPreviewEvery     = 30
	defaultPreviewMaxWidth  = 320
	defaultPreviewQuality   = 80
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultMetricsBind      = "127.0.0.1:9464"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Encoder: Encoder{
			Codec:            defaultCodec,
			Preset:           defaultPreset,
			Bitrate:          defaultBitrate,
			FPS:              defaultFPS,
			KeyframeInterval: defaultKeyframeInterval,
			HardwareAccel:    defaultHardwareAccel,
			Provider:         defaultProvider,
			ScaleMode:        defaultScaleMode,
		},
		Decoder: Decoder{
			Provider: defaultProvider,
		},
		Segment: Segment{
			Extension: defaultExtension,
			Threshold: transcode.DefaultSegmentThreshold,
		},
		Upload: Upload{
			Target: defaultUploadTarget,
			Dir:    UploadDir{Path: defaultUploadDir},
			HTTP:   UploadHTTP{TimeoutSeconds: defaultHTTPTimeout},
		},
		Preview: Preview{
			Path:     defaultPreviewPath,
			Every:    defaultPreviewEvery,
			MaxWidth: defaultPreviewMaxWidth,
			Quality:  defaultPreviewQuality,
		},
		Pipeline: Pipeline{
			ChannelDepth: transcode.DefaultChannelDepth,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
	}
}

// Package config loads, normalizes, and validates transcode configuration.
//
// It supplies defaults matching the library (QVGA VP9 at 10 Mbps, 10,000,000
// byte segments), reads TOML files, and honours environment fallbacks such as
// TRANSCODE_UPLOAD_TOKEN. The Config type translates into the pipeline's
// EncoderConfig and SegmentConfig so the CLI never assembles those by hand.
package config

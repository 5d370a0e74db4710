package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/thesyncim/transcode"
	"github.com/thesyncim/transcode/internal/config"
)

// newUploader builds the segment destination selected by [upload].
func newUploader(ctx context.Context, cfg *config.Config) (transcode.Uploader, string, error) {
	switch cfg.Upload.Target {
	case "dir":
		u, err := transcode.NewDirUploader(cfg.Upload.Dir.Path)
		if err != nil {
			return nil, "", err
		}
		return u, u.Dir, nil

	case "s3":
		client, err := newS3Client(ctx, cfg.Upload.S3)
		if err != nil {
			return nil, "", err
		}
		u, err := transcode.NewS3Uploader(client, cfg.Upload.S3.Bucket, cfg.Upload.S3.Prefix)
		if err != nil {
			return nil, "", err
		}
		return u, "s3://" + u.Bucket + "/" + u.Prefix, nil

	case "http":
		u, err := transcode.NewHTTPUploader(cfg.Upload.HTTP.Endpoint, time.Duration(cfg.Upload.HTTP.TimeoutSeconds)*time.Second)
		if err != nil {
			return nil, "", err
		}
		if cfg.Upload.HTTP.Token != "" {
			u.Header.Set("Authorization", "Bearer "+cfg.Upload.HTTP.Token)
		}
		return u, u.Endpoint, nil
	}
	return nil, "", fmt.Errorf("unknown upload target %q", cfg.Upload.Target)
}

func newS3Client(ctx context.Context, c config.UploadS3) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.UsePathStyle
	}), nil
}

package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ContentTypeForExtension returns the MIME type used when storing a segment.
func ContentTypeForExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "ivf":
		return "video/x-ivf"
	default:
		return "application/octet-stream"
	}
}

// S3PutObjectAPI is the subset of *s3.Client used by S3Uploader.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores each segment as one object under Prefix.
type S3Uploader struct {
	Client S3PutObjectAPI
	Bucket string
	Prefix string // Key prefix, e.g. "outputs/"
}

// NewS3Uploader creates an uploader for bucket.
func NewS3Uploader(client S3PutObjectAPI, bucket, prefix string) (*S3Uploader, error) {
	if client == nil {
		return nil, errors.New("s3 client required")
	}
	if bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	return &S3Uploader{Client: client, Bucket: bucket, Prefix: prefix}, nil
}

// Key returns the object key for a segment name.
func (u *S3Uploader) Key(name string) string {
	if u.Prefix == "" {
		return name
	}
	return path.Join(u.Prefix, name)
}

// UploadSegment implements Uploader.
func (u *S3Uploader) UploadSegment(ctx context.Context, seg *Segment) error {
	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.Bucket),
		Key:           aws.String(u.Key(seg.Name)),
		Body:          bytes.NewReader(seg.Data),
		ContentLength: aws.Int64(int64(len(seg.Data))),
		ContentType:   aws.String(ContentTypeForExtension(path.Ext(seg.Name))),
		Metadata: map[string]string{
			"sequence": strconv.FormatUint(uint64(seg.Sequence), 10),
		},
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.Bucket, u.Key(seg.Name), err)
	}
	return nil
}

// HTTPUploader posts each segment as a multipart form to an endpoint, with the
// payload in the "file" field named after the segment.
type HTTPUploader struct {
	Endpoint string
	Client   *http.Client
	Header   http.Header // Extra request headers, e.g. Authorization
}

// NewHTTPUploader creates an uploader posting to endpoint.
func NewHTTPUploader(endpoint string, timeout time.Duration) (*HTTPUploader, error) {
	if endpoint == "" {
		return nil, errors.New("upload endpoint required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPUploader{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
		Header:   make(http.Header),
	}, nil
}

// UploadSegment implements Uploader.
func (u *HTTPUploader) UploadSegment(ctx context.Context, seg *Segment) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("sequence", strconv.FormatUint(uint64(seg.Sequence), 10)); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("file", seg.Name)
	if err != nil {
		return err
	}
	if _, err := fw.Write(seg.Data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, &body)
	if err != nil {
		return err
	}
	for k, vs := range u.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload %s: %s: %s", seg.Name, resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// DirUploader writes each segment to a file in Dir.
type DirUploader struct {
	Dir string
}

// NewDirUploader creates an uploader writing into dir, creating it if needed.
func NewDirUploader(dir string) (*DirUploader, error) {
	if dir == "" {
		return nil, errors.New("output directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &DirUploader{Dir: dir}, nil
}

// UploadSegment implements Uploader. The file appears under its final name
// only once fully written.
func (u *DirUploader) UploadSegment(ctx context.Context, seg *Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if seg.Name != filepath.Base(seg.Name) {
		return fmt.Errorf("segment name %q is not a plain file name", seg.Name)
	}

	final := filepath.Join(u.Dir, seg.Name)
	tmp, err := os.CreateTemp(u.Dir, "."+seg.Name+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(seg.Data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

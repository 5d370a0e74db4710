package transcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// RenderFunc draws one preview frame. The frame is only valid until the
// function returns; the pipeline releases it afterwards. Errors and panics
// are logged and counted but never stop the pipeline.
type RenderFunc func(ctx context.Context, frame *DecodedFrame) error

// FrameToImage copies a frame into an image.YCbCr.
func FrameToImage(f *DecodedFrame) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, f.Width, f.Height), image.YCbCrSubsampleRatio420)
	cw, ch := chromaSize(f.Width, f.Height)
	copyPlane(img.Y, img.YStride, f.Y, f.StrideY, f.Width, f.Height)
	copyPlane(img.Cb, img.CStride, f.U, f.StrideU, cw, ch)
	copyPlane(img.Cr, img.CStride, f.V, f.StrideV, cw, ch)
	return img
}

// SnapshotRenderer saves every Nth preview frame as an image file. If Path
// contains "%d" each snapshot gets its own file, otherwise the same file is
// overwritten so it always shows the latest frame.
type SnapshotRenderer struct {
	Path      string
	Every     int // Render one frame out of Every (<= 1 renders all)
	MaxWidth  int // Bounding box; 0 keeps the frame size
	MaxHeight int
	Quality   int // JPEG quality (1-100, 0 = imaging default)

	mu       sync.Mutex
	seen     int
	rendered int
}

// NewSnapshotRenderer creates a renderer writing to path.
func NewSnapshotRenderer(path string, every int) (*SnapshotRenderer, error) {
	if path == "" {
		return nil, errors.New("snapshot path required")
	}
	if _, err := imaging.FormatFromFilename(strings.ReplaceAll(path, "%d", "0")); err != nil {
		return nil, fmt.Errorf("snapshot path %q: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &SnapshotRenderer{Path: path, Every: every}, nil
}

// Render implements RenderFunc.
func (r *SnapshotRenderer) Render(ctx context.Context, frame *DecodedFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen++
	if r.Every > 1 && (r.seen-1)%r.Every != 0 {
		return nil
	}

	var img image.Image = FrameToImage(frame)
	if r.MaxWidth > 0 || r.MaxHeight > 0 {
		w, h := r.MaxWidth, r.MaxHeight
		if w == 0 {
			w = frame.Width
		}
		if h == 0 {
			h = frame.Height
		}
		img = imaging.Fit(img, w, h, imaging.Lanczos)
	}

	path := r.Path
	if strings.Contains(path, "%d") {
		path = fmt.Sprintf(path, r.rendered)
	}
	var opts []imaging.EncodeOption
	if r.Quality > 0 {
		opts = append(opts, imaging.JPEGQuality(r.Quality))
	}
	if err := imaging.Save(img, path, opts...); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	r.rendered++
	return nil
}

// Rendered returns the number of snapshots written.
func (r *SnapshotRenderer) Rendered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rendered
}

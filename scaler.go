package transcode

import "fmt"

// ScaleMode defines how scaling handles aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch ScaleMode = iota
	// ScaleModeFit preserves aspect ratio inside the target (letterboxed).
	ScaleModeFit
	// ScaleModeFill preserves aspect ratio covering the target (cropped).
	ScaleModeFill
)

func (m ScaleMode) String() string {
	switch m {
	case ScaleModeFit:
		return "fit"
	case ScaleModeFill:
		return "fill"
	default:
		return "stretch"
	}
}

// ParseScaleMode parses the String form of a ScaleMode.
func ParseScaleMode(s string) (ScaleMode, error) {
	switch s {
	case "", "stretch":
		return ScaleModeStretch, nil
	case "fit":
		return ScaleModeFit, nil
	case "fill":
		return ScaleModeFill, nil
	}
	return ScaleModeStretch, fmt.Errorf("unknown scale mode %q", s)
}

// ScaleInto resamples src into dst with bilinear filtering. dst keeps its own
// size; timestamps are copied from src.
func ScaleInto(dst, src *DecodedFrame, mode ScaleMode) {
	dst.Timestamp = src.Timestamp
	dst.Duration = src.Duration

	if dst.Width == src.Width && dst.Height == src.Height {
		_ = dst.CopyFrom(src)
		return
	}

	srcX, srcY, srcW, srcH := sourceRegion(src.Width, src.Height, dst.Width, dst.Height, mode)
	dstX, dstY, dstW, dstH := 0, 0, dst.Width, dst.Height
	if mode == ScaleModeFit {
		dstW, dstH = CalculateScaledSize(src.Width, src.Height, dst.Width, dst.Height, ScaleModeFit)
		dstX = ((dst.Width - dstW) / 2) &^ 1
		dstY = ((dst.Height - dstH) / 2) &^ 1
		fillBlack(dst)
	}

	scalePlane(src.Y, src.StrideY, srcX, srcY, srcW, srcH,
		dst.Y[dstY*dst.StrideY+dstX:], dst.StrideY, dstW, dstH)

	cw, ch := chromaSize(dstW, dstH)
	scw, sch := chromaSize(srcW, srcH)
	uOff := (dstY/2)*dst.StrideU + dstX/2
	vOff := (dstY/2)*dst.StrideV + dstX/2
	scalePlane(src.U, src.StrideU, srcX/2, srcY/2, scw, sch, dst.U[uOff:], dst.StrideU, cw, ch)
	scalePlane(src.V, src.StrideV, srcX/2, srcY/2, scw, sch, dst.V[vOff:], dst.StrideV, cw, ch)
}

func fillBlack(f *DecodedFrame) {
	for i := range f.Y {
		f.Y[i] = 16
	}
	for i := range f.U {
		f.U[i] = 128
	}
	for i := range f.V {
		f.V[i] = 128
	}
}

// sourceRegion determines which part of the source is used for a scale mode.
func sourceRegion(srcW, srcH, dstW, dstH int, mode ScaleMode) (x, y, w, h int) {
	if mode != ScaleModeFill {
		return 0, 0, srcW, srcH
	}

	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)
	switch {
	case srcAspect > dstAspect:
		// Source is wider, crop horizontally
		newW := int(float64(srcH)*dstAspect) &^ 1
		return ((srcW - newW) / 2) &^ 1, 0, newW, srcH
	case srcAspect < dstAspect:
		// Source is taller, crop vertically
		newH := int(float64(srcW)/dstAspect) &^ 1
		return 0, ((srcH - newH) / 2) &^ 1, srcW, newH
	}
	return 0, 0, srcW, srcH
}

// scalePlane scales a single plane using bilinear interpolation.
func scalePlane(src []byte, srcStride, srcX, srcY, srcW, srcH int,
	dst []byte, dstStride, dstW, dstH int) {

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		y0 := srcYFP>>16 + srcY
		y1 := y0 + 1
		if y1 >= srcY+srcH {
			y1 = y0
		}
		yWeight := srcYFP & 0xFFFF

		row0 := src[y0*srcStride:]
		row1 := src[y1*srcStride:]
		out := dst[y*dstStride:]

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			x0 := srcXFP>>16 + srcX
			x1 := x0 + 1
			if x1 >= srcX+srcW {
				x1 = x0
			}
			xWeight := srcXFP & 0xFFFF

			top := (int(row0[x0])*(0x10000-xWeight) + int(row0[x1])*xWeight) >> 16
			bottom := (int(row1[x0])*(0x10000-xWeight) + int(row1[x1])*xWeight) >> 16
			out[x] = byte((top*(0x10000-yWeight) + bottom*yWeight) >> 16)
		}
	}
}

// CalculateScaledSize returns the output dimensions when scaling with a given mode.
func CalculateScaledSize(srcW, srcH, maxW, maxH int, mode ScaleMode) (w, h int) {
	if mode != ScaleModeFit || srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}

	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)
	if srcAspect > dstAspect {
		w = maxW
		h = int(float64(maxW) / srcAspect)
	} else {
		h = maxH
		w = int(float64(maxH) * srcAspect)
	}
	// Even dimensions for 4:2:0, never beyond the bounds
	w = min((w+1)&^1, maxW)
	h = min((h+1)&^1, maxH)
	return w, h
}

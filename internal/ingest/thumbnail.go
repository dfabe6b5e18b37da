package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// previewMaxDimension is the maximum dimension (width or height) for the
// browser preview. Uploads smaller than this are re-encoded as-is.
const previewMaxDimension = 512

// previewJPEGQuality balances preview size against visible artifacts.
const previewJPEGQuality = 85

// makePreview decodes the upload and produces a downscaled JPEG preview.
// Resizing uses CatmullRom interpolation: slower than nearest-neighbor but
// face photos downscale badly without it.
func makePreview(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for preview: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > previewMaxDimension || h > previewMaxDimension {
		if w >= h {
			h = h * previewMaxDimension / w
			w = previewMaxDimension
		} else {
			w = w * previewMaxDimension / h
			h = previewMaxDimension
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: previewJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

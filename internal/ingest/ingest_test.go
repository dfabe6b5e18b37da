package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode JPEG: %v", err)
	}
	return buf.Bytes()
}

func TestIngestPNG(t *testing.T) {
	data := encodePNG(t, 64, 48)

	img, err := Ingest(bytes.NewReader(data), "face.png", "image/png")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want %q", img.MIMEType, "image/png")
	}
	if img.Width != 64 || img.Height != 48 {
		t.Errorf("dimensions = %dx%d, want 64x48", img.Width, img.Height)
	}
	if !bytes.Equal(img.Bytes, data) {
		t.Error("Bytes must be the upload unchanged")
	}
}

func TestIngestBase64RoundTrip(t *testing.T) {
	data := encodePNG(t, 32, 32)

	img, err := Ingest(bytes.NewReader(data), "face.png", "image/png")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(img.Base64)
	if err != nil {
		t.Fatalf("Base64 field did not decode: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("base64 round trip must reproduce the original bytes exactly")
	}
}

func TestIngestJPEG(t *testing.T) {
	data := encodeJPEG(t, 40, 40)

	img, err := Ingest(bytes.NewReader(data), "face.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if img.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want %q", img.MIMEType, "image/jpeg")
	}
}

func TestIngestSniffsMissingContentType(t *testing.T) {
	data := encodePNG(t, 16, 16)

	img, err := Ingest(bytes.NewReader(data), "face.png", "")
	if err != nil {
		t.Fatalf("Ingest() with no declared type error: %v", err)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want sniffed image/png", img.MIMEType)
	}
}

func TestIngestDecodedFormatWins(t *testing.T) {
	// A JPEG uploaded with a PNG content type is accepted as what it is.
	data := encodeJPEG(t, 16, 16)

	img, err := Ingest(bytes.NewReader(data), "face.png", "image/png")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if img.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want decoded image/jpeg over declared PNG", img.MIMEType)
	}
}

func TestIngestUnsupportedType(t *testing.T) {
	_, err := Ingest(bytes.NewReader([]byte("GIF89a...")), "anim.gif", "image/gif")
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("Ingest() error = %v, want ErrUnsupportedFileType", err)
	}
}

func TestIngestEmptyUpload(t *testing.T) {
	_, err := Ingest(bytes.NewReader(nil), "empty.png", "image/png")
	if !errors.Is(err, ErrFileRead) {
		t.Fatalf("Ingest() error = %v, want ErrFileRead", err)
	}
}

func TestIngestCorruptImage(t *testing.T) {
	_, err := Ingest(bytes.NewReader([]byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}), "bad.png", "image/png")
	if !errors.Is(err, ErrFileRead) {
		t.Fatalf("Ingest() error = %v, want ErrFileRead", err)
	}
}

func TestMakePreviewDownscales(t *testing.T) {
	data := encodePNG(t, 1024, 768)

	preview, err := makePreview(data)
	if err != nil {
		t.Fatalf("makePreview() error: %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(preview))
	if err != nil {
		t.Fatalf("preview did not decode: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("preview format = %q, want jpeg", format)
	}
	if cfg.Width > 512 || cfg.Height > 512 {
		t.Errorf("preview = %dx%d, want both dimensions <= 512", cfg.Width, cfg.Height)
	}
}

func TestMakePreviewKeepsSmallImages(t *testing.T) {
	data := encodePNG(t, 100, 80)

	preview, err := makePreview(data)
	if err != nil {
		t.Fatalf("makePreview() error: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(preview))
	if err != nil {
		t.Fatalf("preview did not decode: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 80 {
		t.Errorf("preview = %dx%d, small images should keep their size", cfg.Width, cfg.Height)
	}
}

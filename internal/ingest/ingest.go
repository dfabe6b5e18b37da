// Package ingest validates and decodes user-uploaded face images into the
// inline payload the video generation API requires (raw bytes + base64 +
// MIME type), along with a downscaled browser preview.
package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Errors surfaced to the upload handler. They are sentinel values so the
// handler can map them to stable user-facing messages.
var (
	// ErrUnsupportedFileType means the upload is not one of the image types
	// the generation API documents as supported.
	ErrUnsupportedFileType = errors.New("unsupported file type: only PNG and JPEG images are accepted")

	// ErrFileRead means the upload could not be read or contained no
	// decodable image payload.
	ErrFileRead = errors.New("could not read the selected image file")
)

// allowedMIMETypes are the image types the remote generation API accepts for
// inline image payloads.
var allowedMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// UploadedImage is the decoded, immutable representation of one uploaded
// face photo. It is replaced wholesale on re-upload and discarded when the
// session resets.
type UploadedImage struct {
	// Bytes is the raw encoded image exactly as uploaded.
	Bytes []byte

	// Base64 is the JSON-transport encoding of Bytes; the generation API
	// requires inline bytes rather than a multipart upload.
	Base64 string

	// MIMEType is the verified content type (image/png or image/jpeg).
	MIMEType string

	// Preview is a downscaled JPEG served back to the browser.
	Preview []byte

	Width  int
	Height int
}

// Ingest reads, validates, and decodes one uploaded image.
//
// contentType is the type declared by the browser; when absent it is sniffed
// from the payload. The payload must decode as an image of an allowed type —
// a declared type is never trusted over what the bytes actually are.
func Ingest(r io.Reader, filename, contentType string) (*UploadedImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileRead, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrFileRead)
	}

	declared := normalizeContentType(contentType)
	if declared == "" || declared == "application/octet-stream" {
		declared = http.DetectContentType(data)
	}
	if !allowedMIMETypes[declared] {
		log.Warn().Str("filename", filename).Str("content_type", declared).Msg("Rejected upload with unsupported type")
		return nil, ErrUnsupportedFileType
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileRead, err)
	}

	// The decoded format wins over the declared type.
	mimeType := "image/" + format
	if !allowedMIMETypes[mimeType] {
		return nil, ErrUnsupportedFileType
	}

	preview, err := makePreview(data)
	if err != nil {
		// A preview failure is not fatal; the full image still renders.
		log.Warn().Err(err).Str("filename", filename).Msg("Preview generation failed, using original")
		preview = data
	}

	probeEXIF(data, filename)

	img := &UploadedImage{
		Bytes:    data,
		Base64:   base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeType,
		Preview:  preview,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}

	log.Info().
		Str("filename", filename).
		Str("mime_type", mimeType).
		Int("bytes", len(data)).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Msg("Image ingested")

	return img, nil
}

// normalizeContentType strips parameters like "; charset=..." from a
// Content-Type header value.
func normalizeContentType(ct string) string {
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mediaType
}

// probeEXIF extracts camera metadata from the upload on a best-effort basis.
// Most face photos come straight off a phone camera and the EXIF block tells
// us what produced them, which helps when debugging generation quality
// reports. Never fatal: screenshots and exported images have no EXIF.
func probeEXIF(data []byte, filename string) {
	exif, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Str("filename", filename).Msg("No EXIF metadata in upload")
		return
	}

	log.Debug().
		Str("filename", filename).
		Str("camera", exif.Make+" "+exif.Model).
		Time("taken", exif.DateTimeOriginal()).
		Msg("Upload EXIF metadata")
}

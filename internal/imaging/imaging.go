// Package imaging converts between wire encodings (base64, data URIs, PNG)
// and in-memory bitmaps, and normalizes source images for image-to-image
// generation.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Normalized source dimensions for image-to-image requests.
const (
	NormalizedWidth  = 768
	NormalizedHeight = 512
)

// MaxPixels bounds the canvas a source image may declare. Decoding
// allocates the full canvas, so the header is checked before any pixel
// data is read.
const MaxPixels = 89_478_485

var (
	// ErrEmpty is returned when no image payload was supplied.
	ErrEmpty = errors.New("empty image payload")
	// ErrInvalid is returned when the payload is not a decodable image.
	ErrInvalid = errors.New("invalid image format")
)

// DecodeBase64 decodes a raw base64 string or a data URI into an image.
// Everything up to the last comma is treated as a data-URI header and
// discarded. Both padded and unpadded encodings are accepted.
func DecodeBase64(s string) (image.Image, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", ErrEmpty
	}
	if i := strings.LastIndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, "", fmt.Errorf("%w: base64: %v", ErrInvalid, err)
		}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); cfg.Width <= 0 || cfg.Height <= 0 || px > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalid, cfg.Width, cfg.Height, MaxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return img, format, nil
}

// Normalize converts img to opaque RGB and scales it to w x h.
func Normalize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// An opaque backdrop flattens any alpha channel, matching RGB conversion.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// PNGDataURI returns the PNG bytes as a data:image/png;base64 URI.
func PNGDataURI(pngBytes []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

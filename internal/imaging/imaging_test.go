package imaging

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBase64(t *testing.T, img image.Image) string {
	t.Helper()
	b, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func TestDecodeBase64_RawAndDataURI(t *testing.T) {
	b64 := pngBase64(t, solid(10, 6, color.NRGBA{R: 200, A: 255}))
	for _, in := range []string{b64, "data:image/png;base64," + b64, strings.TrimRight(b64, "=")} {
		img, format, err := DecodeBase64(in)
		if err != nil {
			t.Fatalf("decode %q...: %v", in[:16], err)
		}
		if format != "png" || img.Bounds().Dx() != 10 || img.Bounds().Dy() != 6 {
			t.Fatalf("unexpected decode: %s %v", format, img.Bounds())
		}
	}
}

func TestDecodeBase64_JPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(8, 8, color.Gray{Y: 128}), nil); err != nil {
		t.Fatalf("jpeg: %v", err)
	}
	_, format, err := DecodeBase64(base64.StdEncoding.EncodeToString(buf.Bytes()))
	if err != nil || format != "jpeg" {
		t.Fatalf("format=%q err=%v", format, err)
	}
}

func TestDecodeBase64_Invalid(t *testing.T) {
	if _, _, err := DecodeBase64("   "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	for _, in := range []string{"not-base64", "data:image/png;base64,%%%", base64.StdEncoding.EncodeToString([]byte("plain text, not an image"))} {
		if _, _, err := DecodeBase64(in); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%q: expected ErrInvalid, got %v", in, err)
		}
	}
}

// bombPNG returns a 1x1 gray PNG whose IHDR claims w x h. Only the header
// is rewritten, so building it costs nothing.
func bombPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	b, err := EncodePNG(image.NewGray(image.Rect(0, 0, 1, 1)))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// 8-byte signature, 4-byte length, "IHDR", then width and height.
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestDecodeBase64_RejectsOversizedCanvas(t *testing.T) {
	big := base64.StdEncoding.EncodeToString(bombPNG(t, 20000, 20000))
	if len(big) > 1024 {
		t.Fatalf("payload should stay tiny, got %d bytes", len(big))
	}
	_, _, err := DecodeBase64(big)
	if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected pixel limit error, got %v", err)
	}

}

func TestNormalize(t *testing.T) {
	src := solid(100, 300, color.NRGBA{G: 255, A: 0}) // fully transparent
	out := Normalize(src, NormalizedWidth, NormalizedHeight)
	if out.Bounds().Dx() != NormalizedWidth || out.Bounds().Dy() != NormalizedHeight {
		t.Fatalf("bounds: %v", out.Bounds())
	}
	r, g, b, a := out.At(10, 10).RGBA()
	if a != 0xffff {
		t.Fatalf("expected opaque output, alpha=%x", a)
	}
	// Transparent pixels flatten onto white.
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("expected white, got %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestPNGDataURIRoundTrip(t *testing.T) {
	b, err := EncodePNG(solid(4, 4, color.Black))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	uri := PNGDataURI(b)
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("prefix: %q", uri[:24])
	}
	img, _, err := DecodeBase64(uri)
	if err != nil || img.Bounds().Dx() != 4 {
		t.Fatalf("round trip: %v", err)
	}
}

package e2e

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"artifyd/internal/device"
	"artifyd/internal/host"
	"artifyd/internal/httpapi"
	"artifyd/internal/imaging"
	"artifyd/internal/pipeline"
)

// newServer loads the synthetic backend behind the real router. caps stands
// in for the hardware probe.
func newServer(t *testing.T, caps device.Capabilities) (*httptest.Server, *host.Host) {
	t.Helper()
	h, err := host.New(context.Background(), host.Options{
		Pipeline:         pipeline.Config{Backend: "synthetic", ModelID: "stabilityai/stable-diffusion-2-1-base"},
		Device:           "auto",
		AttentionSlicing: true,
		Probe:            func() device.Capabilities { return caps },
		Logger:           zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	srv := httptest.NewServer(httpapi.NewMux(h, httpapi.Options{Logger: zerolog.Nop()}))
	t.Cleanup(srv.Close)
	return srv, h
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// sourcePNG returns a w x h gradient encoded as PNG.
func sourcePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	b, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

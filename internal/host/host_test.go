package host

import (
	"context"
	"errors"
	"image"
	"testing"

	"artifyd/internal/device"
	"artifyd/internal/pipeline"
)

type fakePipeline struct {
	dev      device.Kind
	slicing  bool
	toErr    error
	genErr   error
	calls    int
	closed   bool
	lastText pipeline.TextToImageParams
}

func (f *fakePipeline) To(d device.Kind) error {
	if f.toErr != nil {
		return f.toErr
	}
	f.dev = d
	return nil
}
func (f *fakePipeline) EnableAttentionSlicing() error { f.slicing = true; return nil }
func (f *fakePipeline) TextToImage(_ context.Context, p pipeline.TextToImageParams) ([]image.Image, error) {
	f.calls++
	f.lastText = p
	if f.genErr != nil {
		return nil, f.genErr
	}
	return []image.Image{image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))}, nil
}
func (f *fakePipeline) ImageToImage(_ context.Context, p pipeline.ImageToImageParams) ([]image.Image, error) {
	f.calls++
	if f.genErr != nil {
		return nil, f.genErr
	}
	return []image.Image{p.Image}, nil
}
func (f *fakePipeline) Version() string { return "fake/1" }
func (f *fakePipeline) Close() error    { f.closed = true; return nil }

// reportingPipeline adds a capability report on top of fakePipeline.
type reportingPipeline struct {
	*fakePipeline
	caps device.Capabilities
}

func (r reportingPipeline) Capabilities(context.Context) (device.Capabilities, error) {
	return r.caps, nil
}

func newTestHost(t *testing.T, fp pipeline.Pipeline, caps device.Capabilities, override string) (*Host, error) {
	t.Helper()
	return New(context.Background(), Options{
		Pipeline:         pipeline.Config{Backend: "fake", ModelID: "test/model"},
		Device:           override,
		AttentionSlicing: true,
		Probe:            func() device.Capabilities { return caps },
		Open: func(context.Context, pipeline.Config) (pipeline.Pipeline, error) {
			return fp, nil
		},
	})
}

func validText() pipeline.TextToImageParams {
	return pipeline.TextToImageParams{
		Prompt: "a red apple", Width: 512, Height: 512, GuidanceScale: 7,
		NumInferenceSteps: 50, SamplingSteps: 20, Seed: -1, Temperature: 0.9,
	}
}

func TestNew_DevicePriority(t *testing.T) {
	cases := []struct {
		name     string
		caps     device.Capabilities
		override string
		want     device.Kind
	}{
		{"cuda wins", device.Capabilities{CUDA: true, MPS: true}, "", device.CUDA},
		{"mps next", device.Capabilities{MPS: true}, "auto", device.MPS},
		{"cpu fallback", device.Capabilities{}, "", device.CPU},
		{"override", device.Capabilities{CUDA: true}, "cpu", device.CPU},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fp := &fakePipeline{}
			h, err := newTestHost(t, fp, tc.caps, tc.override)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			if h.Info().Device != tc.want || fp.dev != tc.want {
				t.Fatalf("device: info=%s pipeline=%s want %s", h.Info().Device, fp.dev, tc.want)
			}
			if !fp.slicing {
				t.Fatalf("attention slicing not enabled")
			}
			if h.Info().BackendVersion != "fake/1" || h.Info().ModelID != "test/model" {
				t.Fatalf("info: %+v", h.Info())
			}
		})
	}
}

func TestNew_MergesBackendCapabilities(t *testing.T) {
	rp := reportingPipeline{fakePipeline: &fakePipeline{}, caps: device.Capabilities{CUDA: true, GPUName: "RTX"}}
	h, err := newTestHost(t, rp, device.Capabilities{}, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if h.Info().Device != device.CUDA || !h.Info().Capabilities.CUDA {
		t.Fatalf("expected cuda from backend report, got %+v", h.Info())
	}
}

func TestNew_FailuresAreFatal(t *testing.T) {
	fp := &fakePipeline{toErr: errors.New("no such device")}
	if _, err := newTestHost(t, fp, device.Capabilities{}, ""); err == nil {
		t.Fatalf("expected bind error")
	}
	if !fp.closed {
		t.Fatalf("pipeline should be closed after failed bind")
	}
	if _, err := newTestHost(t, &fakePipeline{}, device.Capabilities{}, "tpu"); err == nil {
		t.Fatalf("expected error for unknown override")
	}
	_, err := New(context.Background(), Options{
		Pipeline: pipeline.Config{Backend: "fake", ModelID: "m"},
		Open: func(context.Context, pipeline.Config) (pipeline.Pipeline, error) {
			return nil, errors.New("weights missing")
		},
	})
	if err == nil {
		t.Fatalf("expected open error")
	}
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error for empty model id")
	}
}

func TestTextToImage_ValidationBeforeGeneration(t *testing.T) {
	fp := &fakePipeline{}
	h, err := newTestHost(t, fp, device.Capabilities{}, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	bad := []func(*pipeline.TextToImageParams){
		func(p *pipeline.TextToImageParams) { p.Prompt = "  " },
		func(p *pipeline.TextToImageParams) { p.Width = 63 },
		func(p *pipeline.TextToImageParams) { p.Height = 1025 },
		func(p *pipeline.TextToImageParams) { p.GuidanceScale = 11 },
		func(p *pipeline.TextToImageParams) { p.Temperature = 0 },
		func(p *pipeline.TextToImageParams) { p.SamplingSteps = 0 },
		func(p *pipeline.TextToImageParams) { p.NumInferenceSteps = 101 },
	}
	for i, mut := range bad {
		p := validText()
		mut(&p)
		if _, err := h.TextToImage(context.Background(), p); !IsValidation(err) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if fp.calls != 0 {
		t.Fatalf("pipeline invoked %d times for invalid input", fp.calls)
	}
	img, err := h.TextToImage(context.Background(), validText())
	if err != nil {
		t.Fatalf("valid: %v", err)
	}
	if img.Bounds().Dx() != 512 || fp.lastText.Seed != -1 {
		t.Fatalf("unexpected result %v seed=%d", img.Bounds(), fp.lastText.Seed)
	}
}

func TestImageToImage_Errors(t *testing.T) {
	fp := &fakePipeline{}
	h, err := newTestHost(t, fp, device.Capabilities{}, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p := pipeline.ImageToImageParams{Prompt: "x", Strength: 0.75, GuidanceScale: 7, SamplingSteps: 10, NumInferenceSteps: 20}
	if _, err := h.ImageToImage(context.Background(), p); !IsValidation(err) || ValidationField(err) != "base64_image" {
		t.Fatalf("expected base64_image validation error, got %v", err)
	}
	p.Image = image.NewRGBA(image.Rect(0, 0, 4, 4))
	p.Strength = 0.05
	if _, err := h.ImageToImage(context.Background(), p); ValidationField(err) != "strength" {
		t.Fatalf("expected strength error, got %v", err)
	}
	p.Strength = 0.5
	fp.genErr = errors.New("CUDA out of memory")
	_, err = h.ImageToImage(context.Background(), p)
	if !IsGeneration(err) || IsValidation(err) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if !errors.Is(err, fp.genErr) {
		t.Fatalf("cause should unwrap")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo world", 5); got != "héllo..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 50); got != "short" {
		t.Fatalf("got %q", got)
	}
}

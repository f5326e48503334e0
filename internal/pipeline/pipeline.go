// Package pipeline abstracts the external diffusion runtime that turns
// prompts (and optionally a source image) into bitmaps.
//
// Backends:
//
//   - synthetic: in-process deterministic generator for development and tests.
//   - sdapi: AUTOMATIC1111-compatible REST server (/sdapi/v1/*).
//   - comfyui: ComfyUI server driven through workflow graphs (comfy2go).
//
// The sampling loop, attention slicing and device placement are owned by the
// backend runtime; this package only forwards parameters.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"artifyd/internal/device"
)

// TextToImageParams are forwarded to the backend for text-to-image calls.
type TextToImageParams struct {
	Prompt            string
	Width             int
	Height            int
	GuidanceScale     float64
	NumInferenceSteps int
	SamplingSteps     int
	// Seed < 0 lets the backend choose.
	Seed int64
	// Temperature has no diffusion equivalent; backends may ignore it.
	Temperature float64
}

// ImageToImageParams are forwarded to the backend for image-to-image calls.
type ImageToImageParams struct {
	Prompt            string
	Image             image.Image
	Strength          float64
	GuidanceScale     float64
	NumInferenceSteps int
	SamplingSteps     int
	Seed              int64
}

// Pipeline is one loaded pretrained model served by a backend runtime.
type Pipeline interface {
	// To binds the pipeline to a compute device.
	To(dev device.Kind) error
	// EnableAttentionSlicing switches the runtime to its memory-saving
	// attention mode where supported.
	EnableAttentionSlicing() error
	TextToImage(ctx context.Context, p TextToImageParams) ([]image.Image, error)
	ImageToImage(ctx context.Context, p ImageToImageParams) ([]image.Image, error)
	// Version describes the backend runtime, e.g. a torch or server version.
	Version() string
	Close() error
}

// CapabilityReporter is implemented by backends that can tell which
// accelerators their runtime sees.
type CapabilityReporter interface {
	Capabilities(ctx context.Context) (device.Capabilities, error)
}

// Config carries everything a backend may need to open a model.
type Config struct {
	Backend string
	ModelID string

	SDAPIURL       string
	ConnectTimeout time.Duration

	ComfyHost             string
	ComfyPort             int
	ComfyText2ImgWorkflow string
	ComfyImg2ImgWorkflow  string

	Logger zerolog.Logger
}

// Opener constructs a backend and loads cfg.ModelID.
type Opener func(ctx context.Context, cfg Config) (Pipeline, error)

var backends = map[string]Opener{
	"synthetic": openSynthetic,
	"sdapi":     openSDAPI,
	"comfyui":   openComfy,
}

// Backends lists registered backend names.
func Backends() []string {
	out := make([]string, 0, len(backends))
	for name := range backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open constructs the backend named by cfg.Backend and loads the model.
func Open(ctx context.Context, cfg Config) (Pipeline, error) {
	open, ok := backends[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline backend %q (have %v)", cfg.Backend, Backends())
	}
	p, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s pipeline for %q: %w", cfg.Backend, cfg.ModelID, err)
	}
	return p, nil
}

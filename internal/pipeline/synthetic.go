package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"sync/atomic"

	"artifyd/internal/device"
)

const syntheticVersion = "synthetic/1.0"

// syntheticPipeline renders a procedural image derived from the prompt and
// seed. It needs no model weights and is fully deterministic for a fixed
// non-negative seed, which makes it the backend of choice for development
// and tests.
type syntheticPipeline struct {
	modelID string
	dev     atomic.Value // device.Kind
	slicing atomic.Bool
	closed  atomic.Bool
}

func openSynthetic(ctx context.Context, cfg Config) (Pipeline, error) {
	if cfg.ModelID == "" {
		return nil, errors.New("model id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &syntheticPipeline{modelID: cfg.ModelID}
	p.dev.Store(device.CPU)
	cfg.Logger.Debug().Str("model", cfg.ModelID).Msg("synthetic pipeline ready")
	return p, nil
}

func (p *syntheticPipeline) To(dev device.Kind) error {
	if _, err := device.Parse(string(dev)); err != nil {
		return err
	}
	p.dev.Store(dev)
	return nil
}

func (p *syntheticPipeline) EnableAttentionSlicing() error {
	p.slicing.Store(true)
	return nil
}

func (p *syntheticPipeline) Version() string { return syntheticVersion }

func (p *syntheticPipeline) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *syntheticPipeline) TextToImage(ctx context.Context, in TextToImageParams) ([]image.Image, error) {
	if p.closed.Load() {
		return nil, errors.New("pipeline closed")
	}
	if in.Width <= 0 || in.Height <= 0 {
		return nil, errors.New("width and height must be positive")
	}
	noise, err := p.denoise(ctx, in.NumInferenceSteps)
	if err != nil {
		return nil, err
	}
	img := render(in.Prompt, in.Seed, in.Width, in.Height, noise)
	return []image.Image{img}, nil
}

func (p *syntheticPipeline) ImageToImage(ctx context.Context, in ImageToImageParams) ([]image.Image, error) {
	if p.closed.Load() {
		return nil, errors.New("pipeline closed")
	}
	if in.Image == nil {
		return nil, errors.New("source image is required")
	}
	noise, err := p.denoise(ctx, in.NumInferenceSteps)
	if err != nil {
		return nil, err
	}
	b := in.Image.Bounds()
	gen := render(in.Prompt, in.Seed, b.Dx(), b.Dy(), noise)
	s := math.Max(0, math.Min(1, in.Strength))
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			sr, sg, sb, _ := in.Image.At(b.Min.X+x, b.Min.Y+y).RGBA()
			g := gen.NRGBAAt(x, y)
			out.SetNRGBA(x, y, color.NRGBA{
				R: mix(uint8(sr>>8), g.R, s),
				G: mix(uint8(sg>>8), g.G, s),
				B: mix(uint8(sb>>8), g.B, s),
				A: 255,
			})
		}
	}
	return []image.Image{out}, nil
}

// denoise walks the step schedule and returns the residual noise weight.
// More steps leave less noise in the final render.
func (p *syntheticPipeline) denoise(ctx context.Context, steps int) (float64, error) {
	if steps < 1 {
		steps = 1
	}
	noise := 1.0
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		noise *= 0.8
	}
	return noise, nil
}

func render(prompt string, seed int64, w, h int, noise float64) *image.NRGBA {
	hf := fnv.New64a()
	_, _ = hf.Write([]byte(prompt))
	ph := hf.Sum64()
	if seed < 0 {
		seed = rand.Int64()
	}
	rng := rand.New(rand.NewPCG(uint64(seed), ph))

	c1 := paletteColor(ph)
	c2 := paletteColor(ph>>24 ^ uint64(seed))
	fx := 1 + float64(ph%7)
	fy := 1 + float64((ph>>8)%5)

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			u, v := float64(x)/float64(w), float64(y)/float64(h)
			t := 0.5 + 0.25*math.Sin(2*math.Pi*fx*u) + 0.25*math.Cos(2*math.Pi*fy*v)
			n := (rng.Float64() - 0.5) * 255 * noise
			img.SetNRGBA(x, y, color.NRGBA{
				R: clamp(lerp(float64(c1.R), float64(c2.R), t) + n),
				G: clamp(lerp(float64(c1.G), float64(c2.G), t) + n),
				B: clamp(lerp(float64(c1.B), float64(c2.B), t) + n),
				A: 255,
			})
		}
	}
	return img
}

func paletteColor(h uint64) color.NRGBA {
	return color.NRGBA{R: uint8(h), G: uint8(h >> 8), B: uint8(h >> 16), A: 255}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func mix(src, gen uint8, strength float64) uint8 {
	return clamp(lerp(float64(src), float64(gen), strength))
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

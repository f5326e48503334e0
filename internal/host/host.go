// Package host owns the single loaded generation pipeline. A Host is built
// once before serving starts and is read-only afterwards, so handlers can
// share it without locking.
package host

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"artifyd/internal/device"
	"artifyd/internal/pipeline"
)

// Options configures New.
type Options struct {
	// Pipeline is passed to the opener; its ModelID names the model to load.
	Pipeline pipeline.Config
	// Device is "auto" (or empty) to probe, or an explicit cuda|mps|cpu.
	Device           string
	AttentionSlicing bool

	// Probe and Open default to device.Probe and pipeline.Open.
	Probe  func() device.Capabilities
	Open   pipeline.Opener
	Logger zerolog.Logger
}

// Info is the immutable description of the loaded model.
type Info struct {
	ModelID        string
	Device         device.Kind
	Backend        string
	BackendVersion string
	Capabilities   device.Capabilities
	LoadedAt       time.Time
}

// Host serves generation calls against one pipeline.
type Host struct {
	p    pipeline.Pipeline
	info Info
	log  zerolog.Logger
}

// New loads the model and binds it to the best device. Any error is fatal
// for the caller: no Host means nothing to serve.
func New(ctx context.Context, opts Options) (*Host, error) {
	if opts.Pipeline.ModelID == "" {
		return nil, errors.New("model id is required")
	}
	probe := opts.Probe
	if probe == nil {
		probe = device.Probe
	}
	open := opts.Open
	if open == nil {
		open = pipeline.Open
	}
	log := opts.Logger.With().Str("model", opts.Pipeline.ModelID).Str("backend", opts.Pipeline.Backend).Logger()
	opts.Pipeline.Logger = opts.Logger

	start := time.Now()
	p, err := open(ctx, opts.Pipeline)
	if err != nil {
		log.Error().Err(err).Msg("model load failed")
		return nil, err
	}
	caps := probe()
	if cr, ok := p.(pipeline.CapabilityReporter); ok {
		if bc, err := cr.Capabilities(ctx); err != nil {
			log.Warn().Err(err).Msg("backend capability report unavailable")
		} else {
			caps = caps.Merge(bc)
		}
	}
	dev, err := device.Select(caps, opts.Device)
	if err != nil {
		_ = p.Close()
		log.Error().Err(err).Msg("device selection failed")
		return nil, err
	}
	if err := p.To(dev); err != nil {
		_ = p.Close()
		log.Error().Err(err).Str("device", string(dev)).Msg("bind to device failed")
		return nil, fmt.Errorf("bind pipeline to %s: %w", dev, err)
	}
	if opts.AttentionSlicing {
		if err := p.EnableAttentionSlicing(); err != nil {
			_ = p.Close()
			log.Error().Err(err).Msg("enable attention slicing failed")
			return nil, fmt.Errorf("enable attention slicing: %w", err)
		}
	}

	h := &Host{
		p: p,
		info: Info{
			ModelID:        opts.Pipeline.ModelID,
			Device:         dev,
			Backend:        opts.Pipeline.Backend,
			BackendVersion: p.Version(),
			Capabilities:   caps,
			LoadedAt:       time.Now(),
		},
		log: log,
	}
	deviceInfo.WithLabelValues(string(dev), opts.Pipeline.Backend).Set(1)
	log.Info().
		Str("device", string(dev)).
		Str("version", h.info.BackendVersion).
		Bool("cuda", caps.CUDA).
		Bool("mps", caps.MPS).
		Dur("took", time.Since(start)).
		Msg("model loaded")
	return h, nil
}

// Info describes the loaded model.
func (h *Host) Info() Info { return h.info }

// TextToImage validates p and returns the first image the pipeline produces.
func (h *Host) TextToImage(ctx context.Context, p pipeline.TextToImageParams) (image.Image, error) {
	if err := ValidateTextToImage(p); err != nil {
		return nil, err
	}
	h.log.Info().
		Str("prompt", truncate(p.Prompt, 50)).
		Int("width", p.Width).
		Int("height", p.Height).
		Int("steps", p.NumInferenceSteps).
		Int("sampling_steps", p.SamplingSteps).
		Float64("temperature", p.Temperature).
		Msg("text2img")
	return h.generate(ctx, "text2img", func() ([]image.Image, error) {
		return h.p.TextToImage(ctx, p)
	})
}

// ImageToImage validates p and returns the first image the pipeline produces.
func (h *Host) ImageToImage(ctx context.Context, p pipeline.ImageToImageParams) (image.Image, error) {
	if err := ValidateImageToImage(p); err != nil {
		return nil, err
	}
	if p.Image == nil {
		return nil, ErrValidation("base64_image", "is required")
	}
	h.log.Info().
		Str("prompt", truncate(p.Prompt, 50)).
		Float64("strength", p.Strength).
		Int("steps", p.NumInferenceSteps).
		Int("sampling_steps", p.SamplingSteps).
		Msg("img2img")
	return h.generate(ctx, "img2img", func() ([]image.Image, error) {
		return h.p.ImageToImage(ctx, p)
	})
}

func (h *Host) generate(ctx context.Context, mode string, call func() ([]image.Image, error)) (image.Image, error) {
	start := time.Now()
	imgs, err := call()
	generationDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err == nil && len(imgs) == 0 {
		err = errors.New("pipeline produced no images")
	}
	if err != nil {
		status := "error"
		if ctx.Err() != nil {
			status = "canceled"
		}
		generationTotal.WithLabelValues(mode, status).Inc()
		h.log.Error().Err(err).Str("mode", mode).Msg("generation failed")
		return nil, generationError{cause: err}
	}
	generationTotal.WithLabelValues(mode, "ok").Inc()
	h.log.Debug().Str("mode", mode).Dur("took", time.Since(start)).Msg("generation done")
	return imgs[0], nil
}

// Close releases the pipeline.
func (h *Host) Close() error { return h.p.Close() }

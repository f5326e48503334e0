package host

import (
	"strings"

	"artifyd/internal/pipeline"
)

// Accepted parameter ranges, inclusive.
const (
	MinDimension = 64
	MaxDimension = 1024
	MinScale     = 1
	MaxScale     = 10
	MinSteps     = 1
	MaxSteps     = 100
	MinStrength  = 0.1
	MaxStrength  = 1.0
	MinTemp      = 0.1
	MaxTemp      = 1.0
)

// Text-to-image defaults.
const (
	DefaultTemperature    = 0.9
	DefaultDimension      = 512
	DefaultScale          = 7
	DefaultSeed           = -1
	DefaultSamplingSteps  = 20
	DefaultInferenceSteps = 50
)

// Image-to-image defaults.
const (
	DefaultStrength         = 0.75
	DefaultImg2ImgSampling  = 10
	DefaultImg2ImgInference = 20
)

// ValidateTextToImage checks p against the accepted ranges.
func ValidateTextToImage(p pipeline.TextToImageParams) error {
	if strings.TrimSpace(p.Prompt) == "" {
		return ErrValidation("prompt", "is required")
	}
	if err := intRange("width", p.Width, MinDimension, MaxDimension); err != nil {
		return err
	}
	if err := intRange("height", p.Height, MinDimension, MaxDimension); err != nil {
		return err
	}
	if err := floatRange("scale", p.GuidanceScale, MinScale, MaxScale); err != nil {
		return err
	}
	if err := floatRange("temperature", p.Temperature, MinTemp, MaxTemp); err != nil {
		return err
	}
	if err := intRange("sampling_steps", p.SamplingSteps, MinSteps, MaxSteps); err != nil {
		return err
	}
	return intRange("num_inference_steps", p.NumInferenceSteps, MinSteps, MaxSteps)
}

// ValidateImageToImage checks the scalar fields of p; the image itself is
// validated when decoded.
func ValidateImageToImage(p pipeline.ImageToImageParams) error {
	if strings.TrimSpace(p.Prompt) == "" {
		return ErrValidation("prompt", "is required")
	}
	if err := floatRange("strength", p.Strength, MinStrength, MaxStrength); err != nil {
		return err
	}
	if err := floatRange("scale", p.GuidanceScale, MinScale, MaxScale); err != nil {
		return err
	}
	if err := intRange("sampling_steps", p.SamplingSteps, MinSteps, MaxSteps); err != nil {
		return err
	}
	return intRange("num_inference_steps", p.NumInferenceSteps, MinSteps, MaxSteps)
}

func intRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return ErrValidation(field, "must be between %d and %d, got %d", lo, hi, v)
	}
	return nil
}

func floatRange(field string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return ErrValidation(field, "must be between %g and %g, got %g", lo, hi, v)
	}
	return nil
}

// truncate shortens s to n runes for log lines.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

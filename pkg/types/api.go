package types

// TextToImageRequest carries the query parameters of GET /generate/text2img.
type TextToImageRequest struct {
	// Text prompt for image generation.
	// example: a red apple on a wooden table
	Prompt string `json:"prompt" example:"a red apple on a wooden table"`
	// Temperature for diversity. Accepted for compatibility; diffusion
	// backends do not consume it.
	// example: 0.9
	Temperature float64 `json:"temperature" example:"0.9"`
	// Image width in pixels.
	// example: 512
	Width int `json:"width" example:"512"`
	// Image height in pixels.
	// example: 512
	Height int `json:"height" example:"512"`
	// Classifier-free guidance scale.
	// example: 7
	Scale int `json:"scale" example:"7"`
	// Random seed; -1 lets the backend choose.
	// example: -1
	Seed int64 `json:"seed" example:"-1"`
	// Sampling steps.
	// example: 20
	SamplingSteps int `json:"sampling_steps" example:"20"`
	// Number of denoising iterations.
	// example: 50
	NumInferenceSteps int `json:"num_inference_steps" example:"50"`
}

// ImageToImageRequest is the JSON body of POST /generate/img2img.
type ImageToImageRequest struct {
	// Source image as raw base64 or a data URI.
	// example: data:image/png;base64,iVBORw0KGgo...
	Base64Image string `json:"base64_image" example:"data:image/png;base64,iVBORw0KGgo..."`
	// Text prompt for image generation.
	// example: an oil painting of mountains
	Prompt string `json:"prompt" example:"an oil painting of mountains"`
	// How far the output may diverge from the source image.
	// example: 0.75
	Strength *float64 `json:"strength,omitempty" example:"0.75"`
	// Classifier-free guidance scale.
	// example: 7
	Scale *int `json:"scale,omitempty" example:"7"`
	// Sampling steps.
	// example: 10
	SamplingSteps *int `json:"sampling_steps,omitempty" example:"10"`
	// Number of denoising iterations.
	// example: 20
	NumInferenceSteps *int `json:"num_inference_steps,omitempty" example:"20"`
	// Optional prompt the caller started from before editing; echoed back.
	OriginalPrompt string `json:"original_prompt,omitempty"`
}

// ImageToImageResponse is returned by POST /generate/img2img.
type ImageToImageResponse struct {
	// Generated image as a PNG data URI.
	Base64Image string `json:"base64_image"`
	// example: success
	Status         string `json:"status" example:"success"`
	Prompt         string `json:"prompt"`
	OriginalPrompt string `json:"original_prompt"`
}

// RootResponse is returned by GET /.
type RootResponse struct {
	// example: artifyd is running!
	Message string `json:"message" example:"artifyd is running!"`
	// example: healthy
	Status string `json:"status" example:"healthy"`
	// example: stabilityai/stable-diffusion-2-1-base
	Model string `json:"model" example:"stabilityai/stable-diffusion-2-1-base"`
	// example: cuda
	Device string `json:"device" example:"cuda"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// example: healthy
	Status      string `json:"status" example:"healthy"`
	ModelLoaded bool   `json:"model_loaded" example:"true"`
	// example: cuda
	Device string `json:"device" example:"cuda"`
	// Pipeline backend name.
	// example: sdapi
	Backend string `json:"backend" example:"sdapi"`
	// Version of the numerical backend or pipeline runtime.
	// example: 2.5.1+cu124
	BackendVersion string `json:"backend_version" example:"2.5.1+cu124"`
	CUDAAvailable  bool   `json:"cuda_available"`
	MPSAvailable   bool   `json:"mps_available"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: Invalid image format
	Error string `json:"error" example:"Invalid image format"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

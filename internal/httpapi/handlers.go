package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"artifyd/internal/host"
	"artifyd/internal/imaging"
	"artifyd/internal/pipeline"
	"artifyd/pkg/types"
)

const (
	msgImageRequired    = "Base64 image is required"
	msgInvalidImage     = "Invalid image format"
	msgGenerationFailed = "Image generation failed"
)

// handleRoot godoc
// @Summary      Liveness
// @Description  Static liveness payload with the loaded model and device.
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.RootResponse
// @Router       / [get]
func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := s.svc.Info()
	writeJSON(w, http.StatusOK, types.RootResponse{
		Message: "artifyd is running!",
		Status:  "healthy",
		Model:   info.ModelID,
		Device:  string(info.Device),
	})
}

// handleHealth godoc
// @Summary      Health
// @Description  Backend version and accelerator capability flags.
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Router       /health [get]
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.svc.Info()
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:         "healthy",
		ModelLoaded:    true,
		Device:         string(info.Device),
		Backend:        info.Backend,
		BackendVersion: info.BackendVersion,
		CUDAAvailable:  info.Capabilities.CUDA,
		MPSAvailable:   info.Capabilities.MPS,
	})
}

// handleTextToImage godoc
// @Summary      Text to image
// @Description  Generates an image from a prompt and streams it as PNG.
// @Tags         generate
// @Produce      png
// @Param        prompt               query  string   true   "Text prompt"
// @Param        temperature          query  number   false  "Temperature (0.1-1.0)"         default(0.9)
// @Param        width                query  integer  false  "Width (64-1024)"               default(512)
// @Param        height               query  integer  false  "Height (64-1024)"              default(512)
// @Param        scale                query  integer  false  "Guidance scale (1-10)"         default(7)
// @Param        seed                 query  integer  false  "Seed, -1 for random"           default(-1)
// @Param        sampling_steps       query  integer  false  "Sampling steps (1-100)"        default(20)
// @Param        num_inference_steps  query  integer  false  "Inference steps (1-100)"       default(50)
// @Success      200  {file}    binary
// @Failure      422  {object}  types.ErrorResponse
// @Failure      500  {object}  types.ErrorResponse
// @Router       /generate/text2img [get]
func (s *server) handleTextToImage(w http.ResponseWriter, r *http.Request) {
	req, err := parseTextToImageQuery(r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ctx, cancel := joinContexts(s.baseCtx, r.Context())
	defer cancel()
	img, err := s.svc.TextToImage(ctx, pipeline.TextToImageParams{
		Prompt:            req.Prompt,
		Width:             req.Width,
		Height:            req.Height,
		GuidanceScale:     float64(req.Scale),
		NumInferenceSteps: req.NumInferenceSteps,
		SamplingSteps:     req.SamplingSteps,
		Seed:              req.Seed,
		Temperature:       req.Temperature,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	b, err := imaging.EncodePNG(img)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// handleImageToImage godoc
// @Summary      Image to image
// @Description  Transforms a base64 source image guided by a prompt. The source is converted to RGB and resized to 768x512.
// @Tags         generate
// @Accept       json
// @Produce      json
// @Param        body  body      types.ImageToImageRequest  true  "Generation request"
// @Success      200   {object}  types.ImageToImageResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      415   {object}  types.ErrorResponse
// @Failure      422   {object}  types.ErrorResponse
// @Failure      500   {object}  types.ErrorResponse
// @Router       /generate/img2img [post]
func (s *server) handleImageToImage(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	var req img2imgBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// The image is checked first so malformed payloads never reach the model.
	src, format, err := imaging.DecodeBase64(req.Base64Image)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Debug().Str("format", format).Int("src_w", src.Bounds().Dx()).Int("src_h", src.Bounds().Dy()).Msg("source image decoded")

	params := pipeline.ImageToImageParams{
		Prompt:            req.Prompt,
		Image:             imaging.Normalize(src, imaging.NormalizedWidth, imaging.NormalizedHeight),
		Strength:          host.DefaultStrength,
		GuidanceScale:     host.DefaultScale,
		NumInferenceSteps: host.DefaultImg2ImgInference,
		SamplingSteps:     host.DefaultImg2ImgSampling,
		Seed:              host.DefaultSeed,
	}
	if req.Strength != nil {
		params.Strength = *req.Strength
	}
	if req.Scale != nil {
		n, err := wholeNumber("scale", *req.Scale)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		params.GuidanceScale = float64(n)
	}
	steps := []struct {
		name string
		src  *json.Number
		dst  *int
	}{
		{"sampling_steps", req.SamplingSteps, &params.SamplingSteps},
		{"num_inference_steps", req.NumInferenceSteps, &params.NumInferenceSteps},
	}
	for _, f := range steps {
		if f.src == nil {
			continue
		}
		n, err := wholeNumber(f.name, *f.src)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		*f.dst = n
	}

	ctx, cancel := joinContexts(s.baseCtx, r.Context())
	defer cancel()
	out, err := s.svc.ImageToImage(ctx, params)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	b, err := imaging.EncodePNG(out)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	original := req.OriginalPrompt
	if original == "" {
		original = req.Prompt
	}
	writeJSON(w, http.StatusOK, types.ImageToImageResponse{
		Base64Image:    imaging.PNGDataURI(b),
		Status:         "success",
		Prompt:         req.Prompt,
		OriginalPrompt: original,
	})
}

// img2imgBody is types.ImageToImageRequest as read off the wire. Integer
// fields are numbers so that 7.0 is accepted like 7.
type img2imgBody struct {
	Base64Image       string       `json:"base64_image"`
	Prompt            string       `json:"prompt"`
	Strength          *float64     `json:"strength"`
	Scale             *json.Number `json:"scale"`
	SamplingSteps     *json.Number `json:"sampling_steps"`
	NumInferenceSteps *json.Number `json:"num_inference_steps"`
	OriginalPrompt    string       `json:"original_prompt"`
}

// wholeNumber converts n to an int, rejecting fractions.
func wholeNumber(field string, n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil && i >= math.MinInt32 && i <= math.MaxInt32 {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, host.ErrValidation(field, "must be an integer, got %s", n.String())
	}
	return int(f), nil
}

// parseTextToImageQuery applies defaults and parses numeric fields. Range
// checks happen in the host.
func parseTextToImageQuery(q url.Values) (types.TextToImageRequest, error) {
	req := types.TextToImageRequest{
		Prompt:            q.Get("prompt"),
		Temperature:       host.DefaultTemperature,
		Width:             host.DefaultDimension,
		Height:            host.DefaultDimension,
		Scale:             host.DefaultScale,
		Seed:              host.DefaultSeed,
		SamplingSteps:     host.DefaultSamplingSteps,
		NumInferenceSteps: host.DefaultInferenceSteps,
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return req, host.ErrValidation("prompt", "is required")
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"width", &req.Width},
		{"height", &req.Height},
		{"scale", &req.Scale},
		{"sampling_steps", &req.SamplingSteps},
		{"num_inference_steps", &req.NumInferenceSteps},
	}
	for _, f := range ints {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, host.ErrValidation(f.name, "must be an integer, got %q", v)
		}
		*f.dst = n
	}
	if v := q.Get("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, host.ErrValidation("seed", "must be an integer, got %q", v)
		}
		req.Seed = n
	}
	if v := q.Get("temperature"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, host.ErrValidation("temperature", "must be a number, got %q", v)
		}
		req.Temperature = f
	}
	return req, nil
}

// respondError maps service errors to status codes. Generation failures
// are logged with their cause; clients only see a generic message.
func (s *server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())
	switch {
	case errors.Is(err, imaging.ErrEmpty):
		writeJSONError(w, http.StatusBadRequest, msgImageRequired)
	case host.IsBadImage(err):
		log.Info().Err(err).Msg("rejected source image")
		writeJSONError(w, http.StatusBadRequest, msgInvalidImage)
	case host.IsValidation(err):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		if r.Context().Err() != nil {
			// Client went away; nobody is listening for the response.
			log.Info().Err(err).Msg("request canceled")
			return
		}
		var he HTTPError
		if errors.As(err, &he) {
			writeJSONError(w, he.StatusCode(), he.Error())
			return
		}
		log.Error().Err(err).Msg("generation request failed")
		writeJSONError(w, http.StatusInternalServerError, msgGenerationFailed)
	}
}

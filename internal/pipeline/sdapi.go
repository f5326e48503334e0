package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"artifyd/internal/device"
	"artifyd/internal/imaging"
)

// sdapiPipeline talks to an AUTOMATIC1111-compatible server. Device
// placement and attention optimizations are fixed by the server's own
// launch flags; To and EnableAttentionSlicing only record intent.
type sdapiPipeline struct {
	baseURL    string
	modelID    string
	httpClient *http.Client
	log        zerolog.Logger
	dev        device.Kind
	version    string
}

type sdapiTxt2ImgRequest struct {
	Prompt   string  `json:"prompt"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Steps    int     `json:"steps"`
	CFGScale float64 `json:"cfg_scale"`
	Seed     int64   `json:"seed"`
	NIter    int     `json:"n_iter"`
	// BatchSize is fixed to 1: only the first image is ever returned.
	BatchSize int `json:"batch_size"`
}

type sdapiImg2ImgRequest struct {
	InitImages        []string `json:"init_images"`
	Prompt            string   `json:"prompt"`
	DenoisingStrength float64  `json:"denoising_strength"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	Steps             int      `json:"steps"`
	CFGScale          float64  `json:"cfg_scale"`
	Seed              int64    `json:"seed"`
	BatchSize         int      `json:"batch_size"`
}

type sdapiImagesResponse struct {
	Images []string `json:"images"`
}

type sdapiOptions struct {
	SDModelCheckpoint string `json:"sd_model_checkpoint,omitempty"`
}

func openSDAPI(ctx context.Context, cfg Config) (Pipeline, error) {
	if strings.TrimSpace(cfg.SDAPIURL) == "" {
		return nil, errors.New("sdapi url is required")
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	p := &sdapiPipeline{
		baseURL: strings.TrimRight(cfg.SDAPIURL, "/"),
		modelID: cfg.ModelID,
		// No client timeout: generation runs as long as the sampler needs.
		httpClient: &http.Client{Transport: tr},
		log:        cfg.Logger.With().Str("backend", "sdapi").Logger(),
		dev:        device.CPU,
		version:    "sdapi",
	}
	if err := p.load(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// load verifies the server is reachable and switches it to the configured
// checkpoint when one is named.
func (p *sdapiPipeline) load(ctx context.Context) error {
	var cur sdapiOptions
	if err := p.do(ctx, http.MethodGet, "/sdapi/v1/options", nil, &cur); err != nil {
		return fmt.Errorf("reach sdapi server: %w", err)
	}
	if p.modelID != "" && cur.SDModelCheckpoint != p.modelID {
		if err := p.do(ctx, http.MethodPost, "/sdapi/v1/options", sdapiOptions{SDModelCheckpoint: p.modelID}, nil); err != nil {
			return fmt.Errorf("select checkpoint %q: %w", p.modelID, err)
		}
		p.log.Info().Str("from", cur.SDModelCheckpoint).Str("to", p.modelID).Msg("checkpoint switched")
	}
	if p.modelID != "" {
		p.version = "sdapi/" + p.modelID
	}
	return nil
}

func (p *sdapiPipeline) To(dev device.Kind) error {
	p.dev = dev
	p.log.Debug().Str("device", string(dev)).Msg("device placement is managed by the sdapi server")
	return nil
}

func (p *sdapiPipeline) EnableAttentionSlicing() error {
	p.log.Debug().Msg("attention optimization is managed by the sdapi server")
	return nil
}

func (p *sdapiPipeline) Version() string { return p.version }

func (p *sdapiPipeline) Close() error {
	if tr, ok := p.httpClient.Transport.(*http.Transport); ok {
		tr.CloseIdleConnections()
	}
	return nil
}

func (p *sdapiPipeline) TextToImage(ctx context.Context, in TextToImageParams) ([]image.Image, error) {
	req := sdapiTxt2ImgRequest{
		Prompt:    in.Prompt,
		Width:     in.Width,
		Height:    in.Height,
		Steps:     in.NumInferenceSteps,
		CFGScale:  in.GuidanceScale,
		Seed:      in.Seed,
		NIter:     1,
		BatchSize: 1,
	}
	var resp sdapiImagesResponse
	if err := p.do(ctx, http.MethodPost, "/sdapi/v1/txt2img", req, &resp); err != nil {
		return nil, err
	}
	return decodeImages(resp.Images)
}

func (p *sdapiPipeline) ImageToImage(ctx context.Context, in ImageToImageParams) ([]image.Image, error) {
	if in.Image == nil {
		return nil, errors.New("source image is required")
	}
	src, err := imaging.EncodePNG(in.Image)
	if err != nil {
		return nil, err
	}
	b := in.Image.Bounds()
	req := sdapiImg2ImgRequest{
		InitImages:        []string{base64.StdEncoding.EncodeToString(src)},
		Prompt:            in.Prompt,
		DenoisingStrength: in.Strength,
		Width:             b.Dx(),
		Height:            b.Dy(),
		Steps:             in.NumInferenceSteps,
		CFGScale:          in.GuidanceScale,
		Seed:              in.Seed,
		BatchSize:         1,
	}
	var resp sdapiImagesResponse
	if err := p.do(ctx, http.MethodPost, "/sdapi/v1/img2img", req, &resp); err != nil {
		return nil, err
	}
	return decodeImages(resp.Images)
}

func (p *sdapiPipeline) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sdapi %s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(b)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sdapi %s %s: decode response: %w", method, path, err)
	}
	return nil
}

func decodeImages(encoded []string) ([]image.Image, error) {
	if len(encoded) == 0 {
		return nil, errors.New("backend returned no images")
	}
	out := make([]image.Image, 0, len(encoded))
	for i, s := range encoded {
		img, _, err := imaging.DecodeBase64(s)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out = append(out, img)
	}
	return out, nil
}

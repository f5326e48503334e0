package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/richinsley/comfy2go/client"
	"github.com/richinsley/comfy2go/graphapi"
	"github.com/rs/zerolog"

	"artifyd/internal/common/fsutil"
	"artifyd/internal/device"
)

// Node titles looked up in a workflow's "API" group.
const (
	comfyPositive  = "Positive"
	comfyWidth     = "Width"
	comfyHeight    = "Height"
	comfySeed      = "Seed"
	comfySteps     = "Steps"
	comfyCFG       = "CFG"
	comfyDenoise   = "Denoise"
	comfyLoadImage = "Load Image"
)

// comfyPipeline drives a ComfyUI server. The loaded model is whatever the
// workflow's checkpoint loader names; a fresh graph is built per request so
// parameter writes never leak between calls.
type comfyPipeline struct {
	c       *client.ComfyClient
	modelID string
	log     zerolog.Logger

	text2img []byte
	img2img  []byte

	// ComfyUI executes one prompt at a time; mu keeps our own callers in line.
	mu      sync.Mutex
	version string
}

func openComfy(ctx context.Context, cfg Config) (Pipeline, error) {
	if cfg.ComfyText2ImgWorkflow == "" {
		return nil, errors.New("comfyui text2img workflow is required")
	}
	t2i, err := fsutil.ReadUserFile(cfg.ComfyText2ImgWorkflow)
	if err != nil {
		return nil, fmt.Errorf("text2img workflow: %w", err)
	}
	var i2i []byte
	if cfg.ComfyImg2ImgWorkflow != "" {
		if i2i, err = fsutil.ReadUserFile(cfg.ComfyImg2ImgWorkflow); err != nil {
			return nil, fmt.Errorf("img2img workflow: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := cfg.Logger.With().Str("backend", "comfyui").Logger()
	callbacks := &client.ComfyClientCallbacks{
		ClientQueueCountChanged: func(c *client.ComfyClient, n int) {
			log.Debug().Int("queue", n).Msg("comfyui queue changed")
		},
	}
	c := client.NewComfyClient(cfg.ComfyHost, cfg.ComfyPort, callbacks)
	if !c.IsInitialized() {
		if err := c.Init(); err != nil {
			return nil, fmt.Errorf("connect comfyui %s:%d: %w", cfg.ComfyHost, cfg.ComfyPort, err)
		}
	}
	p := &comfyPipeline{c: c, modelID: cfg.ModelID, log: log, text2img: t2i, img2img: i2i, version: "comfyui"}

	// Parse once up front so a broken workflow fails at startup.
	if _, err := p.graph(t2i); err != nil {
		return nil, fmt.Errorf("text2img workflow: %w", err)
	}
	if i2i != nil {
		if _, err := p.graph(i2i); err != nil {
			return nil, fmt.Errorf("img2img workflow: %w", err)
		}
	}
	if stats, err := c.GetSystemStats(); err == nil {
		p.version = "comfyui/python-" + stats.System.PythonVersion
	}
	return p, nil
}

func (p *comfyPipeline) graph(workflow []byte) (*graphapi.Graph, error) {
	g, missing, err := p.c.NewGraphFromJsonReader(bytes.NewReader(workflow))
	if err != nil {
		return nil, err
	}
	if missing != nil && len(*missing) > 0 {
		return nil, fmt.Errorf("server lacks node types: %s", strings.Join(*missing, ", "))
	}
	return g, nil
}

func (p *comfyPipeline) To(dev device.Kind) error {
	p.log.Debug().Str("device", string(dev)).Msg("device placement is managed by comfyui")
	return nil
}

func (p *comfyPipeline) EnableAttentionSlicing() error { return nil }

func (p *comfyPipeline) Version() string { return p.version }

func (p *comfyPipeline) Close() error { return nil }

// Capabilities reports the accelerators ComfyUI's torch runtime sees.
func (p *comfyPipeline) Capabilities(ctx context.Context) (device.Capabilities, error) {
	if err := ctx.Err(); err != nil {
		return device.Capabilities{}, err
	}
	stats, err := p.c.GetSystemStats()
	if err != nil {
		return device.Capabilities{}, err
	}
	var caps device.Capabilities
	for _, d := range stats.Devices {
		switch strings.ToLower(d.Type) {
		case "cuda":
			caps.CUDA = true
			if caps.GPUName == "" {
				caps.GPUName = d.Name
			}
		case "mps":
			caps.MPS = true
		}
	}
	return caps, nil
}

func (p *comfyPipeline) TextToImage(ctx context.Context, in TextToImageParams) ([]image.Image, error) {
	g, err := p.graph(p.text2img)
	if err != nil {
		return nil, err
	}
	api := g.GetSimpleAPI()
	if err := setProps(api, map[string]any{
		comfyPositive: in.Prompt,
		comfyWidth:    in.Width,
		comfyHeight:   in.Height,
		comfySeed:     comfySeedValue(in.Seed),
		comfySteps:    in.NumInferenceSteps,
		comfyCFG:      in.GuidanceScale,
	}); err != nil {
		return nil, err
	}
	return p.run(ctx, g)
}

func (p *comfyPipeline) ImageToImage(ctx context.Context, in ImageToImageParams) ([]image.Image, error) {
	if p.img2img == nil {
		return nil, errors.New("comfyui img2img workflow not configured")
	}
	if in.Image == nil {
		return nil, errors.New("source image is required")
	}
	g, err := p.graph(p.img2img)
	if err != nil {
		return nil, err
	}
	api := g.GetSimpleAPI()
	if err := setProps(api, map[string]any{
		comfyPositive: in.Prompt,
		comfySeed:     comfySeedValue(in.Seed),
		comfySteps:    in.NumInferenceSteps,
		comfyCFG:      in.GuidanceScale,
		comfyDenoise:  in.Strength,
	}); err != nil {
		return nil, err
	}
	prop, ok := api.Properties[comfyLoadImage]
	if !ok {
		return nil, fmt.Errorf("workflow has no %q node in its API group", comfyLoadImage)
	}
	upload, ok := prop.ToImageUploadProperty()
	if !ok {
		return nil, fmt.Errorf("%q is not an image upload", comfyLoadImage)
	}
	name := "artifyd-" + uuid.NewString() + ".png"
	if _, err := p.c.UploadImage(in.Image, name, true, client.InputImageType, "", upload); err != nil {
		return nil, fmt.Errorf("upload source image: %w", err)
	}
	return p.run(ctx, g)
}

type comfyResult struct {
	images []image.Image
	err    error
}

func (p *comfyPipeline) run(ctx context.Context, g *graphapi.Graph) ([]image.Image, error) {
	p.mu.Lock()
	done := make(chan comfyResult, 1)
	go func() {
		defer p.mu.Unlock()
		var (
			out    []image.Image
			getErr error
		)
		handlers := &client.MessageHandlers{
			OnExecuting: func(m *client.PromptMessageExecuting) {
				p.log.Debug().Int("node", m.NodeID).Str("title", m.Title).Msg("comfyui executing")
			},
			OnError: func(e *client.PromptMessageStoppedException) {
				p.log.Error().Str("node_type", e.NodeType).Str("error", e.ExceptionMessage).Msg("comfyui execution failed")
			},
			OnData: func(m *client.PromptMessageData) {
				for k, outputs := range m.Data {
					if k != "images" {
						continue
					}
					for _, o := range outputs {
						raw, err := p.c.GetImage(o)
						if err != nil {
							getErr = fmt.Errorf("fetch %s: %w", o.Filename, err)
							continue
						}
						img, _, err := image.Decode(bytes.NewReader(*raw))
						if err != nil {
							getErr = fmt.Errorf("decode %s: %w", o.Filename, err)
							continue
						}
						out = append(out, img)
					}
				}
			},
		}
		err := p.c.QueuePromptAndProcess(g, handlers)
		if err == nil {
			err = getErr
		}
		if err == nil && len(out) == 0 {
			err = errors.New("backend returned no images")
		}
		done <- comfyResult{images: out, err: err}
	}()

	select {
	case r := <-done:
		return r.images, r.err
	case <-ctx.Done():
		if err := p.c.Interrupt(); err != nil {
			p.log.Warn().Err(err).Msg("comfyui interrupt failed")
		}
		return nil, ctx.Err()
	}
}

func setProps(api *graphapi.SimpleAPI, values map[string]any) error {
	for title, v := range values {
		prop, ok := api.Properties[title]
		if !ok {
			// Workflows may omit optional knobs such as Seed or Denoise.
			continue
		}
		if err := prop.SetValue(v); err != nil {
			return fmt.Errorf("set %s: %w", title, err)
		}
	}
	return nil
}

// comfySeedValue maps a negative seed to a random one; ComfyUI rejects
// negative seeds.
func comfySeedValue(seed int64) int64 {
	if seed >= 0 {
		return seed
	}
	return int64(uuid.New().ID())
}

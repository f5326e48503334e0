package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds runtime parameters for the service.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat    string `json:"log_format" yaml:"log_format" toml:"log_format"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	Model     ModelConfig     `json:"model" yaml:"model" toml:"model"`
	Provision ProvisionConfig `json:"provision" yaml:"provision" toml:"provision"`
	CORS      CORSConfig      `json:"cors" yaml:"cors" toml:"cors"`
}

// ModelConfig selects and configures the pipeline backend.
type ModelConfig struct {
	// ID names the pretrained pipeline (checkpoint) to load.
	ID string `json:"id" yaml:"id" toml:"id"`
	// Backend is one of sdapi, comfyui, synthetic. synthetic renders
	// procedural images without any model and is meant for development.
	Backend string `json:"backend" yaml:"backend" toml:"backend"`
	// Device is auto, cuda, mps or cpu.
	Device           string `json:"device" yaml:"device" toml:"device"`
	AttentionSlicing bool   `json:"attention_slicing" yaml:"attention_slicing" toml:"attention_slicing"`

	SDAPIURL            string `json:"sdapi_url" yaml:"sdapi_url" toml:"sdapi_url"`
	SDAPITimeoutSeconds int    `json:"sdapi_connect_timeout_seconds" yaml:"sdapi_connect_timeout_seconds" toml:"sdapi_connect_timeout_seconds"`

	ComfyHost             string `json:"comfy_host" yaml:"comfy_host" toml:"comfy_host"`
	ComfyPort             int    `json:"comfy_port" yaml:"comfy_port" toml:"comfy_port"`
	ComfyText2ImgWorkflow string `json:"comfy_text2img_workflow" yaml:"comfy_text2img_workflow" toml:"comfy_text2img_workflow"`
	ComfyImg2ImgWorkflow  string `json:"comfy_img2img_workflow" yaml:"comfy_img2img_workflow" toml:"comfy_img2img_workflow"`
}

// ProvisionConfig controls the optional GPU runtime installer stage.
type ProvisionConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Python         string   `json:"python" yaml:"python" toml:"python"`
	IndexURL       string   `json:"index_url" yaml:"index_url" toml:"index_url"`
	Packages       []string `json:"packages" yaml:"packages" toml:"packages"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials" toml:"allow_credentials"`
}

const (
	DefaultModelID  = "stabilityai/stable-diffusion-2-1-base"
	DefaultIndexURL = "https://download.pytorch.org/whl/cu124"
)

// Defaults returns the configuration used when nothing else is specified.
func Defaults() Config {
	return Config{
		Addr:         ":8000",
		LogLevel:     "info",
		LogFormat:    "auto",
		MaxBodyBytes: 16 << 20,
		Model: ModelConfig{
			ID:                  DefaultModelID,
			Backend:             "sdapi",
			Device:              "auto",
			AttentionSlicing:    true,
			SDAPIURL:            "http://127.0.0.1:7860",
			SDAPITimeoutSeconds: 10,
			ComfyHost:           "127.0.0.1",
			ComfyPort:           8188,
		},
		Provision: ProvisionConfig{
			Enabled:        false,
			Python:         "python3",
			IndexURL:       DefaultIndexURL,
			Packages:       []string{"torch", "torchvision", "torchaudio"},
			TimeoutSeconds: 300,
		},
		CORS: CORSConfig{
			Enabled:          true,
			AllowedOrigins:   []string{"http://localhost:3000", "https://localhost:3000"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		},
	}
}

// ApplyEnv overlays ARTIFYD_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []string
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
				return
			}
			*dst = b
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = SplitCSV(v)
		}
	}

	str("ARTIFYD_ADDR", &cfg.Addr)
	str("ARTIFYD_LOG_LEVEL", &cfg.LogLevel)
	str("ARTIFYD_LOG_FORMAT", &cfg.LogFormat)
	if v := os.Getenv("ARTIFYD_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ARTIFYD_MAX_BODY_BYTES=%q: %v", v, err))
		} else {
			cfg.MaxBodyBytes = n
		}
	}

	str("ARTIFYD_MODEL_ID", &cfg.Model.ID)
	str("ARTIFYD_BACKEND", &cfg.Model.Backend)
	str("ARTIFYD_DEVICE", &cfg.Model.Device)
	boolean("ARTIFYD_ATTENTION_SLICING", &cfg.Model.AttentionSlicing)
	str("ARTIFYD_SDAPI_URL", &cfg.Model.SDAPIURL)
	integer("ARTIFYD_SDAPI_CONNECT_TIMEOUT_SECONDS", &cfg.Model.SDAPITimeoutSeconds)
	str("ARTIFYD_COMFY_HOST", &cfg.Model.ComfyHost)
	integer("ARTIFYD_COMFY_PORT", &cfg.Model.ComfyPort)
	str("ARTIFYD_COMFY_TEXT2IMG_WORKFLOW", &cfg.Model.ComfyText2ImgWorkflow)
	str("ARTIFYD_COMFY_IMG2IMG_WORKFLOW", &cfg.Model.ComfyImg2ImgWorkflow)

	boolean("ARTIFYD_PROVISION", &cfg.Provision.Enabled)
	str("ARTIFYD_PYTHON", &cfg.Provision.Python)
	str("ARTIFYD_PROVISION_INDEX_URL", &cfg.Provision.IndexURL)
	list("ARTIFYD_PROVISION_PACKAGES", &cfg.Provision.Packages)
	integer("ARTIFYD_PROVISION_TIMEOUT_SECONDS", &cfg.Provision.TimeoutSeconds)

	boolean("ARTIFYD_CORS_ENABLED", &cfg.CORS.Enabled)
	list("ARTIFYD_CORS_ORIGINS", &cfg.CORS.AllowedOrigins)
	list("ARTIFYD_CORS_METHODS", &cfg.CORS.AllowedMethods)
	list("ARTIFYD_CORS_HEADERS", &cfg.CORS.AllowedHeaders)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate reports the first structural problem in cfg.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr must not be empty")
	}
	switch c.Model.Backend {
	case "synthetic", "sdapi", "comfyui":
	default:
		return fmt.Errorf("unknown backend %q (want synthetic|sdapi|comfyui)", c.Model.Backend)
	}
	switch c.Model.Device {
	case "", "auto", "cuda", "mps", "cpu":
	default:
		return fmt.Errorf("unknown device %q (want auto|cuda|mps|cpu)", c.Model.Device)
	}
	if c.Model.Backend == "comfyui" {
		if c.Model.ComfyText2ImgWorkflow == "" || c.Model.ComfyImg2ImgWorkflow == "" {
			return fmt.Errorf("comfyui backend requires comfy_text2img_workflow and comfy_img2img_workflow")
		}
		if c.Model.ComfyPort <= 0 || c.Model.ComfyPort > 65535 {
			return fmt.Errorf("comfy_port out of range: %d", c.Model.ComfyPort)
		}
	}
	if c.Provision.TimeoutSeconds < 0 {
		return fmt.Errorf("provision timeout_seconds must be >= 0")
	}
	return nil
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empty items.
func SplitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

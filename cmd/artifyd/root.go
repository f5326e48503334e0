package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"artifyd/internal/common/fsutil"
	"artifyd/internal/config"
	"artifyd/internal/device"
	"artifyd/internal/host"
	"artifyd/internal/httpapi"
	"artifyd/internal/pipeline"
	"artifyd/internal/provision"
)

const shutdownTimeout = 5 * time.Second

// rootFlags mirrors the command-line surface. Only flags the user set
// override config file and environment values.
type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string

	addr         string
	backend      string
	model        string
	device       string
	provision    bool
	sdapiURL     string
	comfyHost    string
	comfyPort    int
	comfyT2I     string
	comfyI2I     string
	maxBodyBytes int64
	corsOrigins  []string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "artifyd",
		Short:         "HTTP image generation service (text2img, img2img)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Config file (.yaml, .yml, .json, .toml)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults ARTIFYD_LOG_LEVEL or info)")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format: auto|console|json")
	pf.StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :8000")
	pf.StringVar(&f.backend, "backend", "", "Pipeline backend: "+fmt.Sprint(pipeline.Backends()))
	pf.StringVar(&f.model, "model", "", "Pretrained pipeline id")
	pf.StringVar(&f.device, "device", "", "Device: auto|cuda|mps|cpu")
	pf.BoolVar(&f.provision, "provision", false, "Install a GPU-enabled torch build before loading the model")
	pf.StringVar(&f.sdapiURL, "sdapi-url", "", "Base URL of the sdapi backend")
	pf.StringVar(&f.comfyHost, "comfy-host", "", "ComfyUI host")
	pf.IntVar(&f.comfyPort, "comfy-port", 0, "ComfyUI port")
	pf.StringVar(&f.comfyT2I, "comfy-text2img-workflow", "", "ComfyUI text2img workflow (API format JSON)")
	pf.StringVar(&f.comfyI2I, "comfy-img2img-workflow", "", "ComfyUI img2img workflow (API format JSON)")
	pf.Int64Var(&f.maxBodyBytes, "max-body-bytes", 0, "Maximum JSON request body size")
	pf.StringSliceVar(&f.corsOrigins, "cors-origins", nil, "Allowed CORS origins (comma-separated)")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Load the model and serve the HTTP API",
		Example: "  artifyd serve --addr :8000 --backend sdapi --sdapi-url http://127.0.0.1:7860",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}
	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "Inspect torch and install the GPU build when accelerators are missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd, f)
		},
	}
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Print detected accelerators and the device that would be selected",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd, f)
		},
	}
	root.AddCommand(serveCmd, provisionCmd, deviceCmd)
	return root
}

// resolveConfig layers defaults, config file, environment, then flags.
func resolveConfig(cmd *cobra.Command, f *rootFlags) (config.Config, error) {
	cfg := config.Defaults()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}

	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("addr") {
		cfg.Addr = f.addr
	}
	if changed("backend") {
		cfg.Model.Backend = f.backend
	}
	if changed("model") {
		cfg.Model.ID = f.model
	}
	if changed("device") {
		cfg.Model.Device = f.device
	}
	if changed("provision") {
		cfg.Provision.Enabled = f.provision
	}
	if changed("sdapi-url") {
		cfg.Model.SDAPIURL = f.sdapiURL
	}
	if changed("comfy-host") {
		cfg.Model.ComfyHost = f.comfyHost
	}
	if changed("comfy-port") {
		cfg.Model.ComfyPort = f.comfyPort
	}
	if changed("comfy-text2img-workflow") {
		cfg.Model.ComfyText2ImgWorkflow = f.comfyT2I
	}
	if changed("comfy-img2img-workflow") {
		cfg.Model.ComfyImg2ImgWorkflow = f.comfyI2I
	}
	if changed("max-body-bytes") {
		cfg.MaxBodyBytes = f.maxBodyBytes
	}
	if changed("cors-origins") {
		cfg.CORS.AllowedOrigins = f.corsOrigins
	}
	return cfg, cfg.Validate()
}

// startupDeps replaces the process runner and hardware probe in tests.
type startupDeps struct {
	Runner provision.Runner
	Probe  func() device.Capabilities
}

// startup runs the optional provisioning stage and loads the model.
// Provisioning never blocks startup; the model loads on whatever is
// installed. A load failure is returned and ends the process.
func startup(ctx context.Context, cfg config.Config, log zerolog.Logger, deps startupDeps) (*host.Host, error) {
	if cfg.Provision.Enabled {
		if p, err := newProvisioner(cfg, log, deps.Runner); err != nil {
			log.Error().Err(err).Msg("provisioner setup failed")
		} else {
			p.Ensure(ctx)
		}
	}
	opts := hostOptions(cfg, log)
	opts.Probe = deps.Probe
	h, err := host.New(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return h, nil
}

func newProvisioner(cfg config.Config, log zerolog.Logger, runner provision.Runner) (*provision.Provisioner, error) {
	python, err := fsutil.ExpandHome(cfg.Provision.Python)
	if err != nil {
		return nil, err
	}
	return provision.New(provision.Options{
		Python:   python,
		IndexURL: cfg.Provision.IndexURL,
		Packages: cfg.Provision.Packages,
		Timeout:  time.Duration(cfg.Provision.TimeoutSeconds) * time.Second,
		Runner:   runner,
		Logger:   log,
	}), nil
}

func hostOptions(cfg config.Config, log zerolog.Logger) host.Options {
	return host.Options{
		Pipeline: pipeline.Config{
			Backend:               cfg.Model.Backend,
			ModelID:               cfg.Model.ID,
			SDAPIURL:              cfg.Model.SDAPIURL,
			ConnectTimeout:        time.Duration(cfg.Model.SDAPITimeoutSeconds) * time.Second,
			ComfyHost:             cfg.Model.ComfyHost,
			ComfyPort:             cfg.Model.ComfyPort,
			ComfyText2ImgWorkflow: cfg.Model.ComfyText2ImgWorkflow,
			ComfyImg2ImgWorkflow:  cfg.Model.ComfyImg2ImgWorkflow,
		},
		Device:           cfg.Model.Device,
		AttentionSlicing: cfg.Model.AttentionSlicing,
		Logger:           log,
	}
}

func muxOptions(ctx context.Context, cfg config.Config, log zerolog.Logger) httpapi.Options {
	return httpapi.Options{
		Logger:       log,
		MaxBodyBytes: cfg.MaxBodyBytes,
		BaseContext:  ctx,
		CORS: httpapi.CORSOptions{
			Enabled:          cfg.CORS.Enabled,
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
	}
}

func runServe(cmd *cobra.Command, f *rootFlags) error {
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		return err
	}
	log := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := startup(ctx, cfg, log, startupDeps{})
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			log.Warn().Err(err).Msg("close pipeline")
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(h, muxOptions(ctx, cfg, log)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		info := h.Info()
		log.Info().
			Str("addr", cfg.Addr).
			Str("model", info.ModelID).
			Str("backend", info.Backend).
			Str("device", string(info.Device)).
			Msg("artifyd listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func runProvision(cmd *cobra.Command, f *rootFlags) error {
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		return err
	}
	log := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	p, err := newProvisioner(cfg, log, nil)
	if err != nil {
		return err
	}
	out := p.Ensure(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "attempted=%t succeeded=%t reason=%q\n", out.Attempted, out.Succeeded, out.Reason)
	if !out.Succeeded {
		return fmt.Errorf("provision failed: %s", out.Reason)
	}
	return nil
}

type deviceReport struct {
	Capabilities device.Capabilities `json:"capabilities"`
	Selected     device.Kind         `json:"selected"`
}

func runDevice(cmd *cobra.Command, f *rootFlags) error {
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		return err
	}
	caps := device.Probe()
	sel, err := device.Select(caps, cfg.Model.Device)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(deviceReport{Capabilities: caps, Selected: sel})
}

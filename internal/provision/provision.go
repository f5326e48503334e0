// Package provision swaps a CPU-only numerical backend (torch) for a
// GPU-enabled build by shelling out to pip. It runs at most once per
// process, never retries, and never fails startup: callers get an Outcome
// to log and move on.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	defaultInstallTimeout = 300 * time.Second
	defaultInspectTimeout = 30 * time.Second
)

var provisionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "artifyd",
		Subsystem: "provision",
		Name:      "runs_total",
		Help:      "Runtime provisioning runs by result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(provisionTotal)
}

// probeScript prints the numerical backend status as one JSON line.
const probeScript = `import json
try:
    import torch
except ImportError:
    print(json.dumps({"installed": False}))
else:
    mps = getattr(torch.backends, "mps", None)
    print(json.dumps({"installed": True, "version": torch.__version__, "cuda": bool(torch.cuda.is_available()), "mps": bool(mps is not None and mps.is_available())}))
`

// BackendStatus describes the numerical backend found in the interpreter.
type BackendStatus struct {
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
	CUDA      bool   `json:"cuda"`
	MPS       bool   `json:"mps"`
}

// NeedsAccelerator reports whether the backend lacks accelerator support.
// An MPS-capable build counts as accelerated: the CUDA wheel index has
// nothing to offer on Apple silicon.
func (s BackendStatus) NeedsAccelerator() bool {
	if !s.Installed || strings.HasSuffix(s.Version, "+cpu") {
		return true
	}
	return !s.CUDA && !s.MPS
}

// Options configures a Provisioner. Zero values fall back to defaults.
type Options struct {
	Python         string
	IndexURL       string
	Packages       []string
	Timeout        time.Duration // bound on the installer process
	InspectTimeout time.Duration
	Runner         Runner
	Logger         zerolog.Logger
}

// Provisioner inspects and upgrades the numerical backend.
type Provisioner struct {
	python         string
	indexURL       string
	packages       []string
	timeout        time.Duration
	inspectTimeout time.Duration
	runner         Runner
	log            zerolog.Logger
}

// New constructs a Provisioner from opts.
func New(opts Options) *Provisioner {
	p := &Provisioner{
		python:         opts.Python,
		indexURL:       opts.IndexURL,
		packages:       append([]string(nil), opts.Packages...),
		timeout:        opts.Timeout,
		inspectTimeout: opts.InspectTimeout,
		runner:         opts.Runner,
		log:            opts.Logger.With().Str("component", "provision").Logger(),
	}
	if p.python == "" {
		p.python = "python3"
	}
	if p.indexURL == "" {
		p.indexURL = "https://download.pytorch.org/whl/cu124"
	}
	if len(p.packages) == 0 {
		p.packages = []string{"torch", "torchvision", "torchaudio"}
	}
	if p.timeout <= 0 {
		p.timeout = defaultInstallTimeout
	}
	if p.inspectTimeout <= 0 {
		p.inspectTimeout = defaultInspectTimeout
	}
	if p.runner == nil {
		p.runner = ExecRunner{}
	}
	return p
}

// Inspect asks the interpreter which numerical backend it carries.
func (p *Provisioner) Inspect(ctx context.Context) (BackendStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.inspectTimeout)
	defer cancel()
	res, err := p.runner.Run(ctx, Cmd{Path: p.python, Args: []string{"-c", probeScript}})
	if err != nil {
		return BackendStatus{}, fmt.Errorf("inspect backend: %w", err)
	}
	if res.ExitCode != 0 {
		return BackendStatus{}, fmt.Errorf("inspect backend: %s exited with status %d: %s", p.python, res.ExitCode, firstLine(res.Stderr))
	}
	var st BackendStatus
	if err := json.Unmarshal(lastLine(res.Stdout), &st); err != nil {
		return BackendStatus{}, fmt.Errorf("inspect backend: decode probe output: %w", err)
	}
	return st, nil
}

// InstallCmd returns the pip invocation used to install the GPU build.
// A present backend is force-reinstalled so the CPU wheel gets replaced.
func (p *Provisioner) InstallCmd(replace bool) Cmd {
	args := []string{"-m", "pip", "install", "--index-url", p.indexURL}
	args = append(args, p.packages...)
	if replace {
		args = append(args, "--upgrade", "--force-reinstall")
	}
	return Cmd{Path: p.python, Args: args}
}

// Outcome reports what a provisioning run did.
type Outcome struct {
	// Attempted is true when the installer process was started.
	Attempted bool
	// Succeeded is true when an accelerator-capable backend is in place,
	// either already or after a successful install.
	Succeeded bool
	Reason    string
	Before    BackendStatus
	After     BackendStatus
	Duration  time.Duration
	Err       error
}

// Ensure installs the GPU-enabled backend when the current one lacks
// accelerator support. It never retries and never panics; failure is
// reported in the Outcome only.
func (p *Provisioner) Ensure(ctx context.Context) Outcome {
	start := time.Now()
	out := p.ensure(ctx)
	out.Duration = time.Since(start)

	result := "failed"
	switch {
	case out.Succeeded && !out.Attempted:
		result = "skipped"
	case out.Succeeded:
		result = "installed"
	}
	provisionTotal.WithLabelValues(result).Inc()

	ev := p.log.Info()
	if !out.Succeeded {
		ev = p.log.Error().Err(out.Err)
	}
	ev.Bool("attempted", out.Attempted).
		Bool("succeeded", out.Succeeded).
		Str("reason", out.Reason).
		Str("version_before", out.Before.Version).
		Str("version_after", out.After.Version).
		Dur("dur", out.Duration).
		Msg("provision finished")
	return out
}

func (p *Provisioner) ensure(ctx context.Context) Outcome {
	before, err := p.Inspect(ctx)
	if err != nil {
		return Outcome{Reason: "inspect failed", Err: err}
	}
	if !before.NeedsAccelerator() {
		return Outcome{Succeeded: true, Reason: "accelerator already available", Before: before, After: before}
	}

	cmd := p.InstallCmd(before.Installed)
	p.log.Info().Str("cmd", cmd.String()).Dur("timeout", p.timeout).Msg("installing GPU-enabled backend")

	ictx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	res, err := p.runner.Run(ictx, cmd)
	out := Outcome{Attempted: true, Before: before}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || ictx.Err() == context.DeadlineExceeded:
		out.Reason = fmt.Sprintf("installer timed out after %s", p.timeout)
		out.Err = context.DeadlineExceeded
		return out
	case err != nil:
		out.Reason = "installer could not run"
		out.Err = err
		return out
	case res.ExitCode != 0:
		out.Reason = fmt.Sprintf("installer exited with status %d", res.ExitCode)
		out.Err = errors.New(firstLine(res.Stderr))
		return out
	}

	out.Succeeded = true
	out.Reason = "installed"
	if after, err := p.Inspect(ctx); err == nil {
		out.After = after
	} else {
		p.log.Warn().Err(err).Msg("post-install inspection failed")
	}
	return out
}

func firstLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func lastLine(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return b
}

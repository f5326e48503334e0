// Package device discovers compute capabilities of the host and selects the
// device a pipeline is bound to.
package device

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/jaypipes/ghw"
	"github.com/klauspost/cpuid/v2"
)

// Kind identifies a compute device. The string values are the identifiers
// reported over the API.
type Kind string

const (
	CUDA Kind = "cuda"
	MPS  Kind = "mps"
	CPU  Kind = "cpu"
)

// Capabilities are the accelerator flags of a host or backend.
type Capabilities struct {
	CUDA bool `json:"cuda_available"`
	MPS  bool `json:"mps_available"`
	// Descriptive names; informational only.
	GPUName string `json:"gpu_name,omitempty"`
	CPUName string `json:"cpu_name,omitempty"`
}

// Merge returns the union of two capability sets. Names from c win.
func (c Capabilities) Merge(o Capabilities) Capabilities {
	out := c
	out.CUDA = c.CUDA || o.CUDA
	out.MPS = c.MPS || o.MPS
	if out.GPUName == "" {
		out.GPUName = o.GPUName
	}
	if out.CPUName == "" {
		out.CPUName = o.CPUName
	}
	return out
}

// Parse validates a device identifier. "auto" and "" are not kinds and
// yield an error; callers handle them before parsing.
func Parse(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case CUDA, MPS, CPU:
		return k, nil
	}
	return "", fmt.Errorf("unknown device %q", s)
}

// Select resolves the device to bind to. An explicit override wins;
// otherwise the dedicated accelerator is preferred over the integrated one,
// and both over the CPU.
func Select(c Capabilities, override string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(override)) {
	case "", "auto":
	default:
		return Parse(override)
	}
	switch {
	case c.CUDA:
		return CUDA, nil
	case c.MPS:
		return MPS, nil
	default:
		return CPU, nil
	}
}

// gpu is the PCI identity of one graphics card.
type gpu struct {
	vendor  string
	product string
}

// isCUDA reports whether the numerical backend exposes g as a "cuda" device.
// Every NVIDIA card qualifies. AMD cards run through ROCm, which does not
// support the integrated Radeon graphics of Ryzen APUs, so AMD only counts
// when the product name is one of the discrete lines. An AMD card whose
// product is unknown is left out; set the device explicitly to use it.
func (g gpu) isCUDA() bool {
	v, p := strings.ToLower(g.vendor), strings.ToLower(g.product)
	if strings.Contains(v, "nvidia") {
		return true
	}
	if !strings.Contains(v, "advanced micro devices") && !strings.Contains(v, "amd") {
		return false
	}
	for _, line := range amdDiscrete {
		if strings.Contains(p, line) {
			return true
		}
	}
	return false
}

var amdDiscrete = []string{"radeon rx", "radeon pro", "radeon vii", "instinct"}

var (
	probeOnce sync.Once
	probed    Capabilities
)

// Probe inspects the local machine once and caches the result. CUDA is
// reported for NVIDIA cards and for discrete AMD cards (see gpu.isCUDA);
// integrated graphics never count.
func Probe() Capabilities {
	probeOnce.Do(func() {
		var cards []gpu
		if info, err := ghw.GPU(); err == nil && info != nil {
			for _, card := range info.GraphicsCards {
				if card == nil || card.DeviceInfo == nil {
					continue
				}
				var g gpu
				if card.DeviceInfo.Vendor != nil {
					g.vendor = card.DeviceInfo.Vendor.Name
				}
				if card.DeviceInfo.Product != nil {
					g.product = card.DeviceInfo.Product.Name
				}
				cards = append(cards, g)
			}
		}
		probed = detect(cards, runtime.GOOS, runtime.GOARCH, cpuid.CPU.VendorID == cpuid.Apple)
		for _, g := range cards {
			if g.product != "" {
				probed.GPUName = g.product
				break
			}
		}
		probed.CPUName = strings.TrimSpace(cpuid.CPU.BrandName)
	})
	return probed
}

func detect(cards []gpu, goos, goarch string, appleCPU bool) Capabilities {
	var c Capabilities
	for _, g := range cards {
		if g.isCUDA() {
			c.CUDA = true
		}
	}
	// Metal Performance Shaders are only available on macOS with Apple silicon.
	if goos == "darwin" && (goarch == "arm64" || appleCPU) {
		c.MPS = true
	}
	return c
}

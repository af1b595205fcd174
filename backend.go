package kelp

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/gogpu/wgpu/hal/software"

	// Platform backends register themselves with hal on init.
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

// Backend names accepted by Config.Backend.
const (
	BackendAuto     = "auto"
	BackendVulkan   = "vulkan"
	BackendMetal    = "metal"
	BackendDX12     = "dx12"
	BackendGL       = "gl"
	BackendSoftware = "software"
	BackendNoop     = "noop"
)

// backends resolves backend names. Auto picks the first registered name in
// priority order. Noop is never picked automatically.
var backends = newBackendRegistry()

func newBackendRegistry() *gpucontext.Registry[hal.Backend] {
	r := gpucontext.NewRegistry[hal.Backend](gpucontext.WithPriority(
		BackendVulkan, BackendMetal, BackendDX12, BackendGL, BackendSoftware,
	))
	for name, variant := range map[string]gputypes.Backend{
		BackendVulkan: gputypes.BackendVulkan,
		BackendMetal:  gputypes.BackendMetal,
		BackendDX12:   gputypes.BackendDX12,
		BackendGL:     gputypes.BackendGL,
	} {
		if b, ok := hal.GetBackend(variant); ok {
			r.Register(name, func() hal.Backend { return b })
		}
	}
	r.Register(BackendSoftware, func() hal.Backend { return software.API{} })
	r.Register(BackendNoop, func() hal.Backend { return noop.API{} })
	return r
}

func knownBackend(name string) bool {
	switch name {
	case BackendAuto, BackendVulkan, BackendMetal, BackendDX12, BackendGL, BackendSoftware, BackendNoop:
		return true
	}
	return false
}

// resolveBackend returns the backend for a configured name.
func resolveBackend(name string) (hal.Backend, string, error) {
	if name == "" || name == BackendAuto {
		name = backends.BestName()
	}
	if !backends.Has(name) {
		return nil, name, fmt.Errorf("%w: %q (available %v)", ErrNoBackend, name, backends.Available())
	}
	return backends.Get(name), name, nil
}

// AvailableBackends lists the backend names usable on this platform.
func AvailableBackends() []string { return backends.Available() }

package kelp

import "github.com/gogpu/wgpu/hal"

// Option configures a renderer during Initialise.
//
// Example:
//
//	// Headless renderer on the noop backend (dependency injection)
//	k, err := kelp.Initialise(kelp.Window{}, kelp.WithBackend(noop.API{}))
type Option func(*options)

// options holds optional configuration for Initialise.
type options struct {
	config  Config
	backend hal.Backend
	overlay Overlay
}

// defaultOptions returns the default options.
func defaultOptions() options {
	return options{config: DefaultConfig()}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithBackend uses b instead of resolving Config.Backend.
func WithBackend(b hal.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithOverlay enables DrawOverlay.
func WithOverlay(ov Overlay) Option {
	return func(o *options) {
		o.overlay = ov
	}
}

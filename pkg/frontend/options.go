package frontend

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/pkg/config"
)

// Option defines a single option function.
type Option func(o *Options)

// Options defines the available options for this package.
type Options struct {
	Logger  zerolog.Logger
	Config  *config.API
	Context context.Context
	Health  func() error
}

// newOptions initializes the available default options.
func newOptions(opts ...Option) Options {
	opt := Options{
		Context: context.Background(),
	}

	for _, o := range opts {
		o(&opt)
	}

	return opt
}

// Logger provides a function to set the logger option.
func Logger(val zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = val
	}
}

// Config provides a function to set the config option.
func Config(val *config.API) Option {
	return func(o *Options) {
		o.Config = val
	}
}

// Context stops the API once it is done
func Context(val context.Context) Option {
	return func(o *Options) {
		o.Context = val
	}
}

// Health reports whether the daemon can serve requests, /healthz answers 503
// while it returns an error
func Health(val func() error) Option {
	return func(o *Options) {
		o.Health = val
	}
}

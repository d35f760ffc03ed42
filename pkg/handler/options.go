package handler

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/glauth/nslcd/pkg/config"
	"github.com/glauth/nslcd/pkg/directory"
)

// Option defines a single option function.
type Option func(o *Options)

// Options defines the available options for this package.
type Options struct {
	Config    *config.Config
	Directory directory.Directory
	Logger    *zerolog.Logger
	Tracer    trace.Tracer
}

// newOptions initializes the available default options.
func newOptions(opts ...Option) Options {
	opt := Options{}

	for _, o := range opts {
		o(&opt)
	}

	return opt
}

// Config provides a function to set the config option.
func Config(val *config.Config) Option {
	return func(o *Options) {
		o.Config = val
	}
}

// Directory sets where users and groups are looked up
func Directory(val directory.Directory) Option {
	return func(o *Options) {
		o.Directory = val
	}
}

// Logger provides a function to set the logger option.
func Logger(val *zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = val
	}
}

// Tracer provides a function to set the tracer option.
func Tracer(val trace.Tracer) Option {
	return func(o *Options) {
		o.Tracer = val
	}
}

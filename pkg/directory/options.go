package directory

import (
	"crypto/tls"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Option defines a single option function.
type Option func(o *Options)

// Options defines the available options for this package.
type Options struct {
	URIs      []string
	BindDN    string
	BindPW    string
	Timeout   time.Duration
	PageSize  int
	StartTLS  bool
	TLSConfig *tls.Config
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

// URIs lists the directory servers, tried in order
func URIs(val []string) Option {
	return func(o *Options) {
		o.URIs = val
	}
}

// Credentials sets the service bind identity used by Open
func Credentials(dn, password string) Option {
	return func(o *Options) {
		o.BindDN = dn
		o.BindPW = password
	}
}

// Timeout bounds dialing and every single operation
func Timeout(val time.Duration) Option {
	return func(o *Options) {
		o.Timeout = val
	}
}

// PageSize enables the paged results control for searches when above zero
func PageSize(val int) Option {
	return func(o *Options) {
		o.PageSize = val
	}
}

// StartTLS upgrades plain ldap:// connections
func StartTLS(val bool) Option {
	return func(o *Options) {
		o.StartTLS = val
	}
}

// TLSConfig is used for ldaps:// and StartTLS
func TLSConfig(val *tls.Config) Option {
	return func(o *Options) {
		o.TLSConfig = val
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

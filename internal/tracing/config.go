package tracing

import (
	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/pkg/config"
)

type Config struct {
	OtelHTTPEndpoint string
	OtelGRPCEndpoint string
	ServiceName      string
	Logger           *zerolog.Logger

	Enabled bool
}

func NewConfig(cfg config.Tracing, logger *zerolog.Logger) *Config {
	c := new(Config)

	c.OtelGRPCEndpoint = cfg.GRPCEndpoint
	c.OtelHTTPEndpoint = cfg.HTTPEndpoint
	c.ServiceName = "nslcd"
	c.Logger = logger
	c.Enabled = cfg.Enabled

	return c
}

package monitoring

import (
	"encoding/json"
	"expvar"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Collector republishes the expvar counter maps of this process as
// prometheus metrics, one series per map key.
type Collector struct {
	vars   map[string]string // expvar name -> metric name
	helps  map[string]string
	logger *zerolog.Logger
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for name, metric := range c.vars {
		ch <- prometheus.NewDesc(metric, c.helps[name], []string{"metric"}, nil)
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, metric := range c.vars {
		v := expvar.Get(name)
		if v == nil {
			continue
		}

		var values map[string]any
		if err := json.Unmarshal([]byte(v.String()), &values); err != nil {
			c.logger.Error().Err(err).Str("var", name).Msg("unable to decode expvar")
			continue
		}

		desc := prometheus.NewDesc(metric, c.helps[name], []string{"metric"}, nil)
		for key, value := range values {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.UntypedValue, valToFloat(value), key)
		}
	}
}

func NewCollector(logger *zerolog.Logger) *Collector {
	c := new(Collector)
	c.logger = logger
	c.vars = map[string]string{
		"nslcd":          "nslcd_general",
		"nslcd_frontend": "nslcd_frontend",
		"nslcd_backend":  "nslcd_backend",
	}
	c.helps = map[string]string{
		"nslcd":          "General Metrics",
		"nslcd_frontend": "Socket Metrics",
		"nslcd_backend":  "Directory Metrics",
	}

	register(logger, c)

	return c
}

func valToFloat(v any) float64 {
	switch v := v.(type) {
	case float64:
		return v
	case bool:
		if v {
			return 1.0
		}
		return 0.0
	}
	return 0.0
}

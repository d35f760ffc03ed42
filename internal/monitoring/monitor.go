package monitoring

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Monitor struct {
	responseTime *prometheus.HistogramVec
	serverMetric *prometheus.GaugeVec

	logger *zerolog.Logger
}

func (m *Monitor) SetResponseTimeMetric(tags map[string]string, value float64) error {
	if m.responseTime == nil {
		return fmt.Errorf("metric not instantiated")
	}

	m.responseTime.With(tags).Observe(value)

	return nil
}

func (m *Monitor) SetServerMetric(tags map[string]string, value float64) error {
	if m.serverMetric == nil {
		return fmt.Errorf("metric not instantiated")
	}

	m.serverMetric.With(tags).Set(value)

	return nil
}

func (m *Monitor) constLabels() map[string]string {
	return map[string]string{
		"library": "github.com/glauth/nslcd",
	}
}

func (m *Monitor) registerHistograms() {
	m.responseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "nslcd_response_time_seconds",
			Help:        "time spent answering one request, by action and result",
			ConstLabels: m.constLabels(),
			Buckets:     []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		},
		[]string{"action", "status"},
	)

	m.responseTime = register(m.logger, m.responseTime)
}

func (m *Monitor) registerGauges() {
	m.serverMetric = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "nslcd_server_metric",
			Help:        "socket server counters",
			ConstLabels: m.constLabels(),
		},
		[]string{"type"},
	)

	m.serverMetric = register(m.logger, m.serverMetric)
}

// register adds c to the default registry. When an identical collector is
// already there (a second monitor in the same process) that one is reused.
func register[C prometheus.Collector](logger *zerolog.Logger, c C) C {
	err := prometheus.Register(c)
	if err == nil {
		return c
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		logger.Debug().Interface("metric", c).Msg("metric already registered")
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
		return c
	}

	logger.Error().Err(err).Interface("metric", c).Msg("metric could not be registered")
	return c
}

func NewMonitor(logger *zerolog.Logger) *Monitor {
	m := new(Monitor)

	m.logger = logger

	m.registerHistograms()
	m.registerGauges()

	return m
}

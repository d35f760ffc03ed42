package monitoring

import (
	"time"

	"github.com/rs/zerolog"
)

// ServerMonitorWatcher copies the server counters into the monitor gauges
// on every tick until Stop is called
type ServerMonitorWatcher struct {
	syncTicker *time.Ticker
	done       chan struct{}
	stopped    chan struct{}

	server ServerInterface

	monitor MonitorInterface
	logger  *zerolog.Logger
}

func (m *ServerMonitorWatcher) sync() {
	defer close(m.stopped)
	for {
		select {
		case tick := <-m.syncTicker.C:
			m.logger.Debug().Time("value", tick).Msg("Tick")
			m.storeMetrics()
		case <-m.done:
			return
		}
	}
}

func (m *ServerMonitorWatcher) storeMetrics() {
	stats := m.server.GetStats()

	for _, metric := range []struct {
		name  string
		value int
	}{
		{"conns", stats.Conns},
		{"requests", stats.Requests},
		{"errors", stats.Errors},
		{"active", stats.Active},
	} {
		if err := m.monitor.SetServerMetric(map[string]string{"type": metric.name}, float64(metric.value)); err != nil {
			m.logger.Error().Err(err).Str("type", metric.name).Msg("failed to set metric")
		}
	}
}

// Stop ends the sync loop and waits for it to return
func (m *ServerMonitorWatcher) Stop() {
	m.syncTicker.Stop()
	close(m.done)
	<-m.stopped
}

func NewServerMonitorWatcher(server ServerInterface, monitor MonitorInterface, logger *zerolog.Logger) *ServerMonitorWatcher {
	return newServerMonitorWatcher(server, monitor, logger, 15*time.Second)
}

func newServerMonitorWatcher(server ServerInterface, monitor MonitorInterface, logger *zerolog.Logger, every time.Duration) *ServerMonitorWatcher {
	m := new(ServerMonitorWatcher)

	m.syncTicker = time.NewTicker(every)
	m.done = make(chan struct{})
	m.stopped = make(chan struct{})
	m.server = server
	m.monitor = monitor
	m.logger = logger

	m.server.SetStats(true)

	go m.sync()

	return m
}

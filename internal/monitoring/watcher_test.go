package monitoring

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"
)

//go:generate mockgen -build_flags=--mod=mod -package monitoring -destination ./mock_interfaces.go -source=./interfaces.go

func TestServerMonitorWatcherRunsOnASchedule(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockMonitor := NewMockMonitorInterface(ctrl)
	mockServer := NewMockServerInterface(ctrl)

	stats := ServerStats{Conns: 3, Requests: 7, Errors: 1, Active: 2}

	mockServer.EXPECT().SetStats(true).Times(1)
	mockServer.EXPECT().GetStats().MinTimes(1).Return(stats)
	mockMonitor.EXPECT().SetServerMetric(map[string]string{"type": "conns"}, float64(3)).MinTimes(1)
	mockMonitor.EXPECT().SetServerMetric(map[string]string{"type": "requests"}, float64(7)).MinTimes(1)
	mockMonitor.EXPECT().SetServerMetric(map[string]string{"type": "errors"}, float64(1)).MinTimes(1)
	mockMonitor.EXPECT().SetServerMetric(map[string]string{"type": "active"}, float64(2)).MinTimes(1)

	logger := zerolog.Nop()
	m := newServerMonitorWatcher(mockServer, mockMonitor, &logger, 5*time.Microsecond)

	// allow goroutine to start and ticker to tick
	time.Sleep(10 * time.Millisecond)
	m.Stop()
}

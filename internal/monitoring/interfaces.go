package monitoring

type MonitorInterface interface {
	SetResponseTimeMetric(map[string]string, float64) error
	SetServerMetric(map[string]string, float64) error
}

// ServerStats are the running counters of the socket server
type ServerStats struct {
	Conns    int
	Requests int
	Errors   int
	Active   int
}

type ServerInterface interface {
	SetStats(bool)
	GetStats() ServerStats
}

package stats

import (
	"expvar"
)

// exposed expvar variables
var (
	Frontend = expvar.NewMap("nslcd_frontend")
	Backend  = expvar.NewMap("nslcd_backend")
	General  = expvar.NewMap("nslcd")
)

//go:build windows
// +build windows

package logging

import (
	"github.com/rs/zerolog"
)

// InitLogging creates the process logger. There is no syslog on windows so
// reqsyslog is ignored.
func InitLogging(reqdebug bool, reqsyslog bool, reqstructlog bool) zerolog.Logger {
	logr := newLogger(levelFor(reqdebug), reqstructlog)

	RewireLogging(logr, reqstructlog)

	return logr
}

//go:build !windows

package logging

import (
	"log/syslog"

	"github.com/rs/zerolog"
)

// InitLogging creates the process logger. With reqsyslog set, records go to
// the local syslog daemon under the "nslcd" tag; if that is unreachable the
// logger falls back to stderr.
func InitLogging(reqdebug bool, reqsyslog bool, reqstructlog bool) zerolog.Logger {
	level := levelFor(reqdebug)

	logr := newLogger(level, reqstructlog)
	if reqsyslog {
		w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "nslcd")
		if err != nil {
			logr.Warn().Err(err).Msg("syslog unavailable, logging to stderr")
		} else {
			logr = zerolog.New(zerolog.SyslogLevelWriter(w)).Level(level).With().Timestamp().Logger()
		}
	}

	RewireLogging(logr, reqstructlog && !reqsyslog)

	return logr
}

package logging

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// We will use this package to wrap log messages coming from libraries who have no interest
// in generating structured output.

var (
	ldapliblogmatcher = regexp.MustCompile(`^\d{4}\/\d{1,2}\/\d{1,2} \d{1,2}\:\d{1,2}\:\d{1,2} `)
)

// Redact is how a secret shows up in a log line: "***" when it is set and
// "" when it is empty, so the two cases stay distinguishable.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func RewireLogging(logr zerolog.Logger, reqstructlog bool) {
	log.SetFlags(log.LstdFlags)
	log.SetOutput(customWriter{logr: logr, structlog: reqstructlog})
}

func newLogger(level zerolog.Level, reqstructlog bool) zerolog.Logger {
	if reqstructlog {
		zerolog.TimeFieldFormat = time.RFC1123Z
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC1123Z}).Level(level).With().Timestamp().Logger()
}

func levelFor(reqdebug bool) zerolog.Level {
	if reqdebug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

type customWriter struct {
	logr      zerolog.Logger
	structlog bool
}

func (e customWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(ldapliblogmatcher.ReplaceAllString(string(p), ""))
	if e.structlog {
		fmt.Fprintf(os.Stderr, "{\"level\":\"info\",\"time\":\"%s\",\"message\":\"%s\"}\n", time.Now().Format(time.RFC1123Z), strings.ReplaceAll(msg, `"`, `\"`))
	} else {
		e.logr.Info().Msg(msg)
	}
	return len(p), nil
}

package logging

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", Redact("hunter2"))
	assert.Equal(t, "", Redact(""))
}

func TestRewireLoggingStripsStdlibTimestamp(t *testing.T) {
	var buf bytes.Buffer
	logr := zerolog.New(&buf)

	RewireLogging(logr, false)
	defer log.SetOutput(os.Stderr)

	log.Printf("connection to %s lost", "ldap://example")

	assert.Contains(t, buf.String(), `"message":"connection to ldap://example lost"`)
	assert.Contains(t, buf.String(), `"level":"info"`)
}

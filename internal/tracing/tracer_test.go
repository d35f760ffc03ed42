package tracing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glauth/nslcd/pkg/config"
)

func TestDisabledTracerDoesNotRecord(t *testing.T) {
	log := zerolog.Nop()
	tr := NewTracer(NewConfig(config.Tracing{}, &log))

	_, span := tr.Start(context.Background(), "handler.nslcdHandler.Authc")
	defer span.End()

	assert.False(t, span.IsRecording())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestStdoutTracerRecords(t *testing.T) {
	log := zerolog.Nop()
	cfg := NewConfig(config.Tracing{Enabled: true}, &log)
	assert.Equal(t, "nslcd", cfg.ServiceName)

	tr := NewTracer(cfg)
	_, span := tr.Start(context.Background(), "handler.nslcdHandler.GroupAll")
	assert.True(t, span.IsRecording())
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, tr.Shutdown(context.Background()))
}

package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTrace_None(t *testing.T) {
	shutdown, err := InitTrace("wallet-service-test", Config{Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTrace_Stdout(t *testing.T) {
	shutdown, err := InitTrace("wallet-service-test", Config{Exporter: "stdout"})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().HasTraceID())
	span.End()
}

func TestInitTrace_Unknown(t *testing.T) {
	_, err := InitTrace("wallet-service-test", Config{Exporter: "zipkin"})
	assert.Error(t, err)
}

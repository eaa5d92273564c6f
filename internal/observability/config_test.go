package observability

import (
	"testing"

	"github.com/smallbiznis/tenantgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsFollowEnvironment(t *testing.T) {
	for _, key := range []string{"DEPLOYMENT_ENV", "LOG_LEVEL", "LOG_FORMAT", "LOG_SAMPLING"} {
		t.Setenv(key, "")
	}
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "")

	dev := LoadConfig(config.Config{AppName: "tenantgate", Environment: "development"})
	assert.Equal(t, "console", dev.LogFormat)
	assert.False(t, dev.LogSampling)
	assert.True(t, dev.Debug())
	assert.Equal(t, ProtocolGRPC, dev.OtelExporterProtocol)

	prod := LoadConfig(config.Config{Environment: "production"})
	assert.Equal(t, "tenantgate", prod.ServiceName)
	assert.Equal(t, "json", prod.LogFormat)
	assert.True(t, prod.LogSampling)
	assert.False(t, prod.Debug())
}

func TestLoadConfigReadsOverrides(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "staging")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_SAMPLING_RATIO", "4")

	cfg := LoadConfig(config.Config{Environment: "production"})
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Debug())
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, ProtocolHTTP, cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
}

func TestNormalizeProtocol(t *testing.T) {
	got, err := NormalizeProtocol(" GRPC/protobuf ")
	require.NoError(t, err)
	assert.Equal(t, ProtocolGRPC, got)

	_, err = NormalizeProtocol("thrift")
	require.Error(t, err)
}

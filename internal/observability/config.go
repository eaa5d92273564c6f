package observability

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/tenantgate/internal/config"
	"github.com/spf13/viper"
)

// Config holds the logging and telemetry settings shared by every binary.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel    string
	LogFormat   string
	LogSampling bool

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig layers the OTEL_* and LOG_* environment on top of the
// application config. Unknown exporter protocols fall back to grpc.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.SetDefault("environment", cfg.Environment)
	v.SetDefault("version", cfg.AppVersion)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")
	v.SetDefault("log.sampling", cfg.IsProduction())
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", cfg.OTLPEndpoint)
	v.SetDefault("otel.protocol", "grpc")
	v.SetDefault("otel.sampling_ratio", 0.1)

	_ = v.BindEnv("environment", "DEPLOYMENT_ENV")
	_ = v.BindEnv("version", "SERVICE_VERSION")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")
	_ = v.BindEnv("log.sampling", "LOG_SAMPLING")
	_ = v.BindEnv("otel.enabled", "OTEL_ENABLED")
	_ = v.BindEnv("otel.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	// The traces-specific variable wins over the generic one.
	_ = v.BindEnv("otel.protocol", "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "OTEL_EXPORTER_OTLP_PROTOCOL")
	_ = v.BindEnv("otel.sampling_ratio", "OTEL_SAMPLING_RATIO")

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "tenantgate"
	}

	out := Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(v.GetString("environment")),
		Version:              strings.TrimSpace(v.GetString("version")),
		LogLevel:             strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
		LogFormat:            strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
		LogSampling:          v.GetBool("log.sampling"),
		OtelEnabled:          v.GetBool("otel.enabled"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("otel.endpoint")),
		OtelSamplingRatio:    clampRatio(v.GetFloat64("otel.sampling_ratio")),
	}

	protocol, err := NormalizeProtocol(v.GetString("otel.protocol"))
	if err != nil {
		protocol = ProtocolGRPC
	}
	out.OtelExporterProtocol = protocol

	if out.LogFormat == "" {
		out.LogFormat = "json"
		if isDevEnv(out.Environment) {
			out.LogFormat = "console"
		}
	}
	return out
}

// Debug reports whether verbose request logging and gin debug mode apply.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return isDevEnv(c.Environment)
}

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// NormalizeProtocol maps the OTLP protocol spellings to grpc or http.
func NormalizeProtocol(protocol string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc", "grpc/protobuf":
		return ProtocolGRPC, nil
	case "http", "http/protobuf":
		return ProtocolHTTP, nil
	default:
		return "", fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

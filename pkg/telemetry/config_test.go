package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/exec-trace/pkg/config"
)

var otelVars = []string{
	"OTEL_ENABLED",
	"OTEL_SERVICE_NAME",
	"OTEL_SERVICE_VERSION",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_PROTOCOL",
	"OTEL_EXPORTER_OTLP_HEADERS",
	"OTEL_EXPORTER_OTLP_INSECURE",
	"OTEL_TRACES_SAMPLER",
	"OTEL_TRACES_SAMPLER_ARG",
	"OTEL_RESOURCE_ATTRIBUTES",
}

// clearEnv blanks every OTEL_* variable for the test; empty reads as unset.
func clearEnv(t *testing.T) {
	for _, k := range otelVars {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clearEnv(t)
		cfg := LoadFromEnv()

		assert.False(t, cfg.Enabled)
		assert.Equal(t, DefaultServiceName, cfg.ServiceName)
		assert.Equal(t, "unknown", cfg.ServiceVersion)
		assert.Equal(t, "grpc", cfg.Protocol)
	})

	t.Run("enabled_case_insensitive", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OTEL_ENABLED", "TRUE")
		assert.True(t, LoadFromEnv().Enabled)
	})

	t.Run("custom_values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OTEL_SERVICE_NAME", "my-service")
		t.Setenv("OTEL_SERVICE_VERSION", "1.0.0")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://collector.example.com:4317")
		t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
		t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

		cfg := LoadFromEnv()
		assert.Equal(t, "my-service", cfg.ServiceName)
		assert.Equal(t, "1.0.0", cfg.ServiceVersion)
		assert.Equal(t, "https://collector.example.com:4317", cfg.Endpoint)
		assert.Equal(t, "http/protobuf", cfg.Protocol)
		assert.True(t, cfg.Insecure)
	})

	t.Run("headers_and_attributes", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer token123,X-Custom=value")
		t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment=production,service.namespace=traces")

		cfg := LoadFromEnv()
		assert.Equal(t, map[string]string{"Authorization": "Bearer token123", "X-Custom": "value"}, cfg.Headers)
		assert.Equal(t, "production", cfg.ResourceAttrs["deployment.environment"])
		assert.Len(t, cfg.ResourceAttrs, 2)
	})
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:     true,
		ServiceName: "nightly-replay",
		Endpoint:    "http://collector:4318",
		Protocol:    "http/protobuf",
		Sampler:     "traceidratio",
		SamplerArg:  "0.2",
	})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "nightly-replay", cfg.ServiceName)
	assert.Equal(t, "unknown", cfg.ServiceVersion)
	assert.Equal(t, "http/protobuf", cfg.Protocol)

	empty := FromSettings(config.TelemetryConfig{})
	assert.Equal(t, DefaultServiceName, empty.ServiceName)
	assert.Equal(t, "grpc", empty.Protocol)
}

func TestApplyEnv_OverridesSettings(t *testing.T) {
	clearEnv(t)
	base := FromSettings(config.TelemetryConfig{Enabled: true, ServiceName: "from-file", Sampler: "always_on"})
	base.Headers["X-Team"] = "replay"

	t.Setenv("OTEL_SERVICE_NAME", "from-env")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer x")

	cfg := ApplyEnv(base)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "from-env", cfg.ServiceName)
	assert.Equal(t, "always_on", cfg.Sampler)
	assert.Equal(t, "replay", cfg.Headers["X-Team"])
	assert.Equal(t, "Bearer x", cfg.Headers["Authorization"])

	// base is untouched
	assert.True(t, base.Enabled)
	assert.NotContains(t, base.Headers, "Authorization")
}

func TestParseKeyValuePairs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"single_pair", "key=value", map[string]string{"key": "value"}},
		{"multiple_pairs", "key1=value1,key2=value2", map[string]string{"key1": "value1", "key2": "value2"}},
		{"with_spaces", " key1 = value1 , key2 = value2 ", map[string]string{"key1": "value1", "key2": "value2"}},
		{"value_with_equals", "Authorization=Bearer token=abc", map[string]string{"Authorization": "Bearer token=abc"}},
		{"empty_value", "key=", map[string]string{"key": ""}},
		{"empty_key", "=value", map[string]string{}},
		{"invalid_no_equals", "invalid", map[string]string{}},
		{"mixed_valid_invalid", "valid=value,invalid,another=test", map[string]string{"valid": "value", "another": "test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseKeyValuePairs(tt.input))
		})
	}
}

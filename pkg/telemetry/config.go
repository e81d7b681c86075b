package telemetry

import (
	"os"
	"strings"

	"github.com/exec-trace/pkg/config"
)

// DefaultServiceName is reported when neither the config file nor
// OTEL_SERVICE_NAME names the service.
const DefaultServiceName = "exec-trace"

// Config is the effective tracing setup.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP collector address. An http:// prefix implies
	// an insecure connection.
	Endpoint string
	// Protocol is grpc or http/protobuf.
	Protocol string
	// Headers are sent with every export, e.g. Authorization.
	Headers  map[string]string
	Insecure bool

	// Sampler is one of always_on, always_off, traceidratio,
	// parentbased_always_on, parentbased_always_off or
	// parentbased_traceidratio. Empty samples everything.
	Sampler    string
	SamplerArg string

	ResourceAttrs map[string]string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		ServiceName:    DefaultServiceName,
		ServiceVersion: "unknown",
		Protocol:       "grpc",
		Headers:        map[string]string{},
		ResourceAttrs:  map[string]string{},
	}
}

// FromSettings starts from the defaults and applies the config file's
// telemetry section.
func FromSettings(s config.TelemetryConfig) *Config {
	cfg := Defaults()
	cfg.Enabled = s.Enabled
	if s.ServiceName != "" {
		cfg.ServiceName = s.ServiceName
	}
	cfg.Endpoint = s.Endpoint
	if s.Protocol != "" {
		cfg.Protocol = s.Protocol
	}
	cfg.Insecure = s.Insecure
	cfg.Sampler = s.Sampler
	cfg.SamplerArg = s.SamplerArg
	return cfg
}

// LoadFromEnv reads the standard OTEL_* variables over the defaults.
func LoadFromEnv() *Config {
	return ApplyEnv(Defaults())
}

// ApplyEnv returns a copy of base with every non-empty OTEL_* variable
// taking precedence.
func ApplyEnv(base *Config) *Config {
	cfg := *base
	cfg.Headers = copyPairs(base.Headers)
	cfg.ResourceAttrs = copyPairs(base.ResourceAttrs)

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true")
	}
	overrideString(&cfg.ServiceName, "OTEL_SERVICE_NAME")
	overrideString(&cfg.ServiceVersion, "OTEL_SERVICE_VERSION")
	overrideString(&cfg.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	overrideString(&cfg.Protocol, "OTEL_EXPORTER_OTLP_PROTOCOL")
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		cfg.Insecure = strings.EqualFold(v, "true")
	}
	overrideString(&cfg.Sampler, "OTEL_TRACES_SAMPLER")
	overrideString(&cfg.SamplerArg, "OTEL_TRACES_SAMPLER_ARG")
	for k, v := range parseKeyValuePairs(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")) {
		cfg.Headers[k] = v
	}
	for k, v := range parseKeyValuePairs(os.Getenv("OTEL_RESOURCE_ATTRIBUTES")) {
		cfg.ResourceAttrs[k] = v
	}
	return &cfg
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func copyPairs(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// parseKeyValuePairs parses "k1=v1,k2=v2". Values may contain '='.
func parseKeyValuePairs(s string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}

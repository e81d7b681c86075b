package telemetry

import (
	"strconv"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createSampler maps cfg.Sampler to an SDK sampler. Unknown or empty
// names sample everything.
func createSampler(cfg *Config) sdktrace.Sampler {
	name := strings.ToLower(cfg.Sampler)
	parent := strings.HasPrefix(name, "parentbased_")
	name = strings.TrimPrefix(name, "parentbased_")

	var s sdktrace.Sampler
	switch name {
	case "always_off":
		s = sdktrace.NeverSample()
	case "traceidratio":
		s = sdktrace.TraceIDRatioBased(parseRatio(cfg.SamplerArg))
	default:
		s = sdktrace.AlwaysSample()
	}
	if parent {
		return sdktrace.ParentBased(s)
	}
	return s
}

// parseRatio parses a sampling ratio clamped to [0, 1]. Anything
// unparsable samples everything.
func parseRatio(s string) float64 {
	ratio, err := strconv.ParseFloat(s, 64)
	switch {
	case err != nil:
		return 1
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	}
	return ratio
}

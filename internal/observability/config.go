package observability

import (
	"strings"

	"github.com/smallbiznis/fedbill/internal/config"
)

// Config is the slice of the application configuration the logger, tracer
// and meter providers need.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	SamplingRatio float64
}

func FromAppConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "fedbill"
	}
	t := cfg.Telemetry
	return Config{
		ServiceName:   name,
		Environment:   strings.TrimSpace(cfg.Environment),
		Version:       strings.TrimSpace(cfg.AppVersion),
		LogLevel:      t.LogLevel,
		LogFormat:     t.LogFormat,
		OtelEnabled:   t.OtelEnabled,
		OtelEndpoint:  t.OtelEndpoint,
		OtelProtocol:  t.OtelProtocol,
		SamplingRatio: t.SamplingRatio,
	}
}

// Debug turns on verbose request logs and error stack traces.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

package logging

import (
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects server identity, configuration, and feature flags,
// then emits a single structured zerolog event summarising the startup state.
// This makes it easy to see exactly how the server was configured when
// troubleshooting from its logs. Secrets are registered by presence only,
// never by value.
type StartupLogger struct {
	name     string
	features map[string]bool
	config   map[string]string
	secrets  map[string]bool
}

// NewStartupLogger creates a StartupLogger for the given binary name
// (e.g. "face-web").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		features: make(map[string]bool),
		config:   make(map[string]string),
		secrets:  make(map[string]bool),
	}
}

// Feature registers a boolean feature flag (e.g. "transcription").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// Secret registers whether a named credential is configured. Only the
// presence is logged, never the value.
func (s *StartupLogger) Secret(name string, present bool) *StartupLogger {
	s.secrets[name] = present
	return s
}

// EnvOrDefault returns the value of the named environment variable, or
// defaultVal if the variable is empty or unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Info()

	evt = evt.Dict("server", zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv("FACE_LOG_LEVEL")))

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		d := zerolog.Dict()
		for k, v := range s.config {
			d = d.Str(k, v)
		}
		evt = evt.Dict("config", d)
	}

	if len(s.secrets) > 0 {
		d := zerolog.Dict()
		for k, v := range s.secrets {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("credentials", d)
	}

	evt.Msg("Server startup complete")
}

package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment variable read by residency processes.
const EnvPrefix = "RESIDENCY_"

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseEnvScoped loads configuration whose env tags omit the shared prefix and
// the given scope, e.g. scope "TIMELINE" turns `env:"PORT"` into
// RESIDENCY_TIMELINE_PORT.
func ParseEnvScoped(target any, scope string) error {
	prefix := EnvPrefix
	if scope = strings.Trim(strings.ToUpper(strings.TrimSpace(scope)), "_"); scope != "" {
		prefix += scope + "_"
	}
	if err := env.ParseWithOptions(target, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse env %s*: %w", prefix, err)
	}
	return nil
}

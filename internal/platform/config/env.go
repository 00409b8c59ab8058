// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every guildshop environment variable.
const EnvPrefix = "GUILDSHOP_"

// ParseEnv loads configuration from prefixed environment variables.
func ParseEnv(target any) error {
	return ParseEnvWithPrefix(target, EnvPrefix)
}

// ParseEnvWithPrefix loads configuration using an explicit variable prefix.
func ParseEnvWithPrefix(target any, prefix string) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: strings.TrimSpace(prefix)}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

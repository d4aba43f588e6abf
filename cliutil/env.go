// Package cliutil provides small helpers shared by the lightning CLI
// commands.
package cliutil

import (
	"fmt"
	"regexp"
	"strings"
)

var envNamePattern = regexp.MustCompile(`^[0-9a-zA-Z_]+$`)

// ParseEnvVariables converts a list of KEY=VALUE strings, as collected from
// repeated --env flags, into a map of variable names to values.
//
// Each entry must contain exactly one '=' separating a non-empty name from
// its value, names may only contain digits, letters and underscores, and a
// name may appear at most once.
func ParseEnvVariables(envList []string) (map[string]string, error) {
	envVars := make(map[string]string, len(envList))
	for _, entry := range envList {
		parts := strings.Split(entry, "=")
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid format of environment variable %q, expected e.g. foo=bar", entry)
		}
		name, value := parts[0], parts[1]

		if _, exists := envVars[name]; exists {
			return nil, fmt.Errorf("environment variable %q is duplicated, please only include it once", name)
		}

		if !envNamePattern.MatchString(name) {
			return nil, fmt.Errorf("environment variable %q is not a valid name, only digits 0-9, letters A-Z, a-z and _ are allowed", name)
		}

		envVars[name] = value
	}
	return envVars, nil
}

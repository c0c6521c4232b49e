package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Environment variable pattern: {{ env.VARIABLE_NAME }}
var envVarPattern = regexp.MustCompile(`\{\{\s*env\.(\w+)\s*\}\}`)

// substituteEnvVars replaces {{ env.VARIABLE_NAME }} placeholders using the
// given resolver. Every referenced variable must resolve; a missing variable
// is an error, not an empty substitution.
func substituteEnvVars(value string, lookup LookupEnv) (string, error) {
	result := value
	seen := make(map[string]bool)

	for _, match := range envVarPattern.FindAllStringSubmatch(value, -1) {
		placeholder, name := match[0], match[1]
		if seen[placeholder] {
			continue
		}
		seen[placeholder] = true

		envValue, ok := lookup(name)
		if !ok {
			return "", fmt.Errorf("environment variable %q is not set", name)
		}
		result = strings.ReplaceAll(result, placeholder, envValue)
	}

	return result, nil
}

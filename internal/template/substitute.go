// Package template expands ${env:VAR} placeholders in config and account
// files before they are parsed.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// varPattern matches ${...} placeholders; only the env: form resolves.
var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv replaces ${env:VAR} placeholders with environment values. Any
// other placeholder is an error.
// Returns all errors joined if multiple placeholders cannot be resolved.
// If text contains no placeholders, it is returned unchanged (fast path).
func ExpandEnv(text string) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var errs []error
	result := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-1])

		envName, ok := strings.CutPrefix(name, "env:")
		if !ok {
			errs = append(errs, fmt.Errorf("unsupported placeholder %q (use ${env:NAME})", name))
			return match
		}
		if val, ok := os.LookupEnv(envName); ok {
			return val
		}
		errs = append(errs, fmt.Errorf("env var %q not set", envName))
		return match
	})

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return result, nil
}

// ExpandEnvMap applies ExpandEnv to all values in a map.
// Returns all errors joined if any expansion fails.
func ExpandEnvMap(m map[string]string) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}

	result := make(map[string]string, len(m))
	var errs []error

	for k, v := range m {
		expanded, err := ExpandEnv(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("key %q: %w", k, err))
			continue
		}
		result[k] = expanded
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

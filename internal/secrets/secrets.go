// Package secrets resolves credentials from environment references or
// mounted secret files, e.g. Docker or Kubernetes secrets.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
)

// maxSecretFileSize bounds secret file reads; secrets are tokens and passwords.
const maxSecretFileSize = 64 * 1024

// ExpandString expands ${VAR} and ${VAR:-fallback} references. A variable
// that is unset and has no fallback is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", configError(fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", ")))
	}
	return expanded, nil
}

// ReadFile reads a secret file, trimming trailing newlines. Files readable
// by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", configError(fmt.Errorf("secret file path is empty"))
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	switch {
	case err != nil:
		return "", configError(fmt.Errorf("secret file %s: %w", clean, err))
	case !info.Mode().IsRegular():
		return "", configError(fmt.Errorf("secret path is not a regular file: %s", clean))
	case info.Size() > maxSecretFileSize:
		return "", configError(fmt.Errorf("secret file too large (max %d bytes): %s", maxSecretFileSize, clean))
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", configError(fmt.Errorf("failed to read secret file %s: %w", clean, err))
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", configError(fmt.Errorf("secret file is empty: %s", clean))
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

func configError(err error) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Build()
}

// GetLogger returns the secrets package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("secrets")
}

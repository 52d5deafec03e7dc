// Package secrets resolves credential values from environment references or
// mounted secret files (Docker and Kubernetes secrets). Values are never
// logged.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skinscan/skinscan/internal/logger"
)

const (
	maxSecretFileSize = 64 * 1024
	groupOtherPerms   = 0o077
)

// ExpandString expands ${VAR} and ${VAR:-default} references in s. A
// referenced variable that is unset and has no default is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// ReadFile reads a secret file, trimming trailing newlines. Files larger
// than 64 KiB, non-regular files and empty files are rejected.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("secret file path is empty")
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret file not found: %s", clean)
		}
		return "", fmt.Errorf("failed to stat secret file %s: %w", clean, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", clean)
	}
	if info.Size() > maxSecretFileSize {
		return "", fmt.Errorf("secret file too large (max %d bytes): %s", maxSecretFileSize, clean)
	}
	if perm := info.Mode().Perm(); perm&groupOtherPerms != 0 {
		logger.Global().Module("secrets").Warn("Secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", clean, err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fmt.Errorf("secret file is empty: %s", clean)
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		secret, err := ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from file: %w", err)
		}
		return secret, nil
	}
	return ExpandString(value)
}

// Package secrets resolves credentials given as ${VAR} references or as
// paths to mounted secret files (Docker and Kubernetes secrets).
//
// Secret values are never included in returned errors.
package secrets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// maxFileSize bounds secret file reads; credentials are small.
	maxFileSize = 64 * 1024

	// permissiveBits are group/other permissions that trigger a warning.
	permissiveBits = 0o077
)

// reference matches ${NAME} and ${NAME:-fallback}. A bare $NAME is left
// alone so DSNs and passwords containing '$' survive unchanged.
var reference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Warnings receives non-fatal findings such as world readable secret files.
// Configuration is read before logging is set up, so this defaults to stderr.
var Warnings io.Writer = os.Stderr

// Expand replaces ${NAME} references in s with environment values. A
// reference with a fallback (${NAME:-value}) uses the fallback when NAME is
// unset or empty; a reference without one is an error naming the variable.
func Expand(s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var missing []string
	out := reference.ReplaceAllStringFunc(s, func(ref string) string {
		m := reference.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		if m[2] != "" {
			return m[3]
		}
		missing = append(missing, m[1])
		return ""
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable(s) not set: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// ReadFile returns the contents of a secret file without trailing newlines.
// The file must be a regular, non-empty file of at most 64 KiB.
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
		return "", fmt.Errorf("cannot stat secret file %s: %w", clean, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", clean)
	}
	if info.Size() > maxFileSize {
		return "", fmt.Errorf("secret file larger than %d bytes: %s", maxFileSize, clean)
	}
	if perm := info.Mode().Perm(); perm&permissiveBits != 0 && Warnings != nil {
		fmt.Fprintf(Warnings, "WARNING: secret file %s is accessible by group or others (mode %04o)\n", clean, perm)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", fmt.Errorf("cannot read secret file %s: %w", clean, err)
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fmt.Errorf("secret file is empty: %s", clean)
	}
	return secret, nil
}

// Resolve returns the credential for one setting. A non-empty filePath
// wins over value; otherwise value is returned with references expanded.
// Both empty resolves to "" so the caller's requirement check reports it.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return Expand(value)
}

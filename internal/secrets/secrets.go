// Package secrets resolves credentials referenced from configuration:
// ${VAR} / ${VAR:-default} expansion and secret files (Docker/Kubernetes
// mounts). Secret values are never logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/logger"
)

const (
	// maxSecretFileSize keeps secret reads small; secrets are tokens, not documents
	maxSecretFileSize = 64 * 1024

	// filePrefix marks a config value that names a secret file
	filePrefix = "file:"
)

// Resolver reads secrets from a filesystem. The zero value is not usable;
// use NewResolver or the package-level helpers which use the OS filesystem.
type Resolver struct {
	fs afero.Fs
}

// NewResolver returns a Resolver reading secret files from fs.
func NewResolver(fs afero.Fs) *Resolver {
	return &Resolver{fs: fs}
}

var osResolver = NewResolver(afero.NewOsFs())

func log() logger.Logger {
	return logger.Global().Module("secrets")
}

// ExpandString expands ${VAR} and ${VAR:-default} references in s.
// A reference to an unset variable without a fallback is an error.
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
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return expanded, nil
}

// ReadFile reads a secret file, trimming trailing newlines.
func (r *Resolver) ReadFile(path string) (string, error) {
	if path == "" {
		return "", errors.Newf("secret file path is empty").
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}

	cleanPath := filepath.Clean(path)

	info, err := r.fs.Stat(cleanPath)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			Context("operation", "stat_secret_file").
			Build()
	}
	if !info.Mode().IsRegular() {
		return "", errors.Newf("secret path is not a regular file: %s", cleanPath).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if info.Size() > maxSecretFileSize {
		return "", errors.Newf("secret file too large (max %d bytes): %s", maxSecretFileSize, cleanPath).
			Component("secrets").
			Category(errors.CategoryLimit).
			Build()
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		log().Warn("secret file is readable by group or others",
			logger.String("path", cleanPath),
			logger.String("mode", perm.String()))
	}

	data, err := afero.ReadFile(r.fs, cleanPath)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			Context("operation", "read_secret_file").
			Build()
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", errors.Newf("secret file is empty: %s", cleanPath).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return secret, nil
}

// Resolve turns a configured value into the secret it refers to:
//
//   - "file:/run/secrets/x" reads the file
//   - "${VAR}" and "${VAR:-default}" expand from the environment
//   - anything else is returned as is
func (r *Resolver) Resolve(value string) (string, error) {
	if path, ok := strings.CutPrefix(value, filePrefix); ok {
		return r.ReadFile(path)
	}
	return ExpandString(value)
}

// Resolve resolves value against the OS filesystem.
func Resolve(value string) (string, error) {
	return osResolver.Resolve(value)
}

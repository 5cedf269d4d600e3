package evaluation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tphakala/evalsync/internal/errors"
)

// MeasurementUnit selects how measurements are displayed to the operator
type MeasurementUnit string

const (
	UnitMetric   MeasurementUnit = "metric"
	UnitImperial MeasurementUnit = "imperial"
)

// InferenceMode selects where the classifier runs
type InferenceMode string

const (
	InferenceClient InferenceMode = "client"
	InferenceServer InferenceMode = "server"
)

// RegistryConfig is the remote registry target: where records are pushed
// and with which credential.
type RegistryConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"apiKey"`
	Enabled  bool   `json:"enabled"`
}

// Configured reports whether pushes can be attempted against r.
func (r RegistryConfig) Configured() bool {
	return r.Enabled && strings.TrimSpace(r.Endpoint) != ""
}

// AppSettings is the operator-editable settings singleton.
type AppSettings struct {
	Registry          RegistryConfig  `json:"registry"`
	MeasurementUnit   MeasurementUnit `json:"measurementUnit"`
	CalibrationOffset float64         `json:"calibrationOffset"`
	InferenceMode     InferenceMode   `json:"inferenceMode"`
}

// DefaultSettings returns the settings used before anything was saved.
func DefaultSettings() AppSettings {
	return AppSettings{
		Registry:          RegistryConfig{},
		MeasurementUnit:   UnitMetric,
		CalibrationOffset: 0,
		InferenceMode:     InferenceClient,
	}
}

// Validate checks enumerations and the endpoint URL.
func (s *AppSettings) Validate() error {
	var problems []string

	switch s.MeasurementUnit {
	case UnitMetric, UnitImperial:
	default:
		problems = append(problems, fmt.Sprintf("measurementUnit must be metric or imperial, got %q", s.MeasurementUnit))
	}

	switch s.InferenceMode {
	case InferenceClient, InferenceServer:
	default:
		problems = append(problems, fmt.Sprintf("inferenceMode must be client or server, got %q", s.InferenceMode))
	}

	if s.Registry.Endpoint != "" {
		u, err := url.Parse(s.Registry.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("registry.endpoint must be an absolute http(s) URL, got %q", s.Registry.Endpoint))
		}
	}

	if s.Registry.Enabled && s.Registry.Endpoint == "" {
		problems = append(problems, "registry.endpoint is required when the registry is enabled")
	}

	if len(problems) > 0 {
		return errors.Newf("invalid settings: %s", strings.Join(problems, "; ")).
			Component("evaluation").
			Category(errors.CategoryValidation).
			Context("problems", problems).
			Build()
	}
	return nil
}

// Masked returns a copy of s safe to show to an operator. Only the last
// four characters of the credential survive.
func (s AppSettings) Masked() AppSettings {
	s.Registry.APIKey = MaskCredential(s.Registry.APIKey)
	return s
}

// MaskCredential hides all but the trailing four characters of key.
func MaskCredential(key string) string {
	if key == "" {
		return ""
	}
	runes := []rune(key)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

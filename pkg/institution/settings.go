package institution

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the read-only institution configuration consumed by the
// relationship and registration workflows.
type Settings struct {
	// Code prefixes every registration code issued for this institution.
	Code string `yaml:"code" json:"code"`
	// AdulthoodAge is the age at which a patient stops being pediatric.
	AdulthoodAge int `yaml:"adulthood_age" json:"adulthood_age"`
	// Default lab result delays, in days, applied to pediatric patients.
	NonInterpretableLabResultDelay int `yaml:"non_interpretable_lab_result_delay" json:"non_interpretable_lab_result_delay"`
	InterpretableLabResultDelay    int `yaml:"interpretable_lab_result_delay" json:"interpretable_lab_result_delay"`
	// RegistrationCodeValidityDays bounds how long an unredeemed code stays usable.
	RegistrationCodeValidityDays int `yaml:"registration_code_validity_days" json:"registration_code_validity_days"`
	// SupportEmail is included in registration notifications.
	SupportEmail string `yaml:"support_email" json:"support_email"`
}

// Load reads institution settings from a YAML file, falling back to the
// compiled-in defaults when no path is configured.
func Load(path string) (Settings, error) {
	if path == "" {
		return DefaultSettings(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultSettings(), err
	}
	settings := DefaultSettings()
	if err := yaml.Unmarshal(content, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse institution settings: %w", err)
	}
	if settings.Code == "" {
		return Settings{}, fmt.Errorf("institution settings missing code")
	}
	if settings.AdulthoodAge <= 0 {
		return Settings{}, fmt.Errorf("institution settings adulthood_age must be positive")
	}
	return settings, nil
}

func DefaultSettings() Settings {
	return Settings{
		Code:                           "OP",
		AdulthoodAge:                   18,
		NonInterpretableLabResultDelay: 0,
		InterpretableLabResultDelay:    0,
		RegistrationCodeValidityDays:   3,
		SupportEmail:                   "support@opalmedapps.ca",
	}
}

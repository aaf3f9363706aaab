package errors

import (
	"fmt"
	"strings"
)

// envPrefix is stripped when mapping an env var back to its config.yaml key
const envPrefix = "CRMASSIST_"

// ConfigurationError covers settings that are present but unusable
type ConfigurationError struct {
	*AppError
}

func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{AppError: &AppError{
		Message:  message,
		ExitCode: ExitConfigError,
	}}
}

// MissingEnvVarError reports a required setting, such as a provider API key,
// that is set neither in the environment nor in config.yaml
type MissingEnvVarError struct {
	*AppError
}

func NewMissingEnvVarError(varName, description string) *MissingEnvVarError {
	return &MissingEnvVarError{AppError: &AppError{
		Message:  fmt.Sprintf("%s is not set", varName),
		ExitCode: ExitConfigError,
		Context: &ErrorContext{
			Operation: "Resolving settings",
			Component: "crmassist config",
			Details: map[string]interface{}{
				"variable": varName,
				"purpose":  description,
			},
			Suggestions: []string{
				fmt.Sprintf("export %s=...", varName),
				fmt.Sprintf("or set %s in .crmassist/config.yaml", convertEnvToYAMLKey(varName)),
				"or add it to a .env file in the work directory",
			},
		},
	}}
}

// convertEnvToYAMLKey maps CRMASSIST_PROVIDERS_OPENAI_API_KEY to
// providers.openai.api_key. Provider keys keep their underscore suffix.
func convertEnvToYAMLKey(envVar string) string {
	key := strings.ToLower(strings.TrimPrefix(envVar, envPrefix))
	if rest, ok := strings.CutPrefix(key, "providers_"); ok {
		if name, field, ok := strings.Cut(rest, "_"); ok {
			return "providers." + name + "." + field
		}
	}
	return strings.ReplaceAll(key, "_", ".")
}

// InvalidEnvVarError reports a setting whose value fails validation
type InvalidEnvVarError struct {
	*AppError
}

func NewInvalidEnvVarError(varName, value, reason string) *InvalidEnvVarError {
	return &InvalidEnvVarError{AppError: &AppError{
		Message:  fmt.Sprintf("%s=%q is invalid", varName, value),
		ExitCode: ExitConfigError,
		Context: &ErrorContext{
			Operation: "Validating settings",
			Component: "crmassist config",
			Details: map[string]interface{}{
				"variable": varName,
				"value":    value,
			},
			Suggestions: []string{
				reason,
				fmt.Sprintf("config.yaml key: %s", convertEnvToYAMLKey(varName)),
			},
		},
	}}
}

// ConfigFileError wraps a read or YAML parse failure of a config file
type ConfigFileError struct {
	*AppError
}

func NewConfigFileError(filePath string, cause error) *ConfigFileError {
	return &ConfigFileError{AppError: &AppError{
		Message:  fmt.Sprintf("cannot load %s", filePath),
		Cause:    cause,
		ExitCode: ExitConfigError,
		Context: &ErrorContext{
			Operation: "Reading config file",
			Component: "crmassist config",
			Details:   map[string]interface{}{"path": filePath},
			Suggestions: []string{
				"Fix the YAML syntax or remove the file to fall back to defaults",
				"Run `crmassist check` once it loads",
			},
		},
	}}
}

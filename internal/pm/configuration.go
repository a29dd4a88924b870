package pm

import (
	"strings"
)

const (
	configurationRootsKeyConstant  = "roots"
	configurationDryRunKeyConstant = "dry_run"
	defaultRootConstant            = "."
)

// Configuration stores options for package manager commands.
type Configuration struct {
	Roots  []string `mapstructure:"roots"`
	DryRun bool     `mapstructure:"dry_run"`
}

// DefaultConfiguration supplies baseline values for pm configuration.
func DefaultConfiguration() Configuration {
	return Configuration{Roots: []string{defaultRootConstant}}
}

// DefaultConfigurationValues produces Viper defaults for the pm commands under rootKey.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	return map[string]any{
		rootKey + "." + configurationRootsKeyConstant:  defaults.Roots,
		rootKey + "." + configurationDryRunKeyConstant: defaults.DryRun,
	}
}

// Sanitize trims configured values and removes empty entries.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.Roots = sanitizeRoots(configuration.Roots)
	return sanitized
}

func sanitizeRoots(candidateRoots []string) []string {
	sanitizedRoots := make([]string, 0, len(candidateRoots))
	for _, rootCandidate := range candidateRoots {
		trimmedRoot := strings.TrimSpace(rootCandidate)
		if len(trimmedRoot) == 0 {
			continue
		}
		sanitizedRoots = append(sanitizedRoots, trimmedRoot)
	}
	if len(sanitizedRoots) == 0 {
		return nil
	}
	return sanitizedRoots
}

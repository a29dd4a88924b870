package audit

import (
	"strings"
	"time"

	"github.com/temirov/fleetaudit/internal/scanner"
	"github.com/temirov/fleetaudit/internal/workerpool"
)

const (
	defaultRootConstant                   = "."
	configurationRootsKeyConstant         = "roots"
	configurationWorkersKeyConstant       = "workers"
	configurationTimeoutKeyConstant       = "timeout"
	configurationReadOnlyKeyConstant      = "read_only"
	configurationVerboseKeyConstant       = "verbose"
	configurationFailOnDriftKeyConstant   = "fail_on_drift"
	configurationSnapshotDirKeyConstant   = "snapshot_dir"
	configurationSecretServiceKeyConstant = "secret_service"
)

// CommandConfiguration captures persistent settings for the audit command.
type CommandConfiguration struct {
	Roots []string `mapstructure:"roots"`
	// Workers caps the worker pool; the pool never exceeds workerpool.DefaultMaxWorkers.
	Workers       int           `mapstructure:"workers"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ReadOnly      bool          `mapstructure:"read_only"`
	Verbose       bool          `mapstructure:"verbose"`
	FailOnDrift   bool          `mapstructure:"fail_on_drift"`
	SnapshotDir   string        `mapstructure:"snapshot_dir"`
	SecretService string        `mapstructure:"secret_service"`
}

// DefaultCommandConfiguration returns baseline configuration values for the audit command.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Roots:         []string{defaultRootConstant},
		Workers:       workerpool.DefaultMaxWorkers,
		Timeout:       workerpool.DefaultBatchTimeout,
		ReadOnly:      false,
		Verbose:       false,
		FailOnDrift:   false,
		SnapshotDir:   "",
		SecretService: scanner.DefaultSecretService,
	}
}

// DefaultConfigurationValues produces Viper defaults for the audit command under rootKey.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		rootKey + "." + configurationRootsKeyConstant:         defaults.Roots,
		rootKey + "." + configurationWorkersKeyConstant:       defaults.Workers,
		rootKey + "." + configurationTimeoutKeyConstant:       defaults.Timeout.String(),
		rootKey + "." + configurationReadOnlyKeyConstant:      defaults.ReadOnly,
		rootKey + "." + configurationVerboseKeyConstant:       defaults.Verbose,
		rootKey + "." + configurationFailOnDriftKeyConstant:   defaults.FailOnDrift,
		rootKey + "." + configurationSnapshotDirKeyConstant:   defaults.SnapshotDir,
		rootKey + "." + configurationSecretServiceKeyConstant: defaults.SecretService,
	}
}

// sanitize trims values and restores defaults for unusable ones.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.Roots = sanitizeRoots(configuration.Roots)
	if configuration.Workers <= 0 || configuration.Workers > workerpool.DefaultMaxWorkers {
		sanitized.Workers = defaults.Workers
	}
	if configuration.Timeout <= 0 {
		sanitized.Timeout = defaults.Timeout
	}
	sanitized.SnapshotDir = strings.TrimSpace(configuration.SnapshotDir)
	sanitized.SecretService = strings.TrimSpace(configuration.SecretService)
	if len(sanitized.SecretService) == 0 {
		sanitized.SecretService = defaults.SecretService
	}

	return sanitized
}

func sanitizeRoots(raw []string) []string {
	sanitized := make([]string, 0, len(raw))
	for index := range raw {
		trimmed := strings.TrimSpace(raw[index])
		if len(trimmed) == 0 {
			continue
		}
		sanitized = append(sanitized, trimmed)
	}
	return sanitized
}

// Package scanner composes the project configuration readers into a single
// ProjectRecord per directory.
package scanner

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/fleetaudit/internal/projectconfig"
	"github.com/temirov/fleetaudit/internal/secrets"
)

const (
	// DefaultSecretService is the secret-store service under which registry tokens are looked up.
	DefaultSecretService = "fleet-audit"

	bunRegistryVariableConstant        = "BUN_CONFIG_REGISTRY"
	npmRegistryVariableConstant        = "NPM_CONFIG_REGISTRY"
	publicRegistryHostConstant         = "registry.npmjs.org"
	parseFailureMessageConstant        = "project file could not be parsed"
	secretLookupFailureMessageConstant = "secret store lookup failed"
	projectFieldConstant               = "project"
	sourceFieldConstant                = "source"
	registryHostFieldConstant          = "registry_host"
	manifestSourceConstant             = "manifest"
	lockfileSourceConstant             = "lockfile"
	settingsSourceConstant             = "settings"
	dotenvSourceConstant               = "dotenv"
	npmrcSourceConstant                = "npmrc"
	homeNpmrcSourceConstant            = "home_npmrc"
)

// Options configures a Scanner.
type Options struct {
	Logger *zap.Logger
	// SecretStore is consulted for registry tokens. Nil means secrets.Unavailable.
	SecretStore secrets.Store
	// SecretService names the secret-store service. Defaults to DefaultSecretService.
	SecretService string
	// EnvironmentLookup resolves process environment fallbacks. Defaults to os.LookupEnv.
	EnvironmentLookup projectconfig.EnvironmentLookup
	// HomeDirectory locates the user-level .npmrc. Empty skips it.
	HomeDirectory string
	// Verbose enables debug logging of per-file parse failures.
	Verbose bool
}

// Scanner extracts ProjectRecords. A Scanner is safe for concurrent use.
type Scanner struct {
	logger            *zap.Logger
	secretStore       secrets.Store
	secretService     string
	environmentLookup projectconfig.EnvironmentLookup
	homeDirectory     string
	verbose           bool

	homeNpmrcOnce sync.Once
	homeNpmrc     projectconfig.Npmrc
}

// NewScanner constructs a Scanner, filling unset options with defaults.
func NewScanner(options Options) *Scanner {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	secretStore := options.SecretStore
	if secretStore == nil {
		secretStore = secrets.Unavailable{}
	}
	secretService := strings.TrimSpace(options.SecretService)
	if len(secretService) == 0 {
		secretService = DefaultSecretService
	}
	environmentLookup := options.EnvironmentLookup
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}

	return &Scanner{
		logger:            logger,
		secretStore:       secretStore,
		secretService:     secretService,
		environmentLookup: environmentLookup,
		homeDirectory:     options.HomeDirectory,
		verbose:           options.Verbose,
	}
}

// ScanProject reads every configuration source in directory and never fails.
// Missing or malformed sources leave their fields at sentinel values.
func (scanner *Scanner) ScanProject(executionContext context.Context, directory string) ProjectRecord {
	folder := filepath.Base(directory)
	record := DefaultRecord(directory, folder)

	var (
		manifest projectconfig.Manifest
		lockfile projectconfig.Lockfile
		settings projectconfig.Settings
		dotenv   projectconfig.DotenvOverrides
		npmrc    projectconfig.Npmrc
	)

	var readers errgroup.Group
	readers.Go(func() error {
		var readError error
		manifest, readError = projectconfig.ReadManifest(directory)
		scanner.reportParseFailure(folder, manifestSourceConstant, readError)
		return nil
	})
	readers.Go(func() error {
		var readError error
		lockfile, readError = projectconfig.ReadLockfile(directory)
		scanner.reportParseFailure(folder, lockfileSourceConstant, readError)
		return nil
	})
	readers.Go(func() error {
		var readError error
		settings, readError = projectconfig.ReadSettings(directory)
		scanner.reportParseFailure(folder, settingsSourceConstant, readError)
		return nil
	})
	readers.Go(func() error {
		var readError error
		dotenv, readError = projectconfig.ReadDotenv(directory)
		scanner.reportParseFailure(folder, dotenvSourceConstant, readError)
		return nil
	})
	readers.Go(func() error {
		var readError error
		npmrc, readError = projectconfig.ReadNpmrc(filepath.Join(directory, projectconfig.NpmrcFileName), scanner.environmentLookup)
		scanner.reportParseFailure(folder, npmrcSourceConstant, readError)
		return nil
	})
	_ = readers.Wait()

	applyManifest(&record, manifest)
	applyLockfile(&record, lockfile)
	applySettings(&record, settings)

	record.Registry = scanner.resolveRegistry(manifest, settings)
	record.Timezone = firstNonEmpty(dotenv.Timezone, scanner.lookup(projectconfig.TimezoneVariableName), projectconfig.MissingValueSentinel)
	record.DNSTimeToLive = dotenv.DNSTimeToLive
	if len(dotenv.Files) > 0 {
		record.DotenvFiles = dotenv.Files
	}
	if record.DNSTimeToLive == 0 {
		record.DNSTimeToLive = projectconfig.ParseSeconds(scanner.lookup(projectconfig.DNSTimeToLiveVariableName))
	}

	record.HasNpmrc = npmrc.Present
	record.HasAuthToken = npmrc.HasAuthToken || scanner.loadHomeNpmrc().HasAuthToken || scanner.settingsTokenResolves(settings)
	record.SecretStoreToken = scanner.secretStoreHoldsToken(executionContext, folder, record.Registry)
	record.AuthReady = record.HasAuthToken || record.SecretStoreToken
	return record
}

func applyManifest(record *ProjectRecord, manifest projectconfig.Manifest) {
	if !manifest.Present || !manifest.Parsed {
		return
	}
	record.HasManifest = true
	if len(manifest.Name) > 0 {
		record.Name = manifest.Name
	}
	if len(manifest.Version) > 0 {
		record.Version = manifest.Version
	}
	record.DependencyCount = manifest.DependencyCount
	record.DevDependencyCount = manifest.DevDependencyCount
	if len(manifest.TrustedDependencies) > 0 {
		record.TrustedDependencies = manifest.TrustedDependencies
	}
	record.HasWorkspaces = manifest.HasWorkspaces
	if len(manifest.EngineConstraint) > 0 {
		record.EngineConstraint = manifest.EngineConstraint
	}
}

func applyLockfile(record *ProjectRecord, lockfile projectconfig.Lockfile) {
	if lockfile.Kind == "" || lockfile.Kind == projectconfig.LockfileKindNone {
		return
	}
	record.LockfileKind = lockfile.Kind
	record.LockHash = lockfile.Hash
	record.LockfileVersion = lockfile.LockfileVersion
	record.LockConfigVersion = lockfile.ConfigVersion
	record.LockHeaderParsed = lockfile.HeaderParsed
}

func applySettings(record *ProjectRecord, settings projectconfig.Settings) {
	record.HasSettings = settings.Present
	if !settings.Parsed {
		return
	}
	record.Linker = settings.Linker
	record.FrozenLockfile = settings.FrozenLockfile
	record.CacheDirectory = settings.CacheDirectory
	record.CacheDisabled = settings.CacheDisabled
	record.ConcurrentScripts = settings.ConcurrentScripts
	record.NetworkConcurrency = settings.NetworkConcurrency
	record.ScopedRegistryCount = settings.ScopedRegistryCount
	if len(settings.EnvironmentReferences) > 0 {
		record.EnvironmentReferences = settings.EnvironmentReferences
	}
}

// resolveRegistry applies manifest publishConfig, then bunfig, then environment.
func (scanner *Scanner) resolveRegistry(manifest projectconfig.Manifest, settings projectconfig.Settings) string {
	if len(manifest.PublishRegistry) > 0 {
		return manifest.PublishRegistry
	}
	if settings.Parsed && settings.Registry != projectconfig.MissingValueSentinel {
		return settings.Registry
	}
	return firstNonEmpty(scanner.lookup(bunRegistryVariableConstant), scanner.lookup(npmRegistryVariableConstant), projectconfig.MissingValueSentinel)
}

func (scanner *Scanner) settingsTokenResolves(settings projectconfig.Settings) bool {
	if len(settings.RegistryToken) == 0 {
		return false
	}
	return len(strings.TrimSpace(projectconfig.ExpandEnvironmentReferences(settings.RegistryToken, scanner.environmentLookup))) > 0
}

func (scanner *Scanner) secretStoreHoldsToken(executionContext context.Context, folder string, registry string) bool {
	if scanner.secretStore.Kind() == secrets.KindUnavailable {
		return false
	}
	registryHost := RegistryHost(registry)
	_, found, lookupError := scanner.secretStore.Get(executionContext, scanner.secretService, registryHost)
	if lookupError != nil {
		if scanner.verbose {
			scanner.logger.Debug(secretLookupFailureMessageConstant, zap.String(projectFieldConstant, folder), zap.String(registryHostFieldConstant, registryHost), zap.Error(lookupError))
		}
		return false
	}
	return found
}

func (scanner *Scanner) loadHomeNpmrc() projectconfig.Npmrc {
	scanner.homeNpmrcOnce.Do(func() {
		if len(scanner.homeDirectory) == 0 {
			return
		}
		var readError error
		scanner.homeNpmrc, readError = projectconfig.ReadNpmrc(filepath.Join(scanner.homeDirectory, projectconfig.NpmrcFileName), scanner.environmentLookup)
		scanner.reportParseFailure(homeNpmrcSourceConstant, npmrcSourceConstant, readError)
	})
	return scanner.homeNpmrc
}

func (scanner *Scanner) reportParseFailure(folder string, source string, failure error) {
	if failure == nil || !scanner.verbose {
		return
	}
	scanner.logger.Debug(parseFailureMessageConstant, zap.String(projectFieldConstant, folder), zap.String(sourceFieldConstant, source), zap.Error(failure))
}

func (scanner *Scanner) lookup(name string) string {
	value, found := scanner.environmentLookup(name)
	if !found {
		return ""
	}
	return strings.TrimSpace(value)
}

// RegistryHost extracts the host of a registry URL, defaulting to the public npm registry.
func RegistryHost(registry string) string {
	trimmed := strings.TrimSpace(registry)
	if len(trimmed) == 0 || trimmed == projectconfig.MissingValueSentinel {
		return publicRegistryHostConstant
	}
	parsed, parseError := url.Parse(trimmed)
	if parseError != nil || len(parsed.Host) == 0 {
		return publicRegistryHostConstant
	}
	return parsed.Host
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if len(value) > 0 {
			return value
		}
	}
	return ""
}

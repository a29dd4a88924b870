package scanner

import "github.com/temirov/fleetaudit/internal/projectconfig"

// ProjectRecord is the metadata extracted from one project directory.
// String fields use "-" when their source is absent; numeric and boolean
// fields use their zero values; list fields are empty, never nil.
type ProjectRecord struct {
	Folder                string                     `json:"folder"`
	Path                  string                     `json:"path"`
	HasManifest           bool                       `json:"hasManifest"`
	Name                  string                     `json:"name"`
	Version               string                     `json:"version"`
	DependencyCount       int                        `json:"dependencyCount"`
	DevDependencyCount    int                        `json:"devDependencyCount"`
	TrustedDependencies   []string                   `json:"trustedDependencies"`
	HasWorkspaces         bool                       `json:"hasWorkspaces"`
	EngineConstraint      string                     `json:"engineConstraint"`
	LockfileKind          projectconfig.LockfileKind `json:"lockfileKind"`
	LockHash              string                     `json:"lockHash"`
	LockfileVersion       int                        `json:"lockfileVersion"`
	LockConfigVersion     int                        `json:"lockConfigVersion"`
	LockHeaderParsed      bool                       `json:"lockHeaderParsed"`
	HasSettings           bool                       `json:"hasSettings"`
	Linker                string                     `json:"linker"`
	FrozenLockfile        bool                       `json:"frozenLockfile"`
	Registry              string                     `json:"registry"`
	CacheDirectory        string                     `json:"cacheDirectory"`
	CacheDisabled         bool                       `json:"cacheDisabled"`
	ConcurrentScripts     int                        `json:"concurrentScripts"`
	NetworkConcurrency    int                        `json:"networkConcurrency"`
	ScopedRegistryCount   int                        `json:"scopedRegistryCount"`
	EnvironmentReferences []string                   `json:"environmentReferences"`
	Timezone              string                     `json:"timezone"`
	DNSTimeToLive         int                        `json:"dnsTimeToLive"`
	DotenvFiles           []string                   `json:"dotenvFiles"`
	HasNpmrc              bool                       `json:"hasNpmrc"`
	HasAuthToken          bool                       `json:"hasAuthToken"`
	SecretStoreToken      bool                       `json:"secretStoreToken"`
	AuthReady             bool                       `json:"authReady"`
}

// DefaultRecord returns the all-sentinel record for a directory whose files are all absent.
func DefaultRecord(directory string, folder string) ProjectRecord {
	return ProjectRecord{
		Folder:                folder,
		Path:                  directory,
		Name:                  folder,
		Version:               projectconfig.MissingValueSentinel,
		TrustedDependencies:   []string{},
		EngineConstraint:      projectconfig.MissingValueSentinel,
		LockfileKind:          projectconfig.LockfileKindNone,
		LockHash:              projectconfig.MissingValueSentinel,
		Linker:                projectconfig.MissingValueSentinel,
		Registry:              projectconfig.MissingValueSentinel,
		CacheDirectory:        projectconfig.MissingValueSentinel,
		EnvironmentReferences: []string{},
		Timezone:              projectconfig.MissingValueSentinel,
		DotenvFiles:           []string{},
	}
}

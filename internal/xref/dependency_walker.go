package xref

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/temirov/fleetaudit/internal/projectconfig"
)

const (
	// DependencyDirectoryName is the installed-dependency directory of a project.
	DependencyDirectoryName = "node_modules"
	// DefaultManifestCacheSize bounds the dependency manifest cache.
	DefaultManifestCacheSize = 4096

	scopePrefixConstant                   = "@"
	hiddenEntryPrefixConstant             = "."
	listDependenciesErrorTemplateConstant = "failed to list %s: %w"
	manifestCacheErrorTemplateConstant    = "failed to create manifest cache: %w"
)

// LifecycleHookNames are the manifest scripts that run automatically during install.
var LifecycleHookNames = []string{
	"preinstall",
	"install",
	"postinstall",
	"preprepare",
	"prepare",
	"postprepare",
	"prepublish",
}

// DependencyFailure records a dependency manifest that could not be read.
type DependencyFailure struct {
	Dependency string
	Cause      error
}

// DependencyWalker finds installed dependencies that declare lifecycle hooks.
// Dependency manifests are cached by resolved path, so packages shared between
// projects through symlinks are read once.
type DependencyWalker struct {
	manifestCache *lru.Cache[string, bool]
}

// NewDependencyWalker creates a walker whose manifest cache holds up to cacheSize entries.
func NewDependencyWalker(cacheSize int) (*DependencyWalker, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultManifestCacheSize
	}
	cache, cacheError := lru.New[string, bool](cacheSize)
	if cacheError != nil {
		return nil, fmt.Errorf(manifestCacheErrorTemplateConstant, cacheError)
	}
	return &DependencyWalker{manifestCache: cache}, nil
}

// HookDependencies returns the sorted names of dependencies under
// projectDirectory/node_modules that declare at least one lifecycle hook.
// A missing dependency directory yields no names and no error. Unreadable
// dependency manifests are skipped and reported as failures.
func (walker *DependencyWalker) HookDependencies(projectDirectory string) ([]string, []DependencyFailure, error) {
	dependencyRoot := filepath.Join(projectDirectory, DependencyDirectoryName)
	dependencies, listError := listDependencies(dependencyRoot)
	if listError != nil {
		if errors.Is(listError, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, listError
	}

	var hookNames []string
	var failures []DependencyFailure
	for _, dependency := range dependencies {
		hasHook, hookError := walker.declaresHook(filepath.Join(dependencyRoot, filepath.FromSlash(dependency)))
		if hookError != nil {
			failures = append(failures, DependencyFailure{Dependency: dependency, Cause: hookError})
			continue
		}
		if hasHook {
			hookNames = append(hookNames, dependency)
		}
	}
	sort.Strings(hookNames)
	return hookNames, failures, nil
}

// CachedManifests reports how many dependency manifests are cached.
func (walker *DependencyWalker) CachedManifests() int {
	return walker.manifestCache.Len()
}

func (walker *DependencyWalker) declaresHook(dependencyDirectory string) (bool, error) {
	manifestPath := filepath.Join(dependencyDirectory, projectconfig.ManifestFileName)
	cacheKey := manifestPath
	if resolvedPath, resolveError := filepath.EvalSymlinks(manifestPath); resolveError == nil {
		cacheKey = resolvedPath
	}
	if hasHook, cached := walker.manifestCache.Get(cacheKey); cached {
		return hasHook, nil
	}

	manifest, readError := projectconfig.ReadManifestFile(manifestPath)
	if readError != nil {
		return false, readError
	}
	hasHook := declaresLifecycleHook(manifest.Scripts)
	walker.manifestCache.Add(cacheKey, hasHook)
	return hasHook, nil
}

func declaresLifecycleHook(scripts map[string]string) bool {
	for _, hookName := range LifecycleHookNames {
		if len(strings.TrimSpace(scripts[hookName])) > 0 {
			return true
		}
	}
	return false
}

// listDependencies returns installed package names, expanding one level of
// @scope directories into scope/name entries.
func listDependencies(dependencyRoot string) ([]string, error) {
	entries, readError := os.ReadDir(dependencyRoot)
	if readError != nil {
		return nil, fmt.Errorf(listDependenciesErrorTemplateConstant, dependencyRoot, readError)
	}

	var dependencies []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, hiddenEntryPrefixConstant) || !isDirectory(filepath.Join(dependencyRoot, name), entry) {
			continue
		}
		if !strings.HasPrefix(name, scopePrefixConstant) {
			dependencies = append(dependencies, name)
			continue
		}

		scopeDirectory := filepath.Join(dependencyRoot, name)
		scopedEntries, scopeError := os.ReadDir(scopeDirectory)
		if scopeError != nil {
			continue
		}
		for _, scopedEntry := range scopedEntries {
			scopedName := scopedEntry.Name()
			if strings.HasPrefix(scopedName, hiddenEntryPrefixConstant) || !isDirectory(filepath.Join(scopeDirectory, scopedName), scopedEntry) {
				continue
			}
			dependencies = append(dependencies, path.Join(name, scopedName))
		}
	}
	return dependencies, nil
}

func isDirectory(entryPath string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, statError := os.Stat(entryPath)
	return statError == nil && info.IsDir()
}

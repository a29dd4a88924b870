// Package discovery locates the sibling project directories that make up a fleet.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	hiddenEntryPrefixConstant        = "."
	nodeModulesDirectoryNameConstant = "node_modules"
	readRootErrorTemplateConstant    = "failed to read fleet root %s: %w"
)

// FilesystemProjectDiscoverer lists project directories directly beneath fleet roots.
type FilesystemProjectDiscoverer struct{}

// NewFilesystemProjectDiscoverer constructs a discoverer backed by os.ReadDir.
func NewFilesystemProjectDiscoverer() *FilesystemProjectDiscoverer {
	return &FilesystemProjectDiscoverer{}
}

// DiscoverProjects returns every immediate child directory of the provided roots,
// following symbolic links and skipping hidden entries and node_modules.
// Paths are deduplicated and sorted so job ids are stable between runs.
func (discoverer *FilesystemProjectDiscoverer) DiscoverProjects(roots []string) ([]string, error) {
	seen := make(map[string]struct{})
	var projects []string

	for _, root := range roots {
		directoryEntries, readError := os.ReadDir(root)
		if readError != nil {
			return nil, fmt.Errorf(readRootErrorTemplateConstant, root, readError)
		}

		for _, directoryEntry := range directoryEntries {
			entryName := directoryEntry.Name()
			if strings.HasPrefix(entryName, hiddenEntryPrefixConstant) || entryName == nodeModulesDirectoryNameConstant {
				continue
			}

			projectPath := filepath.Join(root, entryName)
			entryInfo, statError := os.Stat(projectPath)
			if statError != nil || !entryInfo.IsDir() {
				continue
			}

			if _, alreadySeen := seen[projectPath]; alreadySeen {
				continue
			}
			seen[projectPath] = struct{}{}
			projects = append(projects, projectPath)
		}
	}

	sort.Strings(projects)
	return projects, nil
}

package pathutils

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

const windowsOperatingSystemConstant = "windows"

// RootPathSanitizer normalizes fleet root inputs gathered from flags and configuration.
type RootPathSanitizer struct {
	homeExpander *HomeExpander
}

// NewRootPathSanitizer constructs a RootPathSanitizer. A nil expander uses the operating system home lookup.
func NewRootPathSanitizer(homeExpander *HomeExpander) *RootPathSanitizer {
	if homeExpander == nil {
		homeExpander = NewHomeExpander()
	}
	return &RootPathSanitizer{homeExpander: homeExpander}
}

// Sanitize trims whitespace, expands home shortcuts, resolves absolute paths,
// drops duplicates and removes roots nested inside another provided root.
// The first-seen order of surviving roots is preserved.
func (sanitizer *RootPathSanitizer) Sanitize(candidatePaths []string) []string {
	if sanitizer == nil {
		return NewRootPathSanitizer(nil).Sanitize(candidatePaths)
	}

	type rootCandidate struct {
		originalIndex int
		absolutePath  string
		comparison    string
	}

	candidates := make([]rootCandidate, 0, len(candidatePaths))
	for candidateIndex, candidatePath := range candidatePaths {
		trimmedPath := strings.TrimSpace(candidatePath)
		if len(trimmedPath) == 0 {
			continue
		}
		absolutePath := canonicalizePath(sanitizer.homeExpander.Expand(trimmedPath))
		candidates = append(candidates, rootCandidate{
			originalIndex: candidateIndex,
			absolutePath:  absolutePath,
			comparison:    comparisonPath(absolutePath),
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(first int, second int) bool {
		return len(candidates[first].comparison) < len(candidates[second].comparison)
	})

	selected := make([]rootCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		nested := false
		for _, existing := range selected {
			if isNestedPath(existing.comparison, candidate.comparison) {
				nested = true
				break
			}
		}
		if !nested {
			selected = append(selected, candidate)
		}
	}

	sort.SliceStable(selected, func(first int, second int) bool {
		return selected[first].originalIndex < selected[second].originalIndex
	})

	sanitizedPaths := make([]string, 0, len(selected))
	for _, candidate := range selected {
		sanitizedPaths = append(sanitizedPaths, candidate.absolutePath)
	}
	return sanitizedPaths
}

func canonicalizePath(path string) string {
	cleanedPath := filepath.Clean(path)
	absolutePath, absoluteError := filepath.Abs(cleanedPath)
	if absoluteError != nil {
		return cleanedPath
	}
	return absolutePath
}

func comparisonPath(path string) string {
	comparison := filepath.Clean(path)
	if runtime.GOOS == windowsOperatingSystemConstant {
		comparison = strings.ToLower(comparison)
	}
	return comparison
}

func isNestedPath(parent string, candidate string) bool {
	if candidate == parent {
		return true
	}
	if len(candidate) <= len(parent) || !strings.HasPrefix(candidate, parent) {
		return false
	}
	if parent[len(parent)-1] == os.PathSeparator {
		return true
	}
	return candidate[len(parent)] == os.PathSeparator
}

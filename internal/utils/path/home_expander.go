package pathutils

import (
	"os"
	"path/filepath"
	"strings"
)

const tildeSymbolConstant = "~"

// HomeExpander rewrites "~" prefixed fleet roots and snapshot directories
// against a single home directory. An empty home directory leaves paths as given.
type HomeExpander struct {
	homeDirectory string
}

// NewHomeExpander pins expansion to the current user's home directory.
func NewHomeExpander() *HomeExpander {
	homeDirectory, homeError := os.UserHomeDir()
	if homeError != nil {
		homeDirectory = ""
	}
	return NewHomeExpanderForDirectory(homeDirectory)
}

// NewHomeExpanderForDirectory pins expansion to homeDirectory, the same directory
// the scanner consults for the user-level .npmrc.
func NewHomeExpanderForDirectory(homeDirectory string) *HomeExpander {
	return &HomeExpander{homeDirectory: strings.TrimSpace(homeDirectory)}
}

// HomeDirectory reports the directory "~" expands to.
func (expander *HomeExpander) HomeDirectory() string {
	if expander == nil {
		return ""
	}
	return expander.homeDirectory
}

// Expand resolves "~" and "~/<path>". Forms such as "~user" are returned unchanged.
func (expander *HomeExpander) Expand(candidatePath string) string {
	homeDirectory := expander.HomeDirectory()
	if len(homeDirectory) == 0 {
		return candidatePath
	}
	remainder, hasTilde := strings.CutPrefix(candidatePath, tildeSymbolConstant)
	if !hasTilde {
		return candidatePath
	}
	if len(remainder) == 0 {
		return homeDirectory
	}
	if remainder[0] != '/' && !os.IsPathSeparator(remainder[0]) {
		return candidatePath
	}
	return filepath.Join(homeDirectory, remainder[1:])
}

package projectconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ManifestFileName is the project manifest file name.
	ManifestFileName = "package.json"

	manifestReadErrorTemplateConstant  = "failed to read %s: %w"
	manifestParseErrorTemplateConstant = "failed to parse %s: %w"
	manifestNameKeyConstant            = "name"
	manifestVersionKeyConstant         = "version"
	manifestDependenciesKeyConstant    = "dependencies"
	manifestDevDependenciesKeyConstant = "devDependencies"
	manifestTrustedKeyConstant         = "trustedDependencies"
	manifestWorkspacesKeyConstant      = "workspaces"
	manifestEnginesKeyConstant         = "engines"
	manifestPublishConfigKeyConstant   = "publishConfig"
	manifestScriptsKeyConstant         = "scripts"
	engineBunKeyConstant               = "bun"
	engineNodeKeyConstant              = "node"
	publishRegistryKeyConstant         = "registry"
)

// Manifest holds the package.json fields used by the audit.
type Manifest struct {
	Present             bool
	Parsed              bool
	Name                string
	Version             string
	DependencyCount     int
	DevDependencyCount  int
	TrustedDependencies []string
	HasWorkspaces       bool
	EngineConstraint    string
	PublishRegistry     string
	Scripts             map[string]string
}

// ReadManifest reads package.json from directory. A missing manifest returns a zero Manifest and no error.
func ReadManifest(directory string) (Manifest, error) {
	return ReadManifestFile(filepath.Join(directory, ManifestFileName))
}

// ReadManifestFile reads a manifest at an explicit path.
func ReadManifestFile(manifestPath string) (Manifest, error) {
	contents, readError := os.ReadFile(manifestPath)
	if readError != nil {
		if errors.Is(readError, fs.ErrNotExist) {
			return Manifest{}, nil
		}
		return Manifest{Present: true}, fmt.Errorf(manifestReadErrorTemplateConstant, manifestPath, readError)
	}

	manifest, parseError := ParseManifest(contents)
	if parseError != nil {
		return Manifest{Present: true}, fmt.Errorf(manifestParseErrorTemplateConstant, manifestPath, parseError)
	}
	return manifest, nil
}

// ParseManifest decodes manifest bytes. Fields with unexpected JSON types are
// ignored rather than failing the whole document.
func ParseManifest(contents []byte) (Manifest, error) {
	var document map[string]json.RawMessage
	if decodeError := json.Unmarshal(contents, &document); decodeError != nil {
		return Manifest{Present: true}, decodeError
	}

	manifest := Manifest{
		Present:             true,
		Parsed:              true,
		Name:                decodeString(document[manifestNameKeyConstant]),
		Version:             decodeString(document[manifestVersionKeyConstant]),
		DependencyCount:     len(decodeObject(document[manifestDependenciesKeyConstant])),
		DevDependencyCount:  len(decodeObject(document[manifestDevDependenciesKeyConstant])),
		TrustedDependencies: decodeStringList(document[manifestTrustedKeyConstant]),
		HasWorkspaces:       isArrayOrObject(document[manifestWorkspacesKeyConstant]),
		Scripts:             decodeStringMap(document[manifestScriptsKeyConstant]),
	}

	engines := decodeObject(document[manifestEnginesKeyConstant])
	manifest.EngineConstraint = decodeString(engines[engineBunKeyConstant])
	if len(manifest.EngineConstraint) == 0 {
		manifest.EngineConstraint = decodeString(engines[engineNodeKeyConstant])
	}

	publishConfig := decodeObject(document[manifestPublishConfigKeyConstant])
	manifest.PublishRegistry = decodeString(publishConfig[publishRegistryKeyConstant])

	return manifest, nil
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var value string
	if json.Unmarshal(raw, &value) != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var value map[string]json.RawMessage
	if json.Unmarshal(raw, &value) != nil {
		return nil
	}
	return value
}

func decodeStringMap(raw json.RawMessage) map[string]string {
	object := decodeObject(raw)
	if len(object) == 0 {
		return nil
	}
	values := make(map[string]string, len(object))
	for key, rawValue := range object {
		if value := decodeString(rawValue); len(value) > 0 {
			values[key] = value
		}
	}
	return values
}

func decodeStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var elements []json.RawMessage
	if json.Unmarshal(raw, &elements) != nil {
		return nil
	}
	values := make([]string, 0, len(elements))
	for _, element := range elements {
		if value := decodeString(element); len(value) > 0 {
			values = append(values, value)
		}
	}
	return sortedUnique(values)
}

func isArrayOrObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{")
}

package projectconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-ini/ini"
)

const (
	// NpmrcFileName is the npm auth file name.
	NpmrcFileName = ".npmrc"

	npmrcReadErrorTemplateConstant = "failed to read %s: %w"
	npmrcRegistryKeyConstant       = "registry"
	npmrcKeyValueDelimiterConstant = "="
)

var npmrcCredentialKeySuffixes = []string{"_authToken", "_auth", "_password"}

// Npmrc summarizes an .npmrc auth file.
type Npmrc struct {
	Present  bool
	Parsed   bool
	Registry string
	// HasAuthToken is true when a credential key resolves to a non-empty value after environment expansion.
	HasAuthToken bool
}

// ReadNpmrc parses the .npmrc at path. Credential values of the form ${NAME} are resolved through lookup.
func ReadNpmrc(path string, lookup EnvironmentLookup) (Npmrc, error) {
	contents, readError := os.ReadFile(path)
	if readError != nil {
		if errors.Is(readError, fs.ErrNotExist) {
			return Npmrc{}, nil
		}
		return Npmrc{Present: true}, fmt.Errorf(npmrcReadErrorTemplateConstant, path, readError)
	}

	configuration, loadError := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:      npmrcKeyValueDelimiterConstant,
		IgnoreInlineComment:     true,
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
	}, contents)
	if loadError != nil {
		return Npmrc{Present: true}, fmt.Errorf(npmrcReadErrorTemplateConstant, path, loadError)
	}

	npmrc := Npmrc{Present: true, Parsed: true}
	for _, key := range configuration.Section(ini.DefaultSection).Keys() {
		keyName := strings.TrimSpace(key.Name())
		value := strings.TrimSpace(key.Value())
		if keyName == npmrcRegistryKeyConstant {
			npmrc.Registry = ExpandEnvironmentReferences(value, lookup)
			continue
		}
		if isCredentialKey(keyName) && len(strings.TrimSpace(ExpandEnvironmentReferences(value, lookup))) > 0 {
			npmrc.HasAuthToken = true
		}
	}
	return npmrc, nil
}

func isCredentialKey(keyName string) bool {
	for _, suffix := range npmrcCredentialKeySuffixes {
		if keyName == suffix || strings.HasSuffix(keyName, ":"+suffix) {
			return true
		}
	}
	return false
}

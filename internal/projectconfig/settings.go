package projectconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
)

const (
	// SettingsFileName is the bun settings file name.
	SettingsFileName = "bunfig.toml"

	settingsReadErrorTemplateConstant    = "failed to read %s: %w"
	settingsParseErrorTemplateConstant   = "failed to parse %s: %w"
	settingsInstallErrorTemplateConstant = "failed to decode install section of %s: %w"
	settingsInstallSectionKeyConstant    = "install"
	settingsMapstructureTagConstant      = "mapstructure"
)

// Settings holds the install options derived from bunfig.toml.
type Settings struct {
	Present               bool
	Parsed                bool
	Registry              string
	RegistryToken         string
	Linker                string
	FrozenLockfile        bool
	CacheDirectory        string
	CacheDisabled         bool
	ConcurrentScripts     int
	NetworkConcurrency    int
	ScopedRegistryCount   int
	EnvironmentReferences []string
}

type installSection struct {
	Registry           any            `mapstructure:"registry"`
	Linker             string         `mapstructure:"linker"`
	FrozenLockfile     bool           `mapstructure:"frozenLockfile"`
	Cache              any            `mapstructure:"cache"`
	ConcurrentScripts  int            `mapstructure:"concurrentScripts"`
	NetworkConcurrency int            `mapstructure:"networkConcurrency"`
	Scopes             map[string]any `mapstructure:"scopes"`
}

type registryTable struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type cacheTable struct {
	Directory string `mapstructure:"dir"`
	Disable   bool   `mapstructure:"disable"`
}

// ReadSettings reads bunfig.toml from directory. A missing file returns default Settings and no error.
func ReadSettings(directory string) (Settings, error) {
	settingsPath := filepath.Join(directory, SettingsFileName)
	contents, readError := os.ReadFile(settingsPath)
	if readError != nil {
		if errors.Is(readError, fs.ErrNotExist) {
			return defaultSettings(false), nil
		}
		return defaultSettings(true), fmt.Errorf(settingsReadErrorTemplateConstant, settingsPath, readError)
	}

	settings, parseError := ParseSettings(contents)
	if parseError != nil {
		return settings, fmt.Errorf(settingsParseErrorTemplateConstant, settingsPath, parseError)
	}
	return settings, nil
}

// ParseSettings decodes bunfig.toml contents. Environment references are
// collected from every string in the document, not only the install section.
func ParseSettings(contents []byte) (Settings, error) {
	settings := defaultSettings(true)

	var document map[string]any
	if unmarshalError := toml.Unmarshal(contents, &document); unmarshalError != nil {
		return settings, unmarshalError
	}
	settings.Parsed = true
	settings.EnvironmentReferences = collectTreeEnvironmentReferences(document)

	installValues, hasInstall := document[settingsInstallSectionKeyConstant].(map[string]any)
	if !hasInstall {
		return settings, nil
	}

	section := installSection{}
	if decodeError := decodeLenient(installValues, &section); decodeError != nil {
		settings.Parsed = false
		return settings, fmt.Errorf(settingsInstallErrorTemplateConstant, SettingsFileName, decodeError)
	}

	applyRegistry(&settings, section.Registry)
	applyCache(&settings, section.Cache)
	if linker := strings.TrimSpace(section.Linker); len(linker) > 0 {
		settings.Linker = linker
	}
	settings.FrozenLockfile = section.FrozenLockfile
	settings.ConcurrentScripts = section.ConcurrentScripts
	settings.NetworkConcurrency = section.NetworkConcurrency
	settings.ScopedRegistryCount = len(section.Scopes)
	return settings, nil
}

func defaultSettings(present bool) Settings {
	return Settings{
		Present:        present,
		Registry:       MissingValueSentinel,
		Linker:         MissingValueSentinel,
		CacheDirectory: MissingValueSentinel,
	}
}

func decodeLenient(input any, target any) error {
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          settingsMapstructureTagConstant,
		WeaklyTypedInput: true,
		Result:           target,
	})
	if decoderError != nil {
		return decoderError
	}
	return decoder.Decode(input)
}

// applyRegistry accepts either a URL string or a table carrying url and token.
func applyRegistry(settings *Settings, registry any) {
	switch typed := registry.(type) {
	case string:
		if trimmed := strings.TrimSpace(typed); len(trimmed) > 0 {
			settings.Registry = trimmed
		}
	case map[string]any:
		table := registryTable{}
		if decodeLenient(typed, &table) != nil {
			return
		}
		if trimmed := strings.TrimSpace(table.URL); len(trimmed) > 0 {
			settings.Registry = trimmed
		}
		settings.RegistryToken = strings.TrimSpace(table.Token)
	}
}

// applyCache accepts a directory string, a boolean toggle, or a table with dir and disable.
func applyCache(settings *Settings, cache any) {
	switch typed := cache.(type) {
	case string:
		if trimmed := strings.TrimSpace(typed); len(trimmed) > 0 {
			settings.CacheDirectory = trimmed
		}
	case bool:
		settings.CacheDisabled = !typed
	case map[string]any:
		table := cacheTable{}
		if decodeLenient(typed, &table) != nil {
			return
		}
		if trimmed := strings.TrimSpace(table.Directory); len(trimmed) > 0 {
			settings.CacheDirectory = trimmed
		}
		settings.CacheDisabled = table.Disable
	}
}

func collectTreeEnvironmentReferences(node any) []string {
	var names []string
	var visit func(value any)
	visit = func(value any) {
		switch typed := value.(type) {
		case string:
			names = append(names, CollectEnvironmentReferences(typed)...)
		case map[string]any:
			for _, nested := range typed {
				visit(nested)
			}
		case []any:
			for _, nested := range typed {
				visit(nested)
			}
		}
	}
	visit(node)
	return sortedUnique(names)
}

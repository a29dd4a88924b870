package projectconfig_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/fleetaudit/internal/projectconfig"
)

const (
	testSubtestNameTemplateConstant = "%d_%s"
	testFilePermissionsConstant     = 0o644
)

func writeProjectFile(testInstance *testing.T, directory string, name string, contents string) {
	testInstance.Helper()
	require.NoError(testInstance, os.WriteFile(filepath.Join(directory, name), []byte(contents), testFilePermissionsConstant))
}

func TestReadManifest(testInstance *testing.T) {
	testCases := []struct {
		name             string
		contents         string
		expectError      bool
		expectedManifest projectconfig.Manifest
	}{
		{
			name:             "missing_manifest",
			expectedManifest: projectconfig.Manifest{},
		},
		{
			name: "full_manifest",
			contents: `{
				"name": "storefront",
				"version": "1.4.0",
				"dependencies": {"react": "^19.0.0", "sharp": "^0.33.0"},
				"devDependencies": {"typescript": "^5.6.0"},
				"trustedDependencies": ["sharp", "esbuild", "sharp", 7],
				"workspaces": ["packages/*"],
				"engines": {"node": ">=20", "bun": ">=1.1"},
				"publishConfig": {"registry": "https://npm.internal.example"},
				"scripts": {"postinstall": "node setup.js", "test": ""}
			}`,
			expectedManifest: projectconfig.Manifest{
				Present:             true,
				Parsed:              true,
				Name:                "storefront",
				Version:             "1.4.0",
				DependencyCount:     2,
				DevDependencyCount:  1,
				TrustedDependencies: []string{"esbuild", "sharp"},
				HasWorkspaces:       true,
				EngineConstraint:    ">=1.1",
				PublishRegistry:     "https://npm.internal.example",
				Scripts:             map[string]string{"postinstall": "node setup.js"},
			},
		},
		{
			name:     "node_engine_fallback_and_object_workspaces",
			contents: `{"name": "api", "workspaces": {"packages": ["apps/*"]}, "engines": {"node": "22.x"}, "dependencies": "oops"}`,
			expectedManifest: projectconfig.Manifest{
				Present:          true,
				Parsed:           true,
				Name:             "api",
				HasWorkspaces:    true,
				EngineConstraint: "22.x",
			},
		},
		{
			name:             "malformed_manifest",
			contents:         `{"name": "broken",`,
			expectError:      true,
			expectedManifest: projectconfig.Manifest{Present: true},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			projectDirectory := testInstance.TempDir()
			if len(testCase.contents) > 0 {
				writeProjectFile(testInstance, projectDirectory, projectconfig.ManifestFileName, testCase.contents)
			}

			manifest, readError := projectconfig.ReadManifest(projectDirectory)
			if testCase.expectError {
				require.Error(testInstance, readError)
			} else {
				require.NoError(testInstance, readError)
			}
			require.Equal(testInstance, testCase.expectedManifest, manifest)
		})
	}
}

func TestReadLockfile(testInstance *testing.T) {
	textLockfile := "{\n  \"lockfileVersion\": 1,\n  \"configVersion\": 2,\n  \"workspaces\": {\n    \"\": {\"name\": \"app\",},\n  },\n}\n"
	binaryLockfile := string([]byte{0x23, 0x21, 0x2f, 0x75, 0x73, 0x72, 0x00, 0xff})

	testCases := []struct {
		name                  string
		files                 map[string]string
		expectError           bool
		expectedKind          projectconfig.LockfileKind
		expectedHash          string
		expectedConfigVersion int
		expectedLockVersion   int
	}{
		{
			name:         "no_lockfile",
			expectedKind: projectconfig.LockfileKindNone,
			expectedHash: projectconfig.MissingValueSentinel,
		},
		{
			name:                  "text_lockfile_with_trailing_commas",
			files:                 map[string]string{projectconfig.TextLockfileName: textLockfile},
			expectedKind:          projectconfig.LockfileKindText,
			expectedHash:          projectconfig.HashContents([]byte(textLockfile)),
			expectedConfigVersion: 2,
			expectedLockVersion:   1,
		},
		{
			name:         "binary_lockfile",
			files:        map[string]string{projectconfig.BinaryLockfileName: binaryLockfile},
			expectedKind: projectconfig.LockfileKindBinary,
			expectedHash: projectconfig.HashContents([]byte(binaryLockfile)),
		},
		{
			name: "text_preferred_over_binary",
			files: map[string]string{
				projectconfig.TextLockfileName:   textLockfile,
				projectconfig.BinaryLockfileName: binaryLockfile,
			},
			expectedKind:          projectconfig.LockfileKindText,
			expectedHash:          projectconfig.HashContents([]byte(textLockfile)),
			expectedConfigVersion: 2,
			expectedLockVersion:   1,
		},
		{
			name:         "text_lockfile_without_object_header",
			files:        map[string]string{projectconfig.TextLockfileName: "[1, 2]"},
			expectError:  true,
			expectedKind: projectconfig.LockfileKindText,
			expectedHash: projectconfig.HashContents([]byte("[1, 2]")),
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			projectDirectory := testInstance.TempDir()
			for fileName, contents := range testCase.files {
				writeProjectFile(testInstance, projectDirectory, fileName, contents)
			}

			lockfile, readError := projectconfig.ReadLockfile(projectDirectory)
			if testCase.expectError {
				require.Error(testInstance, readError)
			} else {
				require.NoError(testInstance, readError)
			}
			require.Equal(testInstance, testCase.expectedKind, lockfile.Kind)
			require.Equal(testInstance, testCase.expectedHash, lockfile.Hash)
			require.Equal(testInstance, testCase.expectedConfigVersion, lockfile.ConfigVersion)
			require.Equal(testInstance, testCase.expectedLockVersion, lockfile.LockfileVersion)
		})
	}
}

func TestHashContentsIsStableHex(testInstance *testing.T) {
	first := projectconfig.HashContents([]byte("lockfile"))
	require.Len(testInstance, first, 16)
	require.Equal(testInstance, first, projectconfig.HashContents([]byte("lockfile")))
	require.NotEqual(testInstance, first, projectconfig.HashContents([]byte("lockfile\n")))
}

func TestReadSettings(testInstance *testing.T) {
	testCases := []struct {
		name             string
		contents         string
		expectError      bool
		expectedSettings projectconfig.Settings
	}{
		{
			name: "missing_settings",
			expectedSettings: projectconfig.Settings{
				Registry:       projectconfig.MissingValueSentinel,
				Linker:         projectconfig.MissingValueSentinel,
				CacheDirectory: projectconfig.MissingValueSentinel,
			},
		},
		{
			name: "string_registry_and_cache_table",
			contents: `
[install]
registry = "https://registry.example.com/"
linker = "isolated"
frozenLockfile = true
concurrentScripts = 4
networkConcurrency = 32

[install.cache]
dir = "${HOME}/.bun-cache"
disable = true

[install.scopes]
myorg = { url = "https://npm.myorg.example/", token = "$MYORG_TOKEN" }
other = "https://other.example/"

[run]
shell = "$SHELL"
`,
			expectedSettings: projectconfig.Settings{
				Present:               true,
				Parsed:                true,
				Registry:              "https://registry.example.com/",
				Linker:                "isolated",
				FrozenLockfile:        true,
				CacheDirectory:        "${HOME}/.bun-cache",
				CacheDisabled:         true,
				ConcurrentScripts:     4,
				NetworkConcurrency:    32,
				ScopedRegistryCount:   2,
				EnvironmentReferences: []string{"HOME", "MYORG_TOKEN", "SHELL"},
			},
		},
		{
			name: "registry_table_and_boolean_cache",
			contents: `
[install]
cache = false
registry = { url = "https://npm.pkg.example/", token = "${NPM_TOKEN}" }
`,
			expectedSettings: projectconfig.Settings{
				Present:               true,
				Parsed:                true,
				Registry:              "https://npm.pkg.example/",
				RegistryToken:         "${NPM_TOKEN}",
				Linker:                projectconfig.MissingValueSentinel,
				CacheDirectory:        projectconfig.MissingValueSentinel,
				CacheDisabled:         true,
				EnvironmentReferences: []string{"NPM_TOKEN"},
			},
		},
		{
			name:        "malformed_settings",
			contents:    "[install\nregistry = ",
			expectError: true,
			expectedSettings: projectconfig.Settings{
				Present:        true,
				Registry:       projectconfig.MissingValueSentinel,
				Linker:         projectconfig.MissingValueSentinel,
				CacheDirectory: projectconfig.MissingValueSentinel,
			},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			projectDirectory := testInstance.TempDir()
			if len(testCase.contents) > 0 {
				writeProjectFile(testInstance, projectDirectory, projectconfig.SettingsFileName, testCase.contents)
			}

			settings, readError := projectconfig.ReadSettings(projectDirectory)
			if testCase.expectError {
				require.Error(testInstance, readError)
			} else {
				require.NoError(testInstance, readError)
			}
			require.Equal(testInstance, testCase.expectedSettings, settings)
		})
	}
}

func TestReadDotenvAppliesPrecedence(testInstance *testing.T) {
	projectDirectory := testInstance.TempDir()
	writeProjectFile(testInstance, projectDirectory, ".env", "TZ=UTC\nBUN_CONFIG_DNS_TIME_TO_LIVE_SECONDS=30\n")
	writeProjectFile(testInstance, projectDirectory, ".env.production", "TZ=Europe/Berlin\n")
	writeProjectFile(testInstance, projectDirectory, ".env.local", "BUN_CONFIG_DNS_TIME_TO_LIVE_SECONDS=5\n")

	overrides, readError := projectconfig.ReadDotenv(projectDirectory)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, []string{".env", ".env.production", ".env.local"}, overrides.Files)
	require.Equal(testInstance, "Europe/Berlin", overrides.Timezone)
	require.Equal(testInstance, 5, overrides.DNSTimeToLive)
}

func TestReadDotenvWithoutFiles(testInstance *testing.T) {
	overrides, readError := projectconfig.ReadDotenv(testInstance.TempDir())
	require.NoError(testInstance, readError)
	require.Equal(testInstance, projectconfig.DotenvOverrides{}, overrides)
}

func TestReadNpmrc(testInstance *testing.T) {
	environment := map[string]string{"NPM_TOKEN": "npm_abc123"}
	lookup := func(name string) (string, bool) {
		value, found := environment[name]
		return value, found
	}

	testCases := []struct {
		name          string
		contents      string
		expectedNpmrc projectconfig.Npmrc
	}{
		{
			name:          "missing_file",
			expectedNpmrc: projectconfig.Npmrc{},
		},
		{
			name:     "token_from_environment",
			contents: "registry=https://registry.npmjs.org/\n//registry.npmjs.org/:_authToken=${NPM_TOKEN}\n",
			expectedNpmrc: projectconfig.Npmrc{
				Present:      true,
				Parsed:       true,
				Registry:     "https://registry.npmjs.org/",
				HasAuthToken: true,
			},
		},
		{
			name:     "token_variable_unset",
			contents: "; scoped registry\n@acme:registry=https://npm.acme.example/\n//npm.acme.example/:_authToken=${ACME_TOKEN}\n",
			expectedNpmrc: projectconfig.Npmrc{
				Present: true,
				Parsed:  true,
			},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			projectDirectory := testInstance.TempDir()
			if len(testCase.contents) > 0 {
				writeProjectFile(testInstance, projectDirectory, projectconfig.NpmrcFileName, testCase.contents)
			}

			npmrc, readError := projectconfig.ReadNpmrc(filepath.Join(projectDirectory, projectconfig.NpmrcFileName), lookup)
			require.NoError(testInstance, readError)
			require.Equal(testInstance, testCase.expectedNpmrc, npmrc)
		})
	}
}

func TestEnvironmentReferences(testInstance *testing.T) {
	testCases := []struct {
		name               string
		value              string
		expectedReferences []string
		expectedExpansion  string
	}{
		{
			name:               "braced_and_bare",
			value:              "${HOME}/cache/$USER",
			expectedReferences: []string{"HOME", "USER"},
			expectedExpansion:  "/home/dev/cache/dev",
		},
		{
			name:               "ignores_invalid_names",
			value:              "cost $5 and ${1BAD} and $",
			expectedReferences: nil,
			expectedExpansion:  "cost $5 and ${1BAD} and $",
		},
		{
			name:               "unset_variables_expand_empty",
			value:              "token=$MISSING;",
			expectedReferences: []string{"MISSING"},
			expectedExpansion:  "token=;",
		},
	}

	environment := map[string]string{"HOME": "/home/dev", "USER": "dev"}
	lookup := func(name string) (string, bool) {
		value, found := environment[name]
		return value, found
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedReferences, projectconfig.CollectEnvironmentReferences(testCase.value))
			require.Equal(testInstance, testCase.expectedExpansion, projectconfig.ExpandEnvironmentReferences(testCase.value, lookup))
		})
	}
}

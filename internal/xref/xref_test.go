package xref_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/fleetaudit/internal/projectconfig"
	"github.com/temirov/fleetaudit/internal/scanner"
	"github.com/temirov/fleetaudit/internal/xref"
)

const (
	testSubtestTemplateConstant   = "%d_%s"
	testPostinstallHookConstant   = `{"name":"%s","scripts":{"postinstall":"node install.js"}}`
	testPlainManifestConstant     = `{"name":"%s","scripts":{"test":"node test.js"}}`
	testEmptyHookManifestConstant = `{"name":"%s","scripts":{"preinstall":"  "}}`
	testLockHashConstant          = "0123456789abcdef"
	testFilePermissionsConstant   = 0o644
	testDirectoryPermissions      = 0o755
)

type entryMap map[string]xref.Entry

func (entries entryMap) Entry(folder string) (xref.Entry, bool) {
	entry, found := entries[folder]
	return entry, found
}

func writeDependency(testInstance *testing.T, projectDirectory string, dependency string, manifestTemplate string) {
	testInstance.Helper()
	dependencyDirectory := filepath.Join(projectDirectory, xref.DependencyDirectoryName, filepath.FromSlash(dependency))
	require.NoError(testInstance, os.MkdirAll(dependencyDirectory, testDirectoryPermissions))
	manifest := fmt.Sprintf(manifestTemplate, dependency)
	require.NoError(testInstance, os.WriteFile(filepath.Join(dependencyDirectory, projectconfig.ManifestFileName), []byte(manifest), testFilePermissionsConstant))
}

func projectRecord(projectDirectory string, trusted ...string) scanner.ProjectRecord {
	record := scanner.DefaultRecord(projectDirectory, filepath.Base(projectDirectory))
	record.HasManifest = true
	record.LockHash = testLockHashConstant
	if trusted != nil {
		record.TrustedDependencies = trusted
	}
	return record
}

func newCrossReferencer(testInstance *testing.T) *xref.CrossReferencer {
	testInstance.Helper()
	crossReferencer, constructionError := xref.NewCrossReferencer(xref.Options{Concurrency: 2})
	require.NoError(testInstance, constructionError)
	return crossReferencer
}

func TestDefaultTrustListContainsCommonNativePackages(testInstance *testing.T) {
	trustList, loadError := xref.DefaultTrustList()
	require.NoError(testInstance, loadError)
	require.True(testInstance, trustList.Contains("sharp"))
	require.True(testInstance, trustList.Contains("esbuild"))
	require.True(testInstance, trustList.Contains("@swc/core"))
	require.False(testInstance, trustList.Contains("left-pad"))
	require.Equal(testInstance, trustList.Len(), len(trustList.Names()))
}

func TestParseTrustListRejectsMalformedYAML(testInstance *testing.T) {
	_, parseError := xref.ParseTrustList([]byte("packages: [unterminated"))
	require.Error(testInstance, parseError)
}

func TestClassify(testInstance *testing.T) {
	builtIn := xref.NewTrustList([]string{"sharp", "esbuild"})
	testCases := []struct {
		name             string
		hookDependencies []string
		projectTrusted   []string
		expectedDefault  []string
		expectedExplicit []string
		expectedBlocked  []string
	}{
		{
			name:             "built_in_wins_over_project_list",
			hookDependencies: []string{"sharp"},
			projectTrusted:   []string{"sharp"},
			expectedDefault:  []string{"sharp"},
			expectedExplicit: []string{},
			expectedBlocked:  []string{},
		},
		{
			name:             "project_trusted",
			hookDependencies: []string{"my-native-addon"},
			projectTrusted:   []string{"my-native-addon"},
			expectedDefault:  []string{},
			expectedExplicit: []string{"my-native-addon"},
			expectedBlocked:  []string{},
		},
		{
			name:             "untrusted_is_blocked",
			hookDependencies: []string{"sketchy-postinstall"},
			expectedDefault:  []string{},
			expectedExplicit: []string{},
			expectedBlocked:  []string{"sketchy-postinstall"},
		},
		{
			name:             "mixed_and_duplicated",
			hookDependencies: []string{"zeta", "sharp", "alpha", "esbuild", "zeta"},
			projectTrusted:   []string{"alpha"},
			expectedDefault:  []string{"esbuild", "sharp"},
			expectedExplicit: []string{"alpha"},
			expectedBlocked:  []string{"zeta"},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			entry := xref.Classify("storefront", testLockHashConstant, testCase.hookDependencies, builtIn, testCase.projectTrusted)
			require.Equal(testInstance, testCase.expectedDefault, entry.DefaultTrusted)
			require.Equal(testInstance, testCase.expectedExplicit, entry.ExplicitTrusted)
			require.Equal(testInstance, testCase.expectedBlocked, entry.Blocked)
			require.Equal(testInstance, testLockHashConstant, entry.LockHash)
		})
	}
}

func TestCrossReferencePartitionsHookDependencies(testInstance *testing.T) {
	projectDirectory := filepath.Join(testInstance.TempDir(), "storefront")
	writeDependency(testInstance, projectDirectory, "sharp", testPostinstallHookConstant)
	writeDependency(testInstance, projectDirectory, "native-thing", testPostinstallHookConstant)
	writeDependency(testInstance, projectDirectory, "sketchy", testPostinstallHookConstant)
	writeDependency(testInstance, projectDirectory, "@acme/bindings", testPostinstallHookConstant)
	writeDependency(testInstance, projectDirectory, "lodash", testPlainManifestConstant)
	writeDependency(testInstance, projectDirectory, "blank-hook", testEmptyHookManifestConstant)
	writeDependency(testInstance, projectDirectory, ".cache", testPostinstallHookConstant)
	require.NoError(testInstance, os.MkdirAll(filepath.Join(projectDirectory, xref.DependencyDirectoryName, "no-manifest"), testDirectoryPermissions))

	crossReferencer := newCrossReferencer(testInstance)
	result, crossReferenceError := crossReferencer.CrossReference(context.Background(), []scanner.ProjectRecord{projectRecord(projectDirectory, "native-thing")}, nil)
	require.NoError(testInstance, crossReferenceError)
	require.Len(testInstance, result.Entries, 1)
	require.Equal(testInstance, 0, result.CacheHits)
	require.Equal(testInstance, 1, result.Computed)

	entry := result.Entries[0]
	require.Equal(testInstance, "storefront", entry.Folder)
	require.Equal(testInstance, []string{"sharp"}, entry.DefaultTrusted)
	require.Equal(testInstance, []string{"native-thing"}, entry.ExplicitTrusted)
	require.Equal(testInstance, []string{"@acme/bindings", "sketchy"}, entry.Blocked)
	require.Equal(testInstance, 1, result.TotalDefaultTrusted)

	seen := map[string]int{}
	for _, list := range [][]string{entry.DefaultTrusted, entry.ExplicitTrusted, entry.Blocked} {
		for _, name := range list {
			seen[name]++
		}
	}
	require.Equal(testInstance, map[string]int{"sharp": 1, "native-thing": 1, "sketchy": 1, "@acme/bindings": 1}, seen)
}

func TestCrossReferenceSkipsProjectsWithoutEntries(testInstance *testing.T) {
	workspace := testInstance.TempDir()
	noManifestDirectory := filepath.Join(workspace, "scratch")
	writeDependency(testInstance, noManifestDirectory, "sketchy", testPostinstallHookConstant)
	noManifest := scanner.DefaultRecord(noManifestDirectory, "scratch")

	noHooksDirectory := filepath.Join(workspace, "docs")
	writeDependency(testInstance, noHooksDirectory, "lodash", testPlainManifestConstant)

	noDependenciesDirectory := filepath.Join(workspace, "empty")
	require.NoError(testInstance, os.MkdirAll(noDependenciesDirectory, testDirectoryPermissions))

	crossReferencer := newCrossReferencer(testInstance)
	records := []scanner.ProjectRecord{noManifest, projectRecord(noHooksDirectory), projectRecord(noDependenciesDirectory)}
	result, crossReferenceError := crossReferencer.CrossReference(context.Background(), records, nil)
	require.NoError(testInstance, crossReferenceError)
	require.Empty(testInstance, result.Entries)
	require.Equal(testInstance, 2, result.Computed)
}

func TestCrossReferenceSkipsProjectWithMalformedManifest(testInstance *testing.T) {
	projectDirectory := filepath.Join(testInstance.TempDir(), "storefront")
	writeDependency(testInstance, projectDirectory, "sketchy", testPostinstallHookConstant)
	require.NoError(testInstance, os.WriteFile(filepath.Join(projectDirectory, projectconfig.ManifestFileName), []byte(`{"name": "storefront", "dependencies": {`), testFilePermissionsConstant))

	projectScanner := scanner.NewScanner(scanner.Options{EnvironmentLookup: func(string) (string, bool) { return "", false }})
	record := projectScanner.ScanProject(context.Background(), projectDirectory)
	require.False(testInstance, record.HasManifest)

	crossReferencer := newCrossReferencer(testInstance)
	result, crossReferenceError := crossReferencer.CrossReference(context.Background(), []scanner.ProjectRecord{record}, nil)
	require.NoError(testInstance, crossReferenceError)
	require.Empty(testInstance, result.Entries)
	require.Zero(testInstance, result.Computed)
	require.Zero(testInstance, result.CacheHits)
}

func TestCrossReferenceReusesEntriesWithUnchangedLockHash(testInstance *testing.T) {
	projectDirectory := filepath.Join(testInstance.TempDir(), "storefront")
	writeDependency(testInstance, projectDirectory, "sketchy", testPostinstallHookConstant)
	record := projectRecord(projectDirectory)

	crossReferencer := newCrossReferencer(testInstance)
	first, firstError := crossReferencer.CrossReference(context.Background(), []scanner.ProjectRecord{record}, nil)
	require.NoError(testInstance, firstError)
	require.Len(testInstance, first.Entries, 1)

	writeDependency(testInstance, projectDirectory, "another-hook", testPostinstallHookConstant)
	previous := entryMap{"storefront": first.Entries[0]}
	second, secondError := crossReferencer.CrossReference(context.Background(), []scanner.ProjectRecord{record}, previous)
	require.NoError(testInstance, secondError)
	require.Equal(testInstance, 1, second.CacheHits)
	require.Equal(testInstance, 0, second.Computed)

	firstBytes, firstMarshalError := json.Marshal(first.Entries[0])
	require.NoError(testInstance, firstMarshalError)
	secondBytes, secondMarshalError := json.Marshal(second.Entries[0])
	require.NoError(testInstance, secondMarshalError)
	require.Equal(testInstance, string(firstBytes), string(secondBytes))

	testCases := []struct {
		name         string
		lockHash     string
		previousHash string
	}{
		{name: "changed_hash", lockHash: "fedcba9876543210", previousHash: testLockHashConstant},
		{name: "missing_hash", lockHash: projectconfig.MissingValueSentinel, previousHash: projectconfig.MissingValueSentinel},
	}
	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			changedRecord := record
			changedRecord.LockHash = testCase.lockHash
			staleEntry := first.Entries[0]
			staleEntry.LockHash = testCase.previousHash
			recomputed, recomputeError := crossReferencer.CrossReference(context.Background(), []scanner.ProjectRecord{changedRecord}, entryMap{"storefront": staleEntry})
			require.NoError(testInstance, recomputeError)
			require.Equal(testInstance, 0, recomputed.CacheHits)
			require.Equal(testInstance, 1, recomputed.Computed)
			require.Equal(testInstance, []string{"another-hook", "sketchy"}, recomputed.Entries[0].Blocked)
		})
	}
}

func TestDependencyWalkerCachesManifestsByResolvedPath(testInstance *testing.T) {
	workspace := testInstance.TempDir()
	sharedDependency := filepath.Join(workspace, "store", "shared-hook")
	require.NoError(testInstance, os.MkdirAll(sharedDependency, testDirectoryPermissions))
	require.NoError(testInstance, os.WriteFile(filepath.Join(sharedDependency, projectconfig.ManifestFileName), []byte(fmt.Sprintf(testPostinstallHookConstant, "shared-hook")), testFilePermissionsConstant))

	for _, project := range []string{"alpha", "bravo"} {
		dependencyRoot := filepath.Join(workspace, project, xref.DependencyDirectoryName)
		require.NoError(testInstance, os.MkdirAll(dependencyRoot, testDirectoryPermissions))
		require.NoError(testInstance, os.Symlink(sharedDependency, filepath.Join(dependencyRoot, "shared-hook")))
	}

	walker, walkerError := xref.NewDependencyWalker(8)
	require.NoError(testInstance, walkerError)
	for _, project := range []string{"alpha", "bravo"} {
		hookDependencies, failures, hookError := walker.HookDependencies(filepath.Join(workspace, project))
		require.NoError(testInstance, hookError)
		require.Empty(testInstance, failures)
		require.Equal(testInstance, []string{"shared-hook"}, hookDependencies)
	}
	require.Equal(testInstance, 1, walker.CachedManifests())
}

func TestDependencyWalkerReportsMalformedManifests(testInstance *testing.T) {
	projectDirectory := filepath.Join(testInstance.TempDir(), "storefront")
	writeDependency(testInstance, projectDirectory, "broken", "{not json %s")

	walker, walkerError := xref.NewDependencyWalker(0)
	require.NoError(testInstance, walkerError)
	hookDependencies, failures, hookError := walker.HookDependencies(projectDirectory)
	require.NoError(testInstance, hookError)
	require.Empty(testInstance, hookDependencies)
	require.Len(testInstance, failures, 1)
	require.Equal(testInstance, "broken", failures[0].Dependency)
}

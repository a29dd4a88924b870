package audit_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/fleetaudit/internal/audit"
	"github.com/temirov/fleetaudit/internal/scanner"
	"github.com/temirov/fleetaudit/internal/snapshot"
	"github.com/temirov/fleetaudit/internal/workerpool"
	"github.com/temirov/fleetaudit/internal/xref"
)

const (
	serviceRootConstant         = "/fleet"
	serviceAlphaFolderConstant  = "alpha"
	serviceBetaFolderConstant   = "beta"
	serviceSnapshotPathConstant = "/fleet/.audit/snapshot.json"
)

type stubDiscoverer struct {
	directories   []string
	receivedRoots []string
}

func (discoverer *stubDiscoverer) DiscoverProjects(roots []string) ([]string, error) {
	discoverer.receivedRoots = append([]string{}, roots...)
	return discoverer.directories, nil
}

type stubBatchScanner struct {
	result    workerpool.BatchResult
	failure   error
	callCount int
}

func (batchScanner *stubBatchScanner) ScanAll(executionContext context.Context, directories []string) (workerpool.BatchResult, error) {
	batchScanner.callCount++
	if batchScanner.failure != nil {
		return workerpool.BatchResult{}, batchScanner.failure
	}
	return batchScanner.result, nil
}

type stubCrossReferencer struct {
	result           xref.Result
	cancel           context.CancelFunc
	receivedPrevious *snapshot.Snapshot
}

func (crossReferencer *stubCrossReferencer) CrossReference(executionContext context.Context, records []scanner.ProjectRecord, previous xref.PreviousEntryLookup) (xref.Result, error) {
	if typed, ok := previous.(*snapshot.Snapshot); ok {
		crossReferencer.receivedPrevious = typed
	}
	if crossReferencer.cancel != nil {
		crossReferencer.cancel()
	}
	return crossReferencer.result, nil
}

type stubSnapshotStore struct {
	previous     *snapshot.Snapshot
	ensureError  error
	saveError    error
	savedEntries []xref.Entry
	saveCount    int
}

func (store *stubSnapshotStore) Load() *snapshot.Snapshot {
	return store.previous
}

func (store *stubSnapshotStore) Save(entries []xref.Entry, totalProjects int) (snapshot.Snapshot, error) {
	store.saveCount++
	if store.saveError != nil {
		return snapshot.Snapshot{}, store.saveError
	}
	store.savedEntries = entries
	return snapshot.Snapshot{Projects: entries, TotalProjects: totalProjects}, nil
}

func (store *stubSnapshotStore) EnsureDirectory() error {
	return store.ensureError
}

func (store *stubSnapshotStore) Path() string {
	return serviceSnapshotPathConstant
}

type stubAuditLog struct {
	records []snapshot.AuditRecord
}

func (auditLog *stubAuditLog) Append(record snapshot.AuditRecord) (snapshot.AuditRecord, error) {
	auditLog.records = append(auditLog.records, record)
	return record, nil
}

type fixedClock struct {
	instant time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.instant
}

type serviceFixture struct {
	discoverer      *stubDiscoverer
	batchScanner    *stubBatchScanner
	crossReferencer *stubCrossReferencer
	snapshotStore   *stubSnapshotStore
	auditLog        *stubAuditLog
}

func newServiceFixture(entries []xref.Entry) *serviceFixture {
	records := []scanner.ProjectRecord{
		scanner.DefaultRecord(serviceRootConstant+"/"+serviceAlphaFolderConstant, serviceAlphaFolderConstant),
		scanner.DefaultRecord(serviceRootConstant+"/"+serviceBetaFolderConstant, serviceBetaFolderConstant),
	}
	return &serviceFixture{
		discoverer: &stubDiscoverer{directories: []string{records[0].Path, records[1].Path}},
		batchScanner: &stubBatchScanner{result: workerpool.BatchResult{
			Records:  records,
			PoolSize: 2,
			Mode:     workerpool.ModeProcessPool,
		}},
		crossReferencer: &stubCrossReferencer{result: xref.Result{Entries: entries, Computed: len(entries)}},
		snapshotStore:   &stubSnapshotStore{},
		auditLog:        &stubAuditLog{},
	}
}

func (fixture *serviceFixture) service() *audit.Service {
	return audit.NewService(audit.ServiceDependencies{
		Discoverer:      fixture.discoverer,
		BatchScanner:    fixture.batchScanner,
		CrossReferencer: fixture.crossReferencer,
		SnapshotStore:   fixture.snapshotStore,
		AuditLog:        fixture.auditLog,
	})
}

func newTestRunContext() *audit.RunContext {
	return audit.NewRunContext(fixedClock{instant: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}, zap.NewNop())
}

func blockedEntry(folder string, blocked ...string) xref.Entry {
	return xref.Entry{Folder: folder, DefaultTrusted: []string{}, ExplicitTrusted: []string{}, Blocked: blocked, LockHash: "-"}
}

func TestServiceRunPersistsSnapshotAndAuditLog(testInstance *testing.T) {
	entries := []xref.Entry{blockedEntry(serviceAlphaFolderConstant, "sketchy")}
	fixture := newServiceFixture(entries)
	runContext := newTestRunContext()

	report, runError := fixture.service().Run(context.Background(), runContext, audit.RunOptions{Roots: []string{serviceRootConstant}})
	require.NoError(testInstance, runError)

	require.Equal(testInstance, []string{serviceRootConstant}, fixture.discoverer.receivedRoots)
	require.False(testInstance, report.Baseline)
	require.Equal(testInstance, runContext.RunID, report.RunID)
	require.Equal(testInstance, serviceSnapshotPathConstant, report.SnapshotPath)
	require.NoError(testInstance, report.SnapshotError)
	require.Equal(testInstance, entries, fixture.snapshotStore.savedEntries)

	require.Len(testInstance, fixture.auditLog.records, 1)
	auditRecord := fixture.auditLog.records[0]
	require.Equal(testInstance, runContext.RunID, auditRecord.RunID)
	require.Equal(testInstance, 2, auditRecord.Projects)
	require.Equal(testInstance, string(workerpool.ModeProcessPool), auditRecord.ScanMode)
	require.False(testInstance, auditRecord.Drift.Baseline)
	require.False(testInstance, auditRecord.Drift.Detected)

	require.EqualValues(testInstance, 2, runContext.Counters.Projects.Load())
	require.EqualValues(testInstance, 1, runContext.Counters.Computed.Load())

	summary := report.Summary()
	require.Equal(testInstance, serviceSnapshotPathConstant, summary.SnapshotPath)
	require.Equal(testInstance, 2, summary.PoolSize)
}

func TestServiceRunInterruptionWritesNothing(testInstance *testing.T) {
	testCases := []struct {
		name    string
		prepare func(fixture *serviceFixture) context.Context
	}{
		{
			name: "scan_interrupted",
			prepare: func(fixture *serviceFixture) context.Context {
				fixture.batchScanner.failure = workerpool.ErrInterrupted
				return context.Background()
			},
		},
		{
			name: "interrupted_during_cross_reference",
			prepare: func(fixture *serviceFixture) context.Context {
				executionContext, cancel := context.WithCancel(context.Background())
				fixture.crossReferencer.cancel = cancel
				return executionContext
			},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(subTest *testing.T) {
			fixture := newServiceFixture([]xref.Entry{blockedEntry(serviceAlphaFolderConstant, "sketchy")})
			executionContext := testCase.prepare(fixture)

			_, runError := fixture.service().Run(executionContext, newTestRunContext(), audit.RunOptions{Roots: []string{serviceRootConstant}})
			require.Error(subTest, runError)

			var interrupted audit.InterruptedError
			require.True(subTest, errors.As(runError, &interrupted))
			require.Equal(subTest, audit.InterruptedExitCode, interrupted.ExitCode())
			require.Zero(subTest, fixture.snapshotStore.saveCount)
			require.Empty(subTest, fixture.auditLog.records)
		})
	}
}

func TestServiceRunPropagatesScanFailures(testInstance *testing.T) {
	fixture := newServiceFixture(nil)
	fixture.batchScanner.failure = workerpool.ErrBatchTimeout

	_, runError := fixture.service().Run(context.Background(), newTestRunContext(), audit.RunOptions{Roots: []string{serviceRootConstant}})
	require.ErrorIs(testInstance, runError, workerpool.ErrBatchTimeout)

	var interrupted audit.InterruptedError
	require.False(testInstance, errors.As(runError, &interrupted))
	require.Zero(testInstance, fixture.snapshotStore.saveCount)
}

func TestServiceRunReadOnlySkipsPersistence(testInstance *testing.T) {
	fixture := newServiceFixture([]xref.Entry{blockedEntry(serviceAlphaFolderConstant, "sketchy")})

	report, runError := fixture.service().Run(context.Background(), newTestRunContext(), audit.RunOptions{
		Roots:    []string{serviceRootConstant},
		ReadOnly: true,
	})
	require.NoError(testInstance, runError)
	require.True(testInstance, report.ReadOnly)
	require.Empty(testInstance, report.SnapshotPath)
	require.Zero(testInstance, fixture.snapshotStore.saveCount)
	require.Empty(testInstance, fixture.auditLog.records)
}

func TestServiceRunDriftHandling(testInstance *testing.T) {
	currentEntries := []xref.Entry{blockedEntry(serviceAlphaFolderConstant, "sketchy", "worse")}
	changedBaseline := &snapshot.Snapshot{Projects: []xref.Entry{blockedEntry(serviceAlphaFolderConstant, "sketchy")}}
	identicalBaseline := &snapshot.Snapshot{Projects: currentEntries}

	testCases := []struct {
		name          string
		previous      *snapshot.Snapshot
		failOnDrift   bool
		expectedError error
		expectedDrift bool
	}{
		{name: "drift_reported_without_failing", previous: changedBaseline, failOnDrift: false, expectedDrift: true},
		{name: "drift_fails_when_requested", previous: changedBaseline, failOnDrift: true, expectedError: audit.ErrDriftDetected, expectedDrift: true},
		{name: "no_drift_against_identical_baseline", previous: identicalBaseline, failOnDrift: true},
		{name: "first_run_is_not_drift", previous: nil, failOnDrift: true},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(subTest *testing.T) {
			fixture := newServiceFixture(currentEntries)
			fixture.snapshotStore.previous = testCase.previous

			report, runError := fixture.service().Run(context.Background(), newTestRunContext(), audit.RunOptions{
				Roots:       []string{serviceRootConstant},
				FailOnDrift: testCase.failOnDrift,
			})
			if testCase.expectedError != nil {
				require.ErrorIs(subTest, runError, testCase.expectedError)
			} else {
				require.NoError(subTest, runError)
			}
			require.Equal(subTest, testCase.previous, fixture.crossReferencer.receivedPrevious)
			require.Equal(subTest, testCase.previous != nil, report.Baseline)
			require.Equal(subTest, testCase.expectedDrift, report.Baseline && report.Drift.Detected())
			require.Equal(subTest, 1, fixture.snapshotStore.saveCount)
			require.Len(subTest, fixture.auditLog.records, 1)
			require.Equal(subTest, testCase.expectedDrift, fixture.auditLog.records[0].Drift.Detected)
		})
	}
}

func TestServiceRunSnapshotFailuresAreNotFatal(testInstance *testing.T) {
	testCases := []struct {
		name             string
		ensureError      error
		saveError        error
		expectedAuditLog int
	}{
		{name: "directory_creation_fails", ensureError: errors.New("read-only filesystem"), expectedAuditLog: 0},
		{name: "save_fails", saveError: errors.New("disk full"), expectedAuditLog: 1},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(subTest *testing.T) {
			fixture := newServiceFixture([]xref.Entry{blockedEntry(serviceAlphaFolderConstant, "sketchy")})
			fixture.snapshotStore.ensureError = testCase.ensureError
			fixture.snapshotStore.saveError = testCase.saveError

			report, runError := fixture.service().Run(context.Background(), newTestRunContext(), audit.RunOptions{Roots: []string{serviceRootConstant}})
			require.NoError(subTest, runError)
			require.Error(subTest, report.SnapshotError)
			require.Empty(subTest, report.Summary().SnapshotPath)
			require.Len(subTest, fixture.auditLog.records, testCase.expectedAuditLog)
		})
	}
}

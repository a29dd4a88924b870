package audit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/fleetaudit/internal/scanner"
	"github.com/temirov/fleetaudit/internal/snapshot"
	"github.com/temirov/fleetaudit/internal/ui"
	pathutils "github.com/temirov/fleetaudit/internal/utils/path"
	"github.com/temirov/fleetaudit/internal/workerpool"
	"github.com/temirov/fleetaudit/internal/xref"
)

const (
	projectsDiscoveredMessageConstant = "projects discovered"
	scanCompletedMessageConstant      = "scan completed"
	crossReferenceMessageConstant     = "cross-reference completed"
	snapshotSaveFailedMessageConstant = "failed to save snapshot"
	auditLogFailedMessageConstant     = "failed to append audit log"
	auditCompletedMessageConstant     = "audit completed"
	rootsFieldConstant                = "roots"
	projectsFieldConstant             = "projects"
	modeFieldConstant                 = "scan_mode"
	poolSizeFieldConstant             = "pool_size"
	fallbacksFieldConstant            = "fallbacks"
	cacheHitsFieldConstant            = "cache_hits"
	computedFieldConstant             = "computed"
	entriesFieldConstant              = "entries"
	driftFieldConstant                = "drift_detected"
	baselineFieldConstant             = "baseline"
	durationFieldConstant             = "duration"
)

// RunOptions captures the per-invocation parameters of an audit run.
type RunOptions struct {
	Roots       []string
	ReadOnly    bool
	FailOnDrift bool
}

// Report is the outcome of one audit run.
type Report struct {
	RunID         string
	Records       []scanner.ProjectRecord
	Batch         workerpool.BatchResult
	CrossRef      xref.Result
	Baseline      bool
	Drift         snapshot.Drift
	Duration      time.Duration
	ReadOnly      bool
	SnapshotPath  string
	SnapshotError error
}

// Summary converts the report into the renderer view model.
func (report Report) Summary() ui.AuditSummary {
	snapshotPath := report.SnapshotPath
	if report.SnapshotError != nil {
		snapshotPath = ""
	}
	return ui.AuditSummary{
		Records:      report.Records,
		Entries:      report.CrossRef.Entries,
		Drift:        report.Drift,
		Baseline:     report.Baseline,
		CacheHits:    report.CrossRef.CacheHits,
		Computed:     report.CrossRef.Computed,
		Fallbacks:    report.Batch.Fallbacks,
		PoolSize:     report.Batch.PoolSize,
		ScanMode:     string(report.Batch.Mode),
		Duration:     report.Duration,
		ReadOnly:     report.ReadOnly,
		SnapshotPath: snapshotPath,
	}
}

// ServiceDependencies bundles the collaborators of a Service.
type ServiceDependencies struct {
	Discoverer      ProjectDiscoverer
	BatchScanner    BatchScanner
	CrossReferencer CrossReferencer
	SnapshotStore   SnapshotStore
	AuditLog        AuditLogWriter
	RootSanitizer   *pathutils.RootPathSanitizer
}

// Service coordinates discovery, scanning, cross-referencing and snapshot persistence.
type Service struct {
	discoverer      ProjectDiscoverer
	batchScanner    BatchScanner
	crossReferencer CrossReferencer
	snapshotStore   SnapshotStore
	auditLog        AuditLogWriter
	rootSanitizer   *pathutils.RootPathSanitizer
}

// NewService constructs a Service using the provided dependencies.
func NewService(dependencies ServiceDependencies) *Service {
	rootSanitizer := dependencies.RootSanitizer
	if rootSanitizer == nil {
		rootSanitizer = pathutils.NewRootPathSanitizer(pathutils.NewHomeExpander())
	}
	return &Service{
		discoverer:      dependencies.Discoverer,
		batchScanner:    dependencies.BatchScanner,
		crossReferencer: dependencies.CrossReferencer,
		snapshotStore:   dependencies.SnapshotStore,
		auditLog:        dependencies.AuditLog,
		rootSanitizer:   rootSanitizer,
	}
}

// Run executes one audit. Interruption returns InterruptedError before any
// state is written. Snapshot and audit log write failures are logged and
// recorded in the report without failing the run.
func (service *Service) Run(executionContext context.Context, runContext *RunContext, options RunOptions) (Report, error) {
	if runContext == nil {
		runContext = NewRunContext(nil, nil)
	}
	logger := runContext.Logger

	roots := options.Roots
	if len(roots) == 0 {
		roots = []string{defaultRootConstant}
	}
	roots = service.rootSanitizer.Sanitize(roots)

	directories, discoveryError := service.discoverer.DiscoverProjects(roots)
	if discoveryError != nil {
		return Report{}, discoveryError
	}
	logger.Debug(projectsDiscoveredMessageConstant, zap.Strings(rootsFieldConstant, roots), zap.Int(projectsFieldConstant, len(directories)))

	batch, scanError := service.batchScanner.ScanAll(executionContext, directories)
	if scanError != nil {
		return Report{}, interruptionOr(executionContext, scanError)
	}
	runContext.Counters.Projects.Add(int64(len(batch.Records)))
	runContext.Counters.Fallbacks.Add(int64(batch.Fallbacks))
	logger.Debug(scanCompletedMessageConstant,
		zap.Int(projectsFieldConstant, len(batch.Records)),
		zap.String(modeFieldConstant, string(batch.Mode)),
		zap.Int(poolSizeFieldConstant, batch.PoolSize),
		zap.Int(fallbacksFieldConstant, batch.Fallbacks),
	)

	previous := service.snapshotStore.Load()
	crossReference, crossReferenceError := service.crossReferencer.CrossReference(executionContext, batch.Records, previous)
	if crossReferenceError != nil {
		return Report{}, interruptionOr(executionContext, crossReferenceError)
	}
	if contextError := executionContext.Err(); contextError != nil {
		return Report{}, InterruptedError{Cause: contextError}
	}
	runContext.Counters.CacheHits.Add(int64(crossReference.CacheHits))
	runContext.Counters.Computed.Add(int64(crossReference.Computed))
	logger.Debug(crossReferenceMessageConstant,
		zap.Int(entriesFieldConstant, len(crossReference.Entries)),
		zap.Int(cacheHitsFieldConstant, crossReference.CacheHits),
		zap.Int(computedFieldConstant, crossReference.Computed),
	)

	report := Report{
		RunID:    runContext.RunID,
		Records:  batch.Records,
		Batch:    batch,
		CrossRef: crossReference,
		Baseline: previous != nil,
		Drift:    snapshot.Diff(crossReference.Entries, previous),
		ReadOnly: options.ReadOnly,
	}

	if !options.ReadOnly {
		service.persist(runContext, &report)
	}
	report.Duration = runContext.Elapsed()

	logger.Info(auditCompletedMessageConstant,
		zap.Int(projectsFieldConstant, len(report.Records)),
		zap.Bool(baselineFieldConstant, report.Baseline),
		zap.Bool(driftFieldConstant, report.Baseline && report.Drift.Detected()),
		zap.Duration(durationFieldConstant, report.Duration),
	)

	if options.FailOnDrift && report.Baseline && report.Drift.Detected() {
		return report, ErrDriftDetected
	}
	return report, nil
}

func (service *Service) persist(runContext *RunContext, report *Report) {
	logger := runContext.Logger
	report.SnapshotPath = service.snapshotStore.Path()

	if ensureError := service.snapshotStore.EnsureDirectory(); ensureError != nil {
		report.SnapshotError = ensureError
		logger.Warn(snapshotSaveFailedMessageConstant, zap.Error(ensureError))
		return
	}
	if _, saveError := service.snapshotStore.Save(report.CrossRef.Entries, len(report.Records)); saveError != nil {
		report.SnapshotError = saveError
		logger.Warn(snapshotSaveFailedMessageConstant, zap.Error(saveError))
	}

	if service.auditLog == nil {
		return
	}
	_, appendError := service.auditLog.Append(snapshot.AuditRecord{
		RunID:          runContext.RunID,
		DurationMillis: runContext.Elapsed().Milliseconds(),
		Projects:       int(runContext.Counters.Projects.Load()),
		CacheHits:      int(runContext.Counters.CacheHits.Load()),
		Computed:       int(runContext.Counters.Computed.Load()),
		Fallbacks:      int(runContext.Counters.Fallbacks.Load()),
		ScanMode:       string(report.Batch.Mode),
		ReadOnly:       report.ReadOnly,
		Drift:          snapshot.Summarize(report.Drift, report.Baseline),
	})
	if appendError != nil {
		logger.Warn(auditLogFailedMessageConstant, zap.Error(appendError))
	}
}

func interruptionOr(executionContext context.Context, failure error) error {
	if errors.Is(failure, workerpool.ErrInterrupted) || executionContext.Err() != nil {
		return InterruptedError{Cause: failure}
	}
	return failure
}

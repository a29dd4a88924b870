package audit

import (
	"context"

	"github.com/temirov/fleetaudit/internal/scanner"
	"github.com/temirov/fleetaudit/internal/snapshot"
	"github.com/temirov/fleetaudit/internal/workerpool"
	"github.com/temirov/fleetaudit/internal/xref"
)

// ProjectDiscoverer finds project directories under the provided roots.
type ProjectDiscoverer interface {
	DiscoverProjects(roots []string) ([]string, error)
}

// BatchScanner scans a batch of project directories.
type BatchScanner interface {
	ScanAll(executionContext context.Context, directories []string) (workerpool.BatchResult, error)
}

// CrossReferencer classifies hook-bearing dependencies of scanned projects.
type CrossReferencer interface {
	CrossReference(executionContext context.Context, records []scanner.ProjectRecord, previous xref.PreviousEntryLookup) (xref.Result, error)
}

// SnapshotStore loads and persists snapshots.
type SnapshotStore interface {
	Load() *snapshot.Snapshot
	Save(entries []xref.Entry, totalProjects int) (snapshot.Snapshot, error)
	EnsureDirectory() error
	Path() string
}

// AuditLogWriter appends run records.
type AuditLogWriter interface {
	Append(record snapshot.AuditRecord) (snapshot.AuditRecord, error)
}

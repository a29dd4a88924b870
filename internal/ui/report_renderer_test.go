package ui_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/fleetaudit/internal/scanner"
	"github.com/temirov/fleetaudit/internal/snapshot"
	"github.com/temirov/fleetaudit/internal/ui"
	"github.com/temirov/fleetaudit/internal/xref"
)

func TestRenderAuditSummary(testInstance *testing.T) {
	storefront := scanner.DefaultRecord("/fleet/storefront", "storefront")
	storefront.AuthReady = true
	admin := scanner.DefaultRecord("/fleet/admin", "admin")
	entries := []xref.Entry{{Folder: "storefront", DefaultTrusted: []string{"sharp"}, ExplicitTrusted: []string{}, Blocked: []string{"sketchy"}, LockHash: "-"}}

	testCases := []struct {
		name             string
		summary          ui.AuditSummary
		expectedContains []string
		unexpected       []string
	}{
		{
			name: "first_run",
			summary: ui.AuditSummary{
				Records:      []scanner.ProjectRecord{storefront, admin},
				Entries:      entries,
				Drift:        snapshot.Diff(entries, nil),
				Computed:     2,
				PoolSize:     2,
				ScanMode:     "process-pool",
				Duration:     1500 * time.Millisecond,
				SnapshotPath: "/fleet/.audit/snapshot.json",
			},
			expectedContains: []string{"2 projects scanned in 1.5s", "storefront", "admin", "ready", "missing", "sketchy", "no previous snapshot", "snapshot written to /fleet/.audit/snapshot.json"},
			unexpected:       []string{"+ storefront"},
		},
		{
			name: "drift_detected",
			summary: ui.AuditSummary{
				Records:  []scanner.ProjectRecord{storefront},
				Entries:  entries,
				Baseline: true,
				Drift: snapshot.Drift{
					Added:   []string{"checkout"},
					Removed: []string{"legacy"},
					Changed: []snapshot.ProjectChange{{Folder: "storefront", Previous: snapshot.TrustCounts{DefaultTrusted: 1}, Current: snapshot.TrustCounts{DefaultTrusted: 1, Blocked: 1}}},
				},
				ReadOnly: true,
			},
			expectedContains: []string{"+ checkout", "- legacy", "~ storefront  default 1→1  explicit 0→0  blocked 0→1", "read-only run"},
		},
		{
			name:             "empty_fleet",
			summary:          ui.AuditSummary{Baseline: true},
			expectedContains: []string{"no projects found", "no dependencies declare lifecycle hooks", "no drift since previous snapshot"},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			rendered := ui.RenderAuditSummary(testCase.summary)
			for _, expected := range testCase.expectedContains {
				require.Contains(testInstance, rendered, expected)
			}
			for _, unexpected := range testCase.unexpected {
				require.False(testInstance, strings.Contains(rendered, unexpected))
			}
		})
	}
}

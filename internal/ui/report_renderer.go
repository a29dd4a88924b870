package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/temirov/fleetaudit/internal/scanner"
	"github.com/temirov/fleetaudit/internal/snapshot"
	"github.com/temirov/fleetaudit/internal/xref"
)

const (
	titleTextConstant               = "fleet-audit"
	projectsHeadingConstant         = "Projects"
	trustHeadingConstant            = "Lifecycle hooks"
	driftHeadingConstant            = "Drift"
	noProjectsMessageConstant       = "no projects found"
	noHooksMessageConstant          = "no dependencies declare lifecycle hooks"
	noBaselineMessageConstant       = "no previous snapshot, this run is the baseline"
	noDriftMessageConstant          = "no drift since previous snapshot"
	readOnlyMessageConstant         = "read-only run, snapshot not written"
	snapshotWrittenTemplateConstant = "snapshot written to %s"
	summaryTemplateConstant         = "%d projects scanned in %s (%s, %d workers, %d fallbacks)  cache %d/%d"
	changeTemplateConstant          = "%s  default %d→%d  explicit %d→%d  blocked %d→%d"
	countsTemplateConstant          = "%d"
	authReadyLabelConstant          = "ready"
	authMissingLabelConstant        = "missing"
	addedMarkerConstant             = "+ "
	removedMarkerConstant           = "- "
	changedMarkerConstant           = "~ "
	listSeparatorConstant           = ", "
	folderColumnWidthConstant       = 24
	nameColumnWidthConstant         = 28
	lockfileColumnWidthConstant     = 10
	registryColumnWidthConstant     = 34
	countColumnWidthConstant        = 10
	separatorWidthConstant          = 96
	durationRoundingConstant        = time.Millisecond
)

var (
	accentColor  = lipgloss.Color("#0EA5E9")
	dimColor     = lipgloss.Color("#6B7280")
	successColor = lipgloss.Color("#22C55E")
	dangerColor  = lipgloss.Color("#EF4444")
	warningColor = lipgloss.Color("#F59E0B")

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	headingStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(dimColor)
	passStyle      = lipgloss.NewStyle().Foreground(successColor)
	failStyle      = lipgloss.NewStyle().Foreground(dangerColor)
	warnStyle      = lipgloss.NewStyle().Foreground(warningColor)
	separatorLine  = dimStyle.Render(strings.Repeat("─", separatorWidthConstant))
	folderColumn   = lipgloss.NewStyle().Width(folderColumnWidthConstant)
	nameColumn     = lipgloss.NewStyle().Width(nameColumnWidthConstant)
	lockfileColumn = lipgloss.NewStyle().Width(lockfileColumnWidthConstant)
	registryColumn = lipgloss.NewStyle().Width(registryColumnWidthConstant)
	countColumn    = lipgloss.NewStyle().Width(countColumnWidthConstant)
)

// AuditSummary is the view model for one audit run.
type AuditSummary struct {
	Records      []scanner.ProjectRecord
	Entries      []xref.Entry
	Drift        snapshot.Drift
	Baseline     bool
	CacheHits    int
	Computed     int
	Fallbacks    int
	PoolSize     int
	ScanMode     string
	Duration     time.Duration
	ReadOnly     bool
	SnapshotPath string
}

// RenderAuditSummary renders the project table, the hook classification and the drift section.
func RenderAuditSummary(summary AuditSummary) string {
	var builder strings.Builder

	builder.WriteString(titleStyle.Render(titleTextConstant))
	builder.WriteString("  ")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(summaryTemplateConstant,
		len(summary.Records),
		summary.Duration.Round(durationRoundingConstant),
		summary.ScanMode,
		summary.PoolSize,
		summary.Fallbacks,
		summary.CacheHits,
		summary.CacheHits+summary.Computed,
	)))
	builder.WriteString("\n")
	builder.WriteString(separatorLine)
	builder.WriteString("\n")

	writeProjects(&builder, summary.Records)
	writeTrust(&builder, summary.Entries)
	writeDrift(&builder, summary)

	builder.WriteString(separatorLine)
	builder.WriteString("\n")
	if summary.ReadOnly {
		builder.WriteString(dimStyle.Render(readOnlyMessageConstant))
	} else if len(summary.SnapshotPath) > 0 {
		builder.WriteString(dimStyle.Render(fmt.Sprintf(snapshotWrittenTemplateConstant, summary.SnapshotPath)))
	}
	builder.WriteString("\n")
	return builder.String()
}

func writeProjects(builder *strings.Builder, records []scanner.ProjectRecord) {
	builder.WriteString(headingStyle.Render(projectsHeadingConstant))
	builder.WriteString("\n")
	if len(records) == 0 {
		builder.WriteString(dimStyle.Render(noProjectsMessageConstant))
		builder.WriteString("\n\n")
		return
	}

	builder.WriteString(dimStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		folderColumn.Render("folder"),
		nameColumn.Render("name"),
		lockfileColumn.Render("lockfile"),
		registryColumn.Render("registry"),
		"auth",
	)))
	builder.WriteString("\n")
	for _, record := range records {
		authLabel := failStyle.Render(authMissingLabelConstant)
		if record.AuthReady {
			authLabel = passStyle.Render(authReadyLabelConstant)
		}
		builder.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			folderColumn.Render(truncate(record.Folder, folderColumnWidthConstant)),
			nameColumn.Render(truncate(record.Name, nameColumnWidthConstant)),
			lockfileColumn.Render(string(record.LockfileKind)),
			registryColumn.Render(truncate(record.Registry, registryColumnWidthConstant)),
			authLabel,
		))
		builder.WriteString("\n")
	}
	builder.WriteString("\n")
}

func writeTrust(builder *strings.Builder, entries []xref.Entry) {
	builder.WriteString(headingStyle.Render(trustHeadingConstant))
	builder.WriteString("\n")
	if len(entries) == 0 {
		builder.WriteString(dimStyle.Render(noHooksMessageConstant))
		builder.WriteString("\n\n")
		return
	}

	builder.WriteString(dimStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		folderColumn.Render("folder"),
		countColumn.Render("default"),
		countColumn.Render("explicit"),
		countColumn.Render("blocked"),
		"blocked packages",
	)))
	builder.WriteString("\n")
	for _, entry := range entries {
		blockedCount := passStyle.Render(fmt.Sprintf(countsTemplateConstant, len(entry.Blocked)))
		if len(entry.Blocked) > 0 {
			blockedCount = failStyle.Render(fmt.Sprintf(countsTemplateConstant, len(entry.Blocked)))
		}
		builder.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			folderColumn.Render(truncate(entry.Folder, folderColumnWidthConstant)),
			countColumn.Render(fmt.Sprintf(countsTemplateConstant, len(entry.DefaultTrusted))),
			countColumn.Render(fmt.Sprintf(countsTemplateConstant, len(entry.ExplicitTrusted))),
			countColumn.Render(blockedCount),
			failStyle.Render(strings.Join(entry.Blocked, listSeparatorConstant)),
		))
		builder.WriteString("\n")
	}
	builder.WriteString("\n")
}

func writeDrift(builder *strings.Builder, summary AuditSummary) {
	builder.WriteString(headingStyle.Render(driftHeadingConstant))
	builder.WriteString("\n")
	if !summary.Baseline {
		builder.WriteString(dimStyle.Render(noBaselineMessageConstant))
		builder.WriteString("\n")
		return
	}
	if !summary.Drift.Detected() {
		builder.WriteString(passStyle.Render(noDriftMessageConstant))
		builder.WriteString("\n")
		return
	}

	for _, folder := range summary.Drift.Added {
		builder.WriteString(warnStyle.Render(addedMarkerConstant + folder))
		builder.WriteString("\n")
	}
	for _, folder := range summary.Drift.Removed {
		builder.WriteString(dimStyle.Render(removedMarkerConstant + folder))
		builder.WriteString("\n")
	}
	for _, change := range summary.Drift.Changed {
		builder.WriteString(warnStyle.Render(changedMarkerConstant + fmt.Sprintf(changeTemplateConstant,
			change.Folder,
			change.Previous.DefaultTrusted, change.Current.DefaultTrusted,
			change.Previous.ExplicitTrusted, change.Current.ExplicitTrusted,
			change.Previous.Blocked, change.Current.Blocked,
		)))
		builder.WriteString("\n")
	}
}

func truncate(value string, width int) string {
	runes := []rune(value)
	if len(runes) < width {
		return value
	}
	return string(runes[:width-2]) + "…"
}

package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	// AuditLogFileName is the append-only run log inside the state directory.
	AuditLogFileName = "audit.log"

	auditLogOpenErrorTemplateConstant   = "failed to open audit log %s: %w"
	auditLogWriteErrorTemplateConstant  = "failed to append to audit log %s: %w"
	auditLogEncodeErrorTemplateConstant = "failed to encode audit log record: %w"
)

// DriftSummary condenses a Drift for the audit log.
type DriftSummary struct {
	Baseline bool `json:"baseline"`
	Added    int  `json:"added"`
	Removed  int  `json:"removed"`
	Changed  int  `json:"changed"`
	Detected bool `json:"detected"`
}

// Summarize condenses drift. baseline reports whether a previous snapshot existed.
func Summarize(drift Drift, baseline bool) DriftSummary {
	return DriftSummary{
		Baseline: baseline,
		Added:    len(drift.Added),
		Removed:  len(drift.Removed),
		Changed:  len(drift.Changed),
		Detected: baseline && drift.Detected(),
	}
}

// AuditRecord is one line of the audit log.
type AuditRecord struct {
	RunID          string       `json:"runId"`
	Timestamp      string       `json:"timestamp"`
	DurationMillis int64        `json:"durationMs"`
	Projects       int          `json:"projects"`
	CacheHits      int          `json:"cacheHits"`
	Computed       int          `json:"computed"`
	Fallbacks      int          `json:"fallbacks"`
	ScanMode       string       `json:"scanMode"`
	ReadOnly       bool         `json:"readOnly"`
	Drift          DriftSummary `json:"drift"`
}

// AuditLog appends run records as JSON lines.
type AuditLog struct {
	path  string
	clock func() time.Time
}

// NewAuditLog creates an AuditLog in the state directory under root.
func NewAuditLog(root string, clock func() time.Time) *AuditLog {
	if clock == nil {
		clock = time.Now
	}
	return &AuditLog{path: filepath.Join(root, DirectoryName, AuditLogFileName), clock: clock}
}

// Path returns the log file path.
func (auditLog *AuditLog) Path() string {
	return auditLog.path
}

// Append writes record as a single line, filling a missing run id and timestamp.
func (auditLog *AuditLog) Append(record AuditRecord) (AuditRecord, error) {
	if len(record.RunID) == 0 {
		record.RunID = uuid.NewString()
	}
	if len(record.Timestamp) == 0 {
		record.Timestamp = auditLog.clock().Format(time.RFC3339)
	}

	encoded, encodeError := json.Marshal(record)
	if encodeError != nil {
		return AuditRecord{}, fmt.Errorf(auditLogEncodeErrorTemplateConstant, encodeError)
	}
	if mkdirError := os.MkdirAll(filepath.Dir(auditLog.path), directoryPermissionsConstant); mkdirError != nil {
		return AuditRecord{}, fmt.Errorf(auditLogOpenErrorTemplateConstant, auditLog.path, mkdirError)
	}

	logFile, openError := os.OpenFile(auditLog.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePermissionsConstant)
	if openError != nil {
		return AuditRecord{}, fmt.Errorf(auditLogOpenErrorTemplateConstant, auditLog.path, openError)
	}
	defer logFile.Close()

	if _, writeError := logFile.Write(append(encoded, '\n')); writeError != nil {
		return AuditRecord{}, fmt.Errorf(auditLogWriteErrorTemplateConstant, auditLog.path, writeError)
	}
	return record, nil
}

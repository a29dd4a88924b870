// Package audit runs a fleet audit: it discovers sibling projects, scans them
// through the worker pool, cross-references lifecycle hooks against the trust
// lists, diffs the result with the previous snapshot and persists the new one.
//
// It exposes CommandBuilder for the audit Cobra command, WorkerCommandBuilder
// for the hidden scan-worker subcommand, and Service for driving a run
// programmatically.
package audit

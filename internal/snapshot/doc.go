// Package snapshot persists cross-reference results between runs and reports
// drift against the previous run. The snapshot lives at .audit/snapshot.json
// under the snapshot root and is replaced atomically; an append-only
// .audit/audit.log records one JSON line per run.
package snapshot

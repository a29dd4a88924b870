// Package execshell provides structured helpers for invoking external tools.
//
// ShellExecutor wraps a CommandRunner with zap logging and lifecycle
// observers. OSCommandRunner is the default os/exec backed runner. The audit
// uses it to delegate package-manager operations to bun and to talk to the
// platform secret-store command line tools.
package execshell

// Package workerpool fans project scans out to worker processes.
//
// The Coordinator spawns up to min(CPUs, jobs, 8) workers that speak a
// newline-delimited JSON protocol over their standard streams. Each worker
// announces itself with a ready message and is then handed one scan job at a
// time until a shutdown message is sent. Results are placed by job id so the
// returned slice always follows input order. A worker error triggers one
// in-process retry of the affected job; malformed messages, the batch timeout
// and context cancellation abort the whole batch and kill every worker.
package workerpool

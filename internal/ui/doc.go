// Package ui provides helpers for formatting human-readable console output.
//
// It turns execshell lifecycle events into concise log lines and renders the
// audit summary and drift tables with lipgloss.
package ui

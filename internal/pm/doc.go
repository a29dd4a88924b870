// Package pm runs the external package manager across every discovered project.
//
// It provides CommandBuilder for the pm command group, an Executor that
// invokes bun outdated, bun update and bun info per project through the
// shell executor, and the configuration helpers for the pm section.
package pm

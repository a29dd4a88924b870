// Package projectconfig reads the per-project configuration files that feed a
// project scan: the package.json manifest, the bun lockfile, bunfig.toml,
// dotenv files and .npmrc.
//
// Readers never fail on absent files. A malformed file yields a value with
// Parsed unset and default fields alongside a descriptive error, so callers can
// degrade to defaults and decide whether to log.
package projectconfig

// Package xref cross-references the installed dependencies of each project
// against the built-in and project-declared trust lists. Every dependency that
// declares an install lifecycle hook lands in exactly one of the
// defaultTrusted, explicitTrusted or blocked lists of its project's Entry.
package xref

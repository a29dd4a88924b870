package snapshot

import "github.com/temirov/fleetaudit/internal/xref"

// TrustCounts holds the sizes of an entry's three trust lists.
type TrustCounts struct {
	DefaultTrusted  int `json:"defaultTrusted"`
	ExplicitTrusted int `json:"explicitTrusted"`
	Blocked         int `json:"blocked"`
}

// CountsOf returns the list sizes of entry.
func CountsOf(entry xref.Entry) TrustCounts {
	return TrustCounts{
		DefaultTrusted:  len(entry.DefaultTrusted),
		ExplicitTrusted: len(entry.ExplicitTrusted),
		Blocked:         len(entry.Blocked),
	}
}

// ProjectChange describes a project whose trust list sizes moved.
type ProjectChange struct {
	Folder   string      `json:"folder"`
	Previous TrustCounts `json:"previous"`
	Current  TrustCounts `json:"current"`
}

// Drift partitions projects by how they differ from the previous snapshot.
type Drift struct {
	Added     []string        `json:"added"`
	Removed   []string        `json:"removed"`
	Changed   []ProjectChange `json:"changed"`
	Unchanged []string        `json:"unchanged"`
}

// Detected reports whether any project was added, removed or changed.
func (drift Drift) Detected() bool {
	return len(drift.Added)+len(drift.Removed)+len(drift.Changed) > 0
}

// Diff compares current entries with previous by folder. A nil previous is an
// empty baseline. Added, changed and unchanged follow current order; removed
// follows previous order.
func Diff(current []xref.Entry, previous *Snapshot) Drift {
	drift := Drift{Added: []string{}, Removed: []string{}, Changed: []ProjectChange{}, Unchanged: []string{}}

	previousByFolder := map[string]xref.Entry{}
	var previousProjects []xref.Entry
	if previous != nil {
		previousProjects = previous.Projects
	}
	for _, entry := range previousProjects {
		previousByFolder[entry.Folder] = entry
	}

	currentFolders := make(map[string]struct{}, len(current))
	for _, entry := range current {
		currentFolders[entry.Folder] = struct{}{}
		previousEntry, existed := previousByFolder[entry.Folder]
		if !existed {
			drift.Added = append(drift.Added, entry.Folder)
			continue
		}
		previousCounts := CountsOf(previousEntry)
		currentCounts := CountsOf(entry)
		if previousCounts != currentCounts {
			drift.Changed = append(drift.Changed, ProjectChange{Folder: entry.Folder, Previous: previousCounts, Current: currentCounts})
			continue
		}
		drift.Unchanged = append(drift.Unchanged, entry.Folder)
	}

	for _, entry := range previousProjects {
		if _, stillPresent := currentFolders[entry.Folder]; !stillPresent {
			drift.Removed = append(drift.Removed, entry.Folder)
		}
	}
	return drift
}

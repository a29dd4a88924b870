package snapshot

import (
	"github.com/temirov/fleetaudit/internal/xref"
)

// Snapshot is the persisted cross-reference state of one run.
type Snapshot struct {
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp           int64        `json:"timestamp"`
	Date                string       `json:"date"`
	Timezone            string       `json:"timezone"`
	Projects            []xref.Entry `json:"projects"`
	TotalDefaultTrusted int          `json:"totalDefaultTrusted"`
	TotalProjects       int          `json:"totalProjects"`
}

// Entry returns the project entry for folder.
func (snapshot *Snapshot) Entry(folder string) (xref.Entry, bool) {
	if snapshot == nil {
		return xref.Entry{}, false
	}
	for _, entry := range snapshot.Projects {
		if entry.Folder == folder {
			return entry, true
		}
	}
	return xref.Entry{}, false
}

package snapshot

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/temirov/fleetaudit/internal/xref"
)

const (
	// DirectoryName is the state directory created under the snapshot root.
	DirectoryName = ".audit"
	// FileName is the snapshot document name.
	FileName = "snapshot.json"

	directoryPermissionsConstant         = 0o755
	filePermissionsConstant              = 0o644
	temporaryPatternConstant             = ".snapshot-*.tmp"
	localZoneNameConstant                = "Local"
	zoneInfoMarkerConstant               = "zoneinfo/"
	localTimeLinkConstant                = "/etc/localtime"
	timezoneVariableConstant             = "TZ"
	createDirectoryErrorTemplateConstant = "failed to create snapshot directory %s: %w"
	encodeErrorTemplateConstant          = "failed to encode snapshot: %w"
	writeErrorTemplateConstant           = "failed to write snapshot %s: %w"
	schemaErrorTemplateConstant          = "snapshot schema validation failed: %s"
	ignoredSnapshotMessageConstant       = "ignoring unusable snapshot"
	snapshotSavedMessageConstant         = "snapshot saved"
	pathFieldConstant                    = "path"
	projectsFieldConstant                = "projects"
)

//go:embed snapshot_schema.json
var snapshotSchemaContent []byte

var snapshotSchema = gojsonschema.NewBytesLoader(snapshotSchemaContent)

// StoreOptions configures a Store.
type StoreOptions struct {
	Logger *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Timezone overrides the detected IANA zone name.
	Timezone string
}

// Store reads and writes the snapshot under a root directory.
type Store struct {
	root     string
	logger   *zap.Logger
	clock    func() time.Time
	timezone string
}

// NewStore creates a Store rooted at root.
func NewStore(root string, options StoreOptions) *Store {
	store := &Store{root: root, logger: options.Logger, clock: options.Clock, timezone: options.Timezone}
	if store.logger == nil {
		store.logger = zap.NewNop()
	}
	if store.clock == nil {
		store.clock = time.Now
	}
	if len(store.timezone) == 0 {
		store.timezone = DetectTimezone()
	}
	return store
}

// Directory returns the state directory path.
func (store *Store) Directory() string {
	return filepath.Join(store.root, DirectoryName)
}

// Path returns the snapshot file path.
func (store *Store) Path() string {
	return filepath.Join(store.Directory(), FileName)
}

// EnsureDirectory creates the state directory.
func (store *Store) EnsureDirectory() error {
	if mkdirError := os.MkdirAll(store.Directory(), directoryPermissionsConstant); mkdirError != nil {
		return fmt.Errorf(createDirectoryErrorTemplateConstant, store.Directory(), mkdirError)
	}
	return nil
}

// Build assembles a Snapshot stamped with the store clock and timezone.
func (store *Store) Build(entries []xref.Entry, totalProjects int) Snapshot {
	now := store.clock()
	projects := entries
	if projects == nil {
		projects = []xref.Entry{}
	}
	totalDefaultTrusted := 0
	for _, entry := range projects {
		totalDefaultTrusted += len(entry.DefaultTrusted)
	}
	return Snapshot{
		Timestamp:           now.UnixMilli(),
		Date:                now.Format(time.RFC3339),
		Timezone:            store.timezone,
		Projects:            projects,
		TotalDefaultTrusted: totalDefaultTrusted,
		TotalProjects:       totalProjects,
	}
}

// Save writes a new snapshot atomically and returns it.
func (store *Store) Save(entries []xref.Entry, totalProjects int) (Snapshot, error) {
	snapshot := store.Build(entries, totalProjects)
	if ensureError := store.EnsureDirectory(); ensureError != nil {
		return Snapshot{}, ensureError
	}

	encoded, encodeError := json.MarshalIndent(snapshot, "", "  ")
	if encodeError != nil {
		return Snapshot{}, fmt.Errorf(encodeErrorTemplateConstant, encodeError)
	}
	if writeError := writeFileAtomic(store.Path(), append(encoded, '\n')); writeError != nil {
		return Snapshot{}, fmt.Errorf(writeErrorTemplateConstant, store.Path(), writeError)
	}
	store.logger.Debug(snapshotSavedMessageConstant, zap.String(pathFieldConstant, store.Path()), zap.Int(projectsFieldConstant, len(snapshot.Projects)))
	return snapshot, nil
}

// Load reads the store's snapshot. See LoadFrom.
func (store *Store) Load() *Snapshot {
	return store.LoadFrom(store.Path())
}

// LoadFrom reads a snapshot from path. Absent, unreadable, malformed and
// schema-invalid documents all yield nil: there is no baseline.
func (store *Store) LoadFrom(path string) *Snapshot {
	snapshot, loadError := readSnapshot(path)
	if loadError != nil {
		if !errors.Is(loadError, fs.ErrNotExist) {
			store.logger.Warn(ignoredSnapshotMessageConstant, zap.String(pathFieldConstant, path), zap.Error(loadError))
		}
		return nil
	}
	return snapshot
}

func readSnapshot(path string) (*Snapshot, error) {
	contents, readError := os.ReadFile(path)
	if readError != nil {
		return nil, readError
	}

	validation, validationError := gojsonschema.Validate(snapshotSchema, gojsonschema.NewBytesLoader(contents))
	if validationError != nil {
		return nil, validationError
	}
	if !validation.Valid() {
		descriptions := make([]string, 0, len(validation.Errors()))
		for _, resultError := range validation.Errors() {
			descriptions = append(descriptions, resultError.String())
		}
		return nil, fmt.Errorf(schemaErrorTemplateConstant, strings.Join(descriptions, "; "))
	}

	var snapshot Snapshot
	if decodeError := json.Unmarshal(contents, &snapshot); decodeError != nil {
		return nil, decodeError
	}
	return &snapshot, nil
}

// writeFileAtomic writes to a temporary file in the target directory, syncs it
// and renames it over path.
func writeFileAtomic(path string, contents []byte) error {
	temporaryFile, createError := os.CreateTemp(filepath.Dir(path), temporaryPatternConstant)
	if createError != nil {
		return createError
	}
	temporaryPath := temporaryFile.Name()
	cleanup := func() {
		_ = os.Remove(temporaryPath)
	}

	if _, writeError := temporaryFile.Write(contents); writeError != nil {
		_ = temporaryFile.Close()
		cleanup()
		return writeError
	}
	if syncError := temporaryFile.Sync(); syncError != nil {
		_ = temporaryFile.Close()
		cleanup()
		return syncError
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		cleanup()
		return closeError
	}
	if chmodError := os.Chmod(temporaryPath, filePermissionsConstant); chmodError != nil {
		cleanup()
		return chmodError
	}
	if renameError := os.Rename(temporaryPath, path); renameError != nil {
		cleanup()
		return renameError
	}
	return nil
}

// DetectTimezone returns the IANA name of the local zone, falling back to the
// TZ variable, the /etc/localtime link target and finally UTC.
func DetectTimezone() string {
	if zoneName := time.Local.String(); zoneName != localZoneNameConstant && len(zoneName) > 0 {
		return zoneName
	}
	if zoneName := strings.TrimPrefix(os.Getenv(timezoneVariableConstant), ":"); len(zoneName) > 0 {
		return zoneName
	}
	if linkTarget, linkError := os.Readlink(localTimeLinkConstant); linkError == nil {
		if markerIndex := strings.Index(linkTarget, zoneInfoMarkerConstant); markerIndex >= 0 {
			return linkTarget[markerIndex+len(zoneInfoMarkerConstant):]
		}
	}
	return time.UTC.String()
}

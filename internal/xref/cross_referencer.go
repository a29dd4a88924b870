package xref

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/fleetaudit/internal/projectconfig"
	"github.com/temirov/fleetaudit/internal/scanner"
)

const (
	walkFailedMessageConstant         = "failed to inspect installed dependencies"
	cacheHitMessageConstant           = "reusing cross-reference entry"
	dependencyFailureMessageConstant  = "skipping unreadable dependency manifest"
	crossReferenceDoneMessageConstant = "cross-reference complete"
	folderFieldConstant               = "folder"
	dependencyFieldConstant           = "dependency"
	cacheHitsFieldConstant            = "cache_hits"
	computedFieldConstant             = "computed"
	entriesFieldConstant              = "entries"
)

// Entry is the trust classification of one project's hook-bearing dependencies.
// The three lists are sorted and disjoint.
type Entry struct {
	Folder          string   `json:"folder"`
	DefaultTrusted  []string `json:"defaultTrusted"`
	ExplicitTrusted []string `json:"explicitTrusted"`
	Blocked         []string `json:"blocked"`
	LockHash        string   `json:"lockHash"`
}

// HookDependencyCount is the size of the classified set.
func (entry Entry) HookDependencyCount() int {
	return len(entry.DefaultTrusted) + len(entry.ExplicitTrusted) + len(entry.Blocked)
}

// PreviousEntryLookup exposes entries from a prior run.
type PreviousEntryLookup interface {
	Entry(folder string) (Entry, bool)
}

// Result is the outcome of CrossReference.
type Result struct {
	Entries             []Entry
	CacheHits           int
	Computed            int
	TotalDefaultTrusted int
}

// Options configures a CrossReferencer.
type Options struct {
	Logger *zap.Logger
	// TrustList defaults to the built-in list.
	TrustList         *TrustList
	ManifestCacheSize int
	Concurrency       int
	Verbose           bool
}

// CrossReferencer classifies the hook-bearing dependencies of scanned projects.
type CrossReferencer struct {
	logger      *zap.Logger
	trustList   TrustList
	walker      *DependencyWalker
	concurrency int
	verbose     bool
}

// NewCrossReferencer constructs a CrossReferencer.
func NewCrossReferencer(options Options) (*CrossReferencer, error) {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var trustList TrustList
	if options.TrustList != nil {
		trustList = *options.TrustList
	} else {
		defaultList, trustListError := DefaultTrustList()
		if trustListError != nil {
			return nil, trustListError
		}
		trustList = defaultList
	}

	walker, walkerError := NewDependencyWalker(options.ManifestCacheSize)
	if walkerError != nil {
		return nil, walkerError
	}

	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	return &CrossReferencer{
		logger:      logger,
		trustList:   trustList,
		walker:      walker,
		concurrency: concurrency,
		verbose:     options.Verbose,
	}, nil
}

// Classify partitions hook-bearing dependency names. The built-in list takes
// precedence over the project's own trusted list.
func Classify(folder string, lockHash string, hookDependencies []string, builtIn TrustList, projectTrusted []string) Entry {
	declared := make(map[string]struct{}, len(projectTrusted))
	for _, name := range projectTrusted {
		declared[name] = struct{}{}
	}

	entry := Entry{
		Folder:          folder,
		DefaultTrusted:  []string{},
		ExplicitTrusted: []string{},
		Blocked:         []string{},
		LockHash:        lockHash,
	}
	seen := make(map[string]struct{}, len(hookDependencies))
	for _, name := range hookDependencies {
		if _, duplicate := seen[name]; duplicate {
			continue
		}
		seen[name] = struct{}{}

		if builtIn.Contains(name) {
			entry.DefaultTrusted = append(entry.DefaultTrusted, name)
			continue
		}
		if _, trusted := declared[name]; trusted {
			entry.ExplicitTrusted = append(entry.ExplicitTrusted, name)
			continue
		}
		entry.Blocked = append(entry.Blocked, name)
	}
	sort.Strings(entry.DefaultTrusted)
	sort.Strings(entry.ExplicitTrusted)
	sort.Strings(entry.Blocked)
	return entry
}

// CrossReference computes entries for records in input order. A previous entry
// with the same folder and an equal, known lockfile hash is reused verbatim.
// Projects without a manifest or without hook-bearing dependencies produce no entry.
func (crossReferencer *CrossReferencer) CrossReference(executionContext context.Context, records []scanner.ProjectRecord, previous PreviousEntryLookup) (Result, error) {
	slots := make([]*Entry, len(records))
	var cacheHits atomic.Int32
	var computed atomic.Int32

	group, groupContext := errgroup.WithContext(executionContext)
	group.SetLimit(crossReferencer.concurrency)
	for recordIndex, record := range records {
		if !record.HasManifest {
			continue
		}
		if reused, found := reusableEntry(previous, record); found {
			crossReferencer.logger.Debug(cacheHitMessageConstant, zap.String(folderFieldConstant, record.Folder))
			cacheHits.Add(1)
			slots[recordIndex] = &reused
			continue
		}

		group.Go(func() error {
			if contextError := groupContext.Err(); contextError != nil {
				return contextError
			}
			entry := crossReferencer.computeEntry(record)
			computed.Add(1)
			if entry.HookDependencyCount() > 0 {
				slots[recordIndex] = &entry
			}
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil {
		return Result{}, waitError
	}

	result := Result{Entries: []Entry{}, CacheHits: int(cacheHits.Load()), Computed: int(computed.Load())}
	for _, entry := range slots {
		if entry == nil {
			continue
		}
		result.Entries = append(result.Entries, *entry)
		result.TotalDefaultTrusted += len(entry.DefaultTrusted)
	}
	crossReferencer.logger.Debug(crossReferenceDoneMessageConstant,
		zap.Int(entriesFieldConstant, len(result.Entries)),
		zap.Int(cacheHitsFieldConstant, result.CacheHits),
		zap.Int(computedFieldConstant, result.Computed),
	)
	return result, nil
}

func reusableEntry(previous PreviousEntryLookup, record scanner.ProjectRecord) (Entry, bool) {
	if previous == nil || record.LockHash == projectconfig.MissingValueSentinel || len(record.LockHash) == 0 {
		return Entry{}, false
	}
	entry, found := previous.Entry(record.Folder)
	if !found || entry.LockHash != record.LockHash {
		return Entry{}, false
	}
	return entry, true
}

// computeEntry walks the project's dependencies. An unreadable dependency
// directory degrades to an entry without hook-bearing dependencies.
func (crossReferencer *CrossReferencer) computeEntry(record scanner.ProjectRecord) Entry {
	hookDependencies, failures, walkError := crossReferencer.walker.HookDependencies(record.Path)
	if walkError != nil {
		crossReferencer.logger.Warn(walkFailedMessageConstant, zap.String(folderFieldConstant, record.Folder), zap.Error(walkError))
	}
	if crossReferencer.verbose {
		for _, failure := range failures {
			crossReferencer.logger.Debug(dependencyFailureMessageConstant,
				zap.String(folderFieldConstant, record.Folder),
				zap.String(dependencyFieldConstant, failure.Dependency),
				zap.Error(failure.Cause),
			)
		}
	}
	return Classify(record.Folder, record.LockHash, hookDependencies, crossReferencer.trustList, record.TrustedDependencies)
}

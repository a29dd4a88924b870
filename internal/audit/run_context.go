package audit

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const runIdentifierFieldConstant = "run_id"

// Clock abstracts time-dependent functionality for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the standard library.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// RunCounters accumulates per-run metrics.
type RunCounters struct {
	Projects  atomic.Int64
	CacheHits atomic.Int64
	Computed  atomic.Int64
	Fallbacks atomic.Int64
}

// RunContext holds the state of one audit run. It is created when the run
// starts and discarded when it ends.
type RunContext struct {
	RunID     string
	StartedAt time.Time
	Clock     Clock
	Logger    *zap.Logger
	Counters  *RunCounters
}

// NewRunContext starts a run with a fresh identifier. The logger is tagged with the run id.
func NewRunContext(clock Clock, logger *zap.Logger) *RunContext {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	return &RunContext{
		RunID:     runID,
		StartedAt: clock.Now(),
		Clock:     clock,
		Logger:    logger.With(zap.String(runIdentifierFieldConstant, runID)),
		Counters:  &RunCounters{},
	}
}

// Elapsed reports the time since the run started.
func (runContext *RunContext) Elapsed() time.Duration {
	return runContext.Clock.Now().Sub(runContext.StartedAt)
}

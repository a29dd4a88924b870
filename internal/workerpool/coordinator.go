package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/fleetaudit/internal/scanner"
)

// State is the coordinator's position in a batch.
type State int32

// Coordinator states.
const (
	StateIdle State = iota
	StateSpawning
	StateDispatching
	StateDraining
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateSpawning:    "spawning",
	StateDispatching: "dispatching",
	StateDraining:    "draining",
	StateDone:        "done",
	StateFailed:      "failed",
}

// String names the state.
func (state State) String() string {
	return stateNames[state]
}

// Mode records how a batch was executed.
type Mode string

// Batch execution modes.
const (
	ModeProcessPool Mode = "process-pool"
	ModeInProcess   Mode = "in-process"
)

const (
	// DefaultBatchTimeout bounds a whole batch.
	DefaultBatchTimeout = 30 * time.Second
	// DefaultMaxWorkers caps the pool size.
	DefaultMaxWorkers = 8

	unexpectedJobTemplateConstant   = "%s for job %d but worker holds job %d"
	busyReadyTemplateConstant       = "ready while holding job %d"
	unexpectedTypeTemplateConstant  = "unexpected %s message from worker"
	stateTransitionMessageConstant  = "worker pool state changed"
	launchFailedMessageConstant     = "worker pool unavailable, scanning in-process"
	workerErrorMessageConstant      = "worker reported job failure, retrying locally"
	workerExitedMessageConstant     = "worker exited while holding a job, retrying locally"
	workerSendFailedMessageConstant = "failed to send message to worker"
	workersExhaustedMessageConstant = "all workers exited, scanning remaining jobs locally"
	stateFieldConstant              = "state"
	poolSizeFieldConstant           = "pool_size"
	workerFieldConstant             = "worker"
	jobsFieldConstant               = "jobs"
	workerExitReportConstant        = "worker exited"
	workerErrorFieldConstant        = "worker_error"
)

var (
	// ErrBatchTimeout is returned when a batch exceeds its timeout.
	ErrBatchTimeout = errors.New("worker pool batch timed out")
	// ErrInterrupted is returned when the batch context is cancelled.
	ErrInterrupted = errors.New("worker pool batch interrupted")
	// ErrPoolUnavailable reports that workers could not be launched.
	ErrPoolUnavailable = errors.New("worker pool unavailable")
)

// Options configures a Coordinator.
type Options struct {
	Launcher WorkerLauncher
	// Scanner performs in-process fallback scans.
	Scanner     ProjectScanner
	Logger      *zap.Logger
	Timeout     time.Duration
	CPUCount    int
	MaxWorkers  int
	RetryPolicy RetryPolicy
}

// BatchResult is the outcome of ScanAll.
type BatchResult struct {
	Records   []scanner.ProjectRecord
	PoolSize  int
	Fallbacks int
	Mode      Mode
}

// Coordinator runs scan batches over a worker pool.
type Coordinator struct {
	launcher    WorkerLauncher
	scanner     ProjectScanner
	logger      *zap.Logger
	timeout     time.Duration
	cpuCount    int
	maxWorkers  int
	retryPolicy RetryPolicy
	state       atomic.Int32
}

// NewCoordinator constructs a Coordinator, filling unset options with defaults.
func NewCoordinator(options Options) *Coordinator {
	coordinator := &Coordinator{
		launcher:    options.Launcher,
		scanner:     options.Scanner,
		logger:      options.Logger,
		timeout:     options.Timeout,
		cpuCount:    options.CPUCount,
		maxWorkers:  options.MaxWorkers,
		retryPolicy: options.RetryPolicy,
	}
	if coordinator.logger == nil {
		coordinator.logger = zap.NewNop()
	}
	if coordinator.timeout <= 0 {
		coordinator.timeout = DefaultBatchTimeout
	}
	if coordinator.cpuCount <= 0 {
		coordinator.cpuCount = runtime.NumCPU()
	}
	if coordinator.maxWorkers <= 0 {
		coordinator.maxWorkers = DefaultMaxWorkers
	}
	if coordinator.retryPolicy.MaxLocalRetries <= 0 {
		coordinator.retryPolicy = DefaultRetryPolicy()
	}
	return coordinator
}

// PoolSize returns min(cpus, jobs, maxWorkers).
func PoolSize(cpus int, jobs int, maxWorkers int) int {
	return min(cpus, jobs, maxWorkers)
}

// State reports the current or final state of the most recent batch.
func (coordinator *Coordinator) State() State {
	return State(coordinator.state.Load())
}

func (coordinator *Coordinator) transition(state State) {
	if coordinator.State() == state {
		return
	}
	coordinator.state.Store(int32(state))
	coordinator.logger.Debug(stateTransitionMessageConstant, zap.Stringer(stateFieldConstant, state))
}

type workerSlot struct {
	worker       Worker
	currentJob   int
	alive        bool
	shutdownSent bool
}

type batch struct {
	coordinator *Coordinator
	parent      context.Context
	context     context.Context
	directories []string
	slots       []*workerSlot
	records     []scanner.ProjectRecord
	nextJob     int
	completed   int
	fallbacks   int
	recoveries  chan recoveryOutcome
	limiter     chan struct{}
	done        <-chan struct{}
}

// recoveryOutcome is the result of a local rescan running beside the event loop.
type recoveryOutcome struct {
	jobID  int
	record scanner.ProjectRecord
	err    error
}

// ScanAll scans directories and returns records in input order.
func (coordinator *Coordinator) ScanAll(executionContext context.Context, directories []string) (BatchResult, error) {
	coordinator.transition(StateIdle)
	poolSize := PoolSize(coordinator.cpuCount, len(directories), coordinator.maxWorkers)
	if len(directories) == 0 {
		coordinator.transition(StateDone)
		return BatchResult{Records: []scanner.ProjectRecord{}, Mode: ModeProcessPool}, nil
	}
	if coordinator.launcher == nil {
		return coordinator.scanInProcess(executionContext, directories, poolSize)
	}

	coordinator.transition(StateSpawning)
	batchContext, cancelBatch := context.WithTimeout(executionContext, coordinator.timeout)
	defer cancelBatch()
	events := make(chan Event)
	done := make(chan struct{})
	defer close(done)
	sink := EventSink{events: events, done: done}

	current := &batch{
		coordinator: coordinator,
		parent:      executionContext,
		context:     batchContext,
		directories: directories,
		records:     make([]scanner.ProjectRecord, len(directories)),
		recoveries:  make(chan recoveryOutcome),
		limiter:     make(chan struct{}, poolSize),
		done:        done,
	}
	for workerIndex := 0; workerIndex < poolSize; workerIndex++ {
		worker, launchError := coordinator.launcher.Launch(executionContext, workerIndex, sink)
		if launchError != nil {
			current.killAll()
			coordinator.logger.Warn(launchFailedMessageConstant, zap.Error(errors.Join(ErrPoolUnavailable, launchError)))
			return coordinator.scanInProcess(executionContext, directories, poolSize)
		}
		current.slots = append(current.slots, &workerSlot{worker: worker, currentJob: -1, alive: true})
	}
	coordinator.logger.Debug(stateTransitionMessageConstant, zap.Int(poolSizeFieldConstant, poolSize), zap.Int(jobsFieldConstant, len(directories)))
	coordinator.transition(StateDispatching)

	for current.completed < len(directories) {
		var stepError error
		select {
		case <-batchContext.Done():
			stepError = terminationError(executionContext)
		case outcome := <-current.recoveries:
			stepError = current.finishRecovery(outcome)
		case event := <-events:
			stepError = current.handle(event)
		}
		if stepError != nil {
			current.killAll()
			coordinator.transition(StateFailed)
			return BatchResult{}, stepError
		}
	}

	current.killIdle()
	coordinator.transition(StateDone)
	return BatchResult{Records: current.records, PoolSize: poolSize, Fallbacks: current.fallbacks, Mode: ModeProcessPool}, nil
}

func (current *batch) handle(event Event) error {
	slot := current.slots[event.WorkerIndex]
	if event.Exited {
		return current.handleExit(event, slot)
	}
	if event.Err != nil {
		return event.Err
	}

	message := event.Message
	switch message.Type {
	case MessageReady:
		if slot.currentJob >= 0 {
			return ProtocolError{WorkerIndex: event.WorkerIndex, Cause: fmt.Errorf(busyReadyTemplateConstant, slot.currentJob)}
		}
		current.dispatch(event.WorkerIndex, slot)
		return nil
	case MessageResult:
		if *message.JobID != slot.currentJob {
			return ProtocolError{WorkerIndex: event.WorkerIndex, Cause: fmt.Errorf(unexpectedJobTemplateConstant, message.Type, *message.JobID, slot.currentJob)}
		}
		current.complete(slot.currentJob, *message.Record)
		slot.currentJob = -1
		current.dispatch(event.WorkerIndex, slot)
		return nil
	case MessageError:
		if *message.JobID != slot.currentJob {
			return ProtocolError{WorkerIndex: event.WorkerIndex, Cause: fmt.Errorf(unexpectedJobTemplateConstant, message.Type, *message.JobID, slot.currentJob)}
		}
		current.coordinator.logger.Warn(workerErrorMessageConstant, zap.Int(workerFieldConstant, event.WorkerIndex), zap.Int(jobFieldConstant, slot.currentJob), zap.String(workerErrorFieldConstant, message.Error))
		current.recoverJob(slot.currentJob, message.Error)
		slot.currentJob = -1
		current.dispatch(event.WorkerIndex, slot)
		return nil
	default:
		return ProtocolError{WorkerIndex: event.WorkerIndex, Cause: fmt.Errorf(unexpectedTypeTemplateConstant, message.Type)}
	}
}

func (current *batch) handleExit(event Event, slot *workerSlot) error {
	slot.alive = false
	if slot.currentJob >= 0 {
		current.coordinator.logger.Warn(workerExitedMessageConstant, zap.Int(workerFieldConstant, event.WorkerIndex), zap.Int(jobFieldConstant, slot.currentJob), zap.Error(event.Err))
		jobID := slot.currentJob
		slot.currentJob = -1
		current.recoverJob(jobID, describeExit(event.Err))
	}

	for _, candidate := range current.slots {
		if candidate.alive {
			return nil
		}
	}
	if current.nextJob < len(current.directories) {
		current.coordinator.logger.Warn(workersExhaustedMessageConstant, zap.Int(jobsFieldConstant, len(current.directories)-current.nextJob))
	}
	for current.nextJob < len(current.directories) {
		jobID := current.nextJob
		current.nextJob++
		current.recoverJob(jobID, workerExitReportConstant)
	}
	return nil
}

func (current *batch) dispatch(workerIndex int, slot *workerSlot) {
	if current.nextJob < len(current.directories) {
		jobID := current.nextJob
		current.nextJob++
		slot.currentJob = jobID
		if current.nextJob == len(current.directories) {
			current.coordinator.transition(StateDraining)
		}
		if sendError := slot.worker.Send(NewScanMessage(jobID, current.directories[jobID])); sendError != nil {
			current.coordinator.logger.Warn(workerSendFailedMessageConstant, zap.Int(workerFieldConstant, workerIndex), zap.Error(sendError))
			_ = slot.worker.Kill()
		}
		return
	}

	slot.shutdownSent = true
	if sendError := slot.worker.Send(NewShutdownMessage()); sendError != nil {
		current.coordinator.logger.Warn(workerSendFailedMessageConstant, zap.Int(workerFieldConstant, workerIndex), zap.Error(sendError))
		_ = slot.worker.Kill()
	}
}

// recoverJob rescans a job locally in its own goroutine, at most poolSize at a time.
// The outcome is delivered to the event loop, which keeps observing the deadline.
func (current *batch) recoverJob(jobID int, workerError string) {
	go func() {
		select {
		case current.limiter <- struct{}{}:
		case <-current.context.Done():
			current.publishRecovery(recoveryOutcome{jobID: jobID, err: current.context.Err()})
			return
		}
		defer func() { <-current.limiter }()

		if contextError := current.context.Err(); contextError != nil {
			current.publishRecovery(recoveryOutcome{jobID: jobID, err: contextError})
			return
		}
		record, recoverError := current.coordinator.retryPolicy.Recover(current.context, current.coordinator.scanner, jobID, current.directories[jobID], workerError)
		current.publishRecovery(recoveryOutcome{jobID: jobID, record: record, err: recoverError})
	}()
}

func (current *batch) publishRecovery(outcome recoveryOutcome) {
	select {
	case current.recoveries <- outcome:
	case <-current.done:
	}
}

func (current *batch) finishRecovery(outcome recoveryOutcome) error {
	if current.context.Err() != nil {
		return terminationError(current.parent)
	}
	if outcome.err != nil {
		return outcome.err
	}
	current.fallbacks++
	current.complete(outcome.jobID, outcome.record)
	return nil
}

func (current *batch) complete(jobID int, record scanner.ProjectRecord) {
	current.records[jobID] = record
	current.completed++
}

func (current *batch) killAll() {
	for _, slot := range current.slots {
		_ = slot.worker.Kill()
	}
}

// killIdle reaps workers that never received a shutdown, such as ones still starting when the last job finished.
func (current *batch) killIdle() {
	for _, slot := range current.slots {
		if slot.alive && !slot.shutdownSent {
			_ = slot.worker.Kill()
		}
	}
}

func describeExit(exitError error) string {
	if exitError == nil {
		return workerExitReportConstant
	}
	return exitError.Error()
}

// terminationError maps an expired batch deadline to ErrInterrupted when the
// caller cancelled, otherwise to ErrBatchTimeout.
func terminationError(executionContext context.Context) error {
	if contextError := executionContext.Err(); contextError != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, contextError)
	}
	return ErrBatchTimeout
}

// scanInProcess scans with bounded goroutine concurrency when no worker pool is available.
// The batch deadline and cancellation are observed even while scans are still running.
func (coordinator *Coordinator) scanInProcess(executionContext context.Context, directories []string, poolSize int) (BatchResult, error) {
	coordinator.transition(StateDispatching)
	batchContext, cancelBatch := context.WithTimeout(executionContext, coordinator.timeout)
	defer cancelBatch()

	records := make([]scanner.ProjectRecord, len(directories))
	var fallbacks atomic.Int32

	group, groupContext := errgroup.WithContext(batchContext)
	group.SetLimit(max(poolSize, 1))
	waitResult := make(chan error, 1)
	go func() {
		for jobID, directory := range directories {
			group.Go(func() error {
				if contextError := groupContext.Err(); contextError != nil {
					return contextError
				}
				record, scanError := scanLocally(groupContext, coordinator.scanner, directory)
				if scanError != nil {
					recovered, recoverError := coordinator.retryPolicy.Recover(groupContext, coordinator.scanner, jobID, directory, scanError.Error())
					if recoverError != nil {
						return recoverError
					}
					fallbacks.Add(1)
					record = recovered
				}
				records[jobID] = record
				return nil
			})
		}
		waitResult <- group.Wait()
	}()

	select {
	case waitError := <-waitResult:
		if waitError != nil {
			coordinator.transition(StateFailed)
			if batchContext.Err() != nil {
				return BatchResult{}, terminationError(executionContext)
			}
			return BatchResult{}, waitError
		}
	case <-batchContext.Done():
		coordinator.transition(StateFailed)
		return BatchResult{}, terminationError(executionContext)
	}

	coordinator.transition(StateDone)
	return BatchResult{Records: records, PoolSize: poolSize, Fallbacks: int(fallbacks.Load()), Mode: ModeInProcess}, nil
}

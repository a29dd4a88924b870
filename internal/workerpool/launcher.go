package workerpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

const (
	// WorkerCommandName is the hidden subcommand a worker process runs.
	WorkerCommandName = "scan-worker"

	resolveExecutableErrorTemplateConstant = "failed to resolve worker executable: %w"
	workerPipeErrorTemplateConstant        = "failed to open worker %d pipes: %w"
	workerStartErrorTemplateConstant       = "failed to start worker %d: %w"
)

// Event is one notification delivered to the coordinator loop.
type Event struct {
	WorkerIndex int
	Message     Message
	// Err carries a protocol failure, or the exit status when Exited is set.
	Err    error
	Exited bool
}

// EventSink delivers events to the coordinator until the batch finishes.
type EventSink struct {
	events chan<- Event
	done   <-chan struct{}
}

// Publish delivers event and reports false once the batch has finished.
func (sink EventSink) Publish(event Event) bool {
	select {
	case sink.events <- event:
		return true
	case <-sink.done:
		return false
	}
}

// Worker is the coordinator's handle on one running worker.
type Worker interface {
	Send(message Message) error
	Kill() error
}

// WorkerLauncher starts workers. Launch must publish every inbound message of
// the worker to sink in arrival order, followed by one event with Exited set.
type WorkerLauncher interface {
	Launch(executionContext context.Context, workerIndex int, sink EventSink) (Worker, error)
}

// PumpEvents decodes frames from reader and publishes them until the stream ends
// or a frame is rejected. It returns the terminal read error, nil on clean EOF.
func PumpEvents(workerIndex int, reader io.Reader, sink EventSink) error {
	decoder := NewMessageDecoder(reader)
	for {
		message, decodeError := decoder.Decode()
		if decodeError != nil {
			if errors.Is(decodeError, io.EOF) {
				return nil
			}
			var frameError FrameError
			if errors.As(decodeError, &frameError) {
				sink.Publish(Event{WorkerIndex: workerIndex, Err: ProtocolError{WorkerIndex: workerIndex, Cause: frameError}})
			}
			return decodeError
		}
		if !sink.Publish(Event{WorkerIndex: workerIndex, Message: message}) {
			return nil
		}
	}
}

// ProcessLauncher re-executes a binary with the scan-worker subcommand.
type ProcessLauncher struct {
	// Executable defaults to the running binary.
	Executable string
	// Arguments default to the scan-worker subcommand alone.
	Arguments []string
	// Stderr receives worker logs. Defaults to os.Stderr.
	Stderr io.Writer
}

// Launch starts one worker process.
func (launcher *ProcessLauncher) Launch(executionContext context.Context, workerIndex int, sink EventSink) (Worker, error) {
	executable := launcher.Executable
	if len(executable) == 0 {
		resolvedExecutable, resolveError := os.Executable()
		if resolveError != nil {
			return nil, fmt.Errorf(resolveExecutableErrorTemplateConstant, resolveError)
		}
		executable = resolvedExecutable
	}
	arguments := launcher.Arguments
	if len(arguments) == 0 {
		arguments = []string{WorkerCommandName}
	}

	command := exec.Command(executable, arguments...)
	command.Stderr = launcher.Stderr
	if command.Stderr == nil {
		command.Stderr = os.Stderr
	}

	standardInput, inputError := command.StdinPipe()
	if inputError != nil {
		return nil, fmt.Errorf(workerPipeErrorTemplateConstant, workerIndex, inputError)
	}
	standardOutput, outputError := command.StdoutPipe()
	if outputError != nil {
		return nil, fmt.Errorf(workerPipeErrorTemplateConstant, workerIndex, outputError)
	}
	if startError := command.Start(); startError != nil {
		return nil, fmt.Errorf(workerStartErrorTemplateConstant, workerIndex, startError)
	}

	go func() {
		_ = PumpEvents(workerIndex, standardOutput, sink)
		waitError := command.Wait()
		sink.Publish(Event{WorkerIndex: workerIndex, Exited: true, Err: waitError})
	}()

	return &processWorker{command: command, input: standardInput, encoder: NewMessageEncoder(standardInput)}, nil
}

type processWorker struct {
	command  *exec.Cmd
	input    io.WriteCloser
	encoder  *MessageEncoder
	killOnce sync.Once
	killErr  error
}

func (worker *processWorker) Send(message Message) error {
	return worker.encoder.Encode(message)
}

func (worker *processWorker) Kill() error {
	worker.killOnce.Do(func() {
		_ = worker.input.Close()
		if worker.command.Process != nil {
			killError := worker.command.Process.Kill()
			if killError != nil && !errors.Is(killError, os.ErrProcessDone) {
				worker.killErr = killError
			}
		}
	})
	return worker.killErr
}

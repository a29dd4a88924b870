package workerpool

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/temirov/fleetaudit/internal/scanner"
)

const (
	unexpectedMessageTemplateConstant = "worker received unexpected %s message"
	scanPanicTemplateConstant         = "scan of %s panicked: %v"
	workerJobStartedMessageConstant   = "scan job received"
	workerShutdownMessageConstant     = "worker shutting down"
	jobFieldConstant                  = "job_id"
	directoryFieldConstant            = "directory"
)

// ProjectScanner scans one directory.
type ProjectScanner interface {
	ScanProject(executionContext context.Context, directory string) scanner.ProjectRecord
}

// Serve runs the worker side of the protocol: announce ready, then answer every
// scan with a result or error until shutdown arrives or input ends.
func Serve(executionContext context.Context, input io.Reader, output io.Writer, projectScanner ProjectScanner, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	encoder := NewMessageEncoder(output)
	decoder := NewMessageDecoder(input)

	if sendError := encoder.Encode(NewReadyMessage()); sendError != nil {
		return sendError
	}

	for {
		message, decodeError := decoder.Decode()
		if decodeError != nil {
			if errors.Is(decodeError, io.EOF) {
				return nil
			}
			return decodeError
		}

		switch message.Type {
		case MessageShutdown:
			logger.Debug(workerShutdownMessageConstant)
			return nil
		case MessageScan:
			jobID := *message.JobID
			logger.Debug(workerJobStartedMessageConstant, zap.Int(jobFieldConstant, jobID), zap.String(directoryFieldConstant, message.Directory))
			reply := scanJob(executionContext, projectScanner, jobID, message.Directory)
			if sendError := encoder.Encode(reply); sendError != nil {
				return sendError
			}
		default:
			return FrameError{Cause: fmt.Errorf(unexpectedMessageTemplateConstant, message.Type)}
		}
	}
}

func scanJob(executionContext context.Context, projectScanner ProjectScanner, jobID int, directory string) (reply Message) {
	defer func() {
		if recovered := recover(); recovered != nil {
			reply = NewErrorMessage(jobID, fmt.Sprintf(scanPanicTemplateConstant, directory, recovered))
		}
	}()
	return NewResultMessage(jobID, projectScanner.ScanProject(executionContext, directory))
}

package workerpool

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/temirov/fleetaudit/internal/scanner"
)

// MessageType discriminates protocol messages.
type MessageType string

// Protocol message types.
const (
	MessageReady    MessageType = "ready"
	MessageScan     MessageType = "scan"
	MessageShutdown MessageType = "shutdown"
	MessageResult   MessageType = "result"
	MessageError    MessageType = "error"
)

const (
	protocolErrorTemplateConstant   = "worker %d protocol violation: %v"
	unexpectedFieldTemplateConstant = "%s message must not carry %s"
	negativeJobTemplateConstant     = "job id %d is negative"
	trailingDataMessageConstant     = "trailing data after message"
	jobIDFieldNameConstant          = "jobId"
	directoryFieldNameConstant      = "directory"
	recordFieldNameConstant         = "record"
	errorFieldNameConstant          = "error"
)

const messageDelimiterConstant byte = '\n'

// ErrProtocolViolation marks messages that fail protocol validation.
var ErrProtocolViolation = errors.New("worker protocol violation")

// Message is one protocol frame. Which optional fields are set depends on Type.
type Message struct {
	Type      MessageType            `json:"type" validate:"required,oneof=ready scan shutdown result error"`
	JobID     *int                   `json:"jobId,omitempty" validate:"required_if=Type scan,required_if=Type result,required_if=Type error"`
	Directory string                 `json:"directory,omitempty" validate:"required_if=Type scan"`
	Record    *scanner.ProjectRecord `json:"record,omitempty" validate:"required_if=Type result"`
	Error     string                 `json:"error,omitempty" validate:"required_if=Type error"`
}

// ProtocolError reports a malformed or out-of-sequence message from a worker.
type ProtocolError struct {
	WorkerIndex int
	Cause       error
}

// Error describes the violation.
func (protocolError ProtocolError) Error() string {
	return fmt.Sprintf(protocolErrorTemplateConstant, protocolError.WorkerIndex, protocolError.Cause)
}

// Unwrap exposes the cause.
func (protocolError ProtocolError) Unwrap() error {
	return protocolError.Cause
}

// Is matches ErrProtocolViolation.
func (protocolError ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// FrameError reports a frame that could not be decoded or failed validation.
type FrameError struct {
	Cause error
}

// Error describes the rejected frame.
func (frameError FrameError) Error() string {
	return frameError.Cause.Error()
}

// Unwrap exposes the cause.
func (frameError FrameError) Unwrap() error {
	return frameError.Cause
}

// Is matches ErrProtocolViolation.
func (frameError FrameError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// NewReadyMessage builds a ready frame.
func NewReadyMessage() Message {
	return Message{Type: MessageReady}
}

// NewShutdownMessage builds a shutdown frame.
func NewShutdownMessage() Message {
	return Message{Type: MessageShutdown}
}

// NewScanMessage builds a scan frame.
func NewScanMessage(jobID int, directory string) Message {
	return Message{Type: MessageScan, JobID: &jobID, Directory: directory}
}

// NewResultMessage builds a result frame.
func NewResultMessage(jobID int, record scanner.ProjectRecord) Message {
	return Message{Type: MessageResult, JobID: &jobID, Record: &record}
}

// NewErrorMessage builds an error frame.
func NewErrorMessage(jobID int, failure string) Message {
	return Message{Type: MessageError, JobID: &jobID, Error: failure}
}

var (
	messageValidatorOnce sync.Once
	messageValidator     *validator.Validate
)

func sharedValidator() *validator.Validate {
	messageValidatorOnce.Do(func() {
		messageValidator = validator.New()
	})
	return messageValidator
}

// ValidateMessage applies the struct tags and the per-type field rules that tags cannot express.
func ValidateMessage(message Message) error {
	if validationError := sharedValidator().Struct(message); validationError != nil {
		return validationError
	}

	if message.JobID != nil && *message.JobID < 0 {
		return fmt.Errorf(negativeJobTemplateConstant, *message.JobID)
	}

	switch message.Type {
	case MessageReady, MessageShutdown:
		if message.JobID != nil {
			return fmt.Errorf(unexpectedFieldTemplateConstant, message.Type, jobIDFieldNameConstant)
		}
		if len(message.Directory) > 0 {
			return fmt.Errorf(unexpectedFieldTemplateConstant, message.Type, directoryFieldNameConstant)
		}
		if message.Record != nil {
			return fmt.Errorf(unexpectedFieldTemplateConstant, message.Type, recordFieldNameConstant)
		}
		if len(message.Error) > 0 {
			return fmt.Errorf(unexpectedFieldTemplateConstant, message.Type, errorFieldNameConstant)
		}
	case MessageScan:
		if message.Record != nil {
			return fmt.Errorf(unexpectedFieldTemplateConstant, message.Type, recordFieldNameConstant)
		}
		if len(message.Error) > 0 {
			return fmt.Errorf(unexpectedFieldTemplateConstant, message.Type, errorFieldNameConstant)
		}
	case MessageResult:
		if len(message.Error) > 0 {
			return fmt.Errorf(unexpectedFieldTemplateConstant, message.Type, errorFieldNameConstant)
		}
	case MessageError:
		if message.Record != nil {
			return fmt.Errorf(unexpectedFieldTemplateConstant, message.Type, recordFieldNameConstant)
		}
	}
	return nil
}

// MessageEncoder writes validated frames. It is safe for concurrent use.
type MessageEncoder struct {
	mutex  sync.Mutex
	writer *bufio.Writer
}

// NewMessageEncoder wraps writer.
func NewMessageEncoder(writer io.Writer) *MessageEncoder {
	return &MessageEncoder{writer: bufio.NewWriter(writer)}
}

// Encode validates and writes one frame followed by a newline, then flushes.
func (encoder *MessageEncoder) Encode(message Message) error {
	if validationError := ValidateMessage(message); validationError != nil {
		return validationError
	}
	encoded, marshalError := json.Marshal(message)
	if marshalError != nil {
		return marshalError
	}

	encoder.mutex.Lock()
	defer encoder.mutex.Unlock()
	if _, writeError := encoder.writer.Write(append(encoded, messageDelimiterConstant)); writeError != nil {
		return writeError
	}
	return encoder.writer.Flush()
}

// MessageDecoder reads frames one line at a time.
type MessageDecoder struct {
	reader *bufio.Reader
}

// NewMessageDecoder wraps reader.
func NewMessageDecoder(reader io.Reader) *MessageDecoder {
	return &MessageDecoder{reader: bufio.NewReader(reader)}
}

// Decode reads the next frame, skipping blank lines. It returns io.EOF when the
// stream ends cleanly, a FrameError for rejected frames, and transport errors unchanged.
func (decoder *MessageDecoder) Decode() (Message, error) {
	for {
		line, readError := decoder.reader.ReadBytes(messageDelimiterConstant)
		if len(bytes.TrimSpace(line)) > 0 {
			return ParseMessage(line)
		}
		if readError != nil {
			return Message{}, readError
		}
	}
}

// ParseMessage decodes one frame strictly: unknown fields and trailing data are rejected.
func ParseMessage(line []byte) (Message, error) {
	lineDecoder := json.NewDecoder(bytes.NewReader(line))
	lineDecoder.DisallowUnknownFields()

	message := Message{}
	if decodeError := lineDecoder.Decode(&message); decodeError != nil {
		return Message{}, FrameError{Cause: decodeError}
	}
	if lineDecoder.More() {
		return Message{}, FrameError{Cause: errors.New(trailingDataMessageConstant)}
	}
	if validationError := ValidateMessage(message); validationError != nil {
		return Message{}, FrameError{Cause: validationError}
	}
	return message, nil
}

package workerpool_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/fleetaudit/internal/scanner"
	"github.com/temirov/fleetaudit/internal/workerpool"
)

const (
	testSubtestTemplateConstant = "%d_%s"
	testDirectoryConstant       = "/fleet/storefront"
)

func intPointer(value int) *int {
	return &value
}

func TestValidateMessage(testInstance *testing.T) {
	record := scanner.DefaultRecord(testDirectoryConstant, "storefront")
	testCases := []struct {
		name        string
		message     workerpool.Message
		expectValid bool
	}{
		{name: "ready", message: workerpool.NewReadyMessage(), expectValid: true},
		{name: "shutdown", message: workerpool.NewShutdownMessage(), expectValid: true},
		{name: "scan", message: workerpool.NewScanMessage(3, testDirectoryConstant), expectValid: true},
		{name: "result", message: workerpool.NewResultMessage(0, record), expectValid: true},
		{name: "error", message: workerpool.NewErrorMessage(1, "boom"), expectValid: true},
		{name: "unknown_type", message: workerpool.Message{Type: "hello"}},
		{name: "empty_type", message: workerpool.Message{}},
		{name: "scan_without_job", message: workerpool.Message{Type: workerpool.MessageScan, Directory: testDirectoryConstant}},
		{name: "scan_without_directory", message: workerpool.Message{Type: workerpool.MessageScan, JobID: intPointer(0)}},
		{name: "result_without_record", message: workerpool.Message{Type: workerpool.MessageResult, JobID: intPointer(0)}},
		{name: "error_without_text", message: workerpool.Message{Type: workerpool.MessageError, JobID: intPointer(0)}},
		{name: "ready_with_job", message: workerpool.Message{Type: workerpool.MessageReady, JobID: intPointer(2)}},
		{name: "negative_job", message: workerpool.NewScanMessage(-1, testDirectoryConstant)},
		{name: "error_with_record", message: workerpool.Message{Type: workerpool.MessageError, JobID: intPointer(0), Error: "boom", Record: &record}},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			validationError := workerpool.ValidateMessage(testCase.message)
			if testCase.expectValid {
				require.NoError(testInstance, validationError)
				return
			}
			require.Error(testInstance, validationError)
		})
	}
}

func TestParseMessageRejectsMalformedFrames(testInstance *testing.T) {
	testCases := []struct {
		name  string
		frame string
	}{
		{name: "not_json", frame: "ready"},
		{name: "unknown_field", frame: `{"type":"ready","extra":1}`},
		{name: "trailing_data", frame: `{"type":"ready"} {"type":"ready"}`},
		{name: "missing_directory", frame: `{"type":"scan","jobId":1}`},
		{name: "string_job", frame: `{"type":"scan","jobId":"1","directory":"/a"}`},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			_, parseError := workerpool.ParseMessage([]byte(testCase.frame))
			require.Error(testInstance, parseError)
			require.ErrorIs(testInstance, parseError, workerpool.ErrProtocolViolation)
		})
	}
}

func TestEncoderDecoderRoundTripSkipsBlankLines(testInstance *testing.T) {
	buffer := &bytes.Buffer{}
	encoder := workerpool.NewMessageEncoder(buffer)
	require.NoError(testInstance, encoder.Encode(workerpool.NewScanMessage(7, testDirectoryConstant)))
	buffer.WriteString("\n\n")
	require.NoError(testInstance, encoder.Encode(workerpool.NewShutdownMessage()))

	decoder := workerpool.NewMessageDecoder(buffer)
	first, firstError := decoder.Decode()
	require.NoError(testInstance, firstError)
	require.Equal(testInstance, workerpool.MessageScan, first.Type)
	require.Equal(testInstance, 7, *first.JobID)
	require.Equal(testInstance, testDirectoryConstant, first.Directory)

	second, secondError := decoder.Decode()
	require.NoError(testInstance, secondError)
	require.Equal(testInstance, workerpool.MessageShutdown, second.Type)

	_, endError := decoder.Decode()
	require.ErrorIs(testInstance, endError, io.EOF)
}

func TestEncoderRejectsInvalidMessages(testInstance *testing.T) {
	buffer := &bytes.Buffer{}
	encoder := workerpool.NewMessageEncoder(buffer)
	require.Error(testInstance, encoder.Encode(workerpool.Message{Type: workerpool.MessageScan}))
	require.Zero(testInstance, buffer.Len())
}

func TestServe(testInstance *testing.T) {
	testCases := []struct {
		name            string
		input           []workerpool.Message
		expectedTypes   []workerpool.MessageType
		expectViolation bool
	}{
		{
			name:          "scan_then_shutdown",
			input:         []workerpool.Message{workerpool.NewScanMessage(0, "/fleet/alpha"), workerpool.NewScanMessage(1, "/fleet/beta"), workerpool.NewShutdownMessage()},
			expectedTypes: []workerpool.MessageType{workerpool.MessageReady, workerpool.MessageResult, workerpool.MessageResult},
		},
		{
			name:          "panic_becomes_error",
			input:         []workerpool.Message{workerpool.NewScanMessage(4, "/fleet/explode")},
			expectedTypes: []workerpool.MessageType{workerpool.MessageReady, workerpool.MessageError},
		},
		{
			name:          "input_closed",
			input:         nil,
			expectedTypes: []workerpool.MessageType{workerpool.MessageReady},
		},
		{
			name:            "unexpected_result",
			input:           []workerpool.Message{workerpool.NewResultMessage(0, scanner.DefaultRecord("/fleet/alpha", "alpha"))},
			expectedTypes:   []workerpool.MessageType{workerpool.MessageReady},
			expectViolation: true,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			input := &bytes.Buffer{}
			inputEncoder := workerpool.NewMessageEncoder(input)
			for _, message := range testCase.input {
				require.NoError(testInstance, inputEncoder.Encode(message))
			}
			output := &bytes.Buffer{}

			serveError := workerpool.Serve(context.Background(), input, output, newStubScanner("explode"), nil)
			if testCase.expectViolation {
				require.ErrorIs(testInstance, serveError, workerpool.ErrProtocolViolation)
			} else {
				require.NoError(testInstance, serveError)
			}

			decoder := workerpool.NewMessageDecoder(output)
			actualTypes := []workerpool.MessageType{}
			for {
				message, decodeError := decoder.Decode()
				if errors.Is(decodeError, io.EOF) {
					break
				}
				require.NoError(testInstance, decodeError)
				actualTypes = append(actualTypes, message.Type)
				if message.Type == workerpool.MessageError {
					require.True(testInstance, strings.Contains(message.Error, "explode"))
				}
			}
			require.Equal(testInstance, testCase.expectedTypes, actualTypes)
		})
	}
}

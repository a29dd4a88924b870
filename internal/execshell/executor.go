package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// CommandName identifies an external executable invoked through the shell executor.
type CommandName string

// Supported external executables.
const (
	CommandPackageManager CommandName = "bun"
	CommandSecurity       CommandName = "security"
	CommandSecretTool     CommandName = "secret-tool"
)

const (
	commandNameFieldConstant             = "command"
	commandArgumentsFieldConstant        = "arguments"
	commandWorkingDirectoryFieldConstant = "working_directory"
	commandExitCodeFieldConstant         = "exit_code"
	commandFailedTemplateConstant        = "%s exited with code %d"
	commandFailedOutputTemplateConstant  = "%s exited with code %d: %s"
	commandExecutionTemplateConstant     = "%s could not be executed: %v"
	redactedArgumentValueConstant        = "<redacted>"
)

var (
	// ErrLoggerNotConfigured indicates a ShellExecutor was constructed without a logger.
	ErrLoggerNotConfigured = errors.New("shell executor logger not configured")
	// ErrCommandRunnerNotConfigured indicates a ShellExecutor was constructed without a command runner.
	ErrCommandRunnerNotConfigured = errors.New("shell executor command runner not configured")
)

// CommandDetails describes the arguments and execution environment for one command.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
	// SensitiveArgumentFlags names flags whose following argument is masked in logs.
	SensitiveArgumentFlags []string
}

// ShellCommand couples an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outcome of a finished process.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a command that ran to completion with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command.
func (failure CommandFailedError) Error() string {
	trimmedStandardError := strings.TrimSpace(failure.Result.StandardError)
	if len(trimmedStandardError) == 0 {
		return fmt.Sprintf(commandFailedTemplateConstant, failure.Command.Name, failure.Result.ExitCode)
	}
	return fmt.Sprintf(commandFailedOutputTemplateConstant, failure.Command.Name, failure.Result.ExitCode, trimmedStandardError)
}

// CommandExecutionError reports a command that could not be started or waited on.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionTemplateConstant, failure.Command.Name, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// ShellExecutor runs external commands with structured logging.
type ShellExecutor struct {
	logger    *zap.Logger
	runner    CommandRunner
	observers observerChain
}

// NewShellExecutor constructs a ShellExecutor. Observers receive lifecycle events in registration order.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, observers ...CommandEventObserver) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	return &ShellExecutor{logger: logger, runner: runner, observers: newObserverChain(observers)}, nil
}

// Execute runs the command and converts non-zero exit codes into CommandFailedError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	loggedArguments := redactArguments(command.Details.Arguments, command.Details.SensitiveArgumentFlags)
	executor.logger.Debug(
		CommandMessageFormatter{}.BuildStartedMessage(command),
		zap.String(commandNameFieldConstant, string(command.Name)),
		zap.Strings(commandArgumentsFieldConstant, loggedArguments),
		zap.String(commandWorkingDirectoryFieldConstant, command.Details.WorkingDirectory),
	)
	executor.observers.started(command)

	executionResult, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executor.logger.Debug(
			CommandMessageFormatter{}.BuildExecutionFailureMessage(command, runError),
			zap.String(commandNameFieldConstant, string(command.Name)),
			zap.Error(runError),
		)
		executor.observers.failed(command, runError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.observers.completed(command, executionResult)

	if executionResult.ExitCode != 0 {
		executor.logger.Debug(
			CommandMessageFormatter{}.BuildFailureMessage(command, executionResult),
			zap.String(commandNameFieldConstant, string(command.Name)),
			zap.Int(commandExitCodeFieldConstant, executionResult.ExitCode),
		)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logger.Debug(
		CommandMessageFormatter{}.BuildSuccessMessage(command),
		zap.String(commandNameFieldConstant, string(command.Name)),
	)
	return executionResult, nil
}

// ExecutePackageManager runs the bun executable.
func (executor *ShellExecutor) ExecutePackageManager(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandPackageManager, Details: details})
}

// ExecuteSecurityCLI runs the macOS security tool.
func (executor *ShellExecutor) ExecuteSecurityCLI(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandSecurity, Details: details})
}

// ExecuteSecretTool runs the freedesktop secret-tool utility.
func (executor *ShellExecutor) ExecuteSecretTool(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandSecretTool, Details: details})
}

func redactArguments(arguments []string, sensitiveFlags []string) []string {
	redacted := append([]string{}, arguments...)
	if len(sensitiveFlags) == 0 {
		return redacted
	}
	for argumentIndex := 0; argumentIndex < len(redacted)-1; argumentIndex++ {
		if containsArgument(sensitiveFlags, redacted[argumentIndex]) {
			redacted[argumentIndex+1] = redactedArgumentValueConstant
			argumentIndex++
		}
	}
	return redacted
}

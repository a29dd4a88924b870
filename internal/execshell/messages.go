package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
)

const (
	packageManagerOutdatedSubcommandConstant = "outdated"
	packageManagerUpdateSubcommandConstant   = "update"
	packageManagerInfoSubcommandConstant     = "info"
	securityFindSubcommandConstant           = "find-generic-password"
	securityAddSubcommandConstant            = "add-generic-password"
	securityDeleteSubcommandConstant         = "delete-generic-password"
	secretToolLookupSubcommandConstant       = "lookup"
	secretToolStoreSubcommandConstant        = "store"
	secretToolClearSubcommandConstant        = "clear"
)

const (
	outdatedStartTemplateConstant            = "Checking outdated dependencies in %s"
	outdatedSuccessTemplateConstant          = "Checked outdated dependencies in %s"
	outdatedFailureTemplateConstant          = "Failed to check outdated dependencies in %s (exit code %d%s)"
	outdatedExecutionFailureTemplateConstant = "Unable to check outdated dependencies in %s: %s"
	updateStartTemplateConstant              = "Updating dependencies in %s"
	updateSuccessTemplateConstant            = "Updated dependencies in %s"
	updateFailureTemplateConstant            = "Failed to update dependencies in %s (exit code %d%s)"
	updateExecutionFailureTemplateConstant   = "Unable to update dependencies in %s: %s"
	infoStartTemplateConstant                = "Reading registry metadata for %s in %s"
	infoSuccessTemplateConstant              = "Read registry metadata for %s in %s"
	infoFailureTemplateConstant              = "Failed to read registry metadata for %s in %s (exit code %d%s)"
	infoExecutionFailureTemplateConstant     = "Unable to read registry metadata for %s in %s: %s"
	secretLookupStartTemplateConstant        = "Looking up secret with %s"
	secretLookupSuccessTemplateConstant      = "Found secret with %s"
	secretLookupFailureTemplateConstant      = "Secret not found with %s (exit code %d)"
	secretStoreStartTemplateConstant         = "Storing secret with %s"
	secretStoreSuccessTemplateConstant       = "Stored secret with %s"
	secretStoreFailureTemplateConstant       = "Failed to store secret with %s (exit code %d)"
	secretClearStartTemplateConstant         = "Removing secret with %s"
	secretClearSuccessTemplateConstant       = "Removed secret with %s"
	secretClearFailureTemplateConstant       = "Failed to remove secret with %s (exit code %d)"
	secretExecutionFailureTemplateConstant   = "Unable to run %s: %s"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	switch command.Name {
	case CommandPackageManager:
		return formatter.describePackageManagerMessage(command, result, failure, stage)
	case CommandSecurity, CommandSecretTool:
		return formatter.describeSecretStoreMessage(command, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describePackageManagerMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	if len(arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	workingDirectory := formatter.describeWorkingDirectory(command)
	standardErrorSuffix := formatter.formatStandardErrorSuffix(result.StandardError)
	switch strings.TrimSpace(arguments[0]) {
	case packageManagerOutdatedSubcommandConstant:
		return formatter.selectStageMessage(stage,
			fmt.Sprintf(outdatedStartTemplateConstant, workingDirectory),
			fmt.Sprintf(outdatedSuccessTemplateConstant, workingDirectory),
			fmt.Sprintf(outdatedFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(outdatedExecutionFailureTemplateConstant, workingDirectory, formatter.describeFailure(failure)),
		)
	case packageManagerUpdateSubcommandConstant:
		return formatter.selectStageMessage(stage,
			fmt.Sprintf(updateStartTemplateConstant, workingDirectory),
			fmt.Sprintf(updateSuccessTemplateConstant, workingDirectory),
			fmt.Sprintf(updateFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(updateExecutionFailureTemplateConstant, workingDirectory, formatter.describeFailure(failure)),
		)
	case packageManagerInfoSubcommandConstant:
		if len(arguments) < 2 {
			return formatter.buildGenericMessage(command, result, failure, stage)
		}
		packageName := strings.TrimSpace(arguments[1])
		return formatter.selectStageMessage(stage,
			fmt.Sprintf(infoStartTemplateConstant, packageName, workingDirectory),
			fmt.Sprintf(infoSuccessTemplateConstant, packageName, workingDirectory),
			fmt.Sprintf(infoFailureTemplateConstant, packageName, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(infoExecutionFailureTemplateConstant, packageName, workingDirectory, formatter.describeFailure(failure)),
		)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

// describeSecretStoreMessage never echoes arguments or standard error since either may carry secret material.
func (formatter CommandMessageFormatter) describeSecretStoreMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	toolName := string(command.Name)
	executionFailure := fmt.Sprintf(secretExecutionFailureTemplateConstant, toolName, formatter.describeFailure(failure))

	subcommand := emptyStringConstant
	if len(command.Details.Arguments) > 0 {
		subcommand = strings.TrimSpace(command.Details.Arguments[0])
	}

	switch subcommand {
	case securityAddSubcommandConstant, secretToolStoreSubcommandConstant:
		return formatter.selectStageMessage(stage,
			fmt.Sprintf(secretStoreStartTemplateConstant, toolName),
			fmt.Sprintf(secretStoreSuccessTemplateConstant, toolName),
			fmt.Sprintf(secretStoreFailureTemplateConstant, toolName, result.ExitCode),
			executionFailure,
		)
	case securityDeleteSubcommandConstant, secretToolClearSubcommandConstant:
		return formatter.selectStageMessage(stage,
			fmt.Sprintf(secretClearStartTemplateConstant, toolName),
			fmt.Sprintf(secretClearSuccessTemplateConstant, toolName),
			fmt.Sprintf(secretClearFailureTemplateConstant, toolName, result.ExitCode),
			executionFailure,
		)
	default:
		return formatter.selectStageMessage(stage,
			fmt.Sprintf(secretLookupStartTemplateConstant, toolName),
			fmt.Sprintf(secretLookupSuccessTemplateConstant, toolName),
			fmt.Sprintf(secretLookupFailureTemplateConstant, toolName, result.ExitCode),
			executionFailure,
		)
	}
}

func (formatter CommandMessageFormatter) selectStageMessage(stage messageStage, startMessage string, successMessage string, failureMessage string, executionFailureMessage string) string {
	switch stage {
	case messageStageStart:
		return startMessage
	case messageStageSuccess:
		return successMessage
	case messageStageFailure:
		return failureMessage
	case messageStageExecutionFailure:
		return executionFailureMessage
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	return formatter.selectStageMessage(stage,
		fmt.Sprintf(genericStartTemplateConstant, commandLabel),
		fmt.Sprintf(genericSuccessTemplateConstant, commandLabel),
		fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError)),
		fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure)),
	)
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	arguments := redactArguments(command.Details.Arguments, command.Details.SensitiveArgumentFlags)
	if len(arguments) > 0 {
		commandParts = append(commandParts, strings.Join(arguments, commandArgumentsJoinSeparatorConstant))
	}
	commandLabel := strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}

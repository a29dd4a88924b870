package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/fleetaudit/internal/execshell"
)

const (
	darwinOperatingSystemConstant = "darwin"

	securityFindSubcommandConstant   = "find-generic-password"
	securityAddSubcommandConstant    = "add-generic-password"
	securityDeleteSubcommandConstant = "delete-generic-password"
	securityServiceFlagConstant      = "-s"
	securityAccountFlagConstant      = "-a"
	securityPasswordFlagConstant     = "-w"
	securityUpdateFlagConstant       = "-U"

	secretToolLookupSubcommandConstant = "lookup"
	secretToolStoreSubcommandConstant  = "store"
	secretToolClearSubcommandConstant  = "clear"
	secretToolLabelTemplateConstant    = "--label=%s %s"
	secretToolServiceAttributeConstant = "service"
	secretToolAccountAttributeConstant = "account"

	platformGetErrorTemplateConstant    = "failed to read secret %s/%s with %s: %w"
	platformSetErrorTemplateConstant    = "failed to write secret %s/%s with %s: %w"
	platformDeleteErrorTemplateConstant = "failed to delete secret %s/%s with %s: %w"
)

// CommandExecutor runs external commands.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// PlatformCLI drives the macOS security tool or the freedesktop secret-tool.
type PlatformCLI struct {
	executor CommandExecutor
	tool     execshell.CommandName
}

// NewPlatformCLI constructs a PlatformCLI for the given operating system name.
func NewPlatformCLI(executor CommandExecutor, operatingSystem string) *PlatformCLI {
	return &PlatformCLI{executor: executor, tool: PlatformTool(operatingSystem)}
}

// PlatformTool returns the secret tool used on operatingSystem.
func PlatformTool(operatingSystem string) execshell.CommandName {
	if operatingSystem == darwinOperatingSystemConstant {
		return execshell.CommandSecurity
	}
	return execshell.CommandSecretTool
}

// Kind reports KindPlatformCLI.
func (store *PlatformCLI) Kind() Kind {
	return KindPlatformCLI
}

// Get looks a secret up. A non-zero exit from the tool means the secret is absent.
func (store *PlatformCLI) Get(executionContext context.Context, service string, name string) (string, bool, error) {
	details := execshell.CommandDetails{}
	if store.tool == execshell.CommandSecurity {
		details.Arguments = []string{securityFindSubcommandConstant, securityServiceFlagConstant, service, securityAccountFlagConstant, name, securityPasswordFlagConstant}
	} else {
		details.Arguments = []string{secretToolLookupSubcommandConstant, secretToolServiceAttributeConstant, service, secretToolAccountAttributeConstant, name}
	}

	result, executionError := store.executor.Execute(executionContext, execshell.ShellCommand{Name: store.tool, Details: details})
	if executionError != nil {
		if isCommandFailure(executionError) {
			return "", false, nil
		}
		return "", false, fmt.Errorf(platformGetErrorTemplateConstant, service, name, store.tool, executionError)
	}

	value := strings.TrimRight(result.StandardOutput, "\r\n")
	if len(value) == 0 {
		return "", false, nil
	}
	return value, true, nil
}

// Set stores a secret. secret-tool receives the value on standard input.
func (store *PlatformCLI) Set(executionContext context.Context, service string, name string, value string) error {
	details := execshell.CommandDetails{}
	if store.tool == execshell.CommandSecurity {
		details.Arguments = []string{securityAddSubcommandConstant, securityUpdateFlagConstant, securityServiceFlagConstant, service, securityAccountFlagConstant, name, securityPasswordFlagConstant, value}
		details.SensitiveArgumentFlags = []string{securityPasswordFlagConstant}
	} else {
		details.Arguments = []string{secretToolStoreSubcommandConstant, fmt.Sprintf(secretToolLabelTemplateConstant, service, name), secretToolServiceAttributeConstant, service, secretToolAccountAttributeConstant, name}
		details.StandardInput = []byte(value)
	}

	if _, executionError := store.executor.Execute(executionContext, execshell.ShellCommand{Name: store.tool, Details: details}); executionError != nil {
		return fmt.Errorf(platformSetErrorTemplateConstant, service, name, store.tool, executionError)
	}
	return nil
}

// Delete removes a secret. A non-zero exit is treated as already absent.
func (store *PlatformCLI) Delete(executionContext context.Context, service string, name string) error {
	details := execshell.CommandDetails{}
	if store.tool == execshell.CommandSecurity {
		details.Arguments = []string{securityDeleteSubcommandConstant, securityServiceFlagConstant, service, securityAccountFlagConstant, name}
	} else {
		details.Arguments = []string{secretToolClearSubcommandConstant, secretToolServiceAttributeConstant, service, secretToolAccountAttributeConstant, name}
	}

	_, executionError := store.executor.Execute(executionContext, execshell.ShellCommand{Name: store.tool, Details: details})
	if executionError != nil && !isCommandFailure(executionError) {
		return fmt.Errorf(platformDeleteErrorTemplateConstant, service, name, store.tool, executionError)
	}
	return nil
}

func isCommandFailure(executionError error) bool {
	var commandFailure execshell.CommandFailedError
	return errors.As(executionError, &commandFailure)
}

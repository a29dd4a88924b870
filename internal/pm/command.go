package pm

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/fleetaudit/internal/discovery"
	"github.com/temirov/fleetaudit/internal/execshell"
	"github.com/temirov/fleetaudit/internal/ui"
	pathutils "github.com/temirov/fleetaudit/internal/utils/path"
)

const (
	pmCommandUseConstant                    = "pm"
	pmCommandShortDescriptionConstant       = "Run the package manager across every project"
	pmCommandLongDescriptionConstant        = "pm delegates outdated, update and info to the bun executable in every project directory under the roots."
	outdatedCommandUseConstant              = "outdated"
	outdatedCommandShortDescriptionConstant = "Report outdated dependencies in every project"
	updateCommandUseConstant                = "update"
	updateCommandShortDescriptionConstant   = "Update dependencies in every project"
	infoCommandUseConstant                  = "info <package>"
	infoCommandShortDescriptionConstant     = "Show package metadata as resolved by every project"
	rootFlagNameConstant                    = "root"
	rootFlagDescriptionConstant             = "Directory whose child folders are processed (repeatable)"
	dryRunFlagNameConstant                  = "dry-run"
	dryRunFlagDescriptionConstant           = "Print the planned invocations without running them"
	rootsMissingErrorMessageConstant        = "no project roots provided; specify --root or configure defaults"
	commandExecutionErrorTemplateConstant   = "pm %s failed: %w"
	executorCreationErrorTemplateConstant   = "failed to create package manager executor: %w"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current pm configuration.
type ConfigurationProvider func() Configuration

// ProjectDiscoverer lists project directories beneath the supplied roots.
type ProjectDiscoverer interface {
	DiscoverProjects(roots []string) ([]string, error)
}

// CommandBuilder assembles the pm command hierarchy.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	Discoverer            ProjectDiscoverer
	Executor              PackageManagerExecutor
}

// Build constructs the pm command with the outdated, update and info subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	pmCommand := &cobra.Command{
		Use:   pmCommandUseConstant,
		Short: pmCommandShortDescriptionConstant,
		Long:  pmCommandLongDescriptionConstant,
	}
	pmCommand.PersistentFlags().StringSlice(rootFlagNameConstant, nil, rootFlagDescriptionConstant)
	pmCommand.PersistentFlags().Bool(dryRunFlagNameConstant, false, dryRunFlagDescriptionConstant)

	outdatedCommand := &cobra.Command{
		Use:   outdatedCommandUseConstant,
		Short: outdatedCommandShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.runOperation(OperationOutdated),
	}
	updateCommand := &cobra.Command{
		Use:   updateCommandUseConstant,
		Short: updateCommandShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.runOperation(OperationUpdate),
	}
	infoCommand := &cobra.Command{
		Use:   infoCommandUseConstant,
		Short: infoCommandShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE:  builder.runOperation(OperationInfo),
	}

	pmCommand.AddCommand(outdatedCommand, updateCommand, infoCommand)
	return pmCommand, nil
}

func (builder *CommandBuilder) runOperation(operation Operation) func(*cobra.Command, []string) error {
	return func(command *cobra.Command, arguments []string) error {
		configuration, configurationError := builder.parseConfiguration(command)
		if configurationError != nil {
			return configurationError
		}

		roots := pathutils.NewRootPathSanitizer(pathutils.NewHomeExpander()).Sanitize(configuration.Roots)
		if len(roots) == 0 {
			return errors.New(rootsMissingErrorMessageConstant)
		}

		request := Request{Operation: operation, DryRun: configuration.DryRun}
		if len(arguments) > 0 {
			request.PackageName = arguments[0]
		}

		discoverer := builder.Discoverer
		if discoverer == nil {
			discoverer = discovery.NewFilesystemProjectDiscoverer()
		}
		projectDirectories, discoveryError := discoverer.DiscoverProjects(roots)
		if discoveryError != nil {
			return fmt.Errorf(commandExecutionErrorTemplateConstant, operation, discoveryError)
		}

		packageManager, executorError := builder.resolveExecutor()
		if executorError != nil {
			return executorError
		}

		executor := NewExecutor(Dependencies{
			Executor: packageManager,
			Output:   command.OutOrStdout(),
			Errors:   command.ErrOrStderr(),
		})
		if _, executionError := executor.Execute(command.Context(), projectDirectories, request); executionError != nil {
			return fmt.Errorf(commandExecutionErrorTemplateConstant, operation, executionError)
		}
		return nil
	}
}

func (builder *CommandBuilder) parseConfiguration(command *cobra.Command) (Configuration, error) {
	configuration := DefaultConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	if command.Flags().Changed(rootFlagNameConstant) {
		flagRoots, rootsError := command.Flags().GetStringSlice(rootFlagNameConstant)
		if rootsError != nil {
			return Configuration{}, rootsError
		}
		configuration.Roots = flagRoots
	}
	if command.Flags().Changed(dryRunFlagNameConstant) {
		flagDryRun, dryRunError := command.Flags().GetBool(dryRunFlagNameConstant)
		if dryRunError != nil {
			return Configuration{}, dryRunError
		}
		configuration.DryRun = flagDryRun
	}

	return configuration.Sanitize(), nil
}

func (builder *CommandBuilder) resolveExecutor() (PackageManagerExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}
	logger := builder.resolveLogger()
	shellExecutor, creationError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), ui.NewConsoleCommandEventLogger(logger))
	if creationError != nil {
		return nil, fmt.Errorf(executorCreationErrorTemplateConstant, creationError)
	}
	return shellExecutor, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

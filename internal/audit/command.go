package audit

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/fleetaudit/internal/discovery"
	"github.com/temirov/fleetaudit/internal/execshell"
	"github.com/temirov/fleetaudit/internal/scanner"
	"github.com/temirov/fleetaudit/internal/secrets"
	"github.com/temirov/fleetaudit/internal/snapshot"
	"github.com/temirov/fleetaudit/internal/ui"
	"github.com/temirov/fleetaudit/internal/utils"
	pathutils "github.com/temirov/fleetaudit/internal/utils/path"
	"github.com/temirov/fleetaudit/internal/workerpool"
	"github.com/temirov/fleetaudit/internal/xref"
)

const (
	commandUseConstant                   = "audit [root ...]"
	commandShortDescriptionConstant      = "Audit sibling projects for package manager configuration and lifecycle hook trust"
	commandLongDescriptionConstant       = "audit scans every project directory under the roots, classifies dependencies that declare install lifecycle hooks, and reports drift against the previous snapshot."
	flagRootName                         = "root"
	flagRootDescription                  = "Directory whose child folders are audited (repeatable)"
	flagWorkersName                      = "workers"
	flagWorkersDescription               = "Maximum number of scan worker processes"
	flagTimeoutName                      = "timeout"
	flagTimeoutDescription               = "Timeout for the whole scan batch"
	flagReadOnlyName                     = "read-only"
	flagReadOnlyDescription              = "Do not write the snapshot or the audit log"
	flagVerboseName                      = "verbose"
	flagVerboseDescription               = "Log per-file parse failures"
	flagFailOnDriftName                  = "fail-on-drift"
	flagFailOnDriftDescription           = "Exit with an error when drift is detected"
	flagSnapshotDirName                  = "snapshot-dir"
	flagSnapshotDirDescription           = "Directory that holds .audit state (defaults to the first root)"
	flagSecretServiceName                = "secret-service"
	flagSecretServiceDescription         = "Secret store service name for registry tokens"
	rootsMissingErrorMessageConstant     = "no project roots provided; specify --root or configure defaults"
	commandExecutionTemplateConstant     = "audit failed: %w"
	renderOutputErrorTemplateConstant    = "failed to write audit report: %w"
	crossReferencerErrorTemplateConstant = "failed to prepare cross-referencer: %w"
)

// LoggerProvider supplies a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current audit configuration.
type ConfigurationProvider func() CommandConfiguration

// WorkerArgumentsProvider returns root-level arguments forwarded to worker processes, such as --config.
type WorkerArgumentsProvider func() []string

// CommandBuilder assembles the audit cobra command with configurable dependencies.
type CommandBuilder struct {
	LoggerProvider          LoggerProvider
	ConfigurationProvider   ConfigurationProvider
	WorkerArgumentsProvider WorkerArgumentsProvider
	Discoverer              ProjectDiscoverer
	WorkerLauncher          workerpool.WorkerLauncher
	SecretStore             secrets.Store
	Clock                   Clock
	CPUCount                int
	HomeDirectory           string
}

// Build constructs the cobra command for fleet audits.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().StringSlice(flagRootName, nil, flagRootDescription)
	command.Flags().Int(flagWorkersName, 0, flagWorkersDescription)
	command.Flags().Duration(flagTimeoutName, 0, flagTimeoutDescription)
	command.Flags().Bool(flagReadOnlyName, false, flagReadOnlyDescription)
	command.Flags().Bool(flagVerboseName, false, flagVerboseDescription)
	command.Flags().Bool(flagFailOnDriftName, false, flagFailOnDriftDescription)
	command.Flags().String(flagSnapshotDirName, "", flagSnapshotDirDescription)
	command.Flags().String(flagSecretServiceName, "", flagSecretServiceDescription)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration, configurationError := builder.parseConfiguration(command, arguments)
	if configurationError != nil {
		return configurationError
	}

	logger := builder.resolveLogger()
	clock := builder.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	homeExpander := pathutils.NewHomeExpanderForDirectory(builder.resolveHomeDirectory())
	rootSanitizer := pathutils.NewRootPathSanitizer(homeExpander)
	roots := rootSanitizer.Sanitize(configuration.Roots)
	if len(roots) == 0 {
		if helpError := command.Help(); helpError != nil {
			return helpError
		}
		return errors.New(rootsMissingErrorMessageConstant)
	}
	snapshotRoot := roots[0]
	if len(configuration.SnapshotDir) > 0 {
		snapshotRoot = homeExpander.Expand(configuration.SnapshotDir)
	}

	signalContext, stopSignals := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	projectScanner := scanner.NewScanner(scanner.Options{
		Logger:        logger,
		SecretStore:   builder.resolveSecretStore(logger),
		SecretService: configuration.SecretService,
		HomeDirectory: homeExpander.HomeDirectory(),
		Verbose:       configuration.Verbose,
	})
	coordinator := workerpool.NewCoordinator(workerpool.Options{
		Launcher:   builder.resolveLauncher(configuration),
		Scanner:    projectScanner,
		Logger:     logger,
		Timeout:    configuration.Timeout,
		CPUCount:   builder.CPUCount,
		MaxWorkers: configuration.Workers,
	})
	crossReferencer, crossReferencerError := xref.NewCrossReferencer(xref.Options{Logger: logger, Verbose: configuration.Verbose})
	if crossReferencerError != nil {
		return fmt.Errorf(crossReferencerErrorTemplateConstant, crossReferencerError)
	}

	clockFunction := func() time.Time { return clock.Now() }
	discoverer := builder.Discoverer
	if discoverer == nil {
		discoverer = discovery.NewFilesystemProjectDiscoverer()
	}
	service := NewService(ServiceDependencies{
		Discoverer:      discoverer,
		BatchScanner:    coordinator,
		CrossReferencer: crossReferencer,
		SnapshotStore:   snapshot.NewStore(snapshotRoot, snapshot.StoreOptions{Logger: logger, Clock: clockFunction}),
		AuditLog:        snapshot.NewAuditLog(snapshotRoot, clockFunction),
		RootSanitizer:   rootSanitizer,
	})

	runContext := NewRunContext(clock, logger)
	runExecutionContext := utils.NewCommandContextAccessor().WithRunIdentifier(signalContext, runContext.RunID)
	report, runError := service.Run(runExecutionContext, runContext, RunOptions{
		Roots:       roots,
		ReadOnly:    configuration.ReadOnly,
		FailOnDrift: configuration.FailOnDrift,
	})
	if runError != nil && !errors.Is(runError, ErrDriftDetected) {
		var interrupted InterruptedError
		if errors.As(runError, &interrupted) {
			return interrupted
		}
		return fmt.Errorf(commandExecutionTemplateConstant, runError)
	}

	if _, writeError := fmt.Fprint(command.OutOrStdout(), ui.RenderAuditSummary(report.Summary())); writeError != nil {
		return fmt.Errorf(renderOutputErrorTemplateConstant, writeError)
	}
	return runError
}

func (builder *CommandBuilder) parseConfiguration(command *cobra.Command, arguments []string) (CommandConfiguration, error) {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	flagRoots, flagRootsError := command.Flags().GetStringSlice(flagRootName)
	if flagRootsError != nil {
		return CommandConfiguration{}, flagRootsError
	}
	if command.Flags().Changed(flagRootName) || len(arguments) > 0 {
		configuration.Roots = append(append([]string{}, flagRoots...), arguments...)
	}

	if command.Flags().Changed(flagWorkersName) {
		workers, workersError := command.Flags().GetInt(flagWorkersName)
		if workersError != nil {
			return CommandConfiguration{}, workersError
		}
		configuration.Workers = workers
	}
	if command.Flags().Changed(flagTimeoutName) {
		timeout, timeoutError := command.Flags().GetDuration(flagTimeoutName)
		if timeoutError != nil {
			return CommandConfiguration{}, timeoutError
		}
		configuration.Timeout = timeout
	}

	booleanFlags := map[string]*bool{
		flagReadOnlyName:    &configuration.ReadOnly,
		flagVerboseName:     &configuration.Verbose,
		flagFailOnDriftName: &configuration.FailOnDrift,
	}
	for flagName, target := range booleanFlags {
		if !command.Flags().Changed(flagName) {
			continue
		}
		value, valueError := command.Flags().GetBool(flagName)
		if valueError != nil {
			return CommandConfiguration{}, valueError
		}
		*target = value
	}

	stringFlags := map[string]*string{
		flagSnapshotDirName:   &configuration.SnapshotDir,
		flagSecretServiceName: &configuration.SecretService,
	}
	for flagName, target := range stringFlags {
		if !command.Flags().Changed(flagName) {
			continue
		}
		value, valueError := command.Flags().GetString(flagName)
		if valueError != nil {
			return CommandConfiguration{}, valueError
		}
		*target = value
	}

	return configuration.sanitize(), nil
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

func (builder *CommandBuilder) resolveSecretStore(logger *zap.Logger) secrets.Store {
	if builder.SecretStore != nil {
		return builder.SecretStore
	}
	return selectSecretStore(logger)
}

func (builder *CommandBuilder) resolveHomeDirectory() string {
	if len(builder.HomeDirectory) > 0 {
		return builder.HomeDirectory
	}
	homeDirectory, homeError := os.UserHomeDir()
	if homeError != nil {
		return ""
	}
	return homeDirectory
}

func (builder *CommandBuilder) resolveLauncher(configuration CommandConfiguration) workerpool.WorkerLauncher {
	if builder.WorkerLauncher != nil {
		return builder.WorkerLauncher
	}
	var forwardedArguments []string
	if builder.WorkerArgumentsProvider != nil {
		forwardedArguments = builder.WorkerArgumentsProvider()
	}
	return &workerpool.ProcessLauncher{Arguments: workerArguments(configuration, forwardedArguments)}
}

func workerArguments(configuration CommandConfiguration, forwardedArguments []string) []string {
	arguments := []string{workerpool.WorkerCommandName, "--" + flagSecretServiceName, configuration.SecretService}
	if configuration.Verbose {
		arguments = append(arguments, "--"+flagVerboseName)
	}
	return append(arguments, forwardedArguments...)
}

// selectSecretStore probes the secret store backends once for this process.
func selectSecretStore(logger *zap.Logger) secrets.Store {
	var executor secrets.CommandExecutor
	if shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner()); executorError == nil {
		executor = shellExecutor
	}
	return secrets.Select(secrets.SelectionOptions{Logger: logger, Executor: executor})
}

package audit

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/temirov/fleetaudit/internal/scanner"
	"github.com/temirov/fleetaudit/internal/secrets"
	"github.com/temirov/fleetaudit/internal/workerpool"
)

const (
	workerCommandShortDescriptionConstant = "Serve project scan requests over stdin and stdout"
)

// WorkerCommandBuilder assembles the hidden scan worker command launched by the coordinator.
type WorkerCommandBuilder struct {
	LoggerProvider LoggerProvider
	SecretStore    secrets.Store
	HomeDirectory  string
}

// Build constructs the scan worker command.
func (builder *WorkerCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:    workerpool.WorkerCommandName,
		Short:  workerCommandShortDescriptionConstant,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE:   builder.run,
	}

	command.Flags().String(flagSecretServiceName, scanner.DefaultSecretService, flagSecretServiceDescription)
	command.Flags().Bool(flagVerboseName, false, flagVerboseDescription)

	return command, nil
}

func (builder *WorkerCommandBuilder) run(command *cobra.Command, _ []string) error {
	// The coordinator owns interrupt handling and kills workers itself.
	signal.Ignore(os.Interrupt)

	secretService, serviceError := command.Flags().GetString(flagSecretServiceName)
	if serviceError != nil {
		return serviceError
	}
	verbose, verboseError := command.Flags().GetBool(flagVerboseName)
	if verboseError != nil {
		return verboseError
	}

	auditBuilder := CommandBuilder{LoggerProvider: builder.LoggerProvider, SecretStore: builder.SecretStore, HomeDirectory: builder.HomeDirectory}
	logger := auditBuilder.resolveLogger()
	projectScanner := scanner.NewScanner(scanner.Options{
		Logger:        logger,
		SecretStore:   auditBuilder.resolveSecretStore(logger),
		SecretService: secretService,
		HomeDirectory: auditBuilder.resolveHomeDirectory(),
		Verbose:       verbose,
	})

	return workerpool.Serve(command.Context(), command.InOrStdin(), command.OutOrStdout(), projectScanner, logger)
}

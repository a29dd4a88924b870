package pm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/temirov/fleetaudit/internal/execshell"
	"github.com/temirov/fleetaudit/internal/projectconfig"
)

// Operation names a package manager subcommand.
type Operation string

// Supported package manager operations.
const (
	OperationOutdated Operation = "outdated"
	OperationUpdate   Operation = "update"
	OperationInfo     Operation = "info"
)

const (
	skipMessageTemplateConstant          = "PM-SKIP: %s has no %s\n"
	planMessageTemplateConstant          = "PM-PLAN: %s bun %s\n"
	doneMessageTemplateConstant          = "PM-DONE: %s bun %s\n"
	failureMessageTemplateConstant       = "ERROR: bun %s failed in %s: %v\n"
	failuresErrorTemplateConstant        = "%w: %d of %d projects"
	packageRequiredErrorConstant         = "bun info requires a package name"
	unsupportedOperationTemplateConstant = "unsupported package manager operation %q"
)

var (
	// ErrProjectsFailed indicates at least one project's package manager invocation failed.
	ErrProjectsFailed = errors.New("package manager failed")
	// ErrExecutorNotConfigured indicates an Executor was constructed without a command executor.
	ErrExecutorNotConfigured = errors.New("package manager executor not configured")
)

// Request describes one package manager invocation applied to every project.
type Request struct {
	Operation   Operation
	PackageName string
	DryRun      bool
}

// Arguments returns the bun arguments for the request.
func (request Request) Arguments() ([]string, error) {
	switch request.Operation {
	case OperationOutdated, OperationUpdate:
		return []string{string(request.Operation)}, nil
	case OperationInfo:
		packageName := strings.TrimSpace(request.PackageName)
		if len(packageName) == 0 {
			return nil, errors.New(packageRequiredErrorConstant)
		}
		return []string{string(request.Operation), packageName}, nil
	default:
		return nil, fmt.Errorf(unsupportedOperationTemplateConstant, request.Operation)
	}
}

// PackageManagerExecutor runs the package manager executable.
type PackageManagerExecutor interface {
	ExecutePackageManager(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Dependencies supplies collaborators required for package manager runs.
type Dependencies struct {
	Executor PackageManagerExecutor
	Output   io.Writer
	Errors   io.Writer
}

// Summary counts per-project outcomes.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Executor runs a package manager request in each project directory, one at a time.
type Executor struct {
	dependencies Dependencies
}

// NewExecutor constructs an Executor with the provided dependencies.
func NewExecutor(dependencies Dependencies) *Executor {
	return &Executor{dependencies: dependencies}
}

// Execute runs the request in every project. Directories without a manifest are
// skipped. Failures are reported per project and summarized in the returned error.
func (executor *Executor) Execute(executionContext context.Context, projectDirectories []string, request Request) (Summary, error) {
	arguments, argumentsError := request.Arguments()
	if argumentsError != nil {
		return Summary{}, argumentsError
	}
	if executor.dependencies.Executor == nil && !request.DryRun {
		return Summary{}, ErrExecutorNotConfigured
	}

	commandLine := strings.Join(arguments, " ")
	summary := Summary{}
	for _, projectDirectory := range projectDirectories {
		if contextError := executionContext.Err(); contextError != nil {
			return summary, contextError
		}

		if _, statError := os.Stat(filepath.Join(projectDirectory, projectconfig.ManifestFileName)); statError != nil {
			executor.printfOutput(skipMessageTemplateConstant, projectDirectory, projectconfig.ManifestFileName)
			summary.Skipped++
			continue
		}

		if request.DryRun {
			executor.printfOutput(planMessageTemplateConstant, projectDirectory, commandLine)
			summary.Succeeded++
			continue
		}

		result, executionError := executor.dependencies.Executor.ExecutePackageManager(executionContext, execshell.CommandDetails{
			Arguments:        arguments,
			WorkingDirectory: projectDirectory,
		})
		if executionError != nil {
			executor.printfError(failureMessageTemplateConstant, commandLine, projectDirectory, executionError)
			summary.Failed++
			continue
		}

		executor.printfOutput(doneMessageTemplateConstant, projectDirectory, commandLine)
		if output := strings.TrimRight(result.StandardOutput, "\n"); len(output) > 0 {
			executor.printfOutput("%s\n", output)
		}
		summary.Succeeded++
	}

	if summary.Failed > 0 {
		return summary, fmt.Errorf(failuresErrorTemplateConstant, ErrProjectsFailed, summary.Failed, summary.Failed+summary.Succeeded)
	}
	return summary, nil
}

func (executor *Executor) printfOutput(format string, arguments ...any) {
	if executor.dependencies.Output == nil {
		return
	}
	fmt.Fprintf(executor.dependencies.Output, format, arguments...)
}

func (executor *Executor) printfError(format string, arguments ...any) {
	if executor.dependencies.Errors == nil {
		return
	}
	fmt.Fprintf(executor.dependencies.Errors, format, arguments...)
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/temirov/fleetaudit/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
	defaultExitCodeConstant   = 1
)

type exitCoder interface {
	ExitCode() int
}

// main executes the fleet-audit command-line application.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		exitCode := defaultExitCodeConstant
		var coder exitCoder
		if errors.As(executionError, &coder) {
			exitCode = coder.ExitCode()
		}
		os.Exit(exitCode)
	}
}

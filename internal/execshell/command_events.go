package execshell

// CommandEventObserver follows bun and keychain invocations as the executor runs them.
type CommandEventObserver interface {
	CommandStarted(command ShellCommand)
	// CommandCompleted fires for every command that produced a result, including non-zero exits.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed fires when the runner could not produce a result at all.
	CommandExecutionFailed(command ShellCommand, failure error)
}

// observerChain delivers events to observers in registration order.
type observerChain []CommandEventObserver

func newObserverChain(observers []CommandEventObserver) observerChain {
	chain := make(observerChain, 0, len(observers))
	for _, observer := range observers {
		if observer != nil {
			chain = append(chain, observer)
		}
	}
	return chain
}

func (chain observerChain) started(command ShellCommand) {
	for _, observer := range chain {
		observer.CommandStarted(command)
	}
}

func (chain observerChain) completed(command ShellCommand, result ExecutionResult) {
	for _, observer := range chain {
		observer.CommandCompleted(command, result)
	}
}

func (chain observerChain) failed(command ShellCommand, failure error) {
	for _, observer := range chain {
		observer.CommandExecutionFailed(command, failure)
	}
}

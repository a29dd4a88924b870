package secrets_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/temirov/fleetaudit/internal/execshell"
	"github.com/temirov/fleetaudit/internal/secrets"
)

const (
	testServiceConstant = "fleet-audit"
	testAccountConstant = "registry.npmjs.org"
	testSecretConstant  = "npm_token_value"
	testSubtestTemplate = "%d_%s"
	testDarwinConstant  = "darwin"
	testLinuxConstant   = "linux"
)

type scriptedExecutor struct {
	result   execshell.ExecutionResult
	err      error
	commands []execshell.ShellCommand
}

func (executor *scriptedExecutor) Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	executor.commands = append(executor.commands, command)
	return executor.result, executor.err
}

func TestNativeStoreRoundTrip(testInstance *testing.T) {
	keyring.MockInit()
	store := secrets.NewNativeStore()
	executionContext := context.Background()

	_, found, getError := store.Get(executionContext, testServiceConstant, testAccountConstant)
	require.NoError(testInstance, getError)
	require.False(testInstance, found)

	require.NoError(testInstance, store.Set(executionContext, testServiceConstant, testAccountConstant, testSecretConstant))

	value, found, getError := store.Get(executionContext, testServiceConstant, testAccountConstant)
	require.NoError(testInstance, getError)
	require.True(testInstance, found)
	require.Equal(testInstance, testSecretConstant, value)

	require.NoError(testInstance, store.Delete(executionContext, testServiceConstant, testAccountConstant))
	require.NoError(testInstance, store.Delete(executionContext, testServiceConstant, testAccountConstant))

	_, found, getError = store.Get(executionContext, testServiceConstant, testAccountConstant)
	require.NoError(testInstance, getError)
	require.False(testInstance, found)
}

func TestPlatformCLIGet(testInstance *testing.T) {
	testCases := []struct {
		name              string
		operatingSystem   string
		result            execshell.ExecutionResult
		executionError    error
		expectedValue     string
		expectedFound     bool
		expectError       bool
		expectedTool      execshell.CommandName
		expectedArguments []string
	}{
		{
			name:              "security_found",
			operatingSystem:   testDarwinConstant,
			result:            execshell.ExecutionResult{StandardOutput: testSecretConstant + "\n"},
			expectedValue:     testSecretConstant,
			expectedFound:     true,
			expectedTool:      execshell.CommandSecurity,
			expectedArguments: []string{"find-generic-password", "-s", testServiceConstant, "-a", testAccountConstant, "-w"},
		},
		{
			name:              "secret_tool_missing",
			operatingSystem:   testLinuxConstant,
			executionError:    execshell.CommandFailedError{Result: execshell.ExecutionResult{ExitCode: 1}},
			expectedTool:      execshell.CommandSecretTool,
			expectedArguments: []string{"lookup", "service", testServiceConstant, "account", testAccountConstant},
		},
		{
			name:              "tool_not_runnable",
			operatingSystem:   testLinuxConstant,
			executionError:    execshell.CommandExecutionError{Cause: errors.New("not found")},
			expectError:       true,
			expectedTool:      execshell.CommandSecretTool,
			expectedArguments: []string{"lookup", "service", testServiceConstant, "account", testAccountConstant},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplate, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			executor := &scriptedExecutor{result: testCase.result, err: testCase.executionError}
			store := secrets.NewPlatformCLI(executor, testCase.operatingSystem)

			value, found, getError := store.Get(context.Background(), testServiceConstant, testAccountConstant)
			if testCase.expectError {
				require.Error(testInstance, getError)
			} else {
				require.NoError(testInstance, getError)
			}
			require.Equal(testInstance, testCase.expectedValue, value)
			require.Equal(testInstance, testCase.expectedFound, found)
			require.Len(testInstance, executor.commands, 1)
			require.Equal(testInstance, testCase.expectedTool, executor.commands[0].Name)
			require.Equal(testInstance, testCase.expectedArguments, executor.commands[0].Details.Arguments)
		})
	}
}

func TestPlatformCLISetKeepsSecretOffCommandLineForSecretTool(testInstance *testing.T) {
	executor := &scriptedExecutor{}
	store := secrets.NewPlatformCLI(executor, testLinuxConstant)

	require.NoError(testInstance, store.Set(context.Background(), testServiceConstant, testAccountConstant, testSecretConstant))
	require.Len(testInstance, executor.commands, 1)
	require.NotContains(testInstance, executor.commands[0].Details.Arguments, testSecretConstant)
	require.Equal(testInstance, []byte(testSecretConstant), executor.commands[0].Details.StandardInput)
}

func TestPlatformCLISetMarksSecurityPasswordSensitive(testInstance *testing.T) {
	executor := &scriptedExecutor{}
	store := secrets.NewPlatformCLI(executor, testDarwinConstant)

	require.NoError(testInstance, store.Set(context.Background(), testServiceConstant, testAccountConstant, testSecretConstant))
	require.Equal(testInstance, []string{"-w"}, executor.commands[0].Details.SensitiveArgumentFlags)
}

func TestUnavailableStore(testInstance *testing.T) {
	store := secrets.Unavailable{}
	_, found, getError := store.Get(context.Background(), testServiceConstant, testAccountConstant)
	require.NoError(testInstance, getError)
	require.False(testInstance, found)
	require.ErrorIs(testInstance, store.Set(context.Background(), testServiceConstant, testAccountConstant, testSecretConstant), secrets.ErrSecretStoreUnavailable)
	require.ErrorIs(testInstance, store.Delete(context.Background(), testServiceConstant, testAccountConstant), secrets.ErrSecretStoreUnavailable)
}

func TestSelect(testInstance *testing.T) {
	probeFailure := errors.New("no secret service on the session bus")
	foundTool := func(string) (string, error) { return "/usr/bin/tool", nil }
	missingTool := func(string) (string, error) { return "", errors.New("not found") }

	testCases := []struct {
		name         string
		probe        func() error
		lookPath     func(string) (string, error)
		executor     secrets.CommandExecutor
		expectedKind secrets.Kind
	}{
		{
			name:         "native_preferred",
			probe:        func() error { return nil },
			lookPath:     foundTool,
			executor:     &scriptedExecutor{},
			expectedKind: secrets.KindNative,
		},
		{
			name:         "platform_tool_fallback",
			probe:        func() error { return probeFailure },
			lookPath:     foundTool,
			executor:     &scriptedExecutor{},
			expectedKind: secrets.KindPlatformCLI,
		},
		{
			name:         "unavailable_without_tool",
			probe:        func() error { return probeFailure },
			lookPath:     missingTool,
			executor:     &scriptedExecutor{},
			expectedKind: secrets.KindUnavailable,
		},
		{
			name:         "unavailable_without_executor",
			probe:        func() error { return probeFailure },
			lookPath:     foundTool,
			expectedKind: secrets.KindUnavailable,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestTemplate, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			probeCalls := 0
			store := secrets.Select(secrets.SelectionOptions{
				Executor:        testCase.executor,
				OperatingSystem: testLinuxConstant,
				NativeProbe: func() error {
					probeCalls++
					return testCase.probe()
				},
				LookPath: testCase.lookPath,
			})
			require.Equal(testInstance, testCase.expectedKind, store.Kind())
			require.Equal(testInstance, 1, probeCalls)
		})
	}
}

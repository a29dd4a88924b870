package secrets

import (
	"errors"
	"os/exec"
	"runtime"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const (
	nativeProbeServiceConstant       = "fleet-audit-probe"
	nativeProbeAccountConstant       = "probe"
	selectedStoreMessageConstant     = "secret store selected"
	storeKindFieldConstant           = "secret_store"
	nativeProbeFailedMessageConstant = "native keyring unavailable"
)

// SelectionOptions configures secret store selection.
type SelectionOptions struct {
	Logger          *zap.Logger
	Executor        CommandExecutor
	OperatingSystem string
	// NativeProbe reports whether the OS keyring is usable. Defaults to a keyring lookup of a probe entry.
	NativeProbe func() error
	// LookPath locates executables. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// Select probes the environment once and returns the store to use for the whole run.
// The keyring is preferred, then the platform tool, then Unavailable.
func Select(options SelectionOptions) Store {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	operatingSystem := options.OperatingSystem
	if len(operatingSystem) == 0 {
		operatingSystem = runtime.GOOS
	}
	nativeProbe := options.NativeProbe
	if nativeProbe == nil {
		nativeProbe = probeNativeKeyring
	}
	lookPath := options.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	var selected Store = Unavailable{}
	if probeError := nativeProbe(); probeError == nil {
		selected = NewNativeStore()
	} else {
		logger.Debug(nativeProbeFailedMessageConstant, zap.Error(probeError))
		if options.Executor != nil {
			if _, lookError := lookPath(string(PlatformTool(operatingSystem))); lookError == nil {
				selected = NewPlatformCLI(options.Executor, operatingSystem)
			}
		}
	}

	logger.Debug(selectedStoreMessageConstant, zap.String(storeKindFieldConstant, string(selected.Kind())))
	return selected
}

func probeNativeKeyring() error {
	_, probeError := keyring.Get(nativeProbeServiceConstant, nativeProbeAccountConstant)
	if probeError == nil || errors.Is(probeError, keyring.ErrNotFound) {
		return nil
	}
	return probeError
}

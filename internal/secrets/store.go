// Package secrets models the credential store consulted when deciding whether a
// project is ready to authenticate against its registry.
//
// Three variants exist: NativeStore talks to the OS keyring directly,
// PlatformCLI shells out to the platform secret tool, and Unavailable reports
// that no store can be used. Select chooses one variant per run.
package secrets

import (
	"context"
	"errors"
)

// Kind identifies a secret store variant.
type Kind string

// Secret store variants.
const (
	KindNative      Kind = "native"
	KindPlatformCLI Kind = "platform-cli"
	KindUnavailable Kind = "unavailable"
)

// ErrSecretStoreUnavailable is returned by writes against the Unavailable store.
var ErrSecretStoreUnavailable = errors.New("secret store unavailable")

// Store reads and writes named secrets grouped by service.
type Store interface {
	Kind() Kind
	// Get returns the secret and true, or false with a nil error when the secret does not exist.
	Get(executionContext context.Context, service string, name string) (string, bool, error)
	Set(executionContext context.Context, service string, name string, value string) error
	Delete(executionContext context.Context, service string, name string) error
}

// Unavailable is the store used when neither the keyring nor a platform tool can be reached.
type Unavailable struct{}

// Kind reports KindUnavailable.
func (Unavailable) Kind() Kind {
	return KindUnavailable
}

// Get never finds a secret.
func (Unavailable) Get(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}

// Set always fails with ErrSecretStoreUnavailable.
func (Unavailable) Set(context.Context, string, string, string) error {
	return ErrSecretStoreUnavailable
}

// Delete always fails with ErrSecretStoreUnavailable.
func (Unavailable) Delete(context.Context, string, string) error {
	return ErrSecretStoreUnavailable
}

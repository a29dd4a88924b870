package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	nativeGetErrorTemplateConstant    = "failed to read secret %s/%s from keyring: %w"
	nativeSetErrorTemplateConstant    = "failed to write secret %s/%s to keyring: %w"
	nativeDeleteErrorTemplateConstant = "failed to delete secret %s/%s from keyring: %w"
)

// NativeStore uses the operating system keyring through go-keyring.
type NativeStore struct{}

// NewNativeStore constructs a NativeStore.
func NewNativeStore() *NativeStore {
	return &NativeStore{}
}

// Kind reports KindNative.
func (store *NativeStore) Kind() Kind {
	return KindNative
}

// Get reads a secret from the keyring.
func (store *NativeStore) Get(executionContext context.Context, service string, name string) (string, bool, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return "", false, contextError
	}
	value, getError := keyring.Get(service, name)
	if getError != nil {
		if errors.Is(getError, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf(nativeGetErrorTemplateConstant, service, name, getError)
	}
	return value, true, nil
}

// Set writes a secret to the keyring, replacing any existing value.
func (store *NativeStore) Set(executionContext context.Context, service string, name string, value string) error {
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}
	if setError := keyring.Set(service, name, value); setError != nil {
		return fmt.Errorf(nativeSetErrorTemplateConstant, service, name, setError)
	}
	return nil
}

// Delete removes a secret. Deleting a missing secret succeeds.
func (store *NativeStore) Delete(executionContext context.Context, service string, name string) error {
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}
	deleteError := keyring.Delete(service, name)
	if deleteError != nil && !errors.Is(deleteError, keyring.ErrNotFound) {
		return fmt.Errorf(nativeDeleteErrorTemplateConstant, service, name, deleteError)
	}
	return nil
}

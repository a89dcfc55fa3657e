package providers

import (
	"context"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringFetch returns a KeyCache fetch function that reads an API key
// from the OS credential store (macOS Keychain, Secret Service,
// Windows Credential Manager).
func KeyringFetch(service, account string) func(ctx context.Context) (string, error) {
	return func(context.Context) (string, error) {
		key, err := keyring.Get(service, account)
		if err != nil {
			return "", fmt.Errorf("keyring %s/%s: %w", service, account, err)
		}
		return key, nil
	}
}

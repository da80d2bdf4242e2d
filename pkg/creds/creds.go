// Package creds stores and resolves test-step credentials through the
// operating system keyring. Resolved credentials become auth_* parameter
// keys injected into test functions; raw secrets never appear in plans,
// reports, or logs.
package creds

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// ServicePrefix namespaces keyring entries owned by this tool.
const ServicePrefix = "stepwise"

// Supported authentication types.
const (
	TypeBasic = "basic"
	TypeToken = "token"
)

// Injected parameter keys.
const (
	KeyUsername = "auth_username"
	KeyPassword = "auth_password"
	KeyToken    = "auth_token"
	KeyType     = "auth_type"
)

// ErrUnsupportedType reports an authentication_type outside basic/token.
var ErrUnsupportedType = errors.New("unsupported authentication type")

// ErrNotFound reports that no stored credential matches the name.
var ErrNotFound = errors.New("credential not found")

// Keyring is the secret backend. The default implementation wraps the
// OS keyring; tests substitute an in-memory map.
type Keyring interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// SystemKeyring stores secrets in the OS keyring via zalando/go-keyring.
type SystemKeyring struct{}

func (SystemKeyring) Get(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (SystemKeyring) Set(service, key, value string) error {
	return keyring.Set(service, key, value)
}

func (SystemKeyring) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Prompter collects credentials interactively when the keyring has none.
type Prompter interface {
	Basic(authName string) (username, password string, err error)
	Token(authName string) (token string, err error)
}

// Manager resolves step authentication blocks to injected parameters.
type Manager struct {
	kr       Keyring
	prompter Prompter
}

// NewManager returns a manager over the given backend. prompter may be
// nil, in which case missing credentials are an error instead of an
// interactive prompt.
func NewManager(kr Keyring, prompter Prompter) *Manager {
	return &Manager{kr: kr, prompter: prompter}
}

// ServiceName returns the keyring service for an authentication name.
func ServiceName(authName string) string {
	return ServicePrefix + "_" + authName
}

// Get retrieves stored credentials without prompting.
func (m *Manager) Get(authType, authName string) (map[string]string, error) {
	service := ServiceName(authName)
	switch authType {
	case TypeBasic:
		username, err := m.kr.Get(service, "username")
		if err != nil {
			return nil, fmt.Errorf("credentials for %s: %w", authName, err)
		}
		password, err := m.kr.Get(service, "password")
		if err != nil {
			return nil, fmt.Errorf("credentials for %s: %w", authName, err)
		}
		return map[string]string{
			KeyUsername: username,
			KeyPassword: password,
			KeyType:     TypeBasic,
		}, nil
	case TypeToken:
		token, err := m.kr.Get(service, "token")
		if err != nil {
			return nil, fmt.Errorf("credentials for %s: %w", authName, err)
		}
		return map[string]string{
			KeyToken: token,
			KeyType:  TypeToken,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, authType)
	}
}

// Store saves credentials for an authentication name.
func (m *Manager) Store(authType, authName, username, password, token string) error {
	service := ServiceName(authName)
	switch authType {
	case TypeBasic:
		if username == "" || password == "" {
			return fmt.Errorf("store %s: username and password are required for basic authentication", authName)
		}
		if err := m.kr.Set(service, "username", username); err != nil {
			return fmt.Errorf("store %s: %w", authName, err)
		}
		if err := m.kr.Set(service, "password", password); err != nil {
			return fmt.Errorf("store %s: %w", authName, err)
		}
		return nil
	case TypeToken:
		if token == "" {
			return fmt.Errorf("store %s: token is required for token authentication", authName)
		}
		if err := m.kr.Set(service, "token", token); err != nil {
			return fmt.Errorf("store %s: %w", authName, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedType, authType)
	}
}

// Delete removes every key stored under an authentication name.
func (m *Manager) Delete(authName string) error {
	service := ServiceName(authName)
	for _, key := range []string{"username", "password", "token"} {
		if err := m.kr.Delete(service, key); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete %s: %w", authName, err)
		}
	}
	return nil
}

// Exists reports whether complete credentials are stored.
func (m *Manager) Exists(authType, authName string) bool {
	_, err := m.Get(authType, authName)
	return err == nil
}

// Resolve returns the injected parameter map for a step's authentication
// block. Stored credentials win; otherwise the prompter is asked and the
// result is stored for the next run.
func (m *Manager) Resolve(authType, authName string) (map[string]string, error) {
	if authType != TypeBasic && authType != TypeToken {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, authType)
	}

	if got, err := m.Get(authType, authName); err == nil {
		return got, nil
	}
	if m.prompter == nil {
		return nil, fmt.Errorf("credentials for %s: %w", authName, ErrNotFound)
	}

	switch authType {
	case TypeBasic:
		username, password, err := m.prompter.Basic(authName)
		if err != nil {
			return nil, fmt.Errorf("prompt for %s: %w", authName, err)
		}
		if err := m.Store(TypeBasic, authName, username, password, ""); err != nil {
			return nil, err
		}
		return map[string]string{
			KeyUsername: username,
			KeyPassword: password,
			KeyType:     TypeBasic,
		}, nil
	default:
		token, err := m.prompter.Token(authName)
		if err != nil {
			return nil, fmt.Errorf("prompt for %s: %w", authName, err)
		}
		if err := m.Store(TypeToken, authName, "", "", token); err != nil {
			return nil, err
		}
		return map[string]string{
			KeyToken: token,
			KeyType:  TypeToken,
		}, nil
	}
}

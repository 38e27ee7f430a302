// Package credentials stores the Hugging Face access token used by the
// diarization pipeline.
//
// The token is kept in the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// For CI/testing environments, set HF_TOKEN instead.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the system keyring.
	keyringService = "interview-scribe"
	// keyringUser is the user/account name used in the system keyring.
	keyringUser = "huggingface-token"

	// EnvHFToken is the environment variable read before the keyring.
	EnvHFToken = "HF_TOKEN"
)

// Common errors.
var (
	// ErrNoToken is returned when no token is stored or set.
	ErrNoToken = errors.New("no Hugging Face token configured")
	// ErrKeyringUnavailable indicates the system keyring is not available.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")
	// ErrInvalidToken is returned for empty or malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenSource is a place a token can be read from.
type TokenSource interface {
	// Token returns the token, or ErrNoToken if this source has none.
	Token() (string, error)

	// Description returns a human-readable description of the source.
	Description() string
}

// KeyringStore keeps the token in the system keyring.
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore creates a new KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// Token retrieves the token from the system keyring.
func (s *KeyringStore) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := keyring.Get(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return token, nil
}

// Set stores token, replacing any previous one.
func (s *KeyringStore) Set(token string) error {
	token = strings.TrimSpace(token)
	if err := ValidateToken(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("%w: storing token: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Delete removes the stored token. Deleting a missing token returns ErrNoToken.
func (s *KeyringStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := keyring.Delete(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNoToken
	}
	if err != nil {
		return fmt.Errorf("%w: deleting token: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Description returns a description of this store.
func (s *KeyringStore) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// EnvSource reads the token from an environment variable.
type EnvSource struct {
	envVar string
}

// NewEnvSource creates an EnvSource for envVar.
func NewEnvSource(envVar string) *EnvSource {
	return &EnvSource{envVar: envVar}
}

// Token returns the variable's value.
func (s *EnvSource) Token() (string, error) {
	token := strings.TrimSpace(os.Getenv(s.envVar))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Description returns a description of this source.
func (s *EnvSource) Description() string {
	return fmt.Sprintf("Environment variable (%s)", s.envVar)
}

// DefaultSources returns the lookup order used by the CLI:
// 1. HF_TOKEN environment variable
// 2. System keyring
func DefaultSources() []TokenSource {
	return []TokenSource{NewEnvSource(EnvHFToken), NewKeyringStore()}
}

// Resolve returns the first token found in sources and the description of
// the source it came from. An unavailable keyring is skipped, not fatal,
// unless no other source has a token.
func Resolve(sources ...TokenSource) (string, string, error) {
	var unavailable error
	for _, src := range sources {
		token, err := src.Token()
		switch {
		case err == nil:
			return token, src.Description(), nil
		case errors.Is(err, ErrNoToken):
			continue
		default:
			unavailable = err
		}
	}
	if unavailable != nil {
		return "", "", fmt.Errorf("%w (%v)", ErrNoToken, unavailable)
	}
	return "", "", ErrNoToken
}

// ValidateToken rejects empty tokens and tokens containing whitespace.
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return fmt.Errorf("%w: token contains whitespace", ErrInvalidToken)
	}
	return nil
}

// Mask hides all but the first and last four characters of a token.
func Mask(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

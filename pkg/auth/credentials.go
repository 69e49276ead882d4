package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

// DefaultTokenName is used when no name is given
const DefaultTokenName = "default"

// Token is an ingestion API credential
type Token struct {
	Name         string    `json:"name"`
	Value        string    `json:"value"`
	Endpoint     string    `json:"endpoint,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// TokenStore is the interface for storing and retrieving tokens
type TokenStore interface {
	// Store saves a token under its name
	Store(token *Token) error

	// Retrieve gets the token stored under name
	Retrieve(name string) (*Token, error)

	// List returns all stored tokens
	List() ([]*Token, error)

	// Delete removes the token stored under name
	Delete(name string) error

	// Exists checks if a token exists for name
	Exists(name string) bool
}

// Manager handles token storage with fallback mechanisms
type Manager struct {
	stores []TokenStore
}

// NewManager layers the system keychain (when available), an encrypted
// file under configDir, and the environment. An empty configDir uses the
// platform default.
func NewManager(configDir string) (*Manager, error) {
	var stores []TokenStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	if configDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		configDir = dir
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "tokens.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over explicit stores, tried in order
func NewManagerWithStores(stores ...TokenStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the token in the first store that accepts it
func (m *Manager) Store(token *Token) error {
	if token == nil || token.Value == "" {
		return errors.New("token value is required")
	}
	if token.Name == "" {
		token.Name = DefaultTokenName
	}
	token.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(token)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store token: %w", lastErr)
	}
	return errors.New("no available token stores")
}

// Retrieve gets the token from the first store that has it
func (m *Manager) Retrieve(name string) (*Token, error) {
	if name == "" {
		name = DefaultTokenName
	}
	for _, store := range m.stores {
		if token, err := store.Retrieve(name); err == nil && token != nil {
			return token, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, name)
}

// Resolve returns explicit when it is set, otherwise the stored token
// value for name. A missing token resolves to "" without error; the
// endpoint may not need one.
func (m *Manager) Resolve(explicit, name string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	token, err := m.Retrieve(name)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return "", nil
		}
		return "", err
	}
	return token.Value, nil
}

// List returns all tokens from all stores, sorted by name
func (m *Manager) List() ([]*Token, error) {
	byName := make(map[string]*Token)

	for _, store := range m.stores {
		tokens, err := store.List()
		if err != nil {
			continue
		}
		for _, token := range tokens {
			if existing, ok := byName[token.Name]; !ok || token.LastModified.After(existing.LastModified) {
				byName[token.Name] = token
			}
		}
	}

	result := make([]*Token, 0, len(byName))
	for _, token := range byName {
		result = append(result, token)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes the token from every store
func (m *Manager) Delete(name string) error {
	if name == "" {
		name = DefaultTokenName
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil && !errors.Is(lastErr, ErrTokenNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete token: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, name)
	}
	return nil
}

// ConfigDir returns the per-user configuration directory, creating it
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "feedcrawler")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "feedcrawler")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "feedcrawler")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "feedcrawler")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Sanitize returns a copy of the token with its value masked
func Sanitize(token *Token) *Token {
	if token == nil {
		return nil
	}
	return &Token{
		Name:         token.Name,
		Value:        maskString(token.Value),
		Endpoint:     token.Endpoint,
		LastModified: token.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrInvalidToken     = errors.New("invalid token")
	ErrStoreUnavailable = errors.New("token store unavailable")
)

package auth

import (
	"os"
	"time"
)

// TokenEnvVar holds a token supplied through the environment
const TokenEnvVar = "FEEDCRAWLER_API_TOKEN"

// EnvironmentStore implements TokenStore over environment variables.
// It is read-only and answers every name with the same token.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based token store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(token *Token) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(name string) (*Token, error) {
	value := os.Getenv(TokenEnvVar)
	if value == "" {
		return nil, ErrTokenNotFound
	}
	if name == "" {
		name = DefaultTokenName
	}
	return &Token{
		Name:         name,
		Value:        value,
		LastModified: time.Now(),
	}, nil
}

// List returns the environment token, if any, under the default name
func (e *EnvironmentStore) List() ([]*Token, error) {
	token, err := e.Retrieve("")
	if err != nil {
		return []*Token{}, nil
	}
	return []*Token{token}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(TokenEnvVar) != ""
}

package auth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func TestTokenManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	token := &Token{
		Name:     "staging",
		Value:    "tok_1234567890abcdef",
		Endpoint: "https://ingest.example.com/api",
	}

	if err := manager.Store(token); err != nil {
		t.Fatalf("Failed to store token: %v", err)
	}
	if token.LastModified.IsZero() {
		t.Error("Store should stamp LastModified")
	}

	retrieved, err := manager.Retrieve("staging")
	if err != nil {
		t.Fatalf("Failed to retrieve token: %v", err)
	}
	if retrieved.Value != token.Value {
		t.Errorf("Value mismatch: got %s, want %s", retrieved.Value, token.Value)
	}
	if retrieved.Endpoint != token.Endpoint {
		t.Errorf("Endpoint mismatch: got %s, want %s", retrieved.Endpoint, token.Endpoint)
	}

	tokens, err := manager.List()
	if err != nil {
		t.Fatalf("Failed to list tokens: %v", err)
	}
	if len(tokens) != 1 {
		t.Errorf("Expected 1 token, got %d", len(tokens))
	}

	sanitized := Sanitize(token)
	if sanitized.Value == token.Value {
		t.Error("Value should be masked")
	}
	if sanitized.Value != "tok_...cdef" {
		t.Errorf("Unexpected mask: %s", sanitized.Value)
	}
	if sanitized.Name != token.Name {
		t.Error("Name should not be masked")
	}

	if err := manager.Delete("staging"); err != nil {
		t.Fatalf("Failed to delete token: %v", err)
	}
	if _, err := manager.Retrieve("staging"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound, got %v", err)
	}
	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 tokens after deletion, got %d", mockStore.Count())
	}
}

func TestManagerDefaultsName(t *testing.T) {
	manager, _ := NewMockManager()

	if err := manager.Store(&Token{Value: "abc"}); err != nil {
		t.Fatalf("Failed to store token: %v", err)
	}
	got, err := manager.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve default token: %v", err)
	}
	if got.Name != DefaultTokenName {
		t.Errorf("Expected name %s, got %s", DefaultTokenName, got.Name)
	}

	if err := manager.Store(&Token{Name: "x"}); err == nil {
		t.Error("Expected an error for an empty value")
	}
}

func TestManagerResolve(t *testing.T) {
	manager, _ := NewMockManager()

	value, err := manager.Resolve("explicit", "default")
	if err != nil || value != "explicit" {
		t.Errorf("Explicit token should win, got %q, %v", value, err)
	}

	value, err = manager.Resolve("", "default")
	if err != nil || value != "" {
		t.Errorf("Missing token should resolve empty, got %q, %v", value, err)
	}

	_ = manager.Store(&Token{Name: "default", Value: "stored"})
	value, err = manager.Resolve("", "")
	if err != nil || value != "stored" {
		t.Errorf("Expected stored token, got %q, %v", value, err)
	}
}

func TestManagerFallsThroughStores(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	backup := NewMockStore()

	manager := NewManagerWithStores(broken, backup)
	if err := manager.Store(&Token{Name: "a", Value: "1"}); err != nil {
		t.Fatalf("Store should fall through: %v", err)
	}
	if backup.Count() != 1 {
		t.Errorf("Expected token in backup store, got %d", backup.Count())
	}

	if err := manager.Delete("missing"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound, got %v", err)
	}
}

func TestManagerListPrefersNewest(t *testing.T) {
	older, newer := NewMockStore(), NewMockStore()
	_ = older.Store(&Token{Name: "a", Value: "old", LastModified: time.Now().Add(-time.Hour)})
	_ = newer.Store(&Token{Name: "a", Value: "new", LastModified: time.Now()})
	_ = newer.Store(&Token{Name: "b", Value: "b", LastModified: time.Now()})

	tokens, err := NewManagerWithStores(older, newer).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 2 {
		t.Fatalf("Expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].Name != "a" || tokens[0].Value != "new" {
		t.Errorf("Expected newest 'a' first, got %+v", tokens[0])
	}
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnvVar, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "tokens.enc")

	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	if err := store.Store(&Token{Name: "prod", Value: "secret_token_value"}); err != nil {
		t.Fatalf("Failed to store in encrypted file: %v", err)
	}

	retrieved, err := store.Retrieve("prod")
	if err != nil {
		t.Fatalf("Failed to retrieve from encrypted file: %v", err)
	}
	if retrieved.Value != "secret_token_value" {
		t.Errorf("Value mismatch after encryption/decryption")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(content, []byte("secret_token_value")) {
		t.Error("File contains plaintext token")
	}

	// a second instance with the same passphrase reads the file
	again, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Exists("prod") {
		t.Error("Token should survive reopening")
	}

	if err := store.Delete("prod"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Deleting the last token should remove the file")
	}
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.enc")

	t.Setenv(PassphraseEnvVar, "right")
	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Token{Name: "a", Value: "v"}); err != nil {
		t.Fatal(err)
	}

	t.Setenv(PassphraseEnvVar, "wrong")
	other, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Retrieve("a"); err == nil || errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected a decryption failure, got %v", err)
	}
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(PassphraseEnvVar, "")
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(filepath.Join(dir, "tokens.enc"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Token{Name: "a", Value: "v"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dir, ".passphrase"))
	if err != nil {
		t.Fatalf("Passphrase file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 passphrase file, got %v", info.Mode().Perm())
	}

	reopened, err := NewEncryptedFileStore(filepath.Join(dir, "tokens.enc"))
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.Exists("a") {
		t.Error("Generated passphrase should be reused")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(TokenEnvVar, "env_token")

	store := NewEnvironmentStore()
	token, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if token.Value != "env_token" || token.Name != DefaultTokenName {
		t.Errorf("Unexpected token: %+v", token)
	}

	if err := store.Store(&Token{}); err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}

	t.Setenv(TokenEnvVar, "")
	if store.Exists("default") {
		t.Error("Empty variable should not count as a token")
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	if err != nil {
		t.Fatalf("Mock keyring should be available: %v", err)
	}

	if err := store.Store(&Token{Name: "one", Value: "1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Token{Name: "two", Value: "2"}); err != nil {
		t.Fatal(err)
	}

	tokens, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 2 {
		t.Errorf("Expected 2 tokens from index, got %d", len(tokens))
	}

	if err := store.Delete("one"); err != nil {
		t.Fatal(err)
	}
	if store.Exists("one") {
		t.Error("Deleted token still present")
	}
	if err := store.Delete("one"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound, got %v", err)
	}

	tokens, _ = store.List()
	if len(tokens) != 1 || tokens[0].Name != "two" {
		t.Errorf("Unexpected tokens after delete: %v", tokens)
	}
}

func TestMockStore(t *testing.T) {
	store := NewMockStore()

	tokens, err := store.List()
	if err != nil {
		t.Errorf("Failed to list empty store: %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("Expected 0 tokens, got %d", len(tokens))
	}

	if err := store.Store(&Token{Name: "mock", Value: "v"}); err != nil {
		t.Errorf("Failed to store token: %v", err)
	}
	if !store.Exists("mock") {
		t.Error("Token should exist")
	}

	store.ListError = fmt.Errorf("injected error")
	if _, err := store.List(); err == nil || err.Error() != "injected error" {
		t.Error("Expected injected error")
	}
}

func TestShowBundleExportGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowBundleExportGuide(&buf, "/tmp/facebook_cookies.txt")

	out := buf.String()
	for _, want := range []string{"/tmp/facebook_cookies.txt", "session capture", "c_user, xs"} {
		if !strings.Contains(out, want) {
			t.Errorf("Guide missing %q", want)
		}
	}
}

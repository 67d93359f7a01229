package homeapi

import (
	"errors"
	"sync"
)

// ErrNoCredentials is returned by a CredentialStore that has nothing loaded.
var ErrNoCredentials = errors.New("no credentials loaded")

// Credentials identify the signed-in user to the device backend.
type Credentials struct {
	Token  string
	UserID string
}

// CredentialSource supplies credentials for each outgoing request.
type CredentialSource interface {
	Credentials() (Credentials, error)
}

// StaticCredentials is a CredentialSource with fixed values.
type StaticCredentials Credentials

// Credentials implements CredentialSource.
func (s StaticCredentials) Credentials() (Credentials, error) {
	return Credentials(s), nil
}

// CredentialStore holds credentials whose lifecycle is owned by an external
// auth component: it loads them after sign-in and clears them at sign-out.
type CredentialStore struct {
	mu    sync.RWMutex
	creds *Credentials
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// Load replaces the stored credentials.
func (s *CredentialStore) Load(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &c
}

// Clear forgets the stored credentials.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
}

// Credentials implements CredentialSource.
func (s *CredentialStore) Credentials() (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return Credentials{}, ErrNoCredentials
	}
	return *s.creds, nil
}

// Package fakesecrets provides an in-memory ports.SecretStore.
package fakesecrets

import (
	"sync"

	"github.com/acolita/shelltabs/internal/ports"
)

// Store keeps secrets in a map keyed by service and account.
type Store struct {
	mu      sync.Mutex
	secrets map[[2]string]string
	// Err, when set, is returned by every operation.
	Err error
}

// New returns an empty store.
func New() *Store {
	return &Store{secrets: make(map[[2]string]string)}
}

func (s *Store) Get(service, account string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", false, s.Err
	}
	v, ok := s.secrets[[2]string{service, account}]
	return v, ok, nil
}

func (s *Store) Set(service, account, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.secrets[[2]string{service, account}] = secret
	return nil
}

func (s *Store) Delete(service, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.secrets, [2]string{service, account})
	return nil
}

var _ ports.SecretStore = (*Store)(nil)

package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// sealedStore holds signing secrets encrypted at rest with a process-
// local key derived via HKDF, so a heap dump or crash report never
// exposes raw key material. The vault is explicitly stateless across
// restarts (per spec.md §4.7) — this key is never persisted, so a
// restart invalidates every sealed entry, which is intended: keys must
// be restored by re-issuing store_key.
type sealedStore struct {
	mu      sync.RWMutex
	sealKey [32]byte
	secrets map[string][]byte // key_id -> sealed (nonce-prefixed) box
}

func newSealedStore() (*sealedStore, error) {
	master := make([]byte, 32)
	if _, err := rand.Read(master); err != nil {
		return nil, fmt.Errorf("generate vault master entropy: %w", err)
	}

	kdf := hkdf.New(sha256.New, master, nil, []byte("plimsoll-vault-seal-key"))
	var sealKey [32]byte
	if _, err := io.ReadFull(kdf, sealKey[:]); err != nil {
		return nil, fmt.Errorf("derive vault seal key: %w", err)
	}

	return &sealedStore{sealKey: sealKey, secrets: make(map[string][]byte)}, nil
}

// put seals secret and stores it under keyID, overwriting any prior entry.
func (s *sealedStore) put(keyID string, secret []byte) error {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("generate seal nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], secret, &nonce, &s.sealKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[keyID] = sealed
	return nil
}

// get unseals and returns the secret stored under keyID.
func (s *sealedStore) get(keyID string) ([]byte, bool, error) {
	s.mu.RLock()
	sealed, ok := s.secrets[keyID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if len(sealed) < 24 {
		return nil, true, fmt.Errorf("sealed entry for %s is corrupt", keyID)
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	secret, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.sealKey)
	if !ok {
		return nil, true, fmt.Errorf("failed to unseal entry for %s", keyID)
	}
	return secret, true, nil
}

// keyIDs returns all stored key IDs. Order is unspecified.
func (s *sealedStore) keyIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.secrets))
	for id := range s.secrets {
		ids = append(ids, id)
	}
	return ids
}

package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Key is an HMAC signing secret identified by the "kid" header it is
// published under.
type Key struct {
	ID     string
	Secret []byte
}

// KeyProvider supplies the current signing key and resolves verification
// keys by id.
type KeyProvider interface {
	SigningKey() Key
	VerificationKey(id string) ([]byte, bool)
}

// KeyRing is an in-memory KeyProvider. Rotate swaps in a new signing key and
// keeps the old one for verification until it is retired, so tokens minted
// before a rotation stay valid for their remaining lifetime.
type KeyRing struct {
	mu      sync.RWMutex
	current Key
	verify  map[string][]byte
}

func NewKeyRing(id string, secret []byte) (*KeyRing, error) {
	if err := checkKey(id, secret); err != nil {
		return nil, err
	}
	k := &KeyRing{verify: make(map[string][]byte)}
	k.current = Key{ID: id, Secret: cloneBytes(secret)}
	k.verify[id] = k.current.Secret
	return k, nil
}

func (k *KeyRing) SigningKey() Key {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return Key{ID: k.current.ID, Secret: cloneBytes(k.current.Secret)}
}

func (k *KeyRing) VerificationKey(id string) ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.verify[id]
	if !ok {
		return nil, false
	}
	return cloneBytes(s), true
}

// Rotate makes (id, secret) the signing key. The previous key remains
// available for verification.
func (k *KeyRing) Rotate(id string, secret []byte) error {
	if err := checkKey(id, secret); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.verify[id]; ok {
		return fmt.Errorf("key %q already present", id)
	}
	k.current = Key{ID: id, Secret: cloneBytes(secret)}
	k.verify[id] = k.current.Secret
	return nil
}

// AddVerificationKey registers a key that is accepted for verification only.
func (k *KeyRing) AddVerificationKey(id string, secret []byte) error {
	if err := checkKey(id, secret); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.verify[id]; ok {
		return fmt.Errorf("key %q already present", id)
	}
	k.verify[id] = cloneBytes(secret)
	return nil
}

// Retire drops a verification key and wipes its secret. The signing key
// cannot be retired.
func (k *KeyRing) Retire(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if id == k.current.ID {
		return errors.New("cannot retire the signing key")
	}
	s, ok := k.verify[id]
	if !ok {
		return common.ErrorNotFound
	}
	common.WipeByteArray(s)
	delete(k.verify, id)
	return nil
}

func checkKey(id string, secret []byte) error {
	if id == "" {
		return errors.New("key id is empty")
	}
	if len(secret) == 0 {
		return errors.New("key secret is empty")
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

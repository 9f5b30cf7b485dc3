package securestore

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

var ErrKeyDestroyed = errors.New("securestore key has been destroyed")

// VaultKey is an ephemeral symmetric key. It is never persisted and must be
// destroyed by its owner once the unlock scope ends.
type VaultKey struct {
	mu sync.Mutex
	b  []byte
}

// KeyFromBytes takes ownership of raw: the bytes are copied into the key and
// the source slice is wiped.
func KeyFromBytes(raw []byte) (*VaultKey, error) {
	if len(raw) != KeySize {
		memguard.WipeBytes(raw)
		return nil, ErrKDF
	}
	b := make([]byte, KeySize)
	copy(b, raw)
	memguard.WipeBytes(raw)
	return &VaultKey{b: b}, nil
}

// Destroy wipes the key material. It is safe to call more than once.
func (k *VaultKey) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.b != nil {
		memguard.WipeBytes(k.b)
		k.b = nil
	}
}

func (k *VaultKey) Alive() bool {
	if k == nil {
		return false
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.b != nil
}

// with runs fn against the live key bytes without letting them escape.
func (k *VaultKey) with(fn func(key []byte) error) error {
	if k == nil {
		return ErrKeyDestroyed
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.b == nil {
		return ErrKeyDestroyed
	}
	return fn(k.b)
}

func zeroBytes(b []byte) {
	memguard.WipeBytes(b)
}

package securestore

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize     = chacha20poly1305.KeySize
	minSaltSize = 8
)

// DefaultSalt is the per-deployment salt used when configuration supplies none.
var DefaultSalt = []byte("satya_salt_v1")

var (
	ErrPINRequired = errors.New("securestore pin is required")
	ErrKDF         = errors.New("securestore key derivation failed")
)

// KDFParams are the argon2id cost parameters.
type KDFParams struct {
	Time     uint32 `yaml:"time"`
	MemoryKB uint32 `yaml:"memoryKB"`
	Threads  uint8  `yaml:"threads"`
}

func DefaultKDFParams() KDFParams {
	return KDFParams{
		Time:     2,
		MemoryKB: 64 * 1024,
		Threads:  1,
	}
}

func (p KDFParams) Validate() error {
	if p.Time < 1 {
		return fmt.Errorf("%w: time must be >= 1", ErrKDF)
	}
	if p.Threads < 1 {
		return fmt.Errorf("%w: threads must be >= 1", ErrKDF)
	}
	if p.MemoryKB < 8*uint32(p.Threads) {
		return fmt.Errorf("%w: memory must be >= %d KiB", ErrKDF, 8*uint32(p.Threads))
	}
	return nil
}

// DeriveKey stretches pin with argon2id into a 32-byte vault key.
func DeriveKey(pin string, salt []byte, params KDFParams) (*VaultKey, error) {
	if strings.TrimSpace(pin) == "" {
		return nil, ErrPINRequired
	}
	if len(salt) < minSaltSize {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes", ErrKDF, minSaltSize)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	pinBytes := []byte(pin)
	defer zeroBytes(pinBytes)

	return KeyFromBytes(argon2.IDKey(pinBytes, salt, params.Time, params.MemoryKB, params.Threads, KeySize))
}

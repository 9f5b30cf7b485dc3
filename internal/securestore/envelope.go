package securestore

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	NonceSize   = chacha20poly1305.NonceSizeX
	aadPrefix   = "satya/vault/v1\x00"
	overheadLen = NonceSize + chacha20poly1305.Overhead
)

var (
	// ErrAuthFailed is the only error Open reports for bad input: wrong key,
	// wrong device and tampering are deliberately indistinguishable.
	ErrAuthFailed     = errors.New("securestore authentication failed")
	ErrDeviceRequired = errors.New("securestore device id is required")
)

// Seal encrypts plaintext under key with the device id bound as associated
// data. Output layout is nonce || ciphertext || tag; every call draws a fresh
// random nonce.
func Seal(key *VaultKey, deviceID []byte, plaintext []byte) ([]byte, error) {
	if len(deviceID) == 0 {
		return nil, ErrDeviceRequired
	}
	var out []byte
	err := key.with(func(k []byte) error {
		aead, err := chacha20poly1305.NewX(k)
		if err != nil {
			return err
		}
		nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
		if _, err := rand.Read(nonce); err != nil {
			return err
		}
		out = aead.Seal(nonce, nonce, plaintext, associatedData(deviceID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Open reverses Seal. Any failure yields ErrAuthFailed and no plaintext.
func Open(key *VaultKey, deviceID []byte, sealed []byte) ([]byte, error) {
	if len(deviceID) == 0 || len(sealed) < overheadLen {
		return nil, ErrAuthFailed
	}
	var plaintext []byte
	err := key.with(func(k []byte) error {
		aead, err := chacha20poly1305.NewX(k)
		if err != nil {
			return err
		}
		nonce := sealed[:NonceSize]
		ciphertext := sealed[NonceSize:]
		plaintext, err = aead.Open(nil, nonce, ciphertext, associatedData(deviceID))
		return err
	})
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func associatedData(deviceID []byte) []byte {
	ad := make([]byte, 0, len(aadPrefix)+len(deviceID))
	ad = append(ad, aadPrefix...)
	return append(ad, deviceID...)
}

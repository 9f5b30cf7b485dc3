// Package signing produces and checks Ed25519 signatures over 32-byte seeds.
package signing

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	SeedSize      = ed25519.SeedSize
	PublicKeySize = ed25519.PublicKeySize
)

var (
	ErrInvalidKeyLength   = errors.New("signing: invalid key length")
	ErrMalformedSignature = errors.New("signing: malformed signature")
)

// Sign signs msg with the key expanded from seed and returns the signature
// as lowercase hex.
func Sign(seed, msg []byte) (string, error) {
	if len(seed) != SeedSize {
		return "", fmt.Errorf("%w: seed has %d bytes", ErrInvalidKeyLength, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	defer wipe(priv)
	return hex.EncodeToString(ed25519.Sign(priv, msg)), nil
}

// Verify reports whether sigHex is a valid signature of msg by pub. A well
// formed signature that does not match is (false, nil).
func Verify(pub, msg []byte, sigHex string) (bool, error) {
	if len(pub) != PublicKeySize {
		return false, fmt.Errorf("%w: public key has %d bytes", ErrInvalidKeyLength, len(pub))
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false, ErrMalformedSignature
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
}

func PublicKey(seed []byte) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed has %d bytes", ErrInvalidKeyLength, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	defer wipe(priv)
	pub := make([]byte, PublicKeySize)
	copy(pub, priv.Public().(ed25519.PublicKey))
	return pub, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package identity

import (
	"crypto/hmac"
	"crypto/sha512"
	"fmt"
	"strconv"

	"satya/go-core/internal/vault"
)

// Deriver turns the master seed and an identity index into a 32-byte signing
// seed. Output must depend only on its inputs.
type Deriver interface {
	DeriveKey(masterSeed []byte, index uint32) ([]byte, error)
}

const identityDomainPrefix = "satya_identity_"

// HMACDeriver computes HMAC-SHA512(masterSeed, "satya_identity_<index>") and
// keeps the first 32 bytes.
type HMACDeriver struct{}

func (HMACDeriver) DeriveKey(masterSeed []byte, index uint32) ([]byte, error) {
	if len(masterSeed) != vault.SeedSize {
		return nil, fmt.Errorf("%w: seed has %d bytes", ErrSeedMissing, len(masterSeed))
	}
	mac := hmac.New(sha512.New, masterSeed)
	mac.Write([]byte(identityDomainPrefix + strconv.FormatUint(uint64(index), 10)))
	sum := mac.Sum(nil)
	out := make([]byte, vault.PrivateKeySize)
	copy(out, sum[:vault.PrivateKeySize])
	for i := range sum {
		sum[i] = 0
	}
	return out, nil
}

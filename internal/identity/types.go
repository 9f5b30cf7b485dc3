package identity

import (
	"errors"

	"satya/go-core/internal/vault"
)

// Identity is the persisted persona record.
type Identity = vault.Identity

const (
	DIDMethodPrefix = "did:satya:"
	MaxLabelRunes   = 64
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrSeedMissing      = errors.New("master seed is not initialized")
	ErrSeedImmutable    = errors.New("master seed is already set")
	ErrLabelTooLong     = errors.New("identity label is too long")
	ErrIdentityInit     = errors.New("identity initialization failed")
)

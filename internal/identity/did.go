package identity

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// identityNamespace scopes name-based UUIDs so they never collide with ids
// minted by other systems from the same key bytes.
var identityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("satya:identity"))

// IDForPublicKey returns the stable identity id for an Ed25519 public key.
func IDForPublicKey(pub []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: public key has %d bytes", ErrIdentityInit, len(pub))
	}
	return uuid.NewSHA1(identityNamespace, pub).String(), nil
}

func DIDForID(id string) string {
	return DIDMethodPrefix + id
}

func DIDForPublicKey(pub []byte) (string, error) {
	id, err := IDForPublicKey(pub)
	if err != nil {
		return "", err
	}
	return DIDForID(id), nil
}

// IDFromDID strips the method prefix; ok is false for foreign DIDs.
func IDFromDID(did string) (string, bool) {
	id, ok := strings.CutPrefix(strings.TrimSpace(did), DIDMethodPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// VerifyDID reports whether did was minted for pub.
func VerifyDID(did string, pub []byte) bool {
	want, err := DIDForPublicKey(pub)
	if err != nil {
		return false
	}
	return did == want
}

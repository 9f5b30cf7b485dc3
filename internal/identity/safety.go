package identity

import (
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"
)

const safetyWordCount = 4

// SafetyWords renders a short word sequence from a public key so two people
// can compare identities out of band. It is not a recovery phrase.
func SafetyWords(pub []byte) (string, error) {
	digest := blake2b.Sum256(pub)
	mnemonic, err := bip39.NewMnemonic(digest[:16])
	if err != nil {
		return "", err
	}
	words := strings.Fields(mnemonic)
	return strings.Join(words[:safetyWordCount], " "), nil
}

package intent

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"satya/go-core/internal/identity"
	"satya/go-core/internal/signing"
	"satya/go-core/internal/vaulterr"
)

var (
	ErrSignerMismatch  = errors.New("signer key does not match did")
	ErrEnvelopeInvalid = errors.New("signed envelope is invalid")
)

// SignedEnvelope is the wire record published to relays.
type SignedEnvelope struct {
	Payload      Payload `json:"payload"`
	SignatureHex string  `json:"signature_hex"`
	SignerDID    string  `json:"signer_did"`
	SignerKey    string  `json:"signer_key"`
	CID          string  `json:"cid"`
	Verified     bool    `json:"is_verified"`
}

// Sign signs the canonical payload bytes with seed. did must be the DID
// minted for the seed's public key.
func Sign(p Payload, seed []byte, did string) (SignedEnvelope, error) {
	const op = "intent.sign"
	canonical, err := p.CanonicalBytes()
	if err != nil {
		return SignedEnvelope{}, vaulterr.New(vaulterr.KindSerialization, op, err)
	}
	pub, err := signing.PublicKey(seed)
	if err != nil {
		return SignedEnvelope{}, vaulterr.New(vaulterr.KindCorruption, op, err)
	}
	if !identity.VerifyDID(did, pub) {
		return SignedEnvelope{}, vaulterr.New(vaulterr.KindCorruption, op, ErrSignerMismatch)
	}
	sigHex, err := signing.Sign(seed, canonical)
	if err != nil {
		return SignedEnvelope{}, vaulterr.New(vaulterr.KindCorruption, op, err)
	}
	sig, _ := hex.DecodeString(sigHex)
	cid, err := ContentID(canonical, sig)
	if err != nil {
		return SignedEnvelope{}, vaulterr.New(vaulterr.KindSerialization, op, err)
	}
	return SignedEnvelope{
		Payload:      p,
		SignatureHex: sigHex,
		SignerDID:    did,
		SignerKey:    base58.Encode(pub),
		CID:          cid,
	}, nil
}

// VerifyEnvelope checks the signature, the DID to key binding and the content
// id. Structurally broken envelopes return an error; a well formed envelope
// that fails a check returns false.
func VerifyEnvelope(env SignedEnvelope) (bool, error) {
	canonical, err := env.Payload.CanonicalBytes()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	pub, err := base58.Decode(env.SignerKey)
	if err != nil || len(pub) != signing.PublicKeySize {
		return false, fmt.Errorf("%w: bad signer key", ErrEnvelopeInvalid)
	}
	ok, err := signing.Verify(pub, canonical, env.SignatureHex)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	if !ok || !identity.VerifyDID(env.SignerDID, pub) {
		return false, nil
	}
	sig, _ := hex.DecodeString(env.SignatureHex)
	cid, err := ContentID(canonical, sig)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	return cid == env.CID, nil
}

func Marshal(env SignedEnvelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindSerialization, "intent.marshal", err)
	}
	return b, nil
}

// DecodeEnvelope parses envelope JSON and checks that the required fields
// are present. It does not verify signatures.
func DecodeEnvelope(b []byte) (SignedEnvelope, error) {
	const op = "intent.decode"
	var env SignedEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return SignedEnvelope{}, vaulterr.New(vaulterr.KindSerialization, op, err)
	}
	switch {
	case strings.TrimSpace(env.Payload.Version) == "":
		return SignedEnvelope{}, vaulterr.New(vaulterr.KindSerialization, op, fmt.Errorf("%w: missing version", ErrEnvelopeInvalid))
	case env.Payload.InteractionType == 0:
		return SignedEnvelope{}, vaulterr.New(vaulterr.KindSerialization, op, fmt.Errorf("%w: missing interaction type", ErrEnvelopeInvalid))
	case env.SignatureHex == "" || env.SignerDID == "":
		return SignedEnvelope{}, vaulterr.New(vaulterr.KindSerialization, op, fmt.Errorf("%w: missing signature", ErrEnvelopeInvalid))
	}
	return env, nil
}

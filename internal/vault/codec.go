package vault

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire layout (protobuf-compatible, hand-framed):
//
//	Vault      { 1: version varint, 2: master_seed bytes, 3: identity msg (repeated), 4: private_key msg (repeated) }
//	Identity   { 1: id, 2: label, 3: did, 4: index varint, 5: created_at unix seconds zigzag }
//	PrivateKey { 1: identity_id, 2: key bytes }
//
// Encoding is canonical: fields in number order, identities in ledger order,
// private keys sorted by identity id, zero values omitted.
const (
	fieldVersion    protowire.Number = 1
	fieldMasterSeed protowire.Number = 2
	fieldIdentity   protowire.Number = 3
	fieldPrivateKey protowire.Number = 4

	fieldIdentityID        protowire.Number = 1
	fieldIdentityLabel     protowire.Number = 2
	fieldIdentityDID       protowire.Number = 3
	fieldIdentityIndex     protowire.Number = 4
	fieldIdentityCreatedAt protowire.Number = 5

	fieldKeyIdentityID protowire.Number = 1
	fieldKeyMaterial   protowire.Number = 2
)

var ErrCorrupt = errors.New("vault data is corrupt")

// Encode serializes v canonically.
func Encode(v *Vault) ([]byte, error) {
	if v == nil {
		return nil, errors.New("vault is nil")
	}
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.Version))
	if len(v.MasterSeed) > 0 {
		b = protowire.AppendTag(b, fieldMasterSeed, protowire.BytesType)
		b = protowire.AppendBytes(b, v.MasterSeed)
	}
	for _, ident := range v.Identities {
		b = protowire.AppendTag(b, fieldIdentity, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeIdentity(ident))
	}
	ids := make([]string, 0, len(v.PrivateKeys))
	for id := range v.PrivateKeys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		var msg []byte
		msg = protowire.AppendTag(msg, fieldKeyIdentityID, protowire.BytesType)
		msg = protowire.AppendString(msg, id)
		msg = protowire.AppendTag(msg, fieldKeyMaterial, protowire.BytesType)
		msg = protowire.AppendBytes(msg, v.PrivateKeys[id])
		b = protowire.AppendTag(b, fieldPrivateKey, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}
	return b, nil
}

func encodeIdentity(ident Identity) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldIdentityID, protowire.BytesType)
	b = protowire.AppendString(b, ident.ID)
	if ident.Label != "" {
		b = protowire.AppendTag(b, fieldIdentityLabel, protowire.BytesType)
		b = protowire.AppendString(b, ident.Label)
	}
	b = protowire.AppendTag(b, fieldIdentityDID, protowire.BytesType)
	b = protowire.AppendString(b, ident.DID)
	if ident.Index != 0 {
		b = protowire.AppendTag(b, fieldIdentityIndex, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ident.Index))
	}
	if !ident.CreatedAt.IsZero() {
		b = protowire.AppendTag(b, fieldIdentityCreatedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(ident.CreatedAt.Unix()))
	}
	return b
}

// Decode parses and validates an encoded vault. Every structural problem is
// reported as ErrCorrupt.
func Decode(b []byte) (*Vault, error) {
	v := &Vault{PrivateKeys: make(map[string][]byte)}
	sawVersion := false
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, value []byte, varint uint64) error {
		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v.Version = uint32(varint)
			sawVersion = true
		case num == fieldMasterSeed && typ == protowire.BytesType:
			v.MasterSeed = append([]byte(nil), value...)
		case num == fieldIdentity && typ == protowire.BytesType:
			ident, err := decodeIdentity(value)
			if err != nil {
				return err
			}
			v.Identities = append(v.Identities, ident)
		case num == fieldPrivateKey && typ == protowire.BytesType:
			id, key, err := decodePrivateKey(value)
			if err != nil {
				return err
			}
			if _, dup := v.PrivateKeys[id]; dup {
				return fmt.Errorf("duplicate private key for %q", id)
			}
			v.PrivateKeys[id] = key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !sawVersion || v.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v.Version)
	}
	if err := validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return v, nil
}

func decodeIdentity(b []byte) (Identity, error) {
	var ident Identity
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, value []byte, varint uint64) error {
		switch {
		case num == fieldIdentityID && typ == protowire.BytesType:
			ident.ID = string(value)
		case num == fieldIdentityLabel && typ == protowire.BytesType:
			ident.Label = string(value)
		case num == fieldIdentityDID && typ == protowire.BytesType:
			ident.DID = string(value)
		case num == fieldIdentityIndex && typ == protowire.VarintType:
			ident.Index = uint32(varint)
		case num == fieldIdentityCreatedAt && typ == protowire.VarintType:
			ident.CreatedAt = time.Unix(protowire.DecodeZigZag(varint), 0).UTC()
		}
		return nil
	})
	return ident, err
}

func decodePrivateKey(b []byte) (string, []byte, error) {
	var (
		id  string
		key []byte
	)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) error {
		switch {
		case num == fieldKeyIdentityID && typ == protowire.BytesType:
			id = string(value)
		case num == fieldKeyMaterial && typ == protowire.BytesType:
			key = append([]byte(nil), value...)
		}
		return nil
	})
	return id, key, err
}

// walkFields visits each top-level field of a message. Unknown fields are
// skipped so newer writers stay readable.
func walkFields(b []byte, visit func(num protowire.Number, typ protowire.Type, value []byte, varint uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		var (
			value  []byte
			varint uint64
		)
		switch typ {
		case protowire.VarintType:
			varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			value, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := visit(num, typ, value, varint); err != nil {
			return err
		}
	}
	return nil
}

func validate(v *Vault) error {
	if len(v.MasterSeed) != 0 && len(v.MasterSeed) != SeedSize {
		return fmt.Errorf("master seed must be %d bytes, got %d", SeedSize, len(v.MasterSeed))
	}
	seen := make(map[string]struct{}, len(v.Identities))
	for _, ident := range v.Identities {
		if ident.ID == "" || ident.DID == "" {
			return errors.New("identity without id or did")
		}
		if _, dup := seen[ident.ID]; dup {
			return fmt.Errorf("duplicate identity %q", ident.ID)
		}
		seen[ident.ID] = struct{}{}
		key, ok := v.PrivateKeys[ident.ID]
		if !ok {
			return fmt.Errorf("identity %q has no private key", ident.ID)
		}
		if len(key) != PrivateKeySize {
			return fmt.Errorf("private key for %q has %d bytes", ident.ID, len(key))
		}
	}
	if len(v.PrivateKeys) != len(v.Identities) {
		return errors.New("private key without identity")
	}
	return nil
}

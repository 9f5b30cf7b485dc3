package identity

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"satya/go-core/internal/signing"
	"satya/go-core/internal/vault"
	"satya/go-core/internal/vaulterr"
)

// Ledger owns the identity list and key material of one unlocked vault. It
// has no lock of its own; the session serializes access.
type Ledger struct {
	vault   *vault.Vault
	deriver Deriver
	now     func() time.Time
}

func NewLedger(v *vault.Vault, deriver Deriver, now func() time.Time) *Ledger {
	if v == nil {
		v = vault.New()
	}
	if deriver == nil {
		deriver = HMACDeriver{}
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{vault: v, deriver: deriver, now: now}
}

// Vault exposes the backing aggregate for persistence.
func (l *Ledger) Vault() *vault.Vault {
	return l.vault
}

// EnsureMasterSeed fills an empty master seed from r and reports whether it
// did. An existing seed is never replaced.
func (l *Ledger) EnsureMasterSeed(r io.Reader) (bool, error) {
	if l.vault.HasMasterSeed() {
		return false, nil
	}
	if len(l.vault.MasterSeed) != 0 {
		return false, vaulterr.New(vaulterr.KindCorruption, "identity.seed", ErrSeedImmutable)
	}
	seed := make([]byte, vault.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return false, vaulterr.New(vaulterr.KindStorage, "identity.seed", err)
	}
	l.vault.MasterSeed = seed
	return true, nil
}

// NormalizeLabel trims label and substitutes the default name for index.
func NormalizeLabel(label string, index uint32) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "identity-" + strconv.FormatUint(uint64(index)+1, 10), nil
	}
	if utf8.RuneCountInString(label) > MaxLabelRunes {
		return "", ErrLabelTooLong
	}
	return label, nil
}

// Append derives the next identity, adds it to the ledger and returns a func
// that removes it again. Callers persist and roll back on failure.
func (l *Ledger) Append(label string) (Identity, func(), error) {
	const op = "identity.append"
	if !l.vault.HasMasterSeed() {
		return Identity{}, nil, vaulterr.New(vaulterr.KindVaultLocked, op, ErrSeedMissing)
	}
	index := uint32(len(l.vault.Identities))
	label, err := NormalizeLabel(label, index)
	if err != nil {
		return Identity{}, nil, vaulterr.New(vaulterr.KindInvalidInput, op, err)
	}
	key, err := l.deriver.DeriveKey(l.vault.MasterSeed, index)
	if err != nil {
		return Identity{}, nil, vaulterr.New(vaulterr.KindStorage, op, err)
	}
	if len(key) != vault.PrivateKeySize {
		zero(key)
		return Identity{}, nil, vaulterr.New(vaulterr.KindStorage, op, fmt.Errorf("%w: derived %d bytes", ErrIdentityInit, len(key)))
	}
	pub, err := signing.PublicKey(key)
	if err != nil {
		zero(key)
		return Identity{}, nil, vaulterr.New(vaulterr.KindStorage, op, err)
	}
	id, err := IDForPublicKey(pub)
	if err != nil {
		zero(key)
		return Identity{}, nil, vaulterr.New(vaulterr.KindStorage, op, err)
	}
	if _, exists := l.vault.PrivateKeys[id]; exists {
		zero(key)
		return Identity{}, nil, vaulterr.New(vaulterr.KindCorruption, op, fmt.Errorf("identity %s already present", id))
	}

	ident := Identity{
		ID:        id,
		Label:     label,
		DID:       DIDForID(id),
		Index:     index,
		CreatedAt: l.now().UTC().Truncate(time.Second),
	}
	prevLen := len(l.vault.Identities)
	l.vault.Identities = append(l.vault.Identities, ident)
	l.vault.PrivateKeys[id] = key

	rollback := func() {
		if k, ok := l.vault.PrivateKeys[id]; ok {
			zero(k)
			delete(l.vault.PrivateKeys, id)
		}
		if len(l.vault.Identities) > prevLen {
			l.vault.Identities = l.vault.Identities[:prevLen]
		}
	}
	return ident, rollback, nil
}

// List returns a copy in creation order.
func (l *Ledger) List() []Identity {
	return append([]Identity{}, l.vault.Identities...)
}

func (l *Ledger) Lookup(id string) (Identity, bool) {
	for _, ident := range l.vault.Identities {
		if ident.ID == id {
			return ident, true
		}
	}
	return Identity{}, false
}

// PrivateKey returns a copy of the signing seed for id. Callers wipe it.
func (l *Ledger) PrivateKey(id string) ([]byte, error) {
	key, ok := l.vault.PrivateKeys[strings.TrimSpace(id)]
	if !ok {
		return nil, vaulterr.New(vaulterr.KindIdentityNotFound, "identity.private_key", ErrIdentityNotFound)
	}
	return append([]byte(nil), key...), nil
}

func (l *Ledger) PublicKey(id string) ([]byte, error) {
	key, err := l.PrivateKey(id)
	if err != nil {
		return nil, err
	}
	defer zero(key)
	pub, err := signing.PublicKey(key)
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindCorruption, "identity.public_key", err)
	}
	return pub, nil
}

// Wipe zeroes all key material held by the ledger. The ledger is unusable
// afterwards.
func (l *Ledger) Wipe() {
	if l == nil || l.vault == nil {
		return
	}
	for id, key := range l.vault.PrivateKeys {
		zero(key)
		delete(l.vault.PrivateKeys, id)
	}
	zero(l.vault.MasterSeed)
	l.vault.MasterSeed = nil
	l.vault.Identities = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package vault

import "time"

const (
	CurrentVersion = 1
	SeedSize       = 32
	PrivateKeySize = 32
)

// Identity is a user-facing persona stored in the vault. It is never mutated
// after creation.
type Identity struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	DID       string    `json:"did"`
	Index     uint32    `json:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// Vault is the persisted aggregate. PrivateKeys is keyed by identity id.
type Vault struct {
	Version     uint32
	MasterSeed  []byte
	Identities  []Identity
	PrivateKeys map[string][]byte
}

// New returns the empty first-run vault.
func New() *Vault {
	return &Vault{
		Version:     CurrentVersion,
		PrivateKeys: make(map[string][]byte),
	}
}

func (v *Vault) HasMasterSeed() bool {
	return len(v.MasterSeed) == SeedSize
}

// Clone returns a deep copy.
func (v *Vault) Clone() *Vault {
	out := &Vault{
		Version:     v.Version,
		MasterSeed:  append([]byte(nil), v.MasterSeed...),
		Identities:  append([]Identity(nil), v.Identities...),
		PrivateKeys: make(map[string][]byte, len(v.PrivateKeys)),
	}
	for id, key := range v.PrivateKeys {
		out.PrivateKeys[id] = append([]byte(nil), key...)
	}
	return out
}

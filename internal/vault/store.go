package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"satya/go-core/internal/securestore"
	"satya/go-core/internal/vaulterr"
)

const (
	StoreDirName  = "vault-store"
	StoreFileName = "vault.bin"
)

// Store persists one sealed vault under <root>/vault-store/vault.bin.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) Dir() string {
	return filepath.Join(s.root, StoreDirName)
}

func (s *Store) Path() string {
	return filepath.Join(s.Dir(), StoreFileName)
}

// Exists reports whether a non-empty vault file is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.Path())
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Load reads and decrypts the vault. A missing or zero-length file is the
// first-run case and yields an empty vault; every other failure is reported.
func (s *Store) Load(key *securestore.VaultKey, deviceID string) (*Vault, error) {
	const op = "vault.load"
	if s.root == "" {
		return nil, vaulterr.New(vaulterr.KindInvalidInput, op, errors.New("storage root is required"))
	}
	raw, err := readFileIfPresent(s.Path())
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindStorage, op, err)
	}
	if len(raw) == 0 {
		return New(), nil
	}
	plain, err := securestore.Open(key, []byte(deviceID), raw)
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindAuthenticationFailure, op, err)
	}
	defer zero(plain)
	v, err := Decode(plain)
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindCorruption, op, err)
	}
	return v, nil
}

// Save encodes, seals and atomically replaces the vault file.
func (s *Store) Save(key *securestore.VaultKey, deviceID string, v *Vault) error {
	const op = "vault.save"
	if s.root == "" {
		return vaulterr.New(vaulterr.KindInvalidInput, op, errors.New("storage root is required"))
	}
	plain, err := Encode(v)
	if err != nil {
		return vaulterr.New(vaulterr.KindSerialization, op, err)
	}
	defer zero(plain)
	sealed, err := securestore.Seal(key, []byte(deviceID), plain)
	if err != nil {
		if errors.Is(err, securestore.ErrDeviceRequired) {
			return vaulterr.New(vaulterr.KindInvalidInput, op, err)
		}
		return vaulterr.New(vaulterr.KindStorage, op, err)
	}
	if err := writeFileAtomic(s.Path(), sealed, 0o600); err != nil {
		return vaulterr.New(vaulterr.KindStorage, op, err)
	}
	return nil
}

// Discard moves the whole store directory aside so nothing under the old
// name survives. A missing directory is not an error and yields "".
func (s *Store) Discard(now time.Time) (string, error) {
	const op = "vault.discard"
	if s.root == "" {
		return "", vaulterr.New(vaulterr.KindInvalidInput, op, errors.New("storage root is required"))
	}
	dir := s.Dir()
	if _, err := os.Lstat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", vaulterr.New(vaulterr.KindStorage, op, err)
	}
	aside := fmt.Sprintf("%s.reset-%d", dir, now.UnixNano())
	if err := os.Rename(dir, aside); err != nil {
		return "", vaulterr.New(vaulterr.KindStorage, op, err)
	}
	syncDir(s.root)
	return aside, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"satya/go-core/internal/securestore"
	"satya/go-core/internal/testutil/fsperm"
	"satya/go-core/internal/vaulterr"
)

func testKey(t *testing.T, fill byte) *securestore.VaultKey {
	t.Helper()
	key, err := securestore.KeyFromBytes(bytes.Repeat([]byte{fill}, securestore.KeySize))
	if err != nil {
		t.Fatalf("key from bytes failed: %v", err)
	}
	t.Cleanup(key.Destroy)
	return key
}

func sampleVault() *Vault {
	v := New()
	v.MasterSeed = bytes.Repeat([]byte{7}, SeedSize)
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	v.Identities = []Identity{
		{ID: "b-id", Label: "work", DID: "did:satya:b-id", Index: 0, CreatedAt: created},
		{ID: "a-id", Label: "home", DID: "did:satya:a-id", Index: 1, CreatedAt: created.Add(time.Minute)},
	}
	v.PrivateKeys["b-id"] = bytes.Repeat([]byte{1}, PrivateKeySize)
	v.PrivateKeys["a-id"] = bytes.Repeat([]byte{2}, PrivateKeySize)
	return v
}

func withRenameHooks(t *testing.T, before func(string) error, after func(string) error) {
	t.Helper()
	prevBefore, prevAfter := beforeRename, afterRename
	if before != nil {
		beforeRename = before
	}
	if after != nil {
		afterRename = after
	}
	t.Cleanup(func() {
		beforeRename = prevBefore
		afterRename = prevAfter
	})
}

func TestStoreSaveLoadRoundtrip(t *testing.T) {
	store := NewStore(t.TempDir())
	key := testKey(t, 0x11)
	want := sampleVault()

	if err := store.Save(key, "device-A", want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := store.Load(key, "device-A")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("roundtrip mismatch:\n got=%+v\nwant=%+v", got, want)
	}
	if !store.Exists() {
		t.Fatal("store should report existing vault")
	}
	fsperm.AssertPrivateDirPerm(t, store.Dir())
	fsperm.AssertPrivateFilePerm(t, store.Path())
}

func TestStoreLoadBootstrapsEmptyVault(t *testing.T) {
	store := NewStore(t.TempDir())
	key := testKey(t, 0x11)

	v, err := store.Load(key, "device-A")
	if err != nil {
		t.Fatalf("load of missing file failed: %v", err)
	}
	if v.HasMasterSeed() || len(v.Identities) != 0 || v.Version != CurrentVersion {
		t.Fatalf("expected empty vault, got %+v", v)
	}

	if err := os.MkdirAll(store.Dir(), 0o700); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(store.Path(), nil, 0o600); err != nil {
		t.Fatalf("write empty file failed: %v", err)
	}
	if store.Exists() {
		t.Fatal("zero-length file must not count as an existing vault")
	}
	v, err = store.Load(key, "device-A")
	if err != nil {
		t.Fatalf("load of zero-length file failed: %v", err)
	}
	if v.HasMasterSeed() {
		t.Fatal("zero-length file must bootstrap an empty vault")
	}
}

func TestStoreDetectsTamperAtEveryByte(t *testing.T) {
	store := NewStore(t.TempDir())
	key := testKey(t, 0x11)
	if err := store.Save(key, "device-A", sampleVault()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	original, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for i := range original {
		tampered := append([]byte(nil), original...)
		tampered[i] ^= 0x01
		if err := os.WriteFile(store.Path(), tampered, 0o600); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if _, err := store.Load(key, "device-A"); !errors.Is(err, vaulterr.ErrAuthenticationFailure) {
			t.Fatalf("byte %d: expected authentication failure, got %v", i, err)
		}
	}
}

func TestStoreBindsDeviceAndKey(t *testing.T) {
	store := NewStore(t.TempDir())
	key := testKey(t, 0x11)
	if err := store.Save(key, "device-A", sampleVault()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := store.Load(key, "device-B"); !errors.Is(err, vaulterr.ErrAuthenticationFailure) {
		t.Fatalf("expected authentication failure for other device, got %v", err)
	}
	if _, err := store.Load(testKey(t, 0x22), "device-A"); !errors.Is(err, vaulterr.ErrAuthenticationFailure) {
		t.Fatalf("expected authentication failure for other key, got %v", err)
	}
}

func TestStoreReportsCorruptionAfterSuccessfulOpen(t *testing.T) {
	store := NewStore(t.TempDir())
	key := testKey(t, 0x11)
	sealed, err := securestore.Seal(key, []byte("device-A"), []byte{0xFF, 0xFF, 0xFF})
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if err := writeFileAtomic(store.Path(), sealed, 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_, err = store.Load(key, "device-A")
	if !errors.Is(err, vaulterr.ErrCorruption) {
		t.Fatalf("expected corruption, got %v", err)
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("corruption should wrap ErrCorrupt, got %v", err)
	}
}

func TestStoreFailureBeforeRenameKeepsPreviousVault(t *testing.T) {
	store := NewStore(t.TempDir())
	key := testKey(t, 0x11)
	first := sampleVault()
	if err := store.Save(key, "device-A", first); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	crash := errors.New("power loss")
	withRenameHooks(t, func(string) error { return crash }, nil)

	second := first.Clone()
	second.Identities = second.Identities[:1]
	delete(second.PrivateKeys, "a-id")
	err := store.Save(key, "device-A", second)
	if !errors.Is(err, crash) || !errors.Is(err, vaulterr.ErrStorage) {
		t.Fatalf("expected injected storage failure, got %v", err)
	}

	got, err := store.Load(key, "device-A")
	if err != nil {
		t.Fatalf("load after failed save: %v", err)
	}
	if !reflect.DeepEqual(got, first) {
		t.Fatal("failed save must leave the previous vault intact")
	}
	assertNoTempFiles(t, store.Dir())
}

func TestStoreFailureAfterRenameLeavesNewVault(t *testing.T) {
	store := NewStore(t.TempDir())
	key := testKey(t, 0x11)
	if err := store.Save(key, "device-A", sampleVault()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	withRenameHooks(t, nil, func(string) error { return errors.New("crash after rename") })

	next := New()
	next.MasterSeed = bytes.Repeat([]byte{9}, SeedSize)
	if err := store.Save(key, "device-A", next); err == nil {
		t.Fatal("expected injected failure")
	}
	got, err := store.Load(key, "device-A")
	if err != nil {
		t.Fatalf("load after rename failure: %v", err)
	}
	if !reflect.DeepEqual(got, next) {
		t.Fatal("vault after rename must be the new version in full")
	}
	assertNoTempFiles(t, store.Dir())
}

func TestStoreDiscardMovesDirectoryAside(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	key := testKey(t, 0x11)

	aside, err := store.Discard(time.Unix(0, 1))
	if err != nil || aside != "" {
		t.Fatalf("discard of missing store: aside=%q err=%v", aside, err)
	}

	if err := store.Save(key, "device-A", sampleVault()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	aside, err = store.Discard(time.Unix(0, 42))
	if err != nil {
		t.Fatalf("discard failed: %v", err)
	}
	if want := filepath.Join(root, "vault-store.reset-42"); aside != want {
		t.Fatalf("unexpected aside path %q, want %q", aside, want)
	}
	if _, err := os.Stat(store.Dir()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("store dir should be gone, stat err=%v", err)
	}
	v, err := store.Load(key, "device-A")
	if err != nil || v.HasMasterSeed() {
		t.Fatalf("load after discard should bootstrap empty vault: %+v %v", v, err)
	}
}

func TestStoreRequiresRootAndDevice(t *testing.T) {
	key := testKey(t, 0x11)
	if _, err := NewStore("  ").Load(key, "device-A"); !errors.Is(err, vaulterr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty root, got %v", err)
	}
	if err := NewStore(t.TempDir()).Save(key, "", New()); !errors.Is(err, vaulterr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty device, got %v", err)
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

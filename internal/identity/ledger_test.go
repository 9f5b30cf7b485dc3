package identity

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"satya/go-core/internal/signing"
	"satya/go-core/internal/vault"
	"satya/go-core/internal/vaulterr"
)

func seededLedger(t *testing.T, fill byte) *Ledger {
	t.Helper()
	clock := time.Date(2025, 6, 1, 12, 0, 0, 500, time.UTC)
	l := NewLedger(vault.New(), HMACDeriver{}, func() time.Time { return clock })
	created, err := l.EnsureMasterSeed(bytes.NewReader(bytes.Repeat([]byte{fill}, vault.SeedSize)))
	if err != nil || !created {
		t.Fatalf("ensure master seed: created=%v err=%v", created, err)
	}
	return l
}

func TestHMACDeriverKnownAnswer(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, vault.SeedSize)
	cases := map[uint32]string{
		0: "1aa08a80aa82a352a8f9250aabb0772ef8de106b459af8c56a667a5bfe49ada9",
		7: "d6a617b192ab4c23236d0e4e54139c26fb0c33b21dffc7f23fa327a61016da6c",
	}
	for index, want := range cases {
		got, err := HMACDeriver{}.DeriveKey(seed, index)
		if err != nil {
			t.Fatalf("derive %d failed: %v", index, err)
		}
		if hex.EncodeToString(got) != want {
			t.Fatalf("index %d: got %x want %s", index, got, want)
		}
	}
	if _, err := (HMACDeriver{}).DeriveKey(seed[:5], 0); !errors.Is(err, ErrSeedMissing) {
		t.Fatalf("expected ErrSeedMissing, got %v", err)
	}
}

func TestAppendIsDeterministicForSeedAndIndex(t *testing.T) {
	a := seededLedger(t, 0x05)
	b := seededLedger(t, 0x05)
	c := seededLedger(t, 0x06)

	for i := 0; i < 3; i++ {
		ia, _, err := a.Append("")
		if err != nil {
			t.Fatalf("append a: %v", err)
		}
		ib, _, err := b.Append("other label")
		if err != nil {
			t.Fatalf("append b: %v", err)
		}
		ic, _, err := c.Append("")
		if err != nil {
			t.Fatalf("append c: %v", err)
		}
		if ia.DID != ib.DID || ia.ID != ib.ID {
			t.Fatalf("index %d: same seed must yield same did, got %s vs %s", i, ia.DID, ib.DID)
		}
		if ia.DID == ic.DID {
			t.Fatalf("index %d: different seeds must not collide", i)
		}
		if ia.Index != uint32(i) {
			t.Fatalf("expected index %d, got %d", i, ia.Index)
		}
		if !strings.HasPrefix(ia.DID, DIDMethodPrefix) || ia.DID != DIDForID(ia.ID) {
			t.Fatalf("unexpected did %q for id %q", ia.DID, ia.ID)
		}
	}
	if len(a.List()) != 3 {
		t.Fatalf("expected 3 identities, got %d", len(a.List()))
	}
}

func TestAppendBindsDIDToPublicKey(t *testing.T) {
	l := seededLedger(t, 0x09)
	ident, _, err := l.Append("work")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	pub, err := l.PublicKey(ident.ID)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if !VerifyDID(ident.DID, pub) {
		t.Fatal("did must verify against derived public key")
	}
	other, _ := signing.PublicKey(bytes.Repeat([]byte{1}, signing.SeedSize))
	if VerifyDID(ident.DID, other) {
		t.Fatal("did must not verify against a foreign key")
	}
	if id, ok := IDFromDID(ident.DID); !ok || id != ident.ID {
		t.Fatalf("IDFromDID returned %q %v", id, ok)
	}
	if _, ok := IDFromDID("did:web:example.com"); ok {
		t.Fatal("foreign did method must be rejected")
	}
}

func TestAppendLabelsAndTimestamps(t *testing.T) {
	l := seededLedger(t, 0x01)
	first, _, err := l.Append("   ")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.Label != "identity-1" {
		t.Fatalf("expected default label identity-1, got %q", first.Label)
	}
	if first.CreatedAt.Nanosecond() != 0 || first.CreatedAt.Location() != time.UTC {
		t.Fatalf("created_at should be truncated UTC, got %v", first.CreatedAt)
	}
	second, _, err := l.Append("  Shopping  ")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.Label != "Shopping" {
		t.Fatalf("expected trimmed label, got %q", second.Label)
	}
	_, _, err = l.Append(strings.Repeat("é", MaxLabelRunes+1))
	if !errors.Is(err, ErrLabelTooLong) || !errors.Is(err, vaulterr.ErrInvalidInput) {
		t.Fatalf("expected label too long, got %v", err)
	}
	if len(l.List()) != 2 {
		t.Fatal("rejected label must not append")
	}
}

func TestAppendRollback(t *testing.T) {
	l := seededLedger(t, 0x02)
	kept, _, err := l.Append("kept")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	dropped, rollback, err := l.Append("dropped")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	key := l.Vault().PrivateKeys[dropped.ID]
	rollback()

	if got := l.List(); len(got) != 1 || got[0].ID != kept.ID {
		t.Fatalf("rollback should leave only the first identity, got %+v", got)
	}
	if _, err := l.PrivateKey(dropped.ID); !errors.Is(err, vaulterr.ErrIdentityNotFound) {
		t.Fatalf("expected identity not found after rollback, got %v", err)
	}
	if !bytes.Equal(key, make([]byte, len(key))) {
		t.Fatal("rolled back key material must be wiped")
	}

	again, _, err := l.Append("again")
	if err != nil {
		t.Fatalf("append after rollback: %v", err)
	}
	if again.ID != dropped.ID {
		t.Fatal("re-appending the same index must reproduce the same identity")
	}
}

func TestLedgerRequiresSeedAndNeverReplacesIt(t *testing.T) {
	l := NewLedger(nil, nil, nil)
	if _, _, err := l.Append("x"); !errors.Is(err, ErrSeedMissing) {
		t.Fatalf("expected ErrSeedMissing, got %v", err)
	}
	if _, err := l.EnsureMasterSeed(bytes.NewReader(nil)); err == nil {
		t.Fatal("short entropy source must fail")
	}

	l = seededLedger(t, 0x03)
	before := append([]byte(nil), l.Vault().MasterSeed...)
	created, err := l.EnsureMasterSeed(bytes.NewReader(bytes.Repeat([]byte{0xEE}, vault.SeedSize)))
	if err != nil || created {
		t.Fatalf("existing seed must be kept: created=%v err=%v", created, err)
	}
	if !bytes.Equal(before, l.Vault().MasterSeed) {
		t.Fatal("master seed changed")
	}
}

func TestPrivateKeyReturnsCopyAndWipe(t *testing.T) {
	l := seededLedger(t, 0x04)
	ident, _, _ := l.Append("a")
	key, err := l.PrivateKey(ident.ID)
	if err != nil {
		t.Fatalf("private key: %v", err)
	}
	key[0] ^= 0xFF
	again, _ := l.PrivateKey(ident.ID)
	if bytes.Equal(key, again) {
		t.Fatal("private key must be returned as a copy")
	}

	stored := l.Vault().PrivateKeys[ident.ID]
	seed := l.Vault().MasterSeed
	l.Wipe()
	if !bytes.Equal(stored, make([]byte, len(stored))) || !bytes.Equal(seed, make([]byte, len(seed))) {
		t.Fatal("wipe must zero key material")
	}
	if len(l.List()) != 0 {
		t.Fatal("wipe must drop identities")
	}
}

func TestSafetyWords(t *testing.T) {
	pub, _ := signing.PublicKey(bytes.Repeat([]byte{0x11}, signing.SeedSize))
	a, err := SafetyWords(pub)
	if err != nil {
		t.Fatalf("safety words: %v", err)
	}
	b, _ := SafetyWords(pub)
	if a != b {
		t.Fatal("safety words must be deterministic")
	}
	if n := len(strings.Fields(a)); n != 4 {
		t.Fatalf("expected 4 words, got %d (%q)", n, a)
	}
	other, _ := signing.PublicKey(bytes.Repeat([]byte{0x12}, signing.SeedSize))
	c, _ := SafetyWords(other)
	if a == c {
		t.Fatal("different keys should render different words")
	}
}

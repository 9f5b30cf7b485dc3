package securestore

import (
	"bytes"
	"errors"
	"testing"
)

var testParams = KDFParams{Time: 1, MemoryKB: 64, Threads: 1}

func mustKey(t *testing.T, pin string) *VaultKey {
	t.Helper()
	key, err := DeriveKey(pin, DefaultSalt, testParams)
	if err != nil {
		t.Fatalf("derive key failed: %v", err)
	}
	t.Cleanup(key.Destroy)
	return key
}

func TestSealOpenRoundtrip(t *testing.T) {
	key := mustKey(t, "123456")
	sealed, err := Seal(key, []byte("device-A"), []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	plain, err := Open(key, []byte("device-A"), sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	key := mustKey(t, "123456")
	a, err := Seal(key, []byte("device-A"), []byte("same"))
	if err != nil {
		t.Fatalf("seal a failed: %v", err)
	}
	b, err := Seal(key, []byte("device-A"), []byte("same"))
	if err != nil {
		t.Fatalf("seal b failed: %v", err)
	}
	if bytes.Equal(a[:NonceSize], b[:NonceSize]) {
		t.Fatal("nonce reused across seals")
	}
	if bytes.Equal(a, b) {
		t.Fatal("identical ciphertexts for repeated seal")
	}
}

func TestOpenFailuresAreIndistinguishable(t *testing.T) {
	key := mustKey(t, "123456")
	other := mustKey(t, "654321")
	sealed, err := Seal(key, []byte("device-A"), []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-2] ^= 0xFF

	cases := map[string]func() ([]byte, error){
		"wrong key":    func() ([]byte, error) { return Open(other, []byte("device-A"), sealed) },
		"wrong device": func() ([]byte, error) { return Open(key, []byte("device-B"), sealed) },
		"tampered":     func() ([]byte, error) { return Open(key, []byte("device-A"), tampered) },
		"truncated":    func() ([]byte, error) { return Open(key, []byte("device-A"), sealed[:NonceSize]) },
		"empty device": func() ([]byte, error) { return Open(key, nil, sealed) },
	}
	for name, open := range cases {
		plain, err := open()
		if !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("%s: expected ErrAuthFailed, got %v", name, err)
		}
		if plain != nil {
			t.Fatalf("%s: plaintext returned on failure", name)
		}
	}
}

func TestSealRequiresDevice(t *testing.T) {
	key := mustKey(t, "123456")
	if _, err := Seal(key, nil, []byte("x")); !errors.Is(err, ErrDeviceRequired) {
		t.Fatalf("expected ErrDeviceRequired, got %v", err)
	}
}

func TestDestroyedKeyCannotSeal(t *testing.T) {
	key := mustKey(t, "123456")
	key.Destroy()
	if key.Alive() {
		t.Fatal("key should not be alive after destroy")
	}
	if _, err := Seal(key, []byte("device-A"), []byte("x")); !errors.Is(err, ErrKeyDestroyed) {
		t.Fatalf("expected ErrKeyDestroyed, got %v", err)
	}
	key.Destroy()
}

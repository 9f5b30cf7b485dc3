package api

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"satya/go-core/internal/config"
	"satya/go-core/internal/intent"
	"satya/go-core/internal/platform/privacylog"
	"satya/go-core/internal/securestore"
	"satya/go-core/internal/vault"
	"satya/go-core/internal/vaulterr"
	"satya/go-core/internal/waku"
)

const testUPI = "upi://pay?pa=merchant@bank&pn=Seller&am=100&cu=INR"

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.StorageRoot = t.TempDir()
	cfg.KDF = securestore.KDFParams{Time: 1, MemoryKB: 64, Threads: 1}
	cfg.Relay.Transport = config.RelayWaku
	cfg.Relay.Waku.Transport = waku.TransportMock
	cfg.Relay.Waku.ContentTopic = "/satya/1/api-test/" + t.Name()
	return cfg
}

func newTestService(t *testing.T, cfg config.Config) *Service {
	t.Helper()
	svc, err := NewServiceWithOptions(Options{Config: cfg, Logger: privacylog.Discard()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestServiceEndToEnd(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	ok, err := svc.InitializeVault("123456", "device-A", "")
	if err != nil || !ok {
		t.Fatalf("initialize: ok=%v err=%v", ok, err)
	}
	alice, err := svc.CreateIdentity("Alice")
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	list, err := svc.GetIdentities()
	if err != nil || len(list) != 1 || list[0].ID != alice.ID {
		t.Fatalf("get identities: %+v %v", list, err)
	}

	parsed, err := svc.ScanCode(testUPI)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := intent.ParsedIntent{VPA: "merchant@bank", Name: "Seller", Amount: "100", Currency: "INR"}
	if parsed != want {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}

	signed, err := svc.SignIntent(alice.ID, testUPI)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	env, err := intent.DecodeEnvelope([]byte(signed))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.SignerDID != alice.DID || env.Payload.UPI.Amount != "100" || env.Payload.UPI.Currency != "INR" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if ok, err := intent.VerifyEnvelope(env); err != nil || !ok {
		t.Fatalf("envelope must verify: ok=%v err=%v", ok, err)
	}

	words, err := svc.SafetyWords(alice.ID)
	if err != nil || len(strings.Fields(words)) != 4 {
		t.Fatalf("safety words: %q %v", words, err)
	}

	if ok, err := svc.PublishIntent(context.Background(), signed); err != nil || !ok {
		t.Fatalf("publish: ok=%v err=%v", ok, err)
	}
	fetched, err := svc.FetchRecent(context.Background(), 10, time.Second)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(fetched) != 1 || fetched[0].CID != env.CID || !fetched[0].Verified {
		t.Fatalf("unexpected fetch result: %+v", fetched)
	}

	ok, err = svc.ResetVault("")
	if err != nil || !ok {
		t.Fatalf("reset: ok=%v err=%v", ok, err)
	}
	if _, err := svc.GetIdentities(); !errors.Is(err, vaulterr.ErrVaultLocked) {
		t.Fatalf("expected locked vault after reset, got %v", err)
	}
}

func TestScanCodeWorksWhileLocked(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	if _, err := svc.ScanCode(testUPI); err != nil {
		t.Fatalf("scan while locked: %v", err)
	}
	if _, err := svc.ScanCode("https://example.com"); !errors.Is(err, vaulterr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.SignIntent("id", testUPI); !errors.Is(err, vaulterr.ErrVaultLocked) {
		t.Fatalf("expected vault locked, got %v", err)
	}
}

func TestExplicitStoragePathWins(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg)
	other := t.TempDir()
	if _, err := svc.InitializeVault("123456", "device-A", other); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := svc.CreateIdentity("elsewhere"); err != nil {
		t.Fatalf("create: %v", err)
	}

	fresh := newTestService(t, cfg)
	if _, err := fresh.InitializeVault("123456", "device-A", ""); err != nil {
		t.Fatalf("initialize default root: %v", err)
	}
	if list, _ := fresh.GetIdentities(); len(list) != 0 {
		t.Fatalf("configured root must be a separate vault, got %+v", list)
	}

	if ok, err := svc.ResetVault(""); err != nil || !ok {
		t.Fatalf("reset: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(other, vault.StoreDirName)); !os.IsNotExist(err) {
		t.Fatalf("reset must target the unlocked vault, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.StorageRoot, vault.StoreDirName, vault.StoreFileName)); err != nil {
		t.Fatalf("configured vault must be untouched: %v", err)
	}
}

func TestRelayDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Relay.Transport = config.RelayNone
	svc := newTestService(t, cfg)
	if _, err := svc.InitializeVault("123456", "device-A", ""); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	ident, err := svc.CreateIdentity("")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	signed, err := svc.SignIntent(ident.ID, testUPI)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.PublishIntent(context.Background(), signed); !errors.Is(err, vaulterr.ErrNetworkUnavailable) {
		t.Fatalf("expected network unavailable, got %v", err)
	}
	if _, err := svc.FetchRecent(context.Background(), 5, 0); !errors.Is(err, vaulterr.ErrNetworkUnavailable) {
		t.Fatalf("expected network unavailable, got %v", err)
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Relay.Transport = "smoke-signals"
	if _, err := NewServiceWithConfig(cfg); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}
}

func TestDefaultIsASingleton(t *testing.T) {
	t.Setenv(config.EnvStorageRoot, t.TempDir())
	t.Setenv(config.EnvRelayTransport, config.RelayNone)
	a, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	b, _ := Default()
	if a != b {
		t.Fatal("Default must return the same service")
	}
}

func TestServiceWarnsWhenRelayIsLocalOnly(t *testing.T) {
	var logs bytes.Buffer
	svc, err := NewServiceWithOptions(Options{
		Config: testConfig(t),
		Logger: privacylog.NewLogger(&logs, "info", "json"),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	if svc.RelayNetworked() {
		t.Fatal("mock waku bus must not count as networked")
	}
	if !strings.Contains(logs.String(), `"status":"local_only"`) {
		t.Fatalf("expected a local-only warning, got %s", logs.String())
	}

	cfg := testConfig(t)
	cfg.Relay.Transport = config.RelayNostr
	logs.Reset()
	nostrSvc, err := NewServiceWithOptions(Options{Config: cfg, Logger: privacylog.NewLogger(&logs, "info", "json")})
	if err != nil {
		t.Fatalf("new nostr service: %v", err)
	}
	t.Cleanup(func() { _ = nostrSvc.Close() })
	if !nostrSvc.RelayNetworked() || strings.Contains(logs.String(), "local_only") {
		t.Fatalf("nostr relay is networked and must not warn: %s", logs.String())
	}
}

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"satya/go-core/internal/config"
	"satya/go-core/internal/intent"
	"satya/go-core/internal/vaulterr"
)

const testUPI = "upi://pay?pa=merchant@bank&pn=Seller&am=100&cu=INR"

type cliEnv struct {
	configPath string
	root       string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	return newCLIEnvWithRelay(t, "relay:\n  transport: none\n")
}

func newCLIEnvWithRelay(t *testing.T, relay string) cliEnv {
	t.Helper()
	color.NoColor = true
	for _, key := range []string{config.EnvStorageRoot, config.EnvRelayTransport, config.EnvWakuTransport, config.EnvKDFSalt, envDeviceID} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "satya.yaml")
	body := "vault:\n  kdfTime: 1\n  kdfMemoryKB: 64\n  kdfThreads: 1\n" + relay
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cliEnv{configPath: cfgPath, root: filepath.Join(dir, "vault")}
}

func (e cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath, "--root", e.root, "--device", "device-A"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func fieldValue(t *testing.T, out, field string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, field+":"); ok {
			return strings.TrimSpace(v)
		}
	}
	t.Fatalf("field %q not found in output:\n%s", field, out)
	return ""
}

func TestCLIVaultLifecycle(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "123456\n", "init")
	if err != nil || !strings.Contains(out, "vault ready") {
		t.Fatalf("init: %v\n%s", err, out)
	}

	out, err = env.run(t, "123456\n", "identity", "create", "Alice")
	if err != nil {
		t.Fatalf("identity create: %v", err)
	}
	id := fieldValue(t, out, "id")
	did := fieldValue(t, out, "did")
	if len(strings.Fields(fieldValue(t, out, "words"))) != 4 {
		t.Fatalf("expected four safety words:\n%s", out)
	}

	out, err = env.run(t, "123456\n", "identity", "list")
	if err != nil || !strings.Contains(out, "Alice") || !strings.Contains(out, did) {
		t.Fatalf("identity list: %v\n%s", err, out)
	}

	out, err = env.run(t, "", "scan", testUPI)
	if err != nil || !strings.Contains(out, `"vpa": "merchant@bank"`) {
		t.Fatalf("scan: %v\n%s", err, out)
	}

	out, err = env.run(t, "123456\n", "sign", id, testUPI)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signed, err := intent.DecodeEnvelope([]byte(strings.TrimSpace(out)))
	if err != nil {
		t.Fatalf("decode signed output: %v\n%s", err, out)
	}
	if ok, err := intent.VerifyEnvelope(signed); err != nil || !ok || signed.SignerDID != did {
		t.Fatalf("signed envelope must verify for %s: ok=%v err=%v", did, ok, err)
	}

	_, err = env.run(t, "000000\n", "identity", "list")
	if !errors.Is(err, vaulterr.ErrAuthenticationFailure) || exitCode(err) != 3 {
		t.Fatalf("wrong pin: expected auth failure with exit 3, got %v", err)
	}

	if _, err := env.run(t, "", "reset"); err == nil {
		t.Fatal("reset without --yes must refuse when not interactive")
	}
	if out, err := env.run(t, "", "reset", "--yes"); err != nil || !strings.Contains(out, "vault reset") {
		t.Fatalf("reset: %v\n%s", err, out)
	}
	out, err = env.run(t, "123456\n", "identity", "list")
	if err != nil || !strings.Contains(out, "no identities") {
		t.Fatalf("list after reset: %v\n%s", err, out)
	}
}

func TestCLIRelayDisabledExitCode(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "fetch")
	if !errors.Is(err, vaulterr.ErrNetworkUnavailable) || exitCode(err) != 5 {
		t.Fatalf("expected network unavailable with exit 5, got %v", err)
	}
	_, err = env.run(t, "", "scan", "not-a-link")
	if exitCode(err) != 2 {
		t.Fatalf("expected exit 2 for invalid input, got %d (%v)", exitCode(err), err)
	}
}

func TestCLIWarnsOnInProcessPublish(t *testing.T) {
	env := newCLIEnvWithRelay(t, "relay:\n  transport: waku\nnetwork:\n  transport: mock\n  contentTopic: /satya/1/cli-test/"+t.Name()+"\n")
	if _, err := env.run(t, "123456\n", "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	out, err := env.run(t, "123456\n", "identity", "create", "Alice")
	if err != nil {
		t.Fatalf("identity create: %v", err)
	}
	signed, err := env.run(t, "123456\n", "sign", fieldValue(t, out, "id"), testUPI)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	out, err = env.run(t, signed, "publish", "-")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(out, "in-process relay only") {
		t.Fatalf("expected a local-only warning, got %q", out)
	}

	out, err = env.run(t, "", "doctor")
	if err == nil || !strings.Contains(out, "relay_transport_networked") {
		t.Fatalf("doctor must fail on the in-process relay: %v\n%s", err, out)
	}
}

func TestCLIVersion(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "", "version")
	if err != nil || !strings.HasPrefix(out, "satya version=") {
		t.Fatalf("version: %v\n%s", err, out)
	}
}

func TestCLIDoctor(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "", "doctor")
	if err != nil || !strings.Contains(out, "storage_root_writable") {
		t.Fatalf("doctor on empty root: %v\n%s", err, out)
	}
	if _, err := env.run(t, "123456\n", "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	out, err = env.run(t, "", "doctor", "--json")
	if err != nil || !strings.Contains(out, `"vault_file_private"`) || !strings.Contains(out, `"ready": true`) {
		t.Fatalf("doctor after init: %v\n%s", err, out)
	}
}

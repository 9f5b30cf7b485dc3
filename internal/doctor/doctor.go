// Package doctor runs offline readiness checks against a vault root and the
// relay configuration. It never needs the PIN.
package doctor

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"satya/go-core/internal/config"
	"satya/go-core/internal/vault"
	"satya/go-core/internal/waku"
)

type Check struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

type Report struct {
	Ready     bool      `json:"ready"`
	Checks    []Check   `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
	// ResetArchives lists vault directories moved aside by earlier resets.
	ResetArchives []string `json:"reset_archives,omitempty"`
}

// Run inspects cfg.StorageRoot and the relay settings. Failing checks mark
// the report not ready; Run itself only errors on unexpected I/O.
func Run(cfg config.Config, now time.Time) (Report, error) {
	report := Report{
		Ready:     true,
		Checks:    make([]Check, 0, 8),
		CheckedAt: now.UTC(),
	}
	appendCheck := func(name string, pass bool, reason string) {
		report.Checks = append(report.Checks, Check{Name: name, Pass: pass, Reason: reason})
		if !pass {
			report.Ready = false
		}
	}

	err := cfg.KDF.Validate()
	appendCheck("kdf_params_valid", err == nil, errReason(err))

	root := strings.TrimSpace(cfg.StorageRoot)
	err = checkRootWritable(root)
	appendCheck("storage_root_writable", err == nil, errReason(err))

	store := vault.NewStore(root)
	if info, err := os.Stat(store.Path()); err == nil {
		appendCheck("vault_file_regular", info.Mode().IsRegular(), failReason(!info.Mode().IsRegular(), "vault path is not a regular file"))
		if runtime.GOOS != "windows" {
			perm := info.Mode().Perm()
			appendCheck("vault_file_private", perm == 0o600, failReason(perm != 0o600, fmt.Sprintf("vault file mode is %04o, want 0600", perm)))
		}
	} else if !os.IsNotExist(err) {
		return Report{}, err
	}
	if info, err := os.Stat(store.Dir()); err == nil && runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		appendCheck("vault_dir_private", perm&0o077 == 0, failReason(perm&0o077 != 0, fmt.Sprintf("vault dir mode is %04o, group/other have access", perm)))
	}

	archives, err := resetArchives(root)
	if err != nil {
		return Report{}, err
	}
	report.ResetArchives = archives

	if cfg.Relay.Transport != config.RelayNone {
		ok := cfg.Relay.Networked()
		appendCheck("relay_transport_networked", ok, failReason(!ok, "mock waku bus keeps published envelopes inside this process"))
	}

	switch cfg.Relay.Transport {
	case config.RelayNostr:
		ok := len(cfg.Relay.NostrRelays) > 0
		appendCheck("nostr_relays_configured", ok, failReason(!ok, "no nostr relays configured"))
		for _, u := range cfg.Relay.NostrRelays {
			if err := validateRelayURL(u); err != nil {
				appendCheck("nostr_relay_url_valid", false, err.Error())
			}
		}
	case config.RelayWaku:
		if cfg.Relay.Waku.Transport == waku.TransportGoWaku {
			port := cfg.Relay.Waku.Port
			valid := port >= 1 && port <= 65535
			appendCheck("waku_port_valid", valid, failReason(!valid, "listen port must be in [1..65535]"))
			if valid {
				err := checkPortAvailable(port)
				appendCheck("waku_port_available", err == nil, errReason(err))
			}
		}
	}
	return report, nil
}

func checkRootWritable(root string) error {
	if root == "" {
		return fmt.Errorf("storage root is empty")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return fmt.Errorf("storage root is not creatable: %w", err)
	}
	f, err := os.CreateTemp(root, ".doctor-*")
	if err != nil {
		return fmt.Errorf("storage root is not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

func resetArchives(root string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, vault.StoreDirName+".reset-*"))
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func validateRelayURL(raw string) error {
	u := strings.TrimSpace(raw)
	if !strings.HasPrefix(u, "wss://") && !strings.HasPrefix(u, "ws://") {
		return fmt.Errorf("relay url must use ws:// or wss://: %q", raw)
	}
	return nil
}

func checkPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("port %d is unavailable: %w", port, err)
	}
	_ = ln.Close()
	return nil
}

func failReason(failed bool, reason string) string {
	if !failed {
		return ""
	}
	return reason
}

func errReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

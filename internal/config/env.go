package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvStorageRoot         = "SATYA_STORAGE_ROOT"
	EnvKDFSalt             = "SATYA_KDF_SALT"
	EnvRelayTransport      = "SATYA_RELAY_TRANSPORT"
	EnvNostrRelays         = "SATYA_NOSTR_RELAYS"
	EnvRelayPublishTimeout = "SATYA_RELAY_PUBLISH_TIMEOUT_MS"
	EnvRelayFetchTimeout   = "SATYA_RELAY_FETCH_TIMEOUT_MS"
	EnvWakuTransport       = "SATYA_WAKU_TRANSPORT"
	EnvWakuFailover        = "SATYA_WAKU_FAILOVER_V1"
	EnvLogLevel            = "SATYA_LOG_LEVEL"
	EnvLogFormat           = "SATYA_LOG_FORMAT"
	EnvMetricsAddr         = "SATYA_METRICS_ADDR"
)

// ApplyEnvOverrides lets SATYA_* variables win over file and defaults.
// Unparseable values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := envString(EnvStorageRoot); v != "" {
		cfg.StorageRoot = v
	}
	if v := envString(EnvKDFSalt); v != "" {
		cfg.KDFSalt = v
	}
	if v := strings.ToLower(envString(EnvRelayTransport)); v != "" {
		cfg.Relay.Transport = v
	}
	if relays := envCSV(EnvNostrRelays); len(relays) > 0 {
		cfg.Relay.NostrRelays = relays
	}
	cfg.Relay.PublishTimeout = envMillisWithFallback(EnvRelayPublishTimeout, cfg.Relay.PublishTimeout)
	cfg.Relay.FetchTimeout = envMillisWithFallback(EnvRelayFetchTimeout, cfg.Relay.FetchTimeout)
	if v := envString(EnvWakuTransport); v != "" {
		cfg.Relay.Waku.Transport = v
	}
	cfg.Relay.Waku.FailoverV1 = envBoolWithFallback(EnvWakuFailover, cfg.Relay.Waku.FailoverV1)
	if v := envString(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := envString(EnvLogFormat); v != "" {
		cfg.Log.Format = v
	}
	if v := envString(EnvMetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envCSV(key string) []string {
	raw := envString(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBoolWithFallback(key string, fallback bool) bool {
	raw := strings.ToLower(envString(key))
	switch raw {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envIntWithFallback(key string, fallback int) int {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envMillisWithFallback(key string, fallback time.Duration) time.Duration {
	ms := envIntWithFallback(key, -1)
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

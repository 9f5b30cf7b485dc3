// Package config loads the vault and relay settings from an optional YAML
// file and SATYA_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"satya/go-core/internal/gateway"
	"satya/go-core/internal/securestore"
	"satya/go-core/internal/waku"
)

const (
	RelayWaku  = "waku"
	RelayNostr = "nostr"
	RelayNone  = "none"
)

type Config struct {
	StorageRoot string
	KDFSalt     string
	KDF         securestore.KDFParams
	Relay       RelayConfig
	Log         LogConfig
	MetricsAddr string
}

type RelayConfig struct {
	Transport      string
	NostrRelays    []string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	FetchTimeout   time.Duration
	PublishRate    float64
	PublishBurst   int
	FetchLookback  time.Duration
	Waku           waku.Config
}

type LogConfig struct {
	Level  string
	Format string
}

// fileConfig mirrors the YAML layout. Pointers distinguish "unset" from an
// explicit zero.
type fileConfig struct {
	StorageRoot string          `yaml:"storageRoot"`
	Vault       fileVault       `yaml:"vault"`
	Relay       fileRelay       `yaml:"relay"`
	Log         LogConfig       `yaml:"log"`
	Metrics     fileMetrics     `yaml:"metrics"`
	Network     fileWakuNetwork `yaml:"network"`
}

type fileVault struct {
	KDFSalt     string `yaml:"kdfSalt"`
	KDFTime     uint32 `yaml:"kdfTime"`
	KDFMemoryKB uint32 `yaml:"kdfMemoryKB"`
	KDFThreads  uint8  `yaml:"kdfThreads"`
}

type fileRelay struct {
	Transport      string        `yaml:"transport"`
	NostrRelays    []string      `yaml:"nostrRelays"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
	FetchTimeout   time.Duration `yaml:"fetchTimeout"`
	PublishRate    *float64      `yaml:"publishRate"`
	PublishBurst   int           `yaml:"publishBurst"`
	FetchLookback  time.Duration `yaml:"fetchLookback"`
}

type fileMetrics struct {
	Addr string `yaml:"addr"`
}

type fileWakuNetwork struct {
	Transport           string        `yaml:"transport"`
	Port                int           `yaml:"port"`
	PubsubTopic         string        `yaml:"pubsubTopic"`
	ContentTopic        string        `yaml:"contentTopic"`
	EnableRelay         *bool         `yaml:"enableRelay"`
	EnableStore         *bool         `yaml:"enableStore"`
	EnableFilter        *bool         `yaml:"enableFilter"`
	EnableLightPush     *bool         `yaml:"enableLightPush"`
	BootstrapNodes      []string      `yaml:"bootstrapNodes"`
	FailoverV1          *bool         `yaml:"failoverV1"`
	MinPeers            int           `yaml:"minPeers"`
	StoreQueryFanout    int           `yaml:"storeQueryFanout"`
	ReconnectInterval   time.Duration `yaml:"reconnectInterval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnectBackoffMax"`
}

func Default() Config {
	gw := gateway.DefaultConfig()
	return Config{
		StorageRoot: DefaultStorageRoot(),
		KDFSalt:     string(securestore.DefaultSalt),
		KDF:         securestore.DefaultKDFParams(),
		Relay: RelayConfig{
			Transport:      RelayNostr,
			NostrRelays:    []string{gateway.DefaultRelayURL},
			ConnectTimeout: gw.ConnectTimeout,
			PublishTimeout: gw.PublishTimeout,
			FetchTimeout:   gw.FetchTimeout,
			PublishRate:    gw.PublishRate,
			PublishBurst:   gw.PublishBurst,
			FetchLookback:  24 * time.Hour,
			Waku:           waku.DefaultConfig(),
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// DefaultStorageRoot is the per-user config directory, or ./.satya when the
// platform reports none.
func DefaultStorageRoot() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".satya"
	}
	return filepath.Join(dir, "satya")
}

// Load reads configPath when given, else the first of the default
// candidates that exists, then applies env overrides. A missing explicit
// file or a malformed one is an error; missing defaults are not.
func Load(configPath string) (Config, error) {
	cfg := Default()

	configPath = strings.TrimSpace(configPath)
	candidates := []string{"configs/satya.yaml", "satya.yaml"}
	if configPath != "" {
		candidates = []string{configPath}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

func merge(dst *Config, src fileConfig) {
	if v := strings.TrimSpace(src.StorageRoot); v != "" {
		dst.StorageRoot = v
	}
	if src.Vault.KDFSalt != "" {
		dst.KDFSalt = src.Vault.KDFSalt
	}
	if src.Vault.KDFTime != 0 {
		dst.KDF.Time = src.Vault.KDFTime
	}
	if src.Vault.KDFMemoryKB != 0 {
		dst.KDF.MemoryKB = src.Vault.KDFMemoryKB
	}
	if src.Vault.KDFThreads != 0 {
		dst.KDF.Threads = src.Vault.KDFThreads
	}

	r := src.Relay
	if r.Transport != "" {
		dst.Relay.Transport = r.Transport
	}
	if r.NostrRelays != nil {
		dst.Relay.NostrRelays = r.NostrRelays
	}
	if r.ConnectTimeout != 0 {
		dst.Relay.ConnectTimeout = r.ConnectTimeout
	}
	if r.PublishTimeout != 0 {
		dst.Relay.PublishTimeout = r.PublishTimeout
	}
	if r.FetchTimeout != 0 {
		dst.Relay.FetchTimeout = r.FetchTimeout
	}
	if r.PublishRate != nil {
		dst.Relay.PublishRate = *r.PublishRate
	}
	if r.PublishBurst != 0 {
		dst.Relay.PublishBurst = r.PublishBurst
	}
	if r.FetchLookback != 0 {
		dst.Relay.FetchLookback = r.FetchLookback
	}
	mergeWaku(&dst.Relay.Waku, src.Network)

	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
	if src.Metrics.Addr != "" {
		dst.MetricsAddr = src.Metrics.Addr
	}
}

func mergeWaku(dst *waku.Config, src fileWakuNetwork) {
	if src.Transport != "" {
		dst.Transport = src.Transport
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.PubsubTopic != "" {
		dst.PubsubTopic = src.PubsubTopic
	}
	if src.ContentTopic != "" {
		dst.ContentTopic = src.ContentTopic
	}
	if src.EnableRelay != nil {
		dst.EnableRelay = *src.EnableRelay
	}
	if src.EnableStore != nil {
		dst.EnableStore = *src.EnableStore
	}
	if src.EnableFilter != nil {
		dst.EnableFilter = *src.EnableFilter
	}
	if src.EnableLightPush != nil {
		dst.EnableLightPush = *src.EnableLightPush
	}
	if src.BootstrapNodes != nil {
		dst.BootstrapNodes = src.BootstrapNodes
	}
	if src.FailoverV1 != nil {
		dst.FailoverV1 = *src.FailoverV1
	}
	if src.MinPeers != 0 {
		dst.MinPeers = src.MinPeers
	}
	if src.StoreQueryFanout != 0 {
		dst.StoreQueryFanout = src.StoreQueryFanout
	}
	if src.ReconnectInterval != 0 {
		dst.ReconnectInterval = src.ReconnectInterval
	}
	if src.ReconnectBackoffMax != 0 {
		dst.ReconnectBackoffMax = src.ReconnectBackoffMax
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.StorageRoot) == "" {
		return errors.New("config: storage root is required")
	}
	if len(c.KDFSalt) < 8 {
		return errors.New("config: kdf salt must be at least 8 bytes")
	}
	if err := c.KDF.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Relay.Transport {
	case RelayWaku, RelayNone:
	case RelayNostr:
		if len(c.Relay.NostrRelays) == 0 {
			return errors.New("config: nostr transport needs at least one relay")
		}
	default:
		return fmt.Errorf("config: unknown relay transport %q", c.Relay.Transport)
	}
	if c.Relay.PublishRate < 0 || c.Relay.PublishBurst < 0 {
		return errors.New("config: publish rate and burst must not be negative")
	}
	return nil
}

// Networked reports whether published envelopes leave this process. The
// mock waku bus keeps them in memory only.
func (r RelayConfig) Networked() bool {
	switch r.Transport {
	case RelayNostr:
		return true
	case RelayWaku:
		return r.Waku.Transport == waku.TransportGoWaku
	default:
		return false
	}
}

func (c Config) Salt() []byte {
	return []byte(c.KDFSalt)
}

func (c Config) Gateway() gateway.Config {
	return gateway.Config{
		ConnectTimeout: c.Relay.ConnectTimeout,
		PublishTimeout: c.Relay.PublishTimeout,
		FetchTimeout:   c.Relay.FetchTimeout,
		PublishRate:    c.Relay.PublishRate,
		PublishBurst:   c.Relay.PublishBurst,
	}
}

// Package api is the host-facing facade over the vault session and the relay
// gateway. Hosts either own a *Service or use the process-wide Default.
package api

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"satya/go-core/internal/config"
	"satya/go-core/internal/gateway"
	"satya/go-core/internal/identity"
	"satya/go-core/internal/intent"
	"satya/go-core/internal/metrics"
	"satya/go-core/internal/platform/privacylog"
	"satya/go-core/internal/session"
	"satya/go-core/internal/vaulterr"
)

type Options struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Registry
	// Transport overrides the relay transport chosen by Config.Relay.
	Transport gateway.Transport
	// Session overrides the session built from Config, mostly for tests.
	Session *session.Session
}

type Service struct {
	cfg     config.Config
	session *session.Session
	gateway *gateway.Gateway
	logger  *slog.Logger
	metrics *metrics.Registry
}

func NewService() (*Service, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	return NewServiceWithConfig(cfg)
}

func NewServiceWithConfig(cfg config.Config) (*Service, error) {
	return NewServiceWithOptions(Options{Config: cfg})
}

func NewServiceWithOptions(opts Options) (*Service, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = privacylog.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Transport == nil {
		t, err := newTransport(cfg.Relay)
		if err != nil {
			return nil, err
		}
		opts.Transport = t
	}
	if opts.Session == nil {
		opts.Session = session.New(session.Options{
			Salt:    cfg.Salt(),
			KDF:     cfg.KDF,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
		})
	}
	if cfg.Relay.Transport != config.RelayNone && !cfg.Relay.Networked() {
		opts.Logger.Warn("relay is in-process only; published envelopes are not visible to other processes",
			"action", "relay_config", "status", "local_only", "transport", cfg.Relay.Transport)
	}
	return &Service{
		cfg:     cfg,
		session: opts.Session,
		gateway: gateway.New(opts.Transport, cfg.Gateway(), gateway.Options{
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
		}),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// newTransport returns nil for RelayNone; the gateway then reports every
// relay call as unavailable.
func newTransport(cfg config.RelayConfig) (gateway.Transport, error) {
	switch cfg.Transport {
	case config.RelayNostr:
		t, err := gateway.NewNostrTransport(cfg.NostrRelays)
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.RelayNone:
		return nil, nil
	default:
		return gateway.NewWakuTransport(cfg.Waku, cfg.FetchLookback), nil
	}
}

// InitializeVault unlocks the vault under storagePath, creating it on first
// use. An empty storagePath selects the configured root.
func (s *Service) InitializeVault(pin, deviceID, storagePath string) (bool, error) {
	if err := s.session.Unlock(pin, deviceID, s.root(storagePath)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) CreateIdentity(label string) (identity.Identity, error) {
	return s.session.CreateIdentity(label)
}

func (s *Service) GetIdentities() ([]identity.Identity, error) {
	return s.session.ListIdentities()
}

// SafetyWords returns the short phrase users compare out of band to confirm
// an identity's key.
func (s *Service) SafetyWords(identityID string) (string, error) {
	pub, err := s.session.PublicKey(identityID)
	if err != nil {
		return "", err
	}
	words, err := identity.SafetyWords(pub)
	if err != nil {
		return "", vaulterr.New(vaulterr.KindCorruption, "api.safety_words", err)
	}
	return words, nil
}

// ScanCode parses a payment link. It needs no unlocked vault.
func (s *Service) ScanCode(rawText string) (intent.ParsedIntent, error) {
	return intent.ParseUPI(rawText)
}

// SignIntent returns the signed envelope as JSON.
func (s *Service) SignIntent(identityID, rawText string) (string, error) {
	env, err := s.session.SignIntent(identityID, rawText)
	if err != nil {
		return "", err
	}
	b, err := intent.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ResetVault purges the session and moves the vault aside. An empty
// storagePath targets the unlocked vault, or the configured root when locked.
func (s *Service) ResetVault(storagePath string) (bool, error) {
	root := strings.TrimSpace(storagePath)
	if root == "" {
		if active, ok := s.session.Root(); ok {
			root = active
		}
	}
	if err := s.session.Reset(s.root(root)); err != nil {
		return false, err
	}
	return true, nil
}

// RelayNetworked reports whether PublishIntent reaches other processes.
func (s *Service) RelayNetworked() bool {
	return s.cfg.Relay.Networked()
}

// PublishIntent relays a signed envelope produced by SignIntent. The vault
// lock is not held while the network call runs.
func (s *Service) PublishIntent(ctx context.Context, envelopeJSON string) (bool, error) {
	return s.gateway.Publish(ctx, []byte(envelopeJSON))
}

func (s *Service) FetchRecent(ctx context.Context, limit int, timeout time.Duration) ([]intent.SignedEnvelope, error) {
	return s.gateway.FetchRecent(ctx, limit, timeout)
}

// Lock drops the active session and wipes its key material.
func (s *Service) Lock() {
	s.session.Lock()
}

func (s *Service) Metrics() *metrics.Registry {
	return s.metrics
}

func (s *Service) Config() config.Config {
	return s.cfg
}

// Close locks the vault and stops the relay transport.
func (s *Service) Close() error {
	s.session.Lock()
	return s.gateway.Close()
}

func (s *Service) root(storagePath string) string {
	if p := strings.TrimSpace(storagePath); p != "" {
		return p
	}
	return s.cfg.StorageRoot
}

var (
	defaultOnce    sync.Once
	defaultService *Service
	defaultErr     error
)

// Default returns the process-wide service built from configs/satya.yaml and
// SATYA_* overrides. Hosts that cannot hold a handle call through it.
func Default() (*Service, error) {
	defaultOnce.Do(func() {
		defaultService, defaultErr = NewService()
		if defaultErr != nil {
			defaultErr = errors.Join(errors.New("api: default service unavailable"), defaultErr)
		}
	})
	return defaultService, defaultErr
}

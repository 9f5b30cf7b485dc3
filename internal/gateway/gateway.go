// Package gateway publishes signed intent envelopes to a relay network and
// reads recent ones back. The transport is started lazily on first use and
// reused until Close.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"satya/go-core/internal/intent"
	"satya/go-core/internal/metrics"
	"satya/go-core/internal/platform/privacylog"
	"satya/go-core/internal/platform/ratelimiter"
	"satya/go-core/internal/vaulterr"
)

const (
	DefaultFetchLimit = 20
	MaxFetchLimit     = 200
)

// Transport moves opaque envelope bytes. Implementations must be safe for
// concurrent Publish and FetchRecent after Start.
type Transport interface {
	Start(ctx context.Context) error
	Stop() error
	Publish(ctx context.Context, payload []byte) error
	// FetchRecent returns up to limit payloads, newest first.
	FetchRecent(ctx context.Context, limit int) ([][]byte, error)
}

type Config struct {
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	FetchTimeout   time.Duration
	// PublishRate is the sustained publishes per second allowed per signer.
	PublishRate  float64
	PublishBurst int
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 10 * time.Second,
		FetchTimeout:   15 * time.Second,
		PublishRate:    0.5,
		PublishBurst:   5,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = def.PublishTimeout
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	return c
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Registry
	Now     func() time.Time
}

type Gateway struct {
	transport Transport
	cfg       Config
	limiter   *ratelimiter.MapLimiter
	logger    *slog.Logger
	metrics   *metrics.Registry
	now       func() time.Time

	startMu sync.Mutex
	started bool
	closed  bool
}

func New(t Transport, cfg Config, opts Options) *Gateway {
	cfg = cfg.withDefaults()
	if opts.Logger == nil {
		opts.Logger = privacylog.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gateway{
		transport: t,
		cfg:       cfg,
		// A zero rate disables limiting; ratelimiter.New returns nil then.
		limiter: ratelimiter.New(cfg.PublishRate, cfg.PublishBurst, 10*time.Minute),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Publish sends one serialized SignedEnvelope. The envelope must decode and
// verify; it is relayed byte for byte.
func (g *Gateway) Publish(ctx context.Context, envelopeJSON []byte) (bool, error) {
	const op = "gateway.publish"
	envelopeJSON = bytes.TrimSpace(envelopeJSON)
	if len(envelopeJSON) == 0 {
		g.metrics.RelayPublish(metrics.ResultError)
		return false, vaulterr.New(vaulterr.KindInvalidInput, op, errors.New("envelope is empty"))
	}
	env, err := intent.DecodeEnvelope(envelopeJSON)
	if err != nil {
		g.metrics.RelayPublish(metrics.ResultError)
		return false, err
	}
	ok, err := intent.VerifyEnvelope(env)
	if err != nil {
		g.metrics.RelayPublish(metrics.ResultError)
		return false, vaulterr.New(vaulterr.KindSerialization, op, err)
	}
	if !ok {
		g.metrics.RelayPublish(metrics.ResultError)
		return false, vaulterr.New(vaulterr.KindInvalidInput, op, errors.New("envelope signature does not verify"))
	}

	if allowed, wait := g.limiter.Allow(env.SignerDID, g.now()); !allowed {
		g.metrics.RelayPublish(metrics.ResultThrottled)
		g.logger.Warn("relay publish throttled", "action", "publish", "status", "throttled", "signer_did", env.SignerDID, "retry_after", wait)
		return false, vaulterr.New(vaulterr.KindThrottled, op, fmt.Errorf("retry in %s", wait.Round(time.Second)))
	}

	if err := g.ensureStarted(ctx); err != nil {
		g.metrics.RelayPublish(resultFor(err))
		return false, err
	}

	publishCtx, cancel := context.WithTimeout(ctx, g.cfg.PublishTimeout)
	defer cancel()
	if err := g.transport.Publish(publishCtx, envelopeJSON); err != nil {
		err = classify(op, err)
		g.metrics.RelayPublish(resultFor(err))
		g.logger.Warn("relay publish failed", "action", "publish", "status", vaulterr.KindOf(err).String(), "cid", env.CID, "error", err)
		return false, err
	}
	g.metrics.RelayPublish(metrics.ResultOK)
	g.logger.Info("relay publish", "action", "publish", "status", "ok", "cid", env.CID, "signer_did", env.SignerDID)
	return true, nil
}

// FetchRecent reads recent envelopes from the relay, drops undecodable ones
// and duplicates by CID, verifies the rest and returns at most limit, newest
// first. timeout is bounded by the configured FetchTimeout.
func (g *Gateway) FetchRecent(ctx context.Context, limit int, timeout time.Duration) ([]intent.SignedEnvelope, error) {
	const op = "gateway.fetch"
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	limit = min(limit, MaxFetchLimit)
	if timeout <= 0 || timeout > g.cfg.FetchTimeout {
		timeout = g.cfg.FetchTimeout
	}

	if err := g.ensureStarted(ctx); err != nil {
		g.metrics.RelayFetch(resultFor(err))
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// Over-fetch: duplicates and junk are dropped below.
	raw, err := g.transport.FetchRecent(fetchCtx, min(limit*2, MaxFetchLimit*2))
	if err != nil {
		err = classify(op, err)
		g.metrics.RelayFetch(resultFor(err))
		g.logger.Warn("relay fetch failed", "action", "fetch", "status", vaulterr.KindOf(err).String(), "error", err)
		return nil, err
	}

	out := collectEnvelopes(raw)
	if len(out) > limit {
		out = out[:limit]
	}
	g.metrics.RelayFetch(metrics.ResultOK)
	g.logger.Info("relay fetch", "action", "fetch", "status", "ok", "received", len(raw), "returned", len(out))
	return out, nil
}

func collectEnvelopes(raw [][]byte) []intent.SignedEnvelope {
	seen := make(map[string]struct{}, len(raw))
	out := make([]intent.SignedEnvelope, 0, len(raw))
	for _, b := range raw {
		env, err := intent.DecodeEnvelope(b)
		if err != nil || env.CID == "" {
			continue
		}
		if _, dup := seen[env.CID]; dup {
			continue
		}
		seen[env.CID] = struct{}{}
		ok, err := intent.VerifyEnvelope(env)
		env.Verified = err == nil && ok
		out = append(out, env)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Payload.Timestamp != out[j].Payload.Timestamp {
			return out[i].Payload.Timestamp > out[j].Payload.Timestamp
		}
		return out[i].CID < out[j].CID
	})
	return out
}

func (g *Gateway) ensureStarted(ctx context.Context) error {
	const op = "gateway.connect"
	g.startMu.Lock()
	defer g.startMu.Unlock()
	if g.closed {
		return vaulterr.New(vaulterr.KindNetworkUnavailable, op, errors.New("gateway is closed"))
	}
	if g.started {
		return nil
	}
	if g.transport == nil {
		return vaulterr.New(vaulterr.KindNetworkUnavailable, op, errors.New("no relay transport configured"))
	}
	connectCtx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
	defer cancel()
	if err := g.transport.Start(connectCtx); err != nil {
		err = classify(op, err)
		g.logger.Warn("relay connect failed", "action", "connect", "status", vaulterr.KindOf(err).String(), "error", err)
		return err
	}
	g.started = true
	g.logger.Info("relay connected", "action", "connect", "status", "ok")
	return nil
}

// Close stops the transport if it was started. The gateway cannot be used
// afterwards.
func (g *Gateway) Close() error {
	g.startMu.Lock()
	defer g.startMu.Unlock()
	g.closed = true
	if !g.started {
		return nil
	}
	g.started = false
	return g.transport.Stop()
}

// classify maps transport failures onto the network kinds. Errors that
// already carry a kind pass through.
func classify(op string, err error) error {
	var kerr *vaulterr.Error
	if errors.As(err, &kerr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return vaulterr.New(vaulterr.KindNetworkTimeout, op, err)
	}
	return vaulterr.New(vaulterr.KindNetworkUnavailable, op, err)
}

func resultFor(err error) string {
	switch vaulterr.KindOf(err) {
	case vaulterr.KindNetworkTimeout:
		return metrics.ResultTimeout
	case vaulterr.KindThrottled:
		return metrics.ResultThrottled
	default:
		return metrics.ResultError
	}
}

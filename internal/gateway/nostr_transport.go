package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

const (
	// IntentEventKind is the ephemeral-range event kind carrying envelope JSON.
	IntentEventKind = 29001
	DefaultRelayURL = "wss://relay.damus.io"
)

var ErrNoRelays = errors.New("no nostr relays configured")

// relayConnect is swapped in tests.
var relayConnect = func(ctx context.Context, url string) (*nostr.Relay, error) {
	return nostr.RelayConnect(ctx, url)
}

// NostrTransport publishes envelopes as nostr events signed with a key that
// lives only as long as the transport.
type NostrTransport struct {
	urls      []string
	kind      int
	secretKey string
	publicKey string

	mu     sync.RWMutex
	relays []*nostr.Relay
}

func NewNostrTransport(urls []string) (*NostrTransport, error) {
	clean := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		clean = append(clean, u)
	}
	if len(clean) == 0 {
		return nil, ErrNoRelays
	}
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, err
	}
	return &NostrTransport{urls: clean, kind: IntentEventKind, secretKey: sk, publicKey: pk}, nil
}

// PublicKey is the hex nostr pubkey events are signed with.
func (t *NostrTransport) PublicKey() string {
	return t.publicKey
}

// Start connects to every relay it can reach. It fails only when none
// answer.
func (t *NostrTransport) Start(ctx context.Context) error {
	connected := make([]*nostr.Relay, 0, len(t.urls))
	var errs []error
	for _, url := range t.urls {
		relay, err := relayConnect(ctx, url)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		connected = append(connected, relay)
	}
	if len(connected) == 0 {
		return errors.Join(errs...)
	}
	t.mu.Lock()
	t.relays = connected
	t.mu.Unlock()
	return nil
}

func (t *NostrTransport) Stop() error {
	t.mu.Lock()
	relays := t.relays
	t.relays = nil
	t.mu.Unlock()
	var errs []error
	for _, r := range relays {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish succeeds if at least one relay accepts the event.
func (t *NostrTransport) Publish(ctx context.Context, payload []byte) error {
	ev, err := t.newEvent(payload)
	if err != nil {
		return err
	}
	relays := t.connected()
	if len(relays) == 0 {
		return ErrNoRelays
	}
	var errs []error
	for _, r := range relays {
		if err := r.Publish(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.URL, err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

func (t *NostrTransport) FetchRecent(ctx context.Context, limit int) ([][]byte, error) {
	relays := t.connected()
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}
	filter := nostr.Filter{Kinds: []int{t.kind}, Limit: limit}
	var (
		events []*nostr.Event
		errs   []error
	)
	for _, r := range relays {
		got, err := r.QuerySync(ctx, filter)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.URL, err))
			continue
		}
		events = append(events, got...)
	}
	if len(events) == 0 && len(errs) == len(relays) {
		return nil, errors.Join(errs...)
	}
	return eventPayloads(events, t.kind, limit), nil
}

func (t *NostrTransport) connected() []*nostr.Relay {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*nostr.Relay(nil), t.relays...)
}

func (t *NostrTransport) newEvent(payload []byte) (nostr.Event, error) {
	ev := nostr.Event{
		PubKey:    t.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      t.kind,
		Tags:      nostr.Tags{},
		Content:   string(payload),
	}
	if err := ev.Sign(t.secretKey); err != nil {
		return nostr.Event{}, err
	}
	return ev, nil
}

// eventPayloads keeps correctly signed events of kind, one per event id,
// newest first.
func eventPayloads(events []*nostr.Event, kind, limit int) [][]byte {
	seen := make(map[string]struct{}, len(events))
	kept := make([]*nostr.Event, 0, len(events))
	for _, ev := range events {
		if ev == nil || ev.Kind != kind || ev.Content == "" {
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		if ok, err := ev.CheckSignature(); err != nil || !ok {
			continue
		}
		seen[ev.ID] = struct{}{}
		kept = append(kept, ev)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].CreatedAt > kept[j].CreatedAt })
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	out := make([][]byte, 0, len(kept))
	for _, ev := range kept {
		out = append(out, []byte(ev.Content))
	}
	return out
}

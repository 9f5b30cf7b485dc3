package waku

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	TransportMock   = "mock"
	TransportGoWaku = "go-waku"

	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateDegraded     = "degraded"

	DefaultPubsubTopic  = "/waku/2/default-waku/proto"
	DefaultContentTopic = "/satya/1/signed-intent/json"
)

var (
	ErrNotConnected   = errors.New("waku not connected")
	ErrEmptyPayload   = errors.New("relay payload is empty")
	ErrBackendMissing = errors.New("go-waku backend is not available in this build")
)

var runtimeStatusPollInterval = 1 * time.Second

type Config struct {
	Transport           string        `yaml:"transport"`
	Port                int           `yaml:"port"`
	PubsubTopic         string        `yaml:"pubsubTopic"`
	ContentTopic        string        `yaml:"contentTopic"`
	EnableRelay         bool          `yaml:"enableRelay"`
	EnableStore         bool          `yaml:"enableStore"`
	EnableFilter        bool          `yaml:"enableFilter"`
	EnableLightPush     bool          `yaml:"enableLightPush"`
	BootstrapNodes      []string      `yaml:"bootstrapNodes"`
	FailoverV1          bool          `yaml:"failoverV1"`
	MinPeers            int           `yaml:"minPeers"`
	StoreQueryFanout    int           `yaml:"storeQueryFanout"`
	ReconnectInterval   time.Duration `yaml:"reconnectInterval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnectBackoffMax"`
}

type Status struct {
	State     string
	PeerCount int
	LastSync  time.Time
}

// RelayMessage is one payload broadcast on a content topic. Timestamp is unix
// nanoseconds as stamped by the publisher.
type RelayMessage struct {
	ID           string
	ContentTopic string
	Payload      []byte
	Timestamp    int64
}

type Node struct {
	mu      sync.RWMutex
	cfg     Config
	status  Status
	subID   uint64
	handler func(RelayMessage)
	gw      goWakuBackend
	bus     *messageBus

	monitorCancel    context.CancelFunc
	monitorWG        sync.WaitGroup
	stateTransitions int
}

type goWakuBackend interface {
	Start(ctx context.Context, cfg Config) error
	Stop()
	PeerCount() int
	NetworkMetrics() map[string]int
	ListenAddresses() []string
	Subscribe(handler func(RelayMessage)) error
	Publish(ctx context.Context, msg RelayMessage) error
	FetchSince(ctx context.Context, since time.Time, limit int) ([]RelayMessage, error)
}

func DefaultConfig() Config {
	return Config{
		Transport:           TransportMock,
		Port:                60000,
		PubsubTopic:         DefaultPubsubTopic,
		ContentTopic:        DefaultContentTopic,
		EnableRelay:         true,
		EnableStore:         true,
		EnableFilter:        true,
		EnableLightPush:     true,
		FailoverV1:          true,
		MinPeers:            2,
		StoreQueryFanout:    3,
		ReconnectInterval:   1 * time.Second,
		ReconnectBackoffMax: 30 * time.Second,
	}
}

func NewNode(cfg Config) *Node {
	cfg = normalizeConfig(cfg)
	return &Node{
		cfg:    cfg,
		bus:    globalBus,
		status: Status{State: StateDisconnected},
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	cfg.Transport = strings.TrimSpace(cfg.Transport)
	if cfg.Transport == "" {
		cfg.Transport = def.Transport
	}
	if strings.TrimSpace(cfg.PubsubTopic) == "" {
		cfg.PubsubTopic = def.PubsubTopic
	}
	if strings.TrimSpace(cfg.ContentTopic) == "" {
		cfg.ContentTopic = def.ContentTopic
	}
	if cfg.StoreQueryFanout <= 0 {
		cfg.StoreQueryFanout = def.StoreQueryFanout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.ReconnectBackoffMax <= 0 {
		cfg.ReconnectBackoffMax = def.ReconnectBackoffMax
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectInterval {
		cfg.ReconnectBackoffMax = cfg.ReconnectInterval
	}
	if cfg.MinPeers < 0 {
		cfg.MinPeers = 0
	}
	return cfg
}

func (n *Node) Config() Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg
}

func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	n.transitionStateLocked(StateConnecting)
	n.status.LastSync = time.Now()
	n.mu.Unlock()

	if n.cfg.Transport == TransportGoWaku {
		backend := newGoWakuBackend()
		if backend == nil {
			n.setDisconnected()
			return ErrBackendMissing
		}
		if err := backend.Start(ctx, n.cfg); err != nil {
			n.setDisconnected()
			return err
		}
		peerCount := backend.PeerCount()
		if n.cfg.FailoverV1 {
			var err error
			peerCount, err = waitForStartupPeerCount(ctx, backend, n.cfg)
			if err != nil {
				backend.Stop()
				n.setDisconnected()
				return err
			}
		}
		n.mu.Lock()
		n.gw = backend
		n.transitionStateLocked(startupStateFromPeerCount(peerCount, n.cfg))
		n.status.PeerCount = peerCount
		n.status.LastSync = time.Now()
		n.mu.Unlock()
		n.startRuntimeMonitor()
		return nil
	}

	select {
	case <-ctx.Done():
		n.setDisconnected()
		return ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}

	n.mu.Lock()
	n.transitionStateLocked(StateConnected)
	n.status.PeerCount = estimatedPeers(n.cfg)
	n.status.LastSync = time.Now()
	n.mu.Unlock()
	return nil
}

func (n *Node) Stop(_ context.Context) error {
	n.stopRuntimeMonitor()

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.gw != nil {
		n.gw.Stop()
		n.gw = nil
	}
	if n.subID != 0 {
		n.bus.unsubscribe(n.subID)
		n.subID = 0
	}
	n.transitionStateLocked(StateDisconnected)
	n.status.PeerCount = 0
	n.status.LastSync = time.Now()
	return nil
}

func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s := n.status
	if n.gw != nil {
		s.PeerCount = n.gw.PeerCount()
	}
	return s
}

func (n *Node) connected() bool {
	return n.status.State == StateConnected || n.status.State == StateDegraded
}

// Subscribe delivers every message seen on the content topic to handler.
func (n *Node) Subscribe(handler func(RelayMessage)) error {
	n.mu.Lock()
	if !n.connected() {
		n.mu.Unlock()
		return ErrNotConnected
	}
	n.handler = handler
	gw := n.gw
	if gw == nil && n.subID == 0 {
		n.subID = n.bus.subscribe(n.cfg.ContentTopic, handler)
	}
	n.mu.Unlock()

	if gw != nil {
		return gw.Subscribe(handler)
	}
	return nil
}

func (n *Node) Publish(ctx context.Context, payload []byte) (RelayMessage, error) {
	n.mu.RLock()
	ok := n.connected()
	gw := n.gw
	topic := n.cfg.ContentTopic
	n.mu.RUnlock()
	if !ok {
		return RelayMessage{}, ErrNotConnected
	}
	if len(payload) == 0 {
		return RelayMessage{}, ErrEmptyPayload
	}
	if err := ctx.Err(); err != nil {
		return RelayMessage{}, err
	}
	msg := RelayMessage{
		ID:           messageID(payload),
		ContentTopic: topic,
		Payload:      append([]byte(nil), payload...),
		Timestamp:    time.Now().UnixNano(),
	}
	if gw != nil {
		return msg, gw.Publish(ctx, msg)
	}
	n.bus.publish(msg)
	return msg, nil
}

// FetchSince returns stored messages newer than since, at most limit.
func (n *Node) FetchSince(ctx context.Context, since time.Time, limit int) ([]RelayMessage, error) {
	n.mu.RLock()
	ok := n.connected()
	gw := n.gw
	topic := n.cfg.ContentTopic
	n.mu.RUnlock()
	if !ok {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if gw != nil {
		return gw.FetchSince(ctx, since, limit)
	}
	return n.bus.history(topic, since, limit), nil
}

func (n *Node) ListenAddresses() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.gw == nil {
		return nil
	}
	return append([]string(nil), n.gw.ListenAddresses()...)
}

func (n *Node) setDisconnected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitionStateLocked(StateDisconnected)
	n.status.PeerCount = 0
	n.status.LastSync = time.Now()
}

func (n *Node) startRuntimeMonitor() {
	n.mu.Lock()
	if n.monitorCancel != nil {
		n.monitorCancel()
		n.monitorCancel = nil
	}
	monitorCtx, cancel := context.WithCancel(context.Background())
	n.monitorCancel = cancel
	n.monitorWG.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.monitorWG.Done()
		ticker := time.NewTicker(runtimeStatusPollInterval)
		defer ticker.Stop()

		n.refreshRuntimeStatus()

		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				n.refreshRuntimeStatus()
			}
		}
	}()
}

func (n *Node) stopRuntimeMonitor() {
	n.mu.Lock()
	cancel := n.monitorCancel
	n.monitorCancel = nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
		n.monitorWG.Wait()
	}
}

func (n *Node) refreshRuntimeStatus() {
	n.mu.RLock()
	gw := n.gw
	n.mu.RUnlock()
	if gw == nil {
		return
	}
	peerCount := gw.PeerCount()
	nextState := StateConnected
	if peerCount <= 0 {
		nextState = StateDegraded
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status.State == StateDisconnected {
		return
	}
	if n.status.State != nextState || n.status.PeerCount != peerCount {
		n.transitionStateLocked(nextState)
		n.status.PeerCount = peerCount
		n.status.LastSync = time.Now()
	}
}

func (n *Node) NetworkMetrics() map[string]int {
	n.mu.RLock()
	transitions := n.stateTransitions
	gw := n.gw
	n.mu.RUnlock()
	out := map[string]int{
		"network_state_transitions": transitions,
	}
	if gw != nil {
		for k, v := range gw.NetworkMetrics() {
			out[k] = v
		}
	}
	return out
}

func (n *Node) transitionStateLocked(next string) {
	if next == "" {
		return
	}
	if n.status.State != next {
		n.stateTransitions++
		n.status.State = next
	}
}

func estimatedPeers(cfg Config) int {
	if len(cfg.BootstrapNodes) == 0 {
		return 1
	}
	if len(cfg.BootstrapNodes) > 12 {
		return 12
	}
	return len(cfg.BootstrapNodes)
}

func waitForStartupPeerCount(ctx context.Context, backend goWakuBackend, cfg Config) (int, error) {
	target := startupPeerTarget(cfg)
	peerCount := backend.PeerCount()
	if peerCount >= target {
		return peerCount, nil
	}

	timer := time.NewTimer(startupHandshakeTimeout(cfg))
	defer timer.Stop()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return backend.PeerCount(), ctx.Err()
		case <-timer.C:
			return backend.PeerCount(), nil
		case <-ticker.C:
			peerCount = backend.PeerCount()
			if peerCount >= target {
				return peerCount, nil
			}
		}
	}
}

func startupStateFromPeerCount(peerCount int, cfg Config) string {
	if peerCount >= startupPeerTarget(cfg) {
		return StateConnected
	}
	return StateDegraded
}

func startupPeerTarget(cfg Config) int {
	target := cfg.MinPeers
	if target <= 0 {
		target = 1
	}
	if len(cfg.BootstrapNodes) > 0 && target > len(cfg.BootstrapNodes) {
		target = len(cfg.BootstrapNodes)
	}
	if target < 1 {
		target = 1
	}
	return target
}

func startupHandshakeTimeout(cfg Config) time.Duration {
	base := cfg.ReconnectInterval
	if base <= 0 {
		base = time.Second
	}
	timeout := base * 5
	if timeout < 2*time.Second {
		timeout = 2 * time.Second
	}
	if cfg.ReconnectBackoffMax > 0 && timeout > cfg.ReconnectBackoffMax {
		timeout = cfg.ReconnectBackoffMax
	}
	return timeout
}

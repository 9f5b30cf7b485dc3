package gateway

import (
	"context"
	"time"

	"satya/go-core/internal/waku"
)

const defaultWakuLookback = 24 * time.Hour

// WakuTransport relays envelopes on a waku content topic. Without the
// real_waku build tag the node runs on the in-process mock bus.
type WakuTransport struct {
	node     *waku.Node
	lookback time.Duration
}

func NewWakuTransport(cfg waku.Config, lookback time.Duration) *WakuTransport {
	if lookback <= 0 {
		lookback = defaultWakuLookback
	}
	return &WakuTransport{node: waku.NewNode(cfg), lookback: lookback}
}

func (t *WakuTransport) Start(ctx context.Context) error {
	return t.node.Start(ctx)
}

func (t *WakuTransport) Stop() error {
	return t.node.Stop(context.Background())
}

func (t *WakuTransport) Publish(ctx context.Context, payload []byte) error {
	_, err := t.node.Publish(ctx, payload)
	return err
}

func (t *WakuTransport) FetchRecent(ctx context.Context, limit int) ([][]byte, error) {
	msgs, err := t.node.FetchSince(ctx, time.Now().Add(-t.lookback), limit)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.Payload)
	}
	return out, nil
}
